package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/weiawesome/wes-io-chat/internal/store"
)

func msgWrite(id string) PendingWrite {
	return PendingWrite{
		Collection: store.CollectionMessages,
		Record:     store.MessageRecord{MessageID: id, RoomName: "movies"},
	}
}

func keys(items []PendingWrite) []string {
	out := make([]string, len(items))
	for i, w := range items {
		out[i] = w.Record.RecordKey()
	}
	return out
}

func TestPendingQueueEvictsOldest(t *testing.T) {
	q := newPendingQueue(3)

	for i := 1; i <= 3; i++ {
		if _, evicted := q.push(msgWrite(fmt.Sprint(i))); evicted {
			t.Fatalf("push #%d evicted on non-full queue", i)
		}
	}

	old, evicted := q.push(msgWrite("4"))
	if !evicted || old.Record.RecordKey() != "1" {
		t.Fatalf("push on full queue evicted %v (%v), want 1", old.Record, evicted)
	}
	if q.len() != 3 {
		t.Errorf("len() = %d, want 3", q.len())
	}
	if got := fmt.Sprint(keys(q.snapshot())); got != "[2 3 4]" {
		t.Errorf("queue = %s, want [2 3 4]", got)
	}
}

func TestDrainAll(t *testing.T) {
	q := newPendingQueue(10)
	for _, id := range []string{"a", "b", "c"} {
		q.push(msgWrite(id))
	}

	var written []string
	n, err := drain(context.Background(), q, func(_ context.Context, w PendingWrite) error {
		written = append(written, w.Record.RecordKey())
		return nil
	}, nil)

	if err != nil || n != 3 {
		t.Fatalf("drain() = %d, %v", n, err)
	}
	if fmt.Sprint(written) != "[a b c]" {
		t.Errorf("write order = %v", written)
	}
	if q.len() != 0 {
		t.Errorf("queue not empty: %d", q.len())
	}
}

func TestDrainStopsAtFailurePreservingOrder(t *testing.T) {
	q := newPendingQueue(10)
	for _, id := range []string{"a", "b", "c", "d"} {
		q.push(msgWrite(id))
	}

	errDown := errors.New("down")
	n, err := drain(context.Background(), q, func(_ context.Context, w PendingWrite) error {
		if w.Record.RecordKey() == "c" {
			return errDown
		}
		return nil
	}, nil)

	if !errors.Is(err, errDown) || n != 2 {
		t.Fatalf("drain() = %d, %v", n, err)
	}
	items := q.snapshot()
	if fmt.Sprint(keys(items)) != "[c d]" {
		t.Errorf("remaining = %v, want [c d]", keys(items))
	}
	if items[0].Attempts != 1 {
		t.Errorf("head attempts = %d, want 1", items[0].Attempts)
	}
}

func TestDrainPicksUpArrivalsOnTail(t *testing.T) {
	q := newPendingQueue(10)
	q.push(msgWrite("a"))

	arrivals := []string{"b", "c"}
	between := func() error {
		if len(arrivals) > 0 {
			q.push(msgWrite(arrivals[0]))
			arrivals = arrivals[1:]
		}
		return nil
	}

	var written []string
	n, err := drain(context.Background(), q, func(_ context.Context, w PendingWrite) error {
		written = append(written, w.Record.RecordKey())
		return nil
	}, between)

	if err != nil || n != 3 {
		t.Fatalf("drain() = %d, %v", n, err)
	}
	if fmt.Sprint(written) != "[a b c]" {
		t.Errorf("write order = %v", written)
	}
}

func TestNextMode(t *testing.T) {
	tests := []struct {
		from Mode
		ev   event
		want Mode
	}{
		{Normal, eventWriteFailed, Recovery},
		{Normal, eventProbeSucceeded, Normal},
		{Normal, eventFlushCompleted, Normal},
		{Recovery, eventWriteFailed, Recovery},
		{Recovery, eventProbeFailed, Recovery},
		{Recovery, eventProbeSucceeded, Flushing},
		{Recovery, eventFlushCompleted, Recovery},
		{Flushing, eventFlushFailed, Recovery},
		{Flushing, eventWriteFailed, Recovery},
		{Flushing, eventFlushCompleted, Normal},
		{Flushing, eventProbeSucceeded, Flushing},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.String(), func(t *testing.T) {
			if got := nextMode(tt.from, tt.ev); got != tt.want {
				t.Errorf("nextMode(%v, %v) = %v, want %v", tt.from, tt.ev, got, tt.want)
			}
		})
	}
}
