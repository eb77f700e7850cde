package persistence

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/store"
)

// PendingWrite is a record waiting to be written.
type PendingWrite struct {
	Collection string
	Record     store.Record
	QueuedAt   time.Time
	Attempts   int
}

// pendingQueue is a bounded FIFO. Pushing onto a full queue evicts the
// oldest entry.
type pendingQueue struct {
	items []PendingWrite
	max   int
}

func newPendingQueue(max int) *pendingQueue {
	if max <= 0 {
		max = 1
	}
	return &pendingQueue{max: max}
}

// push appends w and returns the evicted entry, if any.
func (q *pendingQueue) push(w PendingWrite) (PendingWrite, bool) {
	var evicted PendingWrite
	full := len(q.items) >= q.max
	if full {
		evicted = q.items[0]
		q.popFront()
	}
	q.items = append(q.items, w)
	return evicted, full
}

func (q *pendingQueue) peek() (PendingWrite, bool) {
	if len(q.items) == 0 {
		return PendingWrite{}, false
	}
	return q.items[0], true
}

func (q *pendingQueue) popFront() {
	if len(q.items) == 0 {
		return
	}
	q.items[0] = PendingWrite{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
}

// failFront records a failed attempt on the head entry.
func (q *pendingQueue) failFront() {
	if len(q.items) > 0 {
		q.items[0].Attempts++
	}
}

func (q *pendingQueue) len() int {
	return len(q.items)
}

func (q *pendingQueue) snapshot() []PendingWrite {
	out := make([]PendingWrite, len(q.items))
	copy(out, q.items)
	return out
}

// fifo is the part of a queue drain needs.
type fifo interface {
	peek() (PendingWrite, bool)
	popFront()
	failFront()
}

// drain writes queued entries in order, one at a time, until the queue is
// empty or a write fails. A failed entry stays at the head. between runs
// before each write and may append to q; a non-nil error from it aborts
// the drain.
func drain(
	ctx context.Context,
	q fifo,
	write func(context.Context, PendingWrite) error,
	between func() error,
) (int, error) {
	flushed := 0
	for {
		if between != nil {
			if err := between(); err != nil {
				return flushed, err
			}
		}
		if err := ctx.Err(); err != nil {
			return flushed, err
		}

		w, ok := q.peek()
		if !ok {
			return flushed, nil
		}
		if err := write(ctx, w); err != nil {
			q.failFront()
			return flushed, err
		}
		q.popFront()
		flushed++
	}
}
