package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/store"
)

var errDown = errors.New("connection refused")

// fakeStore fails the first failPuts writes, writes of keys in failKeys,
// and every health check while healthy is false.
type fakeStore struct {
	mu       sync.Mutex
	failPuts int
	failAll  bool
	failKeys map[string]bool
	healthy  bool
	written  []string
	puts     int
	probes   int
}

func (f *fakeStore) Put(_ context.Context, _ string, record store.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failAll || f.failPuts > 0 || f.failKeys[record.RecordKey()] {
		if f.failPuts > 0 {
			f.failPuts--
		}
		return fmt.Errorf("%w: %v", store.ErrUnavailable, errDown)
	}
	f.written = append(f.written, record.RecordKey())
	return nil
}

func (f *fakeStore) HealthCheck(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if !f.healthy {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, errDown)
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) set(fn func(f *fakeStore)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeStore) writtenKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func newTestGateway(t *testing.T, client store.Client, maxQueue int) *Gateway {
	t.Helper()
	g := NewGateway(client, Config{
		MaxQueueSize: maxQueue,
		// Probes are driven by the test.
		RecoveryInterval: time.Hour,
		RequestTimeout:   time.Second,
	})
	g.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.Stop(ctx)
	})
	return g
}

func message(id string) store.MessageRecord {
	return store.MessageRecord{MessageID: id, RoomName: "movies", AuthorName: "alice", Body: "hi"}
}

func probe(t *testing.T, g *Gateway) Mode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := g.Probe(ctx)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	return m
}

func TestGatewayWriteThrough(t *testing.T) {
	fs := &fakeStore{healthy: true}
	g := newTestGateway(t, fs, 10)

	g.SaveMessage(message("1"))
	g.SaveRoom(store.RoomRecord{RoomName: "movies"})

	if m := probe(t, g); m != Normal {
		t.Fatalf("mode = %v, want Normal", m)
	}
	if got := fmt.Sprint(fs.writtenKeys()); got != "[1 movies]" {
		t.Errorf("written = %s", got)
	}
	if s := g.Stats(); s.Written != 2 || s.QueueSize != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestGatewayFailOnceThenRecover(t *testing.T) {
	fs := &fakeStore{failPuts: 1, healthy: true}
	g := NewGateway(fs, Config{MaxQueueSize: 10, RecoveryInterval: time.Hour})

	var mu sync.Mutex
	var transitions []string
	g.OnModeChange(func(from, to Mode) {
		mu.Lock()
		transitions = append(transitions, from.String()+"->"+to.String())
		mu.Unlock()
	})
	g.Start()
	defer g.Stop(context.Background())

	g.SaveMessage(message("1"))

	if m := probe(t, g); m != Normal {
		t.Fatalf("mode after probe = %v, want Normal", m)
	}
	if s := g.Stats(); s.QueueSize != 0 || s.Flushed != 1 {
		t.Errorf("stats = %+v, want empty queue and one flushed write", s)
	}
	if got := fmt.Sprint(fs.writtenKeys()); got != "[1]" {
		t.Errorf("written = %s", got)
	}
	if s := g.Stats(); !s.RecoveringSince.IsZero() || s.LastError != "" {
		t.Errorf("recovery metadata not cleared: %+v", s)
	}

	mu.Lock()
	defer mu.Unlock()
	want := "[normal->recovery recovery->flushing flushing->normal]"
	if got := fmt.Sprint(transitions); got != want {
		t.Errorf("transitions = %s, want %s", got, want)
	}
}

func TestGatewayRecoveryQueuesWithoutWriting(t *testing.T) {
	fs := &fakeStore{failAll: true}
	g := newTestGateway(t, fs, 10)

	g.SaveMessage(message("1"))
	if m := probe(t, g); m != Recovery {
		t.Fatalf("mode = %v, want Recovery", m)
	}

	fs.set(func(f *fakeStore) { f.puts = 0 })
	g.SaveMessage(message("2"))
	g.SaveMessage(message("3"))
	probe(t, g)

	fs.mu.Lock()
	puts := fs.puts
	fs.mu.Unlock()
	if puts != 0 {
		t.Errorf("Recovery attempted %d direct writes, want 0", puts)
	}
	if got := fmt.Sprint(keys(g.Pending())); got != "[1 2 3]" {
		t.Errorf("pending = %s", got)
	}
	if g.Pending()[0].Attempts != 1 {
		t.Errorf("attempts of failed write-through = %d, want 1", g.Pending()[0].Attempts)
	}
}

func TestGatewayQueueCapEvictsOldest(t *testing.T) {
	const maxQueue = 5
	fs := &fakeStore{failAll: true}
	g := newTestGateway(t, fs, maxQueue)

	for i := 0; i < maxQueue+2; i++ {
		g.SaveMessage(message(fmt.Sprint(i)))
	}

	if m := probe(t, g); m != Recovery {
		t.Fatalf("mode = %v, want Recovery", m)
	}
	s := g.Stats()
	if s.QueueSize != maxQueue {
		t.Errorf("QueueSize = %d, want %d", s.QueueSize, maxQueue)
	}
	if s.Evicted != 2 {
		t.Errorf("Evicted = %d, want 2", s.Evicted)
	}
	if got := fmt.Sprint(keys(g.Pending())); got != "[2 3 4 5 6]" {
		t.Errorf("pending = %s, want oldest evicted", got)
	}
}

func TestGatewayFlushFailureReturnsToRecovery(t *testing.T) {
	fs := &fakeStore{failAll: true}
	g := newTestGateway(t, fs, 10)

	for _, id := range []string{"a", "b", "c"} {
		g.SaveMessage(message(id))
	}
	if m := probe(t, g); m != Recovery {
		t.Fatalf("mode = %v, want Recovery", m)
	}

	// Health check passes but the second flush write fails.
	fs.set(func(f *fakeStore) {
		f.failAll = false
		f.healthy = true
		f.failKeys = map[string]bool{"b": true}
	})

	if m := probe(t, g); m != Recovery {
		t.Fatalf("mode after failed flush = %v, want Recovery", m)
	}
	if got := fmt.Sprint(keys(g.Pending())); got != "[b c]" {
		t.Errorf("pending = %s, want [b c]", got)
	}

	fs.set(func(f *fakeStore) { f.failKeys = nil })
	if m := probe(t, g); m != Normal {
		t.Fatalf("mode = %v, want Normal", m)
	}
	if got := fmt.Sprint(fs.writtenKeys()); got != "[a b c]" {
		t.Errorf("written = %s, want [a b c]", got)
	}
}

func TestGatewayProbeFailureStaysInRecovery(t *testing.T) {
	fs := &fakeStore{failAll: true}
	g := newTestGateway(t, fs, 10)

	g.SaveMessage(message("1"))
	probe(t, g)
	probe(t, g)

	s := g.Stats()
	if s.Mode != Recovery || s.QueueSize != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.RecoveryAttempts != 2 {
		t.Errorf("RecoveryAttempts = %d, want 2", s.RecoveryAttempts)
	}
	if s.RecoveringSince.IsZero() || s.LastError == "" {
		t.Errorf("recovery metadata not set: %+v", s)
	}
}

func TestGatewayTimerRecovers(t *testing.T) {
	fs := &fakeStore{failPuts: 1, healthy: true}
	g := NewGateway(fs, Config{
		RecoveryInterval: 10 * time.Millisecond,
		RequestTimeout:   time.Second,
	})
	g.Start()
	defer g.Stop(context.Background())

	g.SaveMessage(message("1"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(fs.writtenKeys()) == 1 && g.Mode() == Normal {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timer did not recover: mode=%v written=%v", g.Mode(), fs.writtenKeys())
}

func TestGatewayStop(t *testing.T) {
	fs := &fakeStore{failAll: true}
	g := NewGateway(fs, Config{RecoveryInterval: time.Hour})
	g.Start()

	g.SaveMessage(message("1"))
	probe(t, g)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := g.Stop(ctx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}

	g.SaveMessage(message("2"))
	if _, err := g.Probe(ctx); !errors.Is(err, ErrStopped) {
		t.Errorf("Probe() after Stop error = %v, want ErrStopped", err)
	}
	if n := len(g.Pending()); n != 1 {
		t.Errorf("pending after stop = %d, want 1", n)
	}
}

func TestGatewayStopWithoutStart(t *testing.T) {
	g := NewGateway(&fakeStore{}, Config{})
	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestGatewayInboxFullDrops(t *testing.T) {
	g := NewGateway(&fakeStore{healthy: true}, Config{InboxSize: 2})

	// Not started, so the inbox fills.
	for i := 0; i < 5; i++ {
		g.SaveMessage(message(fmt.Sprint(i)))
	}
	if s := g.Stats(); s.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", s.Dropped)
	}
}

func TestGatewayConcurrentSaves(t *testing.T) {
	fs := &fakeStore{healthy: true}
	g := newTestGateway(t, fs, 1000)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				g.SaveMessage(message(fmt.Sprintf("%d-%d", w, i)))
				g.Stats()
			}
		}(w)
	}
	wg.Wait()
	probe(t, g)

	if n := len(fs.writtenKeys()); n != 200 {
		t.Errorf("written = %d, want 200", n)
	}
}

