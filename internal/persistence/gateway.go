package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-io-chat/internal/store"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

var ErrStopped = errors.New("persistence gateway stopped")

type Config struct {
	MaxQueueSize     int
	InboxSize        int
	RecoveryInterval time.Duration
	RequestTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 1000
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 4096
	}
	if c.RecoveryInterval <= 0 {
		c.RecoveryInterval = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	return c
}

// Stats is a point-in-time view of the gateway.
type Stats struct {
	Mode             Mode      `json:"-"`
	ModeName         string    `json:"mode"`
	QueueSize        int       `json:"queue_size"`
	MaxQueueSize     int       `json:"max_queue_size"`
	Written          uint64    `json:"written"`
	Flushed          uint64    `json:"flushed"`
	Evicted          uint64    `json:"evicted"`
	Dropped          uint64    `json:"dropped"`
	RecoveryAttempts uint64    `json:"recovery_attempts"`
	LastError        string    `json:"last_error,omitempty"`
	RecoveringSince  time.Time `json:"recovering_since,omitempty"`
}

// Gateway owns the persistence mode and the pending queue. All state
// changes happen on one goroutine started by Start; Save never blocks.
//
// Normal writes through with a per-request timeout. A failed write moves
// the gateway to Recovery and queues the record. In Recovery every write is
// queued and a ticker probes storage health. A successful probe switches to
// Flushing, which writes the queue in order; records saved meanwhile join
// the tail of the queue. An empty queue returns the gateway to Normal and
// stops the ticker; any failed flush write returns it to Recovery.
type Gateway struct {
	client store.Client
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	inbox    chan PendingWrite
	probeReq chan chan Mode
	quit     chan struct{}
	doneCh   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopped   atomic.Bool
	dropped   atomic.Uint64

	// Written by the run goroutine only, under mu.
	mu     sync.RWMutex
	mode   Mode
	queue  *pendingQueue
	stats  Stats
	ticker *time.Ticker

	onModeChange func(from, to Mode)
}

func NewGateway(client store.Client, cfg Config) *Gateway {
	cfg = cfg.withDefaults()
	l := log.L()
	return &Gateway{
		client:   client,
		cfg:      cfg,
		logger:   l.With().Str("component", "persistence").Logger(),
		now:      time.Now,
		inbox:    make(chan PendingWrite, cfg.InboxSize),
		probeReq: make(chan chan Mode),
		quit:     make(chan struct{}),
		doneCh:   make(chan struct{}),
		mode:     Normal,
		queue:    newPendingQueue(cfg.MaxQueueSize),
	}
}

// OnModeChange registers fn to run on every mode transition. It must be
// called before Start and fn must not block.
func (g *Gateway) OnModeChange(fn func(from, to Mode)) {
	g.onModeChange = fn
}

func (g *Gateway) Start() {
	g.startOnce.Do(func() {
		g.started.Store(true)
		go g.run()
		g.logger.Info().
			Dur("recovery_interval", g.cfg.RecoveryInterval).
			Int("max_queue_size", g.cfg.MaxQueueSize).
			Msg("persistence gateway started")
	})
}

// SaveMessage hands a message to the gateway. It never blocks and never
// reports storage failures.
func (g *Gateway) SaveMessage(rec store.MessageRecord) {
	g.save(store.CollectionMessages, rec)
}

// SaveRoom hands a room record to the gateway.
func (g *Gateway) SaveRoom(rec store.RoomRecord) {
	g.save(store.CollectionRooms, rec)
}

func (g *Gateway) save(collection string, rec store.Record) {
	if g.stopped.Load() {
		g.logger.Warn().
			Str(log.FieldCollection, collection).
			Str("record_key", rec.RecordKey()).
			Msg("save after stop, record discarded")
		return
	}

	w := PendingWrite{Collection: collection, Record: rec, QueuedAt: g.now()}
	select {
	case g.inbox <- w:
	default:
		g.dropped.Add(1)
		g.logger.Error().
			Str(log.FieldCollection, collection).
			Str("record_key", rec.RecordKey()).
			Msg("persistence inbox full, record dropped")
	}
}

// Mode returns the current mode.
func (g *Gateway) Mode() Mode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.mode
}

func (g *Gateway) Stats() Stats {
	g.mu.RLock()
	s := g.stats
	s.Mode = g.mode
	s.QueueSize = g.queue.len()
	g.mu.RUnlock()

	s.ModeName = s.Mode.String()
	s.MaxQueueSize = g.cfg.MaxQueueSize
	s.Dropped = g.dropped.Load()
	return s
}

// Pending returns a copy of the queued writes, oldest first.
func (g *Gateway) Pending() []PendingWrite {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.queue.snapshot()
}

// Probe processes every write already handed to the gateway, then runs one
// recovery attempt if the gateway is in Recovery. It returns the resulting
// mode.
func (g *Gateway) Probe(ctx context.Context) (Mode, error) {
	reply := make(chan Mode, 1)
	select {
	case g.probeReq <- reply:
	case <-g.doneCh:
		return g.Mode(), ErrStopped
	case <-ctx.Done():
		return g.Mode(), ctx.Err()
	}

	select {
	case m := <-reply:
		return m, nil
	case <-ctx.Done():
		return g.Mode(), ctx.Err()
	}
}

// Stop stops the recovery timer and the run loop. Writes still queued are
// logged as lost.
func (g *Gateway) Stop(ctx context.Context) error {
	g.stopOnce.Do(func() {
		g.stopped.Store(true)
		close(g.quit)
	})

	if !g.started.Load() {
		return nil
	}

	select {
	case <-g.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) run() {
	defer close(g.doneCh)

	for {
		select {
		case w := <-g.inbox:
			g.handle(w)

		case <-g.tick():
			g.recover()

		case reply := <-g.probeReq:
			g.handleBuffered()
			g.recover()
			reply <- g.mode

		case <-g.quit:
			g.shutdown()
			return
		}
	}
}

// tick returns the recovery ticker channel, or nil outside Recovery.
func (g *Gateway) tick() <-chan time.Time {
	if g.ticker == nil {
		return nil
	}
	return g.ticker.C
}

func (g *Gateway) handle(w PendingWrite) {
	switch g.mode {
	case Normal:
		err := g.write(w)
		if err == nil {
			g.mu.Lock()
			g.stats.Written++
			g.mu.Unlock()
			return
		}
		w.Attempts++
		g.logger.Warn().Err(err).
			Str(log.FieldCollection, w.Collection).
			Str("record_key", w.Record.RecordKey()).
			Msg("write-through failed, entering recovery")
		g.transition(eventWriteFailed, err)
		g.enqueue(w)

	default:
		g.enqueue(w)
	}
}

// handleBuffered processes writes already waiting in the inbox.
func (g *Gateway) handleBuffered() {
	for {
		select {
		case w := <-g.inbox:
			g.handle(w)
		default:
			return
		}
	}
}

func (g *Gateway) write(w PendingWrite) error {
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RequestTimeout)
	defer cancel()
	return g.client.Put(ctx, w.Collection, w.Record)
}

func (g *Gateway) enqueue(w PendingWrite) {
	g.mu.Lock()
	evicted, ok := g.queue.push(w)
	size := g.queue.len()
	if ok {
		g.stats.Evicted++
	}
	g.mu.Unlock()

	if ok {
		g.logger.Warn().
			Str(log.FieldCollection, evicted.Collection).
			Str("record_key", evicted.Record.RecordKey()).
			Time("queued_at", evicted.QueuedAt).
			Int(log.FieldQueueSize, size).
			Msg("pending queue full, evicted oldest write")
	}
}

// recover runs one probe and, if storage is healthy, one flush.
func (g *Gateway) recover() {
	if g.mode != Recovery {
		return
	}

	g.mu.Lock()
	g.stats.RecoveryAttempts++
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.RequestTimeout)
	err := g.client.HealthCheck(ctx)
	cancel()
	if err != nil {
		g.logger.Warn().Err(err).
			Int(log.FieldQueueSize, g.queue.len()).
			Msg("storage health probe failed")
		g.transition(eventProbeFailed, err)
		return
	}

	g.transition(eventProbeSucceeded, nil)

	flushed, err := drain(context.Background(), lockedQueue{g}, func(_ context.Context, w PendingWrite) error {
		return g.write(w)
	}, g.pullInbox)

	g.mu.Lock()
	g.stats.Flushed += uint64(flushed)
	g.mu.Unlock()

	if err != nil {
		g.logger.Warn().Err(err).
			Int("flushed", flushed).
			Int(log.FieldQueueSize, g.queue.len()).
			Msg("flush aborted, returning to recovery")
		g.transition(eventFlushFailed, err)
		return
	}

	g.logger.Info().Int("flushed", flushed).Msg("pending queue flushed")
	g.transition(eventFlushCompleted, nil)
}

// pullInbox moves writes that arrived during a flush onto the queue tail.
func (g *Gateway) pullInbox() error {
	for {
		select {
		case <-g.quit:
			return ErrStopped
		case w := <-g.inbox:
			g.enqueue(w)
		default:
			return nil
		}
	}
}

func (g *Gateway) transition(e event, cause error) {
	from := g.mode
	to := nextMode(from, e)

	g.mu.Lock()
	if cause != nil {
		g.stats.LastError = cause.Error()
	}
	if from == to {
		g.mu.Unlock()
		return
	}
	g.mode = to
	switch {
	case to == Recovery && from == Normal:
		g.stats.RecoveringSince = g.now()
		g.ticker = time.NewTicker(g.cfg.RecoveryInterval)
	case to == Normal:
		g.stats.RecoveringSince = time.Time{}
		g.stats.LastError = ""
		if g.ticker != nil {
			g.ticker.Stop()
			g.ticker = nil
		}
	}
	g.mu.Unlock()

	g.logger.Info().
		Str("from", from.String()).
		Str(log.FieldMode, to.String()).
		Str("event", e.String()).
		Msg("persistence mode changed")

	if g.onModeChange != nil {
		g.onModeChange(from, to)
	}
}

func (g *Gateway) shutdown() {
	if g.ticker != nil {
		g.ticker.Stop()
		g.ticker = nil
	}

	// Writes still in the inbox get one attempt while storage is healthy.
	healthy := g.mode == Normal
	for {
		var w PendingWrite
		select {
		case w = <-g.inbox:
		default:
			g.reportLoss()
			return
		}

		if healthy {
			if err := g.write(w); err == nil {
				g.mu.Lock()
				g.stats.Written++
				g.mu.Unlock()
				continue
			}
			healthy = false
		}
		g.enqueue(w)
	}
}

func (g *Gateway) reportLoss() {
	if n := g.queue.len(); n > 0 {
		g.logger.Error().
			Int(log.FieldQueueSize, n).
			Str(log.FieldMode, g.mode.String()).
			Msg("persistence gateway stopped with pending writes, they will be lost")
		return
	}
	g.logger.Info().Msg("persistence gateway stopped")
}

// lockedQueue serializes queue mutations with readers of Stats and Pending.
type lockedQueue struct {
	g *Gateway
}

func (q lockedQueue) peek() (PendingWrite, bool) {
	q.g.mu.RLock()
	defer q.g.mu.RUnlock()
	return q.g.queue.peek()
}

func (q lockedQueue) popFront() {
	q.g.mu.Lock()
	q.g.queue.popFront()
	q.g.mu.Unlock()
}

func (q lockedQueue) failFront() {
	q.g.mu.Lock()
	q.g.queue.failFront()
	q.g.mu.Unlock()
}
