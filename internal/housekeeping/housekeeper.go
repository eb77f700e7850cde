package housekeeping

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/store"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type Tracker interface {
	Idle(ctx context.Context, cutoff time.Time) ([]string, error)
	Remove(ctx context.Context, room string) error
}

// Rooms is the live room state the housekeeper expires.
type Rooms interface {
	ExpireIdleRooms(ctx context.Context, cutoff time.Time) []string
	ListRooms() []domain.RoomSummary
}

// Forgetter drops derived state, such as cached history, for a room.
type Forgetter interface {
	Forget(ctx context.Context, room string)
}

type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// Housekeeper periodically deletes rooms that have been empty and idle for
// longer than the retention. Rooms the tracker still knows about from an
// earlier process are purged from storage as well.
type Housekeeper struct {
	rooms   Rooms
	tracker Tracker
	purger  store.RoomPurger
	forget  Forgetter
	cfg     Config
	now     func() time.Time
	quit    chan struct{}
	doneCh  chan struct{}
}

// New creates a Housekeeper. tracker, purger and forget may be nil.
func New(rooms Rooms, tracker Tracker, purger store.RoomPurger, forget Forgetter, cfg Config) *Housekeeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 72 * time.Hour
	}
	return &Housekeeper{
		rooms:   rooms,
		tracker: tracker,
		purger:  purger,
		forget:  forget,
		cfg:     cfg,
		now:     time.Now,
		quit:    make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func (h *Housekeeper) Start(ctx context.Context) {
	go h.run(ctx)
}

// Stop signals the loop to exit and returns immediately.
func (h *Housekeeper) Stop() {
	close(h.quit)
}

func (h *Housekeeper) Done() <-chan struct{} {
	return h.doneCh
}

func (h *Housekeeper) run(ctx context.Context) {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the rooms removed.
func (h *Housekeeper) Sweep(ctx context.Context) []string {
	l := log.L()
	cutoff := h.now().Add(-h.cfg.Retention)

	removed := h.rooms.ExpireIdleRooms(ctx, cutoff)
	seen := make(map[string]bool, len(removed))
	for _, name := range removed {
		seen[name] = true
	}

	if h.tracker != nil {
		idle, err := h.tracker.Idle(ctx, cutoff)
		if err != nil {
			l.Error().Err(err).Msg("housekeeping: failed to read idle rooms")
		}
		live := make(map[string]bool)
		for _, rm := range h.rooms.ListRooms() {
			live[rm.Name] = true
		}
		for _, name := range idle {
			if !seen[name] && !live[name] {
				seen[name] = true
				removed = append(removed, name)
			}
		}
	}

	for _, name := range removed {
		h.cleanup(ctx, name)
	}

	if len(removed) > 0 {
		l.Info().Int("count", len(removed)).Msg("housekeeping: idle rooms removed")
	}
	return removed
}

func (h *Housekeeper) cleanup(ctx context.Context, room string) {
	l := log.L()
	if h.purger != nil {
		if err := h.purger.PurgeRoom(ctx, room); err != nil {
			l.Warn().Err(err).Str(log.FieldRoom, room).Msg("housekeeping: failed to purge stored room")
			// Keep the tracker entry so the next sweep retries.
			return
		}
	}
	if h.forget != nil {
		h.forget.Forget(ctx, room)
	}
	if h.tracker != nil {
		if err := h.tracker.Remove(ctx, room); err != nil {
			l.Warn().Err(err).Str(log.FieldRoom, room).Msg("housekeeping: failed to remove activity entry")
		}
	}
}
