package room

import (
	"iter"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Registry is the in-memory set of rooms keyed by normalized name.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
	now   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*domain.Room),
		now:   time.Now,
	}
}

// Create adds a room with creator as its only member. If the room exists
// it is returned unchanged with AlreadyExists.
func (r *Registry) Create(name, creator, topic string) (domain.Room, domain.CreateResult) {
	key := domain.NormalizeRoomName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.rooms[key]; ok {
		return existing.Clone(), domain.AlreadyExists
	}

	now := r.now()
	rm := &domain.Room{
		Name:         key,
		Creator:      creator,
		Topic:        strings.TrimSpace(topic),
		Members:      []string{creator},
		CreatedAt:    now,
		LastActivity: now,
	}
	r.rooms[key] = rm

	l := log.L()
	l.Info().Str(log.FieldRoom, key).Str(log.FieldDisplayName, creator).Msg("room created")
	return rm.Clone(), domain.Created
}

// Join adds displayName to the room's members if absent. It never creates
// a room.
func (r *Registry) Join(name, displayName string) (domain.Room, error) {
	key := domain.NormalizeRoomName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if !slices.Contains(rm.Members, displayName) {
		rm.Members = append(rm.Members, displayName)
	}
	rm.LastActivity = r.now()
	return rm.Clone(), nil
}

// Leave removes displayName from the room's members and reports whether it
// was a member. A name that is not a member is a no-op.
func (r *Registry) Leave(name, displayName string) (domain.Room, bool, error) {
	key := domain.NormalizeRoomName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok {
		return domain.Room{}, false, domain.ErrRoomNotFound
	}
	i := slices.Index(rm.Members, displayName)
	if i < 0 {
		return rm.Clone(), false, nil
	}
	rm.Members = slices.Delete(rm.Members, i, i+1)
	return rm.Clone(), true, nil
}

// Touch moves the room's last activity to now.
func (r *Registry) Touch(name string) {
	key := domain.NormalizeRoomName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if rm, ok := r.rooms[key]; ok {
		rm.LastActivity = r.now()
	}
}

func (r *Registry) Get(name string) (domain.Room, bool) {
	key := domain.NormalizeRoomName(name)

	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[key]
	if !ok {
		return domain.Room{}, false
	}
	return rm.Clone(), true
}

// List yields a snapshot of all rooms ordered by name. Each range over the
// sequence takes a fresh snapshot.
func (r *Registry) List() iter.Seq[domain.Room] {
	return func(yield func(domain.Room) bool) {
		r.mu.RLock()
		snapshot := make([]domain.Room, 0, len(r.rooms))
		for _, rm := range r.rooms {
			snapshot = append(snapshot, rm.Clone())
		}
		r.mu.RUnlock()

		slices.SortFunc(snapshot, func(a, b domain.Room) int {
			return strings.Compare(a.Name, b.Name)
		})

		for _, rm := range snapshot {
			if !yield(rm) {
				return
			}
		}
	}
}

// DeleteIdle removes the room if it has no members and its last activity
// is before cutoff. The check and delete are atomic.
func (r *Registry) DeleteIdle(name string, cutoff time.Time) bool {
	key := domain.NormalizeRoomName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[key]
	if !ok || len(rm.Members) > 0 || !rm.LastActivity.Before(cutoff) {
		return false
	}
	delete(r.rooms, key)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
