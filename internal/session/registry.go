package session

import (
	"sync"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Registry tracks live connections. Lookups return copies; callers never
// hold a pointer into registry state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

// Register creates an empty session. It returns false if connID is
// already registered.
func (r *Registry) Register(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; ok {
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, connID).Msg("session already registered")
		return false
	}
	r.sessions[connID] = domain.NewSession(connID, r.now())
	return true
}

func (r *Registry) Get(connID string) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return domain.Session{}, false
	}
	return *s, true
}

// UpdateActivity points the session at room under displayName.
func (r *Registry) UpdateActivity(connID, room, displayName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, connID).Msg("update activity for unknown session")
		return false
	}
	s.CurrentRoom = room
	s.DisplayName = displayName
	s.LastActiveAt = r.now()
	return true
}

// ClearRoom unsets the current room. The display name is kept.
func (r *Registry) ClearRoom(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return false
	}
	s.CurrentRoom = ""
	s.LastActiveAt = r.now()
	return true
}

// Touch records inbound traffic on the connection.
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		s.LastActiveAt = r.now()
	}
}

// Remove deletes the session. Room membership is left to the caller.
func (r *Registry) Remove(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; !ok {
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, connID).Msg("remove for unknown session")
		return false
	}
	delete(r.sessions, connID)
	return true
}

// InRoom returns copies of every session whose current room is room.
func (r *Registry) InRoom(room string) []domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Session
	for _, s := range r.sessions {
		if s.CurrentRoom == room {
			out = append(out, *s)
		}
	}
	return out
}

// NameInRoom reports whether a session other than exclude is in room under
// displayName.
func (r *Registry) NameInRoom(room, displayName, exclude string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, s := range r.sessions {
		if id != exclude && s.CurrentRoom == room && s.DisplayName == displayName {
			return true
		}
	}
	return false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
