package domain

import "time"

// Session is the server-side state of one live connection. An empty
// CurrentRoom or DisplayName means the value has not been set.
type Session struct {
	ConnectionID string
	DisplayName  string
	CurrentRoom  string
	ConnectedAt  time.Time
	LastActiveAt time.Time
}

func NewSession(connectionID string, now time.Time) *Session {
	return &Session{
		ConnectionID: connectionID,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}

func (s *Session) InRoom() bool {
	return s.CurrentRoom != ""
}
