package service

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/store"
)

// Transport is the real-time broadcast primitive, keyed by connection ID.
type Transport interface {
	JoinGroup(connectionID, room string)
	LeaveGroup(connectionID, room string)
	SendToGroup(room string, message interface{}, exclude string) error
	SendTo(connectionID string, message interface{}) error
}

// Persister takes ownership of records for durable storage. Calls must
// not block.
type Persister interface {
	SaveMessage(rec store.MessageRecord)
	SaveRoom(rec store.RoomRecord)
}

// ActivityTracker records room activity for housekeeping. Failures are
// tolerated.
type ActivityTracker interface {
	Touch(ctx context.Context, room string, at time.Time) error
}

type ChatService interface {
	HandleConnect(ctx context.Context, connectionID string) error
	HandleCreateRoom(ctx context.Context, connectionID, roomName, displayName, topic string) error
	HandleJoinRoom(ctx context.Context, connectionID, roomName, displayName string) error
	HandleRoomMessage(ctx context.Context, connectionID, roomName, displayName, body string) error
	HandleLeaveRoom(ctx context.Context, connectionID, roomName, displayName string) error
	HandleListRooms(ctx context.Context, connectionID string) error
	HandleDisconnect(ctx context.Context, connectionID string) error
	ListRooms() []domain.RoomSummary
	GetRoom(name string) (domain.RoomSummary, bool)
	ExpireIdleRooms(ctx context.Context, cutoff time.Time) []string
	CheckConsistency() []Inconsistency
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Inconsistency kinds reported by CheckConsistency.
const (
	InconsistencyOrphanMember  = "orphan_member"
	InconsistencyMissingMember = "missing_member"
	InconsistencyMissingRoom   = "missing_room"
)

// Inconsistency is a divergence between room membership and sessions.
type Inconsistency struct {
	Kind         string `json:"kind"`
	Room         string `json:"room"`
	DisplayName  string `json:"display_name"`
	ConnectionID string `json:"connection_id,omitempty"`
}
