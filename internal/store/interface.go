package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Collections accepted by every driver.
const (
	CollectionMessages = "messages"
	CollectionRooms    = "rooms"
)

var (
	// ErrUnavailable wraps every failure to reach the backing store:
	// timeouts, refused connections and non-success responses.
	ErrUnavailable = errors.New("storage unavailable")

	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotSupported      = errors.New("operation not supported by storage driver")
)

// Record is a document written to a collection. RecordKey is the unique
// key used for idempotent writes.
type Record interface {
	RecordKey() string
}

// MessageRecord is the persisted shape of a chat message.
type MessageRecord struct {
	MessageID  string    `json:"message_id" gorm:"primaryKey;size:32"`
	RoomName   string    `json:"room_name" gorm:"index;size:100;not null"`
	AuthorName string    `json:"author_name" gorm:"size:50;not null"`
	Body       string    `json:"body" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (MessageRecord) TableName() string { return CollectionMessages }

func (r MessageRecord) RecordKey() string { return r.MessageID }

// RoomRecord is the persisted shape of a room. Writes are upserts so
// LastActivity moves forward.
type RoomRecord struct {
	RoomName     string    `json:"room_name" gorm:"primaryKey;size:100"`
	Creator      string    `json:"creator" gorm:"size:50"`
	Topic        string    `json:"topic" gorm:"size:200"`
	LastActivity time.Time `json:"last_activity"`
}

func (RoomRecord) TableName() string { return CollectionRooms }

func (r RoomRecord) RecordKey() string { return r.RoomName }

// Client is the storage collaborator used by the persistence gateway.
type Client interface {
	Put(ctx context.Context, collection string, record Record) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// HistoryReader is implemented by drivers that can page stored messages.
// ListMessages returns up to limit messages of room, newest first, with ids
// strictly below before when before is non-empty.
type HistoryReader interface {
	ListMessages(ctx context.Context, room, before string, limit int) ([]MessageRecord, error)
}

// RoomPurger is implemented by drivers that can delete a room and its
// messages.
type RoomPurger interface {
	PurgeRoom(ctx context.Context, room string) error
}

// checkRecord verifies record belongs to collection.
func checkRecord(collection string, record Record) error {
	switch collection {
	case CollectionMessages:
		if _, ok := record.(MessageRecord); ok {
			return nil
		}
	case CollectionRooms:
		if _, ok := record.(RoomRecord); ok {
			return nil
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return fmt.Errorf("record %T does not belong to collection %q", record, collection)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
