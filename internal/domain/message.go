package domain

import (
	"time"

	"github.com/weiawesome/wes-io-chat/internal/store"
)

// ChatMessage is immutable once created.
type ChatMessage struct {
	MessageID  string
	RoomName   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

func (m *ChatMessage) Record() store.MessageRecord {
	return store.MessageRecord{
		MessageID:  m.MessageID,
		RoomName:   m.RoomName,
		AuthorName: m.AuthorName,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt.UTC(),
	}
}

func (m *ChatMessage) Out() *ChatMessageOut {
	return &ChatMessageOut{
		Type:       MsgTypeMessage,
		MessageID:  m.MessageID,
		RoomName:   m.RoomName,
		AuthorName: m.AuthorName,
		Body:       m.Body,
		Timestamp:  m.CreatedAt.UnixMilli(),
	}
}

func (r Room) Record() store.RoomRecord {
	return store.RoomRecord{
		RoomName:     r.Name,
		Creator:      r.Creator,
		Topic:        r.Topic,
		LastActivity: r.LastActivity.UTC(),
	}
}
