package domain

import (
	"slices"
	"strings"
	"time"
)

// CreateResult reports whether RoomRegistry.Create made a new room.
type CreateResult int

const (
	Created CreateResult = iota
	AlreadyExists
)

func (r CreateResult) String() string {
	switch r {
	case Created:
		return CreateResultCreated
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// Room is a named broadcast group. Members holds display names in join order.
type Room struct {
	Name         string
	Creator      string
	Topic        string
	Members      []string
	CreatedAt    time.Time
	LastActivity time.Time
}

// NormalizeRoomName trims and lowercases a room name. Room names are
// case-insensitive keys.
func NormalizeRoomName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r Room) HasMember(displayName string) bool {
	return slices.Contains(r.Members, displayName)
}

func (r Room) Clone() Room {
	r.Members = slices.Clone(r.Members)
	return r
}

func (r Room) Summary() RoomSummary {
	members := r.Members
	if members == nil {
		members = []string{}
	}
	return RoomSummary{
		Name:        r.Name,
		Creator:     r.Creator,
		Topic:       r.Topic,
		Members:     members,
		MemberCount: len(r.Members),
		CreatedAt:   r.CreatedAt.UnixMilli(),
	}
}
