package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNormalizeRoomName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Movies", "movies"},
		{"  Book Club ", "book club"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRoomName(tt.in); got != tt.want {
			t.Errorf("NormalizeRoomName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoomCloneIsIndependent(t *testing.T) {
	r := Room{Name: "movies", Members: []string{"alice"}}
	c := r.Clone()
	c.Members[0] = "mallory"

	if r.Members[0] != "alice" {
		t.Fatal("clone shares members with original")
	}
}

func TestSummaryNeverNilMembers(t *testing.T) {
	s := Room{Name: "empty", CreatedAt: time.UnixMilli(42)}.Summary()
	if s.Members == nil || s.MemberCount != 0 || s.CreatedAt != 42 {
		t.Fatalf("summary = %+v", s)
	}
}

func TestValidationErrorWrapped(t *testing.T) {
	err := fmt.Errorf("create: %w", NewValidationError("room_name", "must not be empty"))
	if !IsValidationError(err) {
		t.Fatal("wrapped validation error not detected")
	}
	if IsValidationError(errors.New("other")) {
		t.Fatal("plain error detected as validation error")
	}
}

func TestMessageRecordUsesUTC(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	m := &ChatMessage{MessageID: "1", CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, loc)}

	if m.Record().CreatedAt.Location() != time.UTC {
		t.Fatal("record time not UTC")
	}
	if m.Out().Timestamp != m.CreatedAt.UnixMilli() {
		t.Fatal("out timestamp mismatch")
	}
}
