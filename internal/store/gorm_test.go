package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-chat/pkg/database"
)

func newTestGormStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := database.New(&database.Config{
		Driver:   "sqlite",
		FilePath: filepath.Join(t.TempDir(), "chat.db"),
		LogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}

	s, err := NewGormStore(db)
	if err != nil {
		t.Fatalf("NewGormStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGormStorePutIsIdempotent(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	rec := MessageRecord{MessageID: "0000000000001-000000", RoomName: "movies", AuthorName: "alice", Body: "hello", CreatedAt: time.Now().UTC()}
	for i := 0; i < 2; i++ {
		if err := s.Put(ctx, CollectionMessages, rec); err != nil {
			t.Fatalf("Put() #%d error = %v", i, err)
		}
	}

	records, err := s.ListMessages(ctx, "movies", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("len(records) = %d, want 1", len(records))
	}
}

func TestGormStoreRoomUpsert(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	first := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	second := first.Add(30 * time.Minute)

	if err := s.Put(ctx, CollectionRooms, RoomRecord{RoomName: "movies", Creator: "alice", Topic: "sci-fi", LastActivity: first}); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, CollectionRooms, RoomRecord{RoomName: "movies", Creator: "alice", Topic: "sci-fi", LastActivity: second}); err != nil {
		t.Fatal(err)
	}

	var got RoomRecord
	if err := s.db.First(&got, "room_name = ?", "movies").Error; err != nil {
		t.Fatal(err)
	}
	if !got.LastActivity.Equal(second) {
		t.Errorf("LastActivity = %v, want %v", got.LastActivity, second)
	}
}

func TestGormStoreListMessagesPaging(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		rec := MessageRecord{
			MessageID:  fmt.Sprintf("%013d-%06d", i, 0),
			RoomName:   "movies",
			AuthorName: "alice",
			Body:       fmt.Sprintf("m%d", i),
			CreatedAt:  time.Now().UTC(),
		}
		if err := s.Put(ctx, CollectionMessages, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Put(ctx, CollectionMessages, MessageRecord{MessageID: "x", RoomName: "other", AuthorName: "bob", Body: "b"}); err != nil {
		t.Fatal(err)
	}

	page, err := s.ListMessages(ctx, "movies", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Body != "m5" || page[1].Body != "m4" {
		t.Fatalf("first page = %+v", page)
	}

	page, err = s.ListMessages(ctx, "movies", page[1].MessageID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 || page[0].Body != "m3" {
		t.Fatalf("second page = %+v", page)
	}
}

func TestGormStorePurgeRoom(t *testing.T) {
	s := newTestGormStore(t)
	ctx := context.Background()

	s.Put(ctx, CollectionRooms, RoomRecord{RoomName: "movies"})
	s.Put(ctx, CollectionMessages, MessageRecord{MessageID: "1", RoomName: "movies", AuthorName: "a", Body: "x"})
	s.Put(ctx, CollectionMessages, MessageRecord{MessageID: "2", RoomName: "books", AuthorName: "a", Body: "y"})

	if err := s.PurgeRoom(ctx, "movies"); err != nil {
		t.Fatalf("PurgeRoom() error = %v", err)
	}

	if page, _ := s.ListMessages(ctx, "movies", "", 10); len(page) != 0 {
		t.Errorf("movies messages after purge = %d", len(page))
	}
	if page, _ := s.ListMessages(ctx, "books", "", 10); len(page) != 1 {
		t.Errorf("books messages after purge = %d, want 1", len(page))
	}
	if err := s.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}
