package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegisterGetRemove(t *testing.T) {
	r := NewRegistry()

	if !r.Register("c1") {
		t.Fatal("Register(c1) = false, want true")
	}
	if r.Register("c1") {
		t.Error("second Register(c1) = true, want false")
	}

	s, ok := r.Get("c1")
	if !ok {
		t.Fatal("Get(c1) not found")
	}
	if s.CurrentRoom != "" || s.DisplayName != "" {
		t.Errorf("new session = %+v, want empty room and name", s)
	}
	if s.ConnectedAt.IsZero() {
		t.Error("ConnectedAt not set")
	}

	if !r.Remove("c1") {
		t.Error("Remove(c1) = false")
	}
	if _, ok := r.Get("c1"); ok {
		t.Error("Get(c1) after Remove found a session")
	}
	if r.Remove("c1") {
		t.Error("second Remove(c1) = true, want false")
	}
}

func TestUpdateActivityAndClearRoom(t *testing.T) {
	r := NewRegistry()

	if r.UpdateActivity("missing", "movies", "alice") {
		t.Error("UpdateActivity on unknown connection = true")
	}

	r.Register("c1")
	if !r.UpdateActivity("c1", "movies", "alice") {
		t.Fatal("UpdateActivity(c1) = false")
	}
	s, _ := r.Get("c1")
	if s.CurrentRoom != "movies" || s.DisplayName != "alice" {
		t.Errorf("session = %+v", s)
	}

	r.ClearRoom("c1")
	s, _ = r.Get("c1")
	if s.CurrentRoom != "" {
		t.Errorf("CurrentRoom = %q after ClearRoom", s.CurrentRoom)
	}
	if s.DisplayName != "alice" {
		t.Errorf("DisplayName = %q after ClearRoom, want alice", s.DisplayName)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Register("c1")
	r.UpdateActivity("c1", "movies", "alice")

	s, _ := r.Get("c1")
	s.CurrentRoom = "other"

	again, _ := r.Get("c1")
	if again.CurrentRoom != "movies" {
		t.Errorf("registry state mutated through copy: %q", again.CurrentRoom)
	}
}

func TestInRoomAndNameInRoom(t *testing.T) {
	r := NewRegistry()
	r.Register("a")
	r.Register("b")
	r.Register("c")
	r.UpdateActivity("a", "movies", "alice")
	r.UpdateActivity("b", "movies", "alice")
	r.UpdateActivity("c", "books", "carol")

	if got := len(r.InRoom("movies")); got != 2 {
		t.Errorf("len(InRoom(movies)) = %d, want 2", got)
	}
	if !r.NameInRoom("movies", "alice", "a") {
		t.Error("NameInRoom should find alice on b")
	}
	r.ClearRoom("b")
	if r.NameInRoom("movies", "alice", "a") {
		t.Error("NameInRoom should not find alice after b left")
	}
}

func TestConcurrentRegister(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			r.Register(id)
			r.UpdateActivity(id, "movies", id)
			r.Get(id)
		}(i)
	}
	wg.Wait()

	if got := r.Count(); got != 100 {
		t.Errorf("Count() = %d, want 100", got)
	}
}
