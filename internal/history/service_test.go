package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/store"
)

type fakeReader struct {
	mu      sync.Mutex
	records []store.MessageRecord // newest first
	calls   int
	err     error
}

func (r *fakeReader) ListMessages(_ context.Context, room, before string, limit int) ([]store.MessageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	var out []store.MessageRecord
	for _, rec := range r.records {
		if rec.RoomName != room {
			continue
		}
		if before != "" && rec.MessageID >= before {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeReader) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeCache struct {
	mu    sync.Mutex
	pages map[string]*Page
	set   chan string
}

func newFakeCache() *fakeCache {
	return &fakeCache{pages: map[string]*Page{}, set: make(chan string, 8)}
}

func (c *fakeCache) Get(_ context.Context, key string) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pages[key]; ok {
		return p, nil
	}
	return nil, ErrCacheMiss
}

func (c *fakeCache) Set(_ context.Context, key string, page *Page, _ time.Duration) error {
	c.mu.Lock()
	c.pages[key] = page
	c.mu.Unlock()
	c.set <- key
	return nil
}

func (c *fakeCache) Delete(_ context.Context, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.pages {
		delete(c.pages, k)
	}
	return nil
}

func seed(n int) *fakeReader {
	r := &fakeReader{}
	base := time.UnixMilli(1700000000000)
	for i := n; i >= 1; i-- {
		r.records = append(r.records, store.MessageRecord{
			MessageID:  fmt.Sprintf("%013d-%06d", base.UnixMilli(), i),
			RoomName:   "movies",
			AuthorName: "alice",
			Body:       fmt.Sprintf("msg %d", i),
			CreatedAt:  base,
		})
	}
	return r
}

func TestGetMessagesPaging(t *testing.T) {
	reader := seed(5)
	svc := NewService(reader, nil, Config{})
	ctx := context.Background()

	page, err := svc.GetMessages(ctx, "Movies", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 2 || !page.HasMore {
		t.Fatalf("first page = %d messages, has_more=%v", len(page.Messages), page.HasMore)
	}
	if page.Messages[0].Body != "msg 5" || page.Messages[1].Body != "msg 4" {
		t.Fatalf("unexpected order: %s, %s", page.Messages[0].Body, page.Messages[1].Body)
	}
	if page.NextCursor != page.Messages[1].MessageID {
		t.Fatalf("next cursor = %q", page.NextCursor)
	}

	page, err = svc.GetMessages(ctx, "movies", page.NextCursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if page.Messages[0].Body != "msg 3" || !page.HasMore {
		t.Fatalf("second page starts with %s, has_more=%v", page.Messages[0].Body, page.HasMore)
	}

	page, err = svc.GetMessages(ctx, "movies", page.NextCursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 1 || page.HasMore || page.NextCursor != "" {
		t.Fatalf("last page = %d messages, has_more=%v, cursor=%q", len(page.Messages), page.HasMore, page.NextCursor)
	}
}

func TestGetMessagesClampsLimit(t *testing.T) {
	reader := seed(20)
	svc := NewService(reader, nil, Config{MaxLimit: 10})

	page, err := svc.GetMessages(context.Background(), "movies", "", 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 10 || !page.HasMore {
		t.Fatalf("got %d messages, has_more=%v", len(page.Messages), page.HasMore)
	}

	page, err = svc.GetMessages(context.Background(), "movies", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 10 {
		t.Fatalf("default limit returned %d", len(page.Messages))
	}
}

func TestCursorPagesAreCached(t *testing.T) {
	reader := seed(5)
	cache := newFakeCache()
	svc := NewService(reader, cache, Config{CacheTTL: time.Minute})
	ctx := context.Background()

	first, err := svc.GetMessages(ctx, "movies", "", 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetMessages(ctx, "movies", first.NextCursor, 2); err != nil {
		t.Fatal(err)
	}
	select {
	case <-cache.set:
	case <-time.After(time.Second):
		t.Fatal("page was not cached")
	}

	calls := reader.callCount()
	page, err := svc.GetMessages(ctx, "movies", first.NextCursor, 2)
	if err != nil {
		t.Fatal(err)
	}
	if reader.callCount() != calls {
		t.Fatal("cached page read from storage")
	}
	if page.Messages[0].Body != "msg 3" {
		t.Fatalf("cached page starts with %s", page.Messages[0].Body)
	}

	// Latest page is never served from cache.
	if _, err := svc.GetMessages(ctx, "movies", "", 2); err != nil {
		t.Fatal(err)
	}
	if reader.callCount() != calls+1 {
		t.Fatal("latest page not read from storage")
	}
}

func TestGetMessagesReaderError(t *testing.T) {
	reader := &fakeReader{err: store.ErrUnavailable}
	svc := NewService(reader, nil, Config{})

	if _, err := svc.GetMessages(context.Background(), "movies", "", 10); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
}
