package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/store"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Page is one page of room history, newest message first. NextCursor is
// the before value for the following page.
type Page struct {
	RoomName   string                   `json:"room_name"`
	Messages   []*domain.ChatMessageOut `json:"messages"`
	NextCursor string                   `json:"next_cursor,omitempty"`
	HasMore    bool                     `json:"has_more"`
}

type Config struct {
	MaxLimit int
	CacheTTL time.Duration
}

type Service interface {
	GetMessages(ctx context.Context, room, before string, limit int) (*Page, error)
	// Forget drops cached pages of room.
	Forget(ctx context.Context, room string)
}

type keyer interface {
	Key(room, before string, limit int) string
}

type service struct {
	reader store.HistoryReader
	cache  Cache
	cfg    Config
	sf     singleflight.Group
}

// NewService pages history from reader. cache may be nil.
func NewService(reader store.HistoryReader, cache Cache, cfg Config) Service {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	return &service{reader: reader, cache: cache, cfg: cfg}
}

func (s *service) GetMessages(ctx context.Context, room, before string, limit int) (*Page, error) {
	room = domain.NormalizeRoomName(room)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	// The newest page changes with every message; always read it fresh.
	if before == "" || s.cache == nil {
		return s.fetch(ctx, room, before, limit)
	}

	key := s.key(room, before, limit)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return s.fetchWithCache(ctx, room, before, limit, key)
	})
	if err != nil {
		return nil, err
	}

	page, ok := result.(*Page)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return page, nil
}

func (s *service) Forget(ctx context.Context, room string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, domain.NormalizeRoomName(room)); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoom, room).Msg("cache delete error")
	}
}

func (s *service) key(room, before string, limit int) string {
	if k, ok := s.cache.(keyer); ok {
		return k.Key(room, before, limit)
	}
	return fmt.Sprintf("%s:%s:%d", room, before, limit)
}

func (s *service) fetchWithCache(ctx context.Context, room, before string, limit int, key string) (*Page, error) {
	cached, err := s.cache.Get(ctx, key)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("cache get error")
	}

	page, err := s.fetch(ctx, room, before, limit)
	if err != nil {
		return nil, err
	}

	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, key, page, s.cfg.CacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("cache set error")
		}
	}()

	return page, nil
}

// fetch reads limit+1 records to learn whether an older page exists.
func (s *service) fetch(ctx context.Context, room, before string, limit int) (*Page, error) {
	records, err := s.reader.ListMessages(ctx, room, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &Page{RoomName: room, Messages: make([]*domain.ChatMessageOut, 0, limit)}
	if len(records) > limit {
		records = records[:limit]
		page.HasMore = true
	}
	for _, r := range records {
		m := domain.ChatMessage{
			MessageID:  r.MessageID,
			RoomName:   r.RoomName,
			AuthorName: r.AuthorName,
			Body:       r.Body,
			CreatedAt:  r.CreatedAt,
		}
		page.Messages = append(page.Messages, m.Out())
	}
	if page.HasMore {
		page.NextCursor = page.Messages[len(page.Messages)-1].MessageID
	}
	return page, nil
}
