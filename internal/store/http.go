package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPStore talks to a REST document service:
//
//	POST   {base}/api/{collection}          write a record
//	GET    {base}{healthPath}               health check
//	GET    {base}/api/messages?room_name=…  page messages, newest first
//	DELETE {base}/api/rooms/{room}          purge a room and its messages
//
// Any non-2xx response counts as a failure.
type HTTPStore struct {
	baseURL    string
	healthPath string
	client     *http.Client
}

// NewHTTPStore creates an HTTPStore. A nil client uses a default client;
// per-call deadlines come from the context.
func NewHTTPStore(baseURL, healthPath string, client *http.Client) *HTTPStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if healthPath == "" {
		healthPath = "/api/health"
	}
	return &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		healthPath: healthPath,
		client:     client,
	}
}

func (s *HTTPStore) Put(ctx context.Context, collection string, record Record) error {
	if err := checkRecord(collection, record); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/"+collection, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return s.do(req, "put "+collection, nil)
}

func (s *HTTPStore) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+s.healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return s.do(req, "health", nil)
}

func (s *HTTPStore) ListMessages(ctx context.Context, room, before string, limit int) ([]MessageRecord, error) {
	q := url.Values{}
	q.Set("room_name", room)
	q.Set("limit", strconv.Itoa(limit))
	if before != "" {
		q.Set("before", before)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/messages?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	var records []MessageRecord
	if err := s.do(req, "list messages", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *HTTPStore) PurgeRoom(ctx context.Context, room string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/api/rooms/"+url.PathEscape(room), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return s.do(req, "purge room", nil)
}

func (s *HTTPStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *HTTPStore) do(req *http.Request, op string, out interface{}) error {
	res, err := s.client.Do(req)
	if err != nil {
		return unavailable(op, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return unavailable(op, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body))))
	}

	if out == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
