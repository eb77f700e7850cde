package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// ElasticsearchStore keeps each collection in its own index, keyed by
// RecordKey so re-flushed records overwrite instead of duplicating.
type ElasticsearchStore struct {
	client       *elasticsearch.Client
	indexMessage string
	indexRoom    string
}

var esMappings = map[string]string{
	CollectionMessages: `{"mappings":{"properties":{
		"message_id":{"type":"keyword"},
		"room_name":{"type":"keyword"},
		"author_name":{"type":"keyword"},
		"body":{"type":"text"},
		"created_at":{"type":"date"}}}}`,
	CollectionRooms: `{"mappings":{"properties":{
		"room_name":{"type":"keyword"},
		"creator":{"type":"keyword"},
		"topic":{"type":"text"},
		"last_activity":{"type":"date"}}}}`,
}

func NewElasticsearchStore(cfg config.ElasticsearchConfig) (*ElasticsearchStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	prefix := cfg.IndexPrefix
	if prefix == "" {
		prefix = "chat"
	}
	s := &ElasticsearchStore{
		client:       client,
		indexMessage: prefix + "-" + CollectionMessages,
		indexRoom:    prefix + "-" + CollectionRooms,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.ensureIndices(ctx); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("failed to ensure elasticsearch indices (may be created on first write)")
	}

	return s, nil
}

func (s *ElasticsearchStore) index(collection string) string {
	if collection == CollectionRooms {
		return s.indexRoom
	}
	return s.indexMessage
}

func (s *ElasticsearchStore) ensureIndices(ctx context.Context) error {
	for collection, mapping := range esMappings {
		index := s.index(collection)

		res, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx))
		if err != nil {
			return unavailable("index exists", err)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			continue
		}

		res, err = s.client.Indices.Create(index,
			s.client.Indices.Create.WithContext(ctx),
			s.client.Indices.Create.WithBody(bytes.NewReader([]byte(mapping))),
		)
		if err != nil {
			return unavailable("create index", err)
		}
		res.Body.Close()
		if res.IsError() && res.StatusCode != http.StatusBadRequest {
			return fmt.Errorf("failed to create index %s: %s", index, res.String())
		}
	}
	return nil
}

func (s *ElasticsearchStore) Put(ctx context.Context, collection string, record Record) error {
	if err := checkRecord(collection, record); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	res, err := s.client.Index(
		s.index(collection),
		bytes.NewReader(data),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(record.RecordKey()),
	)
	if err != nil {
		return unavailable("index "+collection, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return unavailable("index "+collection, fmt.Errorf("elasticsearch error: %s", res.String()))
	}
	return nil
}

func (s *ElasticsearchStore) HealthCheck(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return unavailable("ping", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return unavailable("ping", fmt.Errorf("elasticsearch error: %s", res.String()))
	}
	return nil
}

func (s *ElasticsearchStore) ListMessages(ctx context.Context, room, before string, limit int) ([]MessageRecord, error) {
	filter := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"room_name": room}},
	}
	if before != "" {
		filter = append(filter, map[string]interface{}{
			"range": map[string]interface{}{"message_id": map[string]interface{}{"lt": before}},
		})
	}

	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"filter": filter},
		},
		"sort": []interface{}{
			map[string]interface{}{"message_id": map[string]interface{}{"order": "desc"}},
		},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexMessage),
		s.client.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, unavailable("search messages", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return []MessageRecord{}, nil
	}
	if res.IsError() {
		return nil, unavailable("search messages", fmt.Errorf("elasticsearch error: %s", res.String()))
	}

	var result esResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	records := make([]MessageRecord, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		var rec MessageRecord
		if err := json.Unmarshal(hit.Source, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *ElasticsearchStore) PurgeRoom(ctx context.Context, room string) error {
	query, err := json.Marshal(map[string]interface{}{
		"query": map[string]interface{}{"term": map[string]interface{}{"room_name": room}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := s.client.DeleteByQuery(
		[]string{s.indexMessage},
		bytes.NewReader(query),
		s.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return unavailable("delete messages", err)
	}
	res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return unavailable("delete messages", fmt.Errorf("elasticsearch error: %s", res.String()))
	}

	res, err = s.client.Delete(s.indexRoom, room, s.client.Delete.WithContext(ctx))
	if err != nil {
		return unavailable("delete room", err)
	}
	res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return unavailable("delete room", fmt.Errorf("elasticsearch error: %s", res.String()))
	}
	return nil
}

func (s *ElasticsearchStore) Close() error {
	return nil
}

// esResponse is the subset of a search response we decode.
type esResponse struct {
	Hits struct {
		Hits []struct {
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}
