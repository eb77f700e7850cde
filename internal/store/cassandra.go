package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/weiawesome/wes-io-chat/internal/config"
)

// CassandraStore writes messages partitioned by room and clustered by
// message id descending, so history pages are a single partition scan.
//
//	CREATE TABLE messages_by_room (
//	    room_name text, message_id text, author_name text, body text, created_at timestamp,
//	    PRIMARY KEY ((room_name), message_id)
//	) WITH CLUSTERING ORDER BY (message_id DESC);
//
//	CREATE TABLE rooms (
//	    room_name text PRIMARY KEY, creator text, topic text, last_activity timestamp
//	);
type CassandraStore struct {
	session *gocql.Session
}

func NewCassandraStore(cfg config.CassandraConfig) (*CassandraStore, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = parseConsistency(cfg.Consistency)
	cluster.ConnectTimeout = cfg.ConnectTimeout
	cluster.Timeout = cfg.Timeout
	if cfg.NumConns > 0 {
		cluster.NumConns = cfg.NumConns
	}

	if cfg.Username != "" && cfg.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}

	// Retries stay short; the gateway owns long-term retry.
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 2,
		Min:        100 * time.Millisecond,
		Max:        time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create cassandra session: %w", err)
	}

	return &CassandraStore{session: session}, nil
}

func (s *CassandraStore) Put(ctx context.Context, collection string, record Record) error {
	if err := checkRecord(collection, record); err != nil {
		return err
	}

	var q *gocql.Query
	switch r := record.(type) {
	case MessageRecord:
		q = s.session.Query(`
			INSERT INTO messages_by_room (
				room_name, message_id, author_name, body, created_at
			) VALUES (?, ?, ?, ?, ?)`,
			r.RoomName, r.MessageID, r.AuthorName, r.Body, r.CreatedAt)
	case RoomRecord:
		q = s.session.Query(`
			INSERT INTO rooms (room_name, creator, topic, last_activity)
			VALUES (?, ?, ?, ?)`,
			r.RoomName, r.Creator, r.Topic, r.LastActivity)
	}

	if err := q.WithContext(ctx).Exec(); err != nil {
		return unavailable("insert "+collection, err)
	}
	return nil
}

func (s *CassandraStore) HealthCheck(ctx context.Context) error {
	if err := s.session.Query(`SELECT release_version FROM system.local`).WithContext(ctx).Exec(); err != nil {
		return unavailable("health", err)
	}
	return nil
}

func (s *CassandraStore) ListMessages(ctx context.Context, room, before string, limit int) ([]MessageRecord, error) {
	var iter *gocql.Iter
	if before == "" {
		iter = s.session.Query(`
			SELECT message_id, room_name, author_name, body, created_at
			FROM messages_by_room
			WHERE room_name = ?
			ORDER BY message_id DESC
			LIMIT ?`, room, limit).WithContext(ctx).Iter()
	} else {
		iter = s.session.Query(`
			SELECT message_id, room_name, author_name, body, created_at
			FROM messages_by_room
			WHERE room_name = ? AND message_id < ?
			ORDER BY message_id DESC
			LIMIT ?`, room, before, limit).WithContext(ctx).Iter()
	}

	records := make([]MessageRecord, 0, limit)
	var rec MessageRecord
	for iter.Scan(&rec.MessageID, &rec.RoomName, &rec.AuthorName, &rec.Body, &rec.CreatedAt) {
		records = append(records, rec)
		rec = MessageRecord{}
	}

	if err := iter.Close(); err != nil {
		return nil, unavailable("list messages", err)
	}
	return records, nil
}

func (s *CassandraStore) PurgeRoom(ctx context.Context, room string) error {
	if err := s.session.Query(`DELETE FROM messages_by_room WHERE room_name = ?`, room).WithContext(ctx).Exec(); err != nil {
		return unavailable("delete messages", err)
	}
	if err := s.session.Query(`DELETE FROM rooms WHERE room_name = ?`, room).WithContext(ctx).Exec(); err != nil {
		return unavailable("delete room", err)
	}
	return nil
}

func (s *CassandraStore) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	return nil
}

// parseConsistency converts a string consistency level to gocql.Consistency.
func parseConsistency(s string) gocql.Consistency {
	switch strings.ToUpper(s) {
	case "ANY":
		return gocql.Any
	case "ONE":
		return gocql.One
	case "TWO":
		return gocql.Two
	case "THREE":
		return gocql.Three
	case "QUORUM":
		return gocql.Quorum
	case "ALL":
		return gocql.All
	case "EACH_QUORUM":
		return gocql.EachQuorum
	case "LOCAL_ONE":
		return gocql.LocalOne
	default:
		return gocql.LocalQuorum
	}
}
