package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// KafkaStore publishes records to one topic per collection, keyed by room
// name so a room's records stay ordered within a partition. Put waits for
// the delivery report so a broker outage is reported to the caller.
type KafkaStore struct {
	producer *kafka.Producer
	topics   map[string]string
	doneCh   chan struct{}
}

func NewKafkaStore(cfg config.KafkaConfig) (*KafkaStore, error) {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "chat"
	}
	topics := map[string]string{
		CollectionMessages: prefix + "." + CollectionMessages,
		CollectionRooms:    prefix + "." + CollectionRooms,
	}

	for _, topic := range topics {
		if err := ensureTopic(cfg.Brokers, topic, cfg.Partitions); err != nil {
			l := log.L()
			l.Warn().Err(err).Str("topic", topic).Msg("failed to ensure topic (may already exist)")
		}
	}

	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":   cfg.Brokers,
		"acks":                "all",
		"linger.ms":           5,
		"compression.type":    "snappy",
		"delivery.timeout.ms": 10000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	s := &KafkaStore{
		producer: p,
		topics:   topics,
		doneCh:   make(chan struct{}),
	}

	go s.eventHandler()

	return s, nil
}

func ensureTopic(brokers, topic string, partitions int) error {
	if partitions <= 0 {
		partitions = 1
	}

	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{
		{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		},
	})
	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Error.Code() != kafka.ErrNoError && result.Error.Code() != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", result.Topic, result.Error)
		}
	}

	return nil
}

// eventHandler drains producer-level events. Per-message reports go to the
// delivery channel passed to Produce.
func (s *KafkaStore) eventHandler() {
	for e := range s.producer.Events() {
		if ev, ok := e.(kafka.Error); ok {
			l := log.L()
			l.Warn().Err(ev).Msg("kafka producer error")
		}
	}
	close(s.doneCh)
}

func partitionKey(record Record) string {
	switch r := record.(type) {
	case MessageRecord:
		return r.RoomName
	case RoomRecord:
		return r.RoomName
	}
	return record.RecordKey()
}

func (s *KafkaStore) Put(ctx context.Context, collection string, record Record) error {
	if err := checkRecord(collection, record); err != nil {
		return err
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	topic := s.topics[collection]
	delivery := make(chan kafka.Event, 1)

	err = s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(partitionKey(record)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "record_key", Value: []byte(record.RecordKey())},
		},
	}, delivery)
	if err != nil {
		return unavailable("produce "+collection, err)
	}

	select {
	case e := <-delivery:
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return unavailable("produce "+collection, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return unavailable("produce "+collection, ctx.Err())
	}
}

func (s *KafkaStore) HealthCheck(ctx context.Context) error {
	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return unavailable("metadata", context.DeadlineExceeded)
	}

	topic := s.topics[CollectionMessages]
	if _, err := s.producer.GetMetadata(&topic, false, int(timeout.Milliseconds())); err != nil {
		return unavailable("metadata", err)
	}
	return nil
}

func (s *KafkaStore) Close() error {
	s.producer.Flush(5000)
	s.producer.Close()
	<-s.doneCh
	return nil
}
