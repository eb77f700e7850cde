package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-chat/pkg/database"
)

// GormStore persists records to a SQL database. Message writes ignore
// duplicate keys; room writes are upserts.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := database.AutoMigrate(db, &MessageRecord{}, &RoomRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate storage tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Put(ctx context.Context, collection string, record Record) error {
	if err := checkRecord(collection, record); err != nil {
		return err
	}

	var result *gorm.DB
	switch r := record.(type) {
	case MessageRecord:
		result = s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&r)
	case RoomRecord:
		result = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&r)
	}

	if result.Error != nil {
		return unavailable("insert "+collection, result.Error)
	}
	return nil
}

func (s *GormStore) HealthCheck(ctx context.Context) error {
	if err := database.Ping(ctx, s.db); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *GormStore) ListMessages(ctx context.Context, room, before string, limit int) ([]MessageRecord, error) {
	query := s.db.WithContext(ctx).Where("room_name = ?", room)
	if before != "" {
		query = query.Where("message_id < ?", before)
	}

	var records []MessageRecord
	if err := query.Order("message_id DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, unavailable("list messages", err)
	}
	return records, nil
}

func (s *GormStore) PurgeRoom(ctx context.Context, room string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_name = ?", room).Delete(&MessageRecord{}).Error; err != nil {
			return unavailable("delete messages", err)
		}
		if err := tx.Where("room_name = ?", room).Delete(&RoomRecord{}).Error; err != nil {
			return unavailable("delete room", err)
		}
		return nil
	})
}

func (s *GormStore) Close() error {
	return database.Close(s.db)
}
