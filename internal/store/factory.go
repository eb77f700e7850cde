package store

import (
	"fmt"

	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/pkg/database"
)

// Drivers
const (
	DriverHTTP          = "http"
	DriverElasticsearch = "elasticsearch"
	DriverCassandra     = "cassandra"
	DriverDatabase      = "database"
	DriverKafka         = "kafka"
)

// New builds the storage client selected by cfg.Driver.
func New(cfg config.StorageConfig, logLevel string) (Client, error) {
	switch cfg.Driver {
	case DriverHTTP:
		return NewHTTPStore(cfg.HTTP.BaseURL, cfg.HTTP.HealthPath, nil), nil
	case DriverElasticsearch, "":
		return NewElasticsearchStore(cfg.Elasticsearch)
	case DriverCassandra:
		return NewCassandraStore(cfg.Cassandra)
	case DriverDatabase:
		db, err := database.New(&database.Config{
			Driver:          cfg.Database.Driver,
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			DBName:          cfg.Database.DBName,
			SSLMode:         cfg.Database.SSLMode,
			FilePath:        cfg.Database.FilePath,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			LogLevel:        logLevel,
		})
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	case DriverKafka:
		return NewKafkaStore(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
