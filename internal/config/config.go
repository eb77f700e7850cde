package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
)

type Config struct {
	Server       ServerConfig
	GRPC         GRPCConfig
	WebSocket    WebSocketConfig
	Chat         ChatConfig
	Persistence  PersistenceConfig
	Storage      StorageConfig
	Redis        RedisConfig
	Housekeeping HousekeepingConfig
	History      HistoryConfig
	Log          LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type GRPCConfig struct {
	Enabled bool
	Host    string
	Port    int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type ChatConfig struct {
	MaxBodyLength int `mapstructure:"max_body_length"`
}

type PersistenceConfig struct {
	MaxQueueSize     int           `mapstructure:"max_queue_size"`
	InboxSize        int           `mapstructure:"inbox_size"`
	RecoveryInterval time.Duration `mapstructure:"recovery_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

type StorageConfig struct {
	Driver        string
	HTTP          HTTPStoreConfig
	Elasticsearch ElasticsearchConfig
	Cassandra     CassandraConfig
	Database      DatabaseConfig
	Kafka         KafkaConfig
}

type HTTPStoreConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	HealthPath string `mapstructure:"health_path"`
}

type ElasticsearchConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Username    string
	Password    string
	IndexPrefix string `mapstructure:"index_prefix"`
}

type CassandraConfig struct {
	Hosts          []string
	Keyspace       string
	Consistency    string
	Username       string
	Password       string
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Timeout        time.Duration
	NumConns       int `mapstructure:"num_conns"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type KafkaConfig struct {
	Brokers     string
	TopicPrefix string `mapstructure:"topic_prefix"`
	Partitions  int
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type HousekeepingConfig struct {
	Enabled     bool
	Interval    time.Duration
	Retention   time.Duration
	ActivityKey string `mapstructure:"activity_key"`
}

type HistoryConfig struct {
	DefaultLimit int           `mapstructure:"default_limit"`
	MaxLimit     int           `mapstructure:"max_limit"`
	CachePrefix  string        `mapstructure:"cache_prefix"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load(pkgconfig.GetEnv("CONFIG_PATH", "./config"), "config")
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper applies defaults and env bindings to v and decodes it.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	if err := pkgconfig.BindEnv(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Server.ShutdownTimeout = pkgconfig.Duration(v, "server.shutdown_timeout", 30*time.Second)
	cfg.WebSocket.PingInterval = pkgconfig.Duration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = pkgconfig.Duration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = pkgconfig.Duration(v, "websocket.write_wait", 10*time.Second)
	cfg.Persistence.RecoveryInterval = pkgconfig.Duration(v, "persistence.recovery_interval", 30*time.Second)
	cfg.Persistence.RequestTimeout = pkgconfig.Duration(v, "persistence.request_timeout", 5*time.Second)
	cfg.Storage.Cassandra.ConnectTimeout = pkgconfig.Duration(v, "storage.cassandra.connect_timeout", 5*time.Second)
	cfg.Storage.Cassandra.Timeout = pkgconfig.Duration(v, "storage.cassandra.timeout", 5*time.Second)
	cfg.Housekeeping.Interval = pkgconfig.Duration(v, "housekeeping.interval", time.Hour)
	cfg.Housekeeping.Retention = pkgconfig.Duration(v, "housekeeping.retention", 72*time.Hour)
	cfg.History.CacheTTL = pkgconfig.Duration(v, "history.cache_ttl", 30*time.Second)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("grpc.enabled", true)
	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50061)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.allowed_origins", []string{})
	v.SetDefault("chat.max_body_length", 1000)
	v.SetDefault("persistence.max_queue_size", 1000)
	v.SetDefault("persistence.inbox_size", 4096)
	v.SetDefault("persistence.recovery_interval", "30s")
	v.SetDefault("persistence.request_timeout", "5s")
	v.SetDefault("storage.driver", "elasticsearch")
	v.SetDefault("storage.http.base_url", "http://localhost:5002")
	v.SetDefault("storage.http.health_path", "/api/health")
	v.SetDefault("storage.elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("storage.elasticsearch.index_prefix", "chat")
	v.SetDefault("storage.cassandra.hosts", []string{"localhost"})
	v.SetDefault("storage.cassandra.keyspace", "chat")
	v.SetDefault("storage.cassandra.consistency", "LOCAL_QUORUM")
	v.SetDefault("storage.cassandra.connect_timeout", "5s")
	v.SetDefault("storage.cassandra.timeout", "5s")
	v.SetDefault("storage.cassandra.num_conns", 2)
	v.SetDefault("storage.database.driver", "sqlite")
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.user", "postgres")
	v.SetDefault("storage.database.password", "postgres")
	v.SetDefault("storage.database.dbname", "chat")
	v.SetDefault("storage.database.sslmode", "disable")
	v.SetDefault("storage.database.file_path", "./data/chat.db")
	v.SetDefault("storage.database.max_idle_conns", 10)
	v.SetDefault("storage.database.max_open_conns", 50)
	v.SetDefault("storage.database.conn_max_lifetime", 60)
	v.SetDefault("storage.kafka.brokers", "localhost:9092")
	v.SetDefault("storage.kafka.topic_prefix", "chat")
	v.SetDefault("storage.kafka.partitions", 8)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("housekeeping.enabled", false)
	v.SetDefault("housekeeping.interval", "1h")
	v.SetDefault("housekeeping.retention", "72h")
	v.SetDefault("housekeeping.activity_key", "chat:rooms:activity")
	v.SetDefault("history.default_limit", 50)
	v.SetDefault("history.max_limit", 100)
	v.SetDefault("history.cache_prefix", "chat:history")
	v.SetDefault("history.cache_ttl", "30s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

var envBindings = map[string]string{
	"server.port":                     "PORT",
	"grpc.port":                       "GRPC_PORT",
	"chat.max_body_length":            "CHAT_MAX_BODY_LENGTH",
	"persistence.max_queue_size":      "PERSISTENCE_MAX_QUEUE_SIZE",
	"persistence.recovery_interval":   "PERSISTENCE_RECOVERY_INTERVAL",
	"storage.driver":                  "STORAGE_DRIVER",
	"storage.http.base_url":           "STORAGE_URL",
	"storage.elasticsearch.addresses": "ES_ADDRESSES",
	"storage.elasticsearch.username":  "ES_USERNAME",
	"storage.elasticsearch.password":  "ES_PASSWORD",
	"storage.cassandra.hosts":         "CASSANDRA_HOSTS",
	"storage.cassandra.keyspace":      "CASSANDRA_KEYSPACE",
	"storage.database.driver":         "DB_DRIVER",
	"storage.database.host":           "DB_HOST",
	"storage.database.port":           "DB_PORT",
	"storage.database.user":           "DB_USER",
	"storage.database.password":       "DB_PASSWORD",
	"storage.database.dbname":         "DB_NAME",
	"storage.database.file_path":      "DB_FILE_PATH",
	"storage.kafka.brokers":           "KAFKA_BROKERS",
	"redis.enabled":                   "REDIS_ENABLED",
	"redis.address":                   "REDIS_ADDRESS",
	"redis.password":                  "REDIS_PASSWORD",
	"housekeeping.enabled":            "HOUSEKEEPING_ENABLED",
	"log.level":                       "LOG_LEVEL",
}
