package persistence

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// Store is the key-value Persistence Adapter. Values are opaque blobs.
type Store interface {
	// Get returns the value for key or ErrNotFound when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close closes the store and releases resources
	Close() error
}

// Purger is implemented by stores whose expired entries need explicit removal.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
	StoreTypeMongo  StoreType = "mongo"
)

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type" env:"TYPE"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir" env:"BASE_DIR"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisStoreConfig `json:"redis" yaml:"redis" env:"REDIS"`

	// SQL configuration (only used when Type is "sql")
	SQL SQLStoreConfig `json:"sql" yaml:"sql" env:"SQL"`

	// Mongo configuration (only used when Type is "mongo")
	Mongo MongoStoreConfig `json:"mongo" yaml:"mongo" env:"MONGO"`

	// WriteTimeout bounds every store call issued by Writer
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	// AsyncWorkers and AsyncQueueSize size the background write pool
	AsyncWorkers   int `json:"async_workers" yaml:"async_workers" env:"ASYNC_WORKERS"`
	AsyncQueueSize int `json:"async_queue_size" yaml:"async_queue_size" env:"ASYNC_QUEUE_SIZE"`
}

// RedisStoreConfig contains Redis-specific configuration
type RedisStoreConfig struct {
	Addr     string `json:"addr" yaml:"addr" env:"ADDR"`
	Password string `json:"password" yaml:"password" env:"PASSWORD"`
	DB       int    `json:"db" yaml:"db" env:"DB"`
	PoolSize int    `json:"pool_size" yaml:"pool_size" env:"POOL_SIZE"`
	TLS      bool   `json:"tls" yaml:"tls" env:"TLS"`
}

// SQLStoreConfig contains gorm-specific configuration
type SQLStoreConfig struct {
	// Driver is one of postgres, mysql, sqlite
	Driver string `json:"driver" yaml:"driver" env:"DRIVER"`
	DSN    string `json:"dsn" yaml:"dsn" env:"DSN"`
	Table  string `json:"table" yaml:"table" env:"TABLE"`

	// AutoMigrate creates the table through gorm instead of `voiceflow migrate`
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate" env:"AUTO_MIGRATE"`

	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// MongoStoreConfig contains MongoDB-specific configuration
type MongoStoreConfig struct {
	URI        string `json:"uri" yaml:"uri" env:"URI"`
	Database   string `json:"database" yaml:"database" env:"DATABASE"`
	Collection string `json:"collection" yaml:"collection" env:"COLLECTION"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/sessions",
		Redis: RedisStoreConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		SQL: SQLStoreConfig{
			Driver:          "sqlite",
			DSN:             "file:voiceflow.db",
			Table:           "voiceflow_sessions",
			AutoMigrate:     true,
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Mongo: MongoStoreConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "voiceflow",
			Collection: "sessions",
		},
		WriteTimeout:   5 * time.Second,
		AsyncWorkers:   4,
		AsyncQueueSize: 512,
	}
}

// expiresAt converts a ttl into an absolute deadline; nil means never.
func expiresAt(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := now.Add(ttl)
	return &t
}

func isExpired(deadline *time.Time, now time.Time) bool {
	return deadline != nil && !deadline.After(now)
}
