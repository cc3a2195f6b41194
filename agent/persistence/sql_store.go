package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/voiceflow/internal/database"
)

// sessionBlob is one row of the session table.
type sessionBlob struct {
	Key       string     `gorm:"column:session_key;primaryKey;size:255"`
	Data      []byte     `gorm:"column:data;not null"`
	ExpiresAt *time.Time `gorm:"column:expires_at;index"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
}

const sqlWriteAttempts = 3

// SQLStore persists snapshots in a relational table through gorm.
type SQLStore struct {
	db    *database.Manager
	table string
	now   func() time.Time
}

// NewSQLStore opens the configured database and optionally migrates the table.
func NewSQLStore(cfg SQLStoreConfig, logger *zap.Logger) (*SQLStore, error) {
	mgr, err := database.Open(database.Config{
		Driver:          cfg.Driver,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := NewSQLStoreWithManager(mgr, cfg.Table, cfg.AutoMigrate)
	if err != nil {
		mgr.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStoreWithManager builds a store on an already opened database.
func NewSQLStoreWithManager(mgr *database.Manager, table string, autoMigrate bool) (*SQLStore, error) {
	if table == "" {
		table = "voiceflow_sessions"
	}
	s := &SQLStore{db: mgr, table: table, now: time.Now}
	if autoMigrate {
		if err := mgr.DB().Table(table).AutoMigrate(&sessionBlob{}); err != nil {
			return nil, fmt.Errorf("failed to migrate %s: %w", table, err)
		}
	}
	return s, nil
}

func (s *SQLStore) tx(ctx context.Context) *gorm.DB {
	return s.db.DB().WithContext(ctx).Table(s.table)
}

// Get returns the value for key unless it has expired.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var row sessionBlob
	err := s.tx(ctx).Where("session_key = ?", key).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sql get: %w", err)
	}
	if isExpired(row.ExpiresAt, s.now()) {
		return nil, ErrNotFound
	}
	return row.Data, nil
}

// Set upserts the row for key.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidInput
	}
	now := s.now()
	row := sessionBlob{
		Key:       key,
		Data:      value,
		ExpiresAt: expiresAt(now, ttl),
		UpdatedAt: now,
	}
	err := s.db.WithRetry(ctx, sqlWriteAttempts, func(tx *gorm.DB) error {
		return tx.Table(s.table).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"data", "expires_at", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("sql set: %w", err)
	}
	return nil
}

// Delete removes the row for key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if err := s.tx(ctx).Where("session_key = ?", key).Delete(&sessionBlob{}).Error; err != nil {
		return fmt.Errorf("sql delete: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired rows.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.tx(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).Delete(&sessionBlob{})
	if res.Error != nil {
		return 0, fmt.Errorf("sql purge: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ping checks if the store is healthy
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
