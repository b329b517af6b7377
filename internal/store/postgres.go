package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ReferenceSlot is one persisted key of the durable store.
type ReferenceSlot struct {
	Key       string    `gorm:"column:slot_key;primaryKey;size:64"`
	Value     string    `gorm:"column:value;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName overrides the default table name.
func (ReferenceSlot) TableName() string {
	return "reference_slots"
}

// PostgresStore is a KeyValueStore backed by a gorm connection.
type PostgresStore struct {
	db     *gorm.DB
	logger *zap.Logger
	policy RetryPolicy
}

// NewPostgresStore creates a new store instance.
func NewPostgresStore(db *gorm.DB, logger *zap.Logger) *PostgresStore {
	return newPostgresStore(db, logger, DefaultRetryPolicy)
}

func newPostgresStore(db *gorm.DB, logger *zap.Logger, policy RetryPolicy) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.Named("postgres_store"), policy: policy}
}

// Migrate applies the embedded goose migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	provider, err := s.migrationProvider()
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Info("migration applied", zap.Int64("version", r.Source.Version), zap.Duration("duration", r.Duration))
	}
	return nil
}

func (s *PostgresStore) migrationProvider() (*goose.Provider, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		return nil, fmt.Errorf("build migration provider: %w", err)
	}
	return provider, nil
}

// Get loads the slot with the given key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var slot ReferenceSlot
	err := withRetry(ctx, s.logger, s.policy, "store.postgres.get", func(ctx context.Context) error {
		err := s.db.WithContext(ctx).First(&slot, "slot_key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return slot.Value, nil
}

// Set upserts the slot, replacing value and timestamp.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	slot := ReferenceSlot{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return withRetry(ctx, s.logger, s.policy, "store.postgres.set", func(ctx context.Context) error {
		return s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "slot_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&slot).Error
	})
}
