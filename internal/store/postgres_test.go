package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/faceflow/internal/logging"
)

var (
	selectSlotSQL = `SELECT \* FROM "reference_slots" WHERE slot_key = \$1 ORDER BY "reference_slots"."slot_key" LIMIT`
	upsertSlotSQL = `INSERT INTO "reference_slots" \("slot_key","value","updated_at"\) VALUES \(\$1,\$2,\$3\) ` +
		regexp.QuoteMeta(`ON CONFLICT ("slot_key") DO UPDATE SET "value"="excluded"."value","updated_at"="excluded"."updated_at"`)
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return newPostgresStore(db, zap.NewNop(), fastPolicy), mock
}

func slotRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"slot_key", "value", "updated_at"})
}

func TestPostgresStoreGet(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(selectSlotSQL).
		WillReturnRows(slotRows().AddRow(ReferenceKey, "abcd", time.Now()))

	v, err := s.Get(context.Background(), ReferenceKey)
	if err != nil || v != "abcd" {
		t.Fatalf("expected abcd, got %q (%v)", v, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreMissingRowIsNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(selectSlotSQL).WillReturnRows(slotRows())

	_, err := s.Get(context.Background(), ReferenceKey)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var opErr *logging.OperationError
	if errors.As(err, &opErr) {
		t.Fatalf("expected bare ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreRetriesTransientGet(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(selectSlotSQL).WillReturnError(transientRedisError{})
	mock.ExpectQuery(selectSlotSQL).
		WillReturnRows(slotRows().AddRow(ReferenceKey, "abcd", time.Now()))

	v, err := s.Get(context.Background(), ReferenceKey)
	if err != nil || v != "abcd" {
		t.Fatalf("expected abcd after retry, got %q (%v)", v, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreSetUpserts(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(upsertSlotSQL).
		WithArgs(ReferenceKey, "abcd", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.Set(context.Background(), ReferenceKey, "abcd"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresStorePermanentSetErrorIsNotRetried(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(upsertSlotSQL).WillReturnError(errors.New("permission denied for table reference_slots"))
	mock.ExpectRollback()

	err := s.Set(context.Background(), ReferenceKey, "abcd")
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %v", err)
	}
	if opErr.Operation != "store.postgres.set" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresMigrationsAreEmbedded(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	provider, err := s.migrationProvider()
	if err != nil {
		t.Fatalf("migration provider: %v", err)
	}
	sources := provider.ListSources()
	if len(sources) != 1 || sources[0].Version != 1 {
		t.Fatalf("expected the single reference_slots migration, got %+v", sources)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("listing migrations touched the database: %v", err)
	}
}
