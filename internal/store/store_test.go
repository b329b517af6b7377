package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/faceflow/internal/logging"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, ReferenceKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, ReferenceKey, "abcd"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, ReferenceKey, "efgh"); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err := s.Get(ctx, ReferenceKey)
	if err != nil || v != "efgh" {
		t.Fatalf("expected overwritten value efgh, got %q (%v)", v, err)
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "slots.json")

	first := NewFileStore(path)
	if _, err := first.Get(ctx, ReferenceKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on missing file, got %v", err)
	}
	if err := first.Set(ctx, ReferenceKey, "abcd"); err != nil {
		t.Fatalf("set: %v", err)
	}

	second := NewFileStore(path)
	v, err := second.Get(ctx, ReferenceKey)
	if err != nil || v != "abcd" {
		t.Fatalf("expected abcd from a fresh instance, got %q (%v)", v, err)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewFileStore(path).Get(context.Background(), ReferenceKey)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

type stubRedis struct {
	values  map[string]string
	getErrs []error
	setErrs []error
	getKeys []string
	setKeys []string
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	s.getKeys = append(s.getKeys, key)
	if len(s.getErrs) > 0 {
		err := s.getErrs[0]
		s.getErrs = s.getErrs[1:]
		return redis.NewStringResult("", err)
	}
	v, ok := s.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (s *stubRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) > 0 {
		err := s.setErrs[0]
		s.setErrs = s.setErrs[1:]
		return redis.NewStatusResult("", err)
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

type transientRedisError struct{}

func (transientRedisError) Error() string   { return "redis transient" }
func (transientRedisError) Timeout() bool   { return true }
func (transientRedisError) Temporary() bool { return true }

var fastPolicy = RetryPolicy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestRedisStoreRetriesTransientSet(t *testing.T) {
	client := &stubRedis{setErrs: []error{transientRedisError{}}}
	s := newRedisStore(client, "faceflow:", zap.NewNop(), fastPolicy)

	if err := s.Set(context.Background(), ReferenceKey, "abcd"); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if len(client.setKeys) != 2 {
		t.Fatalf("expected 2 set calls, got %d", len(client.setKeys))
	}
	if client.setKeys[0] != "faceflow:referenceImage" || client.setKeys[0] != client.setKeys[1] {
		t.Fatalf("expected retry to target the prefixed key, got %v", client.setKeys)
	}
	if client.values["faceflow:referenceImage"] != "abcd" {
		t.Fatalf("unexpected stored value: %v", client.values)
	}
}

func TestRedisStoreMissingKeyIsNotFound(t *testing.T) {
	client := &stubRedis{}
	s := newRedisStore(client, "", zap.NewNop(), fastPolicy)

	_, err := s.Get(context.Background(), ReferenceKey)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(client.getKeys) != 1 {
		t.Fatalf("expected a single lookup, got %d", len(client.getKeys))
	}
}

func TestRedisStorePermanentErrorIsNotRetried(t *testing.T) {
	client := &stubRedis{getErrs: []error{errors.New("WRONGTYPE"), errors.New("unexpected")}}
	s := newRedisStore(client, "", zap.NewNop(), fastPolicy)

	_, err := s.Get(context.Background(), ReferenceKey)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(client.getKeys) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(client.getKeys))
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "store.redis.get" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
}

func TestRedisStoreGivesUpAfterPolicyAttempts(t *testing.T) {
	client := &stubRedis{getErrs: []error{transientRedisError{}, transientRedisError{}, transientRedisError{}, transientRedisError{}}}
	s := newRedisStore(client, "", zap.NewNop(), fastPolicy)

	_, err := s.Get(context.Background(), ReferenceKey)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(client.getKeys) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(client.getKeys))
	}
}

func TestIsTransientError(t *testing.T) {
	if !isTransientError(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded should be transient")
	}
	if !isTransientError(transientRedisError{}) {
		t.Fatal("timeout error should be transient")
	}
	if isTransientError(errors.New("boom")) {
		t.Fatal("plain error should not be transient")
	}
	if isTransientError(nil) {
		t.Fatal("nil should not be transient")
	}
}
