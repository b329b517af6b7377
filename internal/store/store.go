package store

import (
	"context"
	"errors"
)

// ReferenceKey is the slot holding the last accepted reference image.
const ReferenceKey = "referenceImage"

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// KeyValueStore is the durable text slot contract the capture flow depends on.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}
