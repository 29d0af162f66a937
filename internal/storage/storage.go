package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no record exists under the key.
var ErrNotFound = errors.New("record not found")

// Storage persists opaque JSON records keyed by shopper session and record name.
// Remove is idempotent.
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Remove(ctx context.Context, key string) error
}

// Well-known record names.
const (
	CartRecord         = "cart"
	CheckoutDataRecord = "checkoutData"
	CheckoutFlowRecord = "checkoutFlow"
)

// Key scopes a record name to one shopper session.
func Key(sessionID, name string) string {
	return sessionID + ":" + name
}
