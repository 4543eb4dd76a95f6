package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lumaline/payrecon/internal/app/entity"
)

// ErrUnavailable marks a storage failure the caller may retry. The engine
// never assumes an upsert succeeded when it is returned.
var ErrUnavailable = errors.New("correlation store unavailable")

// ErrNotFound is returned by Get for an unknown order.
var ErrNotFound = errors.New("record not found")

// Mutator transforms a record in place. It runs under the store's per-key
// lock; returning an error aborts the upsert without persisting anything.
type Mutator func(rec *entity.ReconciliationRecord) error

// Store is the correlation store: the sole durable holder of reconciliation
// records. Upsert applies the mutator atomically per key; no two mutations
// for the same key interleave. There is no cross-key ordering guarantee.
type Store interface {
	Upsert(ctx context.Context, orderID string, fn Mutator) (entity.ReconciliationRecord, error)
	Get(ctx context.Context, orderID string) (entity.ReconciliationRecord, error)
	Delete(ctx context.Context, orderID string) error
	// Expire removes terminal records whose last update is older than the
	// horizon, returning how many were removed.
	Expire(ctx context.Context, horizon time.Duration) (int, error)
	Close()
}
