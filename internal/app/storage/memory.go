package storage

import (
	"context"
	"sync"
	"time"

	"github.com/lumaline/payrecon/internal/app/entity"
)

type memEntry struct {
	mu  sync.Mutex
	rec entity.ReconciliationRecord
	set bool
}

// RepoMemory keeps records in process memory with a lock per key. It is the
// default store when no database is configured; records do not survive a
// restart.
type RepoMemory struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

func NewRepoMemory() *RepoMemory {
	return &RepoMemory{entries: make(map[string]*memEntry)}
}

func (r *RepoMemory) entry(orderID string) *memEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[orderID]
	if !ok {
		e = &memEntry{rec: entity.ReconciliationRecord{OrderID: orderID, State: entity.StateReceived}}
		r.entries[orderID] = e
	}
	return e
}

func (r *RepoMemory) Upsert(ctx context.Context, orderID string, fn Mutator) (entity.ReconciliationRecord, error) {
	e := r.entry(orderID)
	e.mu.Lock()
	defer e.mu.Unlock()

	work := cloneRecord(e.rec)
	if err := fn(&work); err != nil {
		return entity.ReconciliationRecord{}, err
	}
	work.OrderID = orderID
	work.UpdatedAt = time.Now()
	e.rec = work
	e.set = true
	return cloneRecord(work), nil
}

func (r *RepoMemory) Get(ctx context.Context, orderID string) (entity.ReconciliationRecord, error) {
	r.mu.Lock()
	e, ok := r.entries[orderID]
	r.mu.Unlock()
	if !ok {
		return entity.ReconciliationRecord{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		return entity.ReconciliationRecord{}, ErrNotFound
	}
	return cloneRecord(e.rec), nil
}

func (r *RepoMemory) Delete(ctx context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, orderID)
	return nil
}

func (r *RepoMemory) Expire(ctx context.Context, horizon time.Duration) (int, error) {
	cutoff := time.Now().Add(-horizon)
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int
	for id, e := range r.entries {
		e.mu.Lock()
		expired := e.set && entity.IsTerminal(e.rec.State) && e.rec.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (r *RepoMemory) Close() {}

func cloneRecord(rec entity.ReconciliationRecord) entity.ReconciliationRecord {
	out := rec
	if rec.Confirmation != nil {
		c := *rec.Confirmation
		out.Confirmation = &c
	}
	return out
}
