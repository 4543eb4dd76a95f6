package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumaline/payrecon/internal/app/entity"
)

func TestMemoryUpsertCreatesAndGets(t *testing.T) {
	repo := NewRepoMemory()
	ctx := context.Background()

	rec, err := repo.Upsert(ctx, "A-1", func(rec *entity.ReconciliationRecord) error {
		rec.State = entity.StateAwaiting
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "A-1", rec.OrderID)
	assert.Equal(t, entity.StateAwaiting, rec.State)

	got, err := repo.Get(ctx, "A-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StateAwaiting, got.State)
}

func TestMemoryGetUnknown(t *testing.T) {
	repo := NewRepoMemory()
	_, err := repo.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryMutatorErrorAbortsUpsert(t *testing.T) {
	repo := NewRepoMemory()
	ctx := context.Background()

	boom := errors.New("refused")
	_, err := repo.Upsert(ctx, "A-2", func(rec *entity.ReconciliationRecord) error {
		rec.State = entity.StateConfirmed
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	_, err = repo.Get(ctx, "A-2")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryConcurrentUpsertsAreAtomicPerKey(t *testing.T) {
	repo := NewRepoMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Upsert(ctx, "A-3", func(rec *entity.ReconciliationRecord) error {
				rec.Attempts++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := repo.Get(ctx, "A-3")
	require.NoError(t, err)
	assert.Equal(t, 100, rec.Attempts)
}

func TestMemoryEffectAppliedFlipsOnce(t *testing.T) {
	repo := NewRepoMemory()
	ctx := context.Background()

	var flips int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Upsert(ctx, "A-4", func(rec *entity.ReconciliationRecord) error {
				if !rec.EffectApplied {
					rec.EffectApplied = true
					mu.Lock()
					flips++
					mu.Unlock()
				}
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), flips)
}

func TestMemoryDelete(t *testing.T) {
	repo := NewRepoMemory()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "A-5", func(rec *entity.ReconciliationRecord) error { return nil })
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, "A-5"))

	_, err = repo.Get(ctx, "A-5")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryExpireRemovesOnlyOldTerminalRecords(t *testing.T) {
	repo := NewRepoMemory()
	ctx := context.Background()

	_, err := repo.Upsert(ctx, "old-terminal", func(rec *entity.ReconciliationRecord) error {
		rec.State = entity.StateAbandoned
		return nil
	})
	require.NoError(t, err)
	_, err = repo.Upsert(ctx, "active", func(rec *entity.ReconciliationRecord) error {
		rec.State = entity.StateAwaiting
		return nil
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	removed, err := repo.Expire(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, "old-terminal")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = repo.Get(ctx, "active")
	assert.NoError(t, err)
}

func TestMemoryUpsertReturnsDeepCopy(t *testing.T) {
	repo := NewRepoMemory()
	ctx := context.Background()

	rec, err := repo.Upsert(ctx, "A-6", func(rec *entity.ReconciliationRecord) error {
		rec.Confirmation = &entity.Confirmation{OrderID: "A-6", Amount: 100}
		return nil
	})
	require.NoError(t, err)

	rec.Confirmation.Amount = 999

	got, err := repo.Get(ctx, "A-6")
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Confirmation.Amount)
}
