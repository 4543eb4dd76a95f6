package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumaline/payrecon/internal/app/entity"
)

const (
	keyPrefix    = "payrecon:rec:"
	casAttempts  = 16
	scanPageSize = 100
)

// RepoRedis stores reconciliation records as JSON values in Redis. Per-key
// atomicity uses WATCH/MULTI optimistic transactions, retried a bounded
// number of times under contention.
type RepoRedis struct {
	client *redis.Client
}

func NewRepoRedis(addr string) (*RepoRedis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &RepoRedis{client: client}, nil
}

func (r *RepoRedis) Upsert(ctx context.Context, orderID string, fn Mutator) (entity.ReconciliationRecord, error) {
	key := keyPrefix + orderID
	var out entity.ReconciliationRecord

	txf := func(tx *redis.Tx) error {
		rec := entity.ReconciliationRecord{OrderID: orderID, State: entity.StateReceived}
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
		}

		if err := fn(&rec); err != nil {
			return err
		}
		rec.OrderID = orderID
		rec.UpdatedAt = time.Now()

		buf, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = rec
		return nil
	}

	for i := 0; i < casAttempts; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) {
			return entity.ReconciliationRecord{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return entity.ReconciliationRecord{}, err
	}
	return entity.ReconciliationRecord{}, fmt.Errorf("%w: key %s contended", ErrUnavailable, orderID)
}

func (r *RepoRedis) Get(ctx context.Context, orderID string) (entity.ReconciliationRecord, error) {
	raw, err := r.client.Get(ctx, keyPrefix+orderID).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.ReconciliationRecord{}, ErrNotFound
	}
	if err != nil {
		return entity.ReconciliationRecord{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var rec entity.ReconciliationRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return entity.ReconciliationRecord{}, err
	}
	return rec, nil
}

func (r *RepoRedis) Delete(ctx context.Context, orderID string) error {
	if err := r.client.Del(ctx, keyPrefix+orderID).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *RepoRedis) Expire(ctx context.Context, horizon time.Duration) (int, error) {
	cutoff := time.Now().Add(-horizon)
	var removed int
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", scanPageSize).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var rec entity.ReconciliationRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if entity.IsTerminal(rec.State) && rec.UpdatedAt.Before(cutoff) {
			if err := r.client.Del(ctx, key).Err(); err == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return removed, nil
}

func (r *RepoRedis) Close() {
	r.client.Close()
}
