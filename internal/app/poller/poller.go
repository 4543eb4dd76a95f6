// Package poller discovers confirmation data from the upstream platform,
// which lags payment initiation by a provider-controlled delay. Not finding
// the data within the attempt budget is a normal outcome.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumaline/payrecon/internal/app/client"
	"github.com/lumaline/payrecon/internal/app/entity"
	"github.com/lumaline/payrecon/internal/app/logger"
)

// ErrNotFound means every attempt was used without the confirmation data
// appearing upstream.
var ErrNotFound = errors.New("confirmation not found after retries")

// ErrTransportExhausted means discovery was aborted after repeated
// consecutive transport failures, before the attempt budget ran out.
var ErrTransportExhausted = errors.New("upstream transport exhausted")

const maxConsecutiveTransportErrors = 3

type Poller struct {
	client      client.Client
	maxAttempts int
	interval    time.Duration
}

func New(client client.Client, maxAttempts int, interval time.Duration) *Poller {
	return &Poller{
		client:      client,
		maxAttempts: maxAttempts,
		interval:    interval,
	}
}

// Discover fetches the order's transactions up to maxAttempts times with a
// fixed delay between attempts, returning the confirmation and the number of
// attempts used. Cancellation is cooperative: the ctx is checked between
// attempts, never mid-fetch. A transport error counts as "not yet found"
// unless it repeats maxConsecutiveTransportErrors times in a row.
func (p *Poller) Discover(ctx context.Context, orderID string) (entity.Confirmation, int, error) {
	var transportErrs int

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return entity.Confirmation{}, attempt - 1, ctx.Err()
			case <-time.After(p.interval):
			}
		}

		view, err := p.client.GetOrderView(ctx, orderID)
		if err != nil {
			if ctx.Err() != nil {
				return entity.Confirmation{}, attempt, ctx.Err()
			}
			transportErrs++
			logger.Logger.Warn().Err(err).Str("orderID", orderID).Int("attempt", attempt).Msg("upstream fetch failed")
			if transportErrs >= maxConsecutiveTransportErrors {
				return entity.Confirmation{}, attempt, fmt.Errorf("%w: %d consecutive failures", ErrTransportExhausted, transportErrs)
			}
			continue
		}
		transportErrs = 0

		if conf, ok := entity.ExtractConfirmation(orderID, view.Transactions); ok {
			logger.Logger.Info().Str("orderID", orderID).Int("attempt", attempt).Msg("confirmation discovered")
			return conf, attempt, nil
		}
		logger.Logger.Debug().Str("orderID", orderID).Int("attempt", attempt).Msg("confirmation not yet present")
	}

	return entity.Confirmation{}, p.maxAttempts, ErrNotFound
}
