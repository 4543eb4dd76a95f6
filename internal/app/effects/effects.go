// Package effects performs the final side effect for a reconciled order.
// The engine guarantees Apply is triggered at most once per order; delivery
// success downstream is the channel's problem, not reverted on failure.
package effects

import (
	"context"
	"strings"

	"github.com/lumaline/payrecon/internal/app/entity"
	"github.com/lumaline/payrecon/internal/app/logger"
)

// Strategy is a single pluggable side effect. Eligible gates the strategy on
// its own precondition; a false return skips it without failing the others.
type Strategy interface {
	Name() string
	Eligible(order entity.Order) bool
	Apply(ctx context.Context, order entity.Order, conf entity.Confirmation) error
}

// Result reports one strategy's outcome.
type Result struct {
	Strategy string
	Applied  bool
	Err      error
}

type Dispatcher struct {
	strategies []Strategy
}

func NewDispatcher(strategies ...Strategy) *Dispatcher {
	return &Dispatcher{strategies: strategies}
}

// Apply runs every configured strategy independently. A failing strategy is
// reported and logged but never blocks the rest.
func (d *Dispatcher) Apply(ctx context.Context, order entity.Order, conf entity.Confirmation) []Result {
	results := make([]Result, 0, len(d.strategies))
	for _, s := range d.strategies {
		if !s.Eligible(order) {
			logger.Logger.Info().Str("orderID", order.OrderID).Str("strategy", s.Name()).Msg("effect skipped, precondition not met")
			results = append(results, Result{Strategy: s.Name()})
			continue
		}
		if err := s.Apply(ctx, order, conf); err != nil {
			logger.Logger.Err(err).Str("orderID", order.OrderID).Str("strategy", s.Name()).Msg("effect failed")
			results = append(results, Result{Strategy: s.Name(), Applied: true, Err: err})
			continue
		}
		logger.Logger.Info().Str("orderID", order.OrderID).Str("strategy", s.Name()).Msg("effect applied")
		results = append(results, Result{Strategy: s.Name(), Applied: true})
	}
	return results
}

// NormalizePhone strips everything but digits, the form the notification
// channel expects.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
