// Package engine orchestrates payment confirmation reconciliation: it
// accepts order events, drives discovery or gateway initiation, reconciles
// asynchronous confirmations against the correlation store and triggers the
// final side effect at most once per order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumaline/payrecon/internal/app/effects"
	"github.com/lumaline/payrecon/internal/app/entity"
	"github.com/lumaline/payrecon/internal/app/gateway"
	"github.com/lumaline/payrecon/internal/app/logger"
	"github.com/lumaline/payrecon/internal/app/poller"
	"github.com/lumaline/payrecon/internal/app/storage"
)

// Flow modes for eligible orders that carry no synchronous confirmation.
const (
	FlowDiscover = "discover"
	FlowInitiate = "initiate"
)

const effectTimeout = 30 * time.Second

// ErrInconsistency means a duplicate confirmation materially disagrees with
// the stored one. The stored confirmation is kept; the disagreement is
// surfaced for manual review, never auto-resolved.
var ErrInconsistency = errors.New("confirmation inconsistent with stored confirmation")

type Engine struct {
	store      storage.Store
	poller     *poller.Poller
	initiator  gateway.Initiator
	dispatcher *effects.Dispatcher
	matcher    Matcher
	flowMode   string

	mu     sync.Mutex
	active map[string]context.CancelFunc

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	janitor chan struct{}
}

func New(store storage.Store, p *poller.Poller, initiator gateway.Initiator, dispatcher *effects.Dispatcher, matcher Matcher, flowMode string) *Engine {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:      store,
		poller:     p,
		initiator:  initiator,
		dispatcher: dispatcher,
		matcher:    matcher,
		flowMode:   flowMode,
		active:     make(map[string]context.CancelFunc),
		baseCtx:    baseCtx,
		cancel:     cancel,
		janitor:    make(chan struct{}),
	}
}

// HandleOrderEvent runs the synchronous ingress path: eligibility check and
// durable acceptance. All discovery and gateway work continues on a separate
// goroutine so the caller can acknowledge immediately. A duplicate event for
// an order already in flight or terminal is a no-op.
func (e *Engine) HandleOrderEvent(ctx context.Context, order entity.Order) error {
	if !e.matcher.Matches(order.PaymentMethods) {
		_, err := e.store.Upsert(ctx, order.OrderID, func(rec *entity.ReconciliationRecord) error {
			if rec.State != entity.StateReceived {
				return nil
			}
			rec.State = entity.StateRejected
			rec.Order = order
			return nil
		})
		if err != nil {
			return err
		}
		logger.Logger.Info().Str("orderID", order.OrderID).Strs("methods", order.PaymentMethods).Msg("order ineligible, rejected")
		return nil
	}

	var started bool
	_, err := e.store.Upsert(ctx, order.OrderID, func(rec *entity.ReconciliationRecord) error {
		// The store may rerun the mutator after a lost optimistic write; only
		// the committed run decides whether a task starts.
		started = false
		if rec.State != entity.StateReceived {
			// Already accepted once; at most one task per order.
			return nil
		}
		rec.State = entity.StateAwaiting
		rec.Order = order
		started = true
		return nil
	})
	if err != nil {
		return err
	}
	if !started {
		logger.Logger.Info().Str("orderID", order.OrderID).Msg("duplicate order event, no-op")
		return nil
	}

	taskCtx, cancelTask := context.WithCancel(e.baseCtx)
	e.mu.Lock()
	e.active[order.OrderID] = cancelTask
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(order.OrderID)
		e.runTask(taskCtx, order)
	}()
	return nil
}

// runTask is the asynchronous half of order processing. Any failure here is
// contained to this order and logged; nothing propagates to other orders.
func (e *Engine) runTask(ctx context.Context, order entity.Order) {
	// The event itself may already carry the confirmation.
	if conf, ok := entity.ExtractConfirmation(order.OrderID, order.Transactions); ok {
		e.reconcile(ctx, order.OrderID, conf, 0)
		return
	}

	if e.flowMode == FlowInitiate && e.initiator != nil {
		e.initiate(ctx, order)
		return
	}
	e.discover(ctx, order)
}

func (e *Engine) initiate(ctx context.Context, order entity.Order) {
	contact := effects.NormalizePhone(order.ContactPhone())
	handle, err := e.initiator.Initiate(ctx, order, contact)
	if err != nil {
		var rej *gateway.RejectionError
		if errors.As(err, &rej) {
			logger.Logger.Warn().Str("orderID", order.OrderID).Str("reason", rej.Reason).Msg("gateway rejected initiation")
			e.transitionIfAwaiting(order.OrderID, entity.StateRejected, 0)
			return
		}
		logger.Logger.Err(err).Str("orderID", order.OrderID).Msg("gateway initiation failed")
		return
	}
	// Confirmation now arrives out-of-band through the verified callback.
	logger.Logger.Info().Str("orderID", order.OrderID).Str("paymentID", handle.PaymentID).Msg("gateway payment initiated")
}

func (e *Engine) discover(ctx context.Context, order entity.Order) {
	conf, attempts, err := e.poller.Discover(ctx, order.OrderID)
	switch {
	case err == nil:
		e.reconcile(ctx, order.OrderID, conf, attempts)
	case errors.Is(err, poller.ErrNotFound):
		logger.Logger.Warn().Str("orderID", order.OrderID).Int("attempts", attempts).Msg("discovery exhausted, abandoning")
		e.transitionIfAwaiting(order.OrderID, entity.StateAbandoned, attempts)
	case errors.Is(err, poller.ErrTransportExhausted):
		logger.Logger.Err(err).Str("orderID", order.OrderID).Int("attempts", attempts).Msg("discovery aborted, abandoning")
		e.transitionIfAwaiting(order.OrderID, entity.StateAbandoned, attempts)
	case errors.Is(err, context.Canceled):
		logger.Logger.Debug().Str("orderID", order.OrderID).Msg("discovery cancelled")
	default:
		logger.Logger.Err(err).Str("orderID", order.OrderID).Msg("discovery failed")
	}
}

// HandleCallback reconciles a verified gateway event. Unknown orders are
// logged and discarded, not errored, so the gateway never sees a retry
// storm over data this system cannot use.
func (e *Engine) HandleCallback(ctx context.Context, ev entity.CallbackEvent) error {
	if ev.Kind != entity.EventConfirmed {
		logger.Logger.Info().Str("kind", ev.Kind).Msg("callback event ignored")
		return nil
	}
	if ev.OrderID == "" {
		logger.Logger.Warn().Msg("callback without order correlation key, discarded")
		return nil
	}
	if _, err := e.store.Get(ctx, ev.OrderID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Logger.Warn().Str("orderID", ev.OrderID).Msg("callback for unknown order, discarded")
			return nil
		}
		return err
	}
	return e.reconcile(ctx, ev.OrderID, ev.Confirmation, 0)
}

// reconcile applies a confirmation to an order. One atomic upsert decides
// the transition, the idempotent-duplicate case and who gets to dispatch
// effects; the compare-and-set on EffectApplied inside the mutator is the
// at-most-once guarantee.
func (e *Engine) reconcile(ctx context.Context, orderID string, conf entity.Confirmation, attempts int) error {
	var dispatch bool
	rec, err := e.store.Upsert(ctx, orderID, func(rec *entity.ReconciliationRecord) error {
		dispatch = false
		if attempts > 0 {
			rec.Attempts = attempts
		}
		switch rec.State {
		case entity.StateRejected:
			logger.Logger.Warn().Str("orderID", orderID).Msg("confirmation for rejected order, ignored")
			return nil
		case entity.StateConfirmed, entity.StateEffectApplied:
			if rec.Confirmation != nil && rec.Confirmation.Equivalent(conf) {
				return nil
			}
			stored := entity.Confirmation{}
			if rec.Confirmation != nil {
				stored = *rec.Confirmation
			}
			return fmt.Errorf("%w: stored amount %d, got %d", ErrInconsistency, stored.Amount, conf.Amount)
		default:
			// Received, AwaitingConfirmation, or a late confirmation for an
			// Abandoned order re-triggered from outside.
			c := conf
			rec.Confirmation = &c
			rec.State = entity.StateConfirmed
			if !rec.EffectApplied {
				rec.EffectApplied = true
				rec.State = entity.StateEffectApplied
				dispatch = true
			}
			return nil
		}
	})
	if err != nil {
		if errors.Is(err, ErrInconsistency) {
			logger.Logger.Error().Err(err).Str("orderID", orderID).Msg("inconsistent duplicate confirmation")
		}
		return err
	}

	if !dispatch {
		return nil
	}

	// A poll still in flight for this order is now pointless. Effects run on
	// their own context: the task context may be the one just cancelled, and
	// a triggered effect is never abandoned half-way.
	e.cancelActive(orderID)
	effCtx, cancel := context.WithTimeout(context.Background(), effectTimeout)
	defer cancel()

	for _, res := range e.dispatcher.Apply(effCtx, rec.Order, conf) {
		if res.Err != nil {
			// Triggering succeeded; delivery failure is reported, the state
			// stays EffectApplied.
			logger.Logger.Error().Err(res.Err).Str("orderID", orderID).Str("strategy", res.Strategy).Msg("effect delivery failed")
		}
	}
	return nil
}

func (e *Engine) transitionIfAwaiting(orderID string, state string, attempts int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := e.store.Upsert(ctx, orderID, func(rec *entity.ReconciliationRecord) error {
		if rec.State != entity.StateAwaiting {
			return nil
		}
		rec.State = state
		if attempts > 0 {
			rec.Attempts = attempts
		}
		return nil
	})
	if err != nil {
		logger.Logger.Err(err).Str("orderID", orderID).Str("state", state).Msg("transition failed")
	}
}

func (e *Engine) cancelActive(orderID string) {
	e.mu.Lock()
	cancel, ok := e.active[orderID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) release(orderID string) {
	e.mu.Lock()
	if cancel, ok := e.active[orderID]; ok {
		cancel()
		delete(e.active, orderID)
	}
	e.mu.Unlock()
}

// StartJanitor removes terminal records past the retention horizon on a
// fixed cadence until Close.
func (e *Engine) StartJanitor(every time.Duration, horizon time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-e.janitor:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(e.baseCtx, time.Minute)
				removed, err := e.store.Expire(ctx, horizon)
				cancel()
				if err != nil {
					logger.Logger.Err(err).Msg("retention sweep failed")
					continue
				}
				if removed > 0 {
					logger.Logger.Info().Int("removed", removed).Msg("retention sweep")
				}
			}
		}
	}()
}

// Close cancels every in-flight task and waits for them to finish.
func (e *Engine) Close() {
	close(e.janitor)
	e.cancel()
	e.wg.Wait()
}
