package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/lumaline/payrecon/internal/app/engine"
	"github.com/lumaline/payrecon/internal/app/entity"
	"github.com/lumaline/payrecon/internal/app/logger"
	"github.com/lumaline/payrecon/internal/app/verifier"
)

// orderCreated accepts the inbound order event and acknowledges as soon as
// it is durably accepted. The response never reflects the eventual payment
// outcome.
func (bh *BaseHandler) orderCreated() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var order entity.Order
		if err := json.NewDecoder(req.Body).Decode(&order); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			logger.Logger.Err(err).Msg("order event decode")
			return
		}
		if order.OrderID == "" {
			http.Error(w, "Missing order id", http.StatusBadRequest)
			return
		}

		if err := bh.engine.HandleOrderEvent(req.Context(), order); err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			logger.Logger.Err(err).Str("orderID", order.OrderID).Msg("order event not accepted")
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

// gatewayCallback authenticates the raw payload before anything else. A
// failed check is a client error with zero state mutation; a verified event
// is always acknowledged, even for an unknown order.
func (bh *BaseHandler) gatewayCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			http.Error(w, "Unreadable body", http.StatusBadRequest)
			logger.Logger.Err(err).Msg("callback body read")
			return
		}

		ev, err := verifier.Verify(raw, req.Header.Get(verifier.SignatureHeader), bh.callbackSecret)
		if err != nil {
			http.Error(w, "Invalid callback", http.StatusBadRequest)
			logger.Logger.Warn().Err(err).Msg("callback rejected")
			return
		}

		if err := bh.engine.HandleCallback(req.Context(), ev); err != nil {
			// An inconsistent duplicate is surfaced in the logs for manual
			// review; re-delivery would not resolve it, so still acknowledge.
			if !errors.Is(err, engine.ErrInconsistency) {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				logger.Logger.Err(err).Str("orderID", ev.OrderID).Msg("callback not accepted")
				return
			}
		}

		w.WriteHeader(http.StatusOK)
	}
}

func (bh *BaseHandler) healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}
