// Package verifier authenticates asynchronous gateway callbacks. The
// signature check runs over the raw payload bytes and must pass before any
// business field is parsed.
package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lumaline/payrecon/internal/app/entity"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the request body.
const SignatureHeader = "X-Gateway-Signature"

// ErrInvalid covers a missing header, a signature mismatch and a malformed
// payload. Callers must drop the event without mutating any state.
var ErrInvalid = errors.New("invalid callback")

type callbackPayload struct {
	Type string `json:"type"`
	Data struct {
		PaymentID string            `json:"payment_id"`
		Status    string            `json:"status"`
		Amount    int64             `json:"amount"`
		Metadata  map[string]string `json:"metadata"`
	} `json:"data"`
}

// Sign computes the signature the gateway is expected to send for payload.
func Sign(payload []byte, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Verify authenticates raw against signatureHeader and, only then, extracts
// the event. Unknown event types come back as EventIgnored with no error.
func Verify(raw []byte, signatureHeader string, secret []byte) (entity.CallbackEvent, error) {
	var ev entity.CallbackEvent

	if signatureHeader == "" {
		return ev, fmt.Errorf("%w: missing %s header", ErrInvalid, SignatureHeader)
	}
	supplied, err := base64.StdEncoding.DecodeString(signatureHeader)
	if err != nil {
		return ev, fmt.Errorf("%w: undecodable signature", ErrInvalid)
	}

	h := hmac.New(sha256.New, secret)
	h.Write(raw)
	if !hmac.Equal(h.Sum(nil), supplied) {
		return ev, fmt.Errorf("%w: signature mismatch", ErrInvalid)
	}

	var payload callbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ev, fmt.Errorf("%w: malformed payload", ErrInvalid)
	}

	if payload.Type != entity.EventConfirmed {
		ev.Kind = entity.EventIgnored
		return ev, nil
	}

	orderID := payload.Data.Metadata["order_id"]
	ev = entity.CallbackEvent{
		Kind:    entity.EventConfirmed,
		OrderID: orderID,
		Confirmation: entity.Confirmation{
			OrderID:     orderID,
			GatewayTxID: payload.Data.PaymentID,
			Amount:      payload.Data.Amount,
		},
	}
	return ev, nil
}
