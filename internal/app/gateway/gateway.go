// Package gateway issues payment requests to the payment gateway for flows
// where the payment is actively pushed to the customer rather than passively
// discovered from the upstream platform.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lumaline/payrecon/internal/app/entity"
)

const paymentsPath = "/api/v1/payments"

// RejectionError is a gateway refusal: invalid amount, invalid contact or an
// unsupported method. Terminal for the attempt; retrying is a caller
// decision.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("gateway rejected payment: %s", e.Reason)
}

type Initiator interface {
	Initiate(ctx context.Context, order entity.Order, contact string) (entity.GatewayHandle, error)
}

type initiateRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Contact        string            `json:"contact,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata"`
}

type initiateResponse struct {
	PaymentID   string `json:"payment_id"`
	CheckoutURL string `json:"checkout_url"`
	Error       string `json:"error"`
}

type cli struct {
	host       string
	user       string
	pass       string
	httpClient *http.Client
}

func NewCli(host, user, pass string, timeout int) Initiator {
	client := &http.Client{
		Timeout: time.Duration(timeout * int(time.Second)),
	}
	return &cli{
		host:       host,
		user:       user,
		pass:       pass,
		httpClient: client,
	}
}

func (c *cli) Initiate(ctx context.Context, order entity.Order, contact string) (entity.GatewayHandle, error) {
	var handle entity.GatewayHandle

	if order.Amount <= 0 {
		return handle, &RejectionError{Reason: fmt.Sprintf("non-positive amount %d", order.Amount)}
	}
	if contact != "" && !digitsOnly(contact) {
		return handle, &RejectionError{Reason: "contact is not a normalized phone number"}
	}

	// The order id in gateway-side metadata is what lets the callback be
	// matched back to the order. Not optional.
	body := initiateRequest{
		Amount:         order.Amount,
		Currency:       order.Currency,
		Contact:        contact,
		IdempotencyKey: uuid.NewString(),
		Metadata:       map[string]string{"order_id": order.OrderID},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return handle, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+paymentsPath, bytes.NewReader(payload))
	if err != nil {
		return handle, err
	}
	req.SetBasicAuth(c.user, c.pass)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return handle, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return handle, err
	}

	var parsed initiateResponse
	if res.StatusCode == http.StatusUnprocessableEntity || res.StatusCode == http.StatusBadRequest {
		reason := string(raw)
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != "" {
			reason = parsed.Error
		}
		return handle, &RejectionError{Reason: reason}
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return handle, fmt.Errorf("gateway initiate: status %d", res.StatusCode)
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return handle, err
	}

	handle = entity.GatewayHandle{
		PaymentID:   parsed.PaymentID,
		OrderID:     order.OrderID,
		CheckoutURL: parsed.CheckoutURL,
	}
	return handle, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
