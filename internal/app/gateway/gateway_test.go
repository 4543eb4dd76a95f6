package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumaline/payrecon/internal/app/entity"
)

func order(id string, amount int64) entity.Order {
	return entity.Order{OrderID: id, Amount: amount, Currency: "EUR"}
}

func TestInitiateEmbedsOrderCorrelationKey(t *testing.T) {
	var got initiateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "merchant", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(initiateResponse{PaymentID: "pay_42", CheckoutURL: "https://gw/checkout/42"})
	}))
	defer srv.Close()

	c := NewCli(srv.URL, "merchant", "secret", 1)
	handle, err := c.Initiate(context.Background(), order("A-100", 2599), "351912345678")
	require.NoError(t, err)

	assert.Equal(t, "A-100", got.Metadata["order_id"])
	assert.NotEmpty(t, got.IdempotencyKey)
	assert.Equal(t, int64(2599), got.Amount)
	assert.Equal(t, "pay_42", handle.PaymentID)
	assert.Equal(t, "A-100", handle.OrderID)
}

func TestInitiateRejectsNonPositiveAmountLocally(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway must not be called for an invalid amount")
	}))
	defer srv.Close()

	c := NewCli(srv.URL, "merchant", "secret", 1)
	_, err := c.Initiate(context.Background(), order("A-101", 0), "351912345678")
	var rej *RejectionError
	assert.True(t, errors.As(err, &rej))
}

func TestInitiateRejectsUnnormalizedContact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("gateway must not be called for an invalid contact")
	}))
	defer srv.Close()

	c := NewCli(srv.URL, "merchant", "secret", 1)
	_, err := c.Initiate(context.Background(), order("A-102", 100), "+351 912")
	var rej *RejectionError
	assert.True(t, errors.As(err, &rej))
}

func TestInitiateGatewayRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(initiateResponse{Error: "unsupported method"})
	}))
	defer srv.Close()

	c := NewCli(srv.URL, "merchant", "secret", 1)
	_, err := c.Initiate(context.Background(), order("A-103", 100), "351912345678")
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "unsupported method", rej.Reason)
}

func TestInitiateServerErrorIsNotARejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCli(srv.URL, "merchant", "secret", 1)
	_, err := c.Initiate(context.Background(), order("A-104", 100), "351912345678")
	require.Error(t, err)
	var rej *RejectionError
	assert.False(t, errors.As(err, &rej))
}
