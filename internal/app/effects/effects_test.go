package effects

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

type stubStrategy struct {
	name     string
	eligible bool
	err      error
	applied  int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Eligible(order entity.Order) bool { return s.eligible }

func (s *stubStrategy) Apply(ctx context.Context, order entity.Order, conf entity.Confirmation) error {
	s.applied++
	return s.err
}

func TestDispatcherSkipsIneligibleStrategy(t *testing.T) {
	skipped := &stubStrategy{name: "notify", eligible: false}
	ran := &stubStrategy{name: "mark-paid", eligible: true}
	d := NewDispatcher(skipped, ran)

	results := d.Apply(context.Background(), entity.Order{OrderID: "A-1"}, entity.Confirmation{})
	require.Len(t, results, 2)
	assert.False(t, results[0].Applied)
	assert.True(t, results[1].Applied)
	assert.Zero(t, skipped.applied)
	assert.Equal(t, 1, ran.applied)
}

func TestDispatcherFailureDoesNotBlockOthers(t *testing.T) {
	failing := &stubStrategy{name: "notify", eligible: true, err: errors.New("channel down")}
	ran := &stubStrategy{name: "mark-paid", eligible: true}
	d := NewDispatcher(failing, ran)

	results := d.Apply(context.Background(), entity.Order{OrderID: "A-2"}, entity.Confirmation{})
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.True(t, results[0].Applied)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 1, ran.applied)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "351912345678", NormalizePhone("+351 912 345 678"))
	assert.Equal(t, "351912345678", NormalizePhone("(351) 912-345-678"))
	assert.Equal(t, "", NormalizePhone("n/a"))
}

func TestNotifierEligibility(t *testing.T) {
	n := NewNotifier("http://sms", "u", "p", "LumaLine", 1)
	assert.False(t, n.Eligible(entity.Order{OrderID: "A-3"}))
	assert.True(t, n.Eligible(entity.Order{OrderID: "A-3", Phone: "+351 912 345 678"}))
	assert.True(t, n.Eligible(entity.Order{OrderID: "A-3", Customer: entity.Contact{Phone: "912345678"}}))
}

func TestNotifierSendsReferenceData(t *testing.T) {
	var got smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "pass", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "user", "pass", "LumaLine", 1)
	order := entity.Order{OrderID: "A-100", Currency: "EUR", Phone: "+351 912 345 678"}
	conf := entity.Confirmation{OrderID: "A-100", Entity: "12345", Reference: "999888777", Amount: 2599}

	require.NoError(t, n.Apply(context.Background(), order, conf))
	require.Len(t, got.To, 1)
	assert.Equal(t, "351912345678", got.To[0])
	assert.Equal(t, "LumaLine", got.From)
	assert.Contains(t, got.Message, "Entity 12345")
	assert.Contains(t, got.Message, "Ref 999888777")
	assert.Contains(t, got.Message, "25.99 EUR")
}

func TestNotifierChannelFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, "user", "pass", "LumaLine", 1)
	err := n.Apply(context.Background(), entity.Order{Phone: "912"}, entity.Confirmation{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
