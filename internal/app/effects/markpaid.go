package effects

import (
	"context"

	"github.com/lumaline/payrecon/internal/app/client"
	"github.com/lumaline/payrecon/internal/app/entity"
)

// PaidMarker updates the order's status on the upstream platform with the
// proof of payment.
type PaidMarker struct {
	client client.Client
}

func NewPaidMarker(client client.Client) *PaidMarker {
	return &PaidMarker{client: client}
}

func (m *PaidMarker) Name() string { return "mark-paid" }

func (m *PaidMarker) Eligible(order entity.Order) bool { return true }

func (m *PaidMarker) Apply(ctx context.Context, order entity.Order, conf entity.Confirmation) error {
	return m.client.MarkPaid(ctx, order.OrderID, conf)
}
