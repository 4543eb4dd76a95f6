package entity

import "time"

// Reconciliation states. An order moves Received -> AwaitingConfirmation ->
// Confirmed -> EffectApplied, or ends in Rejected / Abandoned.
const (
	StateReceived      = "RECEIVED"
	StateAwaiting      = "AWAITING_CONFIRMATION"
	StateConfirmed     = "CONFIRMED"
	StateEffectApplied = "EFFECT_APPLIED"
	StateAbandoned     = "ABANDONED"
	StateRejected      = "REJECTED"
)

// IsTerminal reports whether no further transition is possible for state.
func IsTerminal(state string) bool {
	switch state {
	case StateEffectApplied, StateAbandoned, StateRejected:
		return true
	}
	return false
}

// Receipt carries the payment-instruction data a transaction may hold once
// the upstream provider has issued it.
type Receipt struct {
	Entity    string `json:"entity"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
}

type Transaction struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Status  string   `json:"status"`
	Receipt *Receipt `json:"receipt,omitempty"`
}

// Order is the inbound commerce event. Amounts are minor currency units.
// Immutable once received. Transactions are usually empty at event time; a
// populated receipt makes the confirmation available synchronously.
type Order struct {
	OrderID        string        `json:"id"`
	Amount         int64         `json:"total_amount"`
	Currency       string        `json:"currency"`
	PaymentMethods []string      `json:"payment_gateway_names"`
	Phone          string        `json:"phone,omitempty"`
	Email          string        `json:"email,omitempty"`
	Customer       Contact       `json:"customer"`
	Shipping       Contact       `json:"shipping_address"`
	Transactions   []Transaction `json:"transactions,omitempty"`
}

type Contact struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// ContactPhone picks the first phone present, in the order the upstream
// platform populates them.
func (o Order) ContactPhone() string {
	if o.Phone != "" {
		return o.Phone
	}
	if o.Customer.Phone != "" {
		return o.Customer.Phone
	}
	return o.Shipping.Phone
}

// Confirmation proves a specific order has a payment in flight or settled.
// Either Entity+Reference (upstream receipt) or GatewayTxID (callback) is set.
type Confirmation struct {
	OrderID     string `json:"order_id" db:"order_id"`
	Entity      string `json:"entity,omitempty" db:"entity"`
	Reference   string `json:"reference,omitempty" db:"reference"`
	GatewayTxID string `json:"gateway_tx_id,omitempty" db:"gateway_tx_id"`
	Amount      int64  `json:"amount" db:"amount"`
}

// Equivalent reports whether two confirmations describe the same payment.
// Amount always matters; identifiers are compared only when both sides carry
// them, since the poller and the gateway see different ones.
func (c Confirmation) Equivalent(other Confirmation) bool {
	if c.Amount != other.Amount {
		return false
	}
	if c.Reference != "" && other.Reference != "" && c.Reference != other.Reference {
		return false
	}
	if c.GatewayTxID != "" && other.GatewayTxID != "" && c.GatewayTxID != other.GatewayTxID {
		return false
	}
	return true
}

// ExtractConfirmation scans transactions for one whose receipt carries
// reference data.
func ExtractConfirmation(orderID string, txs []Transaction) (Confirmation, bool) {
	for _, tx := range txs {
		if tx.Receipt != nil && tx.Receipt.Reference != "" {
			return Confirmation{
				OrderID:   orderID,
				Entity:    tx.Receipt.Entity,
				Reference: tx.Receipt.Reference,
				Amount:    tx.Receipt.Amount,
			}, true
		}
	}
	return Confirmation{}, false
}

// ReconciliationRecord is the per-order state held by the correlation store.
// The order snapshot is kept so the callback path can run effects without
// re-fetching the order.
type ReconciliationRecord struct {
	OrderID       string        `db:"order_id"`
	State         string        `db:"state"`
	Attempts      int           `db:"attempts"`
	Order         Order         `db:"-"`
	Confirmation  *Confirmation `db:"-"`
	EffectApplied bool          `db:"effect_applied"`
	UpdatedAt     time.Time     `db:"updated_at"`
}

// GatewayHandle correlates an initiated gateway payment back to its order.
type GatewayHandle struct {
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// Callback event kinds after verification.
const (
	EventConfirmed = "payment.confirmed"
	EventIgnored   = "ignored"
)

// CallbackEvent is a verified, parsed gateway callback.
type CallbackEvent struct {
	Kind         string
	OrderID      string
	Confirmation Confirmation
}
