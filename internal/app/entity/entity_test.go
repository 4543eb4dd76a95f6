package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContactPhonePrecedence(t *testing.T) {
	o := Order{Phone: "1", Customer: Contact{Phone: "2"}, Shipping: Contact{Phone: "3"}}
	assert.Equal(t, "1", o.ContactPhone())

	o.Phone = ""
	assert.Equal(t, "2", o.ContactPhone())

	o.Customer.Phone = ""
	assert.Equal(t, "3", o.ContactPhone())
}

func TestConfirmationEquivalent(t *testing.T) {
	polled := Confirmation{OrderID: "A-1", Entity: "12345", Reference: "999888777", Amount: 2599}
	callback := Confirmation{OrderID: "A-1", GatewayTxID: "pay_1", Amount: 2599}

	// Different identifier kinds with the same amount describe one payment.
	assert.True(t, polled.Equivalent(callback))
	assert.True(t, polled.Equivalent(polled))

	differentAmount := callback
	differentAmount.Amount = 100
	assert.False(t, polled.Equivalent(differentAmount))

	differentRef := polled
	differentRef.Reference = "000000001"
	assert.False(t, polled.Equivalent(differentRef))
}

func TestExtractConfirmation(t *testing.T) {
	txs := []Transaction{
		{ID: "t1", Kind: "sale", Status: "pending"},
		{ID: "t2", Receipt: &Receipt{Entity: "12345", Reference: "999888777", Amount: 2599}},
	}
	conf, ok := ExtractConfirmation("A-1", txs)
	assert.True(t, ok)
	assert.Equal(t, "A-1", conf.OrderID)
	assert.Equal(t, "999888777", conf.Reference)

	_, ok = ExtractConfirmation("A-1", []Transaction{{ID: "t1"}})
	assert.False(t, ok)

	// A receipt without a reference is not a confirmation yet.
	_, ok = ExtractConfirmation("A-1", []Transaction{{Receipt: &Receipt{Entity: "1"}}})
	assert.False(t, ok)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StateEffectApplied))
	assert.True(t, IsTerminal(StateAbandoned))
	assert.True(t, IsTerminal(StateRejected))
	assert.False(t, IsTerminal(StateAwaiting))
	assert.False(t, IsTerminal(StateConfirmed))
	assert.False(t, IsTerminal(StateReceived))
}
