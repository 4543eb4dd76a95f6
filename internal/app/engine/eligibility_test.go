package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcherSubstring(t *testing.T) {
	m := NewMatcher([]string{"shopify_payments"})
	assert.True(t, m.Matches([]string{"shopify_payments"}))
	assert.True(t, m.Matches([]string{"manual", "Shopify_Payments (Multibanco)"}))
	assert.False(t, m.Matches([]string{"manual"}))
	assert.False(t, m.Matches(nil))
}

func TestMatcherMultiplePatterns(t *testing.T) {
	m := NewMatcher([]string{"multibanco", " mbway "})
	assert.True(t, m.Matches([]string{"Multibanco"}))
	assert.True(t, m.Matches([]string{"MBWay"}))
	assert.False(t, m.Matches([]string{"visa"}))
}

func TestMatcherEmptyMatchesNothing(t *testing.T) {
	m := NewMatcher(nil)
	assert.False(t, m.Matches([]string{"shopify_payments"}))

	m = NewMatcher([]string{"", "  "})
	assert.False(t, m.Matches([]string{"shopify_payments"}))
}
