package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumaline/payrecon/internal/app/config"
)

func TestServeRefusesEmptyCallbackSecret(t *testing.T) {
	cfg := &config.Config{
		RunAddress:      "localhost:0",
		EligibleMethods: []string{"shopify_payments"},
	}
	err := Serve(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "callback secret")
}
