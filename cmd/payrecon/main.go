package main

import (
	"flag"
	"log"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/lumaline/payrecon/internal/app/config"
	"github.com/lumaline/payrecon/internal/app/server"
)

func main() {
	cfg := config.Config{
		RunAddress:       "localhost:8080",
		LogLevel:         "info",
		UpstreamAddress:  "http://localhost:8081",
		GatewayAddress:   "",
		EligibleMethods:  []string{"shopify_payments"},
		FlowMode:         "discover",
		PollMaxAttempts:  5,
		PollInterval:     20 * time.Second,
		ClientTimeout:    5,
		RetentionHorizon: 72 * time.Hour,
		NotifyEnabled:    true,
		NotifySender:     "LumaLine",
		NotifyAddress:    "https://dashboard.ez4uteam.com",
	}

	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
		return
	}

	flag.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "run address")
	flag.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "database URI")
	flag.StringVar(&cfg.UpstreamAddress, "u", cfg.UpstreamAddress, "upstream platform address")
	flag.StringVar(&cfg.GatewayAddress, "g", cfg.GatewayAddress, "payment gateway address")
	flag.StringVar(&cfg.CallbackSecret, "s", cfg.CallbackSecret, "callback shared secret")
	flag.IntVar(&cfg.PollMaxAttempts, "n", cfg.PollMaxAttempts, "max poll attempts")
	flag.DurationVar(&cfg.PollInterval, "i", cfg.PollInterval, "poll interval")
	flag.Parse()

	log.Fatal(server.Serve(&cfg))
}
