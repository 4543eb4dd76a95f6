package server

import (
	"errors"
	"net/http"

	"github.com/lumaline/payrecon/internal/app/client"
	"github.com/lumaline/payrecon/internal/app/config"
	"github.com/lumaline/payrecon/internal/app/effects"
	"github.com/lumaline/payrecon/internal/app/engine"
	"github.com/lumaline/payrecon/internal/app/gateway"
	"github.com/lumaline/payrecon/internal/app/handlers"
	"github.com/lumaline/payrecon/internal/app/logger"
	"github.com/lumaline/payrecon/internal/app/poller"
	"github.com/lumaline/payrecon/internal/app/storage"
)

func newStore(cfg *config.Config) (storage.Store, error) {
	switch {
	case cfg.DatabaseURI != "":
		return storage.NewRepoDB(cfg.DatabaseURI)
	case cfg.RedisAddress != "":
		return storage.NewRepoRedis(cfg.RedisAddress)
	default:
		logger.Logger.Warn().Msg("no database configured, records will not survive a restart")
		return storage.NewRepoMemory(), nil
	}
}

func Serve(cfg *config.Config) error {
	logger.SetLevel(cfg.LogLevel)

	// An empty secret would make every callback signature forgeable.
	if cfg.CallbackSecret == "" {
		return errors.New("callback secret is not configured")
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	upstream := client.NewCli(cfg.UpstreamAddress, cfg.UpstreamToken, cfg.ClientTimeout)

	var strategies []effects.Strategy
	if cfg.NotifyEnabled {
		strategies = append(strategies,
			effects.NewNotifier(cfg.NotifyAddress, cfg.NotifyUser, cfg.NotifyPass, cfg.NotifySender, cfg.ClientTimeout))
	}
	if cfg.MarkPaidEnabled {
		strategies = append(strategies, effects.NewPaidMarker(upstream))
	}

	var initiator gateway.Initiator
	if cfg.GatewayAddress != "" {
		initiator = gateway.NewCli(cfg.GatewayAddress, cfg.GatewayUser, cfg.GatewayPass, cfg.ClientTimeout)
	}

	eng := engine.New(
		store,
		poller.New(upstream, cfg.PollMaxAttempts, cfg.PollInterval),
		initiator,
		effects.NewDispatcher(strategies...),
		engine.NewMatcher(cfg.EligibleMethods),
		cfg.FlowMode,
	)
	defer eng.Close()
	if cfg.RetentionHorizon > 0 {
		eng.StartJanitor(cfg.RetentionHorizon/4, cfg.RetentionHorizon)
	}

	var baseHandler = handlers.NewBaseHandler(eng, cfg.CallbackSecret)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: baseHandler,
	}

	return server.ListenAndServe()
}
