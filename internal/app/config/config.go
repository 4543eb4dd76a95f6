package config

import "time"

// Config holds every tunable of the service. Defaults are set in main, then
// environment variables and flags override them. Components receive the
// config at construction; nothing reads it from ambient state.
type Config struct {
	RunAddress string `env:"RUN_ADDRESS"`
	LogLevel   string `env:"LOG_LEVEL"`

	// Upstream commerce platform (order + transactions view).
	UpstreamAddress string `env:"UPSTREAM_ADDRESS"`
	UpstreamToken   string `env:"UPSTREAM_TOKEN"`

	// Payment gateway (initiation + callbacks).
	GatewayAddress string `env:"GATEWAY_ADDRESS"`
	GatewayUser    string `env:"GATEWAY_USER"`
	GatewayPass    string `env:"GATEWAY_PASS"`
	CallbackSecret string `env:"CALLBACK_SECRET"`

	// Eligibility and flow selection.
	EligibleMethods []string `env:"ELIGIBLE_METHODS" envSeparator:","`
	FlowMode        string   `env:"FLOW_MODE"` // "discover" or "initiate"

	// Discovery loop.
	PollMaxAttempts int           `env:"POLL_MAX_ATTEMPTS"`
	PollInterval    time.Duration `env:"POLL_INTERVAL"`
	ClientTimeout   int           `env:"CLIENT_TIMEOUT"`

	// Correlation store. Empty DatabaseURI and RedisAddress selects the
	// in-process store.
	DatabaseURI      string        `env:"DATABASE_URI"`
	RedisAddress     string        `env:"REDIS_ADDRESS"`
	RetentionHorizon time.Duration `env:"RETENTION_HORIZON"`

	// Effects.
	NotifyEnabled   bool   `env:"NOTIFY_ENABLED"`
	NotifySender    string `env:"NOTIFY_SENDER"`
	NotifyAddress   string `env:"NOTIFY_ADDRESS"`
	NotifyUser      string `env:"NOTIFY_USER"`
	NotifyPass      string `env:"NOTIFY_PASS"`
	MarkPaidEnabled bool   `env:"MARK_PAID_ENABLED"`
}
