package extension

import "time"

// Config holds the thermal extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.thermal" or "thermal" keys).
type Config struct {
	// Owner is the ledger owner account. Required.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// DisableMigrate skips store migrations on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RequireVerifiedRecipient rejects transfers to unverified accounts.
	RequireVerifiedRecipient bool `json:"require_verified_recipient" mapstructure:"require_verified_recipient" yaml:"require_verified_recipient"`

	// AutoSettleOperator is the account the auto-settle worker acts as.
	// The worker runs only when both this and AutoSettleInterval are set.
	AutoSettleOperator string `json:"auto_settle_operator" mapstructure:"auto_settle_operator" yaml:"auto_settle_operator"`

	// AutoSettleInterval is how often pending trades are settled.
	AutoSettleInterval time.Duration `json:"auto_settle_interval" mapstructure:"auto_settle_interval" yaml:"auto_settle_interval"`

	// PluginTimeout bounds a single plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// NATSURL enables event broadcast to the given NATS server.
	NATSURL string `json:"nats_url" mapstructure:"nats_url" yaml:"nats_url"`

	// SubjectPrefix is the broadcast subject prefix (default: "thermal").
	SubjectPrefix string `json:"subject_prefix" mapstructure:"subject_prefix" yaml:"subject_prefix"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PluginTimeout: 5 * time.Second,
		SubjectPrefix: "thermal",
	}
}
