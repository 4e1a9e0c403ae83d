// Package extension provides the Forge extension adapter for the thermal
// ledger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.thermal" or "thermal"
// keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/thermal"
	"github.com/xraph/thermal/broadcast"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/store/memory"
	"github.com/xraph/thermal/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "thermal"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Permissioned energy-token ledger and trade settlement"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the thermal ledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	ledger     *thermal.Ledger
	store      store.Store
	nc         *nats.Conn
	ledgerOpts []thermal.Option
}

// New creates a new thermal Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ledger returns the underlying ledger. It is nil until Register is
// called.
func (e *Extension) Ledger() *thermal.Ledger { return e.ledger }

// Register implements [forge.Extension]. It loads configuration,
// builds the ledger, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}
	if types.Account(e.config.Owner).IsNull() {
		return errors.New("thermal: extension requires an owner account")
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	if e.config.DisableMigrate {
		e.store = premigrated{e.store}
	}

	opts, err := e.buildLedgerOpts()
	if err != nil {
		return err
	}

	e.ledger = thermal.New(e.store, types.Account(e.config.Owner), opts...)

	return vessel.Provide(fapp.Container(), func() (*thermal.Ledger, error) {
		return e.ledger, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.ledger == nil {
		return errors.New("thermal: extension not initialized")
	}
	if err := e.ledger.Start(ctx); err != nil {
		return err
	}
	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	var err error
	if e.ledger != nil {
		err = e.ledger.Stop()
	}
	if e.nc != nil {
		e.nc.Close()
	}
	e.MarkStopped()
	return err
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("thermal: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return err
	}
	if e.nc != nil && !e.nc.IsConnected() {
		return errors.New("thermal: nats not connected")
	}
	return nil
}

// buildLedgerOpts constructs thermal.Option values from the resolved
// config.
func (e *Extension) buildLedgerOpts() ([]thermal.Option, error) {
	opts := make([]thermal.Option, 0, len(e.ledgerOpts)+4)

	if e.config.PluginTimeout > 0 {
		opts = append(opts, thermal.WithPluginTimeout(e.config.PluginTimeout))
	}
	if e.config.RequireVerifiedRecipient {
		opts = append(opts, thermal.WithRecipientVerification(true))
	}
	if e.config.AutoSettleOperator != "" && e.config.AutoSettleInterval > 0 {
		opts = append(opts, thermal.WithAutoSettle(
			types.Account(e.config.AutoSettleOperator),
			e.config.AutoSettleInterval,
		))
	}

	if e.config.NATSURL != "" {
		cfg := broadcast.DefaultConfig()
		cfg.URL = e.config.NATSURL
		cfg.Name = ExtensionName
		nc, err := broadcast.Connect(cfg, nil)
		if err != nil {
			return nil, err
		}
		e.nc = nc
		opts = append(opts, thermal.WithPlugin(
			broadcast.New(nc, broadcast.WithSubjectPrefix(e.config.SubjectPrefix)),
		))
		e.Logger().Info("thermal: broadcasting events",
			forge.F("nats_url", e.config.NATSURL),
			forge.F("subject_prefix", e.config.SubjectPrefix),
		)
	}

	// Append any pass-through ledger options.
	opts = append(opts, e.ledgerOpts...)

	return opts, nil
}

// premigrated skips Migrate for stores whose schema is managed
// elsewhere.
type premigrated struct {
	store.Store
}

func (premigrated) Migrate(context.Context) error { return nil }

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("thermal: configuration is required but not found in config files; " +
				"ensure 'extensions.thermal' or 'thermal' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("thermal: configuration loaded",
		forge.F("owner", e.config.Owner),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("require_verified_recipient", e.config.RequireVerifiedRecipient),
		forge.F("auto_settle_interval", e.config.AutoSettleInterval),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cfg, key, found, err := bindFileConfig(e.App().Config())
	if err != nil {
		e.Logger().Warn("thermal: failed to bind config",
			forge.F("error", err.Error()),
		)
	}
	if found {
		e.Logger().Debug("thermal: loaded config from file",
			forge.F("key", key),
		)
	}
	return cfg, found
}

// configSource is the part of forge's config manager the extension reads.
type configSource interface {
	IsSet(key string) bool
	Bind(key string, target any) error
}

// configKeys are tried in order.
var configKeys = []string{"extensions.thermal", "thermal"}

// bindFileConfig binds the first configured key that decodes. Keys that
// are present but fail to bind are reported in err.
func bindFileConfig(cm configSource) (Config, string, bool, error) {
	var errs []error
	for _, key := range configKeys {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			errs = append(errs, fmt.Errorf("bind %q: %w", key, err))
			continue
		}
		return cfg, key, true, errors.Join(errs...)
	}
	return Config{}, "", false, errors.Join(errs...)
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaults.SubjectPrefix
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and
// programmatic bool flags override when true.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.RequireVerifiedRecipient {
		yamlConfig.RequireVerifiedRecipient = true
	}

	if yamlConfig.Owner == "" {
		yamlConfig.Owner = programmaticConfig.Owner
	}
	if yamlConfig.AutoSettleOperator == "" {
		yamlConfig.AutoSettleOperator = programmaticConfig.AutoSettleOperator
	}
	if yamlConfig.AutoSettleInterval == 0 {
		yamlConfig.AutoSettleInterval = programmaticConfig.AutoSettleInterval
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	if yamlConfig.NATSURL == "" {
		yamlConfig.NATSURL = programmaticConfig.NATSURL
	}
	if yamlConfig.SubjectPrefix == "" {
		yamlConfig.SubjectPrefix = programmaticConfig.SubjectPrefix
	}

	return mergeWithDefaults(yamlConfig)
}
