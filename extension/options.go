package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/thermal"
	"github.com/xraph/thermal/plugin"
	"github.com/xraph/thermal/store"
	"github.com/xraph/thermal/store/mongo"
	"github.com/xraph/thermal/store/postgres"
	"github.com/xraph/thermal/store/sqlite"
)

// Option configures the thermal Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres persists the ledger in PostgreSQL through db.
func WithPostgres(db *grove.DB) Option {
	return WithStore(postgres.New(db))
}

// WithSQLite persists the ledger in SQLite through db.
func WithSQLite(db *grove.DB) Option {
	return WithStore(sqlite.New(db))
}

// WithMongo persists the ledger in MongoDB through db.
func WithMongo(db *grove.DB) Option {
	return WithStore(mongo.New(db))
}

// WithLedgerOption passes a thermal.Option through to the ledger.
func WithLedgerOption(opt thermal.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, thermal.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithOwner sets the ledger owner account.
func WithOwner(owner string) Option {
	return func(e *Extension) { e.config.Owner = owner }
}

// WithDisableMigrate skips store migrations on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRecipientVerification requires transfer recipients to be verified.
func WithRecipientVerification() Option {
	return func(e *Extension) { e.config.RequireVerifiedRecipient = true }
}

// WithAutoSettle settles pending trades as operator every interval.
func WithAutoSettle(operator string, interval time.Duration) Option {
	return func(e *Extension) {
		e.config.AutoSettleOperator = operator
		e.config.AutoSettleInterval = interval
	}
}

// WithNATS broadcasts events to the NATS server at url.
func WithNATS(url string) Option {
	return func(e *Extension) { e.config.NATSURL = url }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
