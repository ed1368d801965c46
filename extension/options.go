package extension

import (
	"github.com/xraph/grove"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/funding"
	"github.com/xraph/tierledger/plugin"
	"github.com/xraph/tierledger/store"
	"github.com/xraph/tierledger/store/mongo"
	"github.com/xraph/tierledger/store/postgres"
	"github.com/xraph/tierledger/store/sqlite"
)

// Option configures the tierledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres backs the ledger with a grove PostgreSQL database.
func WithPostgres(db *grove.DB) Option {
	return WithStore(postgres.New(db))
}

// WithSQLite backs the ledger with a grove SQLite database.
func WithSQLite(db *grove.DB) Option {
	return WithStore(sqlite.New(db))
}

// WithMongo backs the ledger with a grove MongoDB database.
func WithMongo(db *grove.DB) Option {
	return WithStore(mongo.New(db))
}

// WithFunding sets the funding adapter and deposit token. Without it the
// extension runs on the in-memory simulated token.
func WithFunding(adapter funding.Adapter, token funding.Token) Option {
	return func(e *Extension) {
		e.adapter = adapter
		e.token = token
	}
}

// WithLedgerOption passes a tierledger.Option through to the underlying engine.
func WithLedgerOption(opt tierledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a ledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, tierledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDisableKeeper prevents the distribution keeper from running.
func WithDisableKeeper() Option {
	return func(e *Extension) { e.config.DisableKeeper = true }
}

// WithKeeperSpec sets the cron spec for distribution ticks.
func WithKeeperSpec(spec string) Option {
	return func(e *Extension) { e.config.KeeperSpec = spec }
}

// WithBasePath sets the URL prefix for the HTTP API.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithOperatorToken sets the bearer token for admin routes.
func WithOperatorToken(token string) Option {
	return func(e *Extension) { e.config.OperatorToken = token }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
