// Package extension provides the Forge extension adapter for tierledger.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with DI registration, a cron-driven
// distribution keeper and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tierledger" or
// "tierledger" keys.
package extension

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/tierledger"
	"github.com/xraph/tierledger/api"
	"github.com/xraph/tierledger/funding"
	fundmem "github.com/xraph/tierledger/funding/memory"
	"github.com/xraph/tierledger/keeper"
	"github.com/xraph/tierledger/store"
	"github.com/xraph/tierledger/store/memory"
	"github.com/xraph/tierledger/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tierledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Tiered time-proportional subscription ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// devReserve funds the in-memory adapter when no funding is configured.
const devReserve types.AccountID = "tierledger:reserve"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts tierledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *tierledger.Ledger
	keeper     *keeper.Keeper
	handler    http.Handler
	store      store.Store
	adapter    funding.Adapter
	token      funding.Token
	ledgerOpts []tierledger.Option
}

// New creates a new tierledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying ledger.
// This is nil until Register is called.
func (e *Extension) Engine() *tierledger.Ledger { return e.engine }

// Handler returns the HTTP API mounted at the configured base path.
// This is nil until Register is called.
func (e *Extension) Handler() http.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	if e.adapter == nil || e.token == nil {
		token := fundmem.NewToken()
		e.token = token
		e.adapter = fundmem.NewAdapter(token, devReserve)
		e.Logger().Warn("tierledger: no funding configured, using in-memory token")
	}

	e.engine = tierledger.New(e.store, e.adapter, e.token, e.buildLedgerOpts()...)

	if !e.config.DisableKeeper {
		k, err := keeper.New(e.engine, e.config.KeeperSpec)
		if err != nil {
			return err
		}
		e.keeper = k
	}

	srv := api.NewServer(e.engine, "", api.WithOperatorToken(e.config.OperatorToken))
	r := chi.NewRouter()
	r.Mount(e.config.BasePath, srv.Handler())
	e.handler = r

	return vessel.Provide(fapp.Container(), func() (*tierledger.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tierledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.keeper != nil {
		if err := e.keeper.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	var errs []error
	if e.keeper != nil {
		if err := e.keeper.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	e.MarkStopped()
	return errors.Join(errs...)
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tierledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs tierledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []tierledger.Option {
	opts := make([]tierledger.Option, 0, len(e.ledgerOpts)+3)

	if e.config.CustodyAccount != "" {
		opts = append(opts, tierledger.WithCustodyAccount(types.AccountID(e.config.CustodyAccount)))
	}
	if e.config.SinkAccount != "" {
		opts = append(opts, tierledger.WithSink(types.AccountID(e.config.SinkAccount)))
	}
	opts = append(opts, tierledger.WithTokenDecimals(e.config.TokenDecimals))

	// Append any pass-through ledger options.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tierledger: configuration is required but not found in config files; " +
				"ensure 'extensions.tierledger' or 'tierledger' key exists in your config")
		}

		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tierledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("disable_keeper", e.config.DisableKeeper),
		forge.F("keeper_spec", e.config.KeeperSpec),
		forge.F("base_path", e.config.BasePath),
		forge.F("custody_account", e.config.CustodyAccount),
		forge.F("sink_account", e.config.SinkAccount),
		forge.F("token_decimals", e.config.TokenDecimals),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.tierledger", "tierledger"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("tierledger: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("tierledger: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = defaults.TokenDecimals
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.DisableKeeper {
		yamlConfig.DisableKeeper = true
	}

	// String fields: YAML takes precedence.
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.BasePath, programmaticConfig.BasePath)
	fill(&yamlConfig.KeeperSpec, programmaticConfig.KeeperSpec)
	fill(&yamlConfig.OperatorToken, programmaticConfig.OperatorToken)
	fill(&yamlConfig.CustodyAccount, programmaticConfig.CustodyAccount)
	fill(&yamlConfig.SinkAccount, programmaticConfig.SinkAccount)

	if yamlConfig.TokenDecimals == 0 && programmaticConfig.TokenDecimals != 0 {
		yamlConfig.TokenDecimals = programmaticConfig.TokenDecimals
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
