// Package extension provides the Forge extension adapter for the affiliate
// engine.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.affiliate" or
// "affiliate" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/affiliate"
	"github.com/xraph/affiliate/account"
	"github.com/xraph/affiliate/catalog"
	"github.com/xraph/affiliate/intake/webhook"
	"github.com/xraph/affiliate/store"
	"github.com/xraph/affiliate/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "affiliate"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Affiliate commission ledger and entitlement reconciliation"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the affiliate engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *affiliate.Engine
	store      store.Store
	accounts   account.Store
	catalog    *catalog.Catalog
	engineOpts []affiliate.Option
}

// New creates a new affiliate Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *affiliate.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.build(); err != nil {
		return err
	}

	return vessel.Provide(fapp.Container(), func() (*affiliate.Engine, error) {
		return e.engine, nil
	})
}

// build fills in memory defaults and constructs the engine from the
// resolved config.
func (e *Extension) build() error {
	if e.store == nil {
		e.store = memory.New()
	}
	if e.accounts == nil {
		e.accounts = memory.NewAccounts()
	}
	if e.catalog == nil {
		if e.config.CatalogFile != "" {
			cat, err := catalog.LoadFile(e.config.CatalogFile)
			if err != nil {
				return fmt.Errorf("affiliate: load catalog: %w", err)
			}
			e.catalog = cat
		} else {
			e.catalog = catalog.Default()
		}
	}

	e.engine = affiliate.New(e.store, e.catalog, e.accounts, e.buildEngineOpts()...)
	return nil
}

// Handler returns the webhook intake mounted under Config.BasePath, for
// the host to serve.
func (e *Extension) Handler() http.Handler {
	r := chi.NewRouter()
	if e.engine == nil {
		return r
	}
	r.Mount(e.config.BasePath, webhook.New(e.engine).Router())
	return r
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("affiliate: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("affiliate: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs affiliate.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []affiliate.Option {
	opts := make([]affiliate.Option, 0, len(e.engineOpts)+2)

	if e.config.Currency != "" {
		opts = append(opts, affiliate.WithCurrency(e.config.Currency))
	}
	if e.config.PluginTimeout > 0 {
		opts = append(opts, affiliate.WithPluginTimeout(e.config.PluginTimeout))
	}

	// Pass-through options win over config-derived ones.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("affiliate: configuration is required but not found in config files; " +
				"ensure 'extensions.affiliate' or 'affiliate' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("affiliate: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("catalog_file", e.config.CatalogFile),
		forge.F("currency", e.config.Currency),
		forge.F("plugin_timeout", e.config.PluginTimeout),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.affiliate", "affiliate"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("affiliate: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("affiliate: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.CatalogFile == "" {
		yamlConfig.CatalogFile = programmaticConfig.CatalogFile
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}

	return mergeWithDefaults(yamlConfig)
}
