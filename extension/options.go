package extension

import (
	"time"

	"github.com/xraph/affiliate"
	"github.com/xraph/affiliate/account"
	"github.com/xraph/affiliate/catalog"
	"github.com/xraph/affiliate/plugin"
	"github.com/xraph/affiliate/store"
)

// Option configures the affiliate Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithAccounts sets the account collaborator.
func WithAccounts(a account.Store) Option {
	return func(e *Extension) {
		e.accounts = a
	}
}

// WithCatalog sets the product catalog, overriding CatalogFile.
func WithCatalog(c *catalog.Catalog) Option {
	return func(e *Extension) {
		e.catalog = c
	}
}

// WithEngineOption passes an affiliate.Option through to the underlying engine.
func WithEngineOption(opt affiliate.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, affiliate.WithPlugin(p))
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

// WithBasePath sets the URL prefix for the webhook intake.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithCatalogFile loads the product catalog from a YAML file.
func WithCatalogFile(path string) Option {
	return func(e *Extension) { e.config.CatalogFile = path }
}

// WithCurrency sets the earnings currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithPluginTimeout bounds a single plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
