package extension

import "time"

// Config holds the affiliate extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.affiliate" or "affiliate" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix the webhook intake is mounted under
	// (default: "/affiliate/webhooks").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// CatalogFile is a YAML product catalog. When empty the built-in
	// catalog is used.
	CatalogFile string `json:"catalog_file" mapstructure:"catalog_file" yaml:"catalog_file"`

	// Currency is the ISO code earnings summaries are reported in
	// (default: "usd").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// PluginTimeout bounds a single plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:      "/affiliate/webhooks",
		Currency:      "usd",
		PluginTimeout: 5 * time.Second,
	}
}
