// Command affiliatectl replays payment events, serves the webhook and
// queue intakes, and validates product catalogs.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xraph/affiliate/catalog"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globals shared by every subcommand, resolved in PersistentPreRunE.
type globals struct {
	envFile     string
	logLevel    string
	catalogFile string

	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "affiliatectl",
		Short:         "Affiliate commission ledger and entitlement reconciliation",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.init(cmd)
		},
	}
	root.SetVersionTemplate("affiliatectl {{.Version}} (" + GitCommit + ")\n")

	pf := root.PersistentFlags()
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file with AFFILIATE_* defaults")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level (env AFFILIATE_LOG_LEVEL)")
	pf.StringVar(&g.catalogFile, "catalog", "", "product catalog YAML; built-in catalog when empty (env AFFILIATE_CATALOG)")

	root.AddCommand(newReplayCmd(g), newServeCmd(g), newCatalogCmd(g))
	return root
}

func (g *globals) init(cmd *cobra.Command) error {
	// A missing env file is normal; existing environment variables win.
	if err := godotenv.Load(g.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", g.envFile, err)
	}
	g.logLevel = stringFlag(cmd, "log-level", "AFFILIATE_LOG_LEVEL")
	g.catalogFile = stringFlag(cmd, "catalog", "AFFILIATE_CATALOG")

	level, err := zerolog.ParseLevel(g.logLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	g.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
	return nil
}

func (g *globals) catalog() (*catalog.Catalog, error) {
	if g.catalogFile == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(g.catalogFile)
}

// stringFlag returns the flag value when set on the command line, else the
// environment variable, else the flag default.
func stringFlag(cmd *cobra.Command, name, env string) string {
	f := cmd.Flags().Lookup(name)
	if f == nil {
		return ""
	}
	if f.Changed {
		return f.Value.String()
	}
	if v, ok := os.LookupEnv(env); ok && v != "" {
		return v
	}
	return f.Value.String()
}
