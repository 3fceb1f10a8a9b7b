// Package cmd implements the astro-gateway command line.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/astro-gateway/internal/config"
	"github.com/Sternrassler/astro-gateway/pkg/logging"
)

var (
	cfgFile string

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "astro-gateway",
		Short: "Paginated, rate limited gateway for astronomical data",
		Long: `astro-gateway serves a local body catalog, upstream object search and
event feeds behind one HTTP API with cursor pagination and rate limiting.

Configuration is read from an optional YAML file and ASTRO_ prefixed
environment variables, e.g. ASTRO_REDIS_ADDR.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")

	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newImportCommand())
	root.AddCommand(newVersionCommand())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

// Main runs the command line and exits non-zero on failure.
func Main() {
	if err := Execute(); err != nil {
		exitf("Error: %v", err)
	}
}

// loadConfig loads the configuration and sets up the global logger.
func loadConfig(stderr io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	opts := cfg.Logging.Options()
	if stderr != nil {
		opts.Output = stderr
	}
	return cfg, logging.Setup(opts), nil
}

// exitf prints an error and exits with status 1.
func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
