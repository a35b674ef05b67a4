package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"fincast/internal/backend"
	"fincast/internal/config"
	"fincast/internal/log"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envFile  string
	backend  string
	logLevel string
}

// NewRootCommand builds the fincast command tree.
func NewRootCommand(version string) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "fincast",
		Short:         "Cash-flow, category and tax forecasts from a personal ledger",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadEnvFile(flags.envFile); err != nil {
				return fmt.Errorf("load env file %s: %w", flags.envFile, err)
			}
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "fincast version: %s\n" .Version}}`)

	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Optional .env file to load before reading the environment")
	root.PersistentFlags().StringVarP(&flags.backend, "backend", "b", "", fmt.Sprintf("Ledger backend, one of %v (overrides DATA_BACKEND)", backend.GetBackendTypeStrings()))
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		newServeCommand(flags),
		newWorkerCommand(flags),
		newForecastCommand(flags),
		newMigrateCommand(flags),
	)
	return root
}

// Execute runs the command tree and reports errors on stderr.
func Execute(version string) int {
	root := NewRootCommand(version)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// apply copies flag overrides onto cfg.
func (f *globalFlags) apply(cfg *config.Config) {
	if f.backend != "" {
		cfg.DataBackend = f.backend
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
}

// bootstrap loads configuration and builds the App for a command.
func (f *globalFlags) bootstrap(ctx context.Context, component string, logOut io.Writer) (*App, error) {
	cfg, err := LoadAndValidateConfig(f.apply)
	if err != nil {
		return nil, err
	}
	logger := log.New(log.ConfigFor(logOut, cfg.LogLevel, component))
	log.SetDefault(logger)
	return NewApp(ctx, cfg, logger, nil)
}
