// Command server runs the Thursday Random Diner API and its maintenance
// tasks.  Every subcommand reads its configuration from the environment,
// optionally seeded from a .env file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/thursday-diner/internal/config"
	"github.com/iliyamo/thursday-diner/internal/logging"
)

var envFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "server",
		Short:         "Thursday Random Diner API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.AddCommand(newServeCmd(), newMigrateCmd(), newSeedCmd(), newRevealCmd())
	return root
}

// bootstrap loads configuration and builds the logger shared by every
// subcommand.
func bootstrap() (config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}
