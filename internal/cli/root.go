package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/mcpclient"
	"github.com/HuxJiang/ai-agent-platform/internal/store"
)

var (
	cfgFile  string
	logLevel string

	// loaded at init time
	paths config.Paths
	cfg   config.Config
	log   *logging.Logger
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agenthub",
		Short: "agenthub orchestrates MCP agents and their tool calls",
		Long: "agenthub relays conversations to a primary agent over MCP, dispatches the\n" +
			"tool calls it requests to a user's sub-agent and returns the final answer.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			cfg, err = config.Load(paths.Config)
			if err != nil {
				return err
			}
			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			log = logging.NewWithStyle(level, cfg.Logging.ConsoleStyle)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.agenthub/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCallCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newAgentCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

// openStore opens the configured record store, creating the data directory
// for the default SQLite file.
func openStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Driver != "postgres" && cfg.Store.Path == "" {
		if err := paths.EnsureDirs(); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	db, err := store.Open(ctx, cfg.Store, paths.DatabasePath(), log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return db, nil
}

func newDialer() *mcpclient.MCPDialer {
	return mcpclient.NewDialer(log, mcpclient.WithCallTimeout(cfg.Orchestrator.CallTimeout))
}
