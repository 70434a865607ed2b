package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/gateway"
	"github.com/HuxJiang/ai-agent-platform/internal/hooks"
	"github.com/HuxJiang/ai-agent-platform/internal/orchestrator"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			// Raw config backs the config.get RPC
			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				raw = make(map[string]any)
			}

			// Block until SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			hookMgr := hooks.NewManager(log)
			hookMgr.On(hooks.EventAgentCallDone, "call-log", func(_ context.Context, p hooks.Payload) error {
				log.Info().Str("callId", p.CallID).Interface("result", p.Data).Msg("agent call finished")
				return nil
			})

			svc := orchestrator.NewService(cfg.PrimaryAgent, cfg.Orchestrator, db, newDialer(), log,
				orchestrator.WithHooks(hookMgr),
			)

			log.Info().
				Str("primary", cfg.PrimaryAgent.URL).
				Str("store", cfg.Store.Driver).
				Int("maxRounds", cfg.Orchestrator.MaxRounds).
				Msg("orchestrator ready")

			srv := gateway.New(cfg, log,
				gateway.WithConfigRaw(raw),
				gateway.WithHooks(hookMgr),
				gateway.WithCaller(svc),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan, custom)")

	return cmd
}
