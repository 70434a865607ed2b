package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/version"
)

const probeTimeout = 5 * time.Second

func newStatusCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and dependency health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen)
			red := color.New(color.FgRed)

			fmt.Fprintf(out, "agenthub %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s", paths.Config)
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprint(out, " (not found, using defaults)")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Data:    %s\n\n", paths.Data)

			fmt.Fprintf(out, "Server:  port=%d bind=%s\n", cfg.Server.Port, cfg.Server.Bind)
			fmt.Fprintf(out, "Primary: url=%s transport=%s tool=%s\n",
				cfg.PrimaryAgent.URL, cfg.PrimaryAgent.Transport, cfg.PrimaryAgent.ToolName)
			fmt.Fprintf(out, "Loop:    maxRounds=%d timeout=%s callTimeout=%s\n",
				cfg.Orchestrator.MaxRounds, cfg.Orchestrator.Timeout, cfg.Orchestrator.CallTimeout)
			fmt.Fprintf(out, "Store:   driver=%s\n", cfg.Store.Driver)

			if probe {
				fmt.Fprintln(out)
				ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
				defer cancel()

				fmt.Fprint(out, "Store:   ")
				if err := pingStore(ctx); err != nil {
					red.Fprintf(out, "UNREACHABLE (%v)\n", err)
				} else {
					green.Fprintln(out, "ok")
				}

				fmt.Fprint(out, "Primary: ")
				if n, err := probePrimary(ctx); err != nil {
					red.Fprintf(out, "UNREACHABLE (%v)\n", err)
				} else {
					green.Fprintf(out, "ok (%d tools)\n", n)
				}
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintln(out)
				printIssues(out, issues)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "connect to the store and primary agent")
	return cmd
}

// probePrimary opens a session to the primary agent and counts its tools.
func probePrimary(ctx context.Context) (int, error) {
	sess, err := newDialer().Dial(ctx, domain.Endpoint{
		URL:       cfg.PrimaryAgent.URL,
		Transport: cfg.PrimaryAgent.Transport,
	})
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	tools, err := sess.ListTools(ctx)
	if err != nil {
		return 0, err
	}
	return len(tools), nil
}
