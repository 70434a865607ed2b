package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/hooks"
	"github.com/HuxJiang/ai-agent-platform/internal/orchestrator"
)

func newCallCmd() *cobra.Command {
	var (
		agentID int64
		userID  int64
		role    string
		asJSON  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "call [message]",
		Short: "Run one agent call in-process and print the final message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := orchestrator.CallRequest{
				AgentID: agentID,
				UserID:  userID,
				Messages: []domain.Message{{
					Role:    domain.Role(role),
					Content: strings.Join(args, " "),
				}},
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			var opts []orchestrator.Option
			if verbose {
				hm := hooks.NewManager(log)
				hm.Subscribe("cli", hooks.CallEvents, func(_ context.Context, p hooks.Payload) error {
					printCallEvent(cmd.ErrOrStderr(), p)
					return nil
				})
				opts = append(opts, orchestrator.WithHooks(hm))
			}

			svc := orchestrator.NewService(cfg.PrimaryAgent, cfg.Orchestrator, db, newDialer(), log, opts...)
			resp, err := svc.Call(ctx, req)
			if err != nil {
				return fmt.Errorf("%d %s: %w", orchestrator.StatusCode(err), orchestrator.PublicMessage(err), err)
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			for _, m := range resp.Messages {
				fmt.Fprintln(out, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&agentID, "agent", 0, "sub-agent id")
	cmd.Flags().Int64Var(&userID, "user", 0, "calling user id")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleUser), "role of the message")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each round to stderr")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("user")

	return cmd
}

// printCallEvent renders one call hook event as a line of progress.
func printCallEvent(w io.Writer, p hooks.Payload) {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	dim := color.New(color.Faint)

	switch p.Event {
	case hooks.EventAgentCallStart:
		dim.Fprintf(w, "call %s started\n", p.CallID)
	case hooks.EventAgentRound:
		cyan.Fprintf(w, "round %v", p.Data["round"])
		if names, ok := p.Data["toolCalls"].([]string); ok && len(names) > 0 {
			fmt.Fprintf(w, " -> %s", strings.Join(names, ", "))
		}
		fmt.Fprintln(w)
	case hooks.EventToolDispatched:
		yellow.Fprintf(w, "  %v", p.Data["tool"])
		fmt.Fprintf(w, ": %s\n", truncate(fmt.Sprint(p.Data["result"]), 120))
	case hooks.EventAgentCallDone:
		if e, ok := p.Data["error"]; ok {
			color.New(color.FgRed).Fprintf(w, "call failed: %v\n", e)
			return
		}
		dim.Fprintf(w, "call done in %v rounds\n", p.Data["rounds"])
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
