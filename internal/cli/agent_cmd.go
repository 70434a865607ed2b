package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/HuxJiang/ai-agent-platform/internal/domain"
	"github.com/HuxJiang/ai-agent-platform/internal/store"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Manage sub-agent records",
	}

	cmd.AddCommand(newAgentAddCmd())
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentLinkCmd())
	cmd.AddCommand(newAgentInfoCmd())
	return cmd
}

func newAgentAddCmd() *cobra.Command {
	var (
		a       domain.Agent
		ownerID int64
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a sub-agent owned by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Name = args[0]

			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			created, err := db.CreateAgent(cmd.Context(), a, ownerID)
			if err != nil {
				return err
			}

			green := color.New(color.FgGreen)
			green.Fprintf(cmd.OutOrStdout(), "Created agent %d", created.ID)
			fmt.Fprintf(cmd.OutOrStdout(), " (%s) owned by user %d\n", created.Name, ownerID)
			return nil
		},
	}

	cmd.Flags().StringVar(&a.URL, "url", "", "MCP endpoint of the agent")
	cmd.Flags().StringVar(&a.ConnectType, "connect-type", domain.TransportStreamHTTP, "MCP transport (stream-http, sse)")
	cmd.Flags().StringVar(&a.Description, "description", "", "short description")
	cmd.Flags().StringVar(&a.Category, "category", "", "catalog category")
	cmd.Flags().BoolVar(&a.IsPublic, "public", false, "list the agent publicly")
	cmd.Flags().Int64Var(&ownerID, "owner", 0, "owning user id")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func newAgentListCmd() *cobra.Command {
	var f store.ListFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			agents, err := db.ListAgents(cmd.Context(), f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(agents) == 0 {
				fmt.Fprintln(out, "No agents registered.")
				return nil
			}

			cyan := color.New(color.FgCyan)
			for _, a := range agents {
				cyan.Fprintf(out, "  %-4d", a.ID)
				fmt.Fprintf(out, " %-20s %-11s %s", a.Name, a.ConnectType, a.URL)
				if a.IsPublic {
					fmt.Fprint(out, " (public)")
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&f.UserID, "user", 0, "only agents this user owns or favorited")
	cmd.Flags().BoolVar(&f.PublicOnly, "public", false, "only public agents")

	return cmd
}

func newAgentLinkCmd() *cobra.Command {
	var r domain.Relation

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Record that a user owns or favorites an agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Link(cmd.Context(), r); err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Linked user %d to agent %d as %s\n", r.UserID, r.AgentID, r.Kind)
			return nil
		},
	}

	cmd.Flags().Int64Var(&r.UserID, "user", 0, "user id")
	cmd.Flags().Int64Var(&r.AgentID, "agent", 0, "agent id")
	cmd.Flags().StringVar(&r.Kind, "relation", domain.RelationFavorite, "relation kind (owner, favorite)")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("agent")

	return cmd
}

func newAgentInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <agent-id>",
		Short: "Show details about an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid agent id %q", args[0])
			}

			db, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			a, err := db.GetAgent(cmd.Context(), id)
			if errors.Is(err, domain.ErrAgentNotFound) {
				return fmt.Errorf("agent not found: %d", id)
			}
			if err != nil {
				return err
			}

			printAgent(cmd.OutOrStdout(), a)
			return nil
		},
	}
}

func printAgent(w io.Writer, a *domain.Agent) {
	cyan := color.New(color.FgCyan)
	cyan.Fprintf(w, "Agent %d (%s)\n", a.ID, a.Name)
	if a.Description != "" {
		fmt.Fprintf(w, "  Description: %s\n", a.Description)
	}
	if a.Category != "" {
		fmt.Fprintf(w, "  Category:    %s\n", a.Category)
	}
	url := a.URL
	if url == "" {
		url = color.YellowString("(none, tool calls will fail)")
	}
	fmt.Fprintf(w, "  URL:         %s\n", url)
	fmt.Fprintf(w, "  Transport:   %s\n", a.ConnectType)
	fmt.Fprintf(w, "  Public:      %v\n", a.IsPublic)
	fmt.Fprintf(w, "  Favorites:   %d\n", a.FavoriteCount)
	fmt.Fprintf(w, "  Created:     %s\n", a.CreatedAt.Format(time.DateTime))
}

// pingStore reports whether the configured store opens and answers.
func pingStore(ctx context.Context) error {
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Ping(ctx)
}
