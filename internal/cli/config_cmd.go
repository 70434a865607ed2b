package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/HuxJiang/ai-agent-platform/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Get, set or validate configuration values",
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}

			val, ok := config.GetValueAtPath(raw, path)
			if !ok {
				return fmt.Errorf("key %q not found", args[0])
			}

			return printValue(cmd.OutOrStdout(), val)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ParseConfigPath(args[0])
			if err != nil {
				return err
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				return err
			}

			value := parseValue(args[1])
			config.SetValueAtPath(raw, path, value)

			if err := paths.EnsureDirs(); err != nil {
				return err
			}
			if err := config.SaveRaw(paths.Config, raw); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", args[0], value)
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			issues := config.Validate(&cfg)
			out := cmd.OutOrStdout()
			if len(issues) == 0 {
				color.New(color.FgGreen).Fprintf(out, "%s is valid\n", paths.Config)
				return nil
			}
			printIssues(out, issues)
			return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
		},
	}
}

func printIssues(w io.Writer, issues []config.ValidationIssue) {
	yellow := color.New(color.FgYellow)
	yellow.Fprintf(w, "Validation issues (%d):\n", len(issues))
	for _, issue := range issues {
		fmt.Fprintf(w, "  - %s\n", issue)
	}
}

// printValue outputs a value in a human-readable format.
func printValue(w io.Writer, v any) error {
	switch val := v.(type) {
	case string:
		fmt.Fprintln(w, val)
	case map[string]any, []any:
		data, err := yaml.Marshal(val)
		if err != nil {
			return err
		}
		fmt.Fprint(w, string(data))
	default:
		fmt.Fprintln(w, val)
	}
	return nil
}

// parseValue attempts to interpret a string as a typed value.
func parseValue(s string) any {
	lower := strings.ToLower(s)
	if lower == "true" {
		return true
	}
	if lower == "false" {
		return false
	}

	// Try integer
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && fmt.Sprintf("%d", n) == s {
		return n
	}

	// Try float
	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err == nil && fmt.Sprint(f) == s {
		return f
	}

	return s
}
