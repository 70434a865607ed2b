package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/HuxJiang/ai-agent-platform/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of agenthub",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
