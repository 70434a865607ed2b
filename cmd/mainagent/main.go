// Command mainagent is the bundled primary agent: an MCP server exposing a
// chat tool backed by an OpenAI-compatible chat completions API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HuxJiang/ai-agent-platform/internal/config"
	"github.com/HuxJiang/ai-agent-platform/internal/llm"
	"github.com/HuxJiang/ai-agent-platform/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile  string
		listen   string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:           "mainagent",
		Short:         "Serve the primary agent chat tool over MCP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if logLevel == "" {
				logLevel = cfg.Logging.Level
			}
			log := logging.NewWithStyle(logLevel, cfg.Logging.ConsoleStyle).Sub("mainagent")

			mc := cfg.MainAgent
			if listen != "" {
				mc.Listen = listen
			}
			if mc.APIKey == "" {
				log.Warn().Msg("no API key configured (mainAgent.apiKey or OPENAI_API_KEY)")
			}

			client := llm.NewOpenAIClient(mc.BaseURL, mc.APIKey, mc.Model)
			agent := &chatAgent{
				llm:    llm.NewFailoverClient(client, mc.Model, mc.FallbackModels, log),
				system: mc.SystemPrompt,
				log:    log,
			}
			mcpSrv := server.NewStreamableHTTPServer(newServer(agent), server.WithEndpointPath("/mcp"))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := mcpSrv.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("shutdown")
				}
			}()

			log.Info().Str("addr", mc.Listen).Str("model", mc.Model).Strs("fallbacks", mc.FallbackModels).Msg("serving chat tool on /mcp")
			if err := mcpSrv.Start(mc.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default ~/.agenthub/config.yaml)")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default mainAgent.listen)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level")
	return cmd
}
