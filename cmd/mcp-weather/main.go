// Command mcp-weather is a sample sub-agent: an MCP server over streamable
// HTTP exposing NOAA forecast, alert and observation tools.
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
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/HuxJiang/ai-agent-platform/internal/logging"
	"github.com/HuxJiang/ai-agent-platform/internal/version"
)

const defaultUserAgent = "(agenthub mcp-weather, agenthub@example.com)"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		listen    string
		baseURL   string
		userAgent string
		level     string
	)

	cmd := &cobra.Command{
		Use:   "mcp-weather",
		Short: "MCP weather tools backed by the NOAA API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New(nil, level).Sub("mcp-weather")
			noaa := newNOAAClient(baseURL, userAgent)

			mcpSrv := server.NewStreamableHTTPServer(newServer(noaa, log),
				server.WithEndpointPath("/mcp"),
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				mcpSrv.Shutdown(shutdownCtx)
			}()

			log.Info().Str("addr", listen).Msg("serving MCP on /mcp")
			if err := mcpSrv.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8090", "listen address")
	cmd.Flags().StringVar(&baseURL, "noaa-url", defaultNOAABaseURL, "NOAA API base URL")
	cmd.Flags().StringVar(&userAgent, "user-agent", defaultUserAgent, "User-Agent sent to NOAA")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")
	return cmd
}

// newServer builds the MCP server with the weather tools registered.
func newServer(noaa *noaaClient, log *logging.Logger) *server.MCPServer {
	s := server.NewMCPServer("weather", version.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("get_forecast",
		mcp.WithDescription("Get the weather forecast for a latitude/longitude in the United States."),
		mcp.WithNumber("latitude", mcp.Required(), mcp.Description("Latitude"), mcp.Min(-90), mcp.Max(90)),
		mcp.WithNumber("longitude", mcp.Required(), mcp.Description("Longitude"), mcp.Min(-180), mcp.Max(180)),
		mcp.WithBoolean("hourly", mcp.Description("Return the hourly forecast")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lat, lon, errRes := coordinates(req)
		if errRes != nil {
			return errRes, nil
		}
		hourly := req.GetBool("hourly", false)
		log.Debug().Float64("lat", lat).Float64("lon", lon).Bool("hourly", hourly).Msg("get_forecast")
		out, err := noaa.Forecast(ctx, lat, lon, hourly)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("failed to get forecast", err), nil
		}
		return mcp.NewToolResultText(out), nil
	})

	s.AddTool(mcp.NewTool("get_alerts",
		mcp.WithDescription("Get active weather alerts for a US state."),
		mcp.WithString("state", mcp.Required(), mcp.Description("Two-letter state code, e.g. CA"), mcp.MinLength(2), mcp.MaxLength(2)),
		mcp.WithString("area", mcp.Description("Optional zone code")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		state, err := req.RequireString("state")
		if err != nil || state == "" {
			return mcp.NewToolResultError("state parameter is required"), nil
		}
		area := req.GetString("area", "")
		log.Debug().Str("state", state).Str("area", area).Msg("get_alerts")
		out, err := noaa.Alerts(ctx, state, area)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("failed to get alerts", err), nil
		}
		return mcp.NewToolResultText(out), nil
	})

	s.AddTool(mcp.NewTool("get_observation",
		mcp.WithDescription("Get the latest observed conditions near a latitude/longitude."),
		mcp.WithNumber("latitude", mcp.Required(), mcp.Description("Latitude")),
		mcp.WithNumber("longitude", mcp.Required(), mcp.Description("Longitude")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lat, lon, errRes := coordinates(req)
		if errRes != nil {
			return errRes, nil
		}
		log.Debug().Float64("lat", lat).Float64("lon", lon).Msg("get_observation")
		out, err := noaa.Observation(ctx, lat, lon)
		if err != nil {
			return mcp.NewToolResultErrorFromErr("failed to get observation", err), nil
		}
		return mcp.NewToolResultText(out), nil
	})

	return s
}

func coordinates(req mcp.CallToolRequest) (lat, lon float64, errRes *mcp.CallToolResult) {
	lat, err := req.RequireFloat("latitude")
	if err != nil {
		return 0, 0, mcp.NewToolResultError("latitude and longitude are required as numbers")
	}
	lon, err = req.RequireFloat("longitude")
	if err != nil {
		return 0, 0, mcp.NewToolResultError("latitude and longitude are required as numbers")
	}
	return lat, lon, nil
}
