package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/downscaler/internal/api"
	"github.com/bryanchriswhite/downscaler/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve mirror control over MCP on stdio",
	Long: `Run a Model Context Protocol server on stdin/stdout that drives a running
"downscaler mirror" through its HTTP API. Agents can list windows, pick the
source, change scaling and send pointer input in mirror coordinates.

Logs go to stderr so stdout carries protocol traffic only.`,
	Example: `  # Control the mirror on the configured port
  downscaler mcp

  # Control a mirror on another host
  downscaler mcp --url http://192.168.1.20:8080`,
	RunE: runMCP,
}

var mcpURL string

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().StringVar(&mcpURL, "url", "", "base URL of the mirror API (default is http://localhost:<server_port>)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := mcpURL
	if url == "" {
		url = fmt.Sprintf("http://localhost:%d", cfg.ServerPort)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return mcp.NewServer(api.NewClient(url)).Run(ctx)
}
