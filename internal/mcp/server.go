// Package mcp exposes mirror control as Model Context Protocol tools so an
// agent can pick a source window and drive it through the mirror.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/downscaler/internal/api"
	"github.com/bryanchriswhite/downscaler/internal/logger"
)

const (
	ServerName    = "downscaler"
	ServerVersion = api.Version
)

// Server is the MCP server for mirror control.
type Server struct {
	mcpServer *mcpsdk.Server
	mirror    api.Mirror
	log       zerolog.Logger
}

// NewServer creates an MCP server driving m, which is usually an
// api.Client pointed at a running mirror.
func NewServer(m api.Mirror) *Server {
	s := &Server{
		mirror: m,
		log:    *logger.WithComponent("mcp"),
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info().Msg("Serving MCP on stdio")
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List top-level windows that can be mirrored, with handle, title, class and owning process.",
	}, s.handleListWindows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "select_source",
		Description: "Start mirroring a window, chosen by handle or by query. A query matches the exact title, or the process name when it contains .exe or starts with process:. The query is remembered so the window is re-selected if it is recreated.",
	}, s.handleSelectSource)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "mirror_status",
		Description: "Report the mirrored window, source and mirror sizes, scale factors, capture rate and last pointer position.",
	}, s.handleMirrorStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "send_pointer",
		Description: "Send a pointer event at a position in mirror pixels. It is scaled onto the source window and delivered to the child windows under it.",
	}, s.handleSendPointer)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_scaling",
		Description: "Change how the mirror size is derived from the source. Set at most one of mirror size, factor, or downscale size.",
	}, s.handleSetScaling)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "stop_mirror",
		Description: "Stop mirroring the current source window.",
	}, s.handleStopMirror)
}
