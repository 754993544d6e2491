package mcp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

func (s *Server) handleListWindows(_ context.Context, _ *mcpsdk.CallToolRequest, args ListWindowsInput) (*mcpsdk.CallToolResult, ListWindowsOutput, error) {
	nodes, err := s.mirror.Windows()
	if err != nil {
		return nil, ListWindowsOutput{}, fmt.Errorf("failed to list windows: %w", err)
	}

	filter := strings.ToLower(strings.TrimSpace(args.Filter))
	out := ListWindowsOutput{Windows: make([]window.Node, 0, len(nodes))}
	for _, n := range nodes {
		if filter == "" || matchesFilter(n, filter) {
			out.Windows = append(out.Windows, n)
		}
	}

	s.log.Debug().Int("count", len(out.Windows)).Str("filter", filter).Msg("list_windows")
	return nil, out, nil
}

func matchesFilter(n window.Node, filter string) bool {
	for _, field := range []string{n.Title, n.Class, n.Process} {
		if strings.Contains(strings.ToLower(field), filter) {
			return true
		}
	}
	return false
}

func (s *Server) handleSelectSource(_ context.Context, _ *mcpsdk.CallToolRequest, args SelectSourceInput) (*mcpsdk.CallToolResult, SelectSourceOutput, error) {
	if h := strings.TrimSpace(args.Handle); h != "" {
		node, err := s.selectByHandle(h)
		if err != nil {
			return nil, SelectSourceOutput{}, err
		}
		return nil, SelectSourceOutput{Window: node}, nil
	}

	if strings.TrimSpace(args.Query) == "" {
		return nil, SelectSourceOutput{}, fmt.Errorf("query or handle is required")
	}
	node, err := s.mirror.SelectByQuery(window.Query{Text: args.Query, Class: args.Class})
	if err != nil {
		return nil, SelectSourceOutput{}, err
	}

	s.log.Info().Str("window", node.Handle.String()).Str("title", node.Title).Msg("select_source")
	return nil, SelectSourceOutput{Window: node}, nil
}

func (s *Server) selectByHandle(raw string) (window.Node, error) {
	n, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return window.Node{}, fmt.Errorf("invalid handle %q", raw)
	}
	h := window.Handle(n)

	nodes, err := s.mirror.Windows()
	if err != nil {
		return window.Node{}, fmt.Errorf("failed to list windows: %w", err)
	}
	for _, node := range nodes {
		if node.Handle == h {
			if err := s.mirror.SelectSource(node); err != nil {
				return window.Node{}, err
			}
			s.log.Info().Str("window", h.String()).Str("title", node.Title).Msg("select_source")
			return node, nil
		}
	}
	return window.Node{}, fmt.Errorf("%w: handle %s", window.ErrWindowNotFound, h)
}

func (s *Server) handleMirrorStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ MirrorStatusInput) (*mcpsdk.CallToolResult, MirrorStatusOutput, error) {
	return nil, statusOutput(s.mirror.Status()), nil
}

func (s *Server) handleSendPointer(_ context.Context, _ *mcpsdk.CallToolRequest, args SendPointerInput) (*mcpsdk.CallToolResult, SendPointerOutput, error) {
	kinds := []window.EventKind{window.EventMove}
	switch {
	case args.Click:
		kinds = []window.EventKind{window.EventLeftDown, window.EventLeftUp}
	case args.Kind != "":
		k, err := window.ParseEventKind(args.Kind)
		if err != nil {
			return nil, SendPointerOutput{}, err
		}
		kinds = []window.EventKind{k}
	}

	out := SendPointerOutput{Sent: make([]string, 0, len(kinds))}
	for _, k := range kinds {
		buttons := window.DefaultButtons(k)
		if args.Buttons != nil && !args.Click {
			buttons = window.Buttons(*args.Buttons)
		}
		ev := input.PointerEvent{X: args.X, Y: args.Y, Kind: k, Buttons: buttons}
		if err := s.mirror.HandlePointer(ev); err != nil {
			return nil, out, fmt.Errorf("%s at %d,%d: %w", k, args.X, args.Y, err)
		}
		out.Sent = append(out.Sent, k.String())
	}
	return nil, out, nil
}

func (s *Server) handleSetScaling(_ context.Context, _ *mcpsdk.CallToolRequest, args SetScalingInput) (*mcpsdk.CallToolResult, SetScalingOutput, error) {
	scaling := config.ScalingConfig{
		MirrorWidth:     args.MirrorWidth,
		MirrorHeight:    args.MirrorHeight,
		Factor:          args.Factor,
		DownscaleWidth:  args.DownscaleWidth,
		DownscaleHeight: args.DownscaleHeight,
		Aspect:          args.Aspect,
	}
	if err := s.mirror.ApplyScaling(scaling); err != nil {
		return nil, SetScalingOutput{}, err
	}

	st := s.mirror.Status()
	return nil, SetScalingOutput{MirrorSize: st.MirrorSize, Factors: st.Factors}, nil
}

func (s *Server) handleStopMirror(_ context.Context, _ *mcpsdk.CallToolRequest, _ StopMirrorInput) (*mcpsdk.CallToolResult, StopMirrorOutput, error) {
	if err := s.mirror.Stop(); err != nil {
		return nil, StopMirrorOutput{}, err
	}
	return nil, StopMirrorOutput{Stopped: true}, nil
}
