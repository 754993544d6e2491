package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bryanchriswhite/downscaler/internal/config"
	"github.com/bryanchriswhite/downscaler/internal/input"
	"github.com/bryanchriswhite/downscaler/internal/mirror"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// Client drives a running server over HTTP. It satisfies Mirror, so tools
// written against a local controller work against a remote one.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errorFor(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// errorFor is the inverse of statusFor.
func errorFor(code int, msg string) error {
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", window.ErrWindowNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", mirror.ErrNoSource, msg)
	case http.StatusGone:
		return fmt.Errorf("%w: %s", input.ErrSourceWindowLost, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", errBadRequest, msg)
	}
	return fmt.Errorf("server returned %d: %s", code, msg)
}

// Status fetches /api/status.
func (c *Client) Status() mirror.Status {
	var st mirror.Status
	if err := c.do(http.MethodGet, "/api/status", nil, &st); err != nil {
		st.State = "unreachable"
	}
	return st
}

// Windows fetches /api/windows.
func (c *Client) Windows() ([]window.Node, error) {
	var nodes []window.Node
	err := c.do(http.MethodGet, "/api/windows", nil, &nodes)
	return nodes, err
}

// SelectByQuery selects the source by query.
func (c *Client) SelectByQuery(q window.Query) (window.Node, error) {
	var node window.Node
	err := c.do(http.MethodPost, "/api/source", sourceRequest{Query: q.Text, Class: q.Class}, &node)
	return node, err
}

// SelectSource selects node by handle.
func (c *Client) SelectSource(node window.Node) error {
	return c.do(http.MethodPost, "/api/source", sourceRequest{Handle: node.Handle.String()}, nil)
}

// Stop ends mirroring.
func (c *Client) Stop() error {
	return c.do(http.MethodDelete, "/api/source", nil, nil)
}

// ApplyScaling replaces the scaling options.
func (c *Client) ApplyScaling(s config.ScalingConfig) error {
	return c.do(http.MethodPut, "/api/config/scaling", s, nil)
}

// HandlePointer forwards a mirror-local pointer event.
func (c *Client) HandlePointer(ev input.PointerEvent) error {
	buttons := ev.Buttons
	msg := pointerMessage{X: ev.X, Y: ev.Y, Kind: ev.Kind.String(), Buttons: &buttons}
	return c.do(http.MethodPost, "/api/input", msg, nil)
}
