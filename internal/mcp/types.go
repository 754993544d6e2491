package mcp

import (
	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/mirror"
	"github.com/bryanchriswhite/downscaler/internal/window"
)

// ListWindowsInput is the input for the list_windows tool.
type ListWindowsInput struct {
	Filter string `json:"filter,omitempty" jsonschema:"Optional case-insensitive substring matched against title, class and process"`
}

// ListWindowsOutput is the output for the list_windows tool.
type ListWindowsOutput struct {
	Windows []window.Node `json:"windows"`
}

// SelectSourceInput is the input for the select_source tool.
type SelectSourceInput struct {
	Query  string `json:"query,omitempty" jsonschema:"Window title, or a process name (anything containing .exe or prefixed with process:)"`
	Class  string `json:"class,omitempty" jsonschema:"Optional window class that must also match"`
	Handle string `json:"handle,omitempty" jsonschema:"Window handle from list_windows (decimal or 0x hex). Takes precedence over query."`
}

// SelectSourceOutput is the output for the select_source tool.
type SelectSourceOutput struct {
	Window window.Node `json:"window"`
}

// MirrorStatusInput is the input for the mirror_status tool.
type MirrorStatusInput struct{}

// MirrorStatusOutput is the output for the mirror_status tool.
type MirrorStatusOutput struct {
	Active     bool                  `json:"active"`
	Source     *window.Node          `json:"source,omitempty"`
	Query      string                `json:"query,omitempty"`
	State      string                `json:"state"`
	SourceSize geometry.Size         `json:"source_size"`
	MirrorSize geometry.Size         `json:"mirror_size"`
	Factors    geometry.ScaleFactors `json:"factors"`
	Aspect     string                `json:"aspect"`
	FPS        float64               `json:"fps"`
	Frames     uint64                `json:"frames"`
	Pointer    *PointerPosition      `json:"pointer,omitempty"`
}

// PointerPosition is the last forwarded pointer position.
type PointerPosition struct {
	Mirror   geometry.Point `json:"mirror"`
	Source   geometry.Point `json:"source"`
	Absolute geometry.Point `json:"absolute"`
	Inside   bool           `json:"inside"`
}

func statusOutput(st mirror.Status) MirrorStatusOutput {
	out := MirrorStatusOutput{
		Active:     st.Active,
		Source:     st.Source,
		Query:      st.Query,
		State:      st.State,
		SourceSize: st.SourceSize,
		MirrorSize: st.MirrorSize,
		Factors:    st.Factors,
		Aspect:     st.Aspect,
		FPS:        st.Capture.FPS,
		Frames:     st.Capture.Frames,
	}
	if p := st.Pointer; p != nil {
		out.Pointer = &PointerPosition{
			Mirror:   p.Local,
			Source:   p.Source,
			Absolute: p.Absolute,
			Inside:   p.Inside,
		}
	}
	return out
}

// SendPointerInput is the input for the send_pointer tool.
type SendPointerInput struct {
	X       int    `json:"x" jsonschema:"required,Horizontal position in mirror pixels"`
	Y       int    `json:"y" jsonschema:"required,Vertical position in mirror pixels"`
	Kind    string `json:"kind,omitempty" jsonschema:"Event kind: move, left_down, left_up, left_double_click, right_down, right_up, right_double_click, middle_down, middle_up, middle_double_click (default: move)"`
	Click   bool   `json:"click,omitempty" jsonschema:"When true, send a left down followed by a left up at x,y. Overrides kind."`
	Buttons *int   `json:"buttons,omitempty" jsonschema:"Held button and modifier mask (1 left, 2 right, 4 shift, 8 control, 16 middle). Defaults to the button implied by kind."`
}

// SendPointerOutput is the output for the send_pointer tool.
type SendPointerOutput struct {
	Sent []string `json:"sent"`
}

// SetScalingInput is the input for the set_scaling tool.
type SetScalingInput struct {
	MirrorWidth     int     `json:"mirror_width,omitempty" jsonschema:"Mirror width in pixels. With no height the source aspect ratio is kept."`
	MirrorHeight    int     `json:"mirror_height,omitempty" jsonschema:"Mirror height in pixels. With no width the source aspect ratio is kept."`
	Factor          float64 `json:"factor,omitempty" jsonschema:"Divide the source size by this factor"`
	DownscaleWidth  int     `json:"downscale_width,omitempty" jsonschema:"Fixed mirror width; requires downscale_height"`
	DownscaleHeight int     `json:"downscale_height,omitempty" jsonschema:"Fixed mirror height; requires downscale_width"`
	Aspect          string  `json:"aspect,omitempty" jsonschema:"maintain (letterbox) or stretch"`
}

// SetScalingOutput is the output for the set_scaling tool.
type SetScalingOutput struct {
	MirrorSize geometry.Size         `json:"mirror_size"`
	Factors    geometry.ScaleFactors `json:"factors"`
}

// StopMirrorInput is the input for the stop_mirror tool.
type StopMirrorInput struct{}

// StopMirrorOutput is the output for the stop_mirror tool.
type StopMirrorOutput struct {
	Stopped bool `json:"stopped"`
}
