package window

import (
	"fmt"
	"strings"
)

// EventKind is the type of a forwarded pointer event.
type EventKind int

const (
	EventMove EventKind = iota
	EventLeftDown
	EventLeftUp
	EventLeftDoubleClick
	EventRightDown
	EventRightUp
	EventRightDoubleClick
	EventMiddleDown
	EventMiddleUp
	EventMiddleDoubleClick
)

var eventNames = map[EventKind]string{
	EventMove:              "move",
	EventLeftDown:          "left_down",
	EventLeftUp:            "left_up",
	EventLeftDoubleClick:   "left_double_click",
	EventRightDown:         "right_down",
	EventRightUp:           "right_up",
	EventRightDoubleClick:  "right_double_click",
	EventMiddleDown:        "middle_down",
	EventMiddleUp:          "middle_up",
	EventMiddleDoubleClick: "middle_double_click",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// ParseEventKind is the inverse of String.
func ParseEventKind(s string) (EventKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range eventNames {
		if name == s {
			return k, nil
		}
	}
	return EventMove, fmt.Errorf("unknown event kind %q", s)
}

// Button returns the X11-style button number (1 left, 2 middle, 3 right) for
// button events, or 0 for moves.
func (k EventKind) Button() int {
	switch k {
	case EventLeftDown, EventLeftUp, EventLeftDoubleClick:
		return 1
	case EventMiddleDown, EventMiddleUp, EventMiddleDoubleClick:
		return 2
	case EventRightDown, EventRightUp, EventRightDoubleClick:
		return 3
	}
	return 0
}

// IsRelease reports whether k lifts a button.
func (k EventKind) IsRelease() bool {
	return k == EventLeftUp || k == EventRightUp || k == EventMiddleUp
}

// Buttons is the held-button/modifier mask sent with an event. Values match
// the Win32 MK_* flags.
type Buttons uint32

const (
	ButtonLeft    Buttons = 0x0001
	ButtonRight   Buttons = 0x0002
	ButtonShift   Buttons = 0x0004
	ButtonControl Buttons = 0x0008
	ButtonMiddle  Buttons = 0x0010
)

// DefaultButtons is the mask implied by kind when the caller has no better
// information: the pressed button is held for downs and double clicks.
func DefaultButtons(kind EventKind) Buttons {
	switch kind {
	case EventLeftDown, EventLeftDoubleClick:
		return ButtonLeft
	case EventRightDown, EventRightDoubleClick:
		return ButtonRight
	case EventMiddleDown, EventMiddleDoubleClick:
		return ButtonMiddle
	}
	return 0
}
