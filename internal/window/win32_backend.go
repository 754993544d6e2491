//go:build windows

package window

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/bryanchriswhite/downscaler/internal/geometry"
	"github.com/bryanchriswhite/downscaler/internal/logger"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	dwmapi = windows.NewLazySystemDLL("dwmapi.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procEnumChildWindows         = user32.NewProc("EnumChildWindows")
	procGetAncestor              = user32.NewProc("GetAncestor")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetClassNameW            = user32.NewProc("GetClassNameW")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procIsWindow                 = user32.NewProc("IsWindow")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetWindowLongW           = user32.NewProc("GetWindowLongW")
	procGetShellWindow           = user32.NewProc("GetShellWindow")
	procGetWindowRect            = user32.NewProc("GetWindowRect")
	procGetClientRect            = user32.NewProc("GetClientRect")
	procClientToScreen           = user32.NewProc("ClientToScreen")
	procGetDpiForWindow          = user32.NewProc("GetDpiForWindow")
	procGetForegroundWindow      = user32.NewProc("GetForegroundWindow")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
	procSendMessageW             = user32.NewProc("SendMessageW")

	procDwmGetWindowAttribute = dwmapi.NewProc("DwmGetWindowAttribute")
)

const (
	gaParent = 1
	gaRoot   = 2

	gwlStyle   = -16
	gwlExStyle = -20

	wsDisabled     = 0x08000000
	wsExToolWindow = 0x00000080

	dwmwaExtendedFrameBounds = 9
	dwmwaCloaked             = 14

	wmMouseMove     = 0x0200
	wmLButtonDown   = 0x0201
	wmLButtonUp     = 0x0202
	wmLButtonDblClk = 0x0203
	wmRButtonDown   = 0x0204
	wmRButtonUp     = 0x0205
	wmRButtonDblClk = 0x0206
	wmMButtonDown   = 0x0207
	wmMButtonUp     = 0x0208
	wmMButtonDblClk = 0x0209
)

var messageForKind = map[EventKind]uint32{
	EventMove:              wmMouseMove,
	EventLeftDown:          wmLButtonDown,
	EventLeftUp:            wmLButtonUp,
	EventLeftDoubleClick:   wmLButtonDblClk,
	EventRightDown:         wmRButtonDown,
	EventRightUp:           wmRButtonUp,
	EventRightDoubleClick:  wmRButtonDblClk,
	EventMiddleDown:        wmMButtonDown,
	EventMiddleUp:          wmMButtonUp,
	EventMiddleDoubleClick: wmMButtonDblClk,
}

type rect struct {
	Left, Top, Right, Bottom int32
}

type point struct {
	X, Y int32
}

// Enumeration callbacks are a scarce resource (windows.NewCallback never
// frees), so one callback serves every EnumWindows/EnumChildWindows call.
var (
	enumMu       sync.Mutex
	enumResults  []uintptr
	enumCallback = windows.NewCallback(func(hwnd, _ uintptr) uintptr {
		enumResults = append(enumResults, hwnd)
		return 1
	})
)

func enumerate(proc *windows.LazyProc, args ...uintptr) []uintptr {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumResults = nil
	proc.Call(append(args, enumCallback, 0)...)
	out := enumResults
	enumResults = nil
	return out
}

// Win32Backend implements Backend with user32 and dwmapi.
type Win32Backend struct {
	processes *processNames
}

// NewWin32Backend verifies the required DLLs are loadable.
func NewWin32Backend() (*Win32Backend, error) {
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("failed to load user32.dll: %w", err)
	}
	return &Win32Backend{processes: newProcessNames()}, nil
}

func (b *Win32Backend) Name() string { return "win32" }
func (b *Win32Backend) Close() error { return nil }

// TopLevel returns windows that would appear in the Alt-Tab list.
func (b *Win32Backend) TopLevel() ([]Node, error) {
	hwnds := enumerate(procEnumWindows)
	shell, _, _ := procGetShellWindow.Call()

	nodes := make([]Node, 0, len(hwnds))
	for _, hwnd := range hwnds {
		if hwnd == shell {
			continue
		}
		n := b.node(hwnd)
		if !isAltTabWindow(hwnd, n.Title) {
			continue
		}
		nodes = append(nodes, n)
	}

	logger.WithComponent("win32-backend").Debug().
		Int("enumerated", len(hwnds)).
		Int("selectable", len(nodes)).
		Msg("TopLevel: summary")
	return nodes, nil
}

// Children returns the visible direct children of h. EnumChildWindows walks
// every descendant, so results are filtered on their immediate parent.
func (b *Win32Backend) Children(h Handle) ([]Node, error) {
	if !b.Exists(h) {
		return nil, fmt.Errorf("%w: %s", ErrWindowGone, h)
	}

	parent := uintptr(h)
	var nodes []Node
	for _, hwnd := range enumerate(procEnumChildWindows, parent) {
		if p, _, _ := procGetAncestor.Call(hwnd, gaParent); p != parent {
			continue
		}
		if v, _, _ := procIsWindowVisible.Call(hwnd); v == 0 {
			continue
		}
		nodes = append(nodes, b.node(hwnd))
	}
	return nodes, nil
}

// ClientRectInScreen combines GetClientRect with the client origin from
// ClientToScreen. The process is not DPI aware, so both report logical
// pixels; callers pair the result with WindowRect, whose DWM bounds are the
// only physical values and are corrected there.
func (b *Win32Backend) ClientRectInScreen(h Handle) (geometry.Rect, error) {
	hwnd := uintptr(h)
	var rc rect
	if r, _, _ := procGetClientRect.Call(hwnd, uintptr(unsafe.Pointer(&rc))); r == 0 {
		return geometry.Rect{}, fmt.Errorf("%w: GetClientRect %s", ErrWindowGone, h)
	}
	origin := point{X: rc.Left, Y: rc.Top}
	if r, _, _ := procClientToScreen.Call(hwnd, uintptr(unsafe.Pointer(&origin))); r == 0 {
		return geometry.Rect{}, fmt.Errorf("%w: ClientToScreen %s", ErrWindowGone, h)
	}
	return geometry.RectAt(
		geometry.Point{X: int(origin.X), Y: int(origin.Y)},
		geometry.Size{Width: int(rc.Right - rc.Left), Height: int(rc.Bottom - rc.Top)},
	), nil
}

// WindowRect prefers the DWM extended frame bounds, which exclude the
// invisible resize border but are reported in physical pixels and so are
// divided by the window's DPI scale. Without DWM it falls back to
// GetWindowRect.
func (b *Win32Backend) WindowRect(h Handle) (geometry.Rect, error) {
	hwnd := uintptr(h)
	var rc rect

	if procDwmGetWindowAttribute.Find() == nil {
		hr, _, _ := procDwmGetWindowAttribute.Call(
			hwnd,
			dwmwaExtendedFrameBounds,
			uintptr(unsafe.Pointer(&rc)),
			unsafe.Sizeof(rc),
		)
		if int32(hr) >= 0 {
			return geometry.ToLogical(toRect(rc), b.dpi(hwnd)), nil
		}
	}

	if r, _, _ := procGetWindowRect.Call(hwnd, uintptr(unsafe.Pointer(&rc))); r == 0 {
		return geometry.Rect{}, fmt.Errorf("%w: GetWindowRect %s", ErrWindowGone, h)
	}
	return toRect(rc), nil
}

func (b *Win32Backend) Exists(h Handle) bool {
	r, _, _ := procIsWindow.Call(uintptr(h))
	return r != 0
}

func (b *Win32Backend) HasFocus(h Handle) bool {
	fg, _, _ := procGetForegroundWindow.Call()
	return fg == uintptr(h)
}

func (b *Win32Backend) Focus(h Handle) error {
	if !b.Exists(h) {
		return fmt.Errorf("%w: %s", ErrWindowGone, h)
	}
	if r, _, err := procSetForegroundWindow.Call(uintptr(h)); r == 0 {
		return fmt.Errorf("SetForegroundWindow %s: %w", h, err)
	}
	return nil
}

// Send delivers a WM_* mouse message synchronously with SendMessageW.
func (b *Win32Backend) Send(h Handle, kind EventKind, buttons Buttons, p geometry.Point) error {
	msg, ok := messageForKind[kind]
	if !ok {
		return fmt.Errorf("unsupported event kind %s", kind)
	}
	if !b.Exists(h) {
		return fmt.Errorf("%w: %s", ErrWindowGone, h)
	}
	procSendMessageW.Call(uintptr(h), uintptr(msg), uintptr(buttons), makeLParam(p.X, p.Y))
	return nil
}

func makeLParam(x, y int) uintptr {
	ux := uint32(uint16(int16(x)))
	uy := uint32(uint16(int16(y)))
	return uintptr(ux | (uy << 16))
}

func (b *Win32Backend) dpi(hwnd uintptr) int {
	if procGetDpiForWindow.Find() != nil {
		return geometry.BaseDPI
	}
	r, _, _ := procGetDpiForWindow.Call(hwnd)
	if r == 0 {
		return geometry.BaseDPI
	}
	return int(r)
}

func (b *Win32Backend) node(hwnd uintptr) Node {
	n := Node{
		Handle: Handle(hwnd),
		Title:  windowText(procGetWindowTextW, hwnd),
		Class:  windowText(procGetClassNameW, hwnd),
	}
	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	n.PID = int(pid)
	n.Process = b.processes.lookup(n.PID)
	return n
}

func windowText(proc *windows.LazyProc, hwnd uintptr) string {
	buf := make([]uint16, 512)
	n, _, _ := proc.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}

func isAltTabWindow(hwnd uintptr, title string) bool {
	if title == "" {
		return false
	}
	if v, _, _ := procIsWindowVisible.Call(hwnd); v == 0 {
		return false
	}
	if root, _, _ := procGetAncestor.Call(hwnd, gaRoot); root != hwnd {
		return false
	}
	if getWindowLong(hwnd, gwlStyle)&wsDisabled != 0 {
		return false
	}
	if getWindowLong(hwnd, gwlExStyle)&wsExToolWindow != 0 {
		return false
	}
	if procDwmGetWindowAttribute.Find() == nil {
		var cloaked uint32
		hr, _, _ := procDwmGetWindowAttribute.Call(hwnd, dwmwaCloaked, uintptr(unsafe.Pointer(&cloaked)), unsafe.Sizeof(cloaked))
		if int32(hr) >= 0 && cloaked != 0 {
			return false
		}
	}
	return true
}

func getWindowLong(hwnd uintptr, index int32) uint32 {
	r, _, _ := procGetWindowLongW.Call(hwnd, uintptr(index))
	return uint32(r)
}

func toRect(rc rect) geometry.Rect {
	return geometry.Rect{
		Left:   int(rc.Left),
		Top:    int(rc.Top),
		Right:  int(rc.Right),
		Bottom: int(rc.Bottom),
	}
}
