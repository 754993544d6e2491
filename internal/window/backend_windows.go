//go:build windows

package window

// Open connects to the platform window system.
func Open() (Backend, error) {
	return NewWin32Backend()
}
