//go:build linux

package window

// Open connects to the platform window system.
func Open() (Backend, error) {
	return NewX11Backend()
}
