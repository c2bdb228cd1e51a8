//go:build !windows && !linux

package autodetect

// Processes is not implemented on this platform.
func Processes() ([]string, error) {
	return nil, ErrUnsupported
}
