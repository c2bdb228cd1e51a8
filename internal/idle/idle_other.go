//go:build !windows

package idle

import "time"

// Idle is not implemented on this platform.
func Idle() (time.Duration, error) {
	return 0, ErrUnsupported
}
