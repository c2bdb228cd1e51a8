//go:build windows

package discord

import (
	"context"
	"net"
	"strconv"

	"github.com/Microsoft/go-winio"
)

// pipeName returns the named pipe of an IPC slot.
func pipeName(slot int) string {
	return `\\.\pipe\discord-ipc-` + strconv.Itoa(slot)
}

// connectToDiscord returns the first named pipe slot that accepts a
// connection. Canary and PTB share the pipe namespace with stable.
func connectToDiscord() (net.Conn, error) {
	for i := range maxIPCSlots {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		conn, err := winio.DialPipeContext(ctx, pipeName(i))
		cancel()
		if err == nil {
			return conn, nil
		}
	}
	return nil, ErrIPCNotAvailable
}
