package discord

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Opcode represents a Discord IPC frame opcode.
type Opcode uint32

const (
	// OpHandshake is the opcode for the initial IPC handshake.
	OpHandshake Opcode = 0
	// OpFrame is the opcode for a standard IPC data frame.
	OpFrame Opcode = 1
	// OpClose is the opcode for closing the IPC connection.
	OpClose Opcode = 2
	// OpPing is a keep-alive check; its payload is echoed back with OpPong.
	OpPing Opcode = 3
	// OpPong answers OpPing.
	OpPong Opcode = 4

	// frameHeaderSize is the byte length of the IPC frame header
	// consisting of a 4-byte little-endian opcode followed by a
	// 4-byte little-endian payload length.
	frameHeaderSize = 8

	// MaxPayloadSize is the maximum allowed payload size (1 MB).
	MaxPayloadSize = 1 << 20

	// maxIPCSlots is the number of IPC socket slots Discord may listen on (0-9).
	maxIPCSlots = 10

	// dialTimeout bounds each socket dial attempt.
	dialTimeout = 2 * time.Second
)

// ipcChannels are the socket name prefixes of the stable, Canary and PTB
// release channels.
var ipcChannels = []string{"discord-ipc", "discordcanary-ipc", "discordptb-ipc"}

// ErrPayloadTooLarge is returned when a received frame payload exceeds MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrIPCNotAvailable is returned when no Discord IPC socket can be reached.
var ErrIPCNotAvailable = errors.New("discord IPC not available")

// ///////////////////////////////////////////////
// Framing
// ///////////////////////////////////////////////

// putHeader writes the 8-byte header: little-endian opcode, then length.
func putHeader(b []byte, op Opcode, n int) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(op))
	binary.LittleEndian.PutUint32(b[4:8], uint32(n))
}

// EncodeFrame returns op and payload as one IPC frame.
func EncodeFrame(op Opcode, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(payload))
	putHeader(frame, op, len(payload))
	return append(frame, payload...), nil
}

// writeFrame sends one frame with a single Write so concurrent readers on
// the other end never see a split header.
func writeFrame(w io.Writer, op Opcode, payload []byte) error {
	frame, err := EncodeFrame(op, payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// DecodeFrame reads exactly one frame from r.
func DecodeFrame(r io.Reader) (Opcode, []byte, error) {
	var h [frameHeaderSize]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return 0, nil, fmt.Errorf("read frame header: %w", err)
	}
	op := Opcode(binary.LittleEndian.Uint32(h[0:4]))
	n := binary.LittleEndian.Uint32(h[4:8])
	if n > MaxPayloadSize {
		return 0, nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, n, MaxPayloadSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read frame payload: %w", err)
	}
	return op, payload, nil
}
