package discord

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// ///////////////////////////////////////////////
// Encoding
// ///////////////////////////////////////////////

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		op      Opcode
		payload []byte
		wantErr error
	}{
		{"handshake", OpHandshake, []byte(`{"v":1,"client_id":"123"}`), nil},
		{"activity", OpFrame, []byte(`{"cmd":"SET_ACTIVITY"}`), nil},
		{"empty payload", OpPing, nil, nil},
		{"exactly max", OpFrame, make([]byte, MaxPayloadSize), nil},
		{"one over max", OpFrame, make([]byte, MaxPayloadSize+1), ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeFrame(tt.op, tt.payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("EncodeFrame error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeFrame: %v", err)
			}
			if len(frame) != frameHeaderSize+len(tt.payload) {
				t.Fatalf("frame length = %d", len(frame))
			}
			if op := Opcode(binary.LittleEndian.Uint32(frame[0:4])); op != tt.op {
				t.Errorf("opcode = %d, want %d", op, tt.op)
			}
			if n := binary.LittleEndian.Uint32(frame[4:8]); int(n) != len(tt.payload) {
				t.Errorf("length field = %d, want %d", n, len(tt.payload))
			}
			if !bytes.Equal(frame[frameHeaderSize:], tt.payload) {
				t.Error("payload not copied verbatim")
			}
		})
	}
}

// ///////////////////////////////////////////////
// Decoding
// ///////////////////////////////////////////////

func header(op Opcode, n uint32) []byte {
	h := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], uint32(op))
	binary.LittleEndian.PutUint32(h[4:8], n)
	return h
}

func TestDecodeFrameErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{"empty input", nil, io.EOF},
		{"short header", []byte{1, 0, 0}, io.ErrUnexpectedEOF},
		{"short payload", append(header(OpFrame, 10), "abc"...), io.ErrUnexpectedEOF},
		{"oversized length", header(OpFrame, MaxPayloadSize+1), ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeFrame(bytes.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeFrame error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// trickleReader hands out one byte per Read.
type trickleReader struct{ r io.Reader }

func (tr trickleReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return tr.r.Read(p[:1])
}

func TestDecodeFrameShortReads(t *testing.T) {
	frame, err := EncodeFrame(OpFrame, []byte(`{"evt":"READY"}`))
	if err != nil {
		t.Fatal(err)
	}
	op, payload, err := DecodeFrame(trickleReader{bytes.NewReader(frame)})
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if op != OpFrame || string(payload) != `{"evt":"READY"}` {
		t.Errorf("got %d %q", op, payload)
	}
}

func TestWriteFrameThenDecodeStream(t *testing.T) {
	frames := []struct {
		op      Opcode
		payload string
	}{
		{OpHandshake, `{"v":1}`},
		{OpFrame, `{"cmd":"SET_ACTIVITY"}`},
		{OpClose, ``},
		{OpPing, `ping`},
		{OpPong, `ping`},
	}

	var stream bytes.Buffer
	for _, f := range frames {
		if err := writeFrame(&stream, f.op, []byte(f.payload)); err != nil {
			t.Fatalf("writeFrame: %v", err)
		}
	}

	for i, want := range frames {
		op, payload, err := DecodeFrame(&stream)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if op != want.op || string(payload) != want.payload {
			t.Errorf("frame %d = %d %q, want %d %q", i, op, payload, want.op, want.payload)
		}
	}
	if _, _, err := DecodeFrame(&stream); !errors.Is(err, io.EOF) {
		t.Errorf("after last frame: %v, want EOF", err)
	}
}
