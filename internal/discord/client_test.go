// Tests for the [Client] type covering the handshake, activity commands,
// nonce uniqueness, the background reader and connection lifecycle.
package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Test Helpers
// ///////////////////////////////////////////////

// readFrame is a test helper that reads a single frame from a connection.
func readFrame(t *testing.T, conn net.Conn) (Opcode, map[string]any) {
	t.Helper()
	opcode, payload, err := DecodeFrame(conn)
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		t.Fatalf("failed to parse frame payload: %v", err)
	}
	return opcode, m
}

// writeJSONFrame writes v as a frame with the given opcode.
func writeJSONFrame(t *testing.T, conn net.Conn, op Opcode, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := writeFrame(conn, op, b); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// writeReady answers a handshake with a READY event for username.
func writeReady(t *testing.T, conn net.Conn, username string) {
	t.Helper()
	writeJSONFrame(t, conn, OpFrame, map[string]any{
		"cmd":  "DISPATCH",
		"evt":  "READY",
		"data": map[string]any{"user": map[string]any{"username": username}},
	})
}

// connectedPair returns a client connected through net.Pipe and the fake
// Discord end of the pipe.
func connectedPair(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close(); client.Close() })

	c := NewClient("test-app-id", WithDialer(func() (net.Conn, error) { return client, nil }))
	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	if op, _ := readFrame(t, server); op != OpHandshake {
		t.Fatalf("expected handshake opcode, got %d", op)
	}
	writeReady(t, server, "tester")
	if err := <-done; err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c, server
}

// ///////////////////////////////////////////////
// Client.Connect
// ///////////////////////////////////////////////

func TestClient_ConnectHandshake(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	c := NewClient("test-app-id", WithDialer(func() (net.Conn, error) { return client, nil }))
	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	opcode, m := readFrame(t, server)
	if opcode != OpHandshake {
		t.Fatalf("expected opcode %d (HANDSHAKE), got %d", OpHandshake, opcode)
	}
	if v, ok := m["v"].(float64); !ok || int(v) != 1 {
		t.Fatalf("expected v=1, got %v", m["v"])
	}
	if m["client_id"] != "test-app-id" {
		t.Fatalf("expected client_id=test-app-id, got %v", m["client_id"])
	}

	writeReady(t, server, "tester")
	if err := <-done; err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if !c.Connected() || c.User() != "tester" {
		t.Errorf("Connected=%v User=%q", c.Connected(), c.User())
	}
}

func TestClient_ConnectDialError(t *testing.T) {
	c := NewClient("id", WithDialer(func() (net.Conn, error) { return nil, ErrIPCNotAvailable }))
	if err := c.Connect(context.Background()); !errors.Is(err, ErrIPCNotAvailable) {
		t.Fatalf("Connect = %v, want ErrIPCNotAvailable", err)
	}
	if c.Connected() {
		t.Error("client reports connected after dial failure")
	}
}

func TestClient_ConnectErrorResponse(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	c := NewClient("bad-id", WithDialer(func() (net.Conn, error) { return client, nil }))
	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	readFrame(t, server)
	writeJSONFrame(t, server, OpFrame, map[string]any{
		"evt":  "ERROR",
		"data": map[string]any{"message": "invalid client_id"},
	})

	if err := <-done; err == nil {
		t.Fatal("expected handshake to fail with ERROR response")
	}
	if c.Connected() {
		t.Error("failed handshake must not leave a connection")
	}
}

func TestClient_ConnectCloseOpcode(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	c := NewClient("id", WithDialer(func() (net.Conn, error) { return client, nil }))
	done := make(chan error, 1)
	go func() { done <- c.Connect(context.Background()) }()

	readFrame(t, server)
	writeJSONFrame(t, server, OpClose, map[string]any{"code": 4000, "message": "Invalid Client ID"})

	if err := <-done; err == nil {
		t.Fatal("expected error for OpClose handshake response")
	}
}

func TestClient_ConnectClosesOldConnection(t *testing.T) {
	oldServer, oldClient := net.Pipe()
	defer oldServer.Close()

	c := NewClient("id", WithDialer(func() (net.Conn, error) { return nil, ErrIPCNotAvailable }))
	c.conn = oldClient

	_ = c.Connect(context.Background())

	if _, err := oldClient.Write([]byte("test")); err == nil {
		t.Error("expected old connection to be closed, but write succeeded")
	}
}

// ///////////////////////////////////////////////
// Activity Commands
// ///////////////////////////////////////////////

func TestClient_SetActivity(t *testing.T) {
	c, server := connectedPair(t)

	activity := &Activity{
		Details:    "Coding",
		State:      "Away",
		Timestamps: &Timestamps{Start: 1000000},
		Assets:     &Assets{LargeImage: "large-img", LargeText: "Large Text"},
		Buttons:    []Button{{Label: "Repo", URL: "https://example.com"}},
	}

	done := make(chan error, 1)
	go func() { done <- c.SetActivity(activity) }()

	opcode, m := readFrame(t, server)
	if opcode != OpFrame || m["cmd"] != "SET_ACTIVITY" {
		t.Fatalf("unexpected frame %d %v", opcode, m["cmd"])
	}
	if nonce, ok := m["nonce"].(string); !ok || nonce == "" {
		t.Fatalf("expected non-empty nonce, got %v", m["nonce"])
	}

	args := m["args"].(map[string]any)
	if pid, ok := args["pid"].(float64); !ok || int(pid) != os.Getpid() {
		t.Fatalf("expected pid=%d, got %v", os.Getpid(), args["pid"])
	}
	act := args["activity"].(map[string]any)
	if act["details"] != "Coding" || act["state"] != "Away" {
		t.Errorf("activity = %v", act)
	}
	assets := act["assets"].(map[string]any)
	if assets["large_image"] != "large-img" {
		t.Errorf("assets = %v", assets)
	}
	if buttons := act["buttons"].([]any); len(buttons) != 1 {
		t.Errorf("buttons = %v", buttons)
	}

	if err := <-done; err != nil {
		t.Fatalf("SetActivity returned error: %v", err)
	}
}

func TestClient_ClearActivity(t *testing.T) {
	c, server := connectedPair(t)

	done := make(chan error, 1)
	go func() { done <- c.ClearActivity() }()

	_, m := readFrame(t, server)
	args := m["args"].(map[string]any)
	if args["activity"] != nil {
		t.Fatalf("expected null activity, got %v", args["activity"])
	}
	if err := <-done; err != nil {
		t.Fatalf("ClearActivity returned error: %v", err)
	}
}

func TestClient_NonceUniqueness(t *testing.T) {
	c, server := connectedPair(t)

	nonces := make(map[string]bool)
	for i := range 5 {
		done := make(chan error, 1)
		go func() { done <- c.SetActivity(&Activity{Details: "test"}) }()

		_, m := readFrame(t, server)
		nonce := m["nonce"].(string)
		if nonces[nonce] {
			t.Fatalf("duplicate nonce on call %d: %s", i, nonce)
		}
		nonces[nonce] = true

		if err := <-done; err != nil {
			t.Fatalf("SetActivity call %d returned error: %v", i, err)
		}
	}
}

func TestClient_SendCommandNotConnected(t *testing.T) {
	c := NewClient("test-app-id")
	if err := c.SetActivity(&Activity{}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got: %v", err)
	}
}

// ///////////////////////////////////////////////
// Background Reader
// ///////////////////////////////////////////////

func TestClient_DoneClosedBeforeConnect(t *testing.T) {
	select {
	case <-NewClient("id").Done():
	default:
		t.Fatal("Done() should be closed before Connect")
	}
}

func TestClient_DoneClosesOnDisconnect(t *testing.T) {
	c, server := connectedPair(t)
	done := c.Done()

	select {
	case <-done:
		t.Fatal("Done() closed while connected")
	default:
	}

	server.Close()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Done() not closed after Discord went away")
	}
	if c.Connected() {
		t.Error("client still reports connected")
	}
}

func TestClient_AnswersPing(t *testing.T) {
	_, server := connectedPair(t)

	if err := writeFrame(server, OpPing, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	op, payload, err := DecodeFrame(server)
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if op != OpPong || string(payload) != `{"n":1}` {
		t.Errorf("got %d %s, want pong echo", op, payload)
	}
}

func TestClient_DrainsResponses(t *testing.T) {
	c, server := connectedPair(t)

	// Responses must be consumed or a synchronous pipe would block the writer.
	for range 3 {
		writeJSONFrame(t, server, OpFrame, map[string]any{"cmd": "SET_ACTIVITY", "evt": "ERROR", "data": map[string]any{"message": "bad"}})
	}
	done := make(chan error, 1)
	go func() { done <- c.SetActivity(&Activity{Details: "x"}) }()
	readFrame(t, server)
	if err := <-done; err != nil {
		t.Fatalf("SetActivity: %v", err)
	}
}

// ///////////////////////////////////////////////
// Client.Close
// ///////////////////////////////////////////////

func TestClient_CloseNilConnection(t *testing.T) {
	if err := NewClient("test-app-id").Close(); err != nil {
		t.Fatalf("Close on nil connection should return nil, got: %v", err)
	}
}

func TestClient_CloseClearsActivity(t *testing.T) {
	c, server := connectedPair(t)

	done := make(chan error, 1)
	go func() { done <- c.Close() }()

	_, m := readFrame(t, server)
	if m["args"].(map[string]any)["activity"] != nil {
		t.Errorf("expected clear before close, got %v", m)
	}
	<-done
	if c.Connected() {
		t.Error("client still connected after Close")
	}
}
