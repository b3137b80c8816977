// Package ipc is the reference outer transport: a length-prefixed
// JSON-over-Unix-socket server that dispatches the ten commands of
// spec.md §6 to a lifecycle.Controller and streams its three event topics
// back to every subscribed connection. It is grounded directly on the
// teacher's pipe/ package (ReadMessage/WriteMessage framing, Request/
// Response shape) but generalized from the teacher's bespoke VM-RPC method
// set to exactly this spec's command surface.
//
// This package is deliberately outside the core's contractual boundary —
// spec.md §1 calls the outer IPC transport and RPC protocol out of scope,
// referenced only by interface. Nothing under internal/lifecycle,
// internal/registry, internal/childproc, or internal/resolver imports it.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// maxMessageSize bounds a single frame, matching the teacher's 10MB cap.
const maxMessageSize = 10 * 1024 * 1024

// Request is one incoming command.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     interface{}     `json:"id,omitempty"`
}

// Response is one outgoing reply — either a command's result or its error,
// or an unprompted event frame (Event names the topic, Data carries the
// payload, everything else zero).
type Response struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
	Event   string      `json:"event,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ReadMessage reads one 4-byte-big-endian-length-prefixed JSON frame.
func ReadMessage(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("reading length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length == 0 {
		return nil, fmt.Errorf("zero-length message")
	}
	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading payload (%d bytes): %w", length, err)
	}
	return payload, nil
}

// WriteMessage writes one length-prefixed JSON frame in a single Write call,
// so concurrent writers on the same connection cannot interleave frames.
func WriteMessage(w io.Writer, data []byte) error {
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)
	_, err := w.Write(buf)
	return err
}

func writeResult(conn net.Conn, result interface{}) error {
	data, err := json.Marshal(Response{Success: true, Result: result})
	if err != nil {
		return fmt.Errorf("marshaling response: %w", err)
	}
	return WriteMessage(conn, data)
}

func writeErr(conn net.Conn, message string) error {
	data, err := json.Marshal(Response{Success: false, Error: message})
	if err != nil {
		return fmt.Errorf("marshaling error response: %w", err)
	}
	return WriteMessage(conn, data)
}

func writeEvent(conn net.Conn, topic string, payload interface{}) error {
	data, err := json.Marshal(Response{Event: topic, Data: payload})
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return WriteMessage(conn, data)
}
