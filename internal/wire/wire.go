// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the length-delimited framed message protocol
// the network adapter speaks (spec §6), modeled directly on the
// [1-byte type][4-byte big-endian length][payload] framing used
// elsewhere in this codebase, with CBOR (lib/codec) in place of the
// opaque byte payload.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/resourced-io/resourced/lib/codec"
)

// Message type IDs. RequestResource, ResourceRequestComplete, and
// ResourceUpdated are the three IDs spec §6 observes; ServerStatus is
// additive introspection (not part of the original distillation).
const (
	RequestResource         byte = 1
	ResourceRequestComplete byte = 2
	ResourceUpdated         byte = 3
	ServerStatus            byte = 4
)

// messageHeaderLength is the fixed size of a frame header: 1 byte type
// + 4 bytes payload length.
const messageHeaderLength = 5

// maxPayloadLength bounds a single frame's payload. Resource paths and
// status summaries are tiny; 1 MB is generous headroom.
const maxPayloadLength = 1 * 1024 * 1024

// Frame is a single wire protocol message: a type tag and its raw,
// still-CBOR-encoded payload.
type Frame struct {
	Type    byte
	Payload []byte
}

// WriteFrame writes a framed message to w.
func WriteFrame(w io.Writer, frame Frame) error {
	var header [messageHeaderLength]byte
	header[0] = frame.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(frame.Payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(frame.Payload) > 0 {
		if _, err := w.Write(frame.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads one framed message from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [messageHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}

	frameType := header[0]
	length := binary.BigEndian.Uint32(header[1:5])
	if length > maxPayloadLength {
		return Frame{}, fmt.Errorf("frame payload length %d exceeds maximum %d", length, maxPayloadLength)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}

	return Frame{Type: frameType, Payload: payload}, nil
}

// WriteMessage CBOR-encodes payload and writes it as a frame of the
// given type.
func WriteMessage(w io.Writer, messageType byte, payload any) error {
	frame, err := EncodeFrame(messageType, payload)
	if err != nil {
		return err
	}
	return WriteFrame(w, frame)
}

// EncodeFrame CBOR-encodes payload into a Frame of the given type,
// without writing it anywhere. Used by callers (internal/netserver)
// that queue frames for a writer goroutine instead of writing inline.
func EncodeFrame(messageType byte, payload any) (Frame, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode payload for message type %d: %w", messageType, err)
	}
	return Frame{Type: messageType, Payload: encoded}, nil
}

// RequestResourcePayload is the body of a RequestResource message
// (client → server).
type RequestResourcePayload struct {
	ResourcePath string `cbor:"resource_path"`
}

// ResourceCompletePayload is the body of a ResourceRequestComplete or
// ResourceUpdated message. FilePath is absent when the request failed.
type ResourceCompletePayload struct {
	ResourceID string `cbor:"resource_id"`
	FilePath   string `cbor:"file_path,omitempty"`
}

// ServerStatusPayload is the body of a ServerStatus response (§5.7 of
// the expanded design): operator-facing introspection into a running
// server, additive to the core protocol.
type ServerStatusPayload struct {
	NumActiveRequests    int     `cbor:"num_active_requests"`
	NumCompletedRequests int     `cbor:"num_completed_requests"`
	PackagingStage       string  `cbor:"packaging_stage"`
	PackagingProgress    float64 `cbor:"packaging_progress"`
	TickNumber           uint64  `cbor:"tick_number"`
}
