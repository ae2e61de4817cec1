// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides resourced's standard CBOR encoding configuration.
//
// resourced uses CBOR for every internal protocol: the network adapter's
// wire frames between clients and the server, and any on-disk state this
// module persists between runs. JSON is reserved for the YAML-adjacent
// configuration file and CLI-facing output.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every resourced package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations (files, tokens):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets, IPC):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It will
//     never be marshaled to JSON or interact with CLI tooling.
//     Examples: daemon↔launcher IPC messages, on-disk CBOR state
//     files, internal protocol envelopes (auth revocations, etc.).
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: service socket
//     protocol types (which CLI and MCP tools consume), types used
//     in CLI --json output, types shared between Matrix (JSON) and
//     socket (CBOR) protocols.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract — doubling up is noise that obscures
// whether a type participates in JSON serialization.
package codec
