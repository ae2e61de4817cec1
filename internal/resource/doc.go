// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package resource provides the validated resource identifier types
// shared across the compilation server: [ID], [Roots], and the resource
// type tag derived from a path's extension.
//
// An ID is opaque and either valid or invalid; invalid IDs are
// permitted to flow through the rest of the system (they surface as
// immediately-failed requests rather than rejected at the door).
package resource
