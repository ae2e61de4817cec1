// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compiler defines the Compiler and Registry interfaces the
// Packaging Task queries while expanding a dependency closure, and
// provides a file-manifest-backed implementation for tests and for
// simple deployments that do not need a bespoke registry.
//
// Type-registry bootstrap is explicitly out of scope for the core
// request/dispatch engine (spec §1); production wiring of a real
// registry is a caller concern. What this package fixes is the
// interface shape the rest of the server depends on.
package compiler

import "github.com/resourced-io/resourced/internal/resource"

// Compiler answers install-dependency questions for one resource type.
// The Packaging Task (internal/task) calls GetInstallDependencies while
// walking the dependency closure; it never invokes the compiler
// directly — that happens out-of-process, via the subprocess contract
// in spec §6.
type Compiler interface {
	// GetInstallDependencies returns the resources that must be present
	// at runtime whenever id is loaded. The caller deduplicates; the
	// Packaging Task walks them in the order returned, so that order
	// carries into the packaging closure.
	GetInstallDependencies(id resource.ID) ([]resource.ID, error)
}

// Registry maps a resource type tag to the Compiler responsible for it.
type Registry interface {
	// GetCompilerForResourceType returns the Compiler for typeTag, or
	// ok == false if the type is not compilable (per spec §4.2, such
	// resources are skipped during packaging expansion rather than
	// treated as an error).
	GetCompilerForResourceType(typeTag string) (c Compiler, ok bool)
}
