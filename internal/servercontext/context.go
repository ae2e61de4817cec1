// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package servercontext provides the shared, immutable-after-init
// snapshot every Compilation Task and Packaging Task reads from: the
// filesystem roots, the compiler executable path, the compiler
// registry, and the single-writer/multi-reader exiting flag. See spec
// §3's "ResourceServerContext".
package servercontext

import (
	"sync/atomic"

	"github.com/resourced-io/resourced/internal/compiler"
	"github.com/resourced-io/resourced/internal/resource"
)

// Context is shared read-only across every task except for IsExiting,
// which transitions exactly once, on shutdown (spec §5: "single writer
// on shutdown; tasks read freely — memory visibility must be
// guaranteed").
type Context struct {
	// Roots holds the three filesystem roots resources resolve against.
	Roots resource.Roots

	// CompilerExecutablePath is the path to the external resource
	// compiler binary invoked per the subprocess contract (spec §6).
	CompilerExecutablePath string

	// CompilerRegistry answers install-dependency and
	// compiler-for-type queries during packaging expansion.
	CompilerRegistry compiler.Registry

	isExiting atomic.Bool
}

// New returns a Context wired with roots, the compiler path, and the
// compiler registry. All other fields default to their zero value; the
// exiting flag starts false.
func New(roots resource.Roots, compilerExecutablePath string, registry compiler.Registry) *Context {
	return &Context{
		Roots:                  roots,
		CompilerExecutablePath: compilerExecutablePath,
		CompilerRegistry:       registry,
	}
}

// IsExiting reports whether shutdown has begun. Tasks poll this at
// their earliest decision point (spec §5's only cancellation
// mechanism); in-flight subprocesses are not interrupted.
func (c *Context) IsExiting() bool {
	return c.isExiting.Load()
}

// BeginExit sets the exiting flag. Monotonic: once set, it never clears.
// Must only be called by the Dispatcher's Shutdown.
func (c *Context) BeginExit() {
	c.isExiting.Store(true)
}
