// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package request defines the CompilationRequest entity and the
// Registry that owns its lifetime, per spec §3 and §4.3.
package request

import (
	"time"

	"github.com/resourced-io/resourced/internal/resource"
	"github.com/resourced-io/resourced/lib/clock"
)

// Origin identifies where a request came from.
type Origin int

const (
	// External requests come from a connected network client.
	External Origin = iota
	// FileWatcher requests come from a raw-resource-root file change.
	FileWatcher
	// Package requests come from packaging dependency expansion.
	Package
)

// String implements fmt.Stringer for log output.
func (o Origin) String() string {
	switch o {
	case External:
		return "external"
	case FileWatcher:
		return "file-watcher"
	case Package:
		return "package"
	default:
		return "unknown"
	}
}

// Internal reports whether this origin is not client-initiated.
// Internal requests are notified by broadcast rather than unicast
// (spec §4.5).
func (o Origin) Internal() bool {
	return o == FileWatcher || o == Package
}

// Status is a CompilationRequest's lifecycle state. Terminal statuses
// are everything except Pending and Compiling.
type Status int

const (
	// Pending means the request has been created but its task has not
	// yet started the subprocess.
	Pending Status = iota
	// Compiling means the subprocess is running.
	Compiling
	// Succeeded means the compiler exited with a fresh-compile success
	// code.
	Succeeded
	// SucceededUpToDate means the compiler determined the existing
	// output already matched the source; nothing was rewritten.
	SucceededUpToDate
	// SucceededWithWarnings means the compiler succeeded but emitted
	// diagnostics.
	SucceededWithWarnings
	// Failed means the request did not produce a usable output: spawn
	// failure, join failure, a non-success exit code, or invalid input.
	Failed
)

// String implements fmt.Stringer for log output.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Compiling:
		return "compiling"
	case Succeeded:
		return "succeeded"
	case SucceededUpToDate:
		return "succeeded-up-to-date"
	case SucceededWithWarnings:
		return "succeeded-with-warnings"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsComplete reports whether s is one of the terminal statuses.
func (s Status) IsComplete() bool {
	return s == Succeeded || s == SucceededUpToDate || s == SucceededWithWarnings || s == Failed
}

// IsSuccess reports whether s is one of the statuses that produces a
// usable destination file (spec §4.5's filePath-present predicate).
func (s Status) IsSuccess() bool {
	return s == Succeeded || s == SucceededUpToDate || s == SucceededWithWarnings
}

// ClientID identifies the network client that originated an External
// request. Zero means "no client" — internal requests always carry the
// zero ClientID (spec §3's `origin == External ⇔ clientID ≠ 0`
// invariant).
type ClientID uint32

// CompilationRequest is the central entity described in spec §3. Its
// fields are mutated exclusively by its owning Compilation Task
// (internal/task) until Status becomes terminal; after that, only the
// Registry reads or deletes it.
type CompilationRequest struct {
	ResourceID resource.ID
	ClientID   ClientID
	Origin     Origin

	SourceFilePath      string
	DestinationFilePath string
	CompilerArgs        string
	ForceRecompile      bool

	Status Status
	Log    []string

	StartedAt  time.Time
	FinishedAt time.Time
}

// AppendLog appends a line to the request's accumulating log.
func (r *CompilationRequest) AppendLog(line string) {
	r.Log = append(r.Log, line)
}

// FailImmediately marks the request Failed with a single log line and
// no subprocess ever having run, for use by the Dispatcher when a
// request is created with an invalid ID (spec §7's "invalid input" row).
func (r *CompilationRequest) FailImmediately(c clock.Clock, reason string) {
	r.StartedAt = c.Now()
	r.FinishedAt = r.StartedAt
	r.Status = Failed
	r.AppendLog(reason)
}
