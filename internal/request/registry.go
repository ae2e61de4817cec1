// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"fmt"

	"github.com/resourced-io/resourced/internal/resource"
)

// Task is the subset of internal/task.CompilationTask the Registry
// needs: something schedulable that eventually reports completion.
// Defining the dependency as an interface here (rather than importing
// internal/task directly) keeps the ownership direction spec §3
// describes — the Registry owns requests, tasks borrow them — without
// an import cycle, since internal/task needs to refer back to
// *CompilationRequest.
type Task interface {
	// IsComplete reports whether the task's subprocess (or no-op, for a
	// pre-failed request) has finished.
	IsComplete() bool
}

// activeEntry pairs a request with the task currently driving it.
type activeEntry struct {
	req  *CompilationRequest
	task Task
}

// Registry owns the lifetime of every in-flight and completed
// compilation request, per spec §4.3. It maintains three collections:
// requests (insertion-ordered, everything until cleanup), activeTasks
// (the subset with a running task), and a count mirroring
// len(activeTasks) for IsBusy().
//
// The Registry is not safe for concurrent use — per spec §5 it is owned
// exclusively by the single-threaded Dispatcher.
type Registry struct {
	requests    []*CompilationRequest
	activeTasks []activeEntry

	pendingCleanup bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Create records req: it appends req to requests and pairs it with
// task in activeTasks. The caller (internal/dispatch) is responsible
// for constructing the request's fields and the task itself; Create's
// job is bookkeeping, matching spec §4.3's "create(...) → request*"
// operation which always enqueues a task — even for a request that was
// populated as already-Failed — to keep the reap path uniform (spec
// §9's "uniform failure path for invalid input").
func (r *Registry) Create(req *CompilationRequest, task Task) *CompilationRequest {
	r.requests = append(r.requests, req)
	r.activeTasks = append(r.activeTasks, activeEntry{req: req, task: task})
	return req
}

// NumScheduledTasks returns the number of requests currently backed by
// a running task. Equal to len(activeTasks) per spec §4.3's invariant.
func (r *Registry) NumScheduledTasks() int {
	return len(r.activeTasks)
}

// Requests returns the insertion-ordered slice of every request created
// since the last cleanup. The returned slice must not be retained or
// mutated by the caller beyond the current tick.
func (r *Registry) Requests() []*CompilationRequest {
	return r.requests
}

// ReapCompleted iterates activeTasks in reverse (spec §4.3: "allow O(1)
// unordered removal") and, for each task that IsComplete, invokes
// onComplete with the now-terminal request before removing the entry.
// Reversed iteration means unordered removal (swap with the last
// element and truncate) never skips an unvisited entry.
func (r *Registry) ReapCompleted(onComplete func(*CompilationRequest)) {
	for i := len(r.activeTasks) - 1; i >= 0; i-- {
		entry := r.activeTasks[i]
		if !entry.task.IsComplete() {
			continue
		}

		if onComplete != nil {
			onComplete(entry.req)
		}

		last := len(r.activeTasks) - 1
		r.activeTasks[i] = r.activeTasks[last]
		r.activeTasks = r.activeTasks[:last]
	}
}

// RequestCleanup flags the Registry to evict terminal requests on the
// next HonorPendingCleanup call. Mirrors spec §4.3's "triggered by an explicit flag
// set by an operator."
func (r *Registry) RequestCleanup() {
	r.pendingCleanup = true
}

// HonorPendingCleanup runs Cleanup if RequestCleanup was called since
// the last invocation, then clears the flag.
func (r *Registry) HonorPendingCleanup() {
	if !r.pendingCleanup {
		return
	}
	r.pendingCleanup = false
	r.Cleanup()
}

// Cleanup iterates requests in reverse and evicts every entry with a
// terminal status, keeping the remaining entries in insertion order.
// Safe to call while compilations are in flight — only terminal entries
// are ever touched, and activeTasks is left alone, so a terminal request
// whose task has not been reaped yet is still reaped and notified by the
// next ReapCompleted.
func (r *Registry) Cleanup() {
	for i := len(r.requests) - 1; i >= 0; i-- {
		if !r.requests[i].Status.IsComplete() {
			continue
		}
		r.requests = append(r.requests[:i], r.requests[i+1:]...)
	}
}

// Count returns the number of requests currently tracked (active plus
// completed, pre-cleanup).
func (r *Registry) Count() int {
	return len(r.requests)
}

// Clear unconditionally empties both requests and activeTasks,
// regardless of status. Used by the Dispatcher's Shutdown (spec §4.4),
// which calls it only after the worker pool has drained and a final
// reap pass has run — so every entry is already terminal by then, but
// Clear does not itself check that.
func (r *Registry) Clear() {
	r.requests = nil
	r.activeTasks = nil
}

// ValidateOriginClientPairing enforces spec §3's "origin == External ⇔
// clientID ≠ 0" invariant. Violating it is a programmer-contract error
// (spec §7), not a recoverable request failure, so this panics rather
// than returning an error — it should only ever be called by
// internal/dispatch immediately before constructing a request, on
// values the dispatcher itself assembled.
func ValidateOriginClientPairing(origin Origin, clientID ClientID) {
	isExternal := origin == External
	hasClient := clientID != 0
	if isExternal != hasClient {
		panic(fmt.Sprintf("request: origin/client invariant violated: origin=%s clientID=%d", origin, clientID))
	}
}

// resourceTypeLabel is a tiny helper kept here (rather than in
// internal/resource) because it is purely a logging convenience for
// requests, not a property of a resource ID.
func resourceTypeLabel(id resource.ID) string {
	if !id.IsValid() {
		return "invalid"
	}
	return id.TypeTag()
}
