// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package packaging implements the four-state packaging controller
// (spec §4.6): None → Preparing → Packaging → Complete, built on top of
// a [task.PackagingTask] for dependency expansion and a caller-supplied
// request-creation callback for the batch compile phase. The Registry
// and worker pool themselves stay owned by internal/dispatch — this
// package only tracks packaging's own state machine.
package packaging

import (
	"fmt"

	"github.com/resourced-io/resourced/internal/request"
	"github.com/resourced-io/resourced/internal/resource"
	"github.com/resourced-io/resourced/internal/servercontext"
	"github.com/resourced-io/resourced/internal/task"
)

// Stage is one of the four packaging controller states.
type Stage int

const (
	// None is the initial state, before the first packaging run starts.
	None Stage = iota
	// Preparing means a PackagingTask is computing the dependency
	// closure.
	Preparing
	// Packaging means the closure's package-origin requests are
	// compiling.
	Packaging
	// Complete means the last packaging run finished; a new one may
	// start.
	Complete
)

// String implements fmt.Stringer for log output and the ServerStatus
// introspection payload.
func (s Stage) String() string {
	switch s {
	case None:
		return "none"
	case Preparing:
		return "preparing"
	case Packaging:
		return "packaging"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// CreateRequestFunc creates a package-origin request for id and
// schedules its Compilation Task, returning the (initially Pending)
// request. Supplied by internal/dispatch, which owns the Registry and
// worker pool that actually back the request.
type CreateRequestFunc func(id resource.ID) *request.CompilationRequest

// Session holds one packaging run's state: the seed map list and,
// while active, the in-flight PackagingTask or the package-origin
// requests it produced. Not safe for concurrent use — owned exclusively
// by the single-threaded Dispatcher, per spec §5.
type Session struct {
	stage           Stage
	seedMaps        []resource.ID
	packagingTask   *task.PackagingTask
	pendingRequests []*request.CompilationRequest
}

// NewSession returns an empty, quiescent Session.
func NewSession() *Session {
	return &Session{stage: None}
}

// Stage returns the current controller state.
func (s *Session) Stage() Stage {
	return s.stage
}

// CanStartPackaging reports whether StartPackaging may be called: the
// stage is None or Complete, and the seed list is non-empty.
func (s *Session) CanStartPackaging() bool {
	return (s.stage == None || s.stage == Complete) && len(s.seedMaps) > 0
}

// AddMap adds id to the seed list. Panics if id is not a map-typed
// resource, or if the stage is Preparing or Packaging — per spec §4.6,
// seed-list mutation is rejected by contract while a run is active, and
// is enforced by type-tag assertion.
func (s *Session) AddMap(id resource.ID) {
	s.assertSeedMutationAllowed(id)
	for _, existing := range s.seedMaps {
		if existing == id {
			return
		}
	}
	s.seedMaps = append(s.seedMaps, id)
}

// RemoveMap removes id from the seed list, if present. Same contract
// restrictions as AddMap.
func (s *Session) RemoveMap(id resource.ID) {
	s.assertSeedMutationAllowed(id)
	for i, existing := range s.seedMaps {
		if existing == id {
			s.seedMaps = append(s.seedMaps[:i], s.seedMaps[i+1:]...)
			return
		}
	}
}

func (s *Session) assertSeedMutationAllowed(id resource.ID) {
	if !id.IsMap() {
		panic(fmt.Sprintf("packaging: %s is not a map-typed resource", id))
	}
	if s.stage == Preparing || s.stage == Packaging {
		panic(fmt.Sprintf("packaging: seed list mutation rejected during %s", s.stage))
	}
}

// StartPackaging begins a new packaging run: a PackagingTask is created
// and scheduled on pool, and the stage transitions to Preparing.
// Panics if !CanStartPackaging — per spec §4.6, this is a programming
// error, not a recoverable failure.
func (s *Session) StartPackaging(ctx *servercontext.Context, pool *task.Pool, staticRequiredResources []resource.ID) {
	if !s.CanStartPackaging() {
		panic(fmt.Sprintf("packaging: StartPackaging called from stage %s (seeds=%d)", s.stage, len(s.seedMaps)))
	}

	s.packagingTask = task.NewPackagingTask(ctx, s.seedMaps, staticRequiredResources)
	pool.Schedule(s.packagingTask.Run)
	s.stage = Preparing
}

// Advance drives the Preparing→Packaging and Packaging→Complete
// transitions (spec §4.6). createRequest is invoked once per resource
// in the dependency closure when transitioning into Packaging; it is
// never called otherwise. Called once per Dispatcher tick, as part of
// spec §4.4 step 2.
func (s *Session) Advance(createRequest CreateRequestFunc) {
	switch s.stage {
	case Preparing:
		s.advancePreparing(createRequest)
	case Packaging:
		s.advancePackaging()
	}
}

func (s *Session) advancePreparing(createRequest CreateRequestFunc) {
	if !s.packagingTask.IsComplete() {
		return
	}

	deps := s.packagingTask.Dependencies()
	s.packagingTask = nil

	s.pendingRequests = make([]*request.CompilationRequest, 0, len(deps))
	for _, id := range deps {
		s.pendingRequests = append(s.pendingRequests, createRequest(id))
	}

	s.stage = Packaging
}

func (s *Session) advancePackaging() {
	for _, req := range s.pendingRequests {
		if !req.Status.IsComplete() {
			return
		}
	}
	s.pendingRequests = nil
	s.stage = Complete
}

// Progress returns the UI progress signal described in spec §4.6: 1.0
// in None and Complete, 0.1 in Preparing, and a linear ramp from 0.05
// to 1.0 across Packaging as pending requests complete.
func (s *Session) Progress() float64 {
	switch s.stage {
	case None, Complete:
		return 1.0
	case Preparing:
		return 0.1
	case Packaging:
		total := len(s.pendingRequests)
		if total == 0 {
			return 0.05
		}
		completed := 0
		for _, req := range s.pendingRequests {
			if req.Status.IsComplete() {
				completed++
			}
		}
		return 0.05 + 0.95*(float64(completed)/float64(total))
	default:
		return 0
	}
}
