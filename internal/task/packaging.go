// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"sync/atomic"

	"github.com/resourced-io/resourced/internal/resource"
	"github.com/resourced-io/resourced/internal/servercontext"
)

// PackagingTask produces the transitive closure of resource
// dependencies for a seed list of maps, plus the engine's and game's
// statically required resources, per spec §4.2. It is single-shot: Run
// executes once and Dependencies returns its output afterward.
type PackagingTask struct {
	ctx                     *servercontext.Context
	seeds                   []resource.ID
	staticRequiredResources []resource.ID

	done atomic.Bool
	deps []resource.ID
}

// NewPackagingTask returns a task that will expand seeds (plus
// staticRequiredResources, supplied by the engine/game collaborators
// spec §4.2 step 1 treats as external) when Run is called.
func NewPackagingTask(ctx *servercontext.Context, seeds, staticRequiredResources []resource.ID) *PackagingTask {
	return &PackagingTask{
		ctx:                     ctx,
		seeds:                   append([]resource.ID(nil), seeds...),
		staticRequiredResources: staticRequiredResources,
	}
}

// IsComplete reports whether Run has finished.
func (t *PackagingTask) IsComplete() bool {
	return t.done.Load()
}

// Dependencies returns the closure Run produced. Only meaningful after
// IsComplete is true.
func (t *PackagingTask) Dependencies() []resource.ID {
	return t.deps
}

// Run performs the depth-first expansion described in spec §4.2. Each
// resource is tracked in a visited set *before* recursing into its
// install dependencies — the design notes (spec §9) call out that the
// original implementation inserted-unique then recursed
// unconditionally, which loops forever on a cyclic dependency graph;
// this visit-before-insert ordering is the documented fix.
func (t *PackagingTask) Run() {
	defer t.done.Store(true)

	visited := make(map[resource.ID]struct{})
	var result []resource.ID

	insertUnique := func(id resource.ID) bool {
		if _, seen := visited[id]; seen {
			return false
		}
		visited[id] = struct{}{}
		result = append(result, id)
		return true
	}

	for _, id := range t.staticRequiredResources {
		insertUnique(id)
	}

	for _, seed := range t.seeds {
		if t.ctx.IsExiting() {
			// Step 3: abort early; the partial list must not be
			// consumed by the Dispatcher. Clearing deps enforces that
			// even if a caller mistakenly inspects Dependencies()
			// before checking IsComplete's cause.
			t.deps = nil
			return
		}
		t.expand(seed, insertUnique)
	}

	t.deps = result
}

// expand performs the depth-first walk for a single resource. insert
// reports whether id was newly inserted (false means already visited);
// expand only recurses into id's install dependencies when insert
// reports true, which is what makes cyclic graphs terminate.
func (t *PackagingTask) expand(id resource.ID, insert func(resource.ID) bool) {
	if t.ctx.IsExiting() {
		return
	}

	compiler, ok := t.ctx.CompilerRegistry.GetCompilerForResourceType(id.TypeTag())
	if !ok {
		// Not a compilable resource — spec §4.2: skip it, and do not
		// expand children.
		return
	}

	if !insert(id) {
		return
	}

	deps, err := compiler.GetInstallDependencies(id)
	if err != nil {
		// A broken manifest for one resource should not abort the
		// whole closure; the resource itself is already recorded.
		return
	}

	for _, dep := range deps {
		t.expand(dep, insert)
	}
}
