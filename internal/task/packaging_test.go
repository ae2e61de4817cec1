// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"testing"
	"time"

	"github.com/resourced-io/resourced/internal/compiler"
	"github.com/resourced-io/resourced/internal/resource"
	"github.com/resourced-io/resourced/internal/servercontext"
	"github.com/stretchr/testify/require"
)

// fakeCompiler reports fixed install dependencies per resource, driven
// by a map keyed on the resource's string form. Any resource not in the
// map has no dependencies.
type fakeCompiler struct {
	deps map[string][]resource.ID
}

func (f *fakeCompiler) GetInstallDependencies(id resource.ID) ([]resource.ID, error) {
	return f.deps[id.String()], nil
}

// fakeRegistry treats every type tag present in compilableTypes as
// compilable, all served by the same fakeCompiler.
type fakeRegistry struct {
	compilableTypes map[string]bool
	compiler        *fakeCompiler
}

func (f *fakeRegistry) GetCompilerForResourceType(typeTag string) (compiler.Compiler, bool) {
	if !f.compilableTypes[typeTag] {
		return nil, false
	}
	return f.compiler, true
}

func newTestContext(registry *fakeRegistry) *servercontext.Context {
	return servercontext.New(resource.Roots{}, "/bin/true", registry)
}

func timeoutChan(t *testing.T) <-chan time.Time {
	t.Helper()
	return time.After(2 * time.Second)
}

func TestPackagingTask_HappyPathClosure(t *testing.T) {
	m1 := resource.ParseID("data://maps/m1.map")
	a := resource.ParseID("data://textures/a.tex")
	b := resource.ParseID("data://textures/b.tex")
	c := resource.ParseID("data://textures/c.tex")

	registry := &fakeRegistry{
		compilableTypes: map[string]bool{"map": true, "tex": true},
		compiler: &fakeCompiler{deps: map[string][]resource.ID{
			m1.String(): {a, b},
			b.String():  {c},
		}},
	}

	pt := NewPackagingTask(newTestContext(registry), []resource.ID{m1}, nil)
	pt.Run()

	require.True(t, pt.IsComplete())
	deps := pt.Dependencies()
	require.Len(t, deps, 4)
	require.Equal(t, m1, deps[0], "seed must be first")

	seen := map[resource.ID]bool{}
	for _, d := range deps {
		require.False(t, seen[d], "duplicate dependency %s", d)
		seen[d] = true
	}
	require.True(t, seen[a])
	require.True(t, seen[b])
	require.True(t, seen[c])
}

func TestPackagingTask_CyclicGraphTerminates(t *testing.T) {
	a := resource.ParseID("data://maps/a.map")
	b := resource.ParseID("data://maps/b.map")

	registry := &fakeRegistry{
		compilableTypes: map[string]bool{"map": true},
		compiler: &fakeCompiler{deps: map[string][]resource.ID{
			a.String(): {b},
			b.String(): {a},
		}},
	}

	pt := NewPackagingTask(newTestContext(registry), []resource.ID{a}, nil)

	done := make(chan struct{})
	go func() {
		pt.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-timeoutChan(t):
		t.Fatal("PackagingTask.Run did not terminate on a cyclic dependency graph")
	}

	deps := pt.Dependencies()
	require.Len(t, deps, 2)
}

func TestPackagingTask_SkipsUncompilableResources(t *testing.T) {
	m1 := resource.ParseID("data://maps/m1.map")
	unknown := resource.ParseID("data://misc/unknown.xyz")

	registry := &fakeRegistry{
		compilableTypes: map[string]bool{"map": true},
		compiler: &fakeCompiler{deps: map[string][]resource.ID{
			m1.String(): {unknown},
		}},
	}

	pt := NewPackagingTask(newTestContext(registry), []resource.ID{m1}, nil)
	pt.Run()

	deps := pt.Dependencies()
	require.Len(t, deps, 1)
	require.Equal(t, m1, deps[0])
}

func TestPackagingTask_IdempotentAcrossRuns(t *testing.T) {
	m1 := resource.ParseID("data://maps/m1.map")
	a := resource.ParseID("data://textures/a.tex")

	registry := &fakeRegistry{
		compilableTypes: map[string]bool{"map": true, "tex": true},
		compiler: &fakeCompiler{deps: map[string][]resource.ID{
			m1.String(): {a},
		}},
	}

	first := NewPackagingTask(newTestContext(registry), []resource.ID{m1}, nil)
	first.Run()

	second := NewPackagingTask(newTestContext(registry), []resource.ID{m1}, nil)
	second.Run()

	require.Equal(t, first.Dependencies(), second.Dependencies())
}

func TestPackagingTask_AbortsOnExiting(t *testing.T) {
	m1 := resource.ParseID("data://maps/m1.map")
	registry := &fakeRegistry{compilableTypes: map[string]bool{"map": true}, compiler: &fakeCompiler{}}

	ctx := newTestContext(registry)
	ctx.BeginExit()

	pt := NewPackagingTask(ctx, []resource.ID{m1}, nil)
	pt.Run()

	require.True(t, pt.IsComplete())
	require.Nil(t, pt.Dependencies())
}
