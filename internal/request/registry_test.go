// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeTask is a minimal Task whose completion is controlled by the test.
type fakeTask struct {
	complete bool
}

func (f *fakeTask) IsComplete() bool { return f.complete }

func TestRegistry_CreateAndReap(t *testing.T) {
	r := NewRegistry()

	req1 := &CompilationRequest{Status: Pending}
	task1 := &fakeTask{}
	r.Create(req1, task1)

	req2 := &CompilationRequest{Status: Pending}
	task2 := &fakeTask{}
	r.Create(req2, task2)

	require.Equal(t, 2, r.Count())
	require.Equal(t, 2, r.NumScheduledTasks())

	task1.complete = true
	req1.Status = Succeeded

	var completed []*CompilationRequest
	r.ReapCompleted(func(req *CompilationRequest) {
		completed = append(completed, req)
	})

	require.Len(t, completed, 1)
	require.Same(t, req1, completed[0])
	require.Equal(t, 1, r.NumScheduledTasks())
	require.Equal(t, 2, r.Count(), "reap does not remove from requests, only activeTasks")
}

func TestRegistry_Cleanup(t *testing.T) {
	r := NewRegistry()

	active := &CompilationRequest{Status: Pending}
	r.Create(active, &fakeTask{complete: false})

	done := &CompilationRequest{Status: Succeeded}
	r.Create(done, &fakeTask{complete: true})
	r.ReapCompleted(nil)

	r.Cleanup()

	require.Equal(t, 1, r.Count())
	require.Same(t, active, r.Requests()[0])
}

func TestRegistry_HonorPendingCleanup(t *testing.T) {
	r := NewRegistry()
	done := &CompilationRequest{Status: Failed}
	r.Create(done, &fakeTask{complete: true})
	r.ReapCompleted(nil)

	r.HonorPendingCleanup()
	require.Equal(t, 1, r.Count(), "cleanup should not run without RequestCleanup")

	r.RequestCleanup()
	r.HonorPendingCleanup()
	require.Equal(t, 0, r.Count())
}

func TestValidateOriginClientPairing(t *testing.T) {
	require.NotPanics(t, func() {
		ValidateOriginClientPairing(External, ClientID(7))
	})
	require.NotPanics(t, func() {
		ValidateOriginClientPairing(FileWatcher, ClientID(0))
	})
	require.Panics(t, func() {
		ValidateOriginClientPairing(External, ClientID(0))
	})
	require.Panics(t, func() {
		ValidateOriginClientPairing(Package, ClientID(1))
	})
}

func TestStatus_IsComplete(t *testing.T) {
	complete := []Status{Succeeded, SucceededUpToDate, SucceededWithWarnings, Failed}
	for _, s := range complete {
		require.True(t, s.IsComplete(), "expected %s to be complete", s)
	}

	incomplete := []Status{Pending, Compiling}
	for _, s := range incomplete {
		require.False(t, s.IsComplete(), "expected %s to be incomplete", s)
	}
}
