// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/resourced-io/resourced/internal/request"
	"github.com/resourced-io/resourced/internal/resource"
	"github.com/resourced-io/resourced/internal/servercontext"
	"github.com/resourced-io/resourced/lib/clock"
	"github.com/stretchr/testify/require"
)

// writeFakeCompiler writes a tiny shell script standing in for the
// external resource compiler: it echoes its arguments to stdout, then
// exits with exitCode, which is written into the script itself.
func writeFakeCompiler(t *testing.T, exitCode int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fake-compiler.sh")
	script := fmt.Sprintf("#!/bin/sh\necho \"args: $@\"\nexit %d\n", exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func newCompilationContext(t *testing.T, compilerPath string) *servercontext.Context {
	t.Helper()
	return servercontext.New(resource.Roots{}, compilerPath, nil)
}

func TestCompilationTask_Success(t *testing.T) {
	compilerPath := writeFakeCompiler(t, ExitSuccess)
	ctx := newCompilationContext(t, compilerPath)

	req := &request.CompilationRequest{
		ResourceID:   resource.ParseID("data://a.anim"),
		CompilerArgs: "data://a.anim",
		Status:       request.Pending,
	}

	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	taskUnderTest := NewCompilationTask(ctx, req, c)
	taskUnderTest.Run()

	require.True(t, taskUnderTest.IsComplete())
	require.Equal(t, request.Succeeded, req.Status)
	require.NotEmpty(t, req.Log)
	require.False(t, req.FinishedAt.Before(req.StartedAt))
}

func TestCompilationTask_UpToDate(t *testing.T) {
	compilerPath := writeFakeCompiler(t, ExitSuccessUpToDate)
	ctx := newCompilationContext(t, compilerPath)

	req := &request.CompilationRequest{Status: request.Pending, CompilerArgs: "data://a.anim"}
	taskUnderTest := NewCompilationTask(ctx, req, clock.Real())
	taskUnderTest.Run()

	require.Equal(t, request.SucceededUpToDate, req.Status)
}

func TestCompilationTask_WithWarnings(t *testing.T) {
	compilerPath := writeFakeCompiler(t, ExitSuccessWithWarnings)
	ctx := newCompilationContext(t, compilerPath)

	req := &request.CompilationRequest{Status: request.Pending, CompilerArgs: "data://a.anim"}
	taskUnderTest := NewCompilationTask(ctx, req, clock.Real())
	taskUnderTest.Run()

	require.Equal(t, request.SucceededWithWarnings, req.Status)
}

func TestCompilationTask_NonSuccessExitFails(t *testing.T) {
	compilerPath := writeFakeCompiler(t, 42)
	ctx := newCompilationContext(t, compilerPath)

	req := &request.CompilationRequest{Status: request.Pending, CompilerArgs: "data://a.anim"}
	taskUnderTest := NewCompilationTask(ctx, req, clock.Real())
	taskUnderTest.Run()

	require.Equal(t, request.Failed, req.Status)
}

func TestCompilationTask_SpawnFailure(t *testing.T) {
	ctx := newCompilationContext(t, filepath.Join(t.TempDir(), "does-not-exist"))

	req := &request.CompilationRequest{Status: request.Pending, CompilerArgs: "data://a.anim"}
	taskUnderTest := NewCompilationTask(ctx, req, clock.Real())
	taskUnderTest.Run()

	require.Equal(t, request.Failed, req.Status)
	require.Contains(t, req.Log, "Resource compiler failed to start!")
}

func TestCompilationTask_SkipsWhenAlreadyTerminal(t *testing.T) {
	compilerPath := writeFakeCompiler(t, ExitSuccess)
	ctx := newCompilationContext(t, compilerPath)

	req := &request.CompilationRequest{
		Status: request.Failed,
		Log:    []string{"resource path \"\" is empty"},
	}
	taskUnderTest := NewCompilationTask(ctx, req, clock.Real())
	taskUnderTest.Run()

	require.True(t, taskUnderTest.IsComplete())
	require.Equal(t, request.Failed, req.Status)
	require.Len(t, req.Log, 1, "a pre-failed request must not be touched by Run")
}

func TestCompilationTask_SkipsWhenExiting(t *testing.T) {
	compilerPath := writeFakeCompiler(t, ExitSuccess)
	ctx := newCompilationContext(t, compilerPath)
	ctx.BeginExit()

	req := &request.CompilationRequest{Status: request.Pending, CompilerArgs: "data://a.anim"}
	taskUnderTest := NewCompilationTask(ctx, req, clock.Real())
	taskUnderTest.Run()

	require.True(t, taskUnderTest.IsComplete())
	require.Equal(t, request.Pending, req.Status, "a task that never ran must not mutate status")
}

func TestCompilationTask_PackageFlagWinsOverForce(t *testing.T) {
	compilerPath := writeFakeCompiler(t, ExitSuccess)
	ctx := newCompilationContext(t, compilerPath)

	req := &request.CompilationRequest{
		Status:         request.Pending,
		CompilerArgs:   "data://a.map",
		Origin:         request.Package,
		ForceRecompile: true,
	}
	taskUnderTest := NewCompilationTask(ctx, req, clock.Real())
	args := taskUnderTest.buildArgs()

	require.Equal(t, []string{"-compile", "data://a.map", "-package"}, args)
}
