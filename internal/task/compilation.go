// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"github.com/resourced-io/resourced/internal/request"
	"github.com/resourced-io/resourced/internal/servercontext"
	"github.com/resourced-io/resourced/lib/clock"
)

// Exit codes the external compiler is expected to use (spec §6). Any
// other code is treated as failure.
const (
	ExitSuccess             = 0
	ExitSuccessUpToDate     = 1
	ExitSuccessWithWarnings = 2
)

// CompilationTask drives one child compiler process to completion and
// mutates its request into a terminal status exactly once, per spec
// §4.1. Each task runs on one worker; it is the sole mutator of its
// request while alive.
type CompilationTask struct {
	ctx   *servercontext.Context
	req   *request.CompilationRequest
	clock clock.Clock

	done atomic.Bool
}

// NewCompilationTask returns a task that will drive req's compiler
// subprocess when Run is called.
func NewCompilationTask(ctx *servercontext.Context, req *request.CompilationRequest, c clock.Clock) *CompilationTask {
	return &CompilationTask{ctx: ctx, req: req, clock: c}
}

// IsComplete reports whether Run has finished (successfully, with a
// failure, or as a no-op).
func (t *CompilationTask) IsComplete() bool {
	return t.done.Load()
}

// Run executes the task. Intended to be submitted to a [Pool] via
// Schedule; callers that need synchronous execution (tests) may call it
// directly.
func (t *CompilationTask) Run() {
	defer t.done.Store(true)

	// Step 1: short-circuit if exiting or already terminal (e.g. a
	// pre-failed request created from an invalid ID — spec §9's
	// uniform failure path).
	if t.ctx.IsExiting() || t.req.Status.IsComplete() {
		return
	}

	t.req.Status = request.Compiling
	t.req.StartedAt = t.clock.Now()

	cmd := exec.Command(t.ctx.CompilerExecutablePath, t.buildArgs()...)
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		cmd.Stderr = cmd.Stdout
	}

	if err != nil || cmd.Start() != nil {
		t.req.Status = request.Failed
		t.req.AppendLog("Resource compiler failed to start!")
		t.req.FinishedAt = t.clock.Now()
		return
	}

	t.drainOutput(stdout)

	if err := cmd.Wait(); err != nil {
		exitErr, isExitErr := err.(*exec.ExitError)
		if !isExitErr {
			t.req.Status = request.Failed
			t.req.AppendLog("Resource compiler failed to complete!")
			t.req.FinishedAt = t.clock.Now()
			return
		}
		t.finish(exitErr.ExitCode())
		return
	}

	t.finish(ExitSuccess)
}

// buildArgs assembles the compiler argument vector per spec §4.1 step 2:
// [-compile, compilerArgs, <flag?>], where the package flag wins over
// force when both would apply.
func (t *CompilationTask) buildArgs() []string {
	args := []string{"-compile", t.req.CompilerArgs}
	switch {
	case t.req.Origin == request.Package:
		args = append(args, "-package")
	case t.req.ForceRecompile:
		args = append(args, "-force")
	}
	return args
}

// drainOutput reads the child's combined stdout stream line by line,
// appending each line to the request's log, per spec §4.1 step 6.
func (t *CompilationTask) drainOutput(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		t.req.AppendLog(scanner.Text())
	}
}

// finish records the subprocess's exit code as a terminal status
// (spec §4.1 step 5).
func (t *CompilationTask) finish(exitCode int) {
	t.req.FinishedAt = t.clock.Now()

	switch exitCode {
	case ExitSuccessUpToDate:
		t.req.Status = request.SucceededUpToDate
	case ExitSuccess:
		t.req.Status = request.Succeeded
	case ExitSuccessWithWarnings:
		t.req.Status = request.SucceededWithWarnings
	default:
		t.req.Status = request.Failed
	}
}
