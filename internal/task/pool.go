// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements the two kinds of work the dispatcher schedules
// on the worker pool — CompilationTask (spec §4.1) and PackagingTask
// (spec §4.2) — plus the pool itself.
package task

import "sync"

// Pool is a small, fixed-size goroutine worker pool executing submitted
// closures. Grounded on the teacher's scheduler worker pool
// (workerPool chan func() + workerWG sync.WaitGroup): a bounded channel
// of jobs drained by a fixed set of long-lived goroutines.
//
// Pool satisfies spec §5's "worker-pool primitive provides schedule,
// wait-all, shutdown, and per-task isComplete polling; no other
// synchronization is exposed to the core" — isComplete lives on the
// individual task values (see [CompilationTask.IsComplete] and
// [PackagingTask.IsComplete]), not on the Pool.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// NewPool starts a Pool with the given number of workers and a job
// queue of the given capacity. workers must be positive.
func NewPool(workers, queueCapacity int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueCapacity < workers {
		queueCapacity = workers
	}

	p := &Pool{jobs: make(chan func(), queueCapacity)}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Schedule submits job to the pool. Blocks if the job queue is full.
func (p *Pool) Schedule(job func()) {
	p.jobs <- job
}

// Shutdown closes the job queue and waits for every worker to drain its
// remaining jobs. Per spec §4.4's termination sequence, the Dispatcher
// calls this only after isExiting is set, so any in-flight
// CompilationTask observes the flag and completes promptly rather than
// spawning new subprocess work — but an already-spawned subprocess is
// waited out, not killed (spec §5: "no per-request cancel").
func (p *Pool) Shutdown() {
	close(p.jobs)
	p.wg.Wait()
}
