// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch implements the single-threaded, cooperative Update
// loop described in spec §4.4: the component that ties the worker
// pool, Request Registry, Packaging Session, file watcher, and network
// server together. Only this package's goroutine ever mutates the
// Registry, the packaging session, or the seed list — every other
// package in this module is either read-only after init or internally
// synchronized, which is exactly what lets Update stay lock-free.
package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/resourced-io/resourced/internal/netserver"
	"github.com/resourced-io/resourced/internal/packaging"
	"github.com/resourced-io/resourced/internal/request"
	"github.com/resourced-io/resourced/internal/resource"
	"github.com/resourced-io/resourced/internal/servercontext"
	"github.com/resourced-io/resourced/internal/task"
	"github.com/resourced-io/resourced/internal/wire"
	"github.com/resourced-io/resourced/lib/clock"
	"github.com/resourced-io/resourced/lib/codec"
)

// Watcher is the subset of internal/fswatch.Watcher the Dispatcher
// needs — defined here, rather than imported directly, purely to keep
// Dispatcher constructible against a fake in tests without dragging in
// real inotify.
type Watcher interface {
	Tick() []string
}

// Dispatcher drives the request/dispatch engine's per-tick state
// transitions. Not safe for concurrent Update calls — callers
// (cmd/resourced) are expected to call Update from a single goroutine,
// typically on a clock.Ticker.
type Dispatcher struct {
	ctx      *servercontext.Context
	pool     *task.Pool
	registry *request.Registry
	pkg      *packaging.Session
	watcher  Watcher
	network  *netserver.Server
	clock    clock.Clock
	logger   *slog.Logger

	staticRequiredResources []resource.ID

	tickNumber uint64
}

// New wires a Dispatcher from its collaborators. staticRequiredResources
// is the engine's and game's statically declared dependency list fed
// into every Packaging Task (spec §4.2 step 1).
func New(
	ctx *servercontext.Context,
	pool *task.Pool,
	registry *request.Registry,
	pkg *packaging.Session,
	watcher Watcher,
	network *netserver.Server,
	c clock.Clock,
	logger *slog.Logger,
	staticRequiredResources []resource.ID,
) *Dispatcher {
	return &Dispatcher{
		ctx:                     ctx,
		pool:                    pool,
		registry:                registry,
		pkg:                     pkg,
		watcher:                 watcher,
		network:                 network,
		clock:                   c,
		logger:                  logger,
		staticRequiredResources: staticRequiredResources,
	}
}

// Update runs one tick: pump network, advance packaging, reap
// completed requests, honor pending cleanup, tick the file watcher.
// Order matters — see spec §4.4.
func (d *Dispatcher) Update() {
	d.tickNumber++

	d.pumpNetwork()
	d.pkg.Advance(d.createPackageRequest)
	d.registry.ReapCompleted(d.notifyCompletion)
	d.registry.HonorPendingCleanup()
	d.tickFileWatcher()
}

// pumpNetwork decodes every inbound message received since the last
// tick: RequestResource becomes an External request (spec §6),
// ServerStatus gets an immediate unicast reply (SPEC_FULL.md §5.7,
// additive to the core protocol). Anything else is logged and dropped.
func (d *Dispatcher) pumpNetwork() {
	for _, inbound := range d.network.Pump() {
		switch inbound.Frame.Type {
		case wire.RequestResource:
			var payload wire.RequestResourcePayload
			if err := codec.Unmarshal(inbound.Frame.Payload, &payload); err != nil {
				d.logger.Warn("malformed RequestResource payload", "client_id", inbound.ClientID, "error", err)
				continue
			}
			d.createRequest(payload.ResourcePath, inbound.ClientID, request.External)

		case wire.ServerStatus:
			d.network.Unicast(inbound.ClientID, wire.ServerStatus, d.Status())

		default:
			d.logger.Warn("unrecognized message type", "client_id", inbound.ClientID, "type", inbound.Frame.Type)
		}
	}
}

// tickFileWatcher translates every path the watcher reported since the
// last tick into a FileWatcher request, silently dropping translations
// that fall outside the raw root (spec §4.4 step 5).
func (d *Dispatcher) tickFileWatcher() {
	for _, path := range d.watcher.Tick() {
		id := d.ctx.Roots.IDFromRawFilesystemPath(path)
		if !id.IsValid() {
			continue
		}
		d.createRequest(id.String(), 0, request.FileWatcher)
	}
}

// createPackageRequest satisfies packaging.CreateRequestFunc, used when
// the packaging session transitions Preparing→Packaging.
func (d *Dispatcher) createPackageRequest(id resource.ID) *request.CompilationRequest {
	return d.createRequest(id.String(), 0, request.Package)
}

// createRequest is the Registry's create(...) operation (spec §4.3),
// owned here because it is the one place that knows how to assemble a
// request's paths and args and schedule its Compilation Task.
func (d *Dispatcher) createRequest(resourcePath string, clientID request.ClientID, origin request.Origin) *request.CompilationRequest {
	request.ValidateOriginClientPairing(origin, clientID)

	id := resource.ParseID(resourcePath)
	req := &request.CompilationRequest{
		ResourceID: id,
		ClientID:   clientID,
		Origin:     origin,
	}

	if !id.IsValid() {
		req.FailImmediately(d.clock, fmt.Sprintf("invalid resource path %q: %s", resourcePath, id.InvalidReason()))
	} else {
		req.SourceFilePath = d.ctx.Roots.SourcePath(id)
		req.DestinationFilePath = d.ctx.Roots.DestinationPath(id, origin == request.Package)
		req.CompilerArgs = id.String()
	}

	compilationTask := task.NewCompilationTask(d.ctx, req, d.clock)
	d.registry.Create(req, compilationTask)
	d.pool.Schedule(compilationTask.Run)

	return req
}

// notifyCompletion implements spec §4.5. Invoked by Registry.ReapCompleted
// for every request that just finished.
func (d *Dispatcher) notifyCompletion(req *request.CompilationRequest) {
	if d.ctx.IsExiting() {
		return
	}

	if req.Origin.Internal() {
		if req.Status == request.SucceededUpToDate {
			return
		}
		d.network.Broadcast(wire.ResourceUpdated, completePayload(req))
		return
	}

	d.network.Unicast(req.ClientID, wire.ResourceRequestComplete, completePayload(req))
}

func completePayload(req *request.CompilationRequest) wire.ResourceCompletePayload {
	payload := wire.ResourceCompletePayload{ResourceID: req.ResourceID.String()}
	if req.Status.IsSuccess() {
		payload.FilePath = req.DestinationFilePath
	}
	return payload
}

// IsBusy reports whether the dispatcher currently has packaging or
// compilation work outstanding.
func (d *Dispatcher) IsBusy() bool {
	stage := d.pkg.Stage()
	packagingActive := stage == packaging.Preparing || stage == packaging.Packaging
	return packagingActive || d.registry.NumScheduledTasks() > 0
}

// StartPackaging adds seeds to the session's seed list (maps added by
// earlier calls stay on it; a map already listed is kept once) and
// begins a new packaging run over the whole list. Panics (via
// packaging.Session) if a run is already active, a seed is not a map,
// or the resulting seed list is empty.
func (d *Dispatcher) StartPackaging(seeds []resource.ID) {
	for _, id := range seeds {
		d.pkg.AddMap(id)
	}
	d.pkg.StartPackaging(d.ctx, d.pool, d.staticRequiredResources)
}

// Requests returns every request the Registry currently tracks,
// insertion-ordered. Exposed for introspection and tests; the returned
// slice must not be retained or mutated beyond the current tick.
func (d *Dispatcher) Requests() []*request.CompilationRequest {
	return d.registry.Requests()
}

// Status returns the operator-facing introspection snapshot (spec
// §5.7's additive ServerStatus payload).
func (d *Dispatcher) Status() wire.ServerStatusPayload {
	return wire.ServerStatusPayload{
		NumActiveRequests:    d.registry.NumScheduledTasks(),
		NumCompletedRequests: d.registry.Count() - d.registry.NumScheduledTasks(),
		PackagingStage:       d.pkg.Stage().String(),
		PackagingProgress:    d.pkg.Progress(),
		TickNumber:           d.tickNumber,
	}
}

// Shutdown implements spec §4.4's termination sequence: set isExiting,
// drain the worker pool, run a final reap pass (which emits no
// notifications since isExiting is now set), then release the network
// server, file watcher, and every tracked request.
func (d *Dispatcher) Shutdown() {
	d.ctx.BeginExit()
	d.pool.Shutdown()
	d.registry.ReapCompleted(d.notifyCompletion)
	d.registry.Clear()
	d.network.Shutdown()

	if closer, ok := d.watcher.(interface{ Close() }); ok {
		closer.Close()
	}
}
