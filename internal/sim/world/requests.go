package world

import (
	"context"
	"errors"
	"fmt"

	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
	"trainsim.ai/internal/sim/world/kernel/model"
	"trainsim.ai/internal/sim/world/logic/planning"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

var ErrStopped = errors.New("world stopped")

// BuildRequest plans track from Start to the cheapest of Targets and, unless
// DryRun is set, lays it.
type BuildRequest struct {
	Start   tracks.DirectionalEdge
	Targets []tracks.DirectionalEdge
	DryRun  bool
	Resp    chan BuildResult
}

type BuildResult struct {
	Plan   planning.Plan
	Reused int
	Built  bool
	Err    error
}

type TransportRequest struct {
	Transport *movementruntime.Transport
	Resp      chan TransportResult
}

type TransportResult struct {
	ID  model.TransportID
	Err error
}

type OrderOp uint8

const (
	OpForceStop OrderOp = iota + 1
	OpClearForceStop
	OpPushOrder
)

type OrderRequest struct {
	Transport model.TransportID
	Owner     string
	Op        OrderOp
	Order     model.MovementOrder
	Resp      chan error
}

// Commands are the requests applied at one tick boundary, in receive order
// within each kind.
type Commands struct {
	Builds     []BuildRequest
	Transports []TransportRequest
	Orders     []OrderRequest
}

func (c *Commands) reset() {
	c.Builds = c.Builds[:0]
	c.Transports = c.Transports[:0]
	c.Orders = c.Orders[:0]
}

// Build, AddTransport and SendOrder are the in-process command API of a
// running World, for a construction or dispatch layer living in the same
// process as Run. cmd/server exposes no network surface for them; tests and
// replays drive the same commands through StepOnce.
//
// Build is safe to call from any goroutine while Run is active.
func (w *World) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	resp := make(chan BuildResult, 1)
	req.Resp = resp
	if err := send(ctx, w.stop, w.build, req); err != nil {
		return BuildResult{}, err
	}
	return recv(ctx, w.stop, resp)
}

// AddTransport registers t on the next tick and returns its id.
func (w *World) AddTransport(ctx context.Context, t *movementruntime.Transport) (model.TransportID, error) {
	resp := make(chan TransportResult, 1)
	if err := send(ctx, w.stop, w.transports, TransportRequest{Transport: t, Resp: resp}); err != nil {
		return model.TransportID{}, err
	}
	r, err := recv(ctx, w.stop, resp)
	if err != nil {
		return model.TransportID{}, err
	}
	return r.ID, r.Err
}

// SendOrder applies an owner-checked order change on the next tick.
func (w *World) SendOrder(ctx context.Context, req OrderRequest) error {
	resp := make(chan error, 1)
	req.Resp = resp
	if err := send(ctx, w.stop, w.orders, req); err != nil {
		return err
	}
	r, err := recv(ctx, w.stop, resp)
	if err != nil {
		return err
	}
	return r
}

func send[T any](ctx context.Context, stop <-chan struct{}, ch chan<- T, v T) error {
	select {
	case ch <- v:
		return nil
	case <-stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recv[T any](ctx context.Context, stop <-chan struct{}, ch <-chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-stop:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (w *World) applyBuild(req BuildRequest) BuildResult {
	plan, err := w.planner.Plan(req.Start, req.Targets)
	if err != nil {
		return BuildResult{Err: err}
	}
	res := BuildResult{Plan: plan, Reused: plan.Reused(w.buildings)}
	if req.DryRun {
		return res
	}
	if err := w.buildings.BuildTracks(plan.Segments); err != nil {
		res.Err = fmt.Errorf("build plan: %w", err)
		return res
	}
	res.Built = true
	return res
}

func (w *World) applyTransport(req TransportRequest) TransportResult {
	if err := w.movement.Add(req.Transport); err != nil {
		return TransportResult{Err: err}
	}
	return TransportResult{ID: req.Transport.ID}
}

func (w *World) applyOrder(req OrderRequest) error {
	switch req.Op {
	case OpForceStop:
		return w.movement.ForceStop(req.Transport, req.Owner)
	case OpClearForceStop:
		return w.movement.ClearForceStop(req.Transport, req.Owner)
	case OpPushOrder:
		if _, ok := w.buildings.FindStation(req.Order.Destination); !ok {
			return fmt.Errorf("push order: unknown station %s", req.Order.Destination)
		}
		return w.movement.PushOrder(req.Transport, req.Owner, req.Order)
	}
	return fmt.Errorf("unknown order op %d", req.Op)
}
