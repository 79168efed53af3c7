package world

import (
	"context"
	"time"

	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
)

func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.TickDuration())
	defer ticker.Stop()

	var pending Commands
	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.build:
			pending.Builds = append(pending.Builds, req)
		case req := <-w.transports:
			pending.Transports = append(pending.Transports, req)
		case req := <-w.orders:
			pending.Orders = append(pending.Orders, req)
		case req := <-w.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			w.stepInternal(pending)
			w.handleAdminSnapshotRequests(pendingAdmin)
			pending.reset()
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering
// semantics as the server. It is primarily intended for tests and replays.
func (w *World) StepOnce(cmds Commands) (tick uint64, events []movementruntime.Event) {
	tick = w.tick.Load()
	events = w.stepInternal(cmds)
	return tick, events
}

// stepInternal applies construction, then new transports, then order
// changes, and only then moves transports, so a command issued during tick N
// is visible to movement in tick N.
func (w *World) stepInternal(cmds Commands) []movementruntime.Event {
	nowTick := w.tick.Load()

	for _, req := range cmds.Builds {
		res := w.applyBuild(req)
		if req.Resp != nil {
			req.Resp <- res
		}
	}
	for _, req := range cmds.Transports {
		res := w.applyTransport(req)
		if req.Resp != nil {
			req.Resp <- res
		}
	}
	for _, req := range cmds.Orders {
		err := w.applyOrder(req)
		if req.Resp != nil {
			req.Resp <- err
		}
	}

	events := w.movement.Step(w.TickDuration())
	if len(events) > 0 {
		for _, o := range w.observers {
			o.PublishEvents(nowTick, events)
		}
	}

	w.tick.Add(1)
	if every := w.cfg.SnapshotEveryTicks; every > 0 && w.snapshotSink != nil && (nowTick+1)%uint64(every) == 0 {
		snap := w.ExportSnapshot(nowTick)
		select {
		case w.snapshotSink <- snap:
		default:
			// Writer is behind; the next periodic snapshot will catch up.
		}
	}
	return events
}
