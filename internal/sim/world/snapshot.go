package world

import (
	"context"
	"errors"
	"fmt"

	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/world/buildings"
	"trainsim.ai/internal/sim/world/terrain/store"
)

func (w *World) ExportSnapshot(tick uint64) snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			MapID:   w.cfg.MapID,
			Tick:    tick,
		},
		SizeX:      w.terrain.SizeX,
		SizeZ:      w.terrain.SizeZ,
		WaterLevel: w.terrain.WaterLevel,
		Chunks:     store.ExportChunks(w.terrain),
	}
	w.buildings.Export(&snap)
	w.movement.Export(&snap)
	return snap
}

// NewFromSnapshot rebuilds a world at the tick after the snapshot's.
func NewFromSnapshot(cfg WorldConfig, snap snapshot.SnapshotV1, sink metrics.Sink) (*World, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if cfg.MapID == "" {
		cfg.MapID = snap.Header.MapID
	}
	terrain, err := store.ImportChunks(snap.SizeX, snap.SizeZ, snap.WaterLevel, snap.Chunks)
	if err != nil {
		return nil, fmt.Errorf("import terrain: %w", err)
	}
	state, err := buildings.Import(terrain, snap)
	if err != nil {
		return nil, err
	}
	w, err := New(cfg, terrain, state, sink)
	if err != nil {
		return nil, err
	}
	if err := w.movement.Import(snap); err != nil {
		return nil, err
	}
	w.tick.Store(snap.Header.Tick + 1)
	return w, nil
}

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the world loop goroutine to enqueue a snapshot.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	resp := make(chan adminSnapshotResp, 1)
	if err := send(ctx, w.stop, w.admin, adminSnapshotReq{Resp: resp}); err != nil {
		return 0, err
	}
	r, err := recv(ctx, w.stop, resp)
	if err != nil {
		return 0, err
	}
	if r.Err != "" {
		return r.Tick, errors.New(r.Err)
	}
	return r.Tick, nil
}

func (w *World) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := w.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}

	errStr := ""
	if w.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		snap := w.ExportSnapshot(snapTick)
		select {
		case w.snapshotSink <- snap:
		default:
			errStr = "snapshot sink busy"
		}
	}
	for _, r := range reqs {
		r.Resp <- adminSnapshotResp{Tick: snapTick, Err: errStr}
	}
}
