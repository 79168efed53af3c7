package world

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/catalogs"
	"trainsim.ai/internal/sim/metrics"
	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
	"trainsim.ai/internal/sim/world/kernel/model"
	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

type recorder struct {
	mu     sync.Mutex
	ticks  []uint64
	events []movementruntime.Event
}

func (r *recorder) PublishEvents(tick uint64, events []movementruntime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range events {
		r.ticks = append(r.ticks, tick)
	}
	r.events = append(r.events, events...)
}

func newRingWorld(t *testing.T, cfg WorldConfig) (*World, *catalogs.World, *metrics.Memory) {
	t.Helper()
	l, err := catalogs.LoadLayout("../../../configs/layouts/ring.json")
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	lw, err := l.Build()
	if err != nil {
		t.Fatalf("build layout: %v", err)
	}
	if cfg.TickRateHz == 0 {
		cfg.TickRateHz = 10
	}
	if cfg.MapID == "" {
		cfg.MapID = "ring"
	}
	mem := metrics.NewMemory()
	w, err := New(cfg, lw.Terrain, lw.Buildings, mem)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, lw, mem
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, lw, _ := newRingWorld(t, WorldConfig{})
	if _, err := New(WorldConfig{TickRateHz: 0}, lw.Terrain, nil, nil); err == nil {
		t.Fatalf("expected error for zero tick rate")
	}
	if _, err := New(WorldConfig{TickRateHz: 10}, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil terrain")
	}
}

func TestStepOnce_TransportArrives(t *testing.T) {
	w, lw, mem := newRingWorld(t, WorldConfig{})
	rec := &recorder{}
	w.AddObserver(rec)

	resp := make(chan TransportResult, 1)
	_, _ = w.StepOnce(Commands{Transports: []TransportRequest{{Transport: lw.Transports[0], Resp: resp}}})
	r := <-resp
	if r.Err != nil {
		t.Fatalf("add transport: %v", r.Err)
	}

	var arrived *movementruntime.Event
	for i := 0; i < 30 && arrived == nil; i++ {
		_, events := w.StepOnce(Commands{})
		for j := range events {
			if events[j].Kind == movementruntime.EventArrived {
				arrived = &events[j]
			}
		}
	}
	if arrived == nil {
		t.Fatalf("transport never arrived; tick=%d", w.CurrentTick())
	}
	if arrived.Transport != r.ID || arrived.Order.Destination != lw.StationIDs["A"] {
		t.Fatalf("arrival=%+v", arrived)
	}
	if len(rec.events) == 0 || rec.events[len(rec.events)-1].Kind != movementruntime.EventArrived {
		t.Fatalf("observer events=%+v", rec.events)
	}
	if mem.Count(metrics.KindPathfinding) == 0 {
		t.Fatalf("expected pathfinding metrics from the movement system")
	}
}

func TestStepOnce_BuildDryRunThenApply(t *testing.T) {
	w, _, mem := newRingWorld(t, WorldConfig{})
	start := tracks.DirectionalEdge{IntoTile: tiles.TileCoordsXZ{X: 0, Z: 5}, FromDirection: tiles.West}
	goal := tracks.DirectionalEdge{IntoTile: tiles.TileCoordsXZ{X: 9, Z: 5}, FromDirection: tiles.West}

	build := func(dry bool) BuildResult {
		resp := make(chan BuildResult, 1)
		w.StepOnce(Commands{Builds: []BuildRequest{{Start: start, Targets: []tracks.DirectionalEdge{goal}, DryRun: dry, Resp: resp}}})
		return <-resp
	}

	// Four new curves plus seven discounted straights along z=4 undercut a
	// fresh nine-tile line along z=5.
	before := w.Buildings().TrackCount()
	dry := build(true)
	if dry.Err != nil || dry.Built || len(dry.Plan.Segments) != 11 || dry.Reused != 7 {
		t.Fatalf("dry run=%+v", dry)
	}
	wantFirst := tracks.NewTileTrack(tiles.TileCoordsXZ{X: 0, Z: 5}, tracks.NorthWest, tiles.North)
	wantLast := tracks.NewTileTrack(tiles.TileCoordsXZ{X: 8, Z: 5}, tracks.NorthEast, tiles.East)
	if got := dry.Plan.Segments; got[0] != wantFirst || got[len(got)-1] != wantLast {
		t.Fatalf("plan=%v", got)
	}
	if w.Buildings().TrackCount() != before {
		t.Fatalf("dry run changed track count")
	}

	applied := build(false)
	if applied.Err != nil || !applied.Built {
		t.Fatalf("build=%+v", applied)
	}
	if got := w.Buildings().TrackCount(); got != before+4 {
		t.Fatalf("TrackCount=%d want %d", got, before+4)
	}

	again := build(true)
	if again.Reused != len(again.Plan.Segments) {
		t.Fatalf("re-plan reused %d of %d", again.Reused, len(again.Plan.Segments))
	}
	if mem.Count(metrics.KindPlanning) != 3 {
		t.Fatalf("planning metrics=%d want 3", mem.Count(metrics.KindPlanning))
	}
}

func TestStepOnce_BuildAtFullPriceTakesStraightLine(t *testing.T) {
	w, _, _ := newRingWorld(t, WorldConfig{AlreadyExistsCoef: 1})
	start := tracks.DirectionalEdge{IntoTile: tiles.TileCoordsXZ{X: 0, Z: 5}, FromDirection: tiles.West}
	goal := tracks.DirectionalEdge{IntoTile: tiles.TileCoordsXZ{X: 9, Z: 5}, FromDirection: tiles.West}

	before := w.Buildings().TrackCount()
	resp := make(chan BuildResult, 1)
	w.StepOnce(Commands{Builds: []BuildRequest{{Start: start, Targets: []tracks.DirectionalEdge{goal}, Resp: resp}}})
	res := <-resp
	if res.Err != nil || !res.Built || len(res.Plan.Segments) != 9 || res.Reused != 0 {
		t.Fatalf("build=%+v", res)
	}
	for i, s := range res.Plan.Segments {
		want := tracks.NewTileTrack(tiles.TileCoordsXZ{X: i, Z: 5}, tracks.EastWest, tiles.East)
		if s != want {
			t.Fatalf("segment %d=%s want %s", i, s, want)
		}
	}
	if got := w.Buildings().TrackCount(); got != before+9 {
		t.Fatalf("TrackCount=%d want %d", got, before+9)
	}
}

func TestStepOnce_OrderOwnership(t *testing.T) {
	w, lw, _ := newRingWorld(t, WorldConfig{})
	tr := lw.Transports[0]
	if err := w.Movement().Add(tr); err != nil {
		t.Fatalf("Add: %v", err)
	}

	apply := func(req OrderRequest) error {
		resp := make(chan error, 1)
		req.Resp = resp
		w.StepOnce(Commands{Orders: []OrderRequest{req}})
		return <-resp
	}
	if err := apply(OrderRequest{Transport: tr.ID, Owner: "mallory", Op: OpForceStop}); !errors.Is(err, movementruntime.ErrNotOwner) {
		t.Fatalf("err=%v want ErrNotOwner", err)
	}
	if err := apply(OrderRequest{Transport: tr.ID, Owner: "alice", Op: OpForceStop}); err != nil {
		t.Fatalf("force stop: %v", err)
	}
	loc, progress := tr.Location, tr.Progress
	for i := 0; i < 5; i++ {
		w.StepOnce(Commands{})
	}
	if tr.Location != loc || tr.Progress != progress {
		t.Fatalf("stopped transport moved to %s progress %v", tr.Location, tr.Progress)
	}
	push := model.MovementOrder{Destination: model.NewStationID()}
	if err := apply(OrderRequest{Transport: tr.ID, Owner: "alice", Op: OpPushOrder, Order: push}); err == nil {
		t.Fatalf("expected error pushing an order to an unknown station")
	}
	if err := apply(OrderRequest{Transport: tr.ID, Owner: "alice", Op: OpClearForceStop}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	w.StepOnce(Commands{})
	if tr.Location == loc && tr.Progress == progress {
		t.Fatalf("transport did not resume")
	}
}

func TestPeriodicSnapshotRoundTrip(t *testing.T) {
	w, lw, _ := newRingWorld(t, WorldConfig{SnapshotEveryTicks: 5})
	sink := make(chan snapshot.SnapshotV1, 4)
	w.SetSnapshotSink(sink)
	if err := w.Movement().Add(lw.Transports[0]); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for i := 0; i < 5; i++ {
		w.StepOnce(Commands{})
	}
	var snap snapshot.SnapshotV1
	select {
	case snap = <-sink:
	default:
		t.Fatalf("no snapshot after 5 ticks")
	}
	if snap.Header.Tick != 4 || snap.Header.MapID != "ring" || len(snap.Transports) != 1 {
		t.Fatalf("snapshot header=%+v transports=%d", snap.Header, len(snap.Transports))
	}

	w2, err := NewFromSnapshot(WorldConfig{TickRateHz: 10}, snap, nil)
	if err != nil {
		t.Fatalf("NewFromSnapshot: %v", err)
	}
	if w2.CurrentTick() != 5 || w2.ID() != "ring" {
		t.Fatalf("restored tick=%d id=%s", w2.CurrentTick(), w2.ID())
	}
	if diff := cmp.Diff(snap, w2.ExportSnapshot(4)); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	snap.Header.Version = 99
	if _, err := NewFromSnapshot(WorldConfig{TickRateHz: 10}, snap, nil); err == nil {
		t.Fatalf("expected version error")
	}
}

func TestRun_ServesRequests(t *testing.T) {
	w, lw, _ := newRingWorld(t, WorldConfig{TickRateHz: 100})
	sink := make(chan snapshot.SnapshotV1, 1)
	w.SetSnapshotSink(sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	id, err := w.AddTransport(ctx, lw.Transports[0])
	if err != nil {
		t.Fatalf("AddTransport: %v", err)
	}
	if err := w.SendOrder(ctx, OrderRequest{Transport: id, Owner: "alice", Op: OpForceStop}); err != nil {
		t.Fatalf("SendOrder: %v", err)
	}
	start := tracks.DirectionalEdge{IntoTile: tiles.TileCoordsXZ{X: 0, Z: 5}, FromDirection: tiles.West}
	goal := tracks.DirectionalEdge{IntoTile: tiles.TileCoordsXZ{X: 4, Z: 5}, FromDirection: tiles.West}
	res, err := w.Build(ctx, BuildRequest{Start: start, Targets: []tracks.DirectionalEdge{goal}})
	if err != nil || res.Err != nil || !res.Built {
		t.Fatalf("Build: res=%+v err=%v", res, err)
	}
	if _, err := w.RequestSnapshot(ctx); err != nil {
		t.Fatalf("RequestSnapshot: %v", err)
	}
	snap := <-sink
	if len(snap.Transports) != 1 || !snap.Transports[0].ForceStop {
		t.Fatalf("snapshot transports=%+v", snap.Transports)
	}

	w.Stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := w.Build(context.Background(), BuildRequest{Start: start}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v want ErrStopped", err)
	}
}
