package worldtest

import (
	"testing"

	"trainsim.ai/internal/sim/catalogs"
	"trainsim.ai/internal/sim/metrics"
	world "trainsim.ai/internal/sim/world"
	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
	"trainsim.ai/internal/sim/world/kernel/model"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

// Harness drives a world through its exported APIs only:
// - Build()/Plan() issue construction commands via StepOnce()
// - AddTransport() registers a transport via StepOnce()
// - StepUntil() advances ticks and collects movement events
// - Metrics records every search the world ran
type Harness struct {
	T       *testing.T
	W       *world.World
	Metrics *metrics.Memory

	// StationIDs maps layout station names to ids.
	StationIDs map[string]model.StationID
}

// NewHarness loads a layout from configs/layouts and builds a world on it.
func NewHarness(t *testing.T, layoutPath string, cfg world.WorldConfig) *Harness {
	t.Helper()

	l, err := catalogs.LoadLayout(layoutPath)
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	return NewHarnessWithLayout(t, l, cfg)
}

// NewHarnessWithLayout is like NewHarness for a layout already in memory.
func NewHarnessWithLayout(t *testing.T, l *catalogs.Layout, cfg world.WorldConfig) *Harness {
	t.Helper()

	lw, err := l.Build()
	if err != nil {
		t.Fatalf("build layout: %v", err)
	}
	if cfg.TickRateHz == 0 {
		cfg.TickRateHz = 10
	}
	if cfg.MapID == "" {
		cfg.MapID = l.Name
	}
	mem := metrics.NewMemory()
	w, err := world.New(cfg, lw.Terrain, lw.Buildings, mem)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	h := &Harness{T: t, W: w, Metrics: mem, StationIDs: lw.StationIDs}
	for _, tr := range lw.Transports {
		h.AddTransport(tr)
	}
	return h
}

func (h *Harness) Plan(start tracks.DirectionalEdge, targets ...tracks.DirectionalEdge) world.BuildResult {
	h.T.Helper()
	return h.command(world.BuildRequest{Start: start, Targets: targets, DryRun: true})
}

func (h *Harness) Build(start tracks.DirectionalEdge, targets ...tracks.DirectionalEdge) world.BuildResult {
	h.T.Helper()
	return h.command(world.BuildRequest{Start: start, Targets: targets})
}

func (h *Harness) command(req world.BuildRequest) world.BuildResult {
	resp := make(chan world.BuildResult, 1)
	req.Resp = resp
	h.W.StepOnce(world.Commands{Builds: []world.BuildRequest{req}})
	return <-resp
}

func (h *Harness) AddTransport(tr *movementruntime.Transport) model.TransportID {
	h.T.Helper()
	resp := make(chan world.TransportResult, 1)
	h.W.StepOnce(world.Commands{Transports: []world.TransportRequest{{Transport: tr, Resp: resp}}})
	r := <-resp
	if r.Err != nil {
		h.T.Fatalf("add transport: %v", r.Err)
	}
	return r.ID
}

// StepUntil advances up to max ticks and stops at the first event matching
// pred. ok is false when no event matched.
func (h *Harness) StepUntil(max int, pred func(movementruntime.Event) bool) (ev movementruntime.Event, ticks int, ok bool) {
	for i := 1; i <= max; i++ {
		_, events := h.W.StepOnce(world.Commands{})
		for _, e := range events {
			if pred(e) {
				return e, i, true
			}
		}
	}
	return movementruntime.Event{}, max, false
}
