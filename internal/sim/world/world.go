package world

import (
	"fmt"
	"sync/atomic"
	"time"

	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/tuning"
	"trainsim.ai/internal/sim/world/buildings"
	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
	"trainsim.ai/internal/sim/world/logic/planning"
	"trainsim.ai/internal/sim/world/logic/routing"
	"trainsim.ai/internal/sim/world/terrain/store"
)

type WorldConfig struct {
	MapID              string
	TickRateHz         int
	SnapshotEveryTicks int

	AlreadyExistsCoef float64
	PlanMaxExpanded   int
	RouteMaxExpanded  int
}

// ConfigFromTuning copies the simulation knobs out of a tuning file.
func ConfigFromTuning(mapID string, t tuning.Tuning) WorldConfig {
	return WorldConfig{
		MapID:              mapID,
		TickRateHz:         t.TickRateHz,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		AlreadyExistsCoef:  t.Planner.AlreadyExistsCoef,
		PlanMaxExpanded:    t.Planner.MaxExpanded,
		RouteMaxExpanded:   t.Router.MaxExpanded,
	}
}

// EventObserver receives the movement events of every tick that had any.
type EventObserver interface {
	PublishEvents(tick uint64, events []movementruntime.Event)
}

// World is a single-threaded authoritative simulation of one map.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig

	tick atomic.Uint64

	terrain   *store.HeightMap
	buildings *buildings.State
	movement  *movementruntime.System
	planner   planning.Planner
	finder    routing.Finder
	metrics   metrics.Sink

	observers    []EventObserver
	snapshotSink chan<- snapshot.SnapshotV1

	build      chan BuildRequest
	transports chan TransportRequest
	orders     chan OrderRequest
	admin      chan adminSnapshotReq
	stop       chan struct{}
}

// New wires the planner, the route finder and the movement system over one
// building state. A nil state starts empty on terrain.
func New(cfg WorldConfig, terrain *store.HeightMap, state *buildings.State, sink metrics.Sink) (*World, error) {
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("tick rate must be positive, got %d", cfg.TickRateHz)
	}
	if terrain == nil {
		return nil, fmt.Errorf("world %s: nil terrain", cfg.MapID)
	}
	if state == nil {
		state = buildings.NewState(terrain)
	}
	sink = metrics.OrNoop(sink)

	w := &World{
		cfg:        cfg,
		terrain:    terrain,
		buildings:  state,
		metrics:    sink,
		build:      make(chan BuildRequest, 64),
		transports: make(chan TransportRequest, 64),
		orders:     make(chan OrderRequest, 256),
		admin:      make(chan adminSnapshotReq, 8),
		stop:       make(chan struct{}),
	}
	w.planner = planning.Planner{
		World:             state,
		Metrics:           sink,
		AlreadyExistsCoef: cfg.AlreadyExistsCoef,
		MaxExpanded:       cfg.PlanMaxExpanded,
	}
	w.finder = routing.Finder{State: state, Metrics: sink, MaxExpanded: cfg.RouteMaxExpanded}
	w.movement = movementruntime.NewSystem(state, w.finder, state)
	return w, nil
}

func (w *World) ID() string { return w.cfg.MapID }

func (w *World) TickRateHz() int { return w.cfg.TickRateHz }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// TickDuration is the simulated time one tick advances transports by.
func (w *World) TickDuration() time.Duration {
	return time.Second / time.Duration(w.cfg.TickRateHz)
}

func (w *World) Terrain() *store.HeightMap { return w.terrain }

// Buildings is the live state; only touch it from the loop goroutine or
// before Run starts.
func (w *World) Buildings() *buildings.State { return w.buildings }

func (w *World) Movement() *movementruntime.System { return w.movement }

func (w *World) Planner() planning.Planner { return w.planner }

func (w *World) Finder() routing.Finder { return w.finder }

func (w *World) AddObserver(o EventObserver) { w.observers = append(w.observers, o) }

func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }
