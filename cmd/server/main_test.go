package main

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"trainsim.ai/internal/sim/catalogs"
	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/world"
)

// blockingSink holds the first search record until released, keeping a
// tick in progress.
type blockingSink struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSink) RecordPathfinding(time.Duration, *metrics.ResultStats) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
}

func (s *blockingSink) RecordPlanning(time.Duration, *metrics.ResultStats) {}

func TestRunWorld_WaitsForTickInProgress(t *testing.T) {
	l, err := catalogs.LoadLayout(filepath.Join("..", "..", "configs", "layouts", "ring.json"))
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	lw, err := l.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	w, err := world.New(world.WorldConfig{MapID: "ring", TickRateHz: 100}, lw.Terrain, lw.Buildings, sink)
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	if err := w.Movement().Add(lw.Transports[0]); err != nil {
		t.Fatalf("add transport: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	wait := runWorld(ctx, w, t.TempDir(), nil, log.New(io.Discard, "", 0))

	select {
	case <-sink.entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("world never searched a route")
	}
	cancel()

	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		t.Fatalf("wait returned while a tick was still recording metrics")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("wait did not return after the tick finished")
	}
}
