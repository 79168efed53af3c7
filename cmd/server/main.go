package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	persistlog "trainsim.ai/internal/persistence/log"
	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/catalogs"
	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/tuning"
	"trainsim.ai/internal/sim/world"
	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
	"trainsim.ai/internal/sim/world/logic/tracks"
	"trainsim.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		mapID      = flag.String("map", "reference", "map id")
		configDir  = flag.String("configs", "./configs", "config directory")
		layoutPath = flag.String("layout", "", "layout json (default: <configs>/layouts/<map>.json)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		envFile    = flag.String("env", ".env", "dotenv file with TRAINSIM_* overrides (optional)")
		disableDB  = flag.Bool("disable_db", false, "disable the metrics/snapshot index")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Fatalf("load %s: %v", *envFile, err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}

	mapDir := filepath.Join(*dataDir, "maps", *mapID)
	_ = os.MkdirAll(mapDir, 0o755)

	idx, err := openRuntimeIndex(mapDir, *mapID, tune.Metrics, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	logDir := mapDir
	if tune.Metrics.LogDir != "" {
		logDir = tune.Metrics.LogDir
	}
	metricsLog := persistlog.NewMetricsLogger(logDir)
	eventLog := persistlog.NewEventLogger(logDir)
	defer metricsLog.Close()
	defer eventLog.Close()

	hub := ws.NewServer(*mapID, tune.TickRateHz, logger)

	sinks := metrics.Multi{metricsLog, hub}
	if idx != nil {
		sinks = append(sinks, idx)
	}

	cfg := world.ConfigFromTuning(*mapID, tune)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(mapDir)
	}

	var w *world.World
	var layoutRaw []byte
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.MapID != "" && snap.Header.MapID != *mapID {
			logger.Fatalf("snapshot map id mismatch: flag=%s snap=%s", *mapID, snap.Header.MapID)
		}
		w, err = world.NewFromSnapshot(cfg, snap, sinks)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d", filepath.Base(snapshotToLoad), w.CurrentTick())
	} else {
		lp := strings.TrimSpace(*layoutPath)
		if lp == "" {
			lp = filepath.Join(*configDir, "layouts", *mapID+".json")
		}
		layoutRaw, err = os.ReadFile(lp)
		if err != nil {
			logger.Fatalf("read layout: %v", err)
		}
		layout, err := catalogs.ParseLayout(layoutRaw)
		if err != nil {
			logger.Fatalf("layout %s: %v", lp, err)
		}
		lw, err := layout.Build()
		if err != nil {
			logger.Fatalf("build layout: %v", err)
		}
		w, err = world.New(cfg, lw.Terrain, lw.Buildings, sinks)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		for _, tr := range lw.Transports {
			if tr.Speed == 0 {
				tr.Speed = tracks.Speed(tune.DefaultSpeed)
			}
			if err := w.Movement().Add(tr); err != nil {
				logger.Fatalf("add transport: %v", err)
			}
		}
		logger.Printf("fresh map=%s layout=%s digest=%s stations=%d transports=%d",
			*mapID, filepath.Base(lp), layout.Digest[:12], len(lw.StationIDs), len(lw.Transports))
	}

	if idx != nil {
		if err := idx.UpsertConfig(tune, layoutRaw); err != nil {
			logger.Printf("index backend: upsert config: %v", err)
		}
	}

	w.AddObserver(hub)
	w.AddObserver(eventObserver{log: eventLog, logger: logger})

	ctx, cancel := signalContext()
	defer cancel()

	waitWorld := runWorld(ctx, w, mapDir, idx, logger)

	srv := &http.Server{
		Addr: *addr,
		Handler: buildMux(muxDeps{
			World:  w,
			Hub:    hub,
			Index:  idx,
			Admin:  envBool("TRAINSIM_ENABLE_ADMIN_HTTP", true),
			Pprof:  envBool("TRAINSIM_ENABLE_PPROF_HTTP", false),
			Logger: logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	waitWorld()
}

// runWorld starts the world loop and the snapshot writer. The returned func
// blocks until both have returned; sinks must stay open until then.
func runWorld(ctx context.Context, w *world.World, mapDir string, idx runtimeIndex, logger *log.Logger) (wait func()) {
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		writeSnapshots(ctx, mapDir, snapCh, idx, logger)
	}()
	go func() {
		defer wg.Done()
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()
	return wg.Wait
}

// eventObserver appends movement events to the hourly event log.
type eventObserver struct {
	log    *persistlog.EventLogger
	logger *log.Logger
}

func (o eventObserver) PublishEvents(tick uint64, events []movementruntime.Event) {
	if err := o.log.WriteEvents(tick, events); err != nil {
		o.logger.Printf("event log: %v", err)
	}
}

func writeSnapshots(ctx context.Context, mapDir string, ch <-chan snapshot.SnapshotV1, idx runtimeIndex, logger *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-ch:
			path := filepath.Join(mapDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("snapshot write: %v", err)
				continue
			}
			if idx != nil {
				idx.RecordSnapshot(path, snap)
			}
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(mapDir string) string {
	dir := filepath.Join(mapDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
