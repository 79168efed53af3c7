package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"trainsim.ai/internal/persistence/indexdb"
	persistlog "trainsim.ai/internal/persistence/log"
	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/catalogs"
	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/tuning"
	"trainsim.ai/internal/sim/world"
	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

type source struct {
	layoutPath string
	snapPath   string
	tuningPath string
	metricsDir string
}

func (s *source) bind(fs *flag.FlagSet) {
	fs.StringVar(&s.layoutPath, "layout", envOr("TRAINSIM_LAYOUT", "./configs/layouts/reference.json"), "layout json to start from")
	fs.StringVar(&s.snapPath, "snapshot", "", "snapshot to start from (wins over -layout)")
	fs.StringVar(&s.tuningPath, "tuning", envOr("TRAINSIM_TUNING", "./configs/tuning.yaml"), "tuning.yaml")
	fs.StringVar(&s.metricsDir, "metrics_dir", "", "append search metrics under this dir (default: tuning metrics.log_dir)")
}

// session is a world opened for one CLI run plus the sinks its searches
// report to.
type session struct {
	W       *world.World
	Terrain catalogs.TerrainDef
	Tune    tuning.Tuning
	Mem     *metrics.Memory

	closers []io.Closer
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

func open(src source, logger *log.Logger) (*session, error) {
	tune, err := tuning.Load(src.tuningPath)
	if err != nil {
		return nil, err
	}
	s := &session{Tune: tune, Mem: metrics.NewMemory()}
	sinks := metrics.Multi{s.Mem}

	logDir := src.metricsDir
	if logDir == "" {
		logDir = tune.Metrics.LogDir
	}
	if logDir != "" {
		ml := persistlog.NewMetricsLogger(logDir)
		sinks = append(sinks, ml)
		s.closers = append(s.closers, ml)
	}
	if tune.Metrics.SQLitePath != "" {
		idx, err := indexdb.OpenSQLite(tune.Metrics.SQLitePath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open index: %w", err)
		}
		sinks = append(sinks, idx)
		s.closers = append(s.closers, idx)
	}
	if tune.Metrics.D1Endpoint != "" {
		d1, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint: tune.Metrics.D1Endpoint,
			Token:    os.Getenv("TRAINSIM_INDEX_D1_TOKEN"),
			MapID:    "trackplan",
			Logger:   logger,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open d1: %w", err)
		}
		sinks = append(sinks, d1)
		s.closers = append(s.closers, d1)
	}

	if src.snapPath != "" {
		snap, err := snapshot.ReadSnapshot(src.snapPath)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.W, err = world.NewFromSnapshot(world.ConfigFromTuning(snap.Header.MapID, tune), snap, sinks)
		if err != nil {
			s.Close()
			return nil, err
		}
		logger.Printf("loaded snapshot map=%s tick=%d", snap.Header.MapID, snap.Header.Tick)
		return s, nil
	}

	l, err := catalogs.LoadLayout(src.layoutPath)
	if err != nil {
		s.Close()
		return nil, err
	}
	lw, err := l.Build()
	if err != nil {
		s.Close()
		return nil, err
	}
	name := l.Name
	if name == "" {
		name = "layout"
	}
	s.W, err = world.New(world.ConfigFromTuning(name, tune), lw.Terrain, lw.Buildings, sinks)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Terrain = l.Terrain
	logger.Printf("loaded layout %s (%dx%d, %d tracks)", name, lw.Terrain.SizeX, lw.Terrain.SizeZ, lw.Buildings.TrackCount())
	return s, nil
}

type planOutput struct {
	Segments  int     `json:"segments"`
	Length    float64 `json:"length"`
	Reused    int     `json:"reused"`
	Built     bool    `json:"built"`
	ElapsedMS float64 `json:"elapsed_ms"`
	First     string  `json:"first"`
	Last      string  `json:"last"`
}

func planCmd(args []string, logger *log.Logger) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	var src source
	src.bind(fs)
	from := fs.String("from", "", "start edge x,z,DIR (the direction the plan enters the tile from)")
	to := fs.String("to", "", "target edges x,z,DIR separated by ';'")
	apply := fs.Bool("apply", false, "lay the planned track")
	out := fs.String("out", "", "write a snapshot after planning")
	export := fs.String("export", "", "write the resulting layout json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	start, err := parseEdge(*from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	targets, err := parseList(*to, parseEdge)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}

	s, err := open(src, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := runPlan(s.W, start, targets, !*apply)
	if err != nil {
		return err
	}
	if err := printJSON(os.Stdout, res); err != nil {
		return err
	}

	if *out != "" {
		if err := snapshot.WriteSnapshot(*out, s.W.ExportSnapshot(s.W.CurrentTick())); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		logger.Printf("wrote %s", *out)
	}
	if *export != "" {
		if s.Terrain.Kind == "" {
			return fmt.Errorf("-export needs a layout source, snapshots do not record how terrain was made")
		}
		b, err := catalogs.Export(s.Terrain, s.W.Buildings()).MarshalIndent()
		if err != nil {
			return err
		}
		if err := os.WriteFile(*export, b, 0o644); err != nil {
			return err
		}
		logger.Printf("wrote %s", *export)
	}
	return nil
}

// runPlan issues one build command through the world's tick.
func runPlan(w *world.World, start tracks.DirectionalEdge, targets []tracks.DirectionalEdge, dryRun bool) (planOutput, error) {
	resp := make(chan world.BuildResult, 1)
	began := time.Now()
	w.StepOnce(world.Commands{Builds: []world.BuildRequest{{Start: start, Targets: targets, DryRun: dryRun, Resp: resp}}})
	r := <-resp
	if r.Err != nil {
		return planOutput{}, r.Err
	}
	segs := r.Plan.Segments
	out := planOutput{
		Segments:  len(segs),
		Length:    r.Plan.Length.Tiles(),
		Reused:    r.Reused,
		Built:     r.Built,
		ElapsedMS: float64(time.Since(began).Microseconds()) / 1000,
	}
	if len(segs) > 0 {
		out.First, out.Last = segs[0].String(), segs[len(segs)-1].String()
	}
	return out, nil
}

type routeOutput struct {
	Hops   int      `json:"hops"`
	Length float64  `json:"length"`
	Tracks []string `json:"tracks,omitempty"`
}

func routeCmd(args []string, logger *log.Logger) error {
	fs := flag.NewFlagSet("route", flag.ContinueOnError)
	var src source
	src.bind(fs)
	from := fs.String("from", "", "start tile track x,z,TYPE,DIR")
	to := fs.String("to", "", "target tile tracks x,z,TYPE,DIR separated by ';'")
	verbose := fs.Bool("v", false, "print every tile track")
	if err := fs.Parse(args); err != nil {
		return err
	}
	start, err := parseTileTrack(*from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	targets, err := parseList(*to, parseTileTrack)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}

	s, err := open(src, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	route, err := s.W.Finder().FindRoute(start, targets)
	if err != nil {
		return err
	}
	res := routeOutput{Hops: len(route), Length: tracks.Sum(route).Tiles()}
	if *verbose {
		for _, tt := range route {
			res.Tracks = append(res.Tracks, tt.String())
		}
	}
	return printJSON(os.Stdout, res)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseList[T any](s string, parse func(string) (T, error)) ([]T, error) {
	var out []T
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseTile(x, z string) (tiles.TileCoordsXZ, error) {
	xi, err := strconv.Atoi(strings.TrimSpace(x))
	if err != nil {
		return tiles.TileCoordsXZ{}, fmt.Errorf("bad x %q", x)
	}
	zi, err := strconv.Atoi(strings.TrimSpace(z))
	if err != nil {
		return tiles.TileCoordsXZ{}, fmt.Errorf("bad z %q", z)
	}
	return tiles.TileCoordsXZ{X: xi, Z: zi}, nil
}

// parseEdge reads "x,z,DIR".
func parseEdge(s string) (tracks.DirectionalEdge, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return tracks.DirectionalEdge{}, fmt.Errorf("edge %q: want x,z,DIR", s)
	}
	t, err := parseTile(parts[0], parts[1])
	if err != nil {
		return tracks.DirectionalEdge{}, err
	}
	d, err := tiles.ParseDirection(strings.TrimSpace(parts[2]))
	if err != nil {
		return tracks.DirectionalEdge{}, err
	}
	return tracks.DirectionalEdge{IntoTile: t, FromDirection: d}, nil
}

// parseTileTrack reads "x,z,TYPE,DIR".
func parseTileTrack(s string) (tracks.TileTrack, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return tracks.TileTrack{}, fmt.Errorf("tile track %q: want x,z,TYPE,DIR", s)
	}
	t, err := parseTile(parts[0], parts[1])
	if err != nil {
		return tracks.TileTrack{}, err
	}
	tt, err := tracks.ParseTrackType(strings.TrimSpace(parts[2]))
	if err != nil {
		return tracks.TileTrack{}, err
	}
	d, err := tiles.ParseDirection(strings.TrimSpace(parts[3]))
	if err != nil {
		return tracks.TileTrack{}, err
	}
	if err := tracks.ValidateTileTrack(t, tt, d); err != nil {
		return tracks.TileTrack{}, err
	}
	return tracks.TileTrack{Tile: t, TrackType: tt, PointingIn: d}, nil
}
