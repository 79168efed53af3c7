package planning

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/zyedidia/generic/heap"
	"github.com/zyedidia/generic/mapset"

	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

// DefaultAlreadyExistsCoef discounts track that is already built so plans
// prefer reusing it over laying a parallel line.
const DefaultAlreadyExistsCoef = 0.8

// costEpsilon is the tolerance for treating two plan costs as equal.
const costEpsilon = 1e-9

var (
	ErrNoPlanFound        = errors.New("no plan found")
	ErrSearchLimit        = errors.New("plan search limit exceeded")
	ErrInvalidCoefficient = errors.New("already-exists coefficient must be in (0, 1]")
)

// World is the read-only view the planner searches over.
type World interface {
	TrackTypesAt(tile tiles.TileCoordsXZ) tracks.TrackTypeSet
	// CanBuildTrack reports whether tt may occupy tile, either because it is
	// already there or because it could be laid.
	CanBuildTrack(tile tiles.TileCoordsXZ, tt tracks.TrackType) bool
}

// Plan is the construction command payload: segments in travel order from the
// start edge, and their summed geometric length.
type Plan struct {
	Segments []tracks.TileTrack `json:"segments"`
	Length   tracks.TrackLength `json:"length"`
}

// Reused counts the segments already present in w.
func (p Plan) Reused(w World) int {
	n := 0
	for _, s := range p.Segments {
		if w.TrackTypesAt(s.Tile).Contains(s.TrackType) {
			n++
		}
	}
	return n
}

// Planner searches buildable track. A zero AlreadyExistsCoef means
// DefaultAlreadyExistsCoef; a zero MaxExpanded means no limit.
type Planner struct {
	World             World
	Metrics           metrics.Sink
	AlreadyExistsCoef float64
	MaxExpanded       int
}

func NewPlanner(w World, sink metrics.Sink) Planner {
	return Planner{World: w, Metrics: sink, AlreadyExistsCoef: DefaultAlreadyExistsCoef}
}

func (p Planner) coef() (float64, error) {
	c := p.AlreadyExistsCoef
	if c == 0 {
		return DefaultAlreadyExistsCoef, nil
	}
	if math.IsNaN(c) || c < 0 || c > 1 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCoefficient, c)
	}
	return c, nil
}

// Plan finds the cheapest segment sequence joining start to one of targets.
// Among destinations of equal cost the smallest DirectionalEdge wins. Every
// call records one planning metric.
func (p Planner) Plan(start tracks.DirectionalEdge, targets []tracks.DirectionalEdge) (plan Plan, err error) {
	began := time.Now()
	defer func() {
		var stats *metrics.ResultStats
		if err == nil {
			stats = &metrics.ResultStats{Count: len(plan.Segments), Length: plan.Length}
		}
		metrics.OrNoop(p.Metrics).RecordPlanning(time.Since(began), stats)
	}()

	if len(targets) == 0 {
		return Plan{}, tracks.ErrEmptyDestinationSet
	}
	coef, err := p.coef()
	if err != nil {
		return Plan{}, err
	}
	if p.World == nil {
		return Plan{}, ErrNoPlanFound
	}
	s := newSearch(p.World, coef, targets)
	segments, err := s.run(start, p.MaxExpanded)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Segments: segments, Length: tracks.Sum(segments)}, nil
}

type item struct {
	edge tracks.DirectionalEdge
	g    float64
	f    float64
}

func lessItem(a, b item) bool {
	if a.f != b.f {
		return a.f < b.f
	}
	if a.edge != b.edge {
		return a.edge.Less(b.edge)
	}
	return a.g < b.g
}

type step struct {
	from    tracks.DirectionalEdge
	segment tracks.TileTrack
}

type search struct {
	world     World
	coef      float64
	goals     mapset.Set[tracks.DirectionalEdge]
	goalTiles []tiles.TileCoordsXZ
	minStep   float64

	best   map[tracks.DirectionalEdge]float64
	parent map[tracks.DirectionalEdge]step
	closed mapset.Set[tracks.DirectionalEdge]
	open   *heap.Heap[item]
}

func newSearch(w World, coef float64, targets []tracks.DirectionalEdge) *search {
	s := &search{
		world:   w,
		coef:    coef,
		goals:   mapset.New[tracks.DirectionalEdge](),
		minStep: coef * float64(tracks.CurveLength),
		best:    make(map[tracks.DirectionalEdge]float64, 1024),
		parent:  make(map[tracks.DirectionalEdge]step, 1024),
		closed:  mapset.New[tracks.DirectionalEdge](),
		open:    heap.New[item](lessItem),
	}
	seen := mapset.New[tiles.TileCoordsXZ]()
	for _, t := range targets {
		s.goals.Put(t)
		if !seen.Has(t.IntoTile) {
			seen.Put(t.IntoTile)
			s.goalTiles = append(s.goalTiles, t.IntoTile)
		}
	}
	return s
}

// heuristic never overestimates: each segment advances one tile and costs at
// least minStep.
func (s *search) heuristic(e tracks.DirectionalEdge) float64 {
	best := -1
	for _, t := range s.goalTiles {
		d := e.IntoTile.ManhattanDistance(t)
		if best < 0 || d < best {
			best = d
		}
	}
	return float64(best) * s.minStep
}

func (s *search) push(e tracks.DirectionalEdge, g float64) {
	s.best[e] = g
	s.open.Push(item{edge: e, g: g, f: g + s.heuristic(e)})
}

func (s *search) run(start tracks.DirectionalEdge, maxExpanded int) ([]tracks.TileTrack, error) {
	s.push(start, 0)

	var (
		found    []tracks.DirectionalEdge
		bestCost float64
		expanded int
	)
	for s.open.Size() > 0 {
		top, _ := s.open.Peek()
		if len(found) > 0 && top.f > bestCost+costEpsilon {
			break
		}
		cur, _ := s.open.Pop()
		if s.closed.Has(cur.edge) || cur.g > s.best[cur.edge]+costEpsilon {
			continue
		}
		s.closed.Put(cur.edge)

		if s.goals.Has(cur.edge) {
			if len(found) == 0 {
				bestCost = cur.g
			}
			if cur.g <= bestCost+costEpsilon {
				found = append(found, cur.edge)
			}
			continue
		}

		expanded++
		if maxExpanded > 0 && expanded > maxExpanded {
			return nil, ErrSearchLimit
		}
		s.expand(cur)
	}
	if len(found) == 0 {
		return nil, ErrNoPlanFound
	}

	goal := found[0]
	for _, e := range found[1:] {
		if e.Less(goal) {
			goal = e
		}
	}
	return s.unwind(start, goal), nil
}

func (s *search) expand(cur item) {
	tile := cur.edge.IntoTile
	built := s.world.TrackTypesAt(tile)
	for _, tt := range tracks.TypesConnecting(cur.edge.FromDirection) {
		if !s.world.CanBuildTrack(tile, tt) {
			continue
		}
		seg, _ := cur.edge.TileTrack(tt)
		cost := float64(tt.Length())
		if built.Contains(tt) {
			cost *= s.coef
		}
		next := seg.Next()
		if s.closed.Has(next) {
			continue
		}
		g := cur.g + cost
		if old, ok := s.best[next]; ok && g >= old-costEpsilon {
			continue
		}
		s.parent[next] = step{from: cur.edge, segment: seg}
		s.push(next, g)
	}
}

func (s *search) unwind(start, goal tracks.DirectionalEdge) []tracks.TileTrack {
	var out []tracks.TileTrack
	for cur := goal; cur != start; {
		st := s.parent[cur]
		out = append(out, st.segment)
		cur = st.from
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
