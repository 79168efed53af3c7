package routing

import (
	"errors"
	"fmt"
	"time"

	"github.com/zyedidia/generic/mapset"

	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

var (
	ErrNoRouteFound = errors.New("no route found")
	ErrSearchLimit  = errors.New("route search limit exceeded")
)

// TrackState answers which track types are built on a tile. It must not
// change while a search runs.
type TrackState interface {
	TrackTypesAt(tile tiles.TileCoordsXZ) tracks.TrackTypeSet
}

// Finder searches existing track only. The zero MaxExpanded means no limit.
type Finder struct {
	State       TrackState
	Metrics     metrics.Sink
	MaxExpanded int
}

func NewFinder(state TrackState, sink metrics.Sink) Finder {
	return Finder{State: state, Metrics: sink}
}

// FindRoute returns the shortest sequence of built tile tracks from start to
// any of targets, both ends included. Every call records one pathfinding
// metric.
func (f Finder) FindRoute(start tracks.TileTrack, targets []tracks.TileTrack) (route []tracks.TileTrack, err error) {
	began := time.Now()
	defer func() {
		var stats *metrics.ResultStats
		if err == nil {
			stats = metrics.StatsOf(route)
		}
		metrics.OrNoop(f.Metrics).RecordPathfinding(time.Since(began), stats)
	}()

	if len(targets) == 0 {
		return nil, tracks.ErrEmptyDestinationSet
	}
	if !start.Valid() {
		panic(fmt.Sprintf("invalid start tile track %s", start))
	}
	if f.State == nil || !f.State.TrackTypesAt(start.Tile).Contains(start.TrackType) {
		return nil, fmt.Errorf("%w: start %s is not built", ErrNoRouteFound, start)
	}
	return f.search(start, targets)
}

func (f Finder) search(start tracks.TileTrack, targets []tracks.TileTrack) ([]tracks.TileTrack, error) {
	goals := mapset.New[tracks.TileTrack]()
	for _, t := range targets {
		goals.Put(t)
	}
	if goals.Has(start) {
		return []tracks.TileTrack{start}, nil
	}

	visited := mapset.New[tracks.TileTrack]()
	visited.Put(start)
	parent := make(map[tracks.TileTrack]tracks.TileTrack, 256)

	// Slice FIFO with a fixed neighbour order keeps results identical across
	// runs.
	queue := make([]tracks.TileTrack, 0, 256)
	queue = append(queue, start)

	for head := 0; head < len(queue); head++ {
		if f.MaxExpanded > 0 && head >= f.MaxExpanded {
			return nil, ErrSearchLimit
		}
		cur := queue[head]
		for _, next := range f.successors(cur) {
			if visited.Has(next) {
				continue
			}
			visited.Put(next)
			parent[next] = cur
			if goals.Has(next) {
				return unwind(parent, start, next), nil
			}
			queue = append(queue, next)
		}
	}
	return nil, ErrNoRouteFound
}

func (f Finder) successors(cur tracks.TileTrack) []tracks.TileTrack {
	return Successors(f.State, cur)
}

// Successors lists built tile tracks reachable by crossing from cur into the
// neighbouring tile, in track type order.
func Successors(state TrackState, cur tracks.TileTrack) []tracks.TileTrack {
	edge := cur.Next()
	built := state.TrackTypesAt(edge.IntoTile)
	if built.IsEmpty() {
		return nil
	}
	out := make([]tracks.TileTrack, 0, 2)
	for _, tt := range built.Types() {
		if next, ok := edge.TileTrack(tt); ok {
			out = append(out, next)
		}
	}
	return out
}

func unwind(parent map[tracks.TileTrack]tracks.TileTrack, start, end tracks.TileTrack) []tracks.TileTrack {
	path := []tracks.TileTrack{end}
	for cur := end; cur != start; {
		cur = parent[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
