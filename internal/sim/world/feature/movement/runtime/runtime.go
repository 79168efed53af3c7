package runtime

import (
	"errors"
	"fmt"
	"sort"

	paramspkg "trainsim.ai/internal/sim/world/feature/movement"
	modelpkg "trainsim.ai/internal/sim/world/kernel/model"
	logicmovement "trainsim.ai/internal/sim/world/logic/movement"
	"trainsim.ai/internal/sim/world/logic/routing"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

var (
	ErrUnknownTransport   = errors.New("unknown transport")
	ErrDuplicateTransport = errors.New("duplicate transport")
	ErrNoOrders           = errors.New("transport has no orders")
	ErrNotOwner           = errors.New("only the owner may do that")
)

// Transport is a train standing on, or moving along, one tile track.
// Progress is the fraction of Location already covered.
type Transport struct {
	ID       modelpkg.TransportID
	Owner    string
	Orders   *modelpkg.MovementOrders
	Location tracks.TileTrack
	Progress float64
	Speed    tracks.Speed

	route []tracks.TileTrack
	stuck bool
	// dwell is set on arrival and cleared once the transport leaves Location.
	dwell bool
}

// Route is the cached path from Location to the current destination.
func (t *Transport) Route() []tracks.TileTrack {
	out := make([]tracks.TileTrack, len(t.route))
	copy(out, t.route)
	return out
}

func (t *Transport) Stuck() bool { return t.stuck }

func (t *Transport) Position(h logicmovement.Heights) logicmovement.Vec3 {
	return logicmovement.PointOn(h, t.Location, t.Progress)
}

// StationLookup resolves an order's destination to the tracks that count as
// arriving there.
type StationLookup interface {
	StationExitTileTracks(id modelpkg.StationID) ([]tracks.TileTrack, error)
}

type RouteFinder interface {
	FindRoute(start tracks.TileTrack, targets []tracks.TileTrack) ([]tracks.TileTrack, error)
}

// System owns the transports and advances them each simulation step. Tracks
// is optional; when set, cached routes are dropped as soon as their next
// segment disappears.
type System struct {
	Stations StationLookup
	Routes   RouteFinder
	Tracks   routing.TrackState

	transports map[modelpkg.TransportID]*Transport
}

func NewSystem(stations StationLookup, routes RouteFinder, state routing.TrackState) *System {
	return &System{
		Stations:   stations,
		Routes:     routes,
		Tracks:     state,
		transports: map[modelpkg.TransportID]*Transport{},
	}
}

func (s *System) Add(t *Transport) error {
	if t == nil || t.Orders == nil || t.Orders.Len() == 0 {
		return ErrNoOrders
	}
	if !t.Location.Valid() {
		return fmt.Errorf("transport %s: invalid location %s", t.ID, t.Location)
	}
	if t.ID == (modelpkg.TransportID{}) {
		t.ID = modelpkg.NewTransportID()
	}
	if _, dup := s.transports[t.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTransport, t.ID)
	}
	t.Speed = paramspkg.ClampSpeed(t.Speed)
	s.transports[t.ID] = t
	return nil
}

func (s *System) Remove(id modelpkg.TransportID) bool {
	if _, ok := s.transports[id]; !ok {
		return false
	}
	delete(s.transports, id)
	return true
}

func (s *System) Get(id modelpkg.TransportID) (*Transport, bool) {
	t, ok := s.transports[id]
	return t, ok
}

// Sorted returns transports ordered by id so each step is deterministic.
func (s *System) Sorted() []*Transport {
	out := make([]*Transport, 0, len(s.transports))
	for _, t := range s.transports {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}
