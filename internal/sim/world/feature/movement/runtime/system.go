package runtime

import (
	"fmt"
	"time"

	"golang.org/x/exp/slices"

	modelpkg "trainsim.ai/internal/sim/world/kernel/model"
	"trainsim.ai/internal/sim/world/logic/routing"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

type EventKind string

const (
	EventArrived EventKind = "ARRIVED"
	EventStuck   EventKind = "STUCK"
)

type Event struct {
	Transport modelpkg.TransportID   `json:"transport"`
	Kind      EventKind              `json:"kind"`
	Order     modelpkg.MovementOrder `json:"order"`
	Location  tracks.TileTrack       `json:"location"`
	Message   string                 `json:"message,omitempty"`
}

// Step advances every transport by dt. A force-stopped transport does not
// move or change orders. A transport that reaches the far end of one of its
// destination's exit tracks has arrived: the event carries the completed
// order and the sequence moves on. A transport still standing where it last
// arrived cannot arrive there again; it has to leave first.
func (s *System) Step(dt time.Duration) []Event {
	var events []Event
	for _, t := range s.Sorted() {
		if ev, ok := s.stepOne(t, dt); ok {
			events = append(events, ev)
		}
	}
	return events
}

func (s *System) stepOne(t *Transport, dt time.Duration) (Event, bool) {
	if t.Orders.IsStopped() {
		return Event{}, false
	}
	order := t.Orders.CurrentOrder()
	exits, err := s.Stations.StationExitTileTracks(order.Destination)
	if err != nil {
		return s.markStuck(t, order, err.Error())
	}
	if arrived(t, exits) {
		return s.arrive(t, order), true
	}

	if !s.routeUsable(t, exits) {
		route, err := s.findRoute(t, exits)
		if err != nil {
			return s.markStuck(t, order, err.Error())
		}
		t.route = route
	}
	t.stuck = false

	budget := float64(tracks.LengthOf(t.Speed, dt))
	for budget > 0 {
		l := float64(t.Location.TrackType.Length())
		remaining := (1 - t.Progress) * l
		if budget < remaining {
			t.Progress += budget / l
			break
		}
		budget -= remaining
		t.Progress = 1
		if len(t.route) <= 1 {
			break
		}
		t.route = t.route[1:]
		t.Location = t.route[0]
		t.Progress = 0
		t.dwell = false
	}

	if arrived(t, exits) {
		return s.arrive(t, order), true
	}
	return Event{}, false
}

func arrived(t *Transport, exits []tracks.TileTrack) bool {
	return !t.dwell && t.Progress >= 1 && slices.Contains(exits, t.Location)
}

func (s *System) arrive(t *Transport, order modelpkg.MovementOrder) Event {
	t.Orders.AdvanceToNextOrder()
	t.route = nil
	t.dwell = true
	return Event{Transport: t.ID, Kind: EventArrived, Order: order, Location: t.Location}
}

// findRoute routes to exits. A transport dwelling at the end of one of
// the exits is routed onward from the next tile, so a station it has just
// left is reached again by going round rather than by standing still.
func (s *System) findRoute(t *Transport, exits []tracks.TileTrack) ([]tracks.TileTrack, error) {
	if !t.dwell || t.Progress < 1 || !slices.Contains(exits, t.Location) {
		return s.Routes.FindRoute(t.Location, exits)
	}
	if s.Tracks == nil {
		return nil, routing.ErrNoRouteFound
	}
	var best []tracks.TileTrack
	var lastErr error
	for _, next := range routing.Successors(s.Tracks, t.Location) {
		route, err := s.Routes.FindRoute(next, exits)
		if err != nil {
			lastErr = err
			continue
		}
		if best == nil || len(route) < len(best) {
			best = route
		}
	}
	if best == nil {
		if lastErr == nil {
			lastErr = routing.ErrNoRouteFound
		}
		return nil, fmt.Errorf("leave %s: %w", t.Location, lastErr)
	}
	return append([]tracks.TileTrack{t.Location}, best...), nil
}

// markStuck reports only the transition into the stuck state.
func (s *System) markStuck(t *Transport, order modelpkg.MovementOrder, msg string) (Event, bool) {
	t.route = nil
	if t.stuck {
		return Event{}, false
	}
	t.stuck = true
	return Event{Transport: t.ID, Kind: EventStuck, Order: order, Location: t.Location, Message: msg}, true
}

func (s *System) routeUsable(t *Transport, exits []tracks.TileTrack) bool {
	if len(t.route) == 0 || t.route[0] != t.Location {
		return false
	}
	if !slices.Contains(exits, t.route[len(t.route)-1]) {
		return false
	}
	if s.Tracks != nil && len(t.route) > 1 {
		next := t.route[1]
		if !s.Tracks.TrackTypesAt(next.Tile).Contains(next.TrackType) {
			return false
		}
	}
	return true
}
