package buildings

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/exp/slices"

	"trainsim.ai/internal/sim/world/kernel/model"
	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

var (
	ErrCannotBuild     = errors.New("cannot build here")
	ErrOverlap         = errors.New("building overlaps existing construction")
	ErrUnknownStation  = errors.New("unknown station")
	ErrDuplicateID     = errors.New("duplicate building id")
	ErrInvalidBuilding = errors.New("invalid building")
)

// Terrain is the map capability the state needs to decide buildability.
type Terrain interface {
	InBounds(tile tiles.TileCoordsXZ) bool
	IsWater(tile tiles.TileCoordsXZ) bool
}

// State holds built track, stations and industries. It is not safe for
// concurrent mutation; hand readers a Snapshot.
type State struct {
	terrain Terrain

	tracks     map[tiles.TileCoordsXZ]tracks.TrackTypeSet
	stations   map[model.StationID]model.Station
	stationAt  map[tiles.TileCoordsXZ]model.StationID
	industries map[model.IndustryID]model.Industry
	industryAt map[tiles.TileCoordsXZ]model.IndustryID
}

// NewState returns an empty state. A nil terrain means every tile is dry
// land with no bounds.
func NewState(terrain Terrain) *State {
	return &State{
		terrain:    terrain,
		tracks:     map[tiles.TileCoordsXZ]tracks.TrackTypeSet{},
		stations:   map[model.StationID]model.Station{},
		stationAt:  map[tiles.TileCoordsXZ]model.StationID{},
		industries: map[model.IndustryID]model.Industry{},
		industryAt: map[tiles.TileCoordsXZ]model.IndustryID{},
	}
}

func (s *State) Terrain() Terrain { return s.terrain }

func (s *State) TrackTypesAt(tile tiles.TileCoordsXZ) tracks.TrackTypeSet {
	return s.tracks[tile]
}

// TrackCount is the number of built segments.
func (s *State) TrackCount() int {
	n := 0
	for _, set := range s.tracks {
		n += set.Len()
	}
	return n
}

func (s *State) FindStation(id model.StationID) (model.Station, bool) {
	st, ok := s.stations[id]
	return st, ok
}

// Stations returns all stations ordered by id.
func (s *State) Stations() []model.Station {
	out := make([]model.Station, 0, len(s.stations))
	for _, st := range s.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (s *State) Industries() []model.Industry {
	out := make([]model.Industry, 0, len(s.industries))
	for _, in := range s.industries {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (s *State) StationAt(tile tiles.TileCoordsXZ) (model.Station, bool) {
	id, ok := s.stationAt[tile]
	if !ok {
		return model.Station{}, false
	}
	return s.stations[id], true
}

// StationExitTileTracks lists the tracks a transport must reach to have
// arrived at the station.
func (s *State) StationExitTileTracks(id model.StationID) ([]tracks.TileTrack, error) {
	st, ok := s.stations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStation, id)
	}
	return st.ExitTileTracks(), nil
}

func (s *State) landAvailable(tile tiles.TileCoordsXZ) bool {
	if s.terrain == nil {
		return true
	}
	return s.terrain.InBounds(tile) && !s.terrain.IsWater(tile)
}

// CanBuildTrack reports whether tt may occupy tile. Station tiles accept only
// the station's platform shape; industry tiles accept nothing.
func (s *State) CanBuildTrack(tile tiles.TileCoordsXZ, tt tracks.TrackType) bool {
	if !tt.Valid() || !s.landAvailable(tile) {
		return false
	}
	if _, ok := s.industryAt[tile]; ok {
		return false
	}
	if id, ok := s.stationAt[tile]; ok {
		return s.stations[id].TrackType() == tt
	}
	return true
}

// BuildTracks lays every segment or none. Segments already present are
// left as they are.
func (s *State) BuildTracks(segments []tracks.TileTrack) error {
	for i, seg := range segments {
		if !seg.Valid() {
			return fmt.Errorf("%w: segment %d %s is malformed", ErrCannotBuild, i, seg)
		}
		if !s.CanBuildTrack(seg.Tile, seg.TrackType) {
			return fmt.Errorf("%w: segment %d %s", ErrCannotBuild, i, seg)
		}
	}
	for _, seg := range segments {
		s.tracks[seg.Tile] = s.tracks[seg.Tile].Add(seg.TrackType)
	}
	return nil
}

// RemoveTrack deletes one segment. Platform track under a station stays.
func (s *State) RemoveTrack(tile tiles.TileCoordsXZ, tt tracks.TrackType) bool {
	if _, ok := s.stationAt[tile]; ok {
		return false
	}
	set := s.tracks[tile]
	if !set.Contains(tt) {
		return false
	}
	set = set.Remove(tt)
	if set.IsEmpty() {
		delete(s.tracks, tile)
	} else {
		s.tracks[tile] = set
	}
	return true
}

// AddStation places the station and lays its platform track. A zero id is
// replaced with a fresh one; the stored station is returned.
func (s *State) AddStation(st model.Station) (model.Station, error) {
	if err := st.Validate(); err != nil {
		return model.Station{}, fmt.Errorf("%w: %v", ErrInvalidBuilding, err)
	}
	if st.ID == (model.StationID{}) {
		st.ID = model.NewStationID()
	}
	if _, dup := s.stations[st.ID]; dup {
		return model.Station{}, fmt.Errorf("%w: station %s", ErrDuplicateID, st.ID)
	}
	tt := st.TrackType()
	foot := st.Footprint()
	for _, t := range foot {
		if !s.landAvailable(t) {
			return model.Station{}, fmt.Errorf("%w: station %s at %s", ErrCannotBuild, st.Name, t)
		}
		if err := s.occupied(t); err != nil {
			return model.Station{}, err
		}
		if other := s.tracks[t].Remove(tt); !other.IsEmpty() {
			return model.Station{}, fmt.Errorf("%w: track %s at %s", ErrOverlap, other, t)
		}
	}
	s.stations[st.ID] = st
	for _, t := range foot {
		s.stationAt[t] = st.ID
		s.tracks[t] = s.tracks[t].Add(tt)
	}
	return st, nil
}

func (s *State) AddIndustry(in model.Industry) (model.Industry, error) {
	if err := in.Validate(); err != nil {
		return model.Industry{}, fmt.Errorf("%w: %v", ErrInvalidBuilding, err)
	}
	if in.ID == (model.IndustryID{}) {
		in.ID = model.NewIndustryID()
	}
	if _, dup := s.industries[in.ID]; dup {
		return model.Industry{}, fmt.Errorf("%w: industry %s", ErrDuplicateID, in.ID)
	}
	foot := in.Footprint()
	for _, t := range foot {
		if !s.landAvailable(t) {
			return model.Industry{}, fmt.Errorf("%w: industry %s at %s", ErrCannotBuild, in.Kind, t)
		}
		if err := s.occupied(t); err != nil {
			return model.Industry{}, err
		}
		if !s.tracks[t].IsEmpty() {
			return model.Industry{}, fmt.Errorf("%w: track at %s", ErrOverlap, t)
		}
	}
	s.industries[in.ID] = in
	for _, t := range foot {
		s.industryAt[t] = in.ID
	}
	return in, nil
}

func (s *State) occupied(t tiles.TileCoordsXZ) error {
	if id, ok := s.stationAt[t]; ok {
		return fmt.Errorf("%w: station %s at %s", ErrOverlap, s.stations[id].Name, t)
	}
	if id, ok := s.industryAt[t]; ok {
		return fmt.Errorf("%w: industry %s at %s", ErrOverlap, s.industries[id].Kind, t)
	}
	return nil
}

// TrackTiles returns the tiles with track, ordered by (X, Z).
func (s *State) TrackTiles() []tiles.TileCoordsXZ {
	out := make([]tiles.TileCoordsXZ, 0, len(s.tracks))
	for t := range s.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Snapshot returns a deep copy sharing only the terrain.
func (s *State) Snapshot() *State {
	cp := NewState(s.terrain)
	for k, v := range s.tracks {
		cp.tracks[k] = v
	}
	for k, v := range s.stations {
		cp.stations[k] = v
	}
	for k, v := range s.stationAt {
		cp.stationAt[k] = v
	}
	for k, v := range s.industries {
		cp.industries[k] = v
	}
	for k, v := range s.industryAt {
		cp.industryAt[k] = v
	}
	return cp
}

// IsStationExit reports whether tt is one of the station's exit tracks.
func (s *State) IsStationExit(id model.StationID, tt tracks.TileTrack) bool {
	st, ok := s.stations[id]
	if !ok {
		return false
	}
	return slices.Contains(st.ExitTileTracks(), tt)
}
