package buildings

import (
	"fmt"

	snapv1 "trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/world/kernel/model"
	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

// Export fills the building sections of a snapshot.
func (s *State) Export(snap *snapv1.SnapshotV1) {
	snap.Tracks = snap.Tracks[:0]
	for _, t := range s.TrackTiles() {
		snap.Tracks = append(snap.Tracks, snapv1.TrackV1{X: t.X, Z: t.Z, Types: uint8(s.tracks[t])})
	}
	snap.Stations = snap.Stations[:0]
	for _, st := range s.Stations() {
		snap.Stations = append(snap.Stations, snapv1.StationV1{
			ID:        st.ID.String(),
			Name:      st.Name,
			Origin:    [2]int{st.Origin.X, st.Origin.Z},
			Axis:      uint8(st.Axis),
			Length:    st.Length,
			Platforms: st.Platforms,
		})
	}
	snap.Industries = snap.Industries[:0]
	for _, in := range s.Industries() {
		snap.Industries = append(snap.Industries, snapv1.IndustryV1{
			ID:     in.ID.String(),
			Kind:   in.Kind,
			Origin: [2]int{in.Origin.X, in.Origin.Z},
			SizeX:  in.SizeX,
			SizeZ:  in.SizeZ,
		})
	}
}

// Import rebuilds a state from a snapshot. Stations are placed before loose
// track so platform tiles are validated against their station.
func Import(terrain Terrain, snap snapv1.SnapshotV1) (*State, error) {
	s := NewState(terrain)
	for _, in := range snap.Industries {
		id, err := parseIndustryID(in.ID)
		if err != nil {
			return nil, err
		}
		if _, err := s.AddIndustry(model.Industry{
			ID:     id,
			Kind:   in.Kind,
			Origin: tiles.TileCoordsXZ{X: in.Origin[0], Z: in.Origin[1]},
			SizeX:  in.SizeX,
			SizeZ:  in.SizeZ,
		}); err != nil {
			return nil, fmt.Errorf("import industry %s: %w", in.ID, err)
		}
	}
	for _, st := range snap.Stations {
		id, err := model.ParseStationID(st.ID)
		if err != nil {
			return nil, fmt.Errorf("import station %q: %w", st.ID, err)
		}
		if _, err := s.AddStation(model.Station{
			ID:        id,
			Name:      st.Name,
			Origin:    tiles.TileCoordsXZ{X: st.Origin[0], Z: st.Origin[1]},
			Axis:      tiles.DirectionXZ(st.Axis),
			Length:    st.Length,
			Platforms: st.Platforms,
		}); err != nil {
			return nil, fmt.Errorf("import station %s: %w", st.ID, err)
		}
	}
	for _, tr := range snap.Tracks {
		tile := tiles.TileCoordsXZ{X: tr.X, Z: tr.Z}
		var segs []tracks.TileTrack
		for _, tt := range tracks.TrackTypeSet(tr.Types).Types() {
			segs = append(segs, tracks.NewTileTrack(tile, tt, tt.ConnectionsClockwise()[0]))
		}
		if err := s.BuildTracks(segs); err != nil {
			return nil, fmt.Errorf("import tracks at %s: %w", tile, err)
		}
	}
	return s, nil
}

func parseIndustryID(s string) (model.IndustryID, error) {
	var id model.IndustryID
	if err := id.UnmarshalText([]byte(s)); err != nil {
		return id, fmt.Errorf("import industry %q: %w", s, err)
	}
	return id, nil
}
