package buildings

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	snapv1 "trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/world/kernel/model"
	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

// lake is a 10x10 map with water on column x=5 for z<8.
type lake struct{}

func (lake) InBounds(t tiles.TileCoordsXZ) bool { return t.X >= 0 && t.X < 10 && t.Z >= 0 && t.Z < 10 }
func (lake) IsWater(t tiles.TileCoordsXZ) bool  { return t.X == 5 && t.Z < 8 }

func at(x, z int) tiles.TileCoordsXZ { return tiles.TileCoordsXZ{X: x, Z: z} }

func TestCanBuildTrack_TerrainAndBuildings(t *testing.T) {
	s := NewState(lake{})
	st, err := s.AddStation(model.Station{Name: "A", Origin: at(1, 1), Axis: tiles.East, Length: 3, Platforms: 1})
	if err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	if _, err := s.AddIndustry(model.Industry{Kind: "mine", Origin: at(7, 7), SizeX: 2, SizeZ: 2}); err != nil {
		t.Fatalf("AddIndustry: %v", err)
	}

	cases := []struct {
		name string
		tile tiles.TileCoordsXZ
		tt   tracks.TrackType
		want bool
	}{
		{"open land", at(0, 5), tracks.NorthSouth, true},
		{"out of bounds", at(-1, 0), tracks.EastWest, false},
		{"water", at(5, 3), tracks.EastWest, false},
		{"river end", at(5, 8), tracks.EastWest, true},
		{"station shape", at(2, 1), tracks.EastWest, true},
		{"station other shape", at(2, 1), tracks.NorthSouth, false},
		{"industry", at(8, 8), tracks.EastWest, false},
	}
	for _, c := range cases {
		if got := s.CanBuildTrack(c.tile, c.tt); got != c.want {
			t.Fatalf("%s: CanBuildTrack(%s,%s)=%v want %v", c.name, c.tile, c.tt, got, c.want)
		}
	}

	if !s.TrackTypesAt(at(3, 1)).Contains(tracks.EastWest) {
		t.Fatalf("station platform track not laid")
	}
	exits, err := s.StationExitTileTracks(st.ID)
	if err != nil || len(exits) != 2 {
		t.Fatalf("exits=%v err=%v", exits, err)
	}
	if !s.IsStationExit(st.ID, exits[0]) {
		t.Fatalf("IsStationExit false for %s", exits[0])
	}
	if _, err := s.StationExitTileTracks(model.NewStationID()); !errors.Is(err, ErrUnknownStation) {
		t.Fatalf("err=%v want ErrUnknownStation", err)
	}
}

func TestBuildTracks_AllOrNothing(t *testing.T) {
	s := NewState(lake{})
	segs := []tracks.TileTrack{
		tracks.NewTileTrack(at(3, 3), tracks.EastWest, tiles.East),
		tracks.NewTileTrack(at(4, 3), tracks.EastWest, tiles.East),
		tracks.NewTileTrack(at(5, 3), tracks.EastWest, tiles.East),
	}
	if err := s.BuildTracks(segs); !errors.Is(err, ErrCannotBuild) {
		t.Fatalf("err=%v want ErrCannotBuild", err)
	}
	if s.TrackCount() != 0 {
		t.Fatalf("partial build left %d segments", s.TrackCount())
	}
	if err := s.BuildTracks(segs[:2]); err != nil {
		t.Fatalf("BuildTracks: %v", err)
	}
	if err := s.BuildTracks(segs[:2]); err != nil {
		t.Fatalf("rebuilding existing track: %v", err)
	}
	if s.TrackCount() != 2 {
		t.Fatalf("track count=%d want 2", s.TrackCount())
	}
}

func TestAddStation_RejectsConflicts(t *testing.T) {
	s := NewState(lake{})
	if err := s.BuildTracks([]tracks.TileTrack{tracks.NewTileTrack(at(2, 2), tracks.NorthSouth, tiles.North)}); err != nil {
		t.Fatalf("BuildTracks: %v", err)
	}
	_, err := s.AddStation(model.Station{Name: "X", Origin: at(1, 2), Axis: tiles.East, Length: 3, Platforms: 1})
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("crossing track: err=%v want ErrOverlap", err)
	}
	_, err = s.AddStation(model.Station{Name: "W", Origin: at(4, 0), Axis: tiles.East, Length: 3, Platforms: 1})
	if !errors.Is(err, ErrCannotBuild) {
		t.Fatalf("water: err=%v want ErrCannotBuild", err)
	}
	_, err = s.AddStation(model.Station{Name: "Z", Origin: at(0, 0), Axis: tiles.East})
	if !errors.Is(err, ErrInvalidBuilding) {
		t.Fatalf("zero size: err=%v want ErrInvalidBuilding", err)
	}
	ok, err := s.AddStation(model.Station{Name: "S", Origin: at(2, 1), Axis: tiles.South, Length: 3, Platforms: 1})
	if err != nil {
		t.Fatalf("station over matching track: %v", err)
	}
	if _, err := s.AddStation(ok); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("err=%v want ErrDuplicateID", err)
	}
	if s.RemoveTrack(at(2, 2), tracks.NorthSouth) {
		t.Fatalf("platform track removed")
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	s := NewState(nil)
	if err := s.BuildTracks([]tracks.TileTrack{tracks.NewTileTrack(at(0, 0), tracks.EastWest, tiles.East)}); err != nil {
		t.Fatalf("BuildTracks: %v", err)
	}
	cp := s.Snapshot()
	if err := s.BuildTracks([]tracks.TileTrack{tracks.NewTileTrack(at(1, 0), tracks.EastWest, tiles.East)}); err != nil {
		t.Fatalf("BuildTracks: %v", err)
	}
	if cp.TrackCount() != 1 || s.TrackCount() != 2 {
		t.Fatalf("snapshot shares storage: copy=%d orig=%d", cp.TrackCount(), s.TrackCount())
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := NewState(lake{})
	st, err := s.AddStation(model.Station{Name: "A", Origin: at(1, 1), Axis: tiles.East, Length: 2, Platforms: 2})
	if err != nil {
		t.Fatalf("AddStation: %v", err)
	}
	if _, err := s.AddIndustry(model.Industry{Kind: "farm", Origin: at(7, 0), SizeX: 2, SizeZ: 1}); err != nil {
		t.Fatalf("AddIndustry: %v", err)
	}
	if err := s.BuildTracks([]tracks.TileTrack{
		tracks.NewTileTrack(at(3, 1), tracks.EastWest, tiles.East),
		tracks.NewTileTrack(at(4, 1), tracks.SouthWest, tiles.South),
		tracks.NewTileTrack(at(4, 1), tracks.EastWest, tiles.East),
	}); err != nil {
		t.Fatalf("BuildTracks: %v", err)
	}

	var snap snapv1.SnapshotV1
	snap.Header = snapv1.Header{Version: snapv1.Version, MapID: "lake"}
	s.Export(&snap)
	path := filepath.Join(t.TempDir(), "state.snap.zst")
	if err := snapv1.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	read, err := snapv1.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := Import(lake{}, read)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if diff := cmp.Diff(s.TrackTiles(), got.TrackTiles()); diff != "" {
		t.Fatalf("track tiles (-want +got):\n%s", diff)
	}
	for _, tile := range s.TrackTiles() {
		if s.TrackTypesAt(tile) != got.TrackTypesAt(tile) {
			t.Fatalf("tile %s types=%s want %s", tile, got.TrackTypesAt(tile), s.TrackTypesAt(tile))
		}
	}
	back, ok := got.FindStation(st.ID)
	if !ok || back != st {
		t.Fatalf("station=%+v ok=%v want %+v", back, ok, st)
	}
	if len(got.Industries()) != 1 {
		t.Fatalf("industries=%v", got.Industries())
	}
}
