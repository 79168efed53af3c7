package catalogs

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"trainsim.ai/internal/sim/world/buildings"
	movementruntime "trainsim.ai/internal/sim/world/feature/movement/runtime"
	"trainsim.ai/internal/sim/world/kernel/model"
	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
	genpkg "trainsim.ai/internal/sim/world/terrain/gen"
	"trainsim.ai/internal/sim/world/terrain/store"
	"trainsim.ai/schemas"
)

var ErrInvalidLayout = errors.New("invalid layout")

// Layout is a hand-written world: terrain choice plus the buildings and
// transports to place on it.
type Layout struct {
	Version    int            `json:"version"`
	Name       string         `json:"name,omitempty"`
	Terrain    TerrainDef     `json:"terrain"`
	Stations   []StationDef   `json:"stations,omitempty"`
	Industries []IndustryDef  `json:"industries,omitempty"`
	Tracks     []TrackDef     `json:"tracks,omitempty"`
	Transports []TransportDef `json:"transports,omitempty"`

	// Digest is the sha256 of the raw layout bytes.
	Digest string `json:"-"`
}

type TerrainDef struct {
	Kind   string     `json:"kind"` // "reference" or "flat"
	SizeX  int        `json:"size_x,omitempty"`
	SizeZ  int        `json:"size_z,omitempty"`
	Height float64    `json:"height,omitempty"`
	Rivers []RiverDef `json:"rivers,omitempty"`
}

type RiverDef struct {
	MinVX int `json:"min_vx"`
	MaxVX int `json:"max_vx"`
	MinVZ int `json:"min_vz"`
	MaxVZ int `json:"max_vz"`
}

type StationDef struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Origin    [2]int `json:"origin"`
	Axis      string `json:"axis"`
	Length    int    `json:"length"`
	Platforms int    `json:"platforms,omitempty"`
}

type IndustryDef struct {
	Kind   string `json:"kind"`
	Origin [2]int `json:"origin"`
	Size   [2]int `json:"size"`
}

type TrackDef struct {
	Tile [2]int `json:"tile"`
	Type string `json:"type"`
}

type TransportDef struct {
	Owner    string     `json:"owner,omitempty"`
	Speed    float64    `json:"speed,omitempty"`
	Tile     [2]int     `json:"tile"`
	Type     string     `json:"type"`
	Pointing string     `json:"pointing"`
	Orders   []OrderDef `json:"orders"`
}

type OrderDef struct {
	Station string `json:"station"`
	Stop    bool   `json:"stop,omitempty"`
	Load    string `json:"load,omitempty"`
	Unload  string `json:"unload,omitempty"`
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func layoutSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemas.LayoutSchemaURL, bytes.NewReader(schemas.LayoutSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemas.LayoutSchemaURL)
	})
	return schema, schemaErr
}

func LoadLayout(path string) (*Layout, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseLayout(raw)
}

// ParseLayout validates raw against the layout schema before decoding it.
func ParseLayout(raw []byte) (*Layout, error) {
	s, err := layoutSchema()
	if err != nil {
		return nil, fmt.Errorf("layout schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	var l Layout
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	if l.Terrain.Kind == "flat" && (l.Terrain.SizeX <= 0 || l.Terrain.SizeZ <= 0) {
		return nil, fmt.Errorf("%w: flat terrain needs size_x and size_z", ErrInvalidLayout)
	}
	seen := map[string]bool{}
	for _, st := range l.Stations {
		if seen[st.Name] {
			return nil, fmt.Errorf("%w: duplicate station name %q", ErrInvalidLayout, st.Name)
		}
		seen[st.Name] = true
	}
	for i, tr := range l.Transports {
		for _, o := range tr.Orders {
			if !seen[o.Station] {
				return nil, fmt.Errorf("%w: transport %d orders unknown station %q", ErrInvalidLayout, i, o.Station)
			}
		}
	}
	l.Digest = sha256Hex(raw)
	return &l, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (l *Layout) BuildTerrain() *store.HeightMap {
	if l.Terrain.Kind == "reference" {
		return store.ReferenceMap()
	}
	p := genpkg.Params{
		SizeX:      l.Terrain.SizeX,
		SizeZ:      l.Terrain.SizeZ,
		BaseHeight: l.Terrain.Height,
		HillGrid:   16,
		WaterLevel: l.Terrain.Height - 1,
		RiverDepth: 1.5,
	}
	for _, r := range l.Terrain.Rivers {
		p.Rivers = append(p.Rivers, genpkg.River{MinVX: r.MinVX, MaxVX: r.MaxVX, MinVZ: r.MinVZ, MaxVZ: r.MaxVZ})
	}
	return store.Generate(p)
}

// World is a layout applied to fresh state. StationIDs maps layout station
// names to the ids they were stored under.
type World struct {
	Terrain    *store.HeightMap
	Buildings  *buildings.State
	StationIDs map[string]model.StationID
	Transports []*movementruntime.Transport
}

// Build generates the terrain, places every building and prepares (but does
// not register) the transports.
func (l *Layout) Build() (*World, error) {
	hm := l.BuildTerrain()
	state := buildings.NewState(hm)
	ids, err := l.Apply(state)
	if err != nil {
		return nil, err
	}
	trs, err := l.NewTransports(ids)
	if err != nil {
		return nil, err
	}
	return &World{Terrain: hm, Buildings: state, StationIDs: ids, Transports: trs}, nil
}

// Apply adds industries, then stations, then loose tracks.
func (l *Layout) Apply(state *buildings.State) (map[string]model.StationID, error) {
	for _, d := range l.Industries {
		in := model.Industry{
			Kind:   d.Kind,
			Origin: tileOf(d.Origin),
			SizeX:  d.Size[0],
			SizeZ:  d.Size[1],
		}
		if _, err := state.AddIndustry(in); err != nil {
			return nil, fmt.Errorf("industry %s: %w", d.Kind, err)
		}
	}

	ids := make(map[string]model.StationID, len(l.Stations))
	for _, d := range l.Stations {
		axis, err := tiles.ParseDirection(d.Axis)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", d.Name, err)
		}
		st := model.Station{
			Name:      d.Name,
			Origin:    tileOf(d.Origin),
			Axis:      axis,
			Length:    d.Length,
			Platforms: d.Platforms,
		}
		if st.Platforms == 0 {
			st.Platforms = 1
		}
		if d.ID != "" {
			if st.ID, err = model.ParseStationID(d.ID); err != nil {
				return nil, fmt.Errorf("station %s: %w", d.Name, err)
			}
		}
		st, err = state.AddStation(st)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", d.Name, err)
		}
		ids[d.Name] = st.ID
	}

	segs := make([]tracks.TileTrack, 0, len(l.Tracks))
	for _, d := range l.Tracks {
		tt, err := tracks.ParseTrackType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("track at %v: %w", d.Tile, err)
		}
		segs = append(segs, tracks.NewTileTrack(tileOf(d.Tile), tt, tt.ConnectionsClockwise()[0]))
	}
	if err := state.BuildTracks(segs); err != nil {
		return nil, fmt.Errorf("tracks: %w", err)
	}
	return ids, nil
}

func (l *Layout) NewTransports(stationIDs map[string]model.StationID) ([]*movementruntime.Transport, error) {
	out := make([]*movementruntime.Transport, 0, len(l.Transports))
	for i, d := range l.Transports {
		tt, err := tracks.ParseTrackType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("transport %d: %w", i, err)
		}
		dir, err := tiles.ParseDirection(d.Pointing)
		if err != nil {
			return nil, fmt.Errorf("transport %d: %w", i, err)
		}
		if err := tracks.ValidateTileTrack(tileOf(d.Tile), tt, dir); err != nil {
			return nil, fmt.Errorf("%w: transport %d: %v", ErrInvalidLayout, i, err)
		}
		orders := make([]model.MovementOrder, 0, len(d.Orders))
		for _, o := range d.Orders {
			id, ok := stationIDs[o.Station]
			if !ok {
				return nil, fmt.Errorf("%w: transport %d orders unknown station %q", ErrInvalidLayout, i, o.Station)
			}
			action, err := parseAction(o)
			if err != nil {
				return nil, fmt.Errorf("transport %d: %w", i, err)
			}
			orders = append(orders, model.MovementOrder{Destination: id, Action: action})
		}
		mo, err := model.RestoreMovementOrders(orders, 0, false)
		if err != nil {
			return nil, fmt.Errorf("transport %d: %w", i, err)
		}
		out = append(out, &movementruntime.Transport{
			Owner:    d.Owner,
			Orders:   mo,
			Location: tracks.NewTileTrack(tileOf(d.Tile), tt, dir),
			Speed:    tracks.Speed(d.Speed),
		})
	}
	return out, nil
}

func parseAction(o OrderDef) (model.OrderAction, error) {
	if !o.Stop {
		if o.Load != "" || o.Unload != "" {
			return model.OrderAction{}, fmt.Errorf("%w: load/unload on a pass-through order to %q", ErrInvalidLayout, o.Station)
		}
		return model.PassThrough(), nil
	}
	load, unload := model.NoLoad, model.NoUnload
	switch o.Load {
	case "", "NO_LOAD":
	case "LOAD_AVAILABLE":
		load = model.LoadAvailable
	case "LOAD_UNTIL_FULL":
		load = model.LoadUntilFull
	default:
		return model.OrderAction{}, fmt.Errorf("%w: load policy %q", ErrInvalidLayout, o.Load)
	}
	switch o.Unload {
	case "", "NO_UNLOAD":
	case "UNLOAD_AVAILABLE":
		unload = model.UnloadAvailable
	case "UNLOAD_UNTIL_EMPTY":
		unload = model.UnloadUntilEmpty
	default:
		return model.OrderAction{}, fmt.Errorf("%w: unload policy %q", ErrInvalidLayout, o.Unload)
	}
	return model.StopWith(load, unload), nil
}

// Export writes state back out as a layout on the given terrain. Stations
// keep their ids; track shapes already laid by a station are omitted.
func Export(terrain TerrainDef, state *buildings.State) *Layout {
	l := &Layout{Version: 1, Terrain: terrain}
	for _, in := range state.Industries() {
		l.Industries = append(l.Industries, IndustryDef{
			Kind:   in.Kind,
			Origin: [2]int{in.Origin.X, in.Origin.Z},
			Size:   [2]int{in.SizeX, in.SizeZ},
		})
	}
	for _, st := range state.Stations() {
		l.Stations = append(l.Stations, StationDef{
			ID:        st.ID.String(),
			Name:      st.Name,
			Origin:    [2]int{st.Origin.X, st.Origin.Z},
			Axis:      st.Axis.String(),
			Length:    st.Length,
			Platforms: st.Platforms,
		})
	}
	for _, t := range state.TrackTiles() {
		set := state.TrackTypesAt(t)
		if st, ok := state.StationAt(t); ok {
			set = set.Remove(st.TrackType())
		}
		for _, tt := range set.Types() {
			l.Tracks = append(l.Tracks, TrackDef{Tile: [2]int{t.X, t.Z}, Type: tt.String()})
		}
	}
	return l
}

func (l *Layout) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

func tileOf(v [2]int) tiles.TileCoordsXZ {
	return tiles.TileCoordsXZ{X: v[0], Z: v[1]}
}
