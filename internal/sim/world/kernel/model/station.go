package model

import (
	"fmt"
	"sort"

	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

// Station is a rectangular block of parallel platform tracks. Origin is the
// north-west tile; Axis is North/South for NS platforms and East/West for EW.
type Station struct {
	ID        StationID          `json:"id"`
	Name      string             `json:"name"`
	Origin    tiles.TileCoordsXZ `json:"origin"`
	Axis      tiles.DirectionXZ  `json:"axis"`
	Length    int                `json:"length"`
	Platforms int                `json:"platforms"`
}

func (s Station) Validate() error {
	if !s.Axis.Valid() {
		return fmt.Errorf("station %s: invalid axis %d", s.Name, s.Axis)
	}
	if s.Length <= 0 || s.Platforms <= 0 {
		return fmt.Errorf("station %s: size %dx%d must be positive", s.Name, s.Length, s.Platforms)
	}
	return nil
}

// TrackType is the only shape allowed on the station's tiles.
func (s Station) TrackType() tracks.TrackType {
	if s.Axis == tiles.North || s.Axis == tiles.South {
		return tracks.NorthSouth
	}
	return tracks.EastWest
}

// Footprint lists the station's tiles in (X, Z) order.
func (s Station) Footprint() []tiles.TileCoordsXZ {
	sx, sz := s.Platforms, s.Length
	if s.TrackType() == tracks.EastWest {
		sx, sz = s.Length, s.Platforms
	}
	return rect(s.Origin, sx, sz)
}

func (s Station) Covers(t tiles.TileCoordsXZ) bool {
	sx, sz := s.Platforms, s.Length
	if s.TrackType() == tracks.EastWest {
		sx, sz = s.Length, s.Platforms
	}
	return inRect(s.Origin, sx, sz, t)
}

// ExitTileTracks are the platform tracks pointing out of the station at both
// ends of every platform, sorted. A transport standing on one has arrived.
func (s Station) ExitTileTracks() []tracks.TileTrack {
	tt := s.TrackType()
	var out []tracks.TileTrack
	for _, t := range s.Footprint() {
		for _, d := range tt.ConnectionsClockwise() {
			if !s.Covers(t.Add(d)) {
				out = append(out, tracks.NewTileTrack(t, tt, d))
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Industry occupies a rectangle on which no track may be laid.
type Industry struct {
	ID     IndustryID         `json:"id"`
	Kind   string             `json:"kind"`
	Origin tiles.TileCoordsXZ `json:"origin"`
	SizeX  int                `json:"size_x"`
	SizeZ  int                `json:"size_z"`
}

func (in Industry) Validate() error {
	if in.SizeX <= 0 || in.SizeZ <= 0 {
		return fmt.Errorf("industry %s: size %dx%d must be positive", in.Kind, in.SizeX, in.SizeZ)
	}
	return nil
}

func (in Industry) Footprint() []tiles.TileCoordsXZ {
	return rect(in.Origin, in.SizeX, in.SizeZ)
}

func rect(origin tiles.TileCoordsXZ, sx, sz int) []tiles.TileCoordsXZ {
	out := make([]tiles.TileCoordsXZ, 0, sx*sz)
	for x := 0; x < sx; x++ {
		for z := 0; z < sz; z++ {
			out = append(out, tiles.TileCoordsXZ{X: origin.X + x, Z: origin.Z + z})
		}
	}
	return out
}

func inRect(origin tiles.TileCoordsXZ, sx, sz int, t tiles.TileCoordsXZ) bool {
	return t.X >= origin.X && t.X < origin.X+sx && t.Z >= origin.Z && t.Z < origin.Z+sz
}
