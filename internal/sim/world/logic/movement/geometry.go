package movement

import (
	"math"

	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

// Vec3 is a world-space point. X and Z are in tiles, Y is terrain height.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v Vec3) LengthXZ() float64 { return math.Hypot(v.X, v.Z) }

// Heights reads vertex heights.
type Heights interface {
	HeightAt(v tiles.VertexCoordsXZ) float64
}

// EdgeMidpoint is the centre of the tile side facing d, at the mean height of
// its two vertices. A nil h gives height 0.
func EdgeMidpoint(h Heights, t tiles.TileCoordsXZ, d tiles.DirectionXZ) Vec3 {
	vs := t.EdgeVertices(d)
	p := Vec3{
		X: float64(vs[0].X+vs[1].X) / 2,
		Z: float64(vs[0].Z+vs[1].Z) / 2,
	}
	if h != nil {
		p.Y = (h.HeightAt(vs[0]) + h.HeightAt(vs[1])) / 2
	}
	return p
}

// PointOn locates a point progress ∈ [0, 1] of the way along tt, measured from
// the side it is entered from. Straights are line segments between edge
// midpoints; curves are quarter arcs of radius 1/2 around the shared corner.
// Height is interpolated linearly between the two edge midpoints.
func PointOn(h Heights, tt tracks.TileTrack, progress float64) Vec3 {
	progress = clamp01(progress)
	from := tt.EnteredFrom()
	to := tt.PointingIn
	a := EdgeMidpoint(h, tt.Tile, from)
	b := EdgeMidpoint(h, tt.Tile, to)
	y := a.Y + (b.Y-a.Y)*progress

	if !tt.TrackType.IsCurve() {
		return Vec3{X: a.X + (b.X-a.X)*progress, Y: y, Z: a.Z + (b.Z-a.Z)*progress}
	}

	c := corner(tt.Tile, from, to)
	a0 := math.Atan2(a.Z-c.Z, a.X-c.X)
	a1 := math.Atan2(b.Z-c.Z, b.X-c.X)
	sweep := a1 - a0
	if sweep > math.Pi {
		sweep -= 2 * math.Pi
	} else if sweep < -math.Pi {
		sweep += 2 * math.Pi
	}
	ang := a0 + sweep*progress
	return Vec3{X: c.X + 0.5*math.Cos(ang), Y: y, Z: c.Z + 0.5*math.Sin(ang)}
}

// corner is the vertex shared by two perpendicular tile sides.
func corner(t tiles.TileCoordsXZ, a, b tiles.DirectionXZ) Vec3 {
	ns, ew := a, b
	if ns == tiles.East || ns == tiles.West {
		ns, ew = b, a
	}
	v := t.Vertex(ns, ew)
	return Vec3{X: float64(v.X), Z: float64(v.Z)}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
