package tiles

import "fmt"

// DirectionXZ is a cardinal direction on the tile grid. North is -Z and East
// is +X. The declaration order is the fixed neighbour order used by every
// search, so do not reorder.
type DirectionXZ uint8

const (
	North DirectionXZ = iota
	East
	South
	West
)

// Directions lists all cardinal directions in enumeration order.
var Directions = [4]DirectionXZ{North, East, South, West}

func (d DirectionXZ) Reverse() DirectionXZ {
	return (d + 2) & 3
}

// Clockwise returns the direction a quarter turn clockwise (viewed from above).
func (d DirectionXZ) Clockwise() DirectionXZ {
	return (d + 1) & 3
}

func (d DirectionXZ) Delta() TileCoordsXZ {
	switch d {
	case North:
		return TileCoordsXZ{X: 0, Z: -1}
	case East:
		return TileCoordsXZ{X: 1, Z: 0}
	case South:
		return TileCoordsXZ{X: 0, Z: 1}
	default: // West
		return TileCoordsXZ{X: -1, Z: 0}
	}
}

func (d DirectionXZ) Valid() bool { return d <= West }

func (d DirectionXZ) String() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	}
	return fmt.Sprintf("DirectionXZ(%d)", uint8(d))
}

// ParseDirection accepts the short ("N") and long ("NORTH") spellings.
func ParseDirection(s string) (DirectionXZ, error) {
	switch s {
	case "N", "NORTH", "North", "north":
		return North, nil
	case "E", "EAST", "East", "east":
		return East, nil
	case "S", "SOUTH", "South", "south":
		return South, nil
	case "W", "WEST", "West", "west":
		return West, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// TileCoordsXZ addresses one cell of the terrain grid.
type TileCoordsXZ struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (t TileCoordsXZ) Add(d DirectionXZ) TileCoordsXZ {
	dd := d.Delta()
	return TileCoordsXZ{X: t.X + dd.X, Z: t.Z + dd.Z}
}

// Less orders by X, then Z.
func (t TileCoordsXZ) Less(o TileCoordsXZ) bool {
	if t.X != o.X {
		return t.X < o.X
	}
	return t.Z < o.Z
}

func (t TileCoordsXZ) ManhattanDistance(o TileCoordsXZ) int {
	return absInt(t.X-o.X) + absInt(t.Z-o.Z)
}

// DirectionTo returns the direction of an adjacent tile.
func (t TileCoordsXZ) DirectionTo(o TileCoordsXZ) (DirectionXZ, bool) {
	for _, d := range Directions {
		if t.Add(d) == o {
			return d, true
		}
	}
	return 0, false
}

// Vertex returns one of the four corners of the tile. Tile (x, z) owns the
// vertices (x..x+1, z..z+1).
func (t TileCoordsXZ) Vertex(northSouth, eastWest DirectionXZ) VertexCoordsXZ {
	v := VertexCoordsXZ{X: t.X, Z: t.Z}
	if eastWest == East {
		v.X++
	}
	if northSouth == South {
		v.Z++
	}
	return v
}

// EdgeVertices returns the two vertices on the tile side facing d, in
// clockwise order.
func (t TileCoordsXZ) EdgeVertices(d DirectionXZ) [2]VertexCoordsXZ {
	switch d {
	case North:
		return [2]VertexCoordsXZ{t.Vertex(North, West), t.Vertex(North, East)}
	case East:
		return [2]VertexCoordsXZ{t.Vertex(North, East), t.Vertex(South, East)}
	case South:
		return [2]VertexCoordsXZ{t.Vertex(South, East), t.Vertex(South, West)}
	default:
		return [2]VertexCoordsXZ{t.Vertex(South, West), t.Vertex(North, West)}
	}
}

func (t TileCoordsXZ) String() string {
	return fmt.Sprintf("(%d,%d)", t.X, t.Z)
}

// VertexCoordsXZ addresses a grid corner.
type VertexCoordsXZ struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
