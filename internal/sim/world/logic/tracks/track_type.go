package tracks

import (
	"fmt"
	"math"

	"trainsim.ai/internal/sim/world/logic/tiles"
)

// TrackType is one legal rail geometry on a single tile. Each type connects
// exactly two tile sides. The declaration order is part of the search
// contract (ties resolve in this order), so append only.
type TrackType uint8

const (
	NorthEast TrackType = iota
	NorthSouth
	NorthWest
	EastWest
	SouthEast
	SouthWest

	trackTypeCount
)

// TrackTypes lists every track type in enumeration order.
var TrackTypes = [trackTypeCount]TrackType{NorthEast, NorthSouth, NorthWest, EastWest, SouthEast, SouthWest}

var connections = [trackTypeCount][2]tiles.DirectionXZ{
	NorthEast:  {tiles.North, tiles.East},
	NorthSouth: {tiles.North, tiles.South},
	NorthWest:  {tiles.West, tiles.North},
	EastWest:   {tiles.East, tiles.West},
	SouthEast:  {tiles.East, tiles.South},
	SouthWest:  {tiles.South, tiles.West},
}

const (
	// StraightLength is the length of a straight track across one tile.
	StraightLength TrackLength = 1
	// CurveLength is a quarter circle of radius 1/2 around the shared corner.
	CurveLength TrackLength = math.Pi / 4
)

func (tt TrackType) Valid() bool { return tt < trackTypeCount }

// ConnectionsClockwise returns the two sides the track joins.
func (tt TrackType) ConnectionsClockwise() [2]tiles.DirectionXZ {
	return connections[tt]
}

func (tt TrackType) Connects(d tiles.DirectionXZ) bool {
	c := connections[tt]
	return c[0] == d || c[1] == d
}

// OtherEnd returns the side opposite to d along the track. d must be one of
// the track's connections.
func (tt TrackType) OtherEnd(d tiles.DirectionXZ) tiles.DirectionXZ {
	c := connections[tt]
	switch d {
	case c[0]:
		return c[1]
	case c[1]:
		return c[0]
	}
	panic(fmt.Sprintf("track type %s does not connect %s", tt, d))
}

func (tt TrackType) IsCurve() bool {
	c := connections[tt]
	return c[0] != c[1].Reverse()
}

func (tt TrackType) Length() TrackLength {
	if tt.IsCurve() {
		return CurveLength
	}
	return StraightLength
}

// FromDirections returns the track type joining a and b, in either order.
func FromDirections(a, b tiles.DirectionXZ) (TrackType, bool) {
	for _, tt := range TrackTypes {
		c := connections[tt]
		if (c[0] == a && c[1] == b) || (c[0] == b && c[1] == a) {
			return tt, true
		}
	}
	return 0, false
}

// TypesConnecting lists the track types with an end at d, in enumeration order.
func TypesConnecting(d tiles.DirectionXZ) []TrackType {
	out := make([]TrackType, 0, 3)
	for _, tt := range TrackTypes {
		if tt.Connects(d) {
			out = append(out, tt)
		}
	}
	return out
}

var trackTypeNames = [trackTypeCount]string{
	NorthEast:  "NE",
	NorthSouth: "NS",
	NorthWest:  "NW",
	EastWest:   "EW",
	SouthEast:  "SE",
	SouthWest:  "SW",
}

func (tt TrackType) String() string {
	if !tt.Valid() {
		return fmt.Sprintf("TrackType(%d)", uint8(tt))
	}
	return trackTypeNames[tt]
}

func ParseTrackType(s string) (TrackType, error) {
	for i, name := range trackTypeNames {
		if name == s {
			return TrackType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown track type %q", s)
}
