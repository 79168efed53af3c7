package tracks

import (
	"errors"
	"fmt"

	"trainsim.ai/internal/sim/world/logic/tiles"
)

// ErrEmptyDestinationSet is returned by the searches when the caller passes no
// acceptable destination. It is a caller contract violation, not "no route".
var ErrEmptyDestinationSet = errors.New("empty destination set")

// TileTrack is "standing on this tile, on this track, facing this way".
// PointingIn is always one of TrackType's connections; use NewTileTrack.
type TileTrack struct {
	Tile       tiles.TileCoordsXZ `json:"tile"`
	TrackType  TrackType          `json:"track_type"`
	PointingIn tiles.DirectionXZ  `json:"pointing_in"`
}

// NewTileTrack panics when pointingIn is not a connection of tt.
func NewTileTrack(tile tiles.TileCoordsXZ, tt TrackType, pointingIn tiles.DirectionXZ) TileTrack {
	if err := ValidateTileTrack(tile, tt, pointingIn); err != nil {
		panic(err.Error())
	}
	return TileTrack{Tile: tile, TrackType: tt, PointingIn: pointingIn}
}

func ValidateTileTrack(tile tiles.TileCoordsXZ, tt TrackType, pointingIn tiles.DirectionXZ) error {
	if !tt.Valid() || !pointingIn.Valid() || !tt.Connects(pointingIn) {
		return fmt.Errorf("invalid tile track: %s on %s cannot point %s", tt, tile, pointingIn)
	}
	return nil
}

func (t TileTrack) Valid() bool {
	return ValidateTileTrack(t.Tile, t.TrackType, t.PointingIn) == nil
}

// EnteredFrom is the side of the tile a transport on t came in through.
func (t TileTrack) EnteredFrom() tiles.DirectionXZ {
	return t.TrackType.OtherEnd(t.PointingIn)
}

// Next is the edge crossed when leaving the tile in PointingIn.
func (t TileTrack) Next() DirectionalEdge {
	return DirectionalEdge{
		IntoTile:      t.Tile.Add(t.PointingIn),
		FromDirection: t.PointingIn.Reverse(),
	}
}

// Reversed faces the other way on the same track.
func (t TileTrack) Reversed() TileTrack {
	return TileTrack{Tile: t.Tile, TrackType: t.TrackType, PointingIn: t.EnteredFrom()}
}

// Less orders by tile, then track type, then direction.
func (t TileTrack) Less(o TileTrack) bool {
	if t.Tile != o.Tile {
		return t.Tile.Less(o.Tile)
	}
	if t.TrackType != o.TrackType {
		return t.TrackType < o.TrackType
	}
	return t.PointingIn < o.PointingIn
}

func (t TileTrack) String() string {
	return fmt.Sprintf("%s/%s->%s", t.Tile, t.TrackType, t.PointingIn)
}

// DirectionalEdge is a tile and the side a route enters it from. It names
// route endpoints independently of the track that ends up on the tile.
type DirectionalEdge struct {
	IntoTile      tiles.TileCoordsXZ `json:"into_tile"`
	FromDirection tiles.DirectionXZ  `json:"from_direction"`
}

// TileTrack is tt laid on the into-tile, entered from FromDirection. ok is
// false when tt has no end on that side.
func (e DirectionalEdge) TileTrack(tt TrackType) (TileTrack, bool) {
	if !tt.Connects(e.FromDirection) {
		return TileTrack{}, false
	}
	return TileTrack{Tile: e.IntoTile, TrackType: tt, PointingIn: tt.OtherEnd(e.FromDirection)}, true
}

// Reverse is the same tile boundary crossed the other way.
func (e DirectionalEdge) Reverse() DirectionalEdge {
	return DirectionalEdge{
		IntoTile:      e.IntoTile.Add(e.FromDirection),
		FromDirection: e.FromDirection.Reverse(),
	}
}

func (e DirectionalEdge) Less(o DirectionalEdge) bool {
	if e.IntoTile != o.IntoTile {
		return e.IntoTile.Less(o.IntoTile)
	}
	return e.FromDirection < o.FromDirection
}

func (e DirectionalEdge) String() string {
	return fmt.Sprintf("%s<-%s", e.IntoTile, e.FromDirection)
}
