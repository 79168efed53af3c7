package runtime

import (
	"fmt"

	snapv1 "trainsim.ai/internal/persistence/snapshot"
	modelpkg "trainsim.ai/internal/sim/world/kernel/model"
	"trainsim.ai/internal/sim/world/logic/tiles"
	"trainsim.ai/internal/sim/world/logic/tracks"
)

// Export writes transports in id order. Cached routes are not persisted.
func (s *System) Export(snap *snapv1.SnapshotV1) {
	snap.Transports = snap.Transports[:0]
	for _, t := range s.Sorted() {
		orders := t.Orders.Orders()
		ov := make([]snapv1.OrderV1, 0, len(orders))
		for _, o := range orders {
			ov = append(ov, snapv1.OrderV1{
				Destination: o.Destination.String(),
				Stop:        o.Action.Stop,
				Load:        uint8(o.Action.Load),
				Unload:      uint8(o.Action.Unload),
			})
		}
		snap.Transports = append(snap.Transports, snapv1.TransportV1{
			ID:           t.ID.String(),
			Owner:        t.Owner,
			Speed:        float64(t.Speed),
			Tile:         [2]int{t.Location.Tile.X, t.Location.Tile.Z},
			TrackType:    uint8(t.Location.TrackType),
			PointingIn:   uint8(t.Location.PointingIn),
			Progress:     t.Progress,
			Orders:       ov,
			CurrentOrder: t.Orders.CurrentIndex(),
			ForceStop:    t.Orders.IsStopped(),
			Dwell:        t.dwell,
		})
	}
}

// Import adds the snapshot's transports to s.
func (s *System) Import(snap snapv1.SnapshotV1) error {
	for _, tv := range snap.Transports {
		var id modelpkg.TransportID
		if err := id.UnmarshalText([]byte(tv.ID)); err != nil {
			return fmt.Errorf("import transport %q: %w", tv.ID, err)
		}
		orders := make([]modelpkg.MovementOrder, 0, len(tv.Orders))
		for _, o := range tv.Orders {
			dest, err := modelpkg.ParseStationID(o.Destination)
			if err != nil {
				return fmt.Errorf("import transport %s order: %w", tv.ID, err)
			}
			action := modelpkg.PassThrough()
			if o.Stop {
				action = modelpkg.StopWith(modelpkg.LoadPolicy(o.Load), modelpkg.UnloadPolicy(o.Unload))
			}
			orders = append(orders, modelpkg.MovementOrder{Destination: dest, Action: action})
		}
		mo, err := modelpkg.RestoreMovementOrders(orders, tv.CurrentOrder, tv.ForceStop)
		if err != nil {
			return fmt.Errorf("import transport %s: %w", tv.ID, err)
		}
		tile := tiles.TileCoordsXZ{X: tv.Tile[0], Z: tv.Tile[1]}
		if err := tracks.ValidateTileTrack(tile, tracks.TrackType(tv.TrackType), tiles.DirectionXZ(tv.PointingIn)); err != nil {
			return fmt.Errorf("import transport %s: %w", tv.ID, err)
		}
		t := &Transport{
			ID:       id,
			Owner:    tv.Owner,
			Orders:   mo,
			Location: tracks.NewTileTrack(tile, tracks.TrackType(tv.TrackType), tiles.DirectionXZ(tv.PointingIn)),
			Progress: tv.Progress,
			Speed:    tracks.Speed(tv.Speed),
			dwell:    tv.Dwell,
		}
		if err := s.Add(t); err != nil {
			return fmt.Errorf("import transport %s: %w", tv.ID, err)
		}
	}
	return nil
}
