package movement

import "trainsim.ai/internal/sim/world/logic/tracks"

const (
	DefaultSpeed tracks.Speed = 4  // tiles per second
	MaxSpeed     tracks.Speed = 64 // tiles per second
)

// ClampSpeed maps non-positive speeds to DefaultSpeed and caps at MaxSpeed.
func ClampSpeed(v tracks.Speed) tracks.Speed {
	if v <= 0 {
		return DefaultSpeed
	}
	if v > MaxSpeed {
		return MaxSpeed
	}
	return v
}
