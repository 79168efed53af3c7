package tracks

import (
	"fmt"
	"time"
)

// TrackLength is a distance along track, in tiles. It is never negative.
type TrackLength float64

// Speed is a velocity in tiles per second.
type Speed float64

func NewTrackLength(tiles float64) TrackLength {
	if tiles < 0 {
		panic(fmt.Sprintf("negative track length %v", tiles))
	}
	return TrackLength(tiles)
}

func (l TrackLength) Add(o TrackLength) TrackLength { return l + o }

func (l TrackLength) Mul(f float64) TrackLength {
	if f < 0 {
		panic(fmt.Sprintf("negative track length scale %v", f))
	}
	return TrackLength(float64(l) * f)
}

func (l TrackLength) Tiles() float64 { return float64(l) }

// TravelTime is how long covering l takes at speed v. Zero or negative speed
// never arrives.
func (l TrackLength) TravelTime(v Speed) (time.Duration, bool) {
	if v <= 0 {
		return 0, l == 0
	}
	return time.Duration(float64(l) / float64(v) * float64(time.Second)), true
}

// LengthOf is the distance covered at speed v during d.
func LengthOf(v Speed, d time.Duration) TrackLength {
	if v <= 0 || d <= 0 {
		return 0
	}
	return TrackLength(float64(v) * d.Seconds())
}

// Sum returns the summed geometric length of a sequence of tile tracks.
func Sum(tts []TileTrack) TrackLength {
	var total TrackLength
	for _, tt := range tts {
		total = total.Add(tt.TrackType.Length())
	}
	return total
}

func (l TrackLength) String() string {
	return fmt.Sprintf("%.3f", float64(l))
}
