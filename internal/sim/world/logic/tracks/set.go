package tracks

import "strings"

// TrackTypeSet is the set of track types present on one tile.
type TrackTypeSet uint8

func SetOf(types ...TrackType) TrackTypeSet {
	var s TrackTypeSet
	for _, tt := range types {
		s = s.Add(tt)
	}
	return s
}

func (s TrackTypeSet) Contains(tt TrackType) bool {
	return tt.Valid() && s&(1<<tt) != 0
}

func (s TrackTypeSet) Add(tt TrackType) TrackTypeSet {
	if !tt.Valid() {
		return s
	}
	return s | 1<<tt
}

func (s TrackTypeSet) Remove(tt TrackType) TrackTypeSet {
	if !tt.Valid() {
		return s
	}
	return s &^ (1 << tt)
}

func (s TrackTypeSet) Union(o TrackTypeSet) TrackTypeSet { return s | o }

func (s TrackTypeSet) IsEmpty() bool { return s == 0 }

func (s TrackTypeSet) Len() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Types returns the members in enumeration order.
func (s TrackTypeSet) Types() []TrackType {
	out := make([]TrackType, 0, s.Len())
	for _, tt := range TrackTypes {
		if s.Contains(tt) {
			out = append(out, tt)
		}
	}
	return out
}

func (s TrackTypeSet) String() string {
	parts := make([]string, 0, s.Len())
	for _, tt := range s.Types() {
		parts = append(parts, tt.String())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
