// Package mathx holds the integer and interpolation helpers shared by terrain
// generation and chunked height storage.
package mathx

// FloorDiv rounds toward negative infinity. b must be positive.
func FloorDiv(a, b int) int {
	q := a / b
	if a%b < 0 {
		q--
	}
	return q
}

// Mod is the non-negative remainder of a / b. b must be positive.
func Mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func splitmix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 mixes a seed and a lattice point into 64 well distributed bits.
func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	return splitmix(uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9))
}

// Unit maps a hash to [0, 1) using its top 53 bits.
func Unit(h uint64) float64 {
	return float64(h>>11) / float64(1<<53)
}

func Lerp(a, b, t float64) float64 { return a + (b-a)*t }

// Smoothstep eases t in [0, 1] with zero slope at both ends.
func Smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}
