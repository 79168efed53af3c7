package gen

import "trainsim.ai/internal/sim/world/logic/mathx"

// River lowers a rectangle of vertices (inclusive bounds) below the water
// level.
type River struct {
	MinVX, MaxVX int
	MinVZ, MaxVZ int
}

func (r River) Contains(vx, vz int) bool {
	return vx >= r.MinVX && vx <= r.MaxVX && vz >= r.MinVZ && vz <= r.MaxVZ
}

// Params describes a deterministic height field. Sizes are in tiles; the
// field has (SizeX+1)*(SizeZ+1) vertices.
type Params struct {
	Seed  int64
	SizeX int
	SizeZ int

	BaseHeight    float64
	HillAmplitude float64
	HillGrid      int // vertices between noise lattice points

	WaterLevel float64
	RiverDepth float64
	Rivers     []River
}

// Reference is the 256x256 test map: rolling hills and one river running
// north to south that stops short of the southern edge.
func Reference() Params {
	return Params{
		Seed:          20240611,
		SizeX:         256,
		SizeZ:         256,
		BaseHeight:    2,
		HillAmplitude: 8,
		HillGrid:      16,
		WaterLevel:    0,
		RiverDepth:    1.5,
		Rivers:        []River{{MinVX: 120, MaxVX: 128, MinVZ: 0, MaxVZ: 236}},
	}
}

// HeightAt is the terrain height of vertex (vx, vz). Land never drops below
// BaseHeight, so only river vertices are under water.
func HeightAt(p Params, vx, vz int) float64 {
	for _, r := range p.Rivers {
		if r.Contains(vx, vz) {
			return p.WaterLevel - p.RiverDepth
		}
	}
	return p.BaseHeight + p.HillAmplitude*ValueNoise(p.Seed, vx, vz, p.HillGrid)
}

// ValueNoise is bilinearly interpolated lattice noise in [0, 1).
func ValueNoise(seed int64, x, z, grid int) float64 {
	if grid <= 0 {
		grid = 1
	}
	gx := mathx.FloorDiv(x, grid)
	gz := mathx.FloorDiv(z, grid)
	fx := float64(mathx.Mod(x, grid)) / float64(grid)
	fz := float64(mathx.Mod(z, grid)) / float64(grid)

	v00 := mathx.Unit(mathx.Hash2(seed, gx, gz))
	v10 := mathx.Unit(mathx.Hash2(seed, gx+1, gz))
	v01 := mathx.Unit(mathx.Hash2(seed, gx, gz+1))
	v11 := mathx.Unit(mathx.Hash2(seed, gx+1, gz+1))

	sx, sz := mathx.Smoothstep(fx), mathx.Smoothstep(fz)
	return mathx.Lerp(mathx.Lerp(v00, v10, sx), mathx.Lerp(v01, v11, sx), sz)
}
