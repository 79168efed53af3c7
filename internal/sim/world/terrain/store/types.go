package store

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"trainsim.ai/internal/sim/world/logic/mathx"
	"trainsim.ai/internal/sim/world/logic/tiles"
	genpkg "trainsim.ai/internal/sim/world/terrain/gen"
)

// ChunkSize is the number of vertices along each side of a chunk.
const ChunkSize = 16

type ChunkKey struct {
	CX int
	CZ int
}

type Chunk struct {
	CX, CZ  int
	Heights []float32 // len = ChunkSize*ChunkSize, x fastest

	dirty bool
	hash  [32]byte
}

func newChunk(cx, cz int) *Chunk {
	return &Chunk{CX: cx, CZ: cz, Heights: make([]float32, ChunkSize*ChunkSize)}
}

func (c *Chunk) index(x, z int) int {
	return x + z*ChunkSize
}

func (c *Chunk) Get(x, z int) float32 {
	return c.Heights[c.index(x, z)]
}

func (c *Chunk) Set(x, z int, h float32) {
	i := c.index(x, z)
	if c.Heights[i] == h {
		return
	}
	c.Heights[i] = h
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [4]byte
		for _, v := range c.Heights {
			binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// HeightMap stores vertex heights for a SizeX by SizeZ tile grid in chunks.
// Vertices outside any stored chunk read as height 0.
type HeightMap struct {
	SizeX      int
	SizeZ      int
	WaterLevel float64
	Chunks     map[ChunkKey]*Chunk
}

func NewHeightMap(sizeX, sizeZ int, waterLevel float64) *HeightMap {
	return &HeightMap{
		SizeX:      sizeX,
		SizeZ:      sizeZ,
		WaterLevel: waterLevel,
		Chunks:     map[ChunkKey]*Chunk{},
	}
}

// Generate builds a fully populated map from gen parameters.
func Generate(p genpkg.Params) *HeightMap {
	m := NewHeightMap(p.SizeX, p.SizeZ, p.WaterLevel)
	for vz := 0; vz <= p.SizeZ; vz++ {
		for vx := 0; vx <= p.SizeX; vx++ {
			m.SetHeight(tiles.VertexCoordsXZ{X: vx, Z: vz}, genpkg.HeightAt(p, vx, vz))
		}
	}
	return m
}

// ReferenceMap is the generated 256x256 map used by scenario tests and the
// trackplan CLI.
func ReferenceMap() *HeightMap {
	return Generate(genpkg.Reference())
}

func chunkOf(v tiles.VertexCoordsXZ) (ChunkKey, int, int) {
	k := ChunkKey{CX: mathx.FloorDiv(v.X, ChunkSize), CZ: mathx.FloorDiv(v.Z, ChunkSize)}
	return k, mathx.Mod(v.X, ChunkSize), mathx.Mod(v.Z, ChunkSize)
}
