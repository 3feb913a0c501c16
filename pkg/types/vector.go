// pkg/types/vector.go
package types

import (
	"encoding/binary"
	"errors"
	"math"
)

// Vector is a fixed-dimensional float32 vector. It carries no distance
// logic of its own: distance kinds (L2, inner-product, linear-custom)
// live in pkg/hnsw, which is the only place dimensionality and scoring
// are coupled together.
type Vector struct {
	data []float32
}

// NewVector creates a new vector from a float32 slice, copying it so the
// caller's backing array can't mutate the vector afterward.
func NewVector(data []float32) *Vector {
	copied := make([]float32, len(data))
	copy(copied, data)
	return &Vector{data: copied}
}

// Dimension returns the number of dimensions.
func (v *Vector) Dimension() int {
	return len(v.data)
}

// Data returns the underlying float32 slice. Callers must not mutate it
// unless they own the vector exclusively.
func (v *Vector) Data() []float32 {
	return v.data
}

// Equal reports whether two vectors hold byte-identical components.
func (v *Vector) Equal(other *Vector) bool {
	if len(v.data) != len(other.data) {
		return false
	}
	for i := range v.data {
		if v.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// ToBytes serializes the vector to a length-prefixed little-endian byte
// slice, for standalone persistence (e.g. CLI import/export). Inline
// storage inside an HNSW tuple record does not use this form: the
// dimension is already known from the index meta, so the tuple codec
// writes components directly with EncodeInto.
func (v *Vector) ToBytes() []byte {
	buf := make([]byte, 4+len(v.data)*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(v.data)))
	EncodeInto(buf[4:], v.data)
	return buf
}

// VectorFromBytes deserializes a vector produced by ToBytes.
func VectorFromBytes(data []byte) (*Vector, error) {
	if len(data) < 4 {
		return nil, errors.New("invalid vector data: too short")
	}
	dim := binary.LittleEndian.Uint32(data[0:4])
	if len(data) < 4+int(dim)*4 {
		return nil, errors.New("invalid vector data: incomplete")
	}
	vec := make([]float32, dim)
	DecodeInto(vec, data[4:4+int(dim)*4])
	return &Vector{data: vec}, nil
}

// EncodeInto writes len(src) float32 components into dst (little-endian,
// 4 bytes each). dst must have room for len(src)*4 bytes.
func EncodeInto(dst []byte, src []float32) {
	for i, val := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(val))
	}
}

// DecodeInto reads len(dst) float32 components out of src (little-endian,
// 4 bytes each). src must have at least len(dst)*4 bytes.
func DecodeInto(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}
