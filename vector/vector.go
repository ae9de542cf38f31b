package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// DefaultDimensions is the width of the all-mpnet-base-v2 / text-embedding-004 family.
const DefaultDimensions = 768

// ElementSize is the number of bytes used per element in an encoded blob.
const ElementSize = 8

var (
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrMalformedBlob     = errors.New("malformed embedding blob")
)

type Vector []float64

func (v Vector) Dim() int {
	return len(v)
}

// Norm returns the L2 norm of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}

	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. A zero vector is returned unchanged.
func (v Vector) Normalize() Vector {
	out := make(Vector, len(v))

	norm := v.Norm()
	if norm == 0 {
		copy(out, v)
		return out
	}

	for i, x := range v {
		out[i] = x / norm
	}

	return out
}

// Encode packs v as consecutive native-endian IEEE-754 doubles with no header.
func Encode(v Vector) []byte {
	blob := make([]byte, len(v)*ElementSize)
	for i, x := range v {
		binary.NativeEndian.PutUint64(blob[i*ElementSize:], math.Float64bits(x))
	}

	return blob
}

// Decode is the inverse of Encode.
func Decode(blob []byte) (Vector, error) {
	if len(blob)%ElementSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedBlob, len(blob), ElementSize)
	}

	v := make(Vector, len(blob)/ElementSize)
	for i := range v {
		v[i] = math.Float64frombits(binary.NativeEndian.Uint64(blob[i*ElementSize:]))
	}

	return v, nil
}

// DecodeDim decodes blob and checks that it holds exactly dim elements.
func DecodeDim(blob []byte, dim int) (Vector, error) {
	v, err := Decode(blob)
	if err != nil {
		return nil, err
	}

	if len(v) != dim {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dim, len(v))
	}

	return v, nil
}
