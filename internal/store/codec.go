package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vector blobs are little-endian IEEE-754 float32 arrays prefixed by a
// 4-byte dim, identical across drivers so data files are portable.

// EncodeVector serializes v into the on-disk blob format.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4+4*len(v))
	binary.LittleEndian.PutUint32(buf, uint32(len(v)))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector parses a blob produced by EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(b))
	}
	dim := binary.LittleEndian.Uint32(b)
	if uint32(len(b)-4) != dim*4 {
		return nil, fmt.Errorf("vector blob dim %d does not match %d payload bytes", dim, len(b)-4)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4+4*i:]))
	}
	return v, nil
}
