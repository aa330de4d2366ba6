package store

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorCodecRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 0, 3.75}
	blob := EncodeVector(v)
	require.Len(t, blob, 4+4*len(v))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(blob))

	out, err := DecodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, v, out)
}

func TestVectorCodecEmpty(t *testing.T) {
	blob := EncodeVector(nil)
	out, err := DecodeVector(blob)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeVectorRejectsTruncatedBlob(t *testing.T) {
	blob := EncodeVector([]float32{1, 2, 3})
	_, err := DecodeVector(blob[:len(blob)-2])
	require.Error(t, err)

	_, err = DecodeVector([]byte{1})
	require.Error(t, err)
}
