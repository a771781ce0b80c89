package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarintBoundaries(t *testing.T) {
	cases := []struct {
		name string
		n    uint64
		size int
	}{
		{"zero", 0, 1},
		{"one byte max", 0xFC, 1},
		{"three byte min", 0xFD, 3},
		{"three byte max", 0xFFFF, 3},
		{"five byte min", 0x10000, 5},
		{"five byte max", 0xFFFFFFFF, 5},
		{"nine byte min", 0x100000000, 9},
		{"nine byte max", 0xFFFFFFFFFFFFFFFF, 9},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			encoded := EncodeVarint(c.n)
			require.Len(t, encoded, c.size)

			decoded, next, err := DecodeVarint(encoded, 0)
			require.NoError(t, err)
			require.Equal(t, c.n, decoded)
			require.Equal(t, c.size, next)
		})
	}
}

func TestDecodeVarintInsufficientData(t *testing.T) {
	_, _, err := DecodeVarint([]byte{varint32Marker, 0x01}, 0)
	require.Error(t, err)

	_, _, err = DecodeVarint(nil, 0)
	require.Error(t, err)
}

func TestDecodeVarintAtOffset(t *testing.T) {
	buf := append([]byte{0xAA, 0xBB}, EncodeVarint(300)...)
	value, next, err := DecodeVarint(buf, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(300), value)
	require.Equal(t, len(buf), next)
}
