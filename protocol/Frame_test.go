package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	payload := []byte("hello peer")
	encoded := EncodeFrame(MagicMainnet, CmdVersion, payload)

	frame, next, err := DecodeFrame(encoded, 0, MagicMainnet)
	require.NoError(t, err)
	require.Equal(t, CmdVersion, frame.Command)
	require.Equal(t, payload, frame.Payload)
	require.Equal(t, len(encoded), next)
}

func TestEncodeVerackExactBytes(t *testing.T) {
	// An empty-payload verack frame on mainnet is fully determined: magic,
	// zero-padded command, zero length, and the checksum of an empty payload.
	encoded := EncodeFrame(MagicMainnet, CmdVerack, nil)
	require.Len(t, encoded, HeaderSize)

	require.Equal(t, byte(0xF9), encoded[0])
	require.Equal(t, byte(0xBE), encoded[1])
	require.Equal(t, byte(0xB4), encoded[2])
	require.Equal(t, byte(0xD9), encoded[3])

	require.Equal(t, []byte("verack\x00\x00\x00\x00\x00\x00"), encoded[4:16])

	require.Equal(t, []byte{0, 0, 0, 0}, encoded[16:20])

	// SHA256(SHA256(""))[0:4] = 5d f6 e0 e2
	require.Equal(t, []byte{0x5d, 0xf6, 0xe0, 0xe2}, encoded[20:24])
}

func TestDecodeFrameWrongMagic(t *testing.T) {
	encoded := EncodeFrame(MagicMainnet, CmdVerack, nil)
	_, _, err := DecodeFrame(encoded, 0, MagicTestnet)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeFrameIncomplete(t *testing.T) {
	encoded := EncodeFrame(MagicMainnet, CmdVersion, []byte("payload"))
	_, _, err := DecodeFrame(encoded[:HeaderSize+2], 0, MagicMainnet)
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestDecodeFrameBadChecksum(t *testing.T) {
	encoded := EncodeFrame(MagicMainnet, CmdVersion, []byte("payload"))
	encoded[20] ^= 0xFF
	_, _, err := DecodeFrame(encoded, 0, MagicMainnet)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeFrameOversizedLength(t *testing.T) {
	encoded := EncodeFrame(MagicMainnet, CmdVersion, nil)
	encoded[16] = 0xFF
	encoded[17] = 0xFF
	encoded[18] = 0xFF
	encoded[19] = 0xFF
	_, _, err := DecodeFrame(encoded, 0, MagicMainnet)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeFrameSequentialOffsets(t *testing.T) {
	buf := append(EncodeFrame(MagicMainnet, CmdVerack, nil), EncodeFrame(MagicMainnet, CmdGetAddr, nil)...)

	first, next, err := DecodeFrame(buf, 0, MagicMainnet)
	require.NoError(t, err)
	require.Equal(t, CmdVerack, first.Command)

	second, next2, err := DecodeFrame(buf, next, MagicMainnet)
	require.NoError(t, err)
	require.Equal(t, CmdGetAddr, second.Command)
	require.Equal(t, len(buf), next2)
}
