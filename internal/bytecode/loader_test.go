package bytecode

import (
	"testing"

	"github.com/sigurn/crc16"
	"github.com/stretchr/testify/require"
)

func TestVerifyChecksumRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0xAA, 0xBB}
	sum := crc16.Checksum(payload, ccitt)
	raw := append(append([]byte{}, payload...), byte(sum>>8), byte(sum))

	data, err := verifyChecksum(raw)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestVerifyChecksumMismatch(t *testing.T) {
	raw := []byte{0x01, 0x02, 0x03, 0x00, 0x00}
	_, err := verifyChecksum(raw)
	require.ErrorIs(t, err, ErrChecksum)
}

func TestVerifyChecksumTooShort(t *testing.T) {
	_, err := verifyChecksum([]byte{0x01})
	require.Error(t, err)
}
