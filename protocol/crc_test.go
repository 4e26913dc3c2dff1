package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bitwise reference implementation, kept independent of the table in crc.go
func crcRef(data []byte) byte {
	crc := byte(0xFF)
	for _, b := range data {
		crc ^= b
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ 0x85
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func TestChecksumLoginFrame(t *testing.T) {
	// LOGIN command with password "1234", total length 0x0A, sequence 0.
	frame := []byte{0x74, 0x43, 0x0A, 0x00, 0x01, 0x31, 0x32, 0x33, 0x34}
	require.Equal(t, byte(0x34), Checksum(frame))
}

func TestChecksumMatchesReference(t *testing.T) {
	inputs := [][]byte{
		{},
		{0x00},
		{0xFF},
		{0x74, 0x43, 0x0A, 0x00, 0x01, 0x31, 0x32, 0x33, 0x34},
		{0x74, 0x52, 0x07, 0x05, 0x17, 0x06},
		{0x74, 0x4D, 0x08, 0x10, 0x01, 0x49, 0x11},
	}
	for _, in := range inputs {
		assert.Equal(t, crcRef(in), Checksum(in), "input % x", in)
	}
}

func TestChecksumIncremental(t *testing.T) {
	header := []byte{0x74, 0x43, 0x0A, 0x00}
	body := []byte{0x01, 0x31, 0x32, 0x33, 0x34}
	whole := append(append([]byte{}, header...), body...)
	assert.Equal(t, Checksum(whole), checksumUpdate(checksumUpdate(0xFF, header), body))
}
