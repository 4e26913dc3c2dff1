package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommand(t *testing.T) {
	assert.Equal(t, []byte{0x01, '1', '2', '3', '4'}, EncodeCommand(CmdLogin, []byte("1234")))
	assert.Equal(t, []byte{0x17}, EncodeCommand(CmdGetDateTime, nil))
}

func TestEncodeEventFlags(t *testing.T) {
	flags := FlagZoneEvents | FlagAreaEvents | FlagOutputEvents | FlagUserEvents | FlagLogEvents
	assert.Equal(t, []byte{0x3E, 0x00}, EncodeEventFlags(flags))
}

func TestExtractResponse(t *testing.T) {
	payload, err := ExtractResponse(CmdGetDateTime, []byte{0x17, 0x1E, 0x0B})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x1E, 0x0B}, payload)
}

func TestExtractResponseWrongCommand(t *testing.T) {
	_, err := ExtractResponse(CmdGetDateTime, []byte{0x19, 0x00})
	require.ErrorIs(t, err, ErrCommandMismatch)
}

func TestExtractResponseSessionExpired(t *testing.T) {
	// A LOGIN id bearing NAK on another command means the panel timed the
	// session out.
	_, err := ExtractResponse(CmdGetDateTime, []byte{0x01, 0x15})
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestDecodeACK(t *testing.T) {
	assert.NoError(t, DecodeACK([]byte{0x06}))
	assert.ErrorIs(t, DecodeACK([]byte{0x15}), ErrNAK)
	assert.ErrorIs(t, DecodeACK([]byte{0x42}), ErrBadPayload)
	assert.ErrorIs(t, DecodeACK([]byte{0x06, 0x06}), ErrBadPayload)
}

func TestDecodeDateTime(t *testing.T) {
	dt, err := DecodeDateTime([]byte{0x1E, 0x0B, 0x17, 0x05, 0x2A, 0x07})
	require.NoError(t, err)
	assert.Equal(t, "2023-11-30 05:42:07", dt.String())

	_, err = DecodeDateTime([]byte{0x1E, 0x0B, 0x17})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestDecodeLCDDisplay(t *testing.T) {
	raw := []byte("Premier 48      30/11 05:42     ")
	display, err := DecodeLCDDisplay(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), display)

	_, err = DecodeLCDDisplay(raw[:31])
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestDecodePanelIdentification(t *testing.T) {
	raw := []byte("Premier 48 12.8 V4.00           ")
	id, err := DecodePanelIdentification(raw)
	require.NoError(t, err)
	assert.Equal(t, "Premier", id.PanelType)
	assert.Equal(t, 48, id.NumberOfZones)
	assert.Equal(t, "V4.00", id.Firmware)
}

func TestDecodePanelIdentificationMalformed(t *testing.T) {
	_, err := DecodePanelIdentification([]byte("Premier 48                      "))
	assert.ErrorIs(t, err, ErrBadPayload)

	_, err = DecodePanelIdentification([]byte("Premier xx 12.8 V4.00           "))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestDecodeLogPointer(t *testing.T) {
	ptr, err := DecodeLogPointer([]byte{0x34, 0x12})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), ptr)
}

func TestDecodeSystemPower(t *testing.T) {
	power, err := DecodeSystemPower([]byte{100, 110, 90, 50, 10})
	require.NoError(t, err)
	assert.InDelta(t, 13.7+10*0.070, power.SystemVolts(), 1e-9)
	assert.InDelta(t, 13.7-10*0.070, power.BatteryVolts(), 1e-9)
	assert.Equal(t, 450, power.SystemMilliamps())
	assert.Equal(t, 90, power.BatteryMilliamps())
}

func zoneDetailsPayload(length int, zoneType byte, bitmap []byte, text string) []byte {
	payload := append([]byte{zoneType}, bitmap...)
	padded := make([]byte, length-len(payload))
	copy(padded, text)
	return append(payload, padded...)
}

func TestDecodeZoneDetails(t *testing.T) {
	tests := []struct {
		name       string
		length     int
		bitmap     []byte
		wantBitmap uint64
	}{
		{"small panel", 34, []byte{0x03}, 0x03},
		{"mid panel", 35, []byte{0x01, 0x80}, 0x8001},
		{"large panel", 41, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0x0807060504030201},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := zoneDetailsPayload(tt.length, 3, tt.bitmap, "Landing\x00PIR")
			details, err := DecodeZoneDetails(payload)
			require.NoError(t, err)
			assert.Equal(t, ZoneType(3), details.ZoneType)
			assert.Equal(t, tt.wantBitmap, details.AreaBitmap)
			assert.Equal(t, "Landing PIR", details.Text)
		})
	}
}

func TestDecodeZoneDetailsRejectsOtherLengths(t *testing.T) {
	for _, length := range []int{0, 1, 33, 36, 40, 42} {
		_, err := DecodeZoneDetails(make([]byte, length))
		assert.ErrorIs(t, err, ErrBadPayload, "length %d", length)
	}
}

func TestDecodeAreaDetails(t *testing.T) {
	payload := make([]byte, 25)
	payload[0] = 2
	copy(payload[1:17], "House\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")
	payload[17], payload[18] = 0x2D, 0x00 // exit 45
	payload[19], payload[20] = 0x1E, 0x00 // entry1 30
	payload[21], payload[22] = 0x3C, 0x00 // entry2 60
	payload[23], payload[24] = 0x0A, 0x01 // second entry 266

	area, err := DecodeAreaDetails(payload)
	require.NoError(t, err)
	assert.Equal(t, 2, area.Number)
	assert.Equal(t, "House", area.Name)
	assert.Equal(t, uint16(45), area.ExitDelay)
	assert.Equal(t, uint16(30), area.Entry1Delay)
	assert.Equal(t, uint16(60), area.Entry2Delay)
	assert.Equal(t, uint16(266), area.SecondEntry)

	_, err = DecodeAreaDetails(payload[:24])
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestDecodeUser(t *testing.T) {
	payload := make([]byte, 23)
	copy(payload[0:8], "Joe\x00\x00\x00\x00\x00")
	payload[8], payload[9], payload[10] = 0x12, 0x34, 0xFF // passcode 1234
	payload[11] = 0x03                                     // areas
	payload[12] = 0x01
	payload[13] = 0x02
	payload[14], payload[15], payload[16] = 0xAA, 0xBB, 0xCC
	payload[17], payload[18], payload[19], payload[20] = 0x56, 0x78, 0x90, 0xFF // tag
	payload[21], payload[22] = 0x10, 0x02                                       // config

	user, err := DecodeUser(payload)
	require.NoError(t, err)
	assert.Equal(t, "Joe", user.Name)
	assert.Equal(t, "1234", user.Passcode)
	assert.Equal(t, "567890", user.Tag)
	assert.Equal(t, byte(0x03), user.Areas)
	assert.Equal(t, [3]byte{0xAA, 0xBB, 0xCC}, user.Doors)
	assert.Equal(t, uint16(0x0210), user.Config)
	assert.True(t, user.Valid())
}

func TestDecodeUserEmptySlot(t *testing.T) {
	payload := make([]byte, 23)
	for i := 8; i < 11; i++ {
		payload[i] = 0xFF
	}
	for i := 17; i < 21; i++ {
		payload[i] = 0xFF
	}
	user, err := DecodeUser(payload)
	require.NoError(t, err)
	assert.False(t, user.Valid())
}

func TestDecodeUserUnexpectedLength(t *testing.T) {
	_, err := DecodeUser(make([]byte, 27))
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Front Door", cleanText([]byte("Front\x00Door\x00\x00\x00")))
	assert.Equal(t, "Hall PIR", cleanText([]byte("  Hall--PIR  ")))
	assert.Equal(t, "", cleanText([]byte("\x00\x00\x00")))
}

func TestDecodeBCD(t *testing.T) {
	assert.Equal(t, "1234", decodeBCD([]byte{0x12, 0x34}))
	assert.Equal(t, "12", decodeBCD([]byte{0x12, 0xFF}))
	assert.Equal(t, "", decodeBCD([]byte{0xFF, 0xFF}))
	assert.Equal(t, "105", decodeBCD([]byte{0x10, 0x5F}))
}
