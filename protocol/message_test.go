package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeZoneEventTwoByte(t *testing.T) {
	ev, err := DecodeMessage([]byte{0x01, 0x49, 0x11})
	require.NoError(t, err)
	zone, ok := ev.(ZoneEvent)
	require.True(t, ok)
	assert.Equal(t, 73, zone.Zone)
	assert.Equal(t, ZoneActive, zone.State.Status())
	assert.True(t, zone.State.Alarmed())
	assert.False(t, zone.State.Fault())
	assert.Equal(t, "Zone event message: zone 73 active, alarmed", zone.String())
}

func TestDecodeZoneEventThreeByte(t *testing.T) {
	// Wide-panel addressing: zone number is two bytes little-endian.
	ev, err := DecodeMessage([]byte{0x01, 0x40, 0x01, 0x01})
	require.NoError(t, err)
	zone, ok := ev.(ZoneEvent)
	require.True(t, ok)
	assert.Equal(t, 320, zone.Zone)
	assert.Equal(t, ZoneActive, zone.State.Status())
	assert.False(t, zone.State.Alarmed())
}

func TestDecodeZoneEventFlags(t *testing.T) {
	state := ZoneState(0xFE)
	assert.Equal(t, ZoneTamper, state.Status())
	assert.True(t, state.Fault())
	assert.True(t, state.FailedTest())
	assert.True(t, state.Alarmed())
	assert.True(t, state.ManualBypassed())
	assert.True(t, state.AutoBypassed())
	assert.True(t, state.Masked())
	assert.Equal(t, "tamper, fault, failed test, alarmed, manual bypassed, auto bypassed, zone masked", state.String())
}

func TestDecodeZoneEventBadLength(t *testing.T) {
	_, err := DecodeMessage([]byte{0x01, 0x49})
	assert.ErrorIs(t, err, ErrBadPayload)
	_, err = DecodeMessage([]byte{0x01, 0x49, 0x11, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestDecodeAreaEvent(t *testing.T) {
	ev, err := DecodeMessage([]byte{0x02, 0x01, 0x03})
	require.NoError(t, err)
	area, ok := ev.(AreaEvent)
	require.True(t, ok)
	assert.Equal(t, 1, area.Area)
	assert.Equal(t, AreaArmed, area.State)
	assert.Equal(t, "Area event message: area 1 armed", area.String())
}

func TestDecodeOutputEvent(t *testing.T) {
	tests := []struct {
		location byte
		want     string
	}{
		{0, "Panel outputs"},
		{9, "X-10 outputs"},
		{0x20, "Network 2 keypad outputs"},
		{0x35, "Network 3 expander 5 outputs"},
	}
	for _, tt := range tests {
		ev, err := DecodeMessage([]byte{0x03, tt.location, 0x81})
		require.NoError(t, err)
		output, ok := ev.(OutputEvent)
		require.True(t, ok)
		assert.Equal(t, tt.want, output.LocationName())
	}
}

func TestDecodeUserEvent(t *testing.T) {
	ev, err := DecodeMessage([]byte{0x04, 0x03, 0x02})
	require.NoError(t, err)
	user, ok := ev.(UserEvent)
	require.True(t, ok)
	assert.Equal(t, 3, user.User)
	assert.Equal(t, LogonCodeAndTag, user.Method)
}

// packTimestamp builds the 32-bit packed log timestamp for tests.
func packTimestamp(year, month, day, hour, min, sec int) []byte {
	packed := uint32(sec) | uint32(min)<<6 | uint32(month)<<12 |
		uint32(hour)<<16 | uint32(day)<<21 | uint32(year-2000)<<26
	return []byte{byte(packed), byte(packed >> 8), byte(packed >> 16), byte(packed >> 24)}
}

func TestDecodeLogEventEightByte(t *testing.T) {
	payload := append([]byte{0x05, 47, 0x83 | 0x40, 0x07, 0x02}, packTimestamp(2023, 11, 30, 5, 42, 7)...)
	ev, err := DecodeMessage(payload)
	require.NoError(t, err)
	logEv, ok := ev.(LogEvent)
	require.True(t, ok)
	assert.Equal(t, LogEventType(47), logEv.EventType)
	assert.Equal(t, LogGroupType(3), logEv.GroupType)
	assert.True(t, logEv.CommDelayed)
	assert.True(t, logEv.Communicated)
	assert.Equal(t, uint16(0x07), logEv.Parameter)
	assert.Equal(t, uint16(0x02), logEv.Areas)
	assert.Equal(t, time.Date(2023, 11, 30, 5, 42, 7, 0, time.Local), logEv.Timestamp)
	assert.Contains(t, logEv.String(), "AC Fail")
	assert.Contains(t, logEv.String(), "Alarm")
	assert.Contains(t, logEv.String(), "[comm delayed]")
	assert.Contains(t, logEv.String(), "[communicated]")
}

func TestDecodeLogEventNineByte(t *testing.T) {
	// Premier 168: ninth byte extends the area bitmap.
	payload := append([]byte{0x05, 31, 0x05, 0x01, 0x02}, packTimestamp(2024, 1, 2, 3, 4, 5)...)
	payload = append(payload, 0x01)
	ev, err := DecodeMessage(payload)
	require.NoError(t, err)
	logEv := ev.(LogEvent)
	assert.Equal(t, uint16(0x0102), logEv.Areas)
	assert.Equal(t, uint16(0x01), logEv.Parameter)
}

func TestDecodeLogEventTenByte(t *testing.T) {
	payload := append([]byte{0x05, 31, 0x05, 0x01, 0x02, 0x03, 0x04}, packTimestamp(2024, 1, 2, 3, 4, 5)...)
	ev, err := DecodeMessage(payload)
	require.NoError(t, err)
	logEv := ev.(LogEvent)
	assert.Equal(t, uint16(0x0201), logEv.Parameter)
	assert.Equal(t, uint16(0x0403), logEv.Areas)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local), logEv.Timestamp)
}

func TestDecodeLogEventBadLength(t *testing.T) {
	_, err := DecodeMessage([]byte{0x05, 31, 0x05})
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestDecodeDebugMessage(t *testing.T) {
	ev, err := DecodeMessage([]byte{0x00, 0xDE, 0xAD})
	require.NoError(t, err)
	debug, ok := ev.(DebugEvent)
	require.True(t, ok)
	assert.Equal(t, []byte{0xDE, 0xAD}, debug.Data)
}

func TestDecodeUnknownMessageType(t *testing.T) {
	_, err := DecodeMessage([]byte{0x09, 0x01})
	assert.ErrorIs(t, err, ErrBadPayload)
	_, err = DecodeMessage(nil)
	assert.ErrorIs(t, err, ErrBadPayload)
}
