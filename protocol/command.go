package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Command identifies a request the client can make of the panel. The byte
// value is the first byte of the command body and is echoed back as the
// first byte of the response body.
type Command byte

const (
	CmdLogin                  Command = 1
	CmdGetZoneDetails         Command = 3
	CmdGetLCDDisplay          Command = 13
	CmdGetLogPointer          Command = 15
	CmdGetPanelIdentification Command = 22
	CmdGetDateTime            Command = 23
	CmdGetSystemPower         Command = 25
	CmdGetUser                Command = 27
	CmdGetAreaDetails         Command = 35
	CmdSetEventMessages       Command = 37
)

func (c Command) String() string {
	switch c {
	case CmdLogin:
		return "LOGIN"
	case CmdGetZoneDetails:
		return "GET_ZONE_DETAILS"
	case CmdGetLCDDisplay:
		return "GET_LCD_DISPLAY"
	case CmdGetLogPointer:
		return "GET_LOG_POINTER"
	case CmdGetPanelIdentification:
		return "GET_PANEL_IDENTIFICATION"
	case CmdGetDateTime:
		return "GET_DATETIME"
	case CmdGetSystemPower:
		return "GET_SYSTEM_POWER"
	case CmdGetUser:
		return "GET_USER"
	case CmdGetAreaDetails:
		return "GET_AREA_DETAILS"
	case CmdSetEventMessages:
		return "SET_EVENT_MESSAGES"
	default:
		return fmt.Sprintf("COMMAND_%d", byte(c))
	}
}

const (
	respACK = 0x06
	respNAK = 0x15
)

// EventFlags selects which unsolicited message kinds the panel will send
// after SET_EVENT_MESSAGES. 16-bit little-endian on the wire.
type EventFlags uint16

const (
	FlagDebug EventFlags = 1 << iota
	FlagZoneEvents
	FlagAreaEvents
	FlagOutputEvents
	FlagUserEvents
	FlagLogEvents
)

// EncodeCommand builds a command body: id byte followed by arguments.
func EncodeCommand(cmd Command, args []byte) []byte {
	body := make([]byte, 0, 1+len(args))
	body = append(body, byte(cmd))
	return append(body, args...)
}

// EncodeEventFlags renders the SET_EVENT_MESSAGES argument.
func EncodeEventFlags(flags EventFlags) []byte {
	return []byte{byte(flags), byte(flags >> 8)}
}

// ExtractResponse validates the echoed command id on a response body and
// strips it. A LOGIN id carrying NAK on any other command means the panel's
// UDL session timed out and the connection must be restarted.
func ExtractResponse(cmd Command, body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrBadPayload)
	}
	if got := Command(body[0]); got != cmd {
		if got == CmdLogin && len(body) > 1 && body[1] == respNAK {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: expected %v got %v", ErrCommandMismatch, cmd, got)
	}
	return body[1:], nil
}

// DecodeACK interprets a single-byte ACK/NAK payload.
func DecodeACK(payload []byte) error {
	if len(payload) != 1 {
		return fmt.Errorf("%w: ack payload % x", ErrBadPayload, payload)
	}
	switch payload[0] {
	case respACK:
		return nil
	case respNAK:
		return ErrNAK
	default:
		return fmt.Errorf("%w: unexpected ack byte 0x%02x", ErrBadPayload, payload[0])
	}
}

// DateTime is the panel clock as returned by GET_DATETIME.
type DateTime struct {
	Year   int // full year, panel sends offset from 2000
	Month  int
	Day    int
	Hour   int
	Minute int
	Second int
}

func (d DateTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d",
		d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
}

// Time converts the panel clock to a time.Time in the local zone.
func (d DateTime) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, d.Hour, d.Minute, d.Second, 0, time.Local)
}

// DecodeDateTime parses the 6-byte {day, month, year-2000, hour, minute,
// second} payload.
func DecodeDateTime(payload []byte) (DateTime, error) {
	if len(payload) < 6 {
		return DateTime{}, fmt.Errorf("%w: datetime % x", ErrBadPayload, payload)
	}
	return DateTime{
		Day:    int(payload[0]),
		Month:  int(payload[1]),
		Year:   2000 + int(payload[2]),
		Hour:   int(payload[3]),
		Minute: int(payload[4]),
		Second: int(payload[5]),
	}, nil
}

// DecodeLCDDisplay returns the panel's 32-character display contents.
func DecodeLCDDisplay(payload []byte) (string, error) {
	if len(payload) != 32 {
		return "", fmt.Errorf("%w: lcd display % x", ErrBadPayload, payload)
	}
	return string(payload), nil
}

// PanelIdentification is the decoded GET_PANEL_IDENTIFICATION string,
// space-separated as "<type> <zones> <x> <firmware>".
type PanelIdentification struct {
	PanelType     string
	NumberOfZones int
	Firmware      string
}

func DecodePanelIdentification(payload []byte) (PanelIdentification, error) {
	if len(payload) != 32 {
		return PanelIdentification{}, fmt.Errorf("%w: panel identification % x", ErrBadPayload, payload)
	}
	fields := strings.Fields(string(payload))
	if len(fields) != 4 {
		return PanelIdentification{}, fmt.Errorf("%w: panel identification %q", ErrBadPayload, string(payload))
	}
	zones, err := strconv.Atoi(fields[1])
	if err != nil {
		return PanelIdentification{}, fmt.Errorf("%w: zone count %q", ErrBadPayload, fields[1])
	}
	return PanelIdentification{
		PanelType:     fields[0],
		NumberOfZones: zones,
		Firmware:      fields[3],
	}, nil
}

// DecodeLogPointer parses the 2-byte little-endian panel log write position.
func DecodeLogPointer(payload []byte) (uint16, error) {
	if len(payload) != 2 {
		return 0, fmt.Errorf("%w: log pointer % x", ErrBadPayload, payload)
	}
	return uint16(payload[0]) | uint16(payload[1])<<8, nil
}

// SystemPower is the raw GET_SYSTEM_POWER reading. Voltages and currents
// derive from the reference reading.
type SystemPower struct {
	RefVoltage     byte
	SystemVoltage  byte
	BatteryVoltage byte
	SystemCurrent  byte
	BatteryCurrent byte
}

func (p SystemPower) SystemVolts() float64 {
	return 13.7 + float64(int(p.SystemVoltage)-int(p.RefVoltage))*0.070
}

func (p SystemPower) BatteryVolts() float64 {
	return 13.7 + float64(int(p.BatteryVoltage)-int(p.RefVoltage))*0.070
}

func (p SystemPower) SystemMilliamps() int  { return int(p.SystemCurrent) * 9 }
func (p SystemPower) BatteryMilliamps() int { return int(p.BatteryCurrent) * 9 }

func (p SystemPower) String() string {
	return fmt.Sprintf("system %.2fV %dmA battery %.2fV %dmA",
		p.SystemVolts(), p.SystemMilliamps(), p.BatteryVolts(), p.BatteryMilliamps())
}

func DecodeSystemPower(payload []byte) (SystemPower, error) {
	if len(payload) != 5 {
		return SystemPower{}, fmt.Errorf("%w: system power % x", ErrBadPayload, payload)
	}
	return SystemPower{
		RefVoltage:     payload[0],
		SystemVoltage:  payload[1],
		BatteryVoltage: payload[2],
		SystemCurrent:  payload[3],
		BatteryCurrent: payload[4],
	}, nil
}

// ZoneDetails is one decoded GET_ZONE_DETAILS record. The response length
// selects the area bitmap width: 34 bytes carry a 1-byte bitmap, 35 a
// 2-byte bitmap and 41 the 8-byte bitmap of the largest panels.
type ZoneDetails struct {
	ZoneType   ZoneType
	AreaBitmap uint64
	Text       string
}

func DecodeZoneDetails(payload []byte) (ZoneDetails, error) {
	var bitmapWidth int
	switch len(payload) {
	case 34:
		bitmapWidth = 1
	case 35:
		bitmapWidth = 2
	case 41:
		bitmapWidth = 8
	default:
		return ZoneDetails{}, fmt.Errorf("%w: zone details % x", ErrBadPayload, payload)
	}
	var bitmap uint64
	for i := 0; i < bitmapWidth; i++ {
		bitmap |= uint64(payload[1+i]) << (8 * i)
	}
	return ZoneDetails{
		ZoneType:   ZoneType(payload[0]),
		AreaBitmap: bitmap,
		Text:       cleanText(payload[1+bitmapWidth:]),
	}, nil
}

// AreaDetails is one decoded GET_AREA_DETAILS record. Delays are 16-bit
// little-endian second counts.
type AreaDetails struct {
	Number      int
	Name        string
	ExitDelay   uint16
	Entry1Delay uint16
	Entry2Delay uint16
	SecondEntry uint16
}

func DecodeAreaDetails(payload []byte) (AreaDetails, error) {
	if len(payload) != 25 {
		return AreaDetails{}, fmt.Errorf("%w: area details % x", ErrBadPayload, payload)
	}
	le16 := func(off int) uint16 { return uint16(payload[off]) | uint16(payload[off+1])<<8 }
	return AreaDetails{
		Number:      int(payload[0]),
		Name:        cleanText(payload[1:17]),
		ExitDelay:   le16(17),
		Entry1Delay: le16(19),
		Entry2Delay: le16(21),
		SecondEntry: le16(23),
	}, nil
}

// UserDetails is one decoded GET_USER record. Doors and Config are carried
// opaque; their semantics are undocumented.
type UserDetails struct {
	Name      string
	Passcode  string
	Tag       string
	Areas     byte
	Modifiers byte
	Locks     byte
	Doors     [3]byte
	Config    uint16
}

// Valid reports whether the slot holds a configured user.
func (u UserDetails) Valid() bool {
	return u.Passcode != "" || u.Tag != ""
}

// DecodeUser parses the 23-byte user record. Some panels return other
// lengths; those are undecoded and rejected so the caller can log and skip.
func DecodeUser(payload []byte) (UserDetails, error) {
	if len(payload) != 23 {
		return UserDetails{}, fmt.Errorf("%w: user record % x", ErrBadPayload, payload)
	}
	u := UserDetails{
		Name:      cleanText(payload[0:8]),
		Passcode:  decodeBCD(payload[8:11]),
		Areas:     payload[11],
		Modifiers: payload[12],
		Locks:     payload[13],
		Tag:       decodeBCD(payload[17:21]), // trailing byte is the 0xFF sentinel
		Config:    uint16(payload[21]) | uint16(payload[22])<<8,
	}
	copy(u.Doors[:], payload[14:17])
	return u, nil
}
