package protocol

import (
	"fmt"
	"strings"
	"time"
)

// MessageType is the first body byte of an unsolicited 'M' frame.
type MessageType byte

const (
	MsgDebug MessageType = iota
	MsgZoneEvent
	MsgAreaEvent
	MsgOutputEvent
	MsgUserEvent
	MsgLogEvent
)

// Event is a decoded unsolicited message. The concrete type selects the
// payload; String renders the panel-facing description without site names,
// which only the model layer knows.
type Event interface {
	fmt.Stringer
	messageType() MessageType
}

// DebugEvent carries an undocumented debug payload verbatim.
type DebugEvent struct {
	Data []byte
}

func (DebugEvent) messageType() MessageType { return MsgDebug }

func (e DebugEvent) String() string {
	return fmt.Sprintf("Debug message: % x", e.Data)
}

// ZoneState is the status byte of a zone event. The low two bits carry the
// detector status; the remaining bits are independent condition flags.
type ZoneState byte

// ZoneStatus is the two-bit detector status.
type ZoneStatus byte

const (
	ZoneSecure ZoneStatus = iota
	ZoneActive
	ZoneTamper
	ZoneShort
)

func (s ZoneStatus) String() string {
	return [...]string{"secure", "active", "tamper", "short"}[s&0x3]
}

func (s ZoneState) Status() ZoneStatus   { return ZoneStatus(s & 0x3) }
func (s ZoneState) Fault() bool          { return s&(1<<2) != 0 }
func (s ZoneState) FailedTest() bool     { return s&(1<<3) != 0 }
func (s ZoneState) Alarmed() bool        { return s&(1<<4) != 0 }
func (s ZoneState) ManualBypassed() bool { return s&(1<<5) != 0 }
func (s ZoneState) AutoBypassed() bool   { return s&(1<<6) != 0 }
func (s ZoneState) Masked() bool         { return s&(1<<7) != 0 }

func (s ZoneState) String() string {
	parts := []string{s.Status().String()}
	for _, f := range []struct {
		set  bool
		name string
	}{
		{s.Fault(), "fault"},
		{s.FailedTest(), "failed test"},
		{s.Alarmed(), "alarmed"},
		{s.ManualBypassed(), "manual bypassed"},
		{s.AutoBypassed(), "auto bypassed"},
		{s.Masked(), "zone masked"},
	} {
		if f.set {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, ", ")
}

// ZoneEvent reports a zone status change. Large panels address zones with
// two bytes; the payload length selects the width.
type ZoneEvent struct {
	Zone  int
	State ZoneState
}

func (ZoneEvent) messageType() MessageType { return MsgZoneEvent }

func (e ZoneEvent) String() string {
	return fmt.Sprintf("Zone event message: zone %d %s", e.Zone, e.State)
}

// AreaEvent reports an area arming-state change.
type AreaEvent struct {
	Area  int
	State AreaState
}

func (AreaEvent) messageType() MessageType { return MsgAreaEvent }

func (e AreaEvent) String() string {
	return fmt.Sprintf("Area event message: area %d %s", e.Area, e.State)
}

// OutputEvent reports an output group changing state.
type OutputEvent struct {
	Location byte
	State    byte
}

func (OutputEvent) messageType() MessageType { return MsgOutputEvent }

// LocationName resolves the fixed output groups; higher locations decompose
// into network (high nibble) and device (low nibble), device zero being the
// keypad.
func (e OutputEvent) LocationName() string {
	if int(e.Location) < len(outputLocationNames) {
		return outputLocationNames[e.Location]
	}
	network := e.Location >> 4
	device := e.Location & 0xF
	if device == 0 {
		return fmt.Sprintf("Network %d keypad outputs", network)
	}
	return fmt.Sprintf("Network %d expander %d outputs", network, device)
}

func (e OutputEvent) String() string {
	return fmt.Sprintf("Output event message: location %d['%s'] now 0x%02x",
		e.Location, e.LocationName(), e.State)
}

// UserEvent reports a user logging on at a keypad.
type UserEvent struct {
	User   int
	Method LogonMethod
}

func (UserEvent) messageType() MessageType { return MsgUserEvent }

func (e UserEvent) String() string {
	return fmt.Sprintf("User event message: logon by user %d %s", e.User, e.Method)
}

// LogEvent is a panel log record pushed as an event. Parameter and Areas
// widen on the larger panels; the payload length selects the layout.
type LogEvent struct {
	EventType    LogEventType
	GroupType    LogGroupType
	CommDelayed  bool
	Communicated bool
	Parameter    uint16
	Areas        uint16
	Timestamp    time.Time
}

func (LogEvent) messageType() MessageType { return MsgLogEvent }

func (e LogEvent) String() string {
	group := e.GroupType.String()
	if e.CommDelayed {
		group += " [comm delayed]"
	}
	if e.Communicated {
		group += " [communicated]"
	}
	return fmt.Sprintf("Log event message: %s %s, %s  parameter: %d   areas: %d",
		e.Timestamp.Format("2006-01-02 15:04:05"), e.EventType, group, e.Parameter, e.Areas)
}

// decodeLogTimestamp unpacks the panel's 32-bit packed timestamp. From the
// least significant bit up: seconds(6), minutes(6), month(4), hours(5),
// day(5), year(6, offset 2000).
func decodeLogTimestamp(raw []byte) time.Time {
	packed := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	sec := int(packed & 63)
	min := int((packed >> 6) & 63)
	month := int((packed >> 12) & 15)
	hour := int((packed >> 16) & 31)
	day := int((packed >> 21) & 31)
	year := 2000 + int((packed>>26)&63)
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.Local)
}

// DecodeMessage decodes the body of an unsolicited 'M' frame into a typed
// event. Unknown kinds and unknown payload lengths return an error so the
// session can log and skip them without affecting state.
func DecodeMessage(body []byte) (Event, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrBadPayload)
	}
	kind, payload := MessageType(body[0]), body[1:]
	switch kind {
	case MsgDebug:
		return DebugEvent{Data: payload}, nil

	case MsgZoneEvent:
		switch len(payload) {
		case 2:
			return ZoneEvent{Zone: int(payload[0]), State: ZoneState(payload[1])}, nil
		case 3:
			return ZoneEvent{
				Zone:  int(payload[0]) | int(payload[1])<<8,
				State: ZoneState(payload[2]),
			}, nil
		default:
			return nil, fmt.Errorf("%w: zone event % x", ErrBadPayload, payload)
		}

	case MsgAreaEvent:
		if len(payload) != 2 {
			return nil, fmt.Errorf("%w: area event % x", ErrBadPayload, payload)
		}
		return AreaEvent{Area: int(payload[0]), State: AreaState(payload[1])}, nil

	case MsgOutputEvent:
		if len(payload) != 2 {
			return nil, fmt.Errorf("%w: output event % x", ErrBadPayload, payload)
		}
		return OutputEvent{Location: payload[0], State: payload[1]}, nil

	case MsgUserEvent:
		if len(payload) != 2 {
			return nil, fmt.Errorf("%w: user event % x", ErrBadPayload, payload)
		}
		return UserEvent{User: int(payload[0]), Method: LogonMethod(payload[1])}, nil

	case MsgLogEvent:
		return decodeLogEvent(payload)

	default:
		return nil, fmt.Errorf("%w: unknown message type %d: % x", ErrBadPayload, kind, payload)
	}
}

func decodeLogEvent(payload []byte) (Event, error) {
	ev := LogEvent{}
	switch len(payload) {
	case 8:
		ev.Parameter = uint16(payload[2])
		ev.Areas = uint16(payload[3])
		ev.Timestamp = decodeLogTimestamp(payload[4:8])
	case 9:
		// Premier 168: a ninth byte extends the area bitmap to 16 bits.
		ev.Parameter = uint16(payload[2])
		ev.Areas = uint16(payload[3]) | uint16(payload[8])<<8
		ev.Timestamp = decodeLogTimestamp(payload[4:8])
	case 10:
		// Premier 640 layout, inferred from the smaller panels and not yet
		// confirmed against hardware.
		ev.Parameter = uint16(payload[2]) | uint16(payload[3])<<8
		ev.Areas = uint16(payload[4]) | uint16(payload[5])<<8
		ev.Timestamp = decodeLogTimestamp(payload[6:10])
	default:
		return nil, fmt.Errorf("%w: log event % x", ErrBadPayload, payload)
	}
	ev.EventType = LogEventType(payload[0])
	ev.GroupType = LogGroupType(payload[1] & 0x3F)
	ev.CommDelayed = payload[1]&(1<<6) != 0
	ev.Communicated = payload[1]&(1<<7) != 0
	return ev, nil
}
