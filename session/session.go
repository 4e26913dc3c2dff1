package session

import (
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/davidMbrooke/texecom-connect/protocol"
)

// DialFunc opens the transport to the panel. Tests substitute scripted
// connections.
type DialFunc func() (net.Conn, error)

// Config carries the session and lifecycle timing parameters. Zero values
// take the documented defaults.
type Config struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	UDLPassword string `yaml:"udl_password"`

	// CommandTimeout is the per-attempt receive timeout. The protocol
	// specification suggests 2-3 seconds; raising it only delays the
	// resend when the panel drops a reply.
	CommandTimeout time.Duration `yaml:"command_timeout"`
	// CommandRetries is how many times the identical bytes are resent
	// after the initial attempt times out.
	CommandRetries int `yaml:"command_retries"`
	// ConnectDelay is the pause between the socket opening and the first
	// command; the panel silently discards logins sent earlier.
	ConnectDelay time.Duration `yaml:"connect_delay"`
	// IdleInterval is how long the line may stay quiet before a harmless
	// command resets the panel's own 60-second inactivity hangup.
	IdleInterval time.Duration `yaml:"idle_interval"`
	// ReconnectDelay is the pause after a failed connect or login.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// OutageThreshold is how long a connection must stay lost before the
	// connection-lost hook fires.
	OutageThreshold time.Duration `yaml:"outage_threshold"`
	// SmoothedActiveDelay is the zone smoothing hold interval.
	SmoothedActiveDelay time.Duration `yaml:"smoothed_active_delay"`

	Dial DialFunc `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 10001
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 2 * time.Second
	}
	if c.CommandRetries <= 0 {
		c.CommandRetries = 3
	}
	if c.ConnectDelay <= 0 {
		c.ConnectDelay = 500 * time.Millisecond
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 30 * time.Second
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.OutageThreshold <= 0 {
		c.OutageThreshold = 60 * time.Second
	}
	if c.Dial == nil {
		addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
		timeout := c.CommandTimeout
		c.Dial = func() (net.Conn, error) {
			return net.DialTimeout("tcp", addr, timeout)
		}
	}
	return c
}

// State is the session lifecycle position.
type State int

const (
	Disconnected State = iota
	Connecting
	AwaitingLogin
	Authenticated
	Enrolled
	Running
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AwaitingLogin:
		return "awaiting login"
	case Authenticated:
		return "authenticated"
	case Enrolled:
		return "enrolled"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// idleCommands rotate round-robin when the line has been quiet too long.
var idleCommands = []protocol.Command{
	protocol.CmdGetDateTime,
	protocol.CmdGetLogPointer,
	protocol.CmdGetSystemPower,
}

// Session owns one TCP connection to the panel: the socket, both sequence
// counters, the pending-command slot and the idle keepalive rotation. One
// command is in flight at a time; unsolicited messages that arrive while a
// response is pending are handed to the event handler and never satisfy the
// command.
type Session struct {
	cfg    Config
	conn   net.Conn
	framer *protocol.Framer
	state  State

	// onEvent receives every decoded unsolicited message, including those
	// interleaved with command responses. It runs on the receive path and
	// must not issue commands.
	onEvent func(protocol.Event)

	lastCommandTime time.Time
	lastReceivedSeq int // -1 until the first message frame
	idleIndex       int
}

func New(cfg Config, onEvent func(protocol.Event)) *Session {
	return &Session{
		cfg:             cfg.withDefaults(),
		onEvent:         onEvent,
		lastReceivedSeq: -1,
	}
}

func (s *Session) State() State { return s.state }

// Connect opens the transport and waits the panel's post-connect settle
// time before the session may speak.
func (s *Session) Connect() error {
	s.state = Connecting
	conn, err := s.cfg.Dial()
	if err != nil {
		s.state = Disconnected
		return fmt.Errorf("connect to panel: %w", err)
	}
	s.conn = conn
	s.framer = protocol.NewFramer(conn, s.cfg.CommandTimeout)
	// The panel ignores a login sent too soon after accept; Texecom
	// recommend waiting 500ms.
	time.Sleep(s.cfg.ConnectDelay)
	s.state = AwaitingLogin
	return nil
}

// Close releases the socket. Safe to call from any state and repeatedly.
func (s *Session) Close() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state = Disconnected
}

// Login authenticates with the UDL password.
func (s *Session) Login() error {
	payload, err := s.sendCommand(protocol.CmdLogin, []byte(s.cfg.UDLPassword))
	if err != nil {
		return err
	}
	if err := protocol.DecodeACK(payload); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.state = Authenticated
	return nil
}

// EnableEvents enrolls for all non-debug unsolicited message streams.
func (s *Session) EnableEvents() error {
	flags := protocol.FlagZoneEvents | protocol.FlagAreaEvents |
		protocol.FlagOutputEvents | protocol.FlagUserEvents | protocol.FlagLogEvents
	payload, err := s.sendCommand(protocol.CmdSetEventMessages, protocol.EncodeEventFlags(flags))
	if err != nil {
		return err
	}
	if err := protocol.DecodeACK(payload); err != nil {
		return fmt.Errorf("set event messages: %w", err)
	}
	s.state = Enrolled
	return nil
}

// BeginRunning marks startup complete; the caller now drives NextEvent.
func (s *Session) BeginRunning() {
	s.state = Running
}

// GetPanelIdentification reads the identification string that sizes the
// zone, area and user tables.
func (s *Session) GetPanelIdentification() (protocol.PanelIdentification, error) {
	payload, err := s.sendCommand(protocol.CmdGetPanelIdentification, nil)
	if err != nil {
		return protocol.PanelIdentification{}, err
	}
	id, err := protocol.DecodePanelIdentification(payload)
	if err != nil {
		return protocol.PanelIdentification{}, err
	}
	log.Infof("Panel identification: %s %d zones firmware %s", id.PanelType, id.NumberOfZones, id.Firmware)
	return id, nil
}

// GetDateTime reads the panel clock and logs its drift from local time.
func (s *Session) GetDateTime() (protocol.DateTime, error) {
	payload, err := s.sendCommand(protocol.CmdGetDateTime, nil)
	if err != nil {
		return protocol.DateTime{}, err
	}
	dt, err := protocol.DecodeDateTime(payload)
	if err != nil {
		return protocol.DateTime{}, err
	}
	drift := int(time.Until(dt.Time()).Seconds())
	if drift > 0 {
		log.Infof("Panel date/time: %s (panel is ahead by %d seconds)", dt, drift)
	} else {
		log.Infof("Panel date/time: %s (panel is behind by %d seconds)", dt, -drift)
	}
	return dt, nil
}

// GetLCDDisplay reads the 32-character keypad display.
func (s *Session) GetLCDDisplay() (string, error) {
	payload, err := s.sendCommand(protocol.CmdGetLCDDisplay, nil)
	if err != nil {
		return "", err
	}
	display, err := protocol.DecodeLCDDisplay(payload)
	if err != nil {
		return "", err
	}
	log.Infof("Panel LCD display: %s", display)
	return display, nil
}

// GetLogPointer reads the panel's log write position.
func (s *Session) GetLogPointer() (uint16, error) {
	payload, err := s.sendCommand(protocol.CmdGetLogPointer, nil)
	if err != nil {
		return 0, err
	}
	ptr, err := protocol.DecodeLogPointer(payload)
	if err != nil {
		return 0, err
	}
	log.Infof("Log pointer: %d", ptr)
	return ptr, nil
}

// GetSystemPower reads the supply and battery voltages and currents.
func (s *Session) GetSystemPower() (protocol.SystemPower, error) {
	payload, err := s.sendCommand(protocol.CmdGetSystemPower, nil)
	if err != nil {
		return protocol.SystemPower{}, err
	}
	power, err := protocol.DecodeSystemPower(payload)
	if err != nil {
		return protocol.SystemPower{}, err
	}
	log.Infof("System power: %s", power)
	return power, nil
}

// GetZoneDetails reads one zone's static record. The request addresses
// zones with a single byte; panels with more than 255 zones are not yet
// addressable here.
func (s *Session) GetZoneDetails(zone int) (protocol.ZoneDetails, error) {
	payload, err := s.sendCommand(protocol.CmdGetZoneDetails, []byte{byte(zone)})
	if err != nil {
		return protocol.ZoneDetails{}, err
	}
	return protocol.DecodeZoneDetails(payload)
}

// GetAreaDetails reads one area's static record.
func (s *Session) GetAreaDetails(area int) (protocol.AreaDetails, error) {
	payload, err := s.sendCommand(protocol.CmdGetAreaDetails, []byte{byte(area)})
	if err != nil {
		return protocol.AreaDetails{}, err
	}
	return protocol.DecodeAreaDetails(payload)
}

// GetUser reads one user slot.
func (s *Session) GetUser(user int) (protocol.UserDetails, error) {
	payload, err := s.sendCommand(protocol.CmdGetUser, []byte{byte(user)})
	if err != nil {
		return protocol.UserDetails{}, err
	}
	return protocol.DecodeUser(payload)
}

// IdleDue reports whether the line has been quiet long enough that the
// panel's inactivity hangup is approaching. The receive loop asks between
// frames and issues the idle command synchronously; the session never
// recurses into its own receive path.
func (s *Session) IdleDue() bool {
	return !s.lastCommandTime.IsZero() &&
		time.Since(s.lastCommandTime) > s.cfg.IdleInterval
}

// SendIdleCommand issues the next harmless command in the rotation. It both
// resets the panel's inactivity timer and probes liveness; failure means the
// connection should be closed.
func (s *Session) SendIdleCommand() error {
	cmd := idleCommands[s.idleIndex]
	s.idleIndex = (s.idleIndex + 1) % len(idleCommands)
	var err error
	switch cmd {
	case protocol.CmdGetDateTime:
		_, err = s.GetDateTime()
	case protocol.CmdGetLogPointer:
		_, err = s.GetLogPointer()
	case protocol.CmdGetSystemPower:
		_, err = s.GetSystemPower()
	}
	return err
}

// NextEvent reads one frame in the running state and returns the decoded
// unsolicited message, if any. A quiet line returns (nil, nil) so the
// caller can run periodic work; per-frame problems are logged and skipped;
// transport errors end the session.
func (s *Session) NextEvent() (protocol.Event, error) {
	frame, err := s.framer.Read()
	if err != nil {
		switch {
		case isTimeoutErr(err):
			// Nothing was owed to us; an idle line times out constantly.
			return nil, nil
		case errors.Is(err, protocol.ErrShortBody),
			errors.Is(err, protocol.ErrCRCMismatch),
			errors.Is(err, protocol.ErrBadStartByte),
			errors.Is(err, protocol.ErrBadLength):
			log.Warnf("Dropping frame: %v", err)
			return nil, nil
		default:
			return nil, err
		}
	}
	switch frame.Type {
	case protocol.FrameMessage:
		if ev, ok := s.acceptMessage(frame); ok {
			return ev, nil
		}
		return nil, nil
	case protocol.FrameResponse:
		log.Warnf("Discarding response frame seq=%d with no command pending", frame.Sequence)
		return nil, nil
	default:
		log.Warnf("Received command frame from panel unexpectedly")
		return nil, nil
	}
}

// acceptMessage applies the incoming-message sequence discipline and
// decodes the body. The stream is not reordered; a duplicate sequence drops
// the message, any other gap is logged and the message processed anyway.
func (s *Session) acceptMessage(frame *protocol.Frame) (protocol.Event, bool) {
	seq := int(frame.Sequence)
	if s.lastReceivedSeq != -1 {
		next := (s.lastReceivedSeq + 1) % 256
		if seq == s.lastReceivedSeq {
			log.Warnf("Ignoring duplicate message: sequence %d repeated", seq)
			return nil, false
		}
		if seq != next {
			log.Warnf("Message sequence incorrect - processing anyway: expected=%d actual=%d", next, seq)
		}
	}
	s.lastReceivedSeq = seq

	ev, err := protocol.DecodeMessage(frame.Body)
	if err != nil {
		log.Warnf("Skipping undecodable message: %v", err)
		return nil, false
	}
	return ev, true
}

// sendCommand performs one synchronous request/reply exchange: frame and
// send the body, then read until the matching response arrives. A receive
// timeout resends the identical bytes, sequence number included, up to the
// retry limit. Message frames that arrive in between flow to the event
// handler; they never satisfy the command.
func (s *Session) sendCommand(cmd protocol.Command, args []byte) ([]byte, error) {
	if s.conn == nil {
		return nil, protocol.ErrConnectionClosed
	}
	seq, raw, err := s.framer.WriteCommand(protocol.EncodeCommand(cmd, args))
	if err != nil {
		return nil, err
	}
	s.lastCommandTime = time.Now()

	resends := 0
	deadline := time.Now().Add(s.cfg.CommandTimeout)
	for {
		frame, err := s.framer.ReadUntil(deadline)
		if err != nil {
			if isTimeoutErr(err) {
				if resends >= s.cfg.CommandRetries {
					return nil, fmt.Errorf("%v: no response after %d retries: %w", cmd, resends, err)
				}
				log.Warnf("Timeout waiting for %v response, resending last command", cmd)
				resends++
				if err := s.framer.Resend(raw); err != nil {
					return nil, err
				}
				s.lastCommandTime = time.Now()
				deadline = time.Now().Add(s.cfg.CommandTimeout)
				continue
			}
			if errors.Is(err, protocol.ErrShortBody) ||
				errors.Is(err, protocol.ErrCRCMismatch) ||
				errors.Is(err, protocol.ErrBadStartByte) ||
				errors.Is(err, protocol.ErrBadLength) {
				log.Warnf("Dropping frame while awaiting %v response: %v", cmd, err)
				continue
			}
			return nil, fmt.Errorf("%v: %w", cmd, err)
		}

		switch frame.Type {
		case protocol.FrameResponse:
			if frame.Sequence != seq {
				log.Warnf("Incorrect response seq: expected=%d actual=%d", seq, frame.Sequence)
				// The correct reply may follow; otherwise the deadline
				// drives a resend.
				continue
			}
			return protocol.ExtractResponse(cmd, frame.Body)
		case protocol.FrameMessage:
			if ev, ok := s.acceptMessage(frame); ok && s.onEvent != nil {
				s.onEvent(ev)
			}
			continue
		default:
			return nil, fmt.Errorf("%v: %w", cmd, protocol.ErrUnexpectedFrame)
		}
	}
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
