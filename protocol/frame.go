package protocol

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	headerLength = 4
	headerStart  = 't'

	// Total length is a single byte and includes header and trailing CRC,
	// which caps command bodies well below the panel's own limits.
	maxBodyLength = 255 - headerLength - 1
)

// FrameType distinguishes the three packet kinds sharing the connection.
type FrameType byte

const (
	FrameCommand  FrameType = 'C'
	FrameResponse FrameType = 'R'
	FrameMessage  FrameType = 'M' // unsolicited message
)

func (t FrameType) String() string {
	switch t {
	case FrameCommand:
		return "command"
	case FrameResponse:
		return "response"
	case FrameMessage:
		return "message"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// Frame is one de-framed packet: type, sequence number and body, with the
// header and CRC stripped. The framer never interprets the body.
type Frame struct {
	Type     FrameType
	Sequence byte
	Body     []byte
}

// Framer reads and writes length-prefixed, CRC-checked packets on a byte
// transport. It owns the outgoing sequence counter; responses from the panel
// echo the sequence of the command they answer.
type Framer struct {
	conn    net.Conn
	timeout time.Duration
	nextSeq byte
}

func NewFramer(conn net.Conn, timeout time.Duration) *Framer {
	return &Framer{conn: conn, timeout: timeout}
}

// nextSequence returns the current outgoing sequence number and advances the
// wrapping 8-bit counter.
func (f *Framer) nextSequence() byte {
	seq := f.nextSeq
	f.nextSeq++
	return seq
}

// WriteCommand frames body as a command packet with the next outgoing
// sequence number and writes it in a single send. It returns the sequence
// used and the raw bytes so a retry can resend them unchanged.
func (f *Framer) WriteCommand(body []byte) (byte, []byte, error) {
	if len(body) > maxBodyLength {
		return 0, nil, fmt.Errorf("%w: body %d bytes", ErrBadLength, len(body))
	}
	seq := f.nextSequence()
	raw := make([]byte, 0, headerLength+len(body)+1)
	raw = append(raw, headerStart, byte(FrameCommand), byte(headerLength+len(body)+1), seq)
	raw = append(raw, body...)
	raw = append(raw, Checksum(raw))
	log.Debugf("tx seq=%d: % x", seq, raw)
	if err := f.Resend(raw); err != nil {
		return 0, nil, err
	}
	return seq, raw, nil
}

// Resend writes previously framed bytes unchanged, keeping the original
// sequence number as the panel expects on a retry.
func (f *Framer) Resend(raw []byte) error {
	if err := f.conn.SetWriteDeadline(time.Now().Add(f.timeout)); err != nil {
		return err
	}
	if _, err := f.conn.Write(raw); err != nil {
		return fmt.Errorf("write to panel: %w", err)
	}
	return nil
}

// Read returns the next frame, waiting at most the framer's receive timeout.
func (f *Framer) Read() (*Frame, error) {
	return f.ReadUntil(time.Now().Add(f.timeout))
}

// ReadUntil returns the next frame, waiting no later than deadline. Timeouts
// surface as net.Error with Timeout() true so the caller can drive retries
// and idle keepalive.
func (f *Framer) ReadUntil(deadline time.Time) (*Frame, error) {
	if err := f.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	header := make([]byte, headerLength)
	n, err := io.ReadFull(f.conn, header)
	if bytes.HasPrefix(header[:n], []byte("+++")) {
		// In-band modem hangup: "+++" possibly followed by "A". The panel
		// does this when it decides the session is over.
		return nil, ErrPeerHangup
	}
	if err != nil {
		if isTimeout(err) && n == 0 {
			return nil, err
		}
		if n < headerLength {
			return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		return nil, err
	}

	if header[0] != headerStart {
		return nil, fmt.Errorf("%w: 0x%02x", ErrBadStartByte, header[0])
	}
	total := int(header[2])
	if total < headerLength+1 {
		return nil, fmt.Errorf("%w: total %d", ErrBadLength, total)
	}

	rest := make([]byte, total-headerLength)
	if _, err := io.ReadFull(f.conn, rest); err != nil {
		// A truncated body loses only this frame; let the caller log it
		// and keep the session alive.
		return nil, fmt.Errorf("%w: % x", ErrShortBody, rest)
	}

	body, crc := rest[:len(rest)-1], rest[len(rest)-1]
	if want := checksumUpdate(checksumUpdate(0xFF, header), body); crc != want {
		return nil, fmt.Errorf("%w: expected 0x%02x got 0x%02x", ErrCRCMismatch, want, crc)
	}

	log.Debugf("rx %s seq=%d: % x", FrameType(header[1]), header[3], body)
	return &Frame{Type: FrameType(header[1]), Sequence: header[3], Body: body}, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
