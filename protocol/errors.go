package protocol

import "errors"

// Transport errors terminate the session; the caller reconnects.
var (
	// ErrPeerHangup is returned when the panel emits its in-band modem
	// hangup marker ("+++" / "+++A") instead of a frame header.
	ErrPeerHangup = errors.New("panel hung up connection")

	// ErrConnectionClosed is returned when the panel closes the TCP
	// connection before a full header arrives.
	ErrConnectionClosed = errors.New("panel closed connection")
)

// Framing errors affect a single frame: the session logs them, drops the
// frame and continues.
var (
	ErrBadStartByte = errors.New("unexpected frame start byte")
	ErrBadLength    = errors.New("frame length out of range")
	ErrShortBody    = errors.New("frame body shorter than header length")
	ErrCRCMismatch  = errors.New("frame CRC mismatch")
)

// Protocol and authentication errors fail the command in progress.
var (
	ErrCommandMismatch = errors.New("response for wrong command id")
	ErrUnexpectedFrame = errors.New("unexpected command frame from panel")
	ErrNAK             = errors.New("NAK from panel")
	// ErrSessionExpired is the panel's "Log on NAK": the UDL session timed
	// out and the connection must be re-established.
	ErrSessionExpired = errors.New("panel session timed out")
	ErrBadPayload     = errors.New("response payload malformed")
)
