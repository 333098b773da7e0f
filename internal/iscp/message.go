// Package iscp implements the ISCP frame codec and command vocabulary used to
// control network receivers.
package iscp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Destination codes.
const (
	DestReceiver  byte = '1'
	DestBroadcast byte = 'x'
)

const (
	// HeaderLen is the fixed header size announced in every frame.
	HeaderLen = 16

	// CommandLen is the size of the command code.
	CommandLen = 3

	// MinFrameLen is the smallest frame Decode accepts.
	MinFrameLen = HeaderLen + 2 + CommandLen + 1

	version    byte = 0x01
	startMark  byte = '!'
	terminator byte = 0x0A
	eof        byte = 0x1A
)

var magic = [4]byte{'I', 'S', 'C', 'P'}

// Decode errors returned by DecodeStrict.
var (
	ErrShortFrame     = errors.New("iscp: frame shorter than minimum length")
	ErrBadMagic       = errors.New("iscp: magic header mismatch")
	ErrNoStartMarker  = errors.New("iscp: start marker missing")
	ErrLengthMismatch = errors.New("iscp: header length fields do not match frame")
)

// ErrInvalidCommand is returned when a command code is not 3 ASCII bytes.
var ErrInvalidCommand = errors.New("iscp: command must be 3 ASCII characters")

// ErrInvalidParameter is returned for a parameter containing the EOF byte,
// which receivers treat as the end of the message.
var ErrInvalidParameter = errors.New("iscp: parameter must not contain EOF (0x1A)")

// Message is one ISCP frame. Values are built with NewMessage, NewBroadcast
// or Decode, which guarantees a 3 byte command.
type Message struct {
	destination byte
	command     string
	parameter   string
}

// NewMessage returns a message addressed to a receiver.
func NewMessage(command, parameter string) (Message, error) {
	return newMessage(DestReceiver, command, parameter)
}

// NewBroadcast returns a broadcast query message.
func NewBroadcast(command, parameter string) (Message, error) {
	return newMessage(DestBroadcast, command, parameter)
}

func newMessage(dst byte, command, parameter string) (Message, error) {
	if len(command) < CommandLen {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	command = command[:CommandLen]
	for i := 0; i < CommandLen; i++ {
		if command[i] > 0x7F {
			return Message{}, fmt.Errorf("%w: %q", ErrInvalidCommand, command)
		}
	}
	if strings.IndexByte(parameter, eof) >= 0 {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidParameter, parameter)
	}
	return Message{destination: dst, command: command, parameter: parameter}, nil
}

// Destination returns the destination code.
func (m Message) Destination() byte { return m.destination }

// Command returns the 3 character command code.
func (m Message) Command() string { return m.command }

// Parameter returns the parameter payload.
func (m Message) Parameter() string { return m.parameter }

// PayloadLen is the length announced in the header: start marker,
// destination, command, parameter and terminator.
func (m Message) PayloadLen() int {
	return 2 + CommandLen + len(m.parameter) + 1
}

// FrameLen is the total encoded size.
func (m Message) FrameLen() int {
	return HeaderLen + m.PayloadLen()
}

func (m Message) String() string {
	return fmt.Sprintf("%c%s%s", m.destination, m.command, m.parameter)
}

// Encode returns the wire representation of m.
func (m Message) Encode() []byte {
	if len(m.command) != CommandLen {
		panic("iscp: encoding a message that was not constructed")
	}

	buf := make([]byte, m.FrameLen())
	copy(buf[0:4], magic[:])
	binary.BigEndian.PutUint32(buf[4:8], HeaderLen)
	binary.BigEndian.PutUint32(buf[8:12], uint32(m.PayloadLen()))
	buf[12] = version
	// buf[13:16] reserved, already zero
	buf[16] = startMark
	buf[17] = m.destination
	copy(buf[18:21], m.command)
	n := copy(buf[21:], m.parameter)
	buf[21+n] = terminator
	return buf
}

// Decode parses a frame. It reports false for undersized input, a wrong
// magic or a missing start marker. Header length fields are not checked.
func Decode(b []byte) (Message, bool) {
	m, err := decode(b)
	return m, err == nil
}

// DecodeStrict parses a frame like Decode and additionally validates the
// header length fields against the buffer.
func DecodeStrict(b []byte) (Message, error) {
	m, err := decode(b)
	if err != nil {
		return Message{}, err
	}
	if binary.BigEndian.Uint32(b[4:8]) != HeaderLen {
		return Message{}, fmt.Errorf("%w: header length %d", ErrLengthMismatch, binary.BigEndian.Uint32(b[4:8]))
	}
	declared := int(binary.BigEndian.Uint32(b[8:12]))
	if declared > len(b)-HeaderLen {
		return Message{}, fmt.Errorf("%w: payload length %d, have %d", ErrLengthMismatch, declared, len(b)-HeaderLen)
	}
	return m, nil
}

func decode(b []byte) (Message, error) {
	if len(b) < MinFrameLen {
		return Message{}, ErrShortFrame
	}
	if [4]byte(b[0:4]) != magic {
		return Message{}, ErrBadMagic
	}
	if b[16] != startMark {
		return Message{}, ErrNoStartMarker
	}

	return Message{
		destination: b[17],
		command:     string(b[18:21]),
		parameter:   trimTerminator(b[21:]),
	}, nil
}

// trimTerminator cuts the trailing terminator off the bytes after the command.
// Receivers end a message with EOF, optionally followed by CR and LF, so
// everything from the first EOF on is dropped. Without an EOF only the single
// LF written by Encode is removed.
func trimTerminator(rest []byte) string {
	if i := bytes.IndexByte(rest, eof); i >= 0 {
		return string(rest[:i])
	}
	if n := len(rest); n > 0 && rest[n-1] == terminator {
		rest = rest[:n-1]
	}
	return string(rest)
}
