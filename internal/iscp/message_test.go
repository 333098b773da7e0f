package iscp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestMessage_EncodeLayout(t *testing.T) {
	m, err := NewMessage("PWR", "01")
	if err != nil {
		t.Fatalf("new message: %v", err)
	}

	got := m.Encode()
	want := []byte{
		'I', 'S', 'C', 'P',
		0, 0, 0, 16,
		0, 0, 0, 8,
		0x01, 0, 0, 0,
		'!', '1', 'P', 'W', 'R', '0', '1', 0x0A,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("encode:\n got %v\nwant %v", got, want)
	}
	if len(got) != m.FrameLen() {
		t.Errorf("FrameLen: got %d, want %d", m.FrameLen(), len(got))
	}
}

func TestMessage_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		build func() (Message, error)
	}{
		{"receiver", func() (Message, error) { return NewMessage("MVL", "1A") }},
		{"broadcast", func() (Message, error) { return NewBroadcast("ECN", "QSTN") }},
		{"empty parameter", func() (Message, error) { return NewMessage("PWR", "") }},
		{"long parameter", func() (Message, error) {
			return NewMessage("NTC", "TX-NR636/60128/DX/0009B0123456 with spaces!")
		}},
		{"trailing CR", func() (Message, error) { return NewMessage("NTC", "AB\r") }},
		{"trailing LF", func() (Message, error) { return NewMessage("NTC", "AB\n") }},
		{"only CR LF", func() (Message, error) { return NewMessage("NTC", "\r\n") }},
		{"inner control bytes", func() (Message, error) { return NewMessage("NTC", "A\r\nB\t") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := tt.build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			out, ok := Decode(in.Encode())
			if !ok {
				t.Fatal("decode rejected an encoded message")
			}
			if out != in {
				t.Errorf("round trip: got %+v, want %+v", out, in)
			}
		})
	}
}

func TestNewMessage_CommandValidation(t *testing.T) {
	if _, err := NewMessage("PW", "01"); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("short command: got %v, want ErrInvalidCommand", err)
	}
	if _, err := NewMessage("", ""); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("empty command: got %v, want ErrInvalidCommand", err)
	}
	if _, err := NewMessage("PÜR", "01"); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("non-ASCII command: got %v, want ErrInvalidCommand", err)
	}

	m, err := NewMessage("PWRX", "01")
	if err != nil {
		t.Fatalf("long command: %v", err)
	}
	if m.Command() != "PWR" {
		t.Errorf("Command: got %s, want PWR", m.Command())
	}
}

func TestMessage_EncodeZeroValuePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic encoding a zero Message")
		}
	}()
	Message{}.Encode()
}

func TestDecode_RejectsShortFrames(t *testing.T) {
	m, _ := NewMessage("PWR", "")
	frame := m.Encode()
	for n := 0; n < MinFrameLen; n++ {
		if _, ok := Decode(frame[:n]); ok {
			t.Fatalf("accepted %d byte buffer", n)
		}
	}
	if _, ok := Decode(frame); !ok {
		t.Error("rejected minimum length frame")
	}
}

func TestDecode_RejectsBadMagic(t *testing.T) {
	m, _ := NewMessage("PWR", "01")
	frame := m.Encode()
	frame[0] = 'X'
	if _, ok := Decode(frame); ok {
		t.Error("accepted frame with wrong magic")
	}
	if _, err := DecodeStrict(frame); !errors.Is(err, ErrBadMagic) {
		t.Errorf("strict: got %v, want ErrBadMagic", err)
	}
}

func TestDecode_RejectsMissingStartMarker(t *testing.T) {
	m, _ := NewMessage("PWR", "01")
	frame := m.Encode()
	frame[16] = '?'
	if _, ok := Decode(frame); ok {
		t.Error("accepted frame without start marker")
	}
	if _, err := DecodeStrict(frame); !errors.Is(err, ErrNoStartMarker) {
		t.Errorf("strict: got %v, want ErrNoStartMarker", err)
	}
}

func TestDecode_TrustsBufferLength(t *testing.T) {
	m, _ := NewMessage("ECN", "TX-NR636/60128/DX/0009B0123456")
	frame := m.Encode()

	// Declare a payload far longer than what follows.
	binary.BigEndian.PutUint32(frame[8:12], 500)
	got, ok := Decode(frame)
	if !ok {
		t.Fatal("lenient decode rejected frame with bogus payload length")
	}
	if got.Parameter() != m.Parameter() {
		t.Errorf("Parameter: got %q, want %q", got.Parameter(), m.Parameter())
	}

	if _, err := DecodeStrict(frame); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("strict: got %v, want ErrLengthMismatch", err)
	}
}

func TestDecode_StripsReceiverTerminators(t *testing.T) {
	m, _ := NewMessage("ECN", "TX-NR636/60128/DX/0009B0123456")
	frame := m.Encode()
	frame = append(frame[:len(frame)-1], 0x1A, '\r', '\n')

	got, ok := Decode(frame)
	if !ok {
		t.Fatal("decode failed")
	}
	if got.Parameter() != "TX-NR636/60128/DX/0009B0123456" {
		t.Errorf("Parameter: got %q", got.Parameter())
	}
}

func TestDecode_ReceiverEndings(t *testing.T) {
	m, _ := NewMessage("PWR", "01")
	body := m.Encode()
	body = body[:len(body)-1]

	for _, ending := range []string{"\x1a", "\x1a\r", "\x1a\r\n", "\x1a\n"} {
		frame := append(append([]byte(nil), body...), ending...)
		got, ok := Decode(frame)
		if !ok {
			t.Fatalf("%q: decode failed", ending)
		}
		if got.Parameter() != "01" {
			t.Errorf("%q: Parameter: got %q, want 01", ending, got.Parameter())
		}
	}
}

func TestNewMessage_RejectsEOFInParameter(t *testing.T) {
	for _, p := range []string{"AB\x1a", "\x1a", "A\x1aB"} {
		if _, err := NewMessage("NTC", p); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%q: got %v, want ErrInvalidParameter", p, err)
		}
	}
}

func TestDecode_NoTerminator(t *testing.T) {
	m, _ := NewMessage("MVL", "2A")
	frame := m.Encode()
	got, ok := Decode(frame[:len(frame)-1])
	if !ok {
		t.Fatal("decode failed")
	}
	if got.Parameter() != "2A" {
		t.Errorf("Parameter: got %q, want 2A", got.Parameter())
	}
}

func TestDecodeStrict_Valid(t *testing.T) {
	m, _ := NewBroadcast("ECN", "QSTN")
	got, err := DecodeStrict(m.Encode())
	if err != nil {
		t.Fatalf("strict decode: %v", err)
	}
	if got.Destination() != DestBroadcast {
		t.Errorf("Destination: got %c, want %c", got.Destination(), DestBroadcast)
	}
	if _, err := DecodeStrict([]byte("ISCP")); !errors.Is(err, ErrShortFrame) {
		t.Errorf("short: got %v, want ErrShortFrame", err)
	}
}
