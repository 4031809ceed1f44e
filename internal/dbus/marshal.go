package dbus

import (
	"encoding/binary"
	"fmt"
)

// Messages are always emitted little-endian; the decoder honors the
// endianness byte of whatever the peer sends.
const littleEndian = 'l'

type encoder struct {
	buf []byte
}

// align pads the buffer with zero bytes to the next n-byte boundary.
func (e *encoder) align(n int) {
	for len(e.buf)%n != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) byte(v byte) {
	e.buf = append(e.buf, v)
}

func (e *encoder) uint32(v uint32) {
	e.align(4)
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) uint64(v uint64) {
	e.align(8)
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// str writes a string or object path: u32 length, bytes, nul.
func (e *encoder) str(s string) {
	e.uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

// sig writes a signature: u8 length, bytes, nul.
func (e *encoder) sig(s string) {
	e.byte(byte(len(s)))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
}

// value writes one basic or array value.
func (e *encoder) value(v any) error {
	switch x := v.(type) {
	case string:
		e.str(x)
	case ObjectPath:
		e.str(string(x))
	case bool:
		u := uint32(0)
		if x {
			u = 1
		}
		e.uint32(u)
	case byte:
		e.byte(x)
	case uint32:
		e.uint32(x)
	case int32:
		e.uint32(uint32(x))
	case uint64:
		e.uint64(x)
	case []byte:
		e.uint32(uint32(len(x)))
		e.buf = append(e.buf, x...)
	default:
		return fmt.Errorf("dbus: cannot marshal %T", v)
	}
	return nil
}

// headerField writes one (byte, variant) struct of the header field
// array, 8-aligned.
func (e *encoder) headerField(code byte, sig string, v any) error {
	e.align(8)
	e.byte(code)
	e.sig(sig)
	return e.value(v)
}

// Marshal serializes a message. The caller owns serial assignment.
func Marshal(m *Message) ([]byte, error) {
	bodySig, err := signatureOf(m.Body)
	if err != nil {
		return nil, err
	}

	// Body first: it starts 8-aligned in the stream, so a fresh
	// buffer has the right alignment base.
	body := &encoder{}
	for _, a := range m.Body {
		if err := body.value(a); err != nil {
			return nil, err
		}
	}

	e := &encoder{buf: make([]byte, 0, 128+len(body.buf))}
	e.byte(littleEndian)
	e.byte(byte(m.Type))
	e.byte(m.Flags)
	e.byte(protocolVersion)
	e.uint32(uint32(len(body.buf)))
	e.uint32(m.Serial)

	// Header field array. Its u32 length excludes the padding that
	// follows the array but includes inter-element padding.
	e.uint32(0) // placeholder
	lenOff := len(e.buf) - 4
	arrStart := len(e.buf)

	if m.Path != "" {
		if err := e.headerField(fieldPath, "o", m.Path); err != nil {
			return nil, err
		}
	}
	if m.Interface != "" {
		if err := e.headerField(fieldInterface, "s", m.Interface); err != nil {
			return nil, err
		}
	}
	if m.Member != "" {
		if err := e.headerField(fieldMember, "s", m.Member); err != nil {
			return nil, err
		}
	}
	if m.ErrorName != "" {
		if err := e.headerField(fieldErrorName, "s", m.ErrorName); err != nil {
			return nil, err
		}
	}
	if m.Type == TypeMethodReturn || m.Type == TypeError {
		if err := e.headerField(fieldReplySerial, "u", m.ReplySerial); err != nil {
			return nil, err
		}
	}
	if m.Destination != "" {
		if err := e.headerField(fieldDestination, "s", m.Destination); err != nil {
			return nil, err
		}
	}
	if m.Sender != "" {
		if err := e.headerField(fieldSender, "s", m.Sender); err != nil {
			return nil, err
		}
	}
	if bodySig != "" {
		e.align(8)
		e.byte(fieldSignature)
		e.sig("g")
		e.sig(bodySig)
	}

	binary.LittleEndian.PutUint32(e.buf[lenOff:], uint32(len(e.buf)-arrStart))

	// Header is padded to an 8-byte boundary before the body.
	e.align(8)
	e.buf = append(e.buf, body.buf...)

	if len(e.buf) > maxMessageSize {
		return nil, fmt.Errorf("dbus: message exceeds maximum size")
	}
	return e.buf, nil
}
