package dbus

import (
	"encoding/binary"
	"fmt"
)

type decoder struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

func (d *decoder) align(n int) error {
	next := (d.pos + n - 1) &^ (n - 1)
	if next > len(d.data) {
		return errTruncated
	}
	d.pos = next
	return nil
}

func (d *decoder) need(n int) error {
	if d.pos+n > len(d.data) {
		return errTruncated
	}
	return nil
}

func (d *decoder) byte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) uint32() (uint32, error) {
	if err := d.align(4); err != nil {
		return 0, err
	}
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := d.order.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) uint64() (uint64, error) {
	if err := d.align(8); err != nil {
		return 0, err
	}
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := d.order.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) str() (string, error) {
	n, err := d.uint32()
	if err != nil {
		return "", err
	}
	if err := d.need(int(n) + 1); err != nil {
		return "", err
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n) + 1 // skip nul
	return s, nil
}

func (d *decoder) sig() (string, error) {
	n, err := d.byte()
	if err != nil {
		return "", err
	}
	if err := d.need(int(n) + 1); err != nil {
		return "", err
	}
	s := string(d.data[d.pos : d.pos+int(n)])
	d.pos += int(n) + 1
	return s, nil
}

var errTruncated = fmt.Errorf("dbus: truncated message")

// value decodes one complete type from sig, returning the value and
// the unconsumed remainder of the signature. Variants are unwrapped.
func (d *decoder) value(sig string) (any, string, error) {
	if sig == "" {
		return nil, "", fmt.Errorf("dbus: empty signature")
	}
	switch sig[0] {
	case 's', 'o':
		v, err := d.str()
		return v, sig[1:], err
	case 'g':
		v, err := d.sig()
		return v, sig[1:], err
	case 'y':
		v, err := d.byte()
		return v, sig[1:], err
	case 'b':
		u, err := d.uint32()
		return u != 0, sig[1:], err
	case 'u':
		v, err := d.uint32()
		return v, sig[1:], err
	case 'i':
		v, err := d.uint32()
		return int32(v), sig[1:], err
	case 't':
		v, err := d.uint64()
		return v, sig[1:], err
	case 'x':
		v, err := d.uint64()
		return int64(v), sig[1:], err
	case 'v':
		inner, err := d.sig()
		if err != nil {
			return nil, "", err
		}
		v, rest, err := d.value(inner)
		if err != nil {
			return nil, "", err
		}
		if rest != "" {
			return nil, "", fmt.Errorf("dbus: variant with compound signature %q", inner)
		}
		return v, sig[1:], nil
	case 'a':
		if len(sig) < 2 {
			return nil, "", fmt.Errorf("dbus: bare array signature")
		}
		n, err := d.uint32()
		if err != nil {
			return nil, "", err
		}
		if sig[1] == 'y' {
			if err := d.need(int(n)); err != nil {
				return nil, "", err
			}
			v := make([]byte, n)
			copy(v, d.data[d.pos:])
			d.pos += int(n)
			return v, sig[2:], nil
		}
		return nil, "", fmt.Errorf("dbus: unsupported array element %q", sig[1:])
	default:
		return nil, "", fmt.Errorf("dbus: unsupported type %q", sig[0])
	}
}

// messageSize inspects a partial wire buffer and reports the total
// size of the first message, or 0 if more data is needed.
func messageSize(data []byte) (int, error) {
	if len(data) < 16 {
		return 0, nil
	}
	var order binary.ByteOrder
	switch data[0] {
	case 'l':
		order = binary.LittleEndian
	case 'B':
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("dbus: bad endianness byte %#x", data[0])
	}
	bodyLen := int(order.Uint32(data[4:]))
	fieldsLen := int(order.Uint32(data[12:]))
	headerLen := (16 + fieldsLen + 7) &^ 7
	total := headerLen + bodyLen
	if total > maxMessageSize || total < 16 {
		return 0, fmt.Errorf("dbus: message size %d out of range", total)
	}
	if len(data) < total {
		return 0, nil
	}
	return total, nil
}

// Unmarshal decodes one complete wire message.
func Unmarshal(data []byte) (*Message, error) {
	total, err := messageSize(data)
	if err != nil {
		return nil, err
	}
	if total == 0 || total > len(data) {
		return nil, errTruncated
	}

	d := &decoder{data: data[:total]}
	switch data[0] {
	case 'l':
		d.order = binary.LittleEndian
	default:
		d.order = binary.BigEndian
	}
	d.pos = 1

	m := &Message{}
	mt, _ := d.byte()
	m.Type = MessageType(mt)
	m.Flags, _ = d.byte()
	if ver, _ := d.byte(); ver != protocolVersion {
		return nil, fmt.Errorf("dbus: unsupported protocol version %d", ver)
	}
	bodyLen, _ := d.uint32()
	m.Serial, err = d.uint32()
	if err != nil {
		return nil, err
	}

	fieldsLen, err := d.uint32()
	if err != nil {
		return nil, err
	}
	fieldsEnd := d.pos + int(fieldsLen)
	if fieldsEnd > len(d.data) {
		return nil, errTruncated
	}
	for d.pos < fieldsEnd {
		if err := d.align(8); err != nil {
			return nil, err
		}
		if d.pos >= fieldsEnd {
			break
		}
		code, err := d.byte()
		if err != nil {
			return nil, err
		}
		inner, err := d.sig()
		if err != nil {
			return nil, err
		}
		v, rest, err := d.value(inner)
		if err != nil {
			return nil, err
		}
		if rest != "" {
			return nil, fmt.Errorf("dbus: header field %d with compound signature", code)
		}
		switch code {
		case fieldPath:
			s, _ := v.(string)
			m.Path = ObjectPath(s)
		case fieldInterface:
			m.Interface, _ = v.(string)
		case fieldMember:
			m.Member, _ = v.(string)
		case fieldErrorName:
			m.ErrorName, _ = v.(string)
		case fieldReplySerial:
			m.ReplySerial, _ = v.(uint32)
		case fieldDestination:
			m.Destination, _ = v.(string)
		case fieldSender:
			m.Sender, _ = v.(string)
		case fieldSignature:
			m.Signature, _ = v.(string)
		default:
			// Unknown header fields are ignored, as required.
		}
	}

	// Body starts at the padded header boundary.
	d.pos = (fieldsEnd + 7) &^ 7
	if bodyLen == 0 {
		return m, nil
	}
	if d.pos+int(bodyLen) > len(d.data) {
		return nil, errTruncated
	}
	sig := m.Signature
	for sig != "" {
		v, rest, err := d.value(sig)
		if err != nil {
			return nil, err
		}
		m.Body = append(m.Body, v)
		sig = rest
	}
	return m, nil
}
