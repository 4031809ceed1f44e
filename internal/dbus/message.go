package dbus

import (
	"errors"
	"fmt"
)

// MessageType is the D-Bus message type byte.
type MessageType byte

const (
	TypeInvalid MessageType = iota
	TypeMethodCall
	TypeMethodReturn
	TypeError
	TypeSignal
)

func (t MessageType) String() string {
	switch t {
	case TypeMethodCall:
		return "method_call"
	case TypeMethodReturn:
		return "method_return"
	case TypeError:
		return "error"
	case TypeSignal:
		return "signal"
	default:
		return "invalid"
	}
}

// Header flags.
const (
	FlagNoReplyExpected byte = 1 << iota
	FlagNoAutoStart
)

// Header field codes.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrorName   = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
)

const (
	protocolVersion = 1

	// maxMessageSize mirrors DBUS_MAXIMUM_MESSAGE_LENGTH (2^27).
	maxMessageSize = 1 << 27
)

// Well-known bus driver identity.
const (
	BusName      = "org.freedesktop.DBus"
	BusPath      = "/org/freedesktop/DBus"
	BusInterface = "org.freedesktop.DBus"
)

// RequestName flags and replies (subset).
const (
	NameFlagDoNotQueue uint32 = 4

	RequestNameReplyPrimaryOwner uint32 = 1
)

// ObjectPath distinguishes a D-Bus object path from a plain string in
// message bodies.
type ObjectPath string

// Message is a decoded or to-be-sent D-Bus message. Body holds the
// decoded argument values; the signature is derived from them when
// marshaling and recorded verbatim when unmarshaling.
type Message struct {
	Type        MessageType
	Flags       byte
	Serial      uint32
	Path        ObjectPath
	Interface   string
	Member      string
	ErrorName   string
	ReplySerial uint32
	Destination string
	Sender      string
	Signature   string
	Body        []any
}

// NewMethodCall builds a method call message. The serial is assigned
// by the connection on send.
func NewMethodCall(dest string, path ObjectPath, iface, method string, args ...any) *Message {
	return &Message{
		Type:        TypeMethodCall,
		Path:        path,
		Interface:   iface,
		Member:      method,
		Destination: dest,
		Body:        args,
	}
}

// IsSignal reports whether the message is a signal with the given
// interface and member.
func (m *Message) IsSignal(iface, member string) bool {
	return m.Type == TypeSignal && m.Interface == iface && m.Member == member
}

// isReplyTo reports whether the message answers the given serial.
func (m *Message) isReplyTo(serial uint32) bool {
	return (m.Type == TypeMethodReturn || m.Type == TypeError) && m.ReplySerial == serial
}

// Error is an error-type reply sent by the bus or a peer.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// asError converts an error-type message into an *Error.
func (m *Message) asError() error {
	e := &Error{Name: m.ErrorName}
	if len(m.Body) > 0 {
		if s, ok := m.Body[0].(string); ok {
			e.Message = s
		}
	}
	return e
}

// Transport-level errors.
var (
	ErrTimeout      = errors.New("dbus: call timed out")
	ErrDisconnected = errors.New("dbus: connection closed")
	ErrNoAddress    = errors.New("dbus: bus address not configured")
)

// signatureOf derives the D-Bus signature for a set of Go values.
// Only the types the wpantund vocabulary uses are supported.
func signatureOf(args []any) (string, error) {
	sig := make([]byte, 0, len(args))
	for _, a := range args {
		switch a.(type) {
		case string:
			sig = append(sig, 's')
		case ObjectPath:
			sig = append(sig, 'o')
		case bool:
			sig = append(sig, 'b')
		case byte:
			sig = append(sig, 'y')
		case uint32:
			sig = append(sig, 'u')
		case int32:
			sig = append(sig, 'i')
		case uint64:
			sig = append(sig, 't')
		case []byte:
			sig = append(sig, 'a', 'y')
		default:
			return "", fmt.Errorf("dbus: cannot marshal %T", a)
		}
	}
	return string(sig), nil
}
