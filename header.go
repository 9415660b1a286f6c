package dbus

import (
	"fmt"

	"github.com/danderson/dbus-typed/fragments"
)

// msgType is the type of a DBus message.
type msgType byte

const (
	msgTypeCall msgType = iota + 1
	msgTypeReturn
	msgTypeError
	msgTypeSignal
)

const (
	flagNoReply byte = 0x1
)

// headerFixedLen is the length of the fixed part of a header, up to
// and including the length of the header field array.
const headerFixedLen = 16

// header is a DBus message header
type header struct {
	// Order is the message's byte order.
	Order fragments.ByteOrder
	// Type is the message's type.
	Type msgType
	// Flags is the message's flag byte.
	Flags byte
	// Version is the DBus protocol version
	Version uint8
	// Length is the length of the message body, not including the
	// header or padding between header and body.
	Length uint32
	// Serial is the serial for this message. It must be non-zero.
	Serial uint32

	// Path is the target object for a call, or the source object
	// for a signal. Required for msgTypeCall and msgTypeSignal.
	Path ObjectPath
	// Interface is the interface to target for a call, or the
	// source interface for a signal. Required for msgTypeSignal.
	Interface string
	// Member is the method name for a call, or signal name for a
	// signal. Required for msgTypeCall and msgTypeSignal.
	Member string
	// ErrName is the name of the error that occurred. Required
	// for msgTypeError.
	ErrName string
	// ReplySerial is the message serial to which this message is
	// replying. Required for msgTypeReturn and msgTypeError.
	ReplySerial uint32
	// Destination is the target for a message.
	Destination string
	// Sender is the client ID of the message sender. The message
	// bus populates this value itself, any sent value is ignored
	// and removed.
	Sender string
	// Signature is the type signature of the message body. Required
	// if a message body is present.
	Signature Signature
	// NumFDs is the number of file descriptors attached to this
	// message.
	NumFDs uint32
}

// Header field codes.
const (
	fieldPath        = 1
	fieldInterface   = 2
	fieldMember      = 3
	fieldErrName     = 4
	fieldReplySerial = 5
	fieldDestination = 6
	fieldSender      = 7
	fieldSignature   = 8
	fieldNumFDs      = 9
)

// headerField is one entry of the header's field array.
type headerField struct {
	Code  uint8
	Value Variant
}

// Candidate indexes of headerValue.
const (
	hvString = iota
	hvPath
	hvUint32
	hvSignature
	hvUnknown
)

var (
	headerValue = VariantOf(Alt(String), Alt(Path), Alt(Uint32), Alt(Sig), Alt(Ignore))

	headerFields = Array(Struct(
		FieldOf(Byte, func(f *headerField) *uint8 { return &f.Code }),
		FieldOf(headerValue, func(f *headerField) *Variant { return &f.Value }),
	))

	// wireHeader is the codec for the header as it appears on the
	// wire. The byte order flag is read and written as a plain byte.
	wireHeader = Struct(
		FieldOf(Byte, func(h *rawHeader) *uint8 { return &h.Order }),
		FieldOf(Byte, func(h *rawHeader) *uint8 { return &h.Type }),
		FieldOf(Byte, func(h *rawHeader) *uint8 { return &h.Flags }),
		FieldOf(Byte, func(h *rawHeader) *uint8 { return &h.Version }),
		FieldOf(Uint32, func(h *rawHeader) *uint32 { return &h.Length }),
		FieldOf(Uint32, func(h *rawHeader) *uint32 { return &h.Serial }),
		FieldOf(headerFields, func(h *rawHeader) *[]headerField { return &h.Fields }),
	)
)

type rawHeader struct {
	Order   uint8
	Type    uint8
	Flags   uint8
	Version uint8
	Length  uint32
	Serial  uint32
	Fields  []headerField
}

// encode appends the wire encoding of h to e, including the padding
// that precedes the message body.
func (h *header) encode(e *fragments.Encoder) error {
	e.Order = h.Order
	raw := rawHeader{
		Order:   fragments.Flag(h.Order),
		Type:    uint8(h.Type),
		Flags:   h.Flags,
		Version: h.Version,
		Length:  h.Length,
		Serial:  h.Serial,
	}
	add := func(code uint8, idx int, v any) {
		raw.Fields = append(raw.Fields, headerField{code, Variant{idx, v}})
	}
	if h.Path != "" {
		add(fieldPath, hvPath, h.Path)
	}
	if h.Interface != "" {
		add(fieldInterface, hvString, h.Interface)
	}
	if h.Member != "" {
		add(fieldMember, hvString, h.Member)
	}
	if h.ErrName != "" {
		add(fieldErrName, hvString, h.ErrName)
	}
	if h.ReplySerial != 0 {
		add(fieldReplySerial, hvUint32, h.ReplySerial)
	}
	if h.Destination != "" {
		add(fieldDestination, hvString, h.Destination)
	}
	if h.Sender != "" {
		add(fieldSender, hvString, h.Sender)
	}
	if !h.Signature.IsZero() {
		add(fieldSignature, hvSignature, h.Signature)
	}
	if h.NumFDs != 0 {
		add(fieldNumFDs, hvUint32, h.NumFDs)
	}
	if err := wireHeader.Encode(e, raw); err != nil {
		return err
	}
	e.Pad(8)
	return nil
}

// decodeHeader decodes a message header from bs, which must contain
// the complete header and field array.
func decodeHeader(bs []byte) (*header, error) {
	if len(bs) < headerFixedLen {
		return nil, fmt.Errorf("short message header (%d bytes)", len(bs))
	}
	d := fragments.Decoder{In: bs}
	if err := d.ByteOrderFlag(); err != nil {
		return nil, err
	}
	raw, err := wireHeader.Decode(NewCursor(bs, d.Order, wireHeader.Signature()))
	if err != nil {
		return nil, fmt.Errorf("decoding message header: %w", err)
	}
	ret := &header{
		Order:   d.Order,
		Type:    msgType(raw.Type),
		Flags:   raw.Flags,
		Version: raw.Version,
		Length:  raw.Length,
		Serial:  raw.Serial,
	}
	for _, f := range raw.Fields {
		if err := ret.setField(f); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// fieldTypes maps header field codes to the headerValue candidate
// that holds the field's value.
var fieldTypes = map[uint8]int{
	fieldPath:        hvPath,
	fieldInterface:   hvString,
	fieldMember:      hvString,
	fieldErrName:     hvString,
	fieldReplySerial: hvUint32,
	fieldDestination: hvString,
	fieldSender:      hvString,
	fieldSignature:   hvSignature,
	fieldNumFDs:      hvUint32,
}

func (h *header) setField(f headerField) error {
	idx, known := fieldTypes[f.Code]
	if !known {
		// Unknown header fields must be ignored.
		return nil
	}
	if f.Value.Index != idx {
		return fmt.Errorf("header field %d has wrong type", f.Code)
	}
	switch v := f.Value.Value.(type) {
	case ObjectPath:
		h.Path = v
	case Signature:
		h.Signature = v
	case uint32:
		if f.Code == fieldReplySerial {
			h.ReplySerial = v
		} else {
			h.NumFDs = v
		}
	case string:
		switch f.Code {
		case fieldInterface:
			h.Interface = v
		case fieldMember:
			h.Member = v
		case fieldErrName:
			h.ErrName = v
		case fieldDestination:
			h.Destination = v
		case fieldSender:
			h.Sender = v
		}
	}
	return nil
}

// Valid checks that the message header is valid for its message type.
func (h *header) Valid() error {
	if h.Serial == 0 {
		return fmt.Errorf("invalid message with zero Serial")
	}
	switch h.Type {
	case 0:
		return fmt.Errorf("invalid message with Type 0")
	case msgTypeCall:
		if h.Path == "" {
			return fmt.Errorf("missing required header field Path")
		}
		if h.Member == "" {
			return fmt.Errorf("missing required header field Member")
		}
	case msgTypeReturn:
		if h.ReplySerial == 0 {
			return fmt.Errorf("missing required header field ReplySerial")
		}
	case msgTypeError:
		if h.ReplySerial == 0 {
			return fmt.Errorf("missing required header field ReplySerial")
		}
		if h.ErrName == "" {
			return fmt.Errorf("missing required header field ErrName")
		}
	case msgTypeSignal:
		if h.Path == "" {
			return fmt.Errorf("missing required header field Path")
		}
		if h.Interface == "" {
			return fmt.Errorf("missing required header field Interface")
		}
		if h.Member == "" {
			return fmt.Errorf("missing required header field Member")
		}
	default:
		// Unknown message types are suspect, but must be
		// tolerated.
	}
	return nil
}

// WantReply reports whether this message requires a response.
func (h *header) WantReply() bool {
	return h.Type == msgTypeCall && h.Flags&flagNoReply == 0
}
