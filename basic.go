package dbus

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/danderson/dbus-typed/fragments"
)

// UnixFD is a file descriptor carried by a message. Its value is an
// index into the list of files attached to the message.
type UnixFD uint32

// Codecs for the DBus basic types.
var (
	Byte   Codec[uint8]      = ordered(KindByte, (*fragments.Decoder).Uint8, noErr((*fragments.Encoder).Uint8))
	Bool   Codec[bool]       = boolCodec
	Int16  Codec[int16]      = integer[uint16, int16](KindInt16, (*fragments.Decoder).Uint16, (*fragments.Encoder).Uint16)
	Uint16 Codec[uint16]     = ordered(KindUint16, (*fragments.Decoder).Uint16, noErr((*fragments.Encoder).Uint16))
	Int32  Codec[int32]      = integer[uint32, int32](KindInt32, (*fragments.Decoder).Uint32, (*fragments.Encoder).Uint32)
	Uint32 Codec[uint32]     = ordered(KindUint32, (*fragments.Decoder).Uint32, noErr((*fragments.Encoder).Uint32))
	Int64  Codec[int64]      = integer[uint64, int64](KindInt64, (*fragments.Decoder).Uint64, (*fragments.Encoder).Uint64)
	Uint64 Codec[uint64]     = ordered(KindUint64, (*fragments.Decoder).Uint64, noErr((*fragments.Encoder).Uint64))
	Double Codec[float64]    = ordered(KindDouble, readDouble, noErr(writeDouble))
	FD     Codec[UnixFD]     = integer[uint32, UnixFD](KindUnixFD, (*fragments.Decoder).Uint32, (*fragments.Encoder).Uint32)
	String Codec[string]     = ordered(KindString, readString, writeString)
	Path   Codec[ObjectPath] = ordered(KindObjectPath, readPath, writePath)
	Sig    Codec[Signature]  = ordered(KindSignature, readSignature, writeSignature)
)

// basicCodec is the Codec for a DBus basic type. Only basic codecs
// can be used as the key of a dict entry.
type basicCodec[T comparable] struct {
	kind    Kind
	read    func(*fragments.Decoder) (T, error)
	write   func(*fragments.Encoder, T) error
	compare func(a, b T) int
}

func ordered[T cmp.Ordered](kind Kind, read func(*fragments.Decoder) (T, error), write func(*fragments.Encoder, T) error) *basicCodec[T] {
	return &basicCodec[T]{
		kind:    kind,
		read:    read,
		write:   write,
		compare: cmp.Compare[T],
	}
}

// integer returns a basicCodec for T, whose wire representation is
// the same size unsigned integer U.
func integer[U uint16 | uint32 | uint64, T ~int16 | ~int32 | ~int64 | ~uint32](kind Kind, read func(*fragments.Decoder) (U, error), write func(*fragments.Encoder, U)) *basicCodec[T] {
	return ordered(kind,
		func(d *fragments.Decoder) (T, error) {
			u, err := read(d)
			if err != nil {
				return 0, err
			}
			return T(u), nil
		},
		func(e *fragments.Encoder, v T) error {
			write(e, U(v))
			return nil
		})
}

func noErr[T any](write func(*fragments.Encoder, T)) func(*fragments.Encoder, T) error {
	return func(e *fragments.Encoder, v T) error {
		write(e, v)
		return nil
	}
}

func (b *basicCodec[T]) Kind() Kind { return b.kind }

func (b *basicCodec[T]) Signature() Signature {
	return Signature(TagFor(b.kind).String())
}

func (b *basicCodec[T]) Decode(c *Cursor) (T, error) {
	if err := checkTag(c, b.kind); err != nil {
		var zero T
		return zero, err
	}
	d := c.peek()
	return b.read(&d)
}

func (b *basicCodec[T]) Encode(e *fragments.Encoder, v T) error {
	return b.write(e, v)
}

var boolCodec = &basicCodec[bool]{
	kind: KindBool,
	read: func(d *fragments.Decoder) (bool, error) {
		u, err := d.Uint32()
		if err != nil {
			return false, err
		}
		switch u {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return false, fmt.Errorf("invalid boolean value %d", u)
		}
	},
	write: func(e *fragments.Encoder, v bool) error {
		if v {
			e.Uint32(1)
		} else {
			e.Uint32(0)
		}
		return nil
	},
	compare: func(a, b bool) int {
		switch {
		case a == b:
			return 0
		case !a:
			return -1
		default:
			return 1
		}
	},
}

func readDouble(d *fragments.Decoder) (float64, error) {
	u, err := d.Uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(u), nil
}

func writeDouble(e *fragments.Encoder, f float64) {
	e.Uint64(math.Float64bits(f))
}

func validString(s string) error {
	if !utf8.ValidString(s) {
		return errors.New("string is not valid UTF-8")
	}
	if strings.IndexByte(s, 0) >= 0 {
		return errors.New("string contains NUL byte")
	}
	return nil
}

func readString(d *fragments.Decoder) (string, error) {
	s, err := d.String()
	if err != nil {
		return "", err
	}
	if err := validString(s); err != nil {
		return "", err
	}
	return s, nil
}

func writeString(e *fragments.Encoder, s string) error {
	if err := validString(s); err != nil {
		return err
	}
	e.String(s)
	return nil
}

func readPath(d *fragments.Decoder) (ObjectPath, error) {
	s, err := d.String()
	if err != nil {
		return "", err
	}
	p := ObjectPath(s)
	if err := p.Valid(); err != nil {
		return "", err
	}
	return p, nil
}

func writePath(e *fragments.Encoder, p ObjectPath) error {
	if err := p.Valid(); err != nil {
		return err
	}
	e.String(string(p))
	return nil
}

func readSignature(d *fragments.Decoder) (Signature, error) {
	s, err := d.Signature()
	if err != nil {
		return "", err
	}
	return ParseSignature(s)
}

func writeSignature(e *fragments.Encoder, s Signature) error {
	if _, err := ParseSignature(string(s)); err != nil {
		return err
	}
	e.Signature(string(s))
	return nil
}
