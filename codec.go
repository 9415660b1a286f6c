package dbus

import (
	"github.com/danderson/dbus-typed/fragments"
)

// A Codec reads and writes values of type T in the DBus wire format.
//
// Codecs are immutable, and safe for concurrent use. The codecs for
// DBus's basic types are provided as package variables, and codecs
// for container types are constructed from the codecs of their
// contents with [Array], [Struct], [DictEntry], [Map], [VariantOf]
// and [Boxed].
type Codec[T any] interface {
	// Kind returns the kind of value the codec handles.
	Kind() Kind
	// Signature returns the type signature of the codec's values.
	Signature() Signature
	// Decode reads a T from the value under the cursor, without
	// moving the cursor.
	Decode(*Cursor) (T, error)
	// Encode appends the wire encoding of v to e.
	Encode(e *fragments.Encoder, v T) error
}

// Decode reads a T from the value under c, and moves c to the next
// value.
func Decode[T any](c *Cursor, codec Codec[T]) (T, error) {
	ret, err := codec.Decode(c)
	if err != nil {
		var zero T
		return zero, err
	}
	if codec.Kind() == KindIgnore && c.Done() {
		return ret, nil
	}
	if err := c.Next(); err != nil {
		var zero T
		return zero, err
	}
	return ret, nil
}

// Unit is the value produced by the [Ignore] codec.
type Unit struct{}

// Ignore is a Codec that skips over a value of any type without
// decoding it.
//
// Ignore cannot encode values.
var Ignore Codec[Unit] = ignoreCodec{}

type ignoreCodec struct{}

func (ignoreCodec) Kind() Kind                   { return KindIgnore }
func (ignoreCodec) Signature() Signature         { return "" }
func (ignoreCodec) Decode(*Cursor) (Unit, error) { return Unit{}, nil }

func (ignoreCodec) Encode(*fragments.Encoder, Unit) error {
	return typeErr("Unit", "ignored values cannot be encoded")
}
