package dbus

import (
	"fmt"

	"github.com/danderson/dbus-typed/fragments"
)

// Variant is a value whose type is one of a fixed list of candidate
// types, and is only known once the value has been decoded.
type Variant struct {
	// Index is the position in the codec's candidate list of the
	// candidate that decoded Value.
	Index int
	// Value is the decoded value. Its dynamic type is the value type
	// of the candidate's Codec.
	Value any
}

// VariantValue returns v's value as a T, and reports whether v holds
// a T.
func VariantValue[T any](v Variant) (T, bool) {
	ret, ok := v.Value.(T)
	return ret, ok
}

// An Alternative is one of the candidate types of a variant,
// constructed with [Alt].
type Alternative interface {
	kind() Kind
	signature() Signature
	decode(*Cursor) (any, error)
	encode(*fragments.Encoder, any) error
}

// Alt returns a variant Alternative that decodes and encodes values
// with c.
func Alt[T any](c Codec[T]) Alternative {
	return alt[T]{c}
}

type alt[T any] struct {
	c Codec[T]
}

func (a alt[T]) kind() Kind           { return a.c.Kind() }
func (a alt[T]) signature() Signature { return a.c.Signature() }

func (a alt[T]) decode(c *Cursor) (any, error) {
	return a.c.Decode(c)
}

func (a alt[T]) encode(e *fragments.Encoder, v any) error {
	tv, ok := v.(T)
	if !ok {
		var want T
		return typeErr(fmt.Sprintf("%T", v), "variant candidate with signature %q holds %T values", a.c.Signature(), want)
	}
	return a.c.Encode(e, tv)
}

// VariantOf returns a Codec for variants whose value has one of the
// types of alts.
//
// When decoding, the candidates are tried in order, and the first
// candidate that accepts the wire type of the variant's value decodes
// it. If several candidates accept the same wire type, the earliest
// one always wins.
//
// When encoding, [Variant.Index] selects the candidate that encodes
// [Variant.Value].
func VariantOf(alts ...Alternative) Codec[Variant] {
	return variantCodec{alts}
}

type variantCodec struct {
	alts []Alternative
}

func (variantCodec) Kind() Kind           { return KindVariant }
func (variantCodec) Signature() Signature { return "v" }

func (v variantCodec) Decode(c *Cursor) (Variant, error) {
	if err := checkTag(c, KindVariant); err != nil {
		return Variant{}, err
	}
	inner, err := c.Recurse()
	if err != nil {
		return Variant{}, err
	}
	tag := inner.Tag()
	for i, a := range v.alts {
		if !Accepts(a.kind(), tag) {
			continue
		}
		ret, err := a.decode(inner)
		if err != nil {
			return Variant{}, fmt.Errorf("variant value %s: %w", inner.Signature(), err)
		}
		return Variant{Index: i, Value: ret}, nil
	}
	return Variant{}, VariantExhaustedError{Got: tag}
}

func (v variantCodec) Encode(e *fragments.Encoder, val Variant) error {
	if val.Index < 0 || val.Index >= len(v.alts) {
		return typeErr("Variant", "candidate index %d out of range, variant has %d candidates", val.Index, len(v.alts))
	}
	a := v.alts[val.Index]
	return encodeVariant(e, a.signature(), func() error {
		return a.encode(e, val.Value)
	})
}

func encodeVariant(e *fragments.Encoder, sig Signature, value func() error) error {
	if _, err := ParseSignature(string(sig)); err != nil {
		return typeErr("Variant", "invalid variant value signature: %v", err)
	}
	if !sig.Single() {
		return typeErr("Variant", "variant value signature %q is not a single complete type", sig)
	}
	e.Signature(string(sig))
	return value()
}

// Boxed returns a Codec for variants whose value is always of type
// T.
//
// Boxed is a shorthand for a single candidate [VariantOf], for the
// common case where the caller knows the variant's type in advance,
// such as when reading or writing object properties.
func Boxed[T any](c Codec[T]) Codec[T] {
	return boxed[T]{c}
}

type boxed[T any] struct {
	c Codec[T]
}

func (boxed[T]) Kind() Kind           { return KindVariant }
func (boxed[T]) Signature() Signature { return "v" }

func (b boxed[T]) Decode(c *Cursor) (T, error) {
	var zero T
	if err := checkTag(c, KindVariant); err != nil {
		return zero, err
	}
	inner, err := c.Recurse()
	if err != nil {
		return zero, err
	}
	if tag := inner.Tag(); !Accepts(b.c.Kind(), tag) {
		return zero, VariantExhaustedError{Got: tag}
	}
	ret, err := b.c.Decode(inner)
	if err != nil {
		return zero, fmt.Errorf("variant value %s: %w", inner.Signature(), err)
	}
	return ret, nil
}

func (b boxed[T]) Encode(e *fragments.Encoder, v T) error {
	return encodeVariant(e, b.c.Signature(), func() error {
		return b.c.Encode(e, v)
	})
}
