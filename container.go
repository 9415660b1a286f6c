package dbus

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/danderson/dbus-typed/fragments"
)

// Array returns a Codec for arrays of elements handled by elem.
//
// Decoding an empty array produces an empty, non-nil slice.
func Array[T any](elem Codec[T]) Codec[[]T] {
	return arrayCodec[T]{elem}
}

type arrayCodec[T any] struct {
	elem Codec[T]
}

func (arrayCodec[T]) Kind() Kind { return KindArray }

func (a arrayCodec[T]) Signature() Signature {
	return "a" + a.elem.Signature()
}

// isByteArray reports whether the codec is Array(Byte), which gets
// copied in bulk rather than element by element.
func (a arrayCodec[T]) isByteArray() bool {
	b, ok := any(a.elem).(*basicCodec[uint8])
	return ok && b.kind == KindByte
}

func (a arrayCodec[T]) Decode(c *Cursor) ([]T, error) {
	if err := checkTag(c, KindArray); err != nil {
		return nil, err
	}

	if a.isByteArray() && c.Signature() == "ay" {
		d := c.peek()
		bs, err := d.Bytes()
		if err != nil {
			return nil, err
		}
		ret := make([]byte, len(bs))
		copy(ret, bs)
		return any(ret).([]T), nil
	}

	elems, err := c.Recurse()
	if err != nil {
		return nil, err
	}
	ret := []T{}
	for i := 0; !elems.Done(); i++ {
		v, err := Decode(elems, a.elem)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		ret = append(ret, v)
	}
	return ret, nil
}

func (a arrayCodec[T]) Encode(e *fragments.Encoder, vs []T) error {
	if a.isByteArray() {
		bs := any(vs).([]byte)
		if len(bs) > fragments.MaxArrayLen {
			return fmt.Errorf("array length %d exceeds maximum %d", len(bs), fragments.MaxArrayLen)
		}
		e.Bytes(bs)
		return nil
	}
	sig := a.elem.Signature()
	if sig.IsZero() {
		return typeErr("[]"+a.elem.Kind().String(), "array element type has no signature")
	}
	return e.Array(alignOf(sig[0]), func() error {
		for i, v := range vs {
			if err := a.elem.Encode(e, v); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	})
}

// A Field is one field of a struct, constructed with [FieldOf].
type Field[S any] interface {
	signature() Signature
	decode(*Cursor, *S) error
	encode(*fragments.Encoder, *S) error
}

// FieldOf returns a struct Field whose value is handled by c, and
// which is stored in the part of S returned by get.
func FieldOf[S, F any](c Codec[F], get func(*S) *F) Field[S] {
	return field[S, F]{c, get}
}

type field[S, F any] struct {
	c   Codec[F]
	get func(*S) *F
}

func (f field[S, F]) signature() Signature { return f.c.Signature() }

func (f field[S, F]) decode(c *Cursor, s *S) error {
	v, err := Decode(c, f.c)
	if err != nil {
		return err
	}
	*f.get(s) = v
	return nil
}

func (f field[S, F]) encode(e *fragments.Encoder, s *S) error {
	return f.c.Encode(e, *f.get(s))
}

// Struct returns a Codec for the struct type S, whose DBus fields are
// described by fields, in wire order.
//
// Struct panics if fields is empty, since DBus does not allow empty
// structs.
func Struct[S any](fields ...Field[S]) Codec[S] {
	if len(fields) == 0 {
		var zero S
		panic(typeErr(fmt.Sprintf("%T", zero), "structs must have at least one field"))
	}
	var sig strings.Builder
	sig.WriteByte('(')
	for _, f := range fields {
		sig.WriteString(string(f.signature()))
	}
	sig.WriteByte(')')
	return structCodec[S]{
		fields: fields,
		sig:    Signature(sig.String()),
	}
}

type structCodec[S any] struct {
	fields []Field[S]
	sig    Signature
}

func (structCodec[S]) Kind() Kind             { return KindStruct }
func (s structCodec[S]) Signature() Signature { return s.sig }

func (s structCodec[S]) Decode(c *Cursor) (S, error) {
	var ret S
	if err := checkTag(c, KindStruct); err != nil {
		return ret, err
	}
	inner, err := c.Recurse()
	if err != nil {
		return ret, err
	}
	for i, f := range s.fields {
		if err := f.decode(inner, &ret); err != nil {
			var zero S
			return zero, fmt.Errorf("field %d: %w", i, err)
		}
	}
	return ret, nil
}

func (s structCodec[S]) Encode(e *fragments.Encoder, v S) error {
	return e.Struct(func() error {
		for i, f := range s.fields {
			if err := f.encode(e, &v); err != nil {
				return fmt.Errorf("field %d: %w", i, err)
			}
		}
		return nil
	})
}

// Entry is a key/value pair, as stored in a DBus dict entry.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// DictEntry returns a Codec for dict entries whose key and value are
// handled by k and v.
//
// Dict entries only appear as the elements of arrays. Most callers
// want [Map] instead.
//
// DictEntry panics if k is not the Codec of a DBus basic type.
func DictEntry[K comparable, V any](k Codec[K], v Codec[V]) Codec[Entry[K, V]] {
	return newEntryCodec(k, v)
}

func newEntryCodec[K comparable, V any](k Codec[K], v Codec[V]) entryCodec[K, V] {
	kb, ok := any(k).(*basicCodec[K])
	if !ok {
		panic(typeErr(fmt.Sprintf("dict entry key %s", k.Kind()), "dict entry keys must be basic types"))
	}
	return entryCodec[K, V]{kb, v}
}

type entryCodec[K comparable, V any] struct {
	k *basicCodec[K]
	v Codec[V]
}

func (entryCodec[K, V]) Kind() Kind { return KindDictEntry }

func (d entryCodec[K, V]) Signature() Signature {
	return "{" + d.k.Signature() + d.v.Signature() + "}"
}

func (d entryCodec[K, V]) Decode(c *Cursor) (Entry[K, V], error) {
	var ret Entry[K, V]
	if err := checkTag(c, KindDictEntry); err != nil {
		return ret, err
	}
	inner, err := c.Recurse()
	if err != nil {
		return ret, err
	}
	if ret.Key, err = Decode(inner, Codec[K](d.k)); err != nil {
		return Entry[K, V]{}, fmt.Errorf("key: %w", err)
	}
	if ret.Value, err = Decode(inner, d.v); err != nil {
		return Entry[K, V]{}, fmt.Errorf("value of key %v: %w", ret.Key, err)
	}
	return ret, nil
}

func (d entryCodec[K, V]) Encode(e *fragments.Encoder, v Entry[K, V]) error {
	return e.Struct(func() error {
		if err := d.k.Encode(e, v.Key); err != nil {
			return fmt.Errorf("key: %w", err)
		}
		if err := d.v.Encode(e, v.Value); err != nil {
			return fmt.Errorf("value of key %v: %w", v.Key, err)
		}
		return nil
	})
}

// Map returns a Codec for maps, encoded as arrays of dict entries
// whose key and value are handled by k and v.
//
// When decoding, later entries replace earlier entries with the same
// key. When encoding, entries are written in ascending key order.
//
// Map panics if k is not the Codec of a DBus basic type.
func Map[K comparable, V any](k Codec[K], v Codec[V]) Codec[map[K]V] {
	return mapCodec[K, V]{newEntryCodec(k, v)}
}

type mapCodec[K comparable, V any] struct {
	entry entryCodec[K, V]
}

func (mapCodec[K, V]) Kind() Kind { return KindMap }

func (m mapCodec[K, V]) Signature() Signature {
	return "a" + m.entry.Signature()
}

func (m mapCodec[K, V]) Decode(c *Cursor) (map[K]V, error) {
	if err := checkTag(c, KindMap); err != nil {
		return nil, err
	}
	elems, err := c.Recurse()
	if err != nil {
		return nil, err
	}
	if got := tagOf(elems.elem[0]); got != TagDictEntry {
		return nil, TagMismatchError{Got: got, Want: []Tag{TagDictEntry}}
	}
	ret := map[K]V{}
	for i := 0; !elems.Done(); i++ {
		ent, err := Decode(elems, Codec[Entry[K, V]](m.entry))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		ret[ent.Key] = ent.Value
	}
	return ret, nil
}

func (m mapCodec[K, V]) Encode(e *fragments.Encoder, v map[K]V) error {
	keys := slices.SortedFunc(maps.Keys(v), m.entry.k.compare)
	return e.Array(8, func() error {
		for i, k := range keys {
			if err := m.entry.Encode(e, Entry[K, V]{k, v[k]}); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		return nil
	})
}
