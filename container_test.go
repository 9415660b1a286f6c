package dbus

import (
	"errors"
	"testing"

	"github.com/danderson/dbus-typed/fragments"
	"github.com/google/go-cmp/cmp"
)

type point struct {
	X, Y int32
}

var pointCodec = Struct(
	FieldOf(Int32, func(p *point) *int32 { return &p.X }),
	FieldOf(Int32, func(p *point) *int32 { return &p.Y }),
)

type shape struct {
	Name   string
	Points []point
	Attrs  map[string]Variant
}

var attrValue = VariantOf(Alt(String), Alt(Uint32), Alt(Array(pointCodec)))

var shapeCodec = Struct(
	FieldOf(String, func(s *shape) *string { return &s.Name }),
	FieldOf(Array(pointCodec), func(s *shape) *[]point { return &s.Points }),
	FieldOf(Map(String, attrValue), func(s *shape) *map[string]Variant { return &s.Attrs }),
)

func TestContainerSignatures(t *testing.T) {
	tests := []struct {
		got  Signature
		want Signature
	}{
		{Array(Byte).Signature(), "ay"},
		{Array(Array(String)).Signature(), "aas"},
		{pointCodec.Signature(), "(ii)"},
		{DictEntry(String, Uint32).Signature(), "{su}"},
		{Map(String, attrValue).Signature(), "a{sv}"},
		{shapeCodec.Signature(), "(sa(ii)a{sv})"},
		{Map(Uint32, Array(shapeCodec)).Signature(), "a{ua(sa(ii)a{sv})}"},
		{Boxed(pointCodec).Signature(), "v"},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("got signature %q, want %q", tc.got, tc.want)
		}
	}
}

func TestContainerRoundTrip(t *testing.T) {
	t.Run("bytes", func(t *testing.T) {
		in := []byte{1, 2, 3}
		got := roundTrip(t, Array(Byte), in)
		if diff := cmp.Diff(got, in); diff != "" {
			t.Errorf("wrong round trip (-got+want):\n%s", diff)
		}
	})

	t.Run("empty", func(t *testing.T) {
		got := roundTrip(t, Array(Uint64), nil)
		if got == nil || len(got) != 0 {
			t.Errorf("empty array decoded as %#v, want empty non-nil slice", got)
		}
	})

	t.Run("nested arrays", func(t *testing.T) {
		in := [][]int16{{1, 2}, {}, {3}}
		got := roundTrip(t, Array(Array(Int16)), in)
		if diff := cmp.Diff(got, in); diff != "" {
			t.Errorf("wrong round trip (-got+want):\n%s", diff)
		}
	})

	t.Run("depth 4", func(t *testing.T) {
		in := map[uint32][]shape{
			1: {
				{
					Name:   "triangle",
					Points: []point{{0, 0}, {4, 0}, {0, -3}},
					Attrs: map[string]Variant{
						"color":  {Index: 0, Value: "red"},
						"weight": {Index: 1, Value: uint32(2)},
						"hull":   {Index: 2, Value: []point{{1, 1}}},
					},
				},
			},
			7: {
				{Name: "dot", Points: []point{{5, 5}}, Attrs: map[string]Variant{}},
				{Name: "empty", Points: []point{}, Attrs: map[string]Variant{}},
			},
		}
		c := Map(Uint32, Array(shapeCodec))
		got := roundTrip(t, c, in)
		if diff := cmp.Diff(got, in); diff != "" {
			t.Errorf("wrong round trip (-got+want):\n%s", diff)
		}
	})
}

func TestArrayTermination(t *testing.T) {
	bs := body(t, func(e *fragments.Encoder) error {
		if err := e.Array(4, func() error {
			e.Uint32(1)
			e.Uint32(2)
			e.Uint32(3)
			return nil
		}); err != nil {
			return err
		}
		e.String("after")
		return nil
	})
	c := NewCursor(bs, fragments.LittleEndian, "aus")
	got, err := Decode(c, Array(Uint32))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, []uint32{1, 2, 3}); diff != "" {
		t.Errorf("wrong array (-got+want):\n%s", diff)
	}
	s, err := Decode(c, String)
	if err != nil {
		t.Fatal(err)
	}
	if s != "after" {
		t.Errorf("value after array = %q, want %q", s, "after")
	}
}

func TestByteArrayMaxLen(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping oversized array in short mode")
	}
	tests := []struct {
		n  int
		ok bool
	}{
		{fragments.MaxArrayLen, true},
		{fragments.MaxArrayLen + 1, false},
	}
	for _, tc := range tests {
		e := fragments.Encoder{Order: fragments.LittleEndian}
		err := Array(Byte).Encode(&e, make([]byte, tc.n))
		if tc.ok && err != nil {
			t.Errorf("encoding %d byte array failed: %v", tc.n, err)
		} else if !tc.ok && err == nil {
			t.Errorf("encoding %d byte array succeeded, want error", tc.n)
		}
	}
}

type kv struct {
	k string
	v uint32
}

func dictBody(t *testing.T, entries ...kv) []byte {
	return body(t, func(e *fragments.Encoder) error {
		return e.Array(8, func() error {
			for _, ent := range entries {
				if err := e.Struct(func() error {
					e.String(ent.k)
					e.Uint32(ent.v)
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func TestMapDuplicateKeys(t *testing.T) {
	bs := dictBody(t, kv{"a", 1}, kv{"b", 2}, kv{"a", 3})
	got, err := Decode(NewCursor(bs, fragments.LittleEndian, "a{su}"), Map(String, Uint32))
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]uint32{"a": 3, "b": 2}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong map (-got+want):\n%s", diff)
	}
}

func TestMapEncodeOrder(t *testing.T) {
	got := encode(t, Map(String, Uint32), map[string]uint32{"c": 3, "a": 1, "b": 2})
	want := dictBody(t, kv{"a", 1}, kv{"b", 2}, kv{"c", 3})
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("map not encoded in key order (-got+want):\n%s", diff)
	}
}

func TestDictEntries(t *testing.T) {
	bs := dictBody(t, kv{"x", 10}, kv{"y", 20})
	got, err := Decode(NewCursor(bs, fragments.LittleEndian, "a{su}"), Array(DictEntry(String, Uint32)))
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry[string, uint32]{{"x", 10}, {"y", 20}}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("wrong entries (-got+want):\n%s", diff)
	}

	// A struct with the same layout is not a dict entry.
	_, err = Decode(NewCursor(bs, fragments.LittleEndian, "a(su)"), Map(String, Uint32))
	var terr TagMismatchError
	if !errors.As(err, &terr) {
		t.Fatalf("decoding a(su) as map got err %v, want TagMismatchError", err)
	}
	if terr.Got != TagStruct {
		t.Errorf("TagMismatchError.Got = %v, want %v", terr.Got, TagStruct)
	}
}

func TestStructArity(t *testing.T) {
	// One field on the wire, two in the codec.
	bs := body(t, func(e *fragments.Encoder) error {
		return e.Struct(func() error {
			e.Uint32(1)
			return nil
		})
	})
	_, err := Decode(NewCursor(bs, fragments.LittleEndian, "(i)"), pointCodec)
	var terr TagMismatchError
	if !errors.As(err, &terr) {
		t.Fatalf("decoding short struct got err %v, want TagMismatchError", err)
	}
	if terr.Got != TagInvalid {
		t.Errorf("TagMismatchError.Got = %v, want end of values", terr.Got)
	}

	// Extra wire fields are ignored.
	bs = body(t, func(e *fragments.Encoder) error {
		return e.Struct(func() error {
			e.Uint32(1)
			e.Uint32(2)
			e.String("extra")
			return nil
		})
	})
	got, err := Decode(NewCursor(bs, fragments.LittleEndian, "(iis)"), pointCodec)
	if err != nil {
		t.Fatalf("decoding long struct: %v", err)
	}
	if want := (point{1, 2}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestContainerErrorContext(t *testing.T) {
	bs := body(t, func(e *fragments.Encoder) error {
		return e.Array(4, func() error {
			e.Uint32(1)
			e.Uint32(5)
			return nil
		})
	})
	_, err := Decode(NewCursor(bs, fragments.LittleEndian, "ab"), Array(Bool))
	if err == nil {
		t.Fatal("decoding invalid bool in array succeeded")
	}
	if got, want := err.Error(), "element 1: invalid boolean value 5"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("%s did not panic", name)
			return
		}
		if _, ok := r.(TypeError); !ok {
			t.Errorf("%s panicked with %v, want TypeError", name, r)
		}
	}()
	f()
}

func TestConstructorPanics(t *testing.T) {
	mustPanic(t, "Struct()", func() { Struct[point]() })
	mustPanic(t, "Map with struct key", func() { Map(pointCodec, String) })
	mustPanic(t, "DictEntry with variant key", func() { DictEntry(VariantOf(Alt(String)), String) })
}
