package dbus

import "testing"

func TestTagFor(t *testing.T) {
	tests := []struct {
		k    Kind
		want Tag
	}{
		{KindByte, TagByte},
		{KindBool, TagBoolean},
		{KindInt16, TagInt16},
		{KindUint16, TagUint16},
		{KindInt32, TagInt32},
		{KindUint32, TagUint32},
		{KindInt64, TagInt64},
		{KindUint64, TagUint64},
		{KindDouble, TagDouble},
		{KindUnixFD, TagUnixFD},
		{KindString, TagString},
		{KindObjectPath, TagObjectPath},
		{KindSignature, TagSignature},
		{KindVariant, TagVariant},
		{KindArray, TagArray},
		{KindStruct, TagStruct},
		{KindDictEntry, TagDictEntry},
		{KindMap, TagArray},
		{KindIgnore, TagInvalid},
		{KindInvalid, TagInvalid},
		{Kind(200), TagInvalid},
	}
	for _, tc := range tests {
		if got := TagFor(tc.k); got != tc.want {
			t.Errorf("TagFor(%v) = %v, want %v", tc.k, got, tc.want)
		}
	}
}

func TestAccepts(t *testing.T) {
	allTags := []Tag{
		TagInvalid, TagByte, TagBoolean, TagInt16, TagUint16, TagInt32,
		TagUint32, TagInt64, TagUint64, TagDouble, TagUnixFD, TagString,
		TagObjectPath, TagSignature, TagVariant, TagArray, TagStruct,
		TagDictEntry,
	}

	for k := KindByte; k <= KindMap; k++ {
		for _, tag := range allTags {
			got := Accepts(k, tag)
			var want bool
			switch k {
			case KindIgnore:
				want = true
			default:
				want = tag == TagFor(k)
			}
			if got != want {
				t.Errorf("Accepts(%v, %v) = %v, want %v", k, tag, got, want)
			}
		}
	}

	for _, tag := range allTags {
		if Accepts(KindInvalid, tag) {
			t.Errorf("Accepts(KindInvalid, %v) = true, want false", tag)
		}
	}
}

func TestIsBasic(t *testing.T) {
	for k := KindInvalid; k <= KindMap; k++ {
		want := k >= KindByte && k <= KindSignature
		if got := k.IsBasic(); got != want {
			t.Errorf("%v.IsBasic() = %v, want %v", k, got, want)
		}
	}
}

func TestTagString(t *testing.T) {
	tests := []struct {
		in   Tag
		want string
	}{
		{TagInvalid, "<end>"},
		{TagInt32, "i"},
		{TagStruct, "r"},
		{TagDictEntry, "e"},
	}
	for _, tc := range tests {
		if got := tc.in.String(); got != tc.want {
			t.Errorf("Tag(%d).String() = %q, want %q", tc.in, got, tc.want)
		}
	}
}
