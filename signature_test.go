package dbus

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseSignature(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"y", false},
		{"b", false},
		{"n", false},
		{"q", false},
		{"i", false},
		{"u", false},
		{"x", false},
		{"t", false},
		{"d", false},
		{"h", false},
		{"s", false},
		{"o", false},
		{"g", false},
		{"v", false},
		{"as", false},
		{"ay", false},
		{"aas", false},
		{"a{sx}", false},
		{"a{sv}", false},
		{"aa{sv}", false},
		{"a{oa{sa{sv}}}", false},
		{"(nb)", false},
		{"a(nb)", false},
		{"(y(nb))", false},
		{"(asa(nb)aa(y(nb)))", false},
		{"yyyyuua(yv)", false},
		{strings.Repeat("a", 32) + "y", false},
		{strings.Repeat("(", 32) + "y" + strings.Repeat(")", 32), false},

		{"a", true},
		{"aa", true},
		{"(", true},
		{"(y", true},
		{"()", true},
		{")", true},
		{"{sv}", true},
		{"a{vs}", true},
		{"a{(y)s}", true},
		{"a{s}", true},
		{"a{suu}", true},
		{"a{sv", true},
		{"z", true},
		{"r", true},
		{"e", true},
		{strings.Repeat("a", 33) + "y", true},
		{strings.Repeat("(", 33) + "y" + strings.Repeat(")", 33), true},
		{strings.Repeat("y", 256), true},
	}

	for _, tc := range tests {
		got, err := ParseSignature(tc.in)
		if gotErr := err != nil; gotErr != tc.wantErr {
			t.Errorf("ParseSignature(%q) got err %v, want err=%v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got.String() != tc.in {
			t.Errorf("ParseSignature(%q).String() = %q, want %q", tc.in, got, tc.in)
		}
		// Second parse is served from cache, and must agree.
		_, err2 := ParseSignature(tc.in)
		if (err == nil) != (err2 == nil) {
			t.Errorf("ParseSignature(%q) cached result disagrees: %v vs. %v", tc.in, err, err2)
		}
	}
}

func TestSignatureSplit(t *testing.T) {
	tests := []struct {
		in     Signature
		want   []Signature
		single bool
	}{
		{"", nil, false},
		{"y", []Signature{"y"}, true},
		{"yu", []Signature{"y", "u"}, false},
		{"a{sv}", []Signature{"a{sv}"}, true},
		{"a{sv}as(ii)v", []Signature{"a{sv}", "as", "(ii)", "v"}, false},
		{"(a(ii)v)", []Signature{"(a(ii)v)"}, true},
	}

	for _, tc := range tests {
		got := slices.Collect(tc.in.Split())
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("Signature(%q).Split() wrong output (-got+want):\n%s", tc.in, diff)
		}
		if got := tc.in.Single(); got != tc.single {
			t.Errorf("Signature(%q).Single() = %v, want %v", tc.in, got, tc.single)
		}
	}
}

func TestGoTypeName(t *testing.T) {
	tests := []struct {
		in   Signature
		want string
	}{
		{"y", "uint8"},
		{"as", "[]string"},
		{"a{sv}", "map[string]Variant"},
		{"a{oa{sa{sv}}}", "map[ObjectPath]map[string]map[string]Variant"},
		{"(ia(yh))", "struct{int32; []struct{uint8; UnixFD}}"},
		{"sb", "string, bool"},
	}
	for _, tc := range tests {
		if got := goTypeName(tc.in); got != tc.want {
			t.Errorf("goTypeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
