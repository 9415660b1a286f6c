package networkmanager

import (
	"net/netip"
	"testing"

	dbus "github.com/danderson/dbus-typed"
	"github.com/danderson/dbus-typed/fragments"
	"github.com/google/go-cmp/cmp"
)

type attr struct {
	key string
	sig string
	val func(*fragments.Encoder)
}

func strAttr(k, v string) attr {
	return attr{k, "s", func(e *fragments.Encoder) { e.String(v) }}
}

func u32Attr(k string, v uint32) attr {
	return attr{k, "u", func(e *fragments.Encoder) { e.Uint32(v) }}
}

// addressDataBody returns the little-endian encoding of a "v" value
// holding an aa{sv}, built directly from wire primitives.
func addressDataBody(t *testing.T, addrs ...[]attr) []byte {
	t.Helper()
	e := fragments.Encoder{Order: fragments.LittleEndian}
	e.Signature("aa{sv}")
	err := e.Array(4, func() error {
		for _, attrs := range addrs {
			err := e.Array(8, func() error {
				for _, a := range attrs {
					err := e.Struct(func() error {
						e.String(a.key)
						e.Signature(a.sig)
						a.val(&e)
						return nil
					})
					if err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("building test body: %v", err)
	}
	return e.Out
}

func TestAddressData(t *testing.T) {
	body := addressDataBody(t,
		[]attr{strAttr("address", "192.168.1.23"), u32Attr("prefix", 24)},
		[]attr{u32Attr("prefix", 64), strAttr("address", "2001:db8::1"), strAttr("label", "eth0")},
	)

	cur := dbus.NewCursor(body, fragments.LittleEndian, "v")
	raw, err := dbus.Decode(cur, dbus.Boxed(AddressData))
	if err != nil {
		t.Fatalf("decoding AddressData: %v", err)
	}
	if !cur.Done() {
		t.Errorf("cursor not done after decoding AddressData")
	}

	got, err := ParseAddressData(raw)
	if err != nil {
		t.Fatalf("ParseAddressData: %v", err)
	}
	want := []netip.Prefix{
		netip.MustParsePrefix("192.168.1.23/24"),
		netip.MustParsePrefix("2001:db8::1/64"),
	}
	if diff := cmp.Diff(got, want, cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })); diff != "" {
		t.Errorf("wrong addresses (-got+want):\n%s", diff)
	}
}

func TestAddressDataErrors(t *testing.T) {
	tests := []struct {
		name  string
		attrs []attr
	}{
		{"no prefix", []attr{strAttr("address", "10.0.0.1")}},
		{"no address", []attr{u32Attr("prefix", 8)}},
		{"string prefix", []attr{strAttr("address", "10.0.0.1"), strAttr("prefix", "8")}},
		{"bad address", []attr{strAttr("address", "not an ip"), u32Attr("prefix", 8)}},
		{"prefix too long", []attr{strAttr("address", "10.0.0.1"), u32Attr("prefix", 33)}},
		{"bool prefix", []attr{strAttr("address", "10.0.0.1"), {"prefix", "b", func(e *fragments.Encoder) { e.Uint32(1) }}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := addressDataBody(t, tc.attrs)
			raw, err := dbus.Decode(dbus.NewCursor(body, fragments.LittleEndian, "v"), dbus.Boxed(AddressData))
			if err != nil {
				t.Fatalf("decoding AddressData: %v", err)
			}
			if got, err := ParseAddressData(raw); err == nil {
				t.Fatalf("ParseAddressData succeeded with %v, want error", got)
			}
		})
	}
}

func TestAddressDataOtherAttributes(t *testing.T) {
	body := addressDataBody(t, []attr{
		strAttr("address", "10.0.0.1"),
		{"flags", "b", func(e *fragments.Encoder) { e.Uint32(1) }},
		u32Attr("prefix", 8),
		{"lifetimes", "au", func(e *fragments.Encoder) {
			e.Array(4, func() error {
				e.Uint32(3600)
				e.Uint32(7200)
				return nil
			})
		}},
	})
	raw, err := dbus.Decode(dbus.NewCursor(body, fragments.LittleEndian, "v"), dbus.Boxed(AddressData))
	if err != nil {
		t.Fatalf("decoding AddressData: %v", err)
	}
	if idx := raw[0]["flags"].Index; idx != addrOther {
		t.Errorf("flags attribute decoded as candidate %d, want %d", idx, addrOther)
	}
	got, err := ParseAddressData(raw)
	if err != nil {
		t.Fatalf("ParseAddressData: %v", err)
	}
	want := []netip.Prefix{netip.MustParsePrefix("10.0.0.1/8")}
	if diff := cmp.Diff(got, want, cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })); diff != "" {
		t.Errorf("wrong addresses (-got+want):\n%s", diff)
	}
}
