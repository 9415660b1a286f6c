package dbusgen_test

import (
	"context"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	dbus "github.com/danderson/dbus-typed"
	"github.com/danderson/dbus-typed/dbustest"
	"github.com/danderson/dbus-typed/internal/dbusgen"
)

const frobberXML = `
<node>
  <interface name="org.example.Frobber">
    <method name="Frob">
      <arg name="count" type="u" direction="in"/>
      <arg name="targets" type="a(so)" direction="in"/>
      <arg name="result" type="a{sv}" direction="out"/>
    </method>
    <method name="Reset"/>
    <method name="Stats">
      <arg name="count" type="t" direction="out"/>
      <arg name="last_error" type="s" direction="out"/>
    </method>
    <method name="Poke">
      <arg name="type" type="(y(ii))" direction="in"/>
      <annotation name="org.freedesktop.DBus.Method.NoReply" value="true"/>
    </method>
    <property name="Speed" type="d" access="readwrite"/>
    <property name="Version" type="s" access="read"/>
    <property name="Stats" type="at" access="read"/>
    <signal name="Frobbed">
      <arg type="u"/>
    </signal>
  </interface>
</node>
`

func TestGenerate(t *testing.T) {
	desc, err := dbus.ParseIntrospection(frobberXML)
	if err != nil {
		t.Fatalf("parsing introspection data: %v", err)
	}
	got, err := dbusgen.Interface("frobber", desc.Interfaces["org.example.Frobber"])
	if err != nil {
		t.Fatalf("generating code: %v\n%s", err, got)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), "gen.go", got, 0); err != nil {
		t.Fatalf("generated code does not parse: %v\n%s", err, got)
	}

	wants := []string{
		"package frobber",
		"type Frobber struct{ iface dbus.Interface }",
		"func (iface Frobber) Frob(ctx context.Context, count uint32, targets []FrobberStruct1) (map[string]dbus.Variant, error) {",
		`return dbus.Call(ctx, iface.iface, "Frob", dbus.Map(dbus.String, anyValue), dbus.Arg(dbus.Uint32, count), dbus.Arg(dbus.Array(frobberStruct1Codec), targets))`,
		"func (iface Frobber) Reset(ctx context.Context) error {",
		`return iface.iface.Call(ctx, "Reset")`,
		"func (iface Frobber) Stats(ctx context.Context) (count uint64, lastError string, err error) {",
		"if lastError, err = dbus.Decode(cur, dbus.String); err != nil {",
		"func (iface Frobber) Poke(ctx context.Context, type_ FrobberStruct3) error {",
		`return iface.iface.OneWay(ctx, "Poke", dbus.Arg(frobberStruct3Codec, type_))`,
		"func (iface Frobber) Speed(ctx context.Context) (float64, error) {",
		"func (iface Frobber) SetSpeed(ctx context.Context, val float64) error {",
		`return dbus.SetProperty(ctx, iface.iface, "Speed", dbus.Double, val)`,
		"func (iface Frobber) GetStats(ctx context.Context) ([]uint64, error) {",
		"type FrobberStruct2 struct {",
		"Field1 FrobberStruct2",
		"var anyValue = dbus.VariantOf(",
	}
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("generated code is missing %q", want)
		}
	}
	for _, unwanted := range []string{"Frobbed", "SetVersion"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("generated code unexpectedly contains %q", unwanted)
		}
	}
	if t.Failed() {
		t.Logf("generated code:\n%s", got)
	}
}

func TestGenerateBus(t *testing.T) {
	bus := dbustest.New(t, false)
	conn := bus.MustConn(t)

	desc, err := conn.Peer("org.freedesktop.DBus").Object("/org/freedesktop/DBus").Description(context.Background())
	if err != nil {
		t.Fatalf("introspecting bus: %v", err)
	}
	if len(desc.Interfaces) == 0 {
		t.Fatal("bus object has no interfaces")
	}
	for name, iface := range desc.Interfaces {
		got, err := dbusgen.Interface("client", iface)
		if err != nil {
			t.Errorf("generating %s: %v\n%s", name, err, got)
		}
	}
}

func TestGenerateBadTypes(t *testing.T) {
	tests := []struct {
		name  string
		iface *dbus.InterfaceDescription
	}{
		{
			"empty_arg",
			&dbus.InterfaceDescription{
				Name:    "org.example.Bad",
				Methods: []*dbus.MethodDescription{{Name: "M", In: []dbus.ArgumentDescription{{Name: "a", Type: ""}}}},
			},
		},
		{
			"multi_type_arg",
			&dbus.InterfaceDescription{
				Name:    "org.example.Bad",
				Methods: []*dbus.MethodDescription{{Name: "M", Out: []dbus.ArgumentDescription{{Name: "a", Type: "ii"}}}},
			},
		},
		{
			"multi_type_prop",
			&dbus.InterfaceDescription{
				Name:       "org.example.Bad",
				Properties: []*dbus.PropertyDescription{{Name: "P", Type: "ss", Readable: true}},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got, err := dbusgen.Interface("bad", tc.iface); err == nil {
				t.Errorf("generating interface succeeded, want error\n%s", got)
			}
		})
	}
}
