package dbus

import (
	"cmp"
	"encoding/xml"
	"fmt"
	"slices"
	"strings"
)

// ObjectDescription describes a DBus object's exported interfaces and
// child objects.
//
// Interface and child descriptions are provided by the DBus peer
// hosting the object, and may not accurately reflect the actual
// exposed API or object structure.
type ObjectDescription struct {
	// Interfaces maps an interface name to a description of its API.
	Interfaces map[string]*InterfaceDescription
	// Children is the relative paths to child objects under this
	// object. The relative paths may contain multiple path
	// components.
	Children []string
}

// InterfaceDescription describes a DBus interface.
type InterfaceDescription struct {
	Name       string
	Methods    []*MethodDescription
	Signals    []*SignalDescription
	Properties []*PropertyDescription
}

// MethodDescription describes a DBus method.
type MethodDescription struct {
	Name string
	In   []ArgumentDescription
	Out  []ArgumentDescription
	// Deprecated methods should be avoided in new code.
	Deprecated bool
	// NoReply methods should be invoked with [Interface.OneWay].
	NoReply bool
}

// SignalDescription describes a DBus signal.
type SignalDescription struct {
	Name       string
	Args       []ArgumentDescription
	Deprecated bool
}

// PropertyDescription describes a DBus property.
type PropertyDescription struct {
	Name string
	Type Signature

	// Readable is whether [Interface.GetProperty] can read the
	// value.
	Readable bool
	// Writable is whether [Interface.SetProperty] can change the
	// value.
	Writable bool
	// Constant properties never change after the object is
	// created, and can be cached.
	Constant bool

	// EmitsSignal is whether changes to the property are announced
	// with a PropertiesChanged signal.
	EmitsSignal bool
	// SignalIncludesValue is whether the PropertiesChanged signal
	// carries the new value. If false, the signal only invalidates
	// the property, and the new value must be read with
	// [Interface.GetProperty].
	SignalIncludesValue bool

	Deprecated bool
}

// ArgumentDescription describes one argument of a method or signal.
type ArgumentDescription struct {
	Name string // optional
	Type Signature
}

// Well-known annotations.
const (
	annotDeprecated   = "org.freedesktop.DBus.Deprecated"
	annotNoReply      = "org.freedesktop.DBus.Method.NoReply"
	annotEmitsChanged = "org.freedesktop.DBus.Property.EmitsChangedSignal"
)

// introspectNode is the XML schema of introspection data, as
// defined by the DBus introspection DTD.
type introspectNode struct {
	Interfaces []struct {
		Name       string               `xml:"name,attr"`
		Methods    []introspectMember   `xml:"method"`
		Signals    []introspectMember   `xml:"signal"`
		Properties []introspectProperty `xml:"property"`
	} `xml:"interface"`
	Children []struct {
		Name string `xml:"name,attr"`
	} `xml:"node"`
}

type introspectMember struct {
	Name        string          `xml:"name,attr"`
	Args        []introspectArg `xml:"arg"`
	Annotations annotations     `xml:"annotation"`
}

type introspectProperty struct {
	Name        string      `xml:"name,attr"`
	Type        string      `xml:"type,attr"`
	Access      string      `xml:"access,attr"`
	Annotations annotations `xml:"annotation"`
}

type introspectArg struct {
	Name      string `xml:"name,attr"`
	Type      string `xml:"type,attr"`
	Direction string `xml:"direction,attr"`
}

type annotations []struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// get returns the value of the named annotation, or "" if absent.
func (as annotations) get(name string) string {
	for _, a := range as {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// ParseIntrospection parses the XML introspection data returned by
// the org.freedesktop.DBus.Introspectable.Introspect method.
func ParseIntrospection(data string) (*ObjectDescription, error) {
	var raw introspectNode
	if err := xml.Unmarshal([]byte(data), &raw); err != nil {
		return nil, err
	}

	ret := &ObjectDescription{
		Interfaces: make(map[string]*InterfaceDescription, len(raw.Interfaces)),
		Children:   make([]string, 0, len(raw.Children)),
	}
	for _, child := range raw.Children {
		ret.Children = append(ret.Children, child.Name)
	}
	for _, rawIface := range raw.Interfaces {
		iface := &InterfaceDescription{Name: rawIface.Name}
		for _, rm := range rawIface.Methods {
			m, err := parseMethod(rm)
			if err != nil {
				return nil, fmt.Errorf("method %s.%s: %w", iface.Name, rm.Name, err)
			}
			iface.Methods = append(iface.Methods, m)
		}
		for _, rs := range rawIface.Signals {
			s, err := parseSignal(rs)
			if err != nil {
				return nil, fmt.Errorf("signal %s.%s: %w", iface.Name, rs.Name, err)
			}
			iface.Signals = append(iface.Signals, s)
		}
		for _, rp := range rawIface.Properties {
			p, err := parseProperty(rp)
			if err != nil {
				return nil, fmt.Errorf("property %s.%s: %w", iface.Name, rp.Name, err)
			}
			iface.Properties = append(iface.Properties, p)
		}
		ret.Interfaces[iface.Name] = iface
	}
	return ret, nil
}

// singleType parses s, which must be the signature of exactly one
// complete type.
func singleType(s string) (Signature, error) {
	sig, err := ParseSignature(s)
	if err != nil {
		return "", err
	}
	if !sig.Single() {
		return "", fmt.Errorf("type %q is not a single complete type", s)
	}
	return sig, nil
}

func parseArg(raw introspectArg) (ArgumentDescription, error) {
	sig, err := singleType(raw.Type)
	if err != nil {
		return ArgumentDescription{}, fmt.Errorf("argument %q: %w", raw.Name, err)
	}
	return ArgumentDescription{raw.Name, sig}, nil
}

func parseMethod(raw introspectMember) (*MethodDescription, error) {
	ret := &MethodDescription{
		Name:       raw.Name,
		Deprecated: raw.Annotations.get(annotDeprecated) == "true",
		NoReply:    raw.Annotations.get(annotNoReply) == "true",
	}
	for _, rawArg := range raw.Args {
		arg, err := parseArg(rawArg)
		if err != nil {
			return nil, err
		}
		// Method arguments are inputs unless stated otherwise.
		if rawArg.Direction == "out" {
			ret.Out = append(ret.Out, arg)
		} else {
			ret.In = append(ret.In, arg)
		}
	}
	return ret, nil
}

func parseSignal(raw introspectMember) (*SignalDescription, error) {
	ret := &SignalDescription{
		Name:       raw.Name,
		Deprecated: raw.Annotations.get(annotDeprecated) == "true",
	}
	for _, rawArg := range raw.Args {
		arg, err := parseArg(rawArg)
		if err != nil {
			return nil, err
		}
		ret.Args = append(ret.Args, arg)
	}
	return ret, nil
}

func parseProperty(raw introspectProperty) (*PropertyDescription, error) {
	sig, err := singleType(raw.Type)
	if err != nil {
		return nil, err
	}
	ret := &PropertyDescription{
		Name:                raw.Name,
		Type:                sig,
		Readable:            raw.Access == "read" || raw.Access == "readwrite",
		Writable:            raw.Access == "write" || raw.Access == "readwrite",
		EmitsSignal:         true,
		SignalIncludesValue: true,
		Deprecated:          raw.Annotations.get(annotDeprecated) == "true",
	}
	if !ret.Readable && !ret.Writable {
		return nil, fmt.Errorf("unknown access mode %q", raw.Access)
	}
	switch raw.Annotations.get(annotEmitsChanged) {
	case "false":
		ret.EmitsSignal, ret.SignalIncludesValue = false, false
	case "invalidates":
		ret.SignalIncludesValue = false
	case "const":
		ret.Constant = true
		ret.EmitsSignal, ret.SignalIncludesValue = false, false
	}
	return ret, nil
}

// byName orders descriptions by their Name.
func byName[T any](name func(T) string) func(a, b T) int {
	return func(a, b T) int { return cmp.Compare(name(a), name(b)) }
}

func (d InterfaceDescription) String() string {
	var ret strings.Builder
	fmt.Fprintf(&ret, "interface %s {\n", d.Name)
	for _, m := range slices.SortedFunc(slices.Values(d.Methods), byName(func(m *MethodDescription) string { return m.Name })) {
		fmt.Fprintf(&ret, "  %s\n", m)
	}
	for _, s := range slices.SortedFunc(slices.Values(d.Signals), byName(func(s *SignalDescription) string { return s.Name })) {
		fmt.Fprintf(&ret, "  %s\n", s)
	}
	for _, p := range slices.SortedFunc(slices.Values(d.Properties), byName(func(p *PropertyDescription) string { return p.Name })) {
		fmt.Fprintf(&ret, "  %s\n", p)
	}
	ret.WriteString("}")
	return ret.String()
}

// formatArgs returns args as a comma-separated list.
func formatArgs(args []ArgumentDescription) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

// withFlags appends the non-empty flags to s in brackets.
func withFlags(s string, flags ...string) string {
	flags = slices.DeleteFunc(flags, func(f string) bool { return f == "" })
	if len(flags) == 0 {
		return s
	}
	return fmt.Sprintf("%s [%s]", s, strings.Join(flags, ","))
}

// flagIf returns flag if cond is true, or "" otherwise.
func flagIf(cond bool, flag string) string {
	if cond {
		return flag
	}
	return ""
}

func (m MethodDescription) String() string {
	ret := fmt.Sprintf("func %s(%s)", m.Name, formatArgs(m.In))
	if len(m.Out) > 0 {
		ret += fmt.Sprintf(" (%s)", formatArgs(m.Out))
	}
	return withFlags(ret, flagIf(m.Deprecated, "deprecated"), flagIf(m.NoReply, "noreply"))
}

func (s SignalDescription) String() string {
	ret := fmt.Sprintf("signal %s(%s)", s.Name, formatArgs(s.Args))
	return withFlags(ret, flagIf(s.Deprecated, "deprecated"))
}

func (p PropertyDescription) String() string {
	var access string
	switch {
	case p.Constant && !p.Writable:
		access = "const"
	case p.Readable && p.Writable:
		access = "readwrite"
	case p.Readable:
		access = "readonly"
	default:
		access = "writeonly"
	}
	var signal string
	switch {
	case p.EmitsSignal && p.SignalIncludesValue:
		signal = "signals"
	case p.EmitsSignal:
		signal = "invalidates"
	}
	ret := fmt.Sprintf("property %s %s", p.Name, goTypeName(p.Type))
	return withFlags(ret, access, flagIf(p.Deprecated, "deprecated"), signal)
}

func (a ArgumentDescription) String() string {
	if a.Name == "" {
		return goTypeName(a.Type)
	}
	// Older interfaces use dashes in argument names.
	return strings.ReplaceAll(a.Name, "-", "_") + " " + goTypeName(a.Type)
}

// goTypeName returns a Go-like spelling of sig, for human
// consumption. Multiple types are separated by commas.
func goTypeName(sig Signature) string {
	var ret []string
	for one := range sig.Split() {
		name, _ := goTypeNameOne(string(one))
		ret = append(ret, name)
	}
	return strings.Join(ret, ", ")
}

// goTypeNameOne returns the Go-like spelling of the first complete
// type in sig, and the remainder of sig after that type.
func goTypeNameOne(sig string) (name, rest string) {
	switch c := sig[0]; c {
	case 'a':
		if sig[1] == '{' {
			k, rest := goTypeNameOne(sig[2:])
			v, rest := goTypeNameOne(rest)
			return "map[" + k + "]" + v, rest[1:]
		}
		elem, rest := goTypeNameOne(sig[1:])
		return "[]" + elem, rest
	case '(':
		var fields []string
		rest := sig[1:]
		for rest[0] != ')' {
			var f string
			f, rest = goTypeNameOne(rest)
			fields = append(fields, f)
		}
		return "struct{" + strings.Join(fields, "; ") + "}", rest[1:]
	default:
		if n, ok := basicGoNames[c]; ok {
			return n, sig[1:]
		}
		return string(c), sig[1:]
	}
}

var basicGoNames = map[byte]string{
	'y': "uint8",
	'b': "bool",
	'n': "int16",
	'q': "uint16",
	'i': "int32",
	'u': "uint32",
	'x': "int64",
	't': "uint64",
	'd': "float64",
	'h': "UnixFD",
	's': "string",
	'o': "ObjectPath",
	'g': "Signature",
	'v': "Variant",
}
