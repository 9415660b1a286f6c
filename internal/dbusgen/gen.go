// Package dbusgen generates typed Go clients for DBus interfaces from
// their introspection data.
//
// Generated clients call methods and access properties through the
// dbus package's codecs. Signals are not generated.
package dbusgen

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	dbus "github.com/danderson/dbus-typed"
)

type generator struct {
	out   bytes.Buffer
	decls bytes.Buffer
	iface *dbus.InterfaceDescription
	name  string

	// structs maps struct signatures to the name of the Go type
	// generated for them.
	structs map[string]string
	usesAny bool
}

// Interface returns the source of a Go file in package pkg that
// implements a client for iface.
//
// If the generated code fails to format, the unformatted code is
// returned along with the error.
func Interface(pkg string, iface *dbus.InterfaceDescription) (string, error) {
	if iface == nil {
		return "", errors.New("no interface provided")
	}
	if err := checkTypes(iface); err != nil {
		return "", err
	}
	g := generator{
		iface:   iface,
		name:    publicIdentifier(iface.Name),
		structs: map[string]string{},
	}
	g.Interface()

	var src bytes.Buffer
	fmt.Fprintf(&src, "// Code generated by dbusgen from %s. DO NOT EDIT.\n\n", iface.Name)
	fmt.Fprintf(&src, "package %s\n\n", pkg)
	if len(iface.Methods) > 0 || len(iface.Properties) > 0 {
		src.WriteString("import (\n\"context\"\n\ndbus \"github.com/danderson/dbus-typed\"\n)\n\n")
	} else {
		src.WriteString("import dbus \"github.com/danderson/dbus-typed\"\n\n")
	}
	src.Write(g.out.Bytes())
	if g.usesAny {
		src.WriteString(anyValueDecl)
	}
	src.Write(g.decls.Bytes())

	ret, err := format.Source(src.Bytes())
	if err != nil {
		return src.String(), err
	}
	return string(ret), nil
}

// anyValueDecl is the codec used for variants. It decodes basic
// values, and skips everything else.
const anyValueDecl = `
// anyValue decodes variant values of basic types. Values of other
// types are skipped.
var anyValue = dbus.VariantOf(
	dbus.Alt(dbus.String),
	dbus.Alt(dbus.Bool),
	dbus.Alt(dbus.Byte),
	dbus.Alt(dbus.Int16),
	dbus.Alt(dbus.Uint16),
	dbus.Alt(dbus.Int32),
	dbus.Alt(dbus.Uint32),
	dbus.Alt(dbus.Int64),
	dbus.Alt(dbus.Uint64),
	dbus.Alt(dbus.Double),
	dbus.Alt(dbus.Path),
	dbus.Alt(dbus.Sig),
	dbus.Alt(dbus.Ignore),
)
`

// checkTypes reports an error if an argument or property of iface
// does not have exactly one complete type.
func checkTypes(iface *dbus.InterfaceDescription) error {
	for _, m := range iface.Methods {
		for _, a := range slices.Concat(m.In, m.Out) {
			if !a.Type.Single() {
				return fmt.Errorf("method %s argument %q: type %q is not a single complete type", m.Name, a.Name, a.Type)
			}
		}
	}
	for _, p := range iface.Properties {
		if !p.Type.Single() {
			return fmt.Errorf("property %s: type %q is not a single complete type", p.Name, p.Type)
		}
	}
	return nil
}

func (g *generator) s(s string) {
	g.out.WriteString(s)
}

func (g *generator) f(msg string, args ...any) {
	fmt.Fprintf(&g.out, msg, args...)
}

func (g *generator) Interface() {
	g.f(`
// %[1]s is a client for the DBus interface %[2]s.
type %[1]s struct{ iface dbus.Interface }

// Interface returns a %[1]s on the given object.
func Interface(obj dbus.Object) %[1]s {
	return %[1]s{
		iface: obj.Interface(%[2]q),
	}
}
`, g.name, g.iface.Name)

	methods := slices.SortedFunc(slices.Values(g.iface.Methods), func(a, b *dbus.MethodDescription) int {
		return cmp.Compare(a.Name, b.Name)
	})
	props := slices.SortedFunc(slices.Values(g.iface.Properties), func(a, b *dbus.PropertyDescription) int {
		return cmp.Compare(a.Name, b.Name)
	})

	taken := map[string]bool{}
	for _, m := range methods {
		taken[publicIdentifier(m.Name)] = true
	}
	for _, m := range methods {
		g.Method(m)
	}
	for _, p := range props {
		g.Property(p, taken)
	}
}

func (g *generator) Method(m *dbus.MethodDescription) {
	mname := publicIdentifier(m.Name)

	// Names that generated method bodies use for their own locals.
	used := map[string]bool{"ctx": true, "iface": true, "m": true, "reply": true, "cur": true, "err": true}
	ins := argNames(m.In, used)
	outs := argNames(m.Out, used)

	var args []string
	for i, a := range m.In {
		args = append(args, fmt.Sprintf(", dbus.Arg(%s, %s)", g.codec(string(a.Type)), ins[i]))
	}
	callArgs := strings.Join(args, "")

	g.f("\n// %s calls the method %s.%s.\n", mname, g.iface.Name, m.Name)
	if m.Deprecated {
		g.s("//\n// Deprecated: the interface marks this method as deprecated.\n")
	}
	g.f("func (iface %s) %s(ctx context.Context", g.name, mname)
	for i, a := range m.In {
		g.f(", %s %s", ins[i], g.goType(string(a.Type)))
	}
	g.s(") ")

	switch {
	case m.NoReply:
		g.f("error {\nreturn iface.iface.OneWay(ctx, %q%s)\n}\n", m.Name, callArgs)
	case len(m.Out) == 0:
		g.f("error {\nreturn iface.iface.Call(ctx, %q%s)\n}\n", m.Name, callArgs)
	case len(m.Out) == 1:
		t := string(m.Out[0].Type)
		g.f("(%s, error) {\n", g.goType(t))
		g.f("return dbus.Call(ctx, iface.iface, %q, %s%s)\n}\n", m.Name, g.codec(t), callArgs)
	default:
		g.s("(")
		for i, a := range m.Out {
			g.f("%s %s, ", outs[i], g.goType(string(a.Type)))
		}
		g.s("err error) {\n")
		g.f("m, err := iface.iface.NewCall(%q%s)\n", m.Name, callArgs)
		g.s("if err != nil {\nreturn\n}\n")
		g.s("reply, err := iface.iface.Conn().Send(ctx, m)\n")
		g.s("if err != nil {\nreturn\n}\n")
		g.s("defer reply.Close()\n")
		g.s("cur, err := reply.Cursor()\n")
		g.s("if err != nil {\nreturn\n}\n")
		for i, a := range m.Out {
			g.f("if %s, err = dbus.Decode(cur, %s); err != nil {\nreturn\n}\n", outs[i], g.codec(string(a.Type)))
		}
		g.s("return\n}\n")
	}
}

func (g *generator) Property(p *dbus.PropertyDescription, taken map[string]bool) {
	pname := publicIdentifier(p.Name)
	getter := pname
	if taken[getter] {
		getter = "Get" + pname
	}
	typ, codec := g.goType(string(p.Type)), g.codec(string(p.Type))

	if p.Readable {
		g.f(`
// %[2]s returns the value of the property %[4]q.
func (iface %[1]s) %[2]s(ctx context.Context) (%[3]s, error) {
	return dbus.GetProperty(ctx, iface.iface, %[4]q, %[5]s)
}
`, g.name, getter, typ, p.Name, codec)
	}
	if p.Writable {
		g.f(`
// Set%[2]s sets the value of the property %[4]q to val.
func (iface %[1]s) Set%[2]s(ctx context.Context, val %[3]s) error {
	return dbus.SetProperty(ctx, iface.iface, %[4]q, %[5]s, val)
}
`, g.name, pname, typ, p.Name, codec)
	}
}

var basicTypes = map[byte]struct{ typ, codec string }{
	'y': {"uint8", "dbus.Byte"},
	'b': {"bool", "dbus.Bool"},
	'n': {"int16", "dbus.Int16"},
	'q': {"uint16", "dbus.Uint16"},
	'i': {"int32", "dbus.Int32"},
	'u': {"uint32", "dbus.Uint32"},
	'x': {"int64", "dbus.Int64"},
	't': {"uint64", "dbus.Uint64"},
	'd': {"float64", "dbus.Double"},
	'h': {"dbus.UnixFD", "dbus.FD"},
	's': {"string", "dbus.String"},
	'o': {"dbus.ObjectPath", "dbus.Path"},
	'g': {"dbus.Signature", "dbus.Sig"},
}

// goType returns the Go type that holds values of the single
// complete type sig.
func (g *generator) goType(sig string) string {
	if b, ok := basicTypes[sig[0]]; ok {
		return b.typ
	}
	switch sig[0] {
	case 'v':
		return "dbus.Variant"
	case 'a':
		if sig[1] == '{' {
			return fmt.Sprintf("map[%s]%s", basicTypes[sig[2]].typ, g.goType(sig[3:len(sig)-1]))
		}
		return "[]" + g.goType(sig[1:])
	case '(':
		return g.structType(sig)
	}
	panic(fmt.Sprintf("unexpected signature %q", sig))
}

// codec returns a Go expression for the codec of the single complete
// type sig.
func (g *generator) codec(sig string) string {
	if b, ok := basicTypes[sig[0]]; ok {
		return b.codec
	}
	switch sig[0] {
	case 'v':
		g.usesAny = true
		return "anyValue"
	case 'a':
		if sig[1] == '{' {
			return fmt.Sprintf("dbus.Map(%s, %s)", basicTypes[sig[2]].codec, g.codec(sig[3:len(sig)-1]))
		}
		return fmt.Sprintf("dbus.Array(%s)", g.codec(sig[1:]))
	case '(':
		return codecVar(g.structType(sig))
	}
	panic(fmt.Sprintf("unexpected signature %q", sig))
}

func codecVar(typeName string) string {
	r, n := utf8.DecodeRuneInString(typeName)
	return string(unicode.ToLower(r)) + typeName[n:] + "Codec"
}

// structType returns the name of the Go struct type for the struct
// signature sig, generating it if needed.
func (g *generator) structType(sig string) string {
	if name, ok := g.structs[sig]; ok {
		return name
	}

	var fields []string
	for f := range dbus.Signature(sig[1 : len(sig)-1]).Split() {
		fields = append(fields, string(f))
	}
	// Field types first, so that nested structs get lower numbers
	// than their containers.
	types := make([]string, len(fields))
	codecs := make([]string, len(fields))
	for i, f := range fields {
		types[i] = g.goType(f)
		codecs[i] = g.codec(f)
	}

	name := fmt.Sprintf("%sStruct%d", g.name, len(g.structs)+1)
	g.structs[sig] = name

	fmt.Fprintf(&g.decls, "\n// %s is the DBus struct %s.\ntype %s struct {\n", name, sig, name)
	for i, t := range types {
		fmt.Fprintf(&g.decls, "Field%d %s\n", i, t)
	}
	fmt.Fprintf(&g.decls, "}\n\nvar %s = dbus.Struct(\n", codecVar(name))
	for i := range fields {
		fmt.Fprintf(&g.decls, "dbus.FieldOf(%s, func(s *%s) *%s { return &s.Field%d }),\n", codecs[i], name, types[i], i)
	}
	g.decls.WriteString(")\n")
	return name
}

// argNames returns Go identifiers for args, avoiding the names in
// used. Returned names are added to used.
func argNames(args []dbus.ArgumentDescription, used map[string]bool) []string {
	ret := make([]string, len(args))
	for i, a := range args {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		name = identifier(name)
		if token.IsKeyword(name) {
			name += "_"
		}
		for used[name] {
			name += "_"
		}
		used[name] = true
		ret[i] = name
	}
	return ret
}

// identifier converts a DBus name, which may be dotted and use
// underscores or dashes between words, into a camel case Go
// identifier.
func identifier(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	fs := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	for i := range fs {
		if i == 0 {
			fs[i] = lowerFirst(fs[i])
			continue
		}
		switch fs[i] {
		case "id":
			fs[i] = "ID"
		case "fd":
			fs[i] = "FD"
		default:
			fs[i] = upperFirst(fs[i])
		}
	}
	return strings.Join(fs, "")
}

func publicIdentifier(s string) string {
	return upperFirst(identifier(s))
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}
