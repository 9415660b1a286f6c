package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/creachadair/mds/heapq"
	dbus "github.com/danderson/dbus-typed"
	"github.com/danderson/dbus-typed/fragments"
	"github.com/kr/pretty"
)

// indenter writes to stdout, prefixing every line with the current
// indentation.
type indenter struct {
	prefix  string
	midLine bool
}

func (i *indenter) indent(n int) { i.prefix = strings.Repeat("  ", n) }

func (i *indenter) v(v any) { fmt.Fprintf(i, "%v\n", v) }

func (i *indenter) s(msg string) { fmt.Fprintln(i, msg) }

func (i *indenter) f(msg string, args ...any) { fmt.Fprintf(i, msg+"\n", args...) }

func (i *indenter) Write(bs []byte) (int, error) {
	var out bytes.Buffer
	for rest := bs; len(rest) > 0; {
		if !i.midLine {
			out.WriteString(i.prefix)
		}
		line, after, found := bytes.Cut(rest, []byte{'\n'})
		out.Write(line)
		if found {
			out.WriteByte('\n')
		}
		i.midLine = !found
		rest = after
	}
	if _, err := os.Stdout.Write(out.Bytes()); err != nil {
		return 0, err
	}
	return len(bs), nil
}

// growTo returns args, extended with empty strings to at least n
// elements.
func growTo(args []string, n int) []string {
	if len(args) >= n {
		return args
	}
	return append(slices.Clone(args), make([]string, n-len(args))...)
}

// wellKnownNames matches the well-known names of the bus. Unique
// connections fail to handle introspection gracefully more often
// than not, so are skipped by default.
const wellKnownNames = `^[^:]`

// listPeers yields the peers on conn whose name matches the regular
// expression peerFilter.
func listPeers(ctx context.Context, conn *dbus.Conn, peerFilter string) iter.Seq2[dbus.Peer, error] {
	return func(yield func(dbus.Peer, error) bool) {
		if peerFilter == "" {
			peerFilter = wellKnownNames
		}
		match, err := regexp.Compile(peerFilter)
		if err != nil {
			yield(dbus.Peer{}, err)
			return
		}
		peers, err := conn.Peers(ctx)
		if err != nil {
			yield(dbus.Peer{}, err)
			return
		}
		slices.SortFunc(peers, dbus.Peer.Compare)
		for _, p := range peers {
			if match.MatchString(p.Name()) && !yield(p, nil) {
				return
			}
		}
	}
}

type objectInterface struct {
	dbus.Interface
	Description *dbus.InterfaceDescription
}

// listInterfaces walks the object tree of peer in path order, and
// yields the interfaces whose object path and name match objectFilter
// and interfaceFilter. Objects that fail introspection yield an error,
// and the walk carries on.
func listInterfaces(ctx context.Context, peer dbus.Peer, objectFilter, interfaceFilter string) iter.Seq2[objectInterface, error] {
	return func(yield func(objectInterface, error) bool) {
		objMatch, err := regexp.Compile(objectFilter)
		if err != nil {
			yield(objectInterface{}, err)
			return
		}
		ifaceMatch, err := regexp.Compile(interfaceFilter)
		if err != nil {
			yield(objectInterface{}, err)
			return
		}

		todo := heapq.New(dbus.Object.Compare)
		todo.Add(peer.Object("/"))
		for !todo.IsEmpty() {
			obj, _ := todo.Pop()
			desc, err := obj.Description(ctx)
			if err != nil {
				if !yield(objectInterface{}, err) {
					return
				}
				continue
			}
			for _, child := range desc.Children {
				todo.Add(obj.Child(child))
			}
			if !objMatch.MatchString(string(obj.Path())) {
				continue
			}
			for _, name := range slices.Sorted(maps.Keys(desc.Interfaces)) {
				if !ifaceMatch.MatchString(name) {
					continue
				}
				if !yield(objectInterface{obj.Interface(name), desc.Interfaces[name]}, nil) {
					return
				}
			}
		}
	}
}

// unprinted is the signature of a property value that the CLI does
// not know how to print.
type unprinted dbus.Signature

// typeOnly accepts any value, and decodes only its signature.
type typeOnly struct{}

func (typeOnly) Kind() dbus.Kind           { return dbus.KindIgnore }
func (typeOnly) Signature() dbus.Signature { return "" }

func (typeOnly) Decode(c *dbus.Cursor) (unprinted, error) {
	return unprinted(c.Signature()), nil
}

func (typeOnly) Encode(*fragments.Encoder, unprinted) error {
	return errors.New("cannot encode unprinted values")
}

// propValue decodes property values for display.
var propValue = dbus.VariantOf(
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
	dbus.Alt(dbus.Array(dbus.String)),
	dbus.Alt(dbus.Array(dbus.Path)),
	dbus.Alt(dbus.Codec[unprinted](typeOnly{})),
)

func formatProp(v dbus.Variant) string {
	if sig, ok := dbus.VariantValue[unprinted](v); ok {
		return fmt.Sprintf("<%s value>", dbus.Signature(sig))
	}
	return fmt.Sprintf("%# v", pretty.Formatter(v.Value))
}
