package main

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/creachadair/command"
	"github.com/creachadair/mds/slice"
	dbus "github.com/danderson/dbus-typed"
)

var listCommands = &command.C{
	Name:  "list",
	Usage: "list args...",
	Commands: []*command.C{
		{
			Name:  "peers",
			Usage: "list peers",
			Help:  "List peers connected to the bus, with their aliases.",
			Run:   onBus(0, 0, 0, runListPeers),
		},
		{
			Name:  "interfaces",
			Usage: "list interfaces [peer] [object] [interface]",
			Help: `List bus interfaces and their full API.

Each argument is a regular expression that filters peer names, object
paths and interface names respectively. Missing arguments match
everything, except that unique peer names (like ":1.234") are skipped
unless the peer filter asks for them: many unique connections do not
answer introspection requests.
`,
			Run: onBus(0, 3, discoveryTimeout, runListInterfaces),
		},
		{
			Name:  "props",
			Usage: "list props [peer] [object] [interface] [property]",
			Help:  "List property values. Arguments filter like in 'list interfaces'.",
			Run:   onBus(0, 4, discoveryTimeout, runListProps),
		},
		{
			Name:  "managed",
			Usage: "list managed peer [object]",
			Help:  "List the objects reported by an object manager.",
			Run:   onBus(1, 2, 0, runListManaged),
		},
	},
}

func runListPeers(ctx context.Context, conn *dbus.Conn, _ []string) error {
	peers, err := conn.Peers(ctx)
	if err != nil {
		return fmt.Errorf("listing bus names: %w", err)
	}

	// Well-known names alias the unique name that owns them.
	aliases := map[dbus.Peer][]string{}
	for _, p := range peers {
		if p.IsUniqueName() {
			continue
		}
		owner, err := p.Owner(ctx)
		if err != nil {
			fmt.Printf("getting owner of %s: %v\n", p, err)
			continue
		}
		aliases[owner] = append(aliases[owner], p.Name())
		aliases[p] = append(aliases[p], owner.Name())
	}

	slices.SortFunc(peers, dbus.Peer.Compare)
	for _, p := range peers {
		names := aliases[p]
		if len(names) == 0 {
			fmt.Println(p.Name())
			continue
		}
		slices.Sort(names)
		fmt.Printf("%s (%s)\n", p.Name(), strings.Join(names, ", "))
	}
	return nil
}

// section prints the headings of iface's peer and object, if they
// differ from those of prev.
func section(out *indenter, prev, iface dbus.Interface, peerHeading string) {
	if iface.Peer() != prev.Peer() {
		out.indent(0)
		if prev.Peer() != (dbus.Peer{}) {
			out.s("")
		}
		out.s(peerHeading)
	} else if iface.Object() == prev.Object() {
		return
	}
	out.indent(1)
	out.v(iface.Object().Path())
}

func runListInterfaces(ctx context.Context, conn *dbus.Conn, args []string) error {
	args = growTo(args, 3)

	var (
		out  indenter
		prev dbus.Interface
	)
	for p, err := range listPeers(ctx, conn, args[0]) {
		if err != nil {
			out.v(err)
			continue
		}
		heading := p.Name()
		if owner, err := p.Owner(ctx); err != nil {
			heading += fmt.Sprintf(" (getting owner: %v)", err)
		} else {
			heading += " (" + owner.Name() + ")"
		}
		for iface, err := range listInterfaces(ctx, p, args[1], args[2]) {
			if err != nil {
				out.v(err)
				continue
			}
			section(&out, prev, iface.Interface, heading)
			out.indent(2)
			out.v(iface.Description)
			prev = iface.Interface
		}
	}
	return nil
}

func runListProps(ctx context.Context, conn *dbus.Conn, args []string) error {
	args = growTo(args, 4)
	propFilter, err := regexp.Compile(args[3])
	if err != nil {
		return err
	}

	var (
		out  indenter
		prev dbus.Interface
	)
	for p, err := range listPeers(ctx, conn, args[0]) {
		if err != nil {
			out.indent(0)
			out.v(err)
			continue
		}
		for iface, err := range listInterfaces(ctx, p, args[1], args[2]) {
			if err != nil {
				out.indent(0)
				out.v(err)
				continue
			}
			if len(iface.Description.Properties) == 0 {
				continue
			}

			props, err := dbus.GetAllProperties(ctx, iface.Interface, propValue)
			if err != nil {
				out.indent(0)
				out.v(fmt.Errorf("listing properties of %s: %w", iface, err))
				continue
			}
			names := slices.Collect(slice.Select(slices.Sorted(maps.Keys(props)), propFilter.MatchString))
			if len(names) == 0 {
				continue
			}

			section(&out, prev, iface.Interface, p.Name())
			prev = iface.Interface
			out.indent(2)
			out.v(iface.Name())
			out.indent(3)
			for _, n := range names {
				out.f("%s: %s", n, formatProp(props[n]))
			}
		}
	}
	return nil
}

func runListManaged(ctx context.Context, conn *dbus.Conn, args []string) error {
	path := dbus.ObjectPath("/")
	if len(args) > 1 {
		path = dbus.ObjectPath(args[1])
	}

	mgr := conn.Peer(args[0]).Object(path)
	objs, err := mgr.ManagedObjects(ctx)
	if err != nil {
		return fmt.Errorf("getting managed objects of %s: %w", mgr, err)
	}
	var out indenter
	for _, obj := range slices.SortedFunc(maps.Keys(objs), dbus.Object.Compare) {
		out.indent(0)
		out.v(obj.Path())
		out.indent(1)
		for _, iface := range objs[obj] {
			out.v(iface.Name())
		}
	}
	return nil
}
