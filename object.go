package dbus

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
)

const (
	ifaceIntrospectable = "org.freedesktop.DBus.Introspectable"
	ifaceObjectManager  = "org.freedesktop.DBus.ObjectManager"
)

// Object is an object exported by a [Peer].
type Object struct {
	p    Peer
	path ObjectPath
}

func (o Object) Conn() *Conn      { return o.p.Conn() }
func (o Object) Peer() Peer       { return o.p }
func (o Object) Path() ObjectPath { return o.path }

func (o Object) String() string {
	if o.p.c == nil {
		return "<no object>"
	}
	return fmt.Sprintf("%s:%s", o.p, o.path)
}

// Compare orders objects by peer name, then by path.
func (o Object) Compare(other Object) int {
	if c := o.p.Compare(other.p); c != 0 {
		return c
	}
	return cmp.Compare(o.path, other.path)
}

// Child returns the object at the relative path rel under o.
func (o Object) Child(rel string) Object {
	return o.p.Object(o.path.Child(rel))
}

// Interface returns a handle to the named interface of the object.
func (o Object) Interface(name string) Interface {
	return Interface{
		o:    o,
		name: name,
	}
}

// Introspect returns the raw XML introspection data of the object.
func (o Object) Introspect(ctx context.Context) (string, error) {
	return Call(ctx, o.Interface(ifaceIntrospectable), "Introspect", String)
}

// Description returns the parsed introspection data of the object.
func (o Object) Description(ctx context.Context) (*ObjectDescription, error) {
	raw, err := o.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	ret, err := ParseIntrospection(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing introspection data of %s: %w", o, err)
	}
	return ret, nil
}

// Interfaces returns the interfaces that the object claims to
// implement in its introspection data.
func (o Object) Interfaces(ctx context.Context) ([]Interface, error) {
	desc, err := o.Description(ctx)
	if err != nil {
		return nil, err
	}
	names := slices.Sorted(maps.Keys(desc.Interfaces))
	ret := make([]Interface, 0, len(names))
	for _, n := range names {
		ret = append(ret, o.Interface(n))
	}
	return ret, nil
}

// managedObjects decodes the reply of GetManagedObjects, ignoring all
// property values.
var managedObjects = Map(Path, Map(String, Map(String, Ignore)))

// ManagedObjects returns the children of o, and the interfaces they
// implement, as reported by the org.freedesktop.DBus.ObjectManager
// interface.
func (o Object) ManagedObjects(ctx context.Context) (map[Object][]Interface, error) {
	resp, err := Call(ctx, o.Interface(ifaceObjectManager), "GetManagedObjects", managedObjects)
	if err != nil {
		return nil, err
	}
	ret := make(map[Object][]Interface, len(resp))
	for path, ifs := range resp {
		if !path.IsChildOf(o.path) {
			return nil, fmt.Errorf("object manager %s returned object %s which is not a descendant", o, path)
		}
		child := o.p.Object(path)
		ifaces := make([]Interface, 0, len(ifs))
		for _, name := range slices.Sorted(maps.Keys(ifs)) {
			ifaces = append(ifaces, child.Interface(name))
		}
		ret[child] = ifaces
	}
	return ret, nil
}
