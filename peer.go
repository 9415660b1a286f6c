package dbus

import (
	"context"
	"strings"
)

// Peer is a participant on the bus, identified by a unique or
// well-known bus name.
type Peer struct {
	c    *Conn
	name string
}

// Conn returns the DBus connection associated with the peer.
func (p Peer) Conn() *Conn { return p.c }

// Name returns the peer's bus name.
func (p Peer) Name() string { return p.name }

// IsUniqueName reports whether the peer's name is a connection's
// unique name, rather than a well-known name that may move between
// connections.
func (p Peer) IsUniqueName() bool { return strings.HasPrefix(p.name, ":") }

func (p Peer) String() string {
	if p.c == nil {
		return "<no peer>"
	}
	return p.name
}

// Compare compares two peers by name, with the same convention as
// [strings.Compare].
func (p Peer) Compare(other Peer) int {
	return strings.Compare(p.name, other.name)
}

// Object returns a handle to the object at path, exported by the
// peer.
func (p Peer) Object(path ObjectPath) Object {
	return Object{
		p:    p,
		path: path,
	}
}

func (p Peer) peerIface() Interface {
	return p.Object("/").Interface(ifacePeer)
}

// Ping checks that the peer is reachable.
func (p Peer) Ping(ctx context.Context) error {
	return p.peerIface().Call(ctx, "Ping")
}

// MachineID returns the ID of the machine on which the peer runs.
func (p Peer) MachineID(ctx context.Context) (string, error) {
	return Call(ctx, p.peerIface(), "GetMachineId", String)
}

// Owner returns the peer that currently owns p's bus name.
//
// If p is already a unique name, Owner returns p unchanged.
func (p Peer) Owner(ctx context.Context) (Peer, error) {
	if p.IsUniqueName() {
		return p, nil
	}
	owner, err := p.c.GetNameOwner(ctx, p.name)
	if err != nil {
		return Peer{}, err
	}
	return p.c.Peer(owner), nil
}
