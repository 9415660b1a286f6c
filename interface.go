package dbus

import (
	"context"
	"fmt"
)

// Interface is a set of methods, properties and signals offered by an
// [Object].
type Interface struct {
	o    Object
	name string
}

// Conn returns the DBus connection associated with the interface.
func (f Interface) Conn() *Conn { return f.o.Conn() }

// Peer returns the Peer that is offering the interface.
func (f Interface) Peer() Peer { return f.o.Peer() }

// Object returns the Object that implements the interface.
func (f Interface) Object() Object { return f.o }

// Name returns the name of the interface.
func (f Interface) Name() string { return f.name }

func (f Interface) String() string {
	if f.name == "" {
		return fmt.Sprintf("%s:<no interface>", f.Object())
	}
	return fmt.Sprintf("%s:%s", f.Object(), f.name)
}

// An Argument is one method call argument, paired with the codec
// that encodes it. Arguments are constructed with [Arg].
type Argument interface {
	appendTo(m *Message) error
}

// Arg returns an Argument that encodes v with c.
func Arg[T any](c Codec[T], v T) Argument {
	return arg[T]{c, v}
}

type arg[T any] struct {
	c Codec[T]
	v T
}

func (a arg[T]) appendTo(m *Message) error {
	return Append(m, a.c, a.v)
}

// NewCall returns a Message that calls method on the interface with
// the given arguments.
func (f Interface) NewCall(method string, args ...Argument) (*Message, error) {
	m, err := NewMethodCall(f.Peer().Name(), f.Object().Path(), f.name, method)
	if err != nil {
		return nil, err
	}
	for i, a := range args {
		if err := a.appendTo(m); err != nil {
			return nil, fmt.Errorf("argument %d of %s.%s: %w", i, f.name, method, err)
		}
	}
	return m, nil
}

// Call calls method on the interface with the given arguments, and
// decodes the first return value with ret.
//
// File descriptors attached to the reply are closed once the reply
// is decoded. Use [Conn.Send] to call methods that return file
// descriptors.
func Call[T any](ctx context.Context, f Interface, method string, ret Codec[T], args ...Argument) (T, error) {
	var zero T
	m, err := f.NewCall(method, args...)
	if err != nil {
		return zero, err
	}
	reply, err := f.Conn().Send(ctx, m)
	if err != nil {
		return zero, err
	}
	defer reply.Close()
	v, err := DecodeReply(reply, ret)
	if err != nil {
		return zero, fmt.Errorf("decoding reply to %s.%s: %w", f.name, method, err)
	}
	return v, nil
}

// Call calls method on the interface with the given arguments, and
// discards any values returned by the peer.
func (f Interface) Call(ctx context.Context, method string, args ...Argument) error {
	m, err := f.NewCall(method, args...)
	if err != nil {
		return err
	}
	reply, err := f.Conn().Send(ctx, m)
	if err != nil {
		return err
	}
	return reply.Close()
}

// OneWay calls method on the interface with the given arguments, and
// tells the peer not to send a reply.
//
// OneWay returns after the method call is successfully sent. Since
// the response is suppressed at the bus level, there is no way to
// know whether the call was delivered to anyone, or acted upon.
func (f Interface) OneWay(ctx context.Context, method string, args ...Argument) error {
	m, err := f.NewCall(method, args...)
	if err != nil {
		return err
	}
	m.NoReply()
	_, err = f.Conn().Send(ctx, m)
	return err
}
