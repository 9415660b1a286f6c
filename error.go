package dbus

import (
	"errors"
	"fmt"
	"strings"
)

// TypeError is the error returned when a codec is used in a way that
// cannot be represented in the DBus wire format.
type TypeError struct {
	// Type is the name of the type that caused the error.
	Type string
	// Reason is an explanation of why the type isn't representable by
	// DBus.
	Reason error
}

func (e TypeError) Error() string {
	return fmt.Sprintf("dbus cannot represent %s: %s", e.Type, e.Reason)
}

func (e TypeError) Unwrap() error {
	return e.Reason
}

func typeErr(typ string, reason string, args ...any) error {
	return TypeError{typ, fmt.Errorf(reason, args...)}
}

// TagMismatchError is the error returned when the wire type of a
// value doesn't match the type requested by the caller.
type TagMismatchError struct {
	// Got is the tag of the value found on the wire.
	Got Tag
	// Want is the set of tags that the caller would have accepted.
	Want []Tag
}

func (e TagMismatchError) Error() string {
	want := make([]string, 0, len(e.Want))
	for _, t := range e.Want {
		want = append(want, t.String())
	}
	return fmt.Sprintf("expected type one of [%s] but received %s", strings.Join(want, " "), e.Got)
}

// VariantExhaustedError is the error returned when none of a
// variant's candidate types can decode the variant's value.
type VariantExhaustedError struct {
	// Got is the tag of the variant's value.
	Got Tag
}

func (e VariantExhaustedError) Error() string {
	return fmt.Sprintf("no matching variant type found for %s", e.Got)
}

// CallError is the error returned from failed DBus method calls.
type CallError struct {
	// Name is the error name provided by the remote peer.
	Name string
	// Detail is the human-readable explanation of what went wrong.
	Detail string
}

func (e CallError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("call error %s", e.Name)
	}
	return fmt.Sprintf("call error %s: %s", e.Name, e.Detail)
}

// ErrNoBody is the error returned when reading values from a reply
// that carries no values.
var ErrNoBody = errors.New("reply has no body")

// checkTag returns a TagMismatchError if c's current value can't be
// decoded by a codec of kind k.
func checkTag(c *Cursor, k Kind) error {
	if got := c.Tag(); !Accepts(k, got) {
		return TagMismatchError{Got: got, Want: []Tag{TagFor(k)}}
	}
	return nil
}
