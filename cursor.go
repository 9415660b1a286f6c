package dbus

import (
	"errors"
	"fmt"

	"github.com/danderson/dbus-typed/fragments"
)

// A Cursor reads a sequence of DBus values from a message body.
//
// DBus values carry no inline type information, the types of a
// message's values are given by the message's signature. A Cursor
// walks the signature and the data in step, so that the [Tag] of the
// value under the cursor is always known.
//
// Reading a value with a [Codec] does not move the cursor. Callers
// use [Cursor.Next] to move to the following value, and
// [Cursor.Recurse] to read the contents of a container.
//
// A Cursor borrows the memory of the message it reads, and must not
// be used after the message is discarded.
type Cursor struct {
	dec fragments.Decoder
	// sig is the signature of the values from the cursor position to
	// the end of the sequence.
	sig string
	// elem, if non-empty, is the element signature of the array
	// whose elements the cursor is iterating. The end of the array is
	// given by the end of dec's input.
	elem string
	// depth is the number of containers enclosing the cursor's
	// values.
	depth int
}

// maxDepth is the deepest nesting of containers, variants included,
// that a message may contain.
const maxDepth = 64

var errTooDeep = fmt.Errorf("values nested deeper than %d containers", maxDepth)

// NewCursor returns a Cursor over body, which holds values of the
// given signature encoded in the given byte order.
//
// body must start at an 8-byte aligned position of the original
// message, as message bodies do.
func NewCursor(body []byte, order fragments.ByteOrder, sig Signature) *Cursor {
	return &Cursor{
		dec: fragments.Decoder{
			Order: order,
			In:    body,
		},
		sig: string(sig),
	}
}

// Tag returns the wire tag of the value under the cursor, or
// [TagInvalid] if there are no more values.
func (c *Cursor) Tag() Tag {
	if c.elem != "" {
		if c.dec.Remaining() == 0 {
			return TagInvalid
		}
		return tagOf(c.elem[0])
	}
	if c.sig == "" {
		return TagInvalid
	}
	return tagOf(c.sig[0])
}

// Done reports whether the cursor has moved past the last value of
// its sequence.
func (c *Cursor) Done() bool {
	return c.Tag() == TagInvalid
}

// Signature returns the signature of the value under the cursor, or
// the empty signature if there are no more values.
func (c *Cursor) Signature() Signature {
	cur, _, err := c.current()
	if err != nil {
		return ""
	}
	return Signature(cur)
}

// current returns the signature of the value under the cursor, and
// the signature of the values that follow it.
func (c *Cursor) current() (cur, rest string, err error) {
	if c.Done() {
		return "", "", errors.New("no more values")
	}
	if c.elem != "" {
		return c.elem, "", nil
	}
	return splitOne(c.sig)
}

// Next moves the cursor past the current value.
func (c *Cursor) Next() error {
	cur, rest, err := c.current()
	if err != nil {
		return err
	}
	if err := skip(&c.dec, cur, c.depth); err != nil {
		return fmt.Errorf("skipping %s: %w", cur, err)
	}
	if c.elem == "" {
		c.sig = rest
	}
	return nil
}

// Recurse returns a Cursor over the contents of the container value
// under the cursor. The container must be an array, struct, dict
// entry or variant.
//
// The parent cursor is not moved.
func (c *Cursor) Recurse() (*Cursor, error) {
	cur, _, err := c.current()
	if err != nil {
		return nil, err
	}
	depth := c.depth + 1
	if depth > maxDepth {
		return nil, errTooDeep
	}
	d := c.dec
	switch cur[0] {
	case 'a':
		elem := cur[1:]
		elems, err := d.Elements(alignOf(elem[0]))
		if err != nil {
			return nil, err
		}
		return &Cursor{dec: elems, elem: elem, depth: depth}, nil
	case '(', '{':
		if err := d.Pad(8); err != nil {
			return nil, err
		}
		return &Cursor{dec: d, sig: cur[1 : len(cur)-1], depth: depth}, nil
	case 'v':
		inner, err := variantSignature(&d)
		if err != nil {
			return nil, err
		}
		return &Cursor{dec: d, sig: inner, depth: depth}, nil
	default:
		return nil, fmt.Errorf("cannot recurse into value of type %s", cur)
	}
}

// peek returns a decoder positioned at the current value.
func (c *Cursor) peek() fragments.Decoder {
	return c.dec
}

// variantSignature reads the signature of a variant's value, and
// checks that it describes exactly one complete type.
func variantSignature(d *fragments.Decoder) (string, error) {
	s, err := d.Signature()
	if err != nil {
		return "", err
	}
	sig, err := ParseSignature(s)
	if err != nil {
		return "", err
	}
	if !sig.Single() {
		return "", fmt.Errorf("variant signature %q is not a single complete type", s)
	}
	return s, nil
}

// skip consumes the value described by sig, which must be a single
// complete type. depth is the number of containers enclosing the
// value.
func skip(d *fragments.Decoder, sig string, depth int) error {
	switch sig[0] {
	case 'y':
		_, err := d.Uint8()
		return err
	case 'n', 'q':
		_, err := d.Uint16()
		return err
	case 'b', 'i', 'u', 'h':
		_, err := d.Uint32()
		return err
	case 'x', 't', 'd':
		_, err := d.Uint64()
		return err
	case 's', 'o':
		_, err := d.String()
		return err
	case 'g':
		_, err := d.Signature()
		return err
	case 'v':
		if depth >= maxDepth {
			return errTooDeep
		}
		inner, err := variantSignature(d)
		if err != nil {
			return err
		}
		return skip(d, inner, depth+1)
	case 'a':
		_, err := d.Elements(alignOf(sig[1]))
		return err
	case '(', '{':
		if depth >= maxDepth {
			return errTooDeep
		}
		return d.Struct(func() error {
			rest := sig[1 : len(sig)-1]
			for rest != "" {
				one, next, err := splitOne(rest)
				if err != nil {
					return err
				}
				if err := skip(d, one, depth+1); err != nil {
					return err
				}
				rest = next
			}
			return nil
		})
	default:
		return fmt.Errorf("unknown type specifier %q", sig[0])
	}
}
