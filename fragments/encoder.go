package fragments

import "fmt"

// An Encoder appends DBus wire format values to a byte slice.
//
// Every method except [Encoder.Write] first pads the output to the
// alignment of the value it writes.
type Encoder struct {
	// Order is the byte order of multi-byte values.
	Order ByteOrder
	// Out is the encoded output. Alignment is relative to the start
	// of Out, so Out must start at an 8-byte aligned position of the
	// message.
	Out []byte
}

var zeros [8]byte

// Pad appends zero bytes until len(Out) is a multiple of align.
func (e *Encoder) Pad(align int) {
	if extra := len(e.Out) % align; extra != 0 {
		e.Out = append(e.Out, zeros[:align-extra]...)
	}
}

// Write appends bs verbatim, with no padding or framing.
func (e *Encoder) Write(bs []byte) {
	e.Out = append(e.Out, bs...)
}

// Bytes writes bs as a DBus byte array.
func (e *Encoder) Bytes(bs []byte) {
	e.Uint32(uint32(len(bs)))
	e.Write(bs)
}

// String writes a DBus string: a uint32 length, the bytes of s, and a
// NUL terminator.
func (e *Encoder) String(s string) {
	e.Uint32(uint32(len(s)))
	e.Out = append(e.Out, s...)
	e.Out = append(e.Out, 0)
}

// Signature writes a DBus signature: a uint8 length, the bytes of
// sig, and a NUL terminator. sig is not validated.
func (e *Encoder) Signature(sig string) {
	e.Uint8(uint8(len(sig)))
	e.Out = append(e.Out, sig...)
	e.Out = append(e.Out, 0)
}

func (e *Encoder) Uint8(v uint8) {
	e.Out = append(e.Out, v)
}

func (e *Encoder) Uint16(v uint16) {
	e.Pad(2)
	e.Out = e.Order.AppendUint16(e.Out, v)
}

func (e *Encoder) Uint32(v uint32) {
	e.Pad(4)
	e.Out = e.Order.AppendUint32(e.Out, v)
}

func (e *Encoder) Uint64(v uint64) {
	e.Pad(8)
	e.Out = e.Order.AppendUint64(e.Out, v)
}

// Array writes a DBus array whose elements are written by the
// elements function, which must pad each element itself.
//
// elemAlign is the alignment of the element type. The padding between
// the length and the first element is written even for empty arrays,
// and is not counted in the array length.
func (e *Encoder) Array(elemAlign int, elements func() error) error {
	e.Pad(4)
	lenAt := len(e.Out)
	e.Uint32(0)
	e.Pad(elemAlign)

	start := len(e.Out)
	if err := elements(); err != nil {
		return err
	}
	n := len(e.Out) - start
	if n > MaxArrayLen {
		return fmt.Errorf("array length %d exceeds maximum %d", n, MaxArrayLen)
	}
	e.Order.PutUint32(e.Out[lenAt:], uint32(n))
	return nil
}

// Struct writes a DBus struct or dict entry, whose fields are written
// by the fields function.
func (e *Encoder) Struct(fields func() error) error {
	e.Pad(8)
	return fields()
}

// ByteOrderFlag writes the flag byte of [Encoder.Order], 'l' or 'B'.
func (e *Encoder) ByteOrderFlag() {
	e.Out = append(e.Out, Flag(e.Order))
}
