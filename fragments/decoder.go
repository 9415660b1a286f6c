package fragments

import (
	"fmt"
	"io"
)

// MaxArrayLen is the maximum length in bytes of a DBus array.
const MaxArrayLen = 64 << 20

// A Decoder provides utilities to read a DBus wire format message
// from a byte slice.
//
// Methods advance the read cursor as needed to account for the
// padding required by DBus alignment rules, except for [Decoder.Read]
// which reads bytes verbatim.
//
// Decoder is a small value type. Copying a Decoder produces an
// independent read cursor over the same input.
type Decoder struct {
	// Order is the byte order to use when reading multi-byte values.
	Order ByteOrder
	// In is the input to read. Alignment is computed relative to the
	// start of In, so In must begin at an 8-byte aligned position of
	// the original message.
	In []byte
	// Offset is the read position within In.
	Offset int
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.In) - d.Offset
}

// Pad consumes padding bytes as needed to make the next read happen
// at a multiple of align bytes. If the decoder is already correctly
// aligned, no bytes are consumed.
func (d *Decoder) Pad(align int) error {
	extra := d.Offset % align
	if extra == 0 {
		return nil
	}
	_, err := d.Read(align - extra)
	return err
}

// Read reads n bytes, with no framing or padding.
//
// The returned slice aliases In.
func (d *Decoder) Read(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	ret := d.In[d.Offset : d.Offset+n]
	d.Offset += n
	return ret, nil
}

// Bytes reads a DBus byte array.
//
// The returned slice aliases In.
func (d *Decoder) Bytes() ([]byte, error) {
	ln, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if ln > MaxArrayLen {
		return nil, fmt.Errorf("array length %d exceeds maximum %d", ln, MaxArrayLen)
	}
	return d.Read(int(ln))
}

// String reads a DBus string.
func (d *Decoder) String() (string, error) {
	ln, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if ln > MaxArrayLen {
		return "", fmt.Errorf("string length %d exceeds maximum %d", ln, MaxArrayLen)
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	if ret[len(ret)-1] != 0 {
		return "", fmt.Errorf("string is missing NUL terminator")
	}
	return string(ret[:len(ret)-1]), nil
}

// Signature reads a DBus type signature string. The signature is
// returned verbatim, it is the caller's responsibility to validate
// it.
func (d *Decoder) Signature() (string, error) {
	ln, err := d.Uint8()
	if err != nil {
		return "", err
	}
	ret, err := d.Read(int(ln) + 1)
	if err != nil {
		return "", err
	}
	if ret[len(ret)-1] != 0 {
		return "", fmt.Errorf("signature is missing NUL terminator")
	}
	return string(ret[:len(ret)-1]), nil
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	if err := d.Pad(2); err != nil {
		return 0, err
	}
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Uint64 reads a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	if err := d.Pad(8); err != nil {
		return 0, err
	}
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// Elements reads an array header, and returns a Decoder limited to
// the array's element bytes. d is advanced past the entire array.
//
// elemAlign is the alignment of the array's element type, so that
// the padding between the array length and the first element is
// consumed even if the array is empty.
func (d *Decoder) Elements(elemAlign int) (Decoder, error) {
	ln, err := d.Uint32()
	if err != nil {
		return Decoder{}, err
	}
	if ln > MaxArrayLen {
		return Decoder{}, fmt.Errorf("array length %d exceeds maximum %d", ln, MaxArrayLen)
	}
	if err := d.Pad(elemAlign); err != nil {
		return Decoder{}, err
	}
	if int(ln) > d.Remaining() {
		return Decoder{}, io.ErrUnexpectedEOF
	}
	end := d.Offset + int(ln)
	ret := Decoder{
		Order:  d.Order,
		In:     d.In[:end],
		Offset: d.Offset,
	}
	d.Offset = end
	return ret, nil
}

// Array reads an array.
//
// readElement is called repeatedly while there is array data
// remaining to process, passing in the array index of the element to
// be decoded. readElement must completely consume all array bytes
// from the input, and must not read beyond the end of the array data.
//
// Array returns the total number of array elements that were
// processed.
func (d *Decoder) Array(elemAlign int, readElement func(elems *Decoder, idx int) error) (int, error) {
	elems, err := d.Elements(elemAlign)
	if err != nil {
		return 0, err
	}
	idx := 0
	for elems.Remaining() > 0 {
		if err := readElement(&elems, idx); err != nil {
			return idx, err
		}
		idx++
	}
	return idx, nil
}

// Struct reads a struct.
//
// Struct fields must be read within the provided fields function.
func (d *Decoder) Struct(fields func() error) error {
	if err := d.Pad(8); err != nil {
		return err
	}
	return fields()
}

// ByteOrderFlag reads a DBus byte order flag byte, and sets
// [Decoder.Order] to match it.
func (d *Decoder) ByteOrderFlag() error {
	v, err := d.Uint8()
	if err != nil {
		return err
	}
	switch v {
	case 'B':
		d.Order = BigEndian
	case 'l':
		d.Order = LittleEndian
	default:
		return fmt.Errorf("unknown byte order flag %q", v)
	}
	return nil
}
