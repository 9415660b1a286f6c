package dbus

import (
	"fmt"
	"os"

	"github.com/danderson/dbus-typed/fragments"
)

// A Message is an outgoing method call under construction.
//
// Arguments are added to the message in order with [Append], and the
// message is sent with [Conn.Send].
type Message struct {
	hdr   header
	body  fragments.Encoder
	sig   string
	files []*os.File
}

// NewMethodCall returns a Message that calls method on the given
// interface of the object at path, exported by the peer destination.
func NewMethodCall(destination string, path ObjectPath, iface, method string) (*Message, error) {
	if err := validBusName(destination); err != nil {
		return nil, err
	}
	if err := path.Valid(); err != nil {
		return nil, err
	}
	if err := validInterfaceName(iface); err != nil {
		return nil, err
	}
	if err := validMemberName(method); err != nil {
		return nil, err
	}
	return &Message{
		hdr: header{
			Order:       fragments.NativeEndian,
			Type:        msgTypeCall,
			Version:     1,
			Destination: destination,
			Path:        path,
			Interface:   iface,
			Member:      method,
		},
		body: fragments.Encoder{
			Order: fragments.NativeEndian,
		},
	}, nil
}

// Append encodes v with c, and appends it to the message's
// arguments.
//
// Append either appends the complete value, or leaves the message
// unchanged and returns an error.
func Append[T any](m *Message, c Codec[T], v T) error {
	vsig := c.Signature()
	if !vsig.Single() {
		return typeErr(string(vsig), "message arguments must be single complete types")
	}
	sig, err := ParseSignature(m.sig + string(vsig))
	if err != nil {
		return err
	}
	mark := len(m.body.Out)
	if err := c.Encode(&m.body, v); err != nil {
		m.body.Out = m.body.Out[:mark]
		return err
	}
	m.sig = string(sig)
	return nil
}

// AttachFile attaches f to the message, and returns the UnixFD that
// refers to it in message arguments.
//
// The file is sent when the message is sent, it is the caller's
// responsibility to close f afterwards.
func (m *Message) AttachFile(f *os.File) UnixFD {
	m.files = append(m.files, f)
	return UnixFD(len(m.files) - 1)
}

// NoReply marks the message as not expecting a reply. [Conn.Send]
// returns as soon as the message is written.
func (m *Message) NoReply() {
	m.hdr.Flags |= flagNoReply
}

// Signature returns the signature of the message's arguments.
func (m *Message) Signature() Signature {
	return Signature(m.sig)
}

func (m *Message) String() string {
	return fmt.Sprintf("%s:%s:%s.%s(%s)", m.hdr.Destination, m.hdr.Path, m.hdr.Interface, m.hdr.Member, m.sig)
}

// A Reply is the response to a method call.
type Reply struct {
	hdr   *header
	body  []byte
	files []*os.File
}

// Signature returns the signature of the reply's values.
func (r *Reply) Signature() Signature {
	return r.hdr.Signature
}

// Sender returns the unique bus name of the peer that sent the
// reply.
func (r *Reply) Sender() string {
	return r.hdr.Sender
}

// Cursor returns a Cursor positioned at the first value of the
// reply.
//
// Cursor returns ErrNoBody if the reply has no values.
func (r *Reply) Cursor() (*Cursor, error) {
	if r.hdr.Signature.IsZero() {
		return nil, ErrNoBody
	}
	return NewCursor(r.body, r.hdr.Order, r.hdr.Signature), nil
}

// File returns the file referred to by fd.
//
// Ownership of the file passes to the caller.
func (r *Reply) File(fd UnixFD) (*os.File, error) {
	if int(fd) >= len(r.files) || r.files[fd] == nil {
		return nil, fmt.Errorf("reply has no file at index %d", fd)
	}
	ret := r.files[fd]
	r.files[fd] = nil
	return ret, nil
}

// Close closes the files attached to the reply that have not been
// claimed with [Reply.File].
func (r *Reply) Close() error {
	for i, f := range r.files {
		if f != nil {
			f.Close()
			r.files[i] = nil
		}
	}
	return nil
}

// DecodeReply decodes the first value of r with c.
func DecodeReply[T any](r *Reply, c Codec[T]) (T, error) {
	cur, err := r.Cursor()
	if err != nil {
		var zero T
		return zero, err
	}
	return Decode(cur, c)
}
