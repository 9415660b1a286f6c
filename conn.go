package dbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"maps"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/danderson/dbus-typed/fragments"
	"github.com/danderson/dbus-typed/transport"
)

// DefaultCallTimeout is the time [Conn.Send] waits for a reply, if
// the provided context has no deadline.
const DefaultCallTimeout = 25 * time.Second

// maxMessageLen is the maximum size of a DBus message.
const maxMessageLen = 128 << 20

const (
	ifaceBus   = "org.freedesktop.DBus"
	ifacePeer  = "org.freedesktop.DBus.Peer"
	ifaceProps = "org.freedesktop.DBus.Properties"
)

// SystemBus connects to the system bus.
//
// The bus address is read from $DBUS_SYSTEM_BUS_ADDRESS if set, and
// otherwise defaults to the standard system bus socket.
func SystemBus(ctx context.Context) (*Conn, error) {
	addr := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS")
	if addr == "" {
		addr = "unix:path=/run/dbus/system_bus_socket"
	}
	return Dial(ctx, addr)
}

// SessionBus connects to the current user's session bus.
func SessionBus(ctx context.Context) (*Conn, error) {
	addr := os.Getenv("DBUS_SESSION_BUS_ADDRESS")
	if addr == "" {
		return nil, errors.New("session bus not available")
	}
	return Dial(ctx, addr)
}

// Dial connects to the bus at the given DBus server address, such as
// "unix:path=/run/dbus/system_bus_socket".
//
// Only unix socket addresses are supported. If address lists several
// servers, the first usable one is used.
func Dial(ctx context.Context, address string) (*Conn, error) {
	path, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	t, err := transport.DialUnix(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewConn(ctx, t)
}

// parseAddress returns the socket path of the first unix socket in
// the DBus server address addr. Abstract socket names are returned
// with a leading '@'.
func parseAddress(addr string) (string, error) {
	for _, server := range strings.Split(addr, ";") {
		params, ok := strings.CutPrefix(server, "unix:")
		if !ok {
			continue
		}
		for _, kv := range strings.Split(params, ",") {
			k, v, _ := strings.Cut(kv, "=")
			v, err := url.PathUnescape(v)
			if err != nil {
				return "", fmt.Errorf("invalid bus address %q: %w", addr, err)
			}
			switch k {
			case "path":
				return v, nil
			case "abstract":
				return "@" + v, nil
			}
		}
	}
	return "", fmt.Errorf("could not find usable bus address in %q", addr)
}

// NewConn returns a Conn that exchanges messages over t, which must
// be connected and authenticated to a message bus.
func NewConn(ctx context.Context, t transport.Transport) (*Conn, error) {
	ret := &Conn{
		t:     t,
		calls: map[uint32]*pendingCall{},
	}
	ret.bus = ret.
		Peer(ifaceBus).
		Object("/org/freedesktop/DBus").
		Interface(ifaceBus)

	go ret.readLoop()

	id, err := Call(ctx, ret.bus, "Hello", String)
	if err != nil {
		ret.Close()
		return nil, fmt.Errorf("getting DBus client ID: %w", err)
	}
	ret.clientID = id

	return ret, nil
}

// Conn is a DBus connection.
type Conn struct {
	t        transport.Transport
	clientID string

	bus Interface

	writeMu sync.Mutex
	enc     fragments.Encoder
	encHdr  []byte

	mu         sync.Mutex
	closed     bool
	closeErr   error
	calls      map[uint32]*pendingCall
	lastSerial uint32
}

type pendingCall struct {
	notify chan struct{}
	reply  *Reply
	err    error
}

// Close closes the DBus connection.
func (c *Conn) Close() error {
	c.fail(net.ErrClosed)
	return c.t.Close()
}

// fail shuts down the Conn, and fails all pending calls with err.
func (c *Conn) fail(err error) {
	var pend map[uint32]*pendingCall
	{
		c.mu.Lock()
		if !c.closed {
			c.closed = true
			c.closeErr = err
		}
		pend, c.calls = c.calls, nil
		c.mu.Unlock()
	}
	for call := range maps.Values(pend) {
		call.err = err
		close(call.notify)
	}
}

// LocalName returns the connection's unique bus name.
func (c *Conn) LocalName() string {
	return c.clientID
}

// Peer returns a Peer for the given bus name.
//
// The returned value is a purely local handle. It does not indicate
// that the requested peer exists, or that it is currently reachable.
func (c *Conn) Peer(name string) Peer {
	return Peer{
		c:    c,
		name: name,
	}
}

func (c *Conn) nextSerial() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, c.closeErr
	}
	c.lastSerial++
	return c.lastSerial, nil
}

// Send sends m, and waits for the reply.
//
// If ctx has no deadline, Send waits at most [DefaultCallTimeout] for
// the reply. If the peer replies with an error, Send returns a
// [CallError]. If m was marked with [Message.NoReply], Send returns a
// nil Reply as soon as the message is written.
func (c *Conn) Send(ctx context.Context, m *Message) (*Reply, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	hdr := m.hdr
	hdr.Signature = Signature(m.sig)
	hdr.Length = uint32(len(m.body.Out))
	hdr.NumFDs = uint32(len(m.files))

	var pending *pendingCall
	serial, err := func() (uint32, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return 0, c.closeErr
		}
		c.lastSerial++
		if hdr.WantReply() {
			pending = &pendingCall{
				notify: make(chan struct{}),
			}
			c.calls[c.lastSerial] = pending
		}
		return c.lastSerial, nil
	}()
	if err != nil {
		return nil, err
	}
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.calls[serial] == pending {
			delete(c.calls, serial)
		}
	}()

	hdr.Serial = serial
	if err := hdr.Valid(); err != nil {
		return nil, err
	}
	if err := c.writeMsg(&hdr, m.body.Out, m.files); err != nil {
		return nil, err
	}

	if pending == nil {
		return nil, nil
	}

	select {
	case <-pending.notify:
		return pending.reply, pending.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) writeMsg(hdr *header, body []byte, files []*os.File) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.enc.Out = c.encHdr[:0]
	if err := hdr.encode(&c.enc); err != nil {
		return err
	}
	c.encHdr = c.enc.Out

	if _, err := c.t.WriteWithFiles(c.encHdr, files); err != nil {
		return err
	}
	if _, err := c.t.Write(body); err != nil {
		return err
	}

	return nil
}

func (c *Conn) readLoop() {
	for {
		msg, err := c.readMsg()
		if errors.Is(err, net.ErrClosed) {
			// Conn was shut down.
			c.fail(err)
			return
		} else if err != nil {
			// Errors that bubble out here are either transport
			// failures, or a failure to conform to the DBus protocol
			// that leaves the stream unframed. Both are fatal to the
			// Conn.
			log.Printf("read error: %v", err)
			c.fail(err)
			c.t.Close()
			return
		}
		if err := c.dispatchMsg(msg); err != nil {
			log.Printf("dispatching message: %v", err)
		}
	}
}

type msg struct {
	*header
	body  []byte
	files []*os.File
}

// readMsg reads one complete DBus message from c.t. Must not be
// called concurrently (Conn.readLoop ensures this).
func (c *Conn) readMsg() (*msg, error) {
	var fixed [headerFixedLen]byte
	if _, err := io.ReadFull(c.t, fixed[:]); err != nil {
		return nil, err
	}
	d := fragments.Decoder{In: fixed[:]}
	if err := d.ByteOrderFlag(); err != nil {
		return nil, err
	}
	d.Offset = 12
	fieldsLen, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if fieldsLen > fragments.MaxArrayLen {
		return nil, fmt.Errorf("header field array length %d exceeds maximum %d", fieldsLen, fragments.MaxArrayLen)
	}
	hdrLen := (headerFixedLen + int(fieldsLen) + 7) &^ 7
	hdrBs := make([]byte, hdrLen)
	copy(hdrBs, fixed[:])
	if _, err := io.ReadFull(c.t, hdrBs[headerFixedLen:]); err != nil {
		return nil, err
	}
	hdr, err := decodeHeader(hdrBs)
	if err != nil {
		return nil, err
	}
	if hdrLen+int(hdr.Length) > maxMessageLen {
		return nil, fmt.Errorf("message length %d exceeds maximum %d", hdrLen+int(hdr.Length), maxMessageLen)
	}

	ret := &msg{
		header: hdr,
		body:   make([]byte, hdr.Length),
	}
	if _, err := io.ReadFull(c.t, ret.body); err != nil {
		return nil, err
	}
	ret.files, err = c.t.GetFiles(int(hdr.NumFDs))
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Conn) dispatchMsg(msg *msg) error {
	if err := msg.Valid(); err != nil {
		closeFiles(msg.files)
		return fmt.Errorf("received invalid header: %w", err)
	}

	switch msg.Type {
	case msgTypeCall:
		closeFiles(msg.files)
		if msg.WantReply() {
			go c.dispatchCall(msg)
		}
	case msgTypeReturn:
		c.dispatchReturn(msg)
	case msgTypeError:
		c.dispatchErr(msg)
	default:
		closeFiles(msg.files)
	}
	return nil
}

func (c *Conn) takePending(serial uint32) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := c.calls[serial]
	delete(c.calls, serial)
	return ret
}

func (c *Conn) dispatchReturn(msg *msg) {
	pending := c.takePending(msg.ReplySerial)
	if pending == nil {
		// Response to a canceled call
		closeFiles(msg.files)
		return
	}
	pending.reply = &Reply{
		hdr:   msg.header,
		body:  msg.body,
		files: msg.files,
	}
	close(pending.notify)
}

func (c *Conn) dispatchErr(msg *msg) {
	closeFiles(msg.files)
	pending := c.takePending(msg.ReplySerial)
	if pending == nil {
		// Response to a canceled call
		return
	}

	detail := ""
	if strings.HasPrefix(string(msg.Signature), "s") {
		cur := NewCursor(msg.body, msg.Order, msg.Signature)
		s, err := Decode(cur, String)
		if err != nil {
			detail = fmt.Sprintf("got error while decoding error detail: %v", err)
		} else {
			detail = s
		}
	}

	pending.err = CallError{
		Name:   msg.ErrName,
		Detail: detail,
	}
	close(pending.notify)
}

// dispatchCall answers an incoming method call. Only the
// org.freedesktop.DBus.Peer interface is implemented, every other
// call gets an error reply.
func (c *Conn) dispatchCall(msg *msg) {
	serial, err := c.nextSerial()
	if err != nil {
		return
	}
	resp := &header{
		Order:       fragments.NativeEndian,
		Type:        msgTypeReturn,
		Version:     1,
		Serial:      serial,
		Destination: msg.Sender,
		ReplySerial: msg.Serial,
	}
	body := fragments.Encoder{Order: fragments.NativeEndian}

	var callErr error
	switch {
	case msg.Interface == ifacePeer && msg.Member == "Ping":
	case msg.Interface == ifacePeer && msg.Member == "GetMachineId":
		id, err := machineID()
		if err != nil {
			callErr = err
			break
		}
		resp.Signature = "s"
		body.String(id)
	default:
		resp.ErrName = "org.freedesktop.DBus.Error.UnknownMethod"
		callErr = fmt.Errorf("no such method %s.%s", msg.Interface, msg.Member)
	}

	if callErr != nil {
		resp.Type = msgTypeError
		if resp.ErrName == "" {
			resp.ErrName = "org.freedesktop.DBus.Error.Failed"
		}
		resp.Signature = "s"
		body.Out = body.Out[:0]
		body.String(callErr.Error())
	}
	resp.Length = uint32(len(body.Out))
	if err := c.writeMsg(resp, body.Out, nil); err != nil {
		log.Printf("replying to %s.%s: %v", msg.Interface, msg.Member, err)
	}
}

var machineID = sync.OnceValues(func() (string, error) {
	bs, err := os.ReadFile("/etc/machine-id")
	if errors.Is(err, fs.ErrNotExist) {
		bs, err = os.ReadFile("/var/lib/dbus/machine-id")
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bs)), nil
})

func closeFiles(fs []*os.File) {
	for _, f := range fs {
		f.Close()
	}
}
