// Package transport provides the raw byte stream connections that
// carry DBus messages.
package transport

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creachadair/mds/queue"
	"golang.org/x/sys/unix"
)

// Transport is a raw DBus connection.
type Transport interface {
	io.ReadWriteCloser

	// GetFiles returns n received files that were attached to
	// previously read bytes as ancillary data.
	GetFiles(n int) ([]*os.File, error)
	// WriteWithFiles is like Transport.Write, but additionally sends
	// the given files as ancillary data.
	WriteWithFiles(bs []byte, fds []*os.File) (int, error)
}

// DialUnix connects to the bus listening on the unix socket at the
// given path, and authenticates with the EXTERNAL mechanism.
//
// A path that begins with '@' names a socket in the abstract
// namespace.
func DialUnix(ctx context.Context, path string) (Transport, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, err
	}
	return NewUnix(ctx, c.(*net.UnixConn))
}

// NewUnix authenticates to the bus on the other end of conn with the
// EXTERNAL mechanism, and returns a Transport that carries messages
// over conn. conn is closed if authentication fails.
//
// If the bus refuses to pass file descriptors, the returned Transport
// works but fails every attempt to send files.
func NewUnix(ctx context.Context, conn *net.UnixConn) (Transport, error) {
	ret := &unixTransport{
		conn: conn,
		fds:  queue.New[*os.File](),
	}
	ret.buf = bufio.NewReader(funcReader(ret.readToBuf))

	deadline, _ := ctx.Deadline()
	if err := ret.conn.SetDeadline(deadline); err != nil {
		ret.Close()
		return nil, err
	}
	if err := ret.auth(os.Getuid()); err != nil {
		ret.Close()
		return nil, fmt.Errorf("authenticating to bus: %w", err)
	}
	if err := ret.conn.SetDeadline(time.Time{}); err != nil {
		ret.Close()
		return nil, err
	}

	return ret, nil
}

// ErrNoFilePassing is returned when sending files over a Transport
// whose bus did not agree to pass file descriptors.
var ErrNoFilePassing = errors.New("bus does not support file descriptor passing")

// unixTransport is a Transport that runs over a Unix domain socket.
type unixTransport struct {
	conn *net.UnixConn
	oob  [512]byte
	buf  *bufio.Reader
	fds  *queue.Queue[*os.File]

	// passFiles is whether the bus agreed to pass file descriptors.
	passFiles bool
	// serverGUID is the bus's GUID, as reported during
	// authentication.
	serverGUID string
}

func (u *unixTransport) Read(bs []byte) (int, error) {
	return u.buf.Read(bs)
}

func (u *unixTransport) Write(bs []byte) (int, error) {
	return u.conn.Write(bs)
}

func (u *unixTransport) Close() error {
	u.fds.Each(func(f *os.File) bool {
		f.Close()
		return true
	})
	u.fds.Clear()
	return u.conn.Close()
}

func (u *unixTransport) WriteWithFiles(bs []byte, fs []*os.File) (int, error) {
	if len(fs) == 0 {
		return u.Write(bs)
	}
	if !u.passFiles {
		return 0, ErrNoFilePassing
	}

	fds := make([]int, 0, len(fs))
	for _, f := range fs {
		fds = append(fds, int(f.Fd()))
	}
	scm := unix.UnixRights(fds...)
	n, oobn, err := u.conn.WriteMsgUnix(bs, scm, nil)
	if err != nil {
		u.Close()
		return n, err
	}
	if oobn != len(scm) {
		u.Close()
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (u *unixTransport) GetFiles(n int) ([]*os.File, error) {
	ret := make([]*os.File, 0, n)
	for range n {
		f, ok := u.fds.Pop()
		if !ok {
			for _, f := range ret {
				f.Close()
			}
			return nil, errors.New("requested file not available")
		}
		ret = append(ret, f)
	}
	return ret, nil
}

func (u *unixTransport) auth(uid int) error {
	// Over a unix socket, the bus authenticates us with the peer
	// credentials it reads from the socket, so the whole SASL
	// exchange can be pipelined in one write. The bus answers each
	// command in order.
	uidBs := hex.EncodeToString([]byte(strconv.Itoa(uid)))
	preamble := "\x00AUTH EXTERNAL " + uidBs + "\r\nNEGOTIATE_UNIX_FD\r\nBEGIN\r\n"
	if _, err := io.WriteString(u.conn, preamble); err != nil {
		return err
	}

	resp, err := u.authLine()
	if err != nil {
		return err
	}
	guid, ok := strings.CutPrefix(resp, "OK ")
	if !ok {
		return fmt.Errorf("AUTH EXTERNAL failed, server said %q", resp)
	}
	u.serverGUID = guid

	resp, err = u.authLine()
	if err != nil {
		return err
	}
	switch {
	case resp == "AGREE_UNIX_FD":
		u.passFiles = true
	case strings.HasPrefix(resp, "ERROR"):
		u.passFiles = false
	default:
		return fmt.Errorf("NEGOTIATE_UNIX_FD failed, server said %q", resp)
	}

	return nil
}

// authLine reads one line of the authentication exchange, without
// its line terminator.
func (u *unixTransport) authLine() (string, error) {
	resp, err := u.buf.ReadString('\n')
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(resp, "\r\n") {
		return "", fmt.Errorf("malformed authentication response %q", resp)
	}
	return strings.TrimSuffix(resp, "\r\n"), nil
}

func (u *unixTransport) readToBuf(bs []byte) (int, error) {
	n, oobn, flags, _, err := u.conn.ReadMsgUnix(bs, u.oob[:])
	if flags&unix.MSG_CTRUNC != 0 {
		u.Close()
		return 0, errors.New("control message truncated")
	}
	if oobn > 0 {
		if oobErr := u.parseFDs(u.oob[:oobn]); oobErr != nil {
			u.Close()
			return 0, oobErr
		}
	}
	if err != nil {
		return n, err
	}

	return n, nil
}

func (u *unixTransport) parseFDs(oob []byte) error {
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return err
	}
	// Keep parsing after errors, so that every received descriptor
	// ends up either queued or closed.
	var errs []error
	for _, scm := range scms {
		if scm.Header.Level != unix.SOL_SOCKET || scm.Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&scm)
		if err != nil {
			errs = append(errs, fmt.Errorf("parsing unix rights: %w", err))
			continue
		}
		for _, fd := range fds {
			f := os.NewFile(uintptr(fd), "")
			if f == nil {
				errs = append(errs, fmt.Errorf("invalid file descriptor %d received on dbus socket", fd))
			} else {
				u.fds.Add(f)
			}
		}
	}

	return errors.Join(errs...)
}

type funcReader func([]byte) (int, error)

func (f funcReader) Read(bs []byte) (int, error) {
	return f(bs)
}
