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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
)

const testGUID = "0123456789abcdef0123456789abcdef"

// socketpair returns two connected unix sockets.
func socketpair(t *testing.T) (client, server *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	conn := func(fd int, name string) *net.UnixConn {
		f := os.NewFile(uintptr(fd), name)
		defer f.Close()
		c, err := net.FileConn(f)
		if err != nil {
			t.Fatalf("FileConn(%s): %v", name, err)
		}
		t.Cleanup(func() { c.Close() })
		return c.(*net.UnixConn)
	}
	return conn(fds[0], "client"), conn(fds[1], "server")
}

// fakeAuth plays the bus side of the authentication exchange on conn,
// answering AUTH with authResp and NEGOTIATE_UNIX_FD with fdResp.
func fakeAuth(conn *net.UnixConn, authResp, fdResp string) error {
	r := bufio.NewReader(conn)
	nul, err := r.ReadByte()
	if err != nil {
		return err
	}
	if nul != 0 {
		return fmt.Errorf("got leading byte %d, want 0", nul)
	}

	expect := func(want string) error {
		l, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		if l != want+"\r\n" {
			return fmt.Errorf("got line %q, want %q", l, want)
		}
		return nil
	}
	reply := func(s string) error {
		_, err := io.WriteString(conn, s+"\r\n")
		return err
	}

	uid := hex.EncodeToString([]byte(strconv.Itoa(os.Getuid())))
	if err := expect("AUTH EXTERNAL " + uid); err != nil {
		return err
	}
	if err := reply(authResp); err != nil {
		return err
	}
	if !strings.HasPrefix(authResp, "OK ") {
		return nil
	}
	if err := expect("NEGOTIATE_UNIX_FD"); err != nil {
		return err
	}
	if err := reply(fdResp); err != nil {
		return err
	}
	if err := expect("BEGIN"); err != nil {
		return err
	}
	if r.Buffered() != 0 {
		return fmt.Errorf("%d unexpected bytes after BEGIN", r.Buffered())
	}
	return nil
}

// connect runs NewUnix against a fake bus that gives the provided
// authentication answers.
func connect(t *testing.T, authResp, fdResp string) (*unixTransport, *net.UnixConn, error) {
	t.Helper()
	client, server := socketpair(t)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- fakeAuth(server, authResp, fdResp)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := NewUnix(ctx, client)
	if err := <-srvErr; err != nil {
		t.Fatalf("fake bus: %v", err)
	}
	if err != nil {
		return nil, server, err
	}
	t.Cleanup(func() { tr.Close() })
	return tr.(*unixTransport), server, nil
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name          string
		authResp      string
		fdResp        string
		wantErr       bool
		wantPassFiles bool
	}{
		{"ok", "OK " + testGUID, "AGREE_UNIX_FD", false, true},
		{"no_fds", "OK " + testGUID, "ERROR fd passing not supported", false, false},
		{"rejected", "REJECTED EXTERNAL", "", true, false},
		{"garbage_fd_answer", "OK " + testGUID, "DATA", true, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, _, err := connect(t, tc.authResp, tc.fdResp)
			if gotErr := err != nil; gotErr != tc.wantErr {
				t.Fatalf("NewUnix got err %v, want err=%v", err, tc.wantErr)
			}
			if err != nil {
				return
			}
			if got := tr.passFiles; got != tc.wantPassFiles {
				t.Errorf("passFiles = %v, want %v", got, tc.wantPassFiles)
			}
			if got := tr.serverGUID; got != testGUID {
				t.Errorf("serverGUID = %q, want %q", got, testGUID)
			}
		})
	}
}

func TestReadWrite(t *testing.T) {
	tr, server, err := connect(t, "OK "+testGUID, "AGREE_UNIX_FD")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tr.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got := make([]byte, 5)
	if _, err := io.ReadFull(server, got); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if diff := cmp.Diff(string(got), "hello"); diff != "" {
		t.Errorf("server got wrong bytes (-got+want):\n%s", diff)
	}

	if _, err := server.Write([]byte("world")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	if _, err := io.ReadFull(tr, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(string(got), "world"); diff != "" {
		t.Errorf("transport got wrong bytes (-got+want):\n%s", diff)
	}
}

// tempFile returns an open file whose content is s.
func tempFile(t *testing.T, s string) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "fd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	if _, err := f.WriteString(s); err != nil {
		t.Fatal(err)
	}
	return f
}

// readFile returns the content of f, read from its start.
func readFile(t *testing.T, f *os.File) string {
	t.Helper()
	bs, err := io.ReadAll(io.NewSectionReader(f, 0, 1<<20))
	if err != nil {
		t.Fatalf("reading passed file: %v", err)
	}
	return string(bs)
}

func TestReceiveFiles(t *testing.T) {
	tr, server, err := connect(t, "OK "+testGUID, "AGREE_UNIX_FD")
	if err != nil {
		t.Fatal(err)
	}

	f := tempFile(t, "passed")
	scm := unix.UnixRights(int(f.Fd()))
	if _, _, err := server.WriteMsgUnix([]byte("msg"), scm, nil); err != nil {
		t.Fatalf("server WriteMsgUnix: %v", err)
	}

	got := make([]byte, 3)
	if _, err := io.ReadFull(tr, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	fs, err := tr.GetFiles(1)
	if err != nil {
		t.Fatalf("GetFiles: %v", err)
	}
	defer fs[0].Close()
	if got := readFile(t, fs[0]); got != "passed" {
		t.Errorf("passed file contains %q, want %q", got, "passed")
	}

	if _, err := tr.GetFiles(1); err == nil {
		t.Error("GetFiles with no queued files succeeded, want error")
	}
}

func TestSendFiles(t *testing.T) {
	tr, server, err := connect(t, "OK "+testGUID, "AGREE_UNIX_FD")
	if err != nil {
		t.Fatal(err)
	}

	f := tempFile(t, "sent")
	if _, err := tr.WriteWithFiles([]byte("msg"), []*os.File{f}); err != nil {
		t.Fatalf("WriteWithFiles: %v", err)
	}

	buf := make([]byte, 16)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := server.ReadMsgUnix(buf, oob)
	if err != nil {
		t.Fatalf("server ReadMsgUnix: %v", err)
	}
	if got := string(buf[:n]); got != "msg" {
		t.Errorf("server got %q, want %q", got, "msg")
	}
	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		t.Fatalf("parsing control message: %v", err)
	}
	if len(scms) != 1 {
		t.Fatalf("got %d control messages, want 1", len(scms))
	}
	fds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		t.Fatalf("ParseUnixRights: %v", err)
	}
	if len(fds) != 1 {
		t.Fatalf("got %d fds, want 1", len(fds))
	}
	got := os.NewFile(uintptr(fds[0]), "received")
	defer got.Close()
	if s := readFile(t, got); s != "sent" {
		t.Errorf("received file contains %q, want %q", s, "sent")
	}
}

func TestSendFilesNotNegotiated(t *testing.T) {
	tr, _, err := connect(t, "OK "+testGUID, "ERROR")
	if err != nil {
		t.Fatal(err)
	}

	f := tempFile(t, "nope")
	_, err = tr.WriteWithFiles([]byte("msg"), []*os.File{f})
	if !errors.Is(err, ErrNoFilePassing) {
		t.Fatalf("WriteWithFiles got err %v, want %v", err, ErrNoFilePassing)
	}

	// Plain writes still work.
	if _, err := tr.WriteWithFiles([]byte("msg"), nil); err != nil {
		t.Fatalf("WriteWithFiles without files: %v", err)
	}
}
