// Package dbustest runs private message buses for tests.
package dbustest

import (
	"bufio"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	dbus "github.com/danderson/dbus-typed"
)

//go:embed dbus.config
var dbusConfig string

// startTimeout bounds how long New waits for the bus and monitor to
// come up.
const startTimeout = 10 * time.Second

// Available reports whether the required binaries are available for
// testing against a real DBus server.
func Available() bool {
	for _, bin := range []string{"dbus-daemon", "dbus-monitor"} {
		if _, err := exec.LookPath(bin); err != nil {
			return false
		}
	}
	return true
}

// Bus is an isolated DBus instance for tests.
type Bus struct {
	sock string
	addr string
}

// New launches a DBus instance dedicated to the calling test. The
// bus is shut down when the test completes.
//
// If [Available] is false, New calls t.Skip to skip the calling test.
//
// If logMonitor is true, every message that crosses the bus is
// logged with t.Log.
func New(t *testing.T, logMonitor bool) *Bus {
	t.Helper()
	if !Available() {
		t.Skip("dbus-daemon and dbus-monitor not available, cannot run test bus")
	}

	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "bus.config")
	if err := os.WriteFile(cfgPath, []byte(dbusConfig), 0600); err != nil {
		t.Fatal(err)
	}
	ret := &Bus{
		sock: filepath.Join(tmp, "bus.sock"),
	}

	daemon := start(t, "dbus-daemon",
		"--config-file="+cfgPath,
		"--nofork",
		"--nopidfile",
		"--nosyslog",
		"--address=unix:path="+ret.sock,
		"--print-address")
	addr, err := readLine(daemon.out)
	if err != nil {
		t.Fatalf("waiting for bus address: %v", err)
	}
	ret.addr = addr
	go daemon.discard()

	if logMonitor {
		mon := start(t, "dbus-monitor", "--address", ret.addr)
		first := make(chan struct{})
		go mon.logMessages(t, first)
		select {
		case <-first:
		case <-time.After(startTimeout):
			t.Fatal("timed out waiting for dbus-monitor")
		}
	}

	return ret
}

// Socket returns the path to the bus's unix socket.
func (b *Bus) Socket() string {
	return b.sock
}

// Address returns the DBus server address of the bus.
func (b *Bus) Address() string {
	return b.addr
}

// MustConn returns a connection to the bus. It causes an immediate
// test failure with t.Fatal if it is unable to connect. The
// connection is closed when the test completes.
func (b *Bus) MustConn(t *testing.T) *dbus.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	ret, err := dbus.Dial(ctx, b.Address())
	if err != nil {
		t.Fatalf("connecting to test bus: %v", err)
	}
	t.Cleanup(func() { ret.Close() })
	return ret
}

// process is a helper binary running for the duration of a test.
type process struct {
	out *bufio.Reader
	// outDone is closed once the process's output has been fully
	// consumed, and the process can be waited on.
	outDone chan struct{}
}

// start runs the named binary until the end of the test.
func start(t *testing.T, name string, args ...string) *process {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = startTimeout
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		t.Fatalf("starting %s: %v", name, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		t.Fatalf("starting %s: %v", name, err)
	}

	ret := &process{
		out:     bufio.NewReader(stdout),
		outDone: make(chan struct{}),
	}
	t.Cleanup(func() {
		cancel()
		select {
		case <-ret.outDone:
		case <-time.After(startTimeout):
			t.Logf("timed out waiting for %s output to finish", name)
		}
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			t.Errorf("%s exited with error: %v", name, err)
		}
	})
	return ret
}

// discard consumes the rest of the process's output.
func (p *process) discard() {
	defer close(p.outDone)
	io.Copy(io.Discard, p.out)
}

// readLine returns the first line of output from the process.
func readLine(r *bufio.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		l, err := r.ReadString('\n')
		done <- result{strings.TrimSpace(l), err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		if res.line == "" {
			return "", errors.New("empty output")
		}
		return res.line, nil
	case <-time.After(startTimeout):
		return "", fmt.Errorf("no output after %v", startTimeout)
	}
}

// isMessageStart reports whether line is the first line of a message
// in dbus-monitor's output.
func isMessageStart(line string) bool {
	for _, p := range []string{"method ", "signal ", "error "} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// logMessages logs the process's output with t.Log, one log entry per
// bus message. first is closed once the process produces output.
func (p *process) logMessages(t *testing.T, first chan struct{}) {
	defer close(p.outDone)

	var (
		msg       []string
		firstOnce sync.Once
	)
	flush := func() {
		if len(msg) > 0 {
			t.Log(strings.Join(msg, "\n"))
			msg = msg[:0]
		}
	}

	s := bufio.NewScanner(p.out)
	s.Buffer(nil, 1<<20)
	for s.Scan() {
		line := s.Text()
		if isMessageStart(line) {
			flush()
		}
		msg = append(msg, line)
		firstOnce.Do(func() { close(first) })
	}
	flush()
}
