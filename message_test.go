package dbus

import (
	"errors"
	"os"
	"testing"

	"github.com/danderson/dbus-typed/fragments"
	"github.com/google/go-cmp/cmp"
)

func TestNewMethodCall(t *testing.T) {
	tests := []struct {
		name    string
		dest    string
		path    ObjectPath
		iface   string
		method  string
		wantErr bool
	}{
		{"ok", "org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus", "Hello", false},
		{"unique dest", ":1.42", "/", "org.freedesktop.DBus.Peer", "Ping", false},
		{"bad dest", "nodots", "/", "org.freedesktop.DBus.Peer", "Ping", true},
		{"bad path", "org.freedesktop.DBus", "relative", "org.freedesktop.DBus", "Hello", true},
		{"bad interface", "org.freedesktop.DBus", "/", "org", "Hello", true},
		{"bad method", "org.freedesktop.DBus", "/", "org.freedesktop.DBus", "Hel.lo", true},
	}
	for _, tc := range tests {
		m, err := NewMethodCall(tc.dest, tc.path, tc.iface, tc.method)
		if gotErr := err != nil; gotErr != tc.wantErr {
			t.Errorf("%s: NewMethodCall() got err %v, want err=%v", tc.name, err, tc.wantErr)
			continue
		}
		if err == nil && !m.hdr.WantReply() {
			t.Errorf("%s: new method call does not want a reply", tc.name)
		}
	}
}

func mustCall(t *testing.T) *Message {
	t.Helper()
	m, err := NewMethodCall("org.example.Test", "/org/example", "org.example.Test", "Method")
	if err != nil {
		t.Fatal(err)
	}
	m.body.Order = fragments.LittleEndian
	return m
}

func TestMessageAppend(t *testing.T) {
	m := mustCall(t)
	if err := Append(m, Byte, 1); err != nil {
		t.Fatal(err)
	}
	if err := Append(m, String, "foo"); err != nil {
		t.Fatal(err)
	}
	if err := Append(m, Map(String, Uint32), map[string]uint32{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if got, want := m.Signature(), Signature("ysa{su}"); got != want {
		t.Errorf("Signature() = %q, want %q", got, want)
	}

	want := body(t, func(e *fragments.Encoder) error {
		e.Uint8(1)
		e.String("foo")
		return e.Array(8, func() error {
			return e.Struct(func() error {
				e.String("a")
				e.Uint32(1)
				return nil
			})
		})
	})
	if diff := cmp.Diff(m.body.Out, want); diff != "" {
		t.Errorf("wrong message body (-got+want):\n%s", diff)
	}
}

func TestMessageAppendErrors(t *testing.T) {
	m := mustCall(t)
	if err := Append(m, String, "ok"); err != nil {
		t.Fatal(err)
	}
	before := append([]byte(nil), m.body.Out...)

	checkUnchanged := func(what string) {
		t.Helper()
		if got := m.Signature(); got != "s" {
			t.Errorf("after %s, Signature() = %q, want %q", what, got, "s")
		}
		if diff := cmp.Diff(m.body.Out, before); diff != "" {
			t.Errorf("after %s, body changed (-got+want):\n%s", what, diff)
		}
	}

	if err := Append(m, Array(String), []string{"fine", "not\x00fine"}); err == nil {
		t.Error("appending string with NUL succeeded")
	}
	checkUnchanged("failed array append")

	err := Append(m, DictEntry(String, String), Entry[string, string]{"a", "b"})
	var terr TypeError
	if !errors.As(err, &terr) {
		t.Errorf("appending bare dict entry got err %v, want TypeError", err)
	}
	checkUnchanged("bare dict entry append")

	if err := Append(m, Ignore, Unit{}); err == nil {
		t.Error("appending Ignore succeeded")
	}
	checkUnchanged("Ignore append")
}

func TestMessageAttachFile(t *testing.T) {
	m := mustCall(t)
	f, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := m.AttachFile(f); got != 0 {
		t.Errorf("first AttachFile() = %d, want 0", got)
	}
	if got := m.AttachFile(f); got != 1 {
		t.Errorf("second AttachFile() = %d, want 1", got)
	}
}

func TestMessageNoReply(t *testing.T) {
	m := mustCall(t)
	m.NoReply()
	if m.hdr.WantReply() {
		t.Error("NoReply message wants reply")
	}
}

func TestReply(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		r := &Reply{hdr: &header{Type: msgTypeReturn}}
		if _, err := r.Cursor(); !errors.Is(err, ErrNoBody) {
			t.Errorf("Cursor() on empty reply got err %v, want ErrNoBody", err)
		}
		if _, err := DecodeReply(r, String); !errors.Is(err, ErrNoBody) {
			t.Errorf("DecodeReply() on empty reply got err %v, want ErrNoBody", err)
		}
	})

	t.Run("values", func(t *testing.T) {
		bs := body(t, func(e *fragments.Encoder) error {
			e.String("hello")
			e.Uint32(42)
			return nil
		})
		r := &Reply{
			hdr: &header{
				Type:      msgTypeReturn,
				Order:     fragments.LittleEndian,
				Signature: "su",
				Sender:    ":1.1",
			},
			body: bs,
		}
		if got := r.Sender(); got != ":1.1" {
			t.Errorf("Sender() = %q, want %q", got, ":1.1")
		}
		s, err := DecodeReply(r, String)
		if err != nil {
			t.Fatal(err)
		}
		if s != "hello" {
			t.Errorf("first value = %q, want %q", s, "hello")
		}

		cur, err := r.Cursor()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := Decode(cur, String); err != nil {
			t.Fatal(err)
		}
		u, err := Decode(cur, Uint32)
		if err != nil {
			t.Fatal(err)
		}
		if u != 42 {
			t.Errorf("second value = %d, want 42", u)
		}
		if !cur.Done() {
			t.Error("cursor not done after reading all values")
		}
	})

	t.Run("files", func(t *testing.T) {
		f1, err := os.Open(os.DevNull)
		if err != nil {
			t.Fatal(err)
		}
		f2, err := os.Open(os.DevNull)
		if err != nil {
			t.Fatal(err)
		}
		r := &Reply{
			hdr:   &header{Type: msgTypeReturn},
			files: []*os.File{f1, f2},
		}
		got, err := r.File(1)
		if err != nil {
			t.Fatal(err)
		}
		defer got.Close()
		if got != f2 {
			t.Error("File(1) returned the wrong file")
		}
		if _, err := r.File(1); err == nil {
			t.Error("claiming File(1) twice succeeded")
		}
		if _, err := r.File(2); err == nil {
			t.Error("claiming out of range file succeeded")
		}
		r.Close()
		if _, err := f1.Stat(); err == nil {
			t.Error("unclaimed file still open after Close")
		}
		if _, err := f2.Stat(); err != nil {
			t.Errorf("claimed file closed by Reply.Close: %v", err)
		}
	})
}
