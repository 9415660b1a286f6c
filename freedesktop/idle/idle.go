// Package idle provides an interface to the Freedesktop session idle
// and locking API.
//
// The API lives on the org.freedesktop.ScreenSaver interface for
// historical reasons. It reports how long the session has been idle
// or locked, locks the session on demand, and lets applications such
// as video players keep an idle session from locking.
package idle

import (
	"context"
	"time"

	dbus "github.com/danderson/dbus-typed"
)

const (
	serviceName = "org.freedesktop.ScreenSaver"
	objectPath  = "/org/freedesktop/ScreenSaver"
)

type Idle struct{ iface dbus.Interface }

// New returns an interface to the session's idle service.
func New(conn *dbus.Conn) Idle {
	return Interface(conn.Peer(serviceName).Object(objectPath))
}

// Interface returns an idle service interface on the given object.
func Interface(obj dbus.Object) Idle {
	return Idle{obj.Interface(serviceName)}
}

// Locked reports whether the session is locked.
func (i Idle) Locked(ctx context.Context) (bool, error) {
	return dbus.Call(ctx, i.iface, "GetActive", dbus.Bool)
}

// LockedTime returns how long the session has been locked, or 0 if it
// is unlocked.
func (i Idle) LockedTime(ctx context.Context) (time.Duration, error) {
	return i.duration(ctx, "GetActiveTime")
}

// IdleTime returns how long the session has gone without user input.
// Sessions can be idle whether or not they are locked.
func (i Idle) IdleTime(ctx context.Context) (time.Duration, error) {
	return i.duration(ctx, "GetSessionIdleTime")
}

func (i Idle) duration(ctx context.Context, method string) (time.Duration, error) {
	secs, err := dbus.Call(ctx, i.iface, method, dbus.Uint32)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

// Inhibit keeps the session from locking due to idleness, until the
// returned function is called. application and reason are shown to
// users.
func (i Idle) Inhibit(ctx context.Context, application, reason string) (release func(context.Context) error, err error) {
	cookie, err := dbus.Call(ctx, i.iface, "Inhibit", dbus.Uint32,
		dbus.Arg(dbus.String, application),
		dbus.Arg(dbus.String, reason))
	if err != nil {
		return nil, err
	}
	release = func(ctx context.Context) error {
		return i.iface.Call(ctx, "UnInhibit", dbus.Arg(dbus.Uint32, cookie))
	}
	return release, nil
}

// Lock locks the session immediately.
func (i Idle) Lock(ctx context.Context) error {
	return i.iface.Call(ctx, "Lock")
}
