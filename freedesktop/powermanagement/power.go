// Package powermanagement provides an interface to the Freedesktop
// power management API.
//
// This corresponds to the org.freedesktop.PowerManagement service on
// the session bus.
package powermanagement

import (
	"context"

	dbus "github.com/danderson/dbus-typed"
)

const (
	serviceName  = "org.freedesktop.PowerManagement"
	inhibitIface = serviceName + ".Inhibit"
	objectPath   = "/org/freedesktop/PowerManagement"
)

type PowerManagement struct {
	main    dbus.Interface
	inhibit dbus.Interface
}

// New returns an interface to the power management service.
func New(conn *dbus.Conn) PowerManagement {
	return Interface(conn.Peer(serviceName).Object(objectPath))
}

// Interface returns a power management interface on the given object.
func Interface(obj dbus.Object) PowerManagement {
	return PowerManagement{
		main:    obj.Interface(serviceName),
		inhibit: obj.Interface(inhibitIface),
	}
}

// query calls a method that takes no arguments and returns a bool.
func query(ctx context.Context, iface dbus.Interface, method string) (bool, error) {
	return dbus.Call(ctx, iface, method, dbus.Bool)
}

// CanSuspend reports whether the system can suspend to RAM.
func (pm PowerManagement) CanSuspend(ctx context.Context) (bool, error) {
	return query(ctx, pm.main, "CanSuspend")
}

// CanHibernate reports whether the system can suspend to disk and
// power off.
func (pm PowerManagement) CanHibernate(ctx context.Context) (bool, error) {
	return query(ctx, pm.main, "CanHibernate")
}

// CanHybridSuspend reports whether the system can save its state to
// disk and then suspend to RAM. A hybrid suspended system resumes as
// quickly as a suspended one, but survives running out of battery.
func (pm PowerManagement) CanHybridSuspend(ctx context.Context) (bool, error) {
	return query(ctx, pm.main, "CanHybridSuspend")
}

// CanSuspendThenHibernate reports whether the system can suspend to
// RAM, and later hibernate when the battery runs low.
func (pm PowerManagement) CanSuspendThenHibernate(ctx context.Context) (bool, error) {
	return query(ctx, pm.main, "CanSuspendThenHibernate")
}

// ShouldSavePower reports whether the system's power policy asks
// applications to lower their power consumption. This is not the
// same as running on battery.
func (pm PowerManagement) ShouldSavePower(ctx context.Context) (bool, error) {
	return query(ctx, pm.main, "GetPowerSaveStatus")
}

// Suspend asks the system to suspend to RAM.
func (pm PowerManagement) Suspend(ctx context.Context) error {
	return pm.main.Call(ctx, "Suspend")
}

// Hibernate asks the system to suspend to disk and power off.
func (pm PowerManagement) Hibernate(ctx context.Context) error {
	return pm.main.Call(ctx, "Hibernate")
}

// HasInhibit reports whether some application is currently keeping
// the system from sleeping.
func (pm PowerManagement) HasInhibit(ctx context.Context) (bool, error) {
	return query(ctx, pm.inhibit, "HasInhibit")
}

// InhibitSleep keeps the system from sleeping until the returned
// function is called. application and reason are shown to users, for
// example "System" and "Installing updates".
func (pm PowerManagement) InhibitSleep(ctx context.Context, application, reason string) (release func(context.Context) error, err error) {
	cookie, err := dbus.Call(ctx, pm.inhibit, "Inhibit", dbus.Uint32,
		dbus.Arg(dbus.String, application),
		dbus.Arg(dbus.String, reason))
	if err != nil {
		return nil, err
	}
	release = func(ctx context.Context) error {
		return pm.inhibit.Call(ctx, "UnInhibit", dbus.Arg(dbus.Uint32, cookie))
	}
	return release, nil
}
