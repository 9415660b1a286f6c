// Package background provides an interface to the Freedesktop Flatpak
// background applications monitor.
//
// This corresponds to the org.freedesktop.background.Monitor service
// on the session bus, which provides a way to find out what Flatpak
// applications are running with no visible GUI.
package background

import (
	"context"

	dbus "github.com/danderson/dbus-typed"
)

type Monitor struct{ iface dbus.Interface }

// New returns an interface to the Flatpak background applications
// monitor.
func New(conn *dbus.Conn) Monitor {
	obj := conn.Peer("org.freedesktop.background.Monitor").Object("/org/freedesktop/background/monitor")
	return Interface(obj)
}

// Interface returns a Monitor on the given object.
func Interface(obj dbus.Object) Monitor {
	return Monitor{
		iface: obj.Interface("org.freedesktop.background.Monitor"),
	}
}

// App is a Flatpak application running in the background.
type App struct {
	// ID is the application's Flatpak ID.
	ID string
	// Instance is the application instance's ID.
	Instance string
	// Status is a status message provided by the application.
	Status string

	// Unknown collects the names of application attributes that are
	// not yet understood by this package.
	Unknown []string
}

// appAttrs decodes one app's attributes. Attributes are strings, any
// other type is skipped.
var appAttrs = dbus.Array(dbus.Map(dbus.String, dbus.VariantOf(dbus.Alt(dbus.String), dbus.Alt(dbus.Ignore))))

// BackgroundApps returns a list of Flatpak applications running in
// the background.
func (iface Monitor) BackgroundApps(ctx context.Context) ([]App, error) {
	raw, err := dbus.GetProperty(ctx, iface.iface, "BackgroundApps", appAttrs)
	if err != nil {
		return nil, err
	}
	ret := make([]App, 0, len(raw))
	for _, attrs := range raw {
		var app App
		for k, v := range attrs {
			s, ok := dbus.VariantValue[string](v)
			switch {
			case ok && k == "app_id":
				app.ID = s
			case ok && k == "instance":
				app.Instance = s
			case ok && k == "message":
				app.Status = s
			default:
				app.Unknown = append(app.Unknown, k)
			}
		}
		ret = append(ret, app)
	}
	return ret, nil
}
