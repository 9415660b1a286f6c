package main

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	dbus "github.com/danderson/dbus-typed"
	"github.com/danderson/dbus-typed/freedesktop/background"
	"github.com/danderson/dbus-typed/freedesktop/idle"
	"github.com/danderson/dbus-typed/freedesktop/networkmanager"
	"github.com/danderson/dbus-typed/freedesktop/notifications"
	"github.com/danderson/dbus-typed/freedesktop/powermanagement"
)

var freedesktopCommands = &command.C{
	Name:  "freedesktop",
	Usage: "freedesktop args...",
	Help:  "Talk to well-known freedesktop.org services.",
	Commands: []*command.C{
		{
			Name:  "background",
			Usage: "background",
			Help:  "List flatpak apps that are running in the background.",
			Run:   onBus(0, 0, 0, runFdoBackground),
		},
		{
			Name:  "idle",
			Usage: "idle",
			Help:  "Show the session's idle and lock state.",
			Run:   onBus(0, 0, 0, runFdoIdle),
		},
		{
			Name:  "power",
			Usage: "power",
			Help:  "Show the system's sleep capabilities.",
			Run:   onBus(0, 0, 0, runFdoPower),
		},
		{
			Name:     "notify",
			Usage:    "notify summary [body]",
			Help:     "Show a desktop notification.",
			SetFlags: command.Flags(flax.MustBind, &notifyArgs),
			Run:      onBus(1, 2, 0, runFdoNotify),
		},
		{
			Name:  "nm",
			Usage: "nm",
			Help:  "List NetworkManager devices and their addresses.",
			Run:   onBus(0, 0, 0, runFdoNetworkManager),
		},
	},
}

func runFdoBackground(ctx context.Context, conn *dbus.Conn, _ []string) error {
	apps, err := background.New(conn).BackgroundApps(ctx)
	if err != nil {
		return fmt.Errorf("listing background apps: %w", err)
	}
	slices.SortFunc(apps, func(a, b background.App) int {
		return cmp.Or(cmp.Compare(a.ID, b.ID), cmp.Compare(a.Instance, b.Instance))
	})
	for _, app := range apps {
		fmt.Println(app.ID, app.Instance, app.Status)
	}
	return nil
}

func runFdoIdle(ctx context.Context, conn *dbus.Conn, _ []string) error {
	svc := idle.New(conn)
	idleFor, err := svc.IdleTime(ctx)
	if err != nil {
		return fmt.Errorf("getting idle time: %w", err)
	}
	locked, err := svc.Locked(ctx)
	if err != nil {
		return fmt.Errorf("getting lock state: %w", err)
	}

	fmt.Println("Idle for:", idleFor)
	if !locked {
		fmt.Println("Unlocked")
		return nil
	}
	lockedFor, err := svc.LockedTime(ctx)
	if err != nil {
		return fmt.Errorf("getting lock time: %w", err)
	}
	fmt.Println("Locked for:", lockedFor)
	return nil
}

func runFdoPower(ctx context.Context, conn *dbus.Conn, _ []string) error {
	pm := powermanagement.New(conn)
	checks := []struct {
		name string
		fn   func(context.Context) (bool, error)
	}{
		{"Suspend", pm.CanSuspend},
		{"Hibernate", pm.CanHibernate},
		{"Hybrid suspend", pm.CanHybridSuspend},
		{"Suspend then hibernate", pm.CanSuspendThenHibernate},
		{"Save power", pm.ShouldSavePower},
		{"Inhibited", pm.HasInhibit},
	}
	for _, c := range checks {
		if ok, err := c.fn(ctx); err != nil {
			fmt.Printf("%s: %v\n", c.name, err)
		} else {
			fmt.Printf("%s: %v\n", c.name, ok)
		}
	}
	return nil
}

var notifyArgs struct {
	AppName string        `flag:"app,default=dbus,Application name to show"`
	Icon    string        `flag:"icon,Icon name or file:// URL"`
	Urgency int           `flag:"urgency,default=1,Urgency level (0=low, 1=normal, 2=critical)"`
	Expire  time.Duration `flag:"expire,Time after which the notification expires, 0 for the server default"`
}

func runFdoNotify(ctx context.Context, conn *dbus.Conn, args []string) error {
	req := notifications.NotifyRequest{
		AppName: notifyArgs.AppName,
		AppIcon: notifyArgs.Icon,
		Summary: args[0],
		Hints: map[string]notifications.Hint{
			"urgency": notifications.UrgencyHint(notifications.Urgency(notifyArgs.Urgency)),
		},
		Timeout: -1,
	}
	if len(args) > 1 {
		req.Body = args[1]
	}
	if notifyArgs.Expire > 0 {
		req.Timeout = int32(notifyArgs.Expire.Milliseconds())
	}

	svc := notifications.New(conn)
	info, err := svc.GetServerInformation(ctx)
	if err != nil {
		return fmt.Errorf("getting notification server information: %w", err)
	}
	fmt.Printf("Server: %s %s (%s)\n", info.Name, info.Version, info.Vendor)
	id, err := svc.Notify(ctx, req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	fmt.Println("Notification ID:", id)
	return nil
}

func runFdoNetworkManager(ctx context.Context, conn *dbus.Conn, _ []string) error {
	devs, err := networkmanager.New(conn).Devices(ctx)
	if err != nil {
		return fmt.Errorf("listing network devices: %w", err)
	}
	var out indenter
	for _, dev := range devs {
		name, err := dev.Interface(ctx)
		if err != nil {
			return fmt.Errorf("getting interface name of %s: %w", dev, err)
		}
		mac, err := dev.HardwareAddress(ctx)
		if err != nil {
			return fmt.Errorf("getting hardware address of %s: %w", dev, err)
		}
		addrs, err := dev.Addresses(ctx)
		if err != nil {
			return fmt.Errorf("getting addresses of %s: %w", dev, err)
		}
		out.indent(0)
		out.f("%s (%s)", name, mac)
		out.indent(1)
		for _, a := range addrs {
			out.v(a)
		}
	}
	return nil
}
