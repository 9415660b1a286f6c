// Package notifications provides an interface to the Freedesktop
// notifications API.
//
// This corresponds to the org.freedesktop.Notifications service on
// the session bus.
package notifications

import (
	"context"
	"fmt"

	dbus "github.com/danderson/dbus-typed"
)

const (
	serviceName = "org.freedesktop.Notifications"
	objectPath  = "/org/freedesktop/Notifications"
)

// Notification is a client for a notification service.
type Notification struct{ iface dbus.Interface }

// New returns an interface to the session's notification service.
func New(conn *dbus.Conn) Notification {
	return Interface(conn.Peer(serviceName).Object(objectPath))
}

// Interface returns a Notification on the given object.
func Interface(obj dbus.Object) Notification {
	return Notification{obj.Interface(serviceName)}
}

// Capabilities enumerates the optional capabilities of a notification
// service.
type Capabilities struct {
	// Actions is whether notifications can carry actions, which
	// signal the sender when the user picks them.
	Actions bool
	// ActionIcons is whether actions can be shown as icons instead of
	// text.
	ActionIcons bool
	// Body is whether notifications can have a body in addition to
	// their summary.
	Body bool
	// BodyLinks is whether bodies can contain hyperlinks.
	BodyLinks bool
	// BodyImages is whether bodies can contain images.
	BodyImages bool
	// BodyMarkup is whether bodies can contain a small subset of
	// HTML.
	BodyMarkup bool
	// Icon is whether notifications can show an icon.
	Icon bool
	// IconAnimation is whether icons can be animated.
	IconAnimation bool
	// Persistence is whether notifications stay on screen until the
	// user dismisses them.
	Persistence bool
	// Sound is whether notifications can play sounds.
	Sound bool

	// The following are KDE extensions.

	// Inhibitions is whether [Notification.Inhibit] is supported.
	Inhibitions bool
	// InlineReply is whether notifications can prompt for a text
	// reply.
	InlineReply bool
	// ContextURLs is whether notifications can carry URLs that the
	// service offers extra interactions for.
	ContextURLs bool
	// DisplayAppName is whether notifications can show a pretty name
	// for the sending application.
	DisplayAppName bool
	// DisplayOriginName is whether notifications can show where they
	// came from, such as a website or the sender of a chat message.
	DisplayOriginName bool

	// Unknown collects the capability strings that aren't known to
	// this package.
	Unknown []string
}

// capabilities maps capability strings to the Capabilities fields they
// set.
var capabilities = map[string]func(*Capabilities){
	"actions":         func(c *Capabilities) { c.Actions = true },
	"action-icons":    func(c *Capabilities) { c.ActionIcons = true },
	"body":            func(c *Capabilities) { c.Body = true },
	"body-hyperlinks": func(c *Capabilities) { c.BodyLinks = true },
	"body-images":     func(c *Capabilities) { c.BodyImages = true },
	"body-markup":     func(c *Capabilities) { c.BodyMarkup = true },
	"icon-static":     func(c *Capabilities) { c.Icon = true },
	"icon-multi":      func(c *Capabilities) { c.Icon, c.IconAnimation = true, true },
	"persistence":     func(c *Capabilities) { c.Persistence = true },
	"sound":           func(c *Capabilities) { c.Sound = true },

	"inhibitions":           func(c *Capabilities) { c.Inhibitions = true },
	"inline-reply":          func(c *Capabilities) { c.InlineReply = true },
	"x-kde-display-appname": func(c *Capabilities) { c.DisplayAppName = true },
	"x-kde-origin-name":     func(c *Capabilities) { c.DisplayOriginName = true },
	"x-kde-urls":            func(c *Capabilities) { c.ContextURLs = true },
}

func parseCapabilities(cs []string) Capabilities {
	var ret Capabilities
	for _, c := range cs {
		if set, ok := capabilities[c]; ok {
			set(&ret)
		} else {
			ret.Unknown = append(ret.Unknown, c)
		}
	}
	return ret
}

// Capabilities reports the capabilities of the notification service.
func (iface Notification) Capabilities(ctx context.Context) (Capabilities, error) {
	cs, err := dbus.Call(ctx, iface.iface, "GetCapabilities", dbus.Array(dbus.String))
	if err != nil {
		return Capabilities{}, err
	}
	return parseCapabilities(cs), nil
}

// ServerInformation describes the implementation of a notification
// service.
type ServerInformation struct {
	Name    string
	Vendor  string
	Version string
	// SpecVersion is the version of the notifications API that the
	// service implements.
	SpecVersion string
}

// GetServerInformation returns information about the notification
// service.
func (iface Notification) GetServerInformation(ctx context.Context) (ServerInformation, error) {
	m, err := iface.iface.NewCall("GetServerInformation")
	if err != nil {
		return ServerInformation{}, err
	}
	reply, err := iface.iface.Conn().Send(ctx, m)
	if err != nil {
		return ServerInformation{}, err
	}
	defer reply.Close()
	cur, err := reply.Cursor()
	if err != nil {
		return ServerInformation{}, err
	}

	var ret ServerInformation
	fields := []*string{&ret.Name, &ret.Vendor, &ret.Version, &ret.SpecVersion}
	for i, f := range fields {
		if *f, err = dbus.Decode(cur, dbus.String); err != nil {
			return ServerInformation{}, fmt.Errorf("decoding server information field %d: %w", i, err)
		}
	}
	return ret, nil
}

// Hint is a notification hint value. Hints are constructed with
// [StringHint], [BoolHint], [ByteHint], [Int32Hint], [BytesHint] and
// [UrgencyHint].
type Hint = dbus.Variant

// Candidate indexes of hintValue.
const (
	hintString = iota
	hintBool
	hintByte
	hintInt32
	hintBytes
)

var hintValue = dbus.VariantOf(
	dbus.Alt(dbus.String),
	dbus.Alt(dbus.Bool),
	dbus.Alt(dbus.Byte),
	dbus.Alt(dbus.Int32),
	dbus.Alt(dbus.Array(dbus.Byte)),
)

var hints = dbus.Map(dbus.String, hintValue)

func StringHint(s string) Hint { return Hint{Index: hintString, Value: s} }
func BoolHint(b bool) Hint     { return Hint{Index: hintBool, Value: b} }
func ByteHint(b uint8) Hint    { return Hint{Index: hintByte, Value: b} }
func Int32Hint(i int32) Hint   { return Hint{Index: hintInt32, Value: i} }
func BytesHint(bs []byte) Hint { return Hint{Index: hintBytes, Value: bs} }

// Urgency is the urgency level of a notification.
type Urgency uint8

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

// UrgencyHint returns the value of the "urgency" hint for u.
func UrgencyHint(u Urgency) Hint { return ByteHint(uint8(u)) }

// NotifyRequest is a notification to show.
type NotifyRequest struct {
	AppName string
	// ReplacesID, if non-zero, is the ID of an existing notification
	// that this one replaces.
	ReplacesID uint32
	AppIcon    string
	Summary    string
	Body       string
	// Actions is a list of action identifiers and their labels,
	// alternating.
	Actions []string
	Hints   map[string]Hint
	// Timeout is the notification's expiry time in milliseconds. -1
	// lets the service pick, and 0 never expires.
	Timeout int32
}

// Notify shows a notification, and returns its ID.
func (iface Notification) Notify(ctx context.Context, req NotifyRequest) (uint32, error) {
	return dbus.Call(ctx, iface.iface, "Notify", dbus.Uint32,
		dbus.Arg(dbus.String, req.AppName),
		dbus.Arg(dbus.Uint32, req.ReplacesID),
		dbus.Arg(dbus.String, req.AppIcon),
		dbus.Arg(dbus.String, req.Summary),
		dbus.Arg(dbus.String, req.Body),
		dbus.Arg(dbus.Array(dbus.String), req.Actions),
		dbus.Arg(hints, req.Hints),
		dbus.Arg(dbus.Int32, req.Timeout))
}

// CloseNotification dismisses the notification with the given ID.
func (iface Notification) CloseNotification(ctx context.Context, id uint32) error {
	return iface.iface.Call(ctx, "CloseNotification", dbus.Arg(dbus.Uint32, id))
}

// Inhibit suppresses notifications until the returned cookie is
// passed to [Notification.UnInhibit].
func (iface Notification) Inhibit(ctx context.Context, desktopEntry, reason string, hs map[string]Hint) (cookie uint32, err error) {
	return dbus.Call(ctx, iface.iface, "Inhibit", dbus.Uint32,
		dbus.Arg(dbus.String, desktopEntry),
		dbus.Arg(dbus.String, reason),
		dbus.Arg(hints, hs))
}

func (iface Notification) UnInhibit(ctx context.Context, cookie uint32) error {
	return iface.iface.Call(ctx, "UnInhibit", dbus.Arg(dbus.Uint32, cookie))
}

// Inhibited reports whether notifications are currently inhibited.
func (iface Notification) Inhibited(ctx context.Context) (bool, error) {
	return dbus.GetProperty(ctx, iface.iface, "Inhibited", dbus.Bool)
}
