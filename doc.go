// Package dbus is a typed client for the DBus message bus.
//
// Values are converted to and from the DBus wire format by a [Codec],
// which pairs a Go type with its DBus type signature. Codecs for the
// DBus basic types are package variables ([Byte], [Bool], [String],
// [Path], ...), and codecs for container types are built by composing
// them:
//
//	type Address struct {
//		Addr   string
//		Prefix uint32
//	}
//
//	var addressData = Array(Map(String, VariantOf(Alt(String), Alt(Uint32))))
//
//	var point = Struct(
//		FieldOf(Int32, func(p *Point) *int32 { return &p.X }),
//		FieldOf(Int32, func(p *Point) *int32 { return &p.Y }),
//	)
//
// Decoding walks a [Cursor] over a message body. Each codec checks
// that the wire type under the cursor is the one it expects, and
// fails with a [TagMismatchError] otherwise. Variants are resolved by
// trying the candidates of [VariantOf] in order, and the first
// candidate whose kind accepts the variant's inner type wins.
//
// Method calls are built with [NewMethodCall] and [Append], or more
// conveniently with [Call] and [Arg] on an [Interface] obtained from
// a [Conn]:
//
//	conn, err := dbus.SystemBus(ctx)
//	...
//	iface := conn.Peer("org.freedesktop.NetworkManager").
//		Object("/org/freedesktop/NetworkManager").
//		Interface("org.freedesktop.NetworkManager")
//	devices, err := dbus.Call(ctx, iface, "GetDevices", dbus.Array(dbus.Path))
//
// Codecs use no reflection, and are safe for concurrent use.
package dbus
