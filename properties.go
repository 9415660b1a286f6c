package dbus

import "context"

func (f Interface) propsIface() Interface {
	return f.Object().Interface(ifaceProps)
}

// GetProperty reads the value of the named property of iface, and
// decodes it with c.
//
// The property's variant must hold a value that c accepts, otherwise
// GetProperty returns a [VariantExhaustedError].
func GetProperty[T any](ctx context.Context, iface Interface, name string, c Codec[T]) (T, error) {
	return Call(ctx, iface.propsIface(), "Get", Boxed(c), Arg(String, iface.Name()), Arg(String, name))
}

// SetProperty sets the named property of iface to v, encoded with c.
func SetProperty[T any](ctx context.Context, iface Interface, name string, c Codec[T], v T) error {
	return iface.propsIface().Call(ctx, "Set", Arg(String, iface.Name()), Arg(String, name), Arg(Boxed(c), v))
}

// GetAllProperties returns all the properties exported by iface.
//
// values decodes each property's variant. It is typically a
// [VariantOf] listing the property types the caller cares about,
// with a final [Ignore] candidate to tolerate the rest.
func GetAllProperties[T any](ctx context.Context, iface Interface, values Codec[T]) (map[string]T, error) {
	return Call(ctx, iface.propsIface(), "GetAll", Map(String, values), Arg(String, iface.Name()))
}
