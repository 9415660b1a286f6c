// Package networkmanager provides a read-only interface to the
// NetworkManager DBus API.
//
// This corresponds to the org.freedesktop.NetworkManager service on
// the system bus.
package networkmanager

import (
	"context"
	"fmt"
	"net/netip"

	dbus "github.com/danderson/dbus-typed"
)

const (
	service     = "org.freedesktop.NetworkManager"
	ifaceDevice = "org.freedesktop.NetworkManager.Device"
	ifaceIP4    = "org.freedesktop.NetworkManager.IP4Config"
	ifaceIP6    = "org.freedesktop.NetworkManager.IP6Config"
)

// NetworkManager is the network configuration service.
type NetworkManager struct{ iface dbus.Interface }

// New returns an interface to the system's NetworkManager.
func New(conn *dbus.Conn) NetworkManager {
	obj := conn.Peer(service).Object("/org/freedesktop/NetworkManager")
	return Interface(obj)
}

// Interface returns a NetworkManager on the given object.
func Interface(obj dbus.Object) NetworkManager {
	return NetworkManager{
		iface: obj.Interface(service),
	}
}

// Devices returns the network devices known to NetworkManager.
func (nm NetworkManager) Devices(ctx context.Context) ([]Device, error) {
	paths, err := dbus.GetProperty(ctx, nm.iface, "Devices", dbus.Array(dbus.Path))
	if err != nil {
		return nil, err
	}
	ret := make([]Device, 0, len(paths))
	for _, p := range paths {
		ret = append(ret, Device{nm.iface.Peer().Object(p)})
	}
	return ret, nil
}

// Device is a network device managed by NetworkManager.
type Device struct{ obj dbus.Object }

func (d Device) String() string { return d.obj.String() }

func (d Device) iface() dbus.Interface { return d.obj.Interface(ifaceDevice) }

// Interface returns the name of the device's kernel network
// interface, or the name of the device's control interface if it
// has no network interface.
func (d Device) Interface(ctx context.Context) (string, error) {
	return dbus.GetProperty(ctx, d.iface(), "Interface", dbus.String)
}

// HardwareAddress returns the device's MAC address, as a string.
func (d Device) HardwareAddress(ctx context.Context) (string, error) {
	return dbus.GetProperty(ctx, d.iface(), "HwAddress", dbus.String)
}

// Addresses returns the IPv4 and IPv6 addresses currently configured
// on the device.
func (d Device) Addresses(ctx context.Context) ([]netip.Prefix, error) {
	var ret []netip.Prefix
	for _, cfg := range []struct{ prop, iface string }{
		{"Ip4Config", ifaceIP4},
		{"Ip6Config", ifaceIP6},
	} {
		path, err := dbus.GetProperty(ctx, d.iface(), cfg.prop, dbus.Path)
		if err != nil {
			return nil, err
		}
		if path == "/" {
			// Not configured for this address family.
			continue
		}
		cfgIface := d.obj.Peer().Object(path).Interface(cfg.iface)
		raw, err := dbus.GetProperty(ctx, cfgIface, "AddressData", AddressData)
		if err != nil {
			return nil, err
		}
		addrs, err := ParseAddressData(raw)
		if err != nil {
			return nil, fmt.Errorf("%s of %s: %w", cfg.prop, d, err)
		}
		ret = append(ret, addrs...)
	}
	return ret, nil
}

// Candidate indexes of addressValue.
const (
	addrString = iota
	addrUint32
	addrOther
)

var addressValue = dbus.VariantOf(
	dbus.Alt(dbus.String),
	dbus.Alt(dbus.Uint32),
	dbus.Alt(dbus.Ignore),
)

// AddressData decodes the AddressData property of NetworkManager's
// IP configuration objects, of DBus type aa{sv}.
var AddressData = dbus.Array(dbus.Map(dbus.String, addressValue))

// ParseAddressData converts the raw value of an AddressData property
// to a list of prefixes.
//
// Each entry must carry an "address" string and a "prefix" uint32.
// Other attributes are ignored.
func ParseAddressData(raw []map[string]dbus.Variant) ([]netip.Prefix, error) {
	ret := make([]netip.Prefix, 0, len(raw))
	for i, attrs := range raw {
		addrV, ok := attrs["address"]
		if !ok || addrV.Index != addrString {
			return nil, fmt.Errorf("address %d: missing address string", i)
		}
		bitsV, ok := attrs["prefix"]
		if !ok || bitsV.Index != addrUint32 {
			return nil, fmt.Errorf("address %d: missing prefix length", i)
		}
		addr, err := netip.ParseAddr(addrV.Value.(string))
		if err != nil {
			return nil, fmt.Errorf("address %d: %w", i, err)
		}
		pfx, err := addr.Prefix(int(bitsV.Value.(uint32)))
		if err != nil {
			return nil, fmt.Errorf("address %d: %w", i, err)
		}
		// Prefix masks off the host bits, put them back.
		ret = append(ret, netip.PrefixFrom(addr, pfx.Bits()))
	}
	return ret, nil
}
