package dbus

import (
	"context"
	"errors"
	"fmt"
	"os"
)

type NameRequestFlags byte

const (
	NameRequestAllowReplacement NameRequestFlags = 1 << iota
	NameRequestReplace
	NameRequestNoQueue
)

func (c *Conn) RequestName(ctx context.Context, name string, flags NameRequestFlags) (isPrimaryOwner bool, err error) {
	resp, err := Call(ctx, c.bus, "RequestName", Uint32, Arg(String, name), Arg(Uint32, uint32(flags)))
	if err != nil {
		return false, err
	}
	switch resp {
	case 1:
		// Became primary owner.
		return true, nil
	case 2:
		// Placed in queue, but not primary.
		return false, nil
	case 3:
		// Couldn't become primary owner, and request flags asked to
		// not queue.
		return false, errors.New("requested name not available")
	case 4:
		// Already the primary owner.
		return true, nil
	default:
		return false, fmt.Errorf("unknown response code %d to RequestName", resp)
	}
}

func (c *Conn) ReleaseName(ctx context.Context, name string) error {
	_, err := Call(ctx, c.bus, "ReleaseName", Uint32, Arg(String, name))
	return err
}

func (c *Conn) ListQueuedOwners(ctx context.Context, name string) ([]string, error) {
	return Call(ctx, c.bus, "ListQueuedOwners", Array(String), Arg(String, name))
}

func (c *Conn) ListNames(ctx context.Context) ([]string, error) {
	return Call(ctx, c.bus, "ListNames", Array(String))
}

// Peers returns the peers currently connected to the bus, under both
// their unique and well-known names.
func (c *Conn) Peers(ctx context.Context) ([]Peer, error) {
	names, err := c.ListNames(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]Peer, 0, len(names))
	for _, n := range names {
		ret = append(ret, c.Peer(n))
	}
	return ret, nil
}

func (c *Conn) ListActivatableNames(ctx context.Context) ([]string, error) {
	return Call(ctx, c.bus, "ListActivatableNames", Array(String))
}

func (c *Conn) NameHasOwner(ctx context.Context, name string) (bool, error) {
	return Call(ctx, c.bus, "NameHasOwner", Bool, Arg(String, name))
}

func (c *Conn) GetNameOwner(ctx context.Context, name string) (string, error) {
	return Call(ctx, c.bus, "GetNameOwner", String, Arg(String, name))
}

func (c *Conn) GetPeerUID(ctx context.Context, name string) (uint32, error) {
	return Call(ctx, c.bus, "GetConnectionUnixUser", Uint32, Arg(String, name))
}

func (c *Conn) GetPeerPID(ctx context.Context, name string) (uint32, error) {
	return Call(ctx, c.bus, "GetConnectionUnixProcessID", Uint32, Arg(String, name))
}

// PeerCredentials is the information the bus knows about the process
// behind a connection. Fields the bus did not report are left at
// their zero value.
type PeerCredentials struct {
	UID           uint32
	GIDs          []uint32
	PIDFD         *os.File
	PID           uint32
	SID           string
	SecurityLabel []byte

	// Unknown lists the names of credentials that were reported but
	// are not understood.
	Unknown []string
}

// Candidate indexes of credentialValue.
const (
	credUint32 = iota
	credUint32s
	credString
	credBytes
	credFD
	credUnknown
)

var credentialValue = VariantOf(
	Alt(Uint32),
	Alt(Array(Uint32)),
	Alt(String),
	Alt(Array(Byte)),
	Alt(FD),
	Alt(Ignore),
)

// GetPeerCredentials returns the credentials of the named peer.
//
// If the returned PeerCredentials has a non-nil PIDFD, the caller
// must close it.
func (c *Conn) GetPeerCredentials(ctx context.Context, name string) (*PeerCredentials, error) {
	m, err := c.bus.NewCall("GetConnectionCredentials", Arg(String, name))
	if err != nil {
		return nil, err
	}
	reply, err := c.Send(ctx, m)
	if err != nil {
		return nil, err
	}
	defer reply.Close()
	creds, err := DecodeReply(reply, Map(String, credentialValue))
	if err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}

	var ret PeerCredentials
	for k, v := range creds {
		switch {
		case k == "UnixUserID" && v.Index == credUint32:
			ret.UID = v.Value.(uint32)
		case k == "UnixGroupIDs" && v.Index == credUint32s:
			ret.GIDs = v.Value.([]uint32)
		case k == "ProcessID" && v.Index == credUint32:
			ret.PID = v.Value.(uint32)
		case k == "WindowsSID" && v.Index == credString:
			ret.SID = v.Value.(string)
		case k == "LinuxSecurityLabel" && v.Index == credBytes:
			ret.SecurityLabel = v.Value.([]byte)
		case k == "ProcessFD" && v.Index == credFD:
			f, err := reply.File(v.Value.(UnixFD))
			if err != nil {
				return nil, err
			}
			ret.PIDFD = f
		default:
			ret.Unknown = append(ret.Unknown, k)
		}
	}
	return &ret, nil
}

func (c *Conn) GetBusID(ctx context.Context) (string, error) {
	return Call(ctx, c.bus, "GetId", String)
}

func (c *Conn) Features(ctx context.Context) ([]string, error) {
	return GetProperty(ctx, c.bus, "Features", Array(String))
}

// Not implemented:
//  - StartServiceByName, deprecated in favor of auto-start.
//  - UpdateActivationEnvironment, so locked down you can't really do
//    much with it any more, and should really be leaving environment
//    stuff to systemd anyway.
//  - GetAdtAuditSessionData, Solaris-only.
//  - GetConnectionSELinuxSecurityContext, deprecated in favor
//    of GetConnectionCredentials.
//  - AddMatch/RemoveMatch: signal delivery is not supported.
