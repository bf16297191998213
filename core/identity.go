package core

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
)

// NodeIdentity identifies a node on the LAN, normally its hardware address.
type NodeIdentity string

func (id NodeIdentity) String() string {
	return string(id)
}

type IdentityResolver interface {
	Resolve() (NodeIdentity, error)
}

// HardwareResolver resolves the identity from the primary network interface
// once and caches it for the process lifetime.
type HardwareResolver struct {
	interfaces func() ([]net.Interface, error)

	once sync.Once
	id   NodeIdentity
	err  error
}

func NewHardwareResolver() *HardwareResolver {
	return &HardwareResolver{interfaces: net.Interfaces}
}

func (r *HardwareResolver) Resolve() (NodeIdentity, error) {
	r.once.Do(func() {
		r.id, r.err = r.resolve()
	})
	return r.id, r.err
}

func (r *HardwareResolver) resolve() (NodeIdentity, error) {
	ifaces, err := r.interfaces()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	candidates := make([]net.Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		candidates = append(candidates, iface)
	}

	if len(candidates) == 0 {
		return "", ErrIdentityUnavailable
	}

	// Up interfaces first, then by index.
	sort.SliceStable(candidates, func(i, j int) bool {
		upi := candidates[i].Flags&net.FlagUp != 0
		upj := candidates[j].Flags&net.FlagUp != 0
		if upi != upj {
			return upi
		}
		return candidates[i].Index < candidates[j].Index
	})

	return NodeIdentity(candidates[0].HardwareAddr.String()), nil
}

// StaticIdentity is a fixed, configured identity.
type StaticIdentity NodeIdentity

func (s StaticIdentity) Resolve() (NodeIdentity, error) {
	if s == "" || strings.Contains(string(s), Separator) {
		return "", fmt.Errorf("%w: %q", ErrIdentityUnavailable, string(s))
	}
	return NodeIdentity(s), nil
}
