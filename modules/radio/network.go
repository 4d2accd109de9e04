package radio

import (
	"net"
)

// NetworkStatus reports whether the host can reach the network. Start refuses
// to run while it reports false and require-network is set.
type NetworkStatus interface {
	Connected() bool
}

// InterfaceStatus is connected when any non-loopback interface is up and has
// an address.
type InterfaceStatus struct{}

func (InterfaceStatus) Connected() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}

	return false
}

// NetworkStatusFunc adapts a function to NetworkStatus.
type NetworkStatusFunc func() bool

func (f NetworkStatusFunc) Connected() bool {
	return f()
}
