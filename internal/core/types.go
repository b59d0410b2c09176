// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"net"
	"net/netip"
)

// Role distinguishes traffic endpoints from the single coordinator.
type Role uint8

const (
	RoleStation Role = iota
	RoleCoordinator
)

func (r Role) String() string {
	switch r {
	case RoleStation:
		return "Station"
	case RoleCoordinator:
		return "AP"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Resolver maps a network address to a link-layer address.
type Resolver interface {
	Lookup(addr netip.Addr) (net.HardwareAddr, bool)
}

// Interface is one network interface of a node.
type Interface struct {
	Index int
	Name  string
	MAC   net.HardwareAddr // nil for loopback
	Addrs []netip.Addr

	resolver Resolver
}

// SetResolver installs the resolution table used by this interface.
func (i *Interface) SetResolver(r Resolver) {
	i.resolver = r
}

// Resolver returns the installed resolution table, nil if none.
func (i *Interface) Resolver() Resolver {
	return i.resolver
}

// IsLoopback reports whether every address on the interface is a loopback address.
func (i *Interface) IsLoopback() bool {
	if len(i.Addrs) == 0 {
		return i.MAC == nil
	}
	for _, a := range i.Addrs {
		if !a.IsLoopback() {
			return false
		}
	}
	return true
}

// Node is a participant of the topology: a station or the coordinator.
type Node struct {
	ID         int
	Role       Role
	Interfaces []*Interface
}

func (n *Node) String() string {
	return fmt.Sprintf("%s-%d", n.Role, n.ID)
}

// PrimaryAddr returns the first non-loopback address of the node.
func (n *Node) PrimaryAddr() (netip.Addr, bool) {
	for _, iface := range n.Interfaces {
		for _, a := range iface.Addrs {
			if !a.IsLoopback() {
				return a, true
			}
		}
	}
	return netip.Addr{}, false
}

// PrimaryInterface returns the first interface carrying a non-loopback address.
func (n *Node) PrimaryInterface() *Interface {
	for _, iface := range n.Interfaces {
		if !iface.IsLoopback() {
			return iface
		}
	}
	return nil
}
