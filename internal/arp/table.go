// Package arp builds and installs static address resolution tables.
package arp

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"time"

	"firestige.xyz/wifilab/internal/core"
)

// Forever is the lease of a static entry; no run is long enough to expire it.
const Forever = time.Duration(1<<63 - 1)

// ErrSealed is returned when a new binding is added to an installed table.
var ErrSealed = errors.New("arp: table is sealed")

// State is the resolution state of an entry.
type State uint8

const (
	StatePermanent State = iota + 1
)

func (s State) String() string {
	if s == StatePermanent {
		return "PERMANENT"
	}
	return "UNKNOWN"
}

// Entry binds a network address to a link address.
type Entry struct {
	Addr  netip.Addr
	MAC   net.HardwareAddr
	State State
	Lease time.Duration
	Owner string // node that contributed the binding
}

// Table maps network addresses to link addresses. It is written during seeding and
// read-only once installed.
type Table struct {
	entries map[netip.Addr]Entry
	sealed  bool
}

func NewTable() *Table {
	return &Table{entries: make(map[netip.Addr]Entry)}
}

// Add inserts a permanent binding. Re-adding an identical binding is a no-op; a
// different link address for a known network address is an ErrAddressConflict.
func (t *Table) Add(addr netip.Addr, mac net.HardwareAddr, owner string) error {
	addr = addr.Unmap()
	if existing, ok := t.entries[addr]; ok {
		if bytes.Equal(existing.MAC, mac) {
			return nil
		}
		return fmt.Errorf("%w: %s claimed by %s (%s) and %s (%s)",
			core.ErrAddressConflict, addr, existing.Owner, existing.MAC, owner, mac)
	}
	if t.sealed {
		return fmt.Errorf("%w: cannot add %s", ErrSealed, addr)
	}
	t.entries[addr] = Entry{
		Addr:  addr,
		MAC:   slices.Clone(mac),
		State: StatePermanent,
		Lease: Forever,
		Owner: owner,
	}
	return nil
}

// Merge folds the bindings of other into t.
func (t *Table) Merge(other *Table) error {
	for _, e := range other.Entries() {
		if err := t.Add(e.Addr, e.MAC, e.Owner); err != nil {
			return err
		}
	}
	return nil
}

// Lookup implements core.Resolver.
func (t *Table) Lookup(addr netip.Addr) (net.HardwareAddr, bool) {
	e, ok := t.entries[addr.Unmap()]
	if !ok {
		return nil, false
	}
	return e.MAC, true
}

func (t *Table) Len() int {
	return len(t.entries)
}

func (t *Table) Sealed() bool {
	return t.sealed
}

// Entries returns the bindings sorted by network address.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return a.Addr.Compare(b.Addr)
	})
	return out
}

func (t *Table) seal() {
	t.sealed = true
}
