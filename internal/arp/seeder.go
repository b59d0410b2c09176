package arp

import (
	"firestige.xyz/wifilab/internal/core"
)

// Build collects one binding per non-loopback address of every participant.
// Seeding stops at the first conflict.
func Build(participants []*core.Node) (*Table, error) {
	t := NewTable()
	for _, node := range participants {
		for _, iface := range node.Interfaces {
			if len(iface.MAC) == 0 {
				continue
			}
			for _, addr := range iface.Addrs {
				if addr.IsLoopback() {
					continue
				}
				if err := t.Add(addr, iface.MAC, node.String()); err != nil {
					return nil, err
				}
			}
		}
	}
	return t, nil
}

// Install seals t and shares it with every interface of every participant, so that any
// participant resolves any other without a lookup miss.
func Install(t *Table, participants []*core.Node) {
	t.seal()
	for _, node := range participants {
		for _, iface := range node.Interfaces {
			iface.SetResolver(t)
		}
	}
}

// Seed builds and installs the table. Nothing is installed when building fails.
func Seed(participants []*core.Node) (*Table, error) {
	t, err := Build(participants)
	if err != nil {
		return nil, err
	}
	Install(t, participants)
	return t, nil
}
