package netsim

import (
	"fmt"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/wifilab/internal/core"
)

type frameKind uint8

const (
	kindUnknown frameKind = iota
	kindData
	kindARP
)

// decoder parses the frames the network puts on the medium. It is not safe for
// concurrent use; the event loop is single threaded.
type decoder struct {
	parser *gopacket.DecodingLayerParser

	eth     layers.Ethernet
	arp     layers.ARP
	ip4     layers.IPv4
	tcp     layers.TCP
	udp     layers.UDP
	payload gopacket.Payload

	decoded []gopacket.LayerType
}

func newDecoder() *decoder {
	d := &decoder{}
	d.parser = gopacket.NewDecodingLayerParser(
		layers.LayerTypeEthernet,
		&d.eth,
		&d.arp,
		&d.ip4,
		&d.tcp,
		&d.udp,
		&d.payload,
	)
	d.parser.IgnoreUnsupported = true
	return d
}

// decode fills the layer fields and reports what the frame carries. For data frames
// the flow key and the IP-layer length are returned.
func (d *decoder) decode(data []byte) (frameKind, core.FlowKey, int, error) {
	d.decoded = d.decoded[:0]
	if err := d.parser.DecodeLayers(data, &d.decoded); err != nil {
		return kindUnknown, core.FlowKey{}, 0, fmt.Errorf("decode frame: %w", err)
	}

	kind := kindUnknown
	var key core.FlowKey
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeARP:
			kind = kindARP
		case layers.LayerTypeIPv4:
			src, _ := netip.AddrFromSlice(d.ip4.SrcIP.To4())
			dst, _ := netip.AddrFromSlice(d.ip4.DstIP.To4())
			key = core.FlowKey{Src: src, Dst: dst, Proto: uint8(d.ip4.Protocol)}
		case layers.LayerTypeUDP:
			key.SrcPort, key.DstPort = uint16(d.udp.SrcPort), uint16(d.udp.DstPort)
			kind = kindData
		case layers.LayerTypeTCP:
			key.SrcPort, key.DstPort = uint16(d.tcp.SrcPort), uint16(d.tcp.DstPort)
			kind = kindData
		}
	}
	if kind == kindData {
		return kind, key, int(d.ip4.Length), nil
	}
	return kind, key, 0, nil
}

// arpAddrs returns the sender and target protocol addresses of the last decoded ARP frame.
func (d *decoder) arpAddrs() (sender, target netip.Addr) {
	sender, _ = netip.AddrFromSlice(d.arp.SourceProtAddress)
	target, _ = netip.AddrFromSlice(d.arp.DstProtAddress)
	return sender, target
}
