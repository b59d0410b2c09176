package netsim

import (
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/wifilab/internal/core"
)

const (
	ipTTL       = 64
	ipv4Len     = 20
	udpLen      = 8
	tcpLen      = 20
	arpLen      = 28
	maxIPLength = 65535
)

// ipLength is the IP datagram size carrying payload bytes over proto.
func ipLength(proto uint8, payload int) int {
	if proto == core.ProtoTCP {
		return ipv4Len + tcpLen + payload
	}
	return ipv4Len + udpLen + payload
}

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// frame is a serialized Ethernet frame plus the bookkeeping a flow monitor keeps
// out of band.
type frame struct {
	data   []byte
	sentAt time.Duration
	flow   core.FlowID
	kind   frameKind
}

func (f *frame) setDstMAC(mac net.HardwareAddr) {
	copy(f.data[0:6], mac)
}

var serializeOpts = gopacket.SerializeOptions{
	ComputeChecksums: true,
	FixLengths:       true,
}

// buildData serializes an IPv4 datagram carrying payloadLen bytes. The destination
// link address is left zero until resolution completes.
func buildData(srcMAC net.HardwareAddr, key core.FlowKey, seq uint32, ipID uint16, payloadLen int) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       make(net.HardwareAddr, 6),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		Id:       ipID,
		TTL:      ipTTL,
		Protocol: layers.IPProtocol(key.Proto),
		SrcIP:    key.Src.AsSlice(),
		DstIP:    key.Dst.AsSlice(),
	}
	payload := gopacket.Payload(make([]byte, payloadLen))

	buf := gopacket.NewSerializeBuffer()
	var err error
	switch key.Proto {
	case core.ProtoTCP:
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(key.SrcPort),
			DstPort: layers.TCPPort(key.DstPort),
			Seq:     seq,
			PSH:     true,
			ACK:     true,
			Window:  65535,
		}
		if err = tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		err = gopacket.SerializeLayers(buf, serializeOpts, eth, ip, tcp, payload)
	default:
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(key.SrcPort),
			DstPort: layers.UDPPort(key.DstPort),
		}
		if err = udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		err = gopacket.SerializeLayers(buf, serializeOpts, eth, ip, udp, payload)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// buildARP serializes an ARP request (dstMAC nil) or reply.
func buildARP(op uint16, srcMAC net.HardwareAddr, srcIP netip.Addr, dstMAC net.HardwareAddr, dstIP netip.Addr) ([]byte, error) {
	ethDst, arpDst := dstMAC, dstMAC
	if op == layers.ARPRequest {
		ethDst, arpDst = broadcastMAC, make(net.HardwareAddr, 6)
	}
	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       ethDst,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   srcMAC,
		SourceProtAddress: srcIP.AsSlice(),
		DstHwAddress:      arpDst,
		DstProtAddress:    dstIP.AsSlice(),
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, serializeOpts, eth, arp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
