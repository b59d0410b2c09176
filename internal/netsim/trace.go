package netsim

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/bpf"
)

const snapLen = 65535

// Trace filters.
const (
	TraceAll  = "all"
	TraceARP  = "arp"
	TraceData = "data"
)

// tracer writes transmitted frames to a pcap stream. Timestamps are simulated time
// from the Unix epoch.
type tracer struct {
	w      *pcapgo.Writer
	vm     *bpf.VM // nil accepts everything
	closer io.Closer
	frames uint64
}

func newTracer(w io.Writer, filter string) (*tracer, error) {
	prog, err := compileTraceFilter(filter)
	if err != nil {
		return nil, err
	}
	t := &tracer{w: pcapgo.NewWriter(w)}
	if prog != nil {
		vm, err := bpf.NewVM(prog)
		if err != nil {
			return nil, fmt.Errorf("trace filter %q: %w", filter, err)
		}
		t.vm = vm
	}
	if c, ok := w.(io.Closer); ok {
		t.closer = c
	}
	if err := t.w.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return t, nil
}

// compileTraceFilter returns the BPF program for filter, nil for "all".
func compileTraceFilter(filter string) ([]bpf.Instruction, error) {
	var ethType uint32
	switch filter {
	case "", TraceAll:
		return nil, nil
	case TraceARP:
		ethType = uint32(layers.EthernetTypeARP)
	case TraceData:
		ethType = uint32(layers.EthernetTypeIPv4)
	default:
		return nil, fmt.Errorf("unknown trace filter %q", filter)
	}
	return []bpf.Instruction{
		// ethernet type, offset 12, 2 bytes
		bpf.LoadAbsolute{Off: 12, Size: 2},
		bpf.JumpIf{Cond: bpf.JumpEqual, Val: ethType, SkipFalse: 1},
		bpf.RetConstant{Val: snapLen},
		bpf.RetConstant{Val: 0},
	}, nil
}

func (t *tracer) record(data []byte, now time.Duration) error {
	n := len(data)
	if t.vm != nil {
		keep, err := t.vm.Run(data)
		if err != nil {
			return err
		}
		if keep == 0 {
			return nil
		}
		n = min(n, keep)
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, 0).Add(now).UTC(),
		CaptureLength: n,
		Length:        len(data),
	}
	t.frames++
	return t.w.WritePacket(ci, data[:n])
}

func (t *tracer) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer.Close()
}
