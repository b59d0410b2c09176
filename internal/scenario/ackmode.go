package scenario

import (
	"fmt"
	"strings"

	"firestige.xyz/wifilab/internal/core"
)

// AckMode is the downlink acknowledgment sequencing strategy.
type AckMode uint8

const (
	AckNoOFDMA AckMode = iota + 1
	AckSUFormat
	AckMUBar
	AckAggrMUBar
)

var ackModeNames = map[string]AckMode{
	"NO-OFDMA":      AckNoOFDMA,
	"ACK-SU-FORMAT": AckSUFormat,
	"MU-BAR":        AckMUBar,
	"AGGR-MU-BAR":   AckAggrMUBar,
}

// ParseAckMode is case-insensitive.
func ParseAckMode(s string) (AckMode, error) {
	if m, ok := ackModeNames[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: %q (want NO-OFDMA, ACK-SU-FORMAT, MU-BAR or AGGR-MU-BAR)", core.ErrInvalidAckMode, s)
}

func (a AckMode) String() string {
	for name, m := range ackModeNames {
		if m == a {
			return name
		}
	}
	return fmt.Sprintf("AckMode(%d)", uint8(a))
}

// MultiUser reports whether the mode sequences acknowledgments for several stations at
// once. Only the spectrum backend can express these sequences.
func (a AckMode) MultiUser() bool {
	return a != AckNoOFDMA
}
