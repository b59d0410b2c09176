package scenario

import (
	"fmt"
	"strings"

	"firestige.xyz/wifilab/internal/core"
)

// Band is an operating frequency band.
type Band uint8

const (
	Band2_4GHz Band = iota + 1
	Band5GHz
	Band6GHz
)

var bandNames = map[string]Band{
	"2.4ghz": Band2_4GHz,
	"2.4":    Band2_4GHz,
	"5ghz":   Band5GHz,
	"5":      Band5GHz,
	"6ghz":   Band6GHz,
	"6":      Band6GHz,
}

// ParseBand accepts "2.4GHz", "5GHz", "6GHz" and their bare numeric forms.
func ParseBand(s string) (Band, error) {
	if b, ok := bandNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return b, nil
	}
	return 0, fmt.Errorf("%w: %q (want 2.4GHz, 5GHz or 6GHz)", core.ErrUnsupportedBand, s)
}

func (b Band) String() string {
	switch b {
	case Band2_4GHz:
		return "2.4GHz"
	case Band5GHz:
		return "5GHz"
	case Band6GHz:
		return "6GHz"
	default:
		return fmt.Sprintf("Band(%d)", uint8(b))
	}
}

// Token is the engine's channel band identifier.
func (b Band) Token() string {
	switch b {
	case Band2_4GHz:
		return "BAND_2_4GHZ"
	case Band5GHz:
		return "BAND_5GHZ"
	case Band6GHz:
		return "BAND_6GHZ"
	default:
		return "BAND_UNSPECIFIED"
	}
}

// widths lists the channel widths in MHz the band can carry.
func (b Band) widths() []int {
	if b == Band2_4GHz {
		return []int{20, 40}
	}
	return []int{20, 40, 80, 160}
}

// controlMode names the non-HT reference rate for the rate index. Each band has its own
// naming scheme: 6 GHz has no legacy rates and uses HE rates directly.
func (b Band) controlMode(rateIndex int) string {
	switch b {
	case Band6GHz:
		return fmt.Sprintf("HeMcs%d", rateIndex)
	case Band5GHz:
		return fmt.Sprintf("OfdmRate%dMbps", heRates[rateIndex].nonHtRefMbps)
	default:
		return fmt.Sprintf("ErpOfdmRate%dMbps", heRates[rateIndex].nonHtRefMbps)
	}
}
