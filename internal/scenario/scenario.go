// Package scenario validates run parameters and derives the values the engine needs.
package scenario

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"firestige.xyz/wifilab/internal/core"
	"firestige.xyz/wifilab/internal/loadmodel"
)

var validate = validator.New()

// Params is the raw configuration surface of one run, as read from flags or files.
type Params struct {
	Stations      int     `mapstructure:"stations" yaml:"stations" validate:"min=1,max=254"`
	Duration      float64 `mapstructure:"duration" yaml:"duration" validate:"gt=0,lte=1000000"`
	PayloadBytes  int     `mapstructure:"payload" yaml:"payload" validate:"gt=0"`
	AggregateLoad float64 `mapstructure:"load" yaml:"load" validate:"gt=0"`
	Band          string  `mapstructure:"band" yaml:"band"`
	AckMode       string  `mapstructure:"ack_mode" yaml:"ack_mode"`
	ChannelWidth  int     `mapstructure:"channel_width" yaml:"channel_width"`
	RateIndex     int     `mapstructure:"rate_index" yaml:"rate_index"`
	GuardInterval int     `mapstructure:"guard_interval" yaml:"guard_interval"` // ns
	TCP           bool    `mapstructure:"tcp" yaml:"tcp"`
	Downlink      bool    `mapstructure:"downlink" yaml:"downlink"`
	Spectrum      bool    `mapstructure:"spectrum" yaml:"spectrum"`
	Seed          int64   `mapstructure:"seed" yaml:"seed"`
}

// DefaultParams mirrors the reference experiment: two stations offering 10 Mbit/s of
// 1024-byte datagrams over an 80 MHz 5 GHz channel for 10 s.
func DefaultParams() Params {
	return Params{
		Stations:      2,
		Duration:      10,
		PayloadBytes:  1024,
		AggregateLoad: 10_000_000,
		Band:          "5GHz",
		AckMode:       "NO-OFDMA",
		ChannelWidth:  80,
		RateIndex:     9,
		GuardInterval: 800,
		Seed:          1,
	}
}

// Transport selects the generator's transport header.
type Transport uint8

const (
	TransportUDP Transport = iota
	TransportTCP
)

func (t Transport) String() string {
	if t == TransportTCP {
		return "tcp"
	}
	return "udp"
}

// Largest payloads that still fit the 16-bit IPv4 total length.
const (
	MaxUDPPayload = 65535 - 20 - 8
	MaxTCPPayload = 65535 - 20 - 20
)

// MaxPayload is the largest payload one datagram of this transport can carry.
func (t Transport) MaxPayload() int {
	if t == TransportTCP {
		return MaxTCPPayload
	}
	return MaxUDPPayload
}

// Proto is the IANA protocol number.
func (t Transport) Proto() uint8 {
	if t == TransportTCP {
		return core.ProtoTCP
	}
	return core.ProtoUDP
}

// Direction selects who sends: stations to the coordinator, or the reverse.
type Direction uint8

const (
	Uplink Direction = iota
	Downlink
)

func (d Direction) String() string {
	if d == Downlink {
		return "downlink"
	}
	return "uplink"
}

// ChannelSettings describes the operating channel.
type ChannelSettings struct {
	Number    int
	WidthMHz  int
	Band      Band
	Primary20 int
}

// String renders the engine's channel settings tuple.
func (c ChannelSettings) String() string {
	return fmt.Sprintf("{%d, %d, %s, %d}", c.Number, c.WidthMHz, c.Band.Token(), c.Primary20)
}

// Config is a validated scenario. It is a value: copies never share state.
type Config struct {
	Stations         int
	Duration         float64
	PayloadBytes     int
	AggregateLoadBps float64
	Band             Band
	AckMode          AckMode
	ChannelWidth     int
	RateIndex        int
	GuardInterval    time.Duration
	Transport        Transport
	Direction        Direction
	Seed             int64

	spectrumRequested bool
	load              loadmodel.Model
}

// Build validates p and derives a Config.
func (p Params) Build() (Config, error) {
	if err := validate.Struct(p); err != nil {
		return Config{}, fmt.Errorf("%w: %s", core.ErrInvalidScenario, formatValidationError(err))
	}

	band, err := ParseBand(p.Band)
	if err != nil {
		return Config{}, err
	}
	ack, err := ParseAckMode(p.AckMode)
	if err != nil {
		return Config{}, err
	}
	if p.RateIndex < 0 || p.RateIndex > MaxRateIndex {
		return Config{}, fmt.Errorf("%w: %d outside [0, %d] for HE", core.ErrInvalidRateIndex, p.RateIndex, MaxRateIndex)
	}
	if !slices.Contains(band.widths(), p.ChannelWidth) {
		return Config{}, fmt.Errorf("%w: channel width %d MHz not available in %s (want one of %v)",
			core.ErrInvalidScenario, p.ChannelWidth, band, band.widths())
	}
	gi := time.Duration(p.GuardInterval) * time.Nanosecond
	if !slices.Contains(guardIntervals, gi) {
		return Config{}, fmt.Errorf("%w: guard interval %d ns (want 800, 1600 or 3200)", core.ErrInvalidScenario, p.GuardInterval)
	}

	transport := TransportUDP
	if p.TCP {
		transport = TransportTCP
	}
	if p.PayloadBytes > transport.MaxPayload() {
		return Config{}, fmt.Errorf("%w: payload %d bytes exceeds the %s maximum of %d",
			core.ErrInvalidScenario, p.PayloadBytes, transport, transport.MaxPayload())
	}

	load, err := loadmodel.New(p.AggregateLoad, p.Stations, p.PayloadBytes)
	if err != nil {
		return Config{}, err
	}
	if load.IntervalDuration() <= 0 {
		return Config{}, fmt.Errorf("%w: send interval %g s is below the 1 ns clock resolution",
			core.ErrInvalidScenario, load.Interval)
	}

	cfg := Config{
		Stations:          p.Stations,
		Duration:          p.Duration,
		PayloadBytes:      p.PayloadBytes,
		AggregateLoadBps:  p.AggregateLoad,
		Band:              band,
		AckMode:           ack,
		ChannelWidth:      p.ChannelWidth,
		RateIndex:         p.RateIndex,
		GuardInterval:     gi,
		Transport:         transport,
		Direction:         Uplink,
		Seed:              p.Seed,
		spectrumRequested: p.Spectrum,
		load:              load,
	}
	if p.Downlink {
		cfg.Direction = Downlink
	}
	return cfg, nil
}

// Load is the derived load model.
func (c Config) Load() loadmodel.Model {
	return c.load
}

// Interval is the per-station send interval in seconds.
func (c Config) Interval() float64 {
	return c.load.Interval
}

// Spectrum reports whether the spectrum-accurate channel backend must be used.
// Multi-user acknowledgment sequencing cannot be expressed by the simpler backend, so
// it forces the spectrum backend regardless of what was requested.
func (c Config) Spectrum() bool {
	return c.spectrumRequested || c.AckMode.MultiUser()
}

// SpectrumForced reports whether the ack mode overrode the requested backend.
func (c Config) SpectrumForced() bool {
	return !c.spectrumRequested && c.AckMode.MultiUser()
}

// DataMode names the data rate.
func (c Config) DataMode() string {
	return fmt.Sprintf("HeMcs%d", c.RateIndex)
}

// ControlMode names the non-HT reference rate used for control frames.
func (c Config) ControlMode() string {
	return c.Band.controlMode(c.RateIndex)
}

// Channel is the operating channel descriptor.
func (c Config) Channel() ChannelSettings {
	return ChannelSettings{WidthMHz: c.ChannelWidth, Band: c.Band}
}

// DataRateBps is the single stream PHY data rate.
func (c Config) DataRateBps() float64 {
	return heDataRate(c.RateIndex, c.ChannelWidth, c.GuardInterval)
}

// Description is the human and machine readable view of a Config.
type Description struct {
	Stations          int     `yaml:"stations"`
	Duration          float64 `yaml:"duration_s"`
	PayloadBytes      int     `yaml:"payload_bytes"`
	AggregateLoadBps  float64 `yaml:"aggregate_load_bps"`
	PerStationLoadBps float64 `yaml:"per_station_load_bps"`
	IntervalSeconds   float64 `yaml:"interval_s"`
	Band              string  `yaml:"band"`
	Channel           string  `yaml:"channel"`
	DataMode          string  `yaml:"data_mode"`
	ControlMode       string  `yaml:"control_mode"`
	DataRateMbps      float64 `yaml:"data_rate_mbps"`
	Utilization       float64 `yaml:"utilization"`
	AckMode           string  `yaml:"ack_mode"`
	Spectrum          bool    `yaml:"spectrum"`
	SpectrumForced    bool    `yaml:"spectrum_forced"`
	Transport         string  `yaml:"transport"`
	Direction         string  `yaml:"direction"`
	Seed              int64   `yaml:"seed"`
}

// Describe flattens the config and its derived values.
func (c Config) Describe() Description {
	rate := c.DataRateBps()
	return Description{
		Stations:          c.Stations,
		Duration:          c.Duration,
		PayloadBytes:      c.PayloadBytes,
		AggregateLoadBps:  c.AggregateLoadBps,
		PerStationLoadBps: c.load.PerStationLoadBps,
		IntervalSeconds:   c.load.Interval,
		Band:              c.Band.String(),
		Channel:           c.Channel().String(),
		DataMode:          c.DataMode(),
		ControlMode:       c.ControlMode(),
		DataRateMbps:      rate / 1e6,
		Utilization:       c.load.Utilization(rate),
		AckMode:           c.AckMode.String(),
		Spectrum:          c.Spectrum(),
		SpectrumForced:    c.SpectrumForced(),
		Transport:         c.Transport.String(),
		Direction:         c.Direction.String(),
		Seed:              c.Seed,
	}
}

// ApplyOverrides decodes a loosely typed override map onto a copy of p. String values
// such as "10" are accepted for numeric fields.
func ApplyOverrides(p Params, overrides map[string]any) (Params, error) {
	out := p
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return p, err
	}
	if err := decoder.Decode(overrides); err != nil {
		return p, fmt.Errorf("%w: %v", core.ErrConfigInvalid, err)
	}
	return out, nil
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s: must be at least %s, got %v", fe.Field(), fe.Param(), fe.Value()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s: must be at most %s, got %v", fe.Field(), fe.Param(), fe.Value()))
		case "lte":
			msgs = append(msgs, fmt.Sprintf("%s: must be at most %s, got %v", fe.Field(), fe.Param(), fe.Value()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s: must be greater than %s, got %v", fe.Field(), fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
