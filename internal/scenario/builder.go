package scenario

// Builder assembles Params through fluent setters, starting from DefaultParams.
type Builder struct {
	p Params
}

func NewBuilder() *Builder {
	return &Builder{p: DefaultParams()}
}

// From replaces the builder's params wholesale.
func (b *Builder) From(p Params) *Builder {
	b.p = p
	return b
}

func (b *Builder) Stations(n int) *Builder            { b.p.Stations = n; return b }
func (b *Builder) Duration(seconds float64) *Builder  { b.p.Duration = seconds; return b }
func (b *Builder) Payload(bytes int) *Builder         { b.p.PayloadBytes = bytes; return b }
func (b *Builder) AggregateLoad(bps float64) *Builder { b.p.AggregateLoad = bps; return b }
func (b *Builder) Band(band string) *Builder          { b.p.Band = band; return b }
func (b *Builder) AckMode(mode string) *Builder       { b.p.AckMode = mode; return b }
func (b *Builder) ChannelWidth(mhz int) *Builder      { b.p.ChannelWidth = mhz; return b }
func (b *Builder) RateIndex(mcs int) *Builder         { b.p.RateIndex = mcs; return b }
func (b *Builder) GuardInterval(ns int) *Builder      { b.p.GuardInterval = ns; return b }
func (b *Builder) TCP(on bool) *Builder               { b.p.TCP = on; return b }
func (b *Builder) Downlink(on bool) *Builder          { b.p.Downlink = on; return b }
func (b *Builder) Spectrum(on bool) *Builder          { b.p.Spectrum = on; return b }
func (b *Builder) Seed(seed int64) *Builder           { b.p.Seed = seed; return b }

// Params returns a copy of the accumulated params.
func (b *Builder) Params() Params {
	return b.p
}

// Build validates the accumulated params.
func (b *Builder) Build() (Config, error) {
	return b.p.Build()
}
