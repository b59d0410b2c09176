package scenario

import "time"

// MaxRateIndex is the highest HE MCS index the engine supports.
const MaxRateIndex = 11

type heRate struct {
	bitsPerSubcarrier int
	codeNum, codeDen  int
	nonHtRefMbps      int
}

// heRates is indexed by HE MCS.
var heRates = [MaxRateIndex + 1]heRate{
	{1, 1, 2, 6},   // BPSK 1/2
	{2, 1, 2, 12},  // QPSK 1/2
	{2, 3, 4, 18},  // QPSK 3/4
	{4, 1, 2, 24},  // 16-QAM 1/2
	{4, 3, 4, 36},  // 16-QAM 3/4
	{6, 2, 3, 48},  // 64-QAM 2/3
	{6, 3, 4, 54},  // 64-QAM 3/4
	{6, 5, 6, 54},  // 64-QAM 5/6
	{8, 3, 4, 54},  // 256-QAM 3/4
	{8, 5, 6, 54},  // 256-QAM 5/6
	{10, 3, 4, 54}, // 1024-QAM 3/4
	{10, 5, 6, 54}, // 1024-QAM 5/6
}

// data subcarriers of a full-width HE RU
var heDataSubcarriers = map[int]int{
	20:  234,
	40:  468,
	80:  980,
	160: 1960,
}

const heSymbolNoGI = 12800 * time.Nanosecond

var guardIntervals = []time.Duration{800 * time.Nanosecond, 1600 * time.Nanosecond, 3200 * time.Nanosecond}

// heDataRate is the single spatial stream PHY rate in bit/s.
func heDataRate(rateIndex, widthMHz int, gi time.Duration) float64 {
	r := heRates[rateIndex]
	bitsPerSymbol := float64(heDataSubcarriers[widthMHz]*r.bitsPerSubcarrier*r.codeNum) / float64(r.codeDen)
	return bitsPerSymbol / (heSymbolNoGI + gi).Seconds()
}
