// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Setup-phase failures are unrecoverable for the current run and are
// never retried; callers wrap them with fmt.Errorf("%w: ...") to add context.
var (
	// Scenario errors
	ErrInvalidScenario  = errors.New("wifilab: invalid scenario")
	ErrUnsupportedBand  = errors.New("wifilab: unsupported band")
	ErrInvalidAckMode   = errors.New("wifilab: invalid ack mode")
	ErrInvalidRateIndex = errors.New("wifilab: invalid rate index")

	// Address resolution errors
	ErrAddressConflict = errors.New("wifilab: address conflict")

	// Configuration errors
	ErrConfigInvalid = errors.New("wifilab: invalid configuration")
)

// Process exit statuses, one per validation failure class.
const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitInvalidScenario = 2
	ExitUnsupportedBand = 3
	ExitInvalidAckMode  = 4
	ExitInvalidRate     = 5
	ExitAddressConflict = 6
	ExitConfigInvalid   = 7
)

// ExitCode maps an error to the process exit status of its failure class.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUnsupportedBand):
		return ExitUnsupportedBand
	case errors.Is(err, ErrInvalidAckMode):
		return ExitInvalidAckMode
	case errors.Is(err, ErrInvalidRateIndex):
		return ExitInvalidRate
	case errors.Is(err, ErrAddressConflict):
		return ExitAddressConflict
	case errors.Is(err, ErrInvalidScenario):
		return ExitInvalidScenario
	case errors.Is(err, ErrConfigInvalid):
		return ExitConfigInvalid
	default:
		return ExitFailure
	}
}
