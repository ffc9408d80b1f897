package precip

import "errors"

// Error taxonomy. Call sites wrap these with fmt.Errorf("%w: ...") so callers
// can classify failures with errors.Is.
var (
	// ErrInsufficientData means too few observations, transitions or windows
	// for a meaningful estimate.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrConfiguration means an invalid window, overlap, threshold or a
	// misaligned set of parameter grids.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrInsufficientSamples means a series is too short for the requested
	// spectral resolution.
	ErrInsufficientSamples = errors.New("insufficient samples for spectral analysis")

	// ErrValidation means an out-of-domain value, such as a non-positive period
	// or a correlation matrix that cannot be repaired.
	ErrValidation = errors.New("validation failed")
)
