package phmap

import "errors"

// These are the failure kinds of the conversion core. Callers match them
// with errors.Is; the returned errors wrap them with the details.
var (
	ErrDimensionMismatch     = errors.New("channel images differ in size")
	ErrInvalidCalibration    = errors.New("invalid calibration coefficients")
	ErrEmptyReferenceRegion  = errors.New("reference region has no valid pixels")
	ErrDegenerateCalibration = errors.New("reference ratios do not determine a calibration")
	ErrUnresolvedCalibration = errors.New("calibration model is not resolved")
	ErrEmptyOutput           = errors.New("pH image has no valid pixels")
	ErrInvalidDisplayRange   = errors.New("invalid display range")
)
