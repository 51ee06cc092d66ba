package phmap

import (
	"fmt"

	"github.com/abworrall/ratio-ph/pkg/emath"
)

// A RatioWindow rescales a raw ratio so that Lower maps to 0.0 and Upper
// to 1.0, clamping anything outside. Calibration curves published for
// the dye are expressed over this normalized ratio rather than the raw one.
type RatioWindow struct {
	Lower float64 // ratio measured at the low pH reference
	Upper float64 // ratio measured at the high pH reference
}

func NewRatioWindow(lower, upper float64) (RatioWindow, error) {
	w := RatioWindow{Lower: lower, Upper: upper}
	return w, w.Validate()
}

func (w RatioWindow) Validate() error {
	if !emath.IsFinite(w.Lower) || !emath.IsFinite(w.Upper) {
		return fmt.Errorf("%w: ratio window %s is not finite", ErrInvalidCalibration, w)
	}
	if w.Lower == w.Upper {
		return fmt.Errorf("%w: ratio window %s has zero width", ErrDegenerateCalibration, w)
	}
	return nil
}

func (w RatioWindow) Normalize(ratio float64) float64 {
	return emath.Clamp((ratio-w.Lower)/(w.Upper-w.Lower), 0.0, 1.0)
}

func (w RatioWindow) String() string { return fmt.Sprintf("[%.6f, %.6f]", w.Lower, w.Upper) }

// WithRatioWindow returns a copy of the model that normalizes ratios
// through w before evaluating its polynomial.
func (m CalibrationModel) WithRatioWindow(w RatioWindow) (CalibrationModel, error) {
	if !m.Resolved() {
		return CalibrationModel{}, ErrUnresolvedCalibration
	}
	if err := w.Validate(); err != nil {
		return CalibrationModel{}, err
	}
	m2 := newModel(m.mode, m.coeffs)
	m2.window = &w
	return m2, nil
}

// RatioWindowFromReferenceImages takes the window bounds from the mean
// ratios of two reference image pairs.
func RatioWindowFromReferenceImages(rc RatioComputer, lowA, lowB, highA, highB ChannelImage) (RatioWindow, error) {
	lower, err := rc.MeanRatio(lowA, lowB)
	if err != nil {
		return RatioWindow{}, fmt.Errorf("low pH reference: %w", err)
	}
	upper, err := rc.MeanRatio(highA, highB)
	if err != nil {
		return RatioWindow{}, fmt.Errorf("high pH reference: %w", err)
	}
	return NewRatioWindow(lower, upper)
}
