package phmap

import (
	"fmt"
	"strings"

	"github.com/abworrall/ratio-ph/pkg/emath"
)

// Mode records which constructor produced a CalibrationModel.
type Mode int

const (
	ModeUnresolved  Mode = iota
	ModeManual           // coefficients supplied directly
	ModeImageMeans       // two-point line through the mean ratios of two reference images
	ModeFitted           // least-squares fit through reference samples
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeImageMeans:
		return "image-means"
	case ModeFitted:
		return "fitted"
	default:
		return "unresolved"
	}
}

// DefaultWindowCoefficients is the cubic (c0..c3) that maps a ratio,
// normalized into [0,1] by a RatioWindow, onto apoplastic pH.
var DefaultWindowCoefficients = []float64{5.0497, 4.2768, -5.7843, 3.4347}

// A CalibrationModel maps a ratio onto pH, via the polynomial
//
//	pH = c0 + c1.r + c2.r^2 + ...
//
// If the model has a RatioWindow, r is first normalized through it.
//
// The zero value is unresolved and cannot be evaluated. Once built, a
// model never changes, so it can be shared between goroutines.
type CalibrationModel struct {
	coeffs []float64
	window *RatioWindow
	mode   Mode
}

// A ReferenceSample pairs a ratio statistic with the pH it is known to represent.
type ReferenceSample struct {
	Ratio float64
	PH    float64
}

// ReferenceImages is a pair of channel images of a sample at a known pH.
type ReferenceImages struct {
	ChannelA ChannelImage
	ChannelB ChannelImage
	PH       float64
}

// FromCoefficients builds a manual-mode model; coeffs are c0..cn.
func FromCoefficients(coeffs ...float64) (CalibrationModel, error) {
	if err := checkCoefficients(coeffs); err != nil {
		return CalibrationModel{}, err
	}
	return newModel(ModeManual, coeffs), nil
}

// FromReferenceSamples solves for the line through two samples.
func FromReferenceSamples(low, high ReferenceSample) (CalibrationModel, error) {
	for _, s := range []ReferenceSample{low, high} {
		if !emath.IsFinite(s.Ratio) || !emath.IsFinite(s.PH) {
			return CalibrationModel{}, fmt.Errorf("%w: reference (ratio %g, pH %g) is not finite", ErrInvalidCalibration, s.Ratio, s.PH)
		}
	}
	if low.Ratio == high.Ratio {
		return CalibrationModel{}, fmt.Errorf("%w: both references have mean ratio %g", ErrDegenerateCalibration, low.Ratio)
	}

	c1 := (high.PH - low.PH) / (high.Ratio - low.Ratio)
	c0 := low.PH - c1*low.Ratio

	coeffs := []float64{c0, c1}
	if err := checkCoefficients(coeffs); err != nil {
		return CalibrationModel{}, err
	}
	return newModel(ModeImageMeans, coeffs), nil
}

// FromReferenceImages is the image-means mode: each reference pair is
// summarized by its mean ratio (over defined pixels), and a line is
// passed through the two (mean ratio, pH) points.
func FromReferenceImages(rc RatioComputer, low, high ReferenceImages) (CalibrationModel, error) {
	lowRatio, err := rc.MeanRatio(low.ChannelA, low.ChannelB)
	if err != nil {
		return CalibrationModel{}, fmt.Errorf("low pH reference: %w", err)
	}
	highRatio, err := rc.MeanRatio(high.ChannelA, high.ChannelB)
	if err != nil {
		return CalibrationModel{}, fmt.Errorf("high pH reference: %w", err)
	}

	return FromReferenceSamples(
		ReferenceSample{Ratio: lowRatio, PH: low.PH},
		ReferenceSample{Ratio: highRatio, PH: high.PH},
	)
}

func newModel(mode Mode, coeffs []float64) CalibrationModel {
	c := make([]float64, len(coeffs))
	copy(c, coeffs)
	return CalibrationModel{coeffs: c, mode: mode}
}

func checkCoefficients(coeffs []float64) error {
	if len(coeffs) == 0 {
		return fmt.Errorf("%w: no coefficients", ErrInvalidCalibration)
	}
	for i, c := range coeffs {
		if !emath.IsFinite(c) {
			return fmt.Errorf("%w: c%d is %v", ErrInvalidCalibration, i, c)
		}
	}
	return nil
}

func (m CalibrationModel) Resolved() bool { return len(m.coeffs) > 0 }
func (m CalibrationModel) Mode() Mode     { return m.mode }
func (m CalibrationModel) Degree() int    { return len(m.coeffs) - 1 }

// Coefficients returns a copy of c0..cn.
func (m CalibrationModel) Coefficients() []float64 {
	c := make([]float64, len(m.coeffs))
	copy(c, m.coeffs)
	return c
}

// Window returns the ratio window, if the model has one.
func (m CalibrationModel) Window() (RatioWindow, bool) {
	if m.window == nil {
		return RatioWindow{}, false
	}
	return *m.window, true
}

// Evaluate maps a single ratio onto pH. The sentinel maps to the sentinel,
// as does any ratio (e.g. +Inf) that drives the polynomial out of range.
func (m CalibrationModel) Evaluate(ratio float64) (float64, error) {
	if !m.Resolved() {
		return Sentinel(), ErrUnresolvedCalibration
	}
	return m.eval(ratio), nil
}

// eval assumes the model is resolved.
func (m CalibrationModel) eval(ratio float64) float64 {
	if IsSentinel(ratio) {
		return ratio
	}
	if m.window != nil {
		ratio = m.window.Normalize(ratio)
	}

	// Horner
	n := len(m.coeffs) - 1
	ph := m.coeffs[n]
	for i := n - 1; i >= 0; i-- {
		ph = ph*ratio + m.coeffs[i]
	}
	if !emath.IsFinite(ph) {
		return Sentinel()
	}
	return ph
}

func (m CalibrationModel) String() string {
	if !m.Resolved() {
		return "CalibrationModel[unresolved]"
	}
	terms := []string{}
	for i, c := range m.coeffs {
		switch i {
		case 0:
			terms = append(terms, fmt.Sprintf("%.6g", c))
		case 1:
			terms = append(terms, fmt.Sprintf("%.6g*r", c))
		default:
			terms = append(terms, fmt.Sprintf("%.6g*r^%d", c, i))
		}
	}
	str := fmt.Sprintf("CalibrationModel[%s: pH = %s", m.mode, strings.Join(terms, " + "))
	if m.window != nil {
		str += fmt.Sprintf(", r normalized over %s", m.window)
	}
	return str + "]"
}
