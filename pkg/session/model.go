package session

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/abworrall/ratio-ph/pkg/phmap"
)

// BuildModel resolves the calibration described by the config, loading
// any reference images it names. The config should have been through
// FinalizeConfig.
func (c Config) BuildModel(log logrus.FieldLogger) (phmap.CalibrationModel, error) {
	cal := c.Calibration
	rc := c.RatioComputer()

	switch cal.Mode {
	case ModeManual:
		return phmap.FromCoefficients(cal.Coefficients...)

	case ModeImages:
		low, high, err := referenceMeans(rc, *cal.LowerReference, *cal.UpperReference, log)
		if err != nil {
			return phmap.CalibrationModel{}, err
		}
		return phmap.FromReferenceSamples(low, high)

	case ModeWindow:
		coeffs := cal.Coefficients
		if len(coeffs) == 0 {
			coeffs = phmap.DefaultWindowCoefficients
		}
		m, err := phmap.FromCoefficients(coeffs...)
		if err != nil {
			return phmap.CalibrationModel{}, err
		}

		lower, upper := cal.LowerRatio, cal.UpperRatio
		if cal.LowerReference != nil {
			low, high, err := referenceMeans(rc, *cal.LowerReference, *cal.UpperReference, log)
			if err != nil {
				return phmap.CalibrationModel{}, err
			}
			lower, upper = low.Ratio, high.Ratio
		}
		w, err := phmap.NewRatioWindow(lower, upper)
		if err != nil {
			return phmap.CalibrationModel{}, err
		}
		return m.WithRatioWindow(w)

	case ModeFit:
		return phmap.FitReferenceSamples(cal.Samples, cal.Degree)

	default:
		return phmap.CalibrationModel{}, fmt.Errorf("%w: no calibration mode named '%s'", phmap.ErrUnresolvedCalibration, cal.Mode)
	}
}

// referenceMeans summarizes each reference by the mean of its defined
// ratio pixels, and logs them.
func referenceMeans(rc phmap.RatioComputer, lowRef, highRef ReferenceConfig, log logrus.FieldLogger) (phmap.ReferenceSample, phmap.ReferenceSample, error) {
	low, err := referenceMean(rc, lowRef)
	if err != nil {
		return low, low, fmt.Errorf("low pH reference: %w", err)
	}
	high, err := referenceMean(rc, highRef)
	if err != nil {
		return low, high, fmt.Errorf("high pH reference: %w", err)
	}

	log.WithFields(logrus.Fields{"reference": "lower", "pH": low.PH}).Infof("mean ratio %.6f", low.Ratio)
	log.WithFields(logrus.Fields{"reference": "upper", "pH": high.PH}).Infof("mean ratio %.6f", high.Ratio)
	return low, high, nil
}

// referenceMean reads either a channel pair, or a ratio image that was
// computed elsewhere.
func referenceMean(rc phmap.RatioComputer, ref ReferenceConfig) (phmap.ReferenceSample, error) {
	s := phmap.ReferenceSample{PH: ref.PH}

	if ref.Ratio != "" {
		r, err := LoadRatio(ref.Ratio)
		if err != nil {
			return s, err
		}
		if s.Ratio, err = r.Mean(); err != nil {
			return s, fmt.Errorf("%s: %w", ref.Ratio, err)
		}
		return s, nil
	}

	a, err := LoadChannel(ref.ChannelA)
	if err != nil {
		return s, err
	}
	b, err := LoadChannel(ref.ChannelB)
	if err != nil {
		return s, err
	}
	if s.Ratio, err = rc.MeanRatio(a, b); err != nil {
		return s, fmt.Errorf("%s / %s: %w", ref.ChannelA, ref.ChannelB, err)
	}
	return s, nil
}
