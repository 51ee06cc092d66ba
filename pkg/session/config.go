package session

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/abworrall/ratio-ph/pkg/ecolor"
	"github.com/abworrall/ratio-ph/pkg/emath"
	"github.com/abworrall/ratio-ph/pkg/phmap"
)

// Calibration modes, as named in the config file.
const (
	ModeManual = "manual" // coefficients given directly
	ModeImages = "images" // two-point line through the mean ratios of two reference pairs
	ModeWindow = "window" // ratio window + polynomial
	ModeFit    = "fit"    // least-squares polynomial through measured samples
)

type Config struct {
	Verbosity int

	Calibration CalibrationConfig

	Epsilon float64 // channel B values below this are background
	Workers int     // 0 means GOMAXPROCS

	Display            *phmap.DisplayRange // nil means auto min/max
	DisplayPercentiles []float64           // [lo, hi]; if set, used instead of Display
	LUT                string

	OutputDir      string // "" means next to each input
	Extension      string // input files must have this, case-insensitive
	ChannelASuffix string // e.g. "_465"
	ChannelBSuffix string // e.g. "_405"

	Pairs []InputPair // explicit inputs, as well as any on the command line
}

type CalibrationConfig struct {
	Mode         string
	Coefficients []float64 // c0..cn; window mode defaults to phmap.DefaultWindowCoefficients

	// For "window" mode, the window is given either by these two ...
	LowerRatio float64
	UpperRatio float64

	// ... or by the mean ratios of these, as is the two-point line in "images" mode
	LowerReference *ReferenceConfig
	UpperReference *ReferenceConfig

	// For "fit" mode
	Samples []phmap.ReferenceSample
	Degree  int
}

// ReferenceConfig names the images of a sample at a known pH: either a
// pair of channel images, or one ratio image.
type ReferenceConfig struct {
	ChannelA string
	ChannelB string
	Ratio    string
	PH       float64
}

func (r ReferenceConfig) check() error {
	single := r.Ratio != ""
	double := r.ChannelA != "" || r.ChannelB != ""
	if single == double || (double && (r.ChannelA == "" || r.ChannelB == "")) {
		return fmt.Errorf("%w: reference at pH %g needs either both channels or a ratio image", phmap.ErrInvalidCalibration, r.PH)
	}
	if !emath.IsFinite(r.PH) {
		return fmt.Errorf("%w: reference pH %g", phmap.ErrInvalidCalibration, r.PH)
	}
	return nil
}

// InputPair is one unit of work; either both channels, or a single
// precomputed ratio image.
type InputPair struct {
	Name     string
	ChannelA string
	ChannelB string
	Ratio    string
}

func (p InputPair) String() string {
	if p.Ratio != "" {
		return fmt.Sprintf("%s[ratio %s]", p.Name, p.Ratio)
	}
	return fmt.Sprintf("%s[%s / %s]", p.Name, p.ChannelA, p.ChannelB)
}

func NewConfig() Config {
	return Config{
		Calibration:    CalibrationConfig{Mode: ModeWindow},
		Epsilon:        phmap.DefaultEpsilon,
		Display:        &phmap.DisplayRange{Min: 5.0, Max: 7.0},
		LUT:            ecolor.DefaultLUT,
		Extension:      "tif",
		ChannelASuffix: "_465",
		ChannelBSuffix: "_405",
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	return c, err
}

func loadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %v", filename, err)
	}
	return newConfigFromYaml(contents)
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("# can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// FinalizeConfig checks that the config describes exactly one way to
// calibrate, with everything that way needs, before any image is read.
func (c Config) FinalizeConfig() error {
	cal := c.Calibration
	hasRefs := cal.LowerReference != nil || cal.UpperReference != nil
	bothRefs := cal.LowerReference != nil && cal.UpperReference != nil
	hasBounds := cal.LowerRatio != 0 || cal.UpperRatio != 0

	switch cal.Mode {
	case ModeManual:
		if len(cal.Coefficients) == 0 {
			return fmt.Errorf("%w: manual mode needs coefficients", phmap.ErrInvalidCalibration)
		}
		if hasRefs || hasBounds {
			return fmt.Errorf("%w: manual mode takes coefficients only", phmap.ErrInvalidCalibration)
		}

	case ModeImages:
		if !bothRefs {
			return fmt.Errorf("%w: images mode needs both a lower and upper reference", phmap.ErrInvalidCalibration)
		}
		if hasBounds {
			return fmt.Errorf("%w: images mode takes references, not ratio bounds", phmap.ErrInvalidCalibration)
		}
		if len(cal.Coefficients) > 0 {
			return fmt.Errorf("%w: images mode derives its own coefficients", phmap.ErrInvalidCalibration)
		}

	case ModeWindow:
		if hasRefs == hasBounds {
			return fmt.Errorf("%w: window mode needs either ratio bounds or a pair of references", phmap.ErrInvalidCalibration)
		}
		if hasRefs && !bothRefs {
			return fmt.Errorf("%w: window mode needs both a lower and upper reference", phmap.ErrInvalidCalibration)
		}

	case ModeFit:
		if len(cal.Samples) == 0 {
			return fmt.Errorf("%w: fit mode needs samples", phmap.ErrInvalidCalibration)
		}
		if hasRefs || hasBounds || len(cal.Coefficients) > 0 {
			return fmt.Errorf("%w: fit mode takes samples and a degree only", phmap.ErrInvalidCalibration)
		}

	default:
		return fmt.Errorf("%w: no calibration mode named '%s'", phmap.ErrInvalidCalibration, cal.Mode)
	}

	for _, ref := range []*ReferenceConfig{cal.LowerReference, cal.UpperReference} {
		if ref == nil {
			continue
		}
		if err := ref.check(); err != nil {
			return err
		}
	}

	// Percentiles, when given, win over the fixed range
	if n := len(c.DisplayPercentiles); n != 0 {
		lo, hi := 0.0, 0.0
		if n == 2 {
			lo, hi = c.DisplayPercentiles[0], c.DisplayPercentiles[1]
		}
		if n != 2 || lo < 0 || hi > 100 || lo > hi {
			return fmt.Errorf("%w: displaypercentiles %v needs two values in 0..100", phmap.ErrInvalidDisplayRange, c.DisplayPercentiles)
		}
	} else if c.Display != nil {
		if err := c.Display.Validate(); err != nil {
			return err
		}
	}

	if !(c.Epsilon > 0) {
		return fmt.Errorf("epsilon %g must be positive", c.Epsilon)
	}
	if c.ChannelASuffix == "" || c.ChannelBSuffix == "" || c.ChannelASuffix == c.ChannelBSuffix {
		return fmt.Errorf("channel suffixes '%s' and '%s' must differ", c.ChannelASuffix, c.ChannelBSuffix)
	}

	for _, p := range c.Pairs {
		single := p.Ratio != ""
		double := p.ChannelA != "" || p.ChannelB != ""
		if single == double || (double && (p.ChannelA == "" || p.ChannelB == "")) {
			return fmt.Errorf("input %s: needs either both channels or a ratio image", p)
		}
	}

	return nil
}

func (c Config) RatioComputer() phmap.RatioComputer {
	return phmap.RatioComputer{Epsilon: c.Epsilon, Workers: c.Workers}
}
