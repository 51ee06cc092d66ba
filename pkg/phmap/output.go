package phmap

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/codahale/hdrhistogram"
	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/abworrall/ratio-ph/pkg/emath"
)

// A DisplayRange is the span of pH values a viewer should stretch its
// lookup table over. It is metadata only; pixel values are never clipped to it.
type DisplayRange struct {
	Min float64
	Max float64
}

func (dr DisplayRange) Validate() error {
	if !emath.IsFinite(dr.Min) || !emath.IsFinite(dr.Max) || dr.Min > dr.Max {
		return fmt.Errorf("%w: %s", ErrInvalidDisplayRange, dr)
	}
	return nil
}

func (dr DisplayRange) String() string { return fmt.Sprintf("[%.3f, %.3f]", dr.Min, dr.Max) }

// PackagedOutput is what gets handed to whatever saves or displays the
// result: the pH image, untouched, plus the range to display it over.
//
// It implements image.Image and hdr.Image, so it can be passed straight
// to an HDR encoder. Through those interfaces a sentinel pixel reads as
// zero, since the encoders have no way to store NaN.
type PackagedOutput struct {
	PH    PHImage
	Range DisplayRange
}

// Implement image.Image
func (po PackagedOutput) ColorModel() color.Model { return hdrcolor.RGBModel }
func (po PackagedOutput) Bounds() image.Rectangle { return po.PH.Bounds() }
func (po PackagedOutput) At(x, y int) color.Color { return po.HDRAt(x, y) }

// Implement hdr.Image
func (po PackagedOutput) Size() int { return po.PH.Len() }
func (po PackagedOutput) HDRAt(x, y int) hdrcolor.Color {
	v := po.PH.Get(x, y)
	if IsSentinel(v) {
		v = 0
	}
	return hdrcolor.RGB{R: v, G: v, B: v}
}

// Package pairs the pH image with a display range. If dr is nil, the
// range is the min/max of the defined pixels.
func Package(ph PHImage, dr *DisplayRange) (PackagedOutput, error) {
	if dr != nil {
		if err := dr.Validate(); err != nil {
			return PackagedOutput{}, err
		}
		return PackagedOutput{PH: ph, Range: *dr}, nil
	}

	min, max, ok := ph.ValidMinMax()
	if !ok {
		return PackagedOutput{}, fmt.Errorf("%w: all %d pixels undefined", ErrEmptyOutput, ph.Len())
	}
	auto := DisplayRange{Min: min, Max: max}
	if err := auto.Validate(); err != nil {
		return PackagedOutput{}, fmt.Errorf("pH values out of range: %w", err)
	}
	return PackagedOutput{PH: ph, Range: auto}, nil
}

// histogramScale is how many histogram units make up one pH unit.
const histogramScale = 1000.0

// PercentileDisplayRange picks a range that ignores the outliers at
// either end: lo and hi are percentiles in [0,100]. Values are binned at
// a resolution of 0.001 pH.
func PercentileDisplayRange(ph PHImage, lo, hi float64) (DisplayRange, error) {
	if lo < 0 || hi > 100 || lo > hi {
		return DisplayRange{}, fmt.Errorf("%w: percentiles %g..%g", ErrInvalidDisplayRange, lo, hi)
	}

	min, max, ok := ph.ValidMinMax()
	if !ok {
		return DisplayRange{}, fmt.Errorf("%w: all %d pixels undefined", ErrEmptyOutput, ph.Len())
	}
	if !emath.IsFinite(min) || !emath.IsFinite(max) {
		return DisplayRange{}, fmt.Errorf("%w: pH values span %g..%g", ErrInvalidDisplayRange, min, max)
	}

	// The histogram only holds positive integers, so shift everything up to start at 1.
	toUnits := func(v float64) int64 { return int64(math.Round((v-min)*histogramScale)) + 1 }
	h := hdrhistogram.New(1, toUnits(max)+1, 3)
	for _, v := range ph.Values() {
		if IsSentinel(v) {
			continue
		}
		if err := h.RecordValue(toUnits(v)); err != nil {
			return DisplayRange{}, fmt.Errorf("recording pH %g: %v", v, err)
		}
	}

	fromUnits := func(u int64) float64 { return min + float64(u-1)/histogramScale }
	dr := DisplayRange{
		Min: emath.Clamp(fromUnits(h.ValueAtQuantile(lo)), min, max),
		Max: emath.Clamp(fromUnits(h.ValueAtQuantile(hi)), min, max),
	}
	return dr, nil
}
