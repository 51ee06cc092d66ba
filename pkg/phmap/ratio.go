package phmap

import (
	"fmt"
	"math"

	"github.com/abworrall/ratio-ph/pkg/emath"
)

// DefaultEpsilon is the smallest channel B intensity we are prepared to
// divide by. Background pixels in the 405 channel sit at or near zero.
const DefaultEpsilon = 1e-6

// A RatioComputer divides channel A by channel B, pixel by pixel.
type RatioComputer struct {
	Epsilon float64 // channel B values below this (and any <= 0) give the sentinel
	Workers int     // row-parallelism; 0 means GOMAXPROCS
}

func NewRatioComputer() RatioComputer {
	return RatioComputer{Epsilon: DefaultEpsilon}
}

// Compute returns a fresh ratio image, the same size as the inputs.
func (rc RatioComputer) Compute(a, b ChannelImage) (RatioImage, error) {
	if !a.SameSize(&b.FloatGrid) {
		return RatioImage{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrDimensionMismatch, a.Dx(), a.Dy(), b.Dx(), b.Dy())
	}

	out := RatioImage{a.NewFromThis()}
	forEachRow(rc.Workers, a.Dy(), func(y int) {
		rowA, rowB, rowOut := a.Row(y), b.Row(y), out.Row(y)
		for x := range rowOut {
			rowOut[x] = rc.ratio(rowA[x], rowB[x])
		}
	})

	return out, nil
}

func (rc RatioComputer) ratio(a, b float64) float64 {
	// NaN in b fails every comparison, so check it explicitly. A zero or
	// negative b is background whatever the epsilon.
	if math.IsNaN(b) || b <= 0 || b < rc.Epsilon {
		return Sentinel()
	}
	if q := a / b; emath.IsFinite(q) {
		return q
	}
	return Sentinel()
}

// MeanRatio is the mean of the defined pixels of a/b; it is what the
// image-means calibration uses to summarize a reference region.
func (rc RatioComputer) MeanRatio(a, b ChannelImage) (float64, error) {
	r, err := rc.Compute(a, b)
	if err != nil {
		return 0, err
	}
	return r.Mean()
}

// Mean averages the defined pixels of a ratio image.
func (r RatioImage) Mean() (float64, error) {
	mean, n := r.ValidMean()
	if n == 0 {
		return 0, fmt.Errorf("%w: all %d pixels undefined", ErrEmptyReferenceRegion, r.Len())
	}
	return mean, nil
}
