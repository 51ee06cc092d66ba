// Package phmap turns a pair of ratiometric fluorescence channels (465nm
// and 405nm excitation) into a calibrated, per-pixel pH map.
//
// The pipeline is RatioComputer -> CalibrationModel -> Pipeline -> Package.
// Pixels where the ratio is undefined carry the sentinel (NaN) all the way
// through, and are skipped by every statistic.
package phmap

import (
	"math"

	"github.com/abworrall/ratio-ph/pkg/emath"
)

// ChannelImage holds the intensities of one excitation channel. The core
// never writes to one.
type ChannelImage struct{ emath.FloatGrid }

// RatioImage is channelA/channelB per pixel, or the sentinel.
type RatioImage struct{ emath.FloatGrid }

// PHImage is the calibrated output, one pH value (or the sentinel) per pixel.
type PHImage struct{ emath.FloatGrid }

func NewChannelImage(g emath.FloatGrid) ChannelImage { return ChannelImage{g} }

// ChannelImageFromRows is a convenience for small hand-built images; rows[y][x].
func ChannelImageFromRows(rows [][]float64) (ChannelImage, error) {
	g, err := emath.NewFloatGridFromRows(rows)
	return ChannelImage{g}, err
}

// RatioImageFrom wraps a ratio image that was computed elsewhere (e.g. a
// 465/405 image saved by another tool). Cells that are NaN or exactly
// zero are taken to be background, and become the sentinel.
func RatioImageFrom(g emath.FloatGrid) RatioImage {
	r := RatioImage{*g.Copy()}
	for y := 0; y < r.Dy(); y++ {
		row := r.Row(y)
		for x, v := range row {
			if v == 0.0 || math.IsNaN(v) {
				row[x] = Sentinel()
			}
		}
	}
	return r
}

// Sentinel is the value used for pixels whose ratio (and hence pH) is undefined.
func Sentinel() float64 { return math.NaN() }

func IsSentinel(v float64) bool { return math.IsNaN(v) }
