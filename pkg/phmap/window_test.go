package phmap

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatioWindow_Normalize(t *testing.T) {
	w, err := NewRatioWindow(0.5, 2.5)
	require.NoError(t, err)

	assert.Equal(t, 0.0, w.Normalize(0.1))
	assert.Equal(t, 0.0, w.Normalize(0.5))
	assert.Equal(t, 0.5, w.Normalize(1.5))
	assert.Equal(t, 1.0, w.Normalize(2.5))
	assert.Equal(t, 1.0, w.Normalize(9))
}

func TestRatioWindow_Invalid(t *testing.T) {
	_, err := NewRatioWindow(1, 1)
	assert.ErrorIs(t, err, ErrDegenerateCalibration)

	_, err = NewRatioWindow(math.NaN(), 1)
	assert.ErrorIs(t, err, ErrInvalidCalibration)
}

func TestWithRatioWindow_DefaultCubic(t *testing.T) {
	m, err := FromCoefficients(DefaultWindowCoefficients...)
	require.NoError(t, err)
	w, err := NewRatioWindow(1.0, 3.0)
	require.NoError(t, err)

	mw, err := m.WithRatioWindow(w)
	require.NoError(t, err)

	got, ok := mw.Window()
	require.True(t, ok)
	assert.Equal(t, w, got)

	// m itself is not changed
	_, ok = m.Window()
	assert.False(t, ok)

	// At the bottom of the window only c0 is left, at the top it's the sum
	ph, err := mw.Evaluate(1.0)
	require.NoError(t, err)
	assert.InDelta(t, 5.0497, ph, 1e-12)

	ph, err = mw.Evaluate(3.0)
	require.NoError(t, err)
	assert.InDelta(t, 5.0497+4.2768-5.7843+3.4347, ph, 1e-12)

	// Outside the window clamps
	ph, err = mw.Evaluate(10.0)
	require.NoError(t, err)
	assert.InDelta(t, 5.0497+4.2768-5.7843+3.4347, ph, 1e-12)

	ph, err = mw.Evaluate(2.0)
	require.NoError(t, err)
	assert.InDelta(t, 5.0497+4.2768*0.5-5.7843*0.25+3.4347*0.125, ph, 1e-12)

	ph, err = mw.Evaluate(Sentinel())
	require.NoError(t, err)
	assert.True(t, IsSentinel(ph))
}

func TestWithRatioWindow_Unresolved(t *testing.T) {
	var m CalibrationModel
	_, err := m.WithRatioWindow(RatioWindow{Lower: 1, Upper: 2})
	assert.ErrorIs(t, err, ErrUnresolvedCalibration)
}

func TestRatioWindowFromReferenceImages(t *testing.T) {
	rc := NewRatioComputer()
	w, err := RatioWindowFromReferenceImages(rc,
		mustChannel(t, [][]float64{{2, 4}}), mustChannel(t, [][]float64{{2, 4}}),
		mustChannel(t, [][]float64{{6, 3}}), mustChannel(t, [][]float64{{2, 1}}),
	)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, w.Lower, 1e-12)
	assert.InDelta(t, 3.0, w.Upper, 1e-12)

	_, err = RatioWindowFromReferenceImages(rc,
		mustChannel(t, [][]float64{{2}}), mustChannel(t, [][]float64{{0}}),
		mustChannel(t, [][]float64{{6}}), mustChannel(t, [][]float64{{2}}),
	)
	assert.ErrorIs(t, err, ErrEmptyReferenceRegion)
}

func TestFitReferenceSamples(t *testing.T) {
	// points on pH = 4 + r - 0.25r^2
	samples := []ReferenceSample{}
	for _, r := range []float64{0.5, 1, 1.5, 2, 3} {
		samples = append(samples, ReferenceSample{Ratio: r, PH: 4 + r - 0.25*r*r})
	}

	m, err := FitReferenceSamples(samples, 2)
	require.NoError(t, err)
	assert.Equal(t, ModeFitted, m.Mode())

	c := m.Coefficients()
	require.Len(t, c, 3)
	assert.InDelta(t, 4.0, c[0], 1e-9)
	assert.InDelta(t, 1.0, c[1], 1e-9)
	assert.InDelta(t, -0.25, c[2], 1e-9)
}

func TestFitReferenceSamples_Linear(t *testing.T) {
	m, err := FitReferenceSamples([]ReferenceSample{{Ratio: 1, PH: 5}, {Ratio: 3, PH: 7}}, 1)
	require.NoError(t, err)

	ph, err := m.Evaluate(2.0)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, ph, 1e-9)
}

func TestFitReferenceSamples_Degenerate(t *testing.T) {
	samples := []ReferenceSample{{Ratio: 1, PH: 5}, {Ratio: 1, PH: 6}, {Ratio: 2, PH: 7}}

	_, err := FitReferenceSamples(samples, 2)
	assert.ErrorIs(t, err, ErrDegenerateCalibration)

	_, err = FitReferenceSamples(nil, 0)
	assert.ErrorIs(t, err, ErrDegenerateCalibration)

	_, err = FitReferenceSamples(samples, -1)
	assert.ErrorIs(t, err, ErrInvalidCalibration)

	_, err = FitReferenceSamples([]ReferenceSample{{Ratio: math.NaN(), PH: 5}, {Ratio: 2, PH: 6}}, 1)
	assert.ErrorIs(t, err, ErrInvalidCalibration)
}
