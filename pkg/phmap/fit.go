package phmap

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/abworrall/ratio-ph/pkg/emath"
)

// FitReferenceSamples fits a polynomial of the given degree through the
// samples by least squares. It needs at least degree+1 distinct ratios;
// with exactly that many the curve passes through every sample.
func FitReferenceSamples(samples []ReferenceSample, degree int) (CalibrationModel, error) {
	if degree < 0 {
		return CalibrationModel{}, fmt.Errorf("%w: degree %d", ErrInvalidCalibration, degree)
	}
	for i, s := range samples {
		if !emath.IsFinite(s.Ratio) || !emath.IsFinite(s.PH) {
			return CalibrationModel{}, fmt.Errorf("%w: sample %d (%g, %g) is not finite", ErrInvalidCalibration, i, s.Ratio, s.PH)
		}
	}
	if n := distinctRatios(samples); n < degree+1 {
		return CalibrationModel{}, fmt.Errorf("%w: %d distinct ratios cannot fix a degree %d polynomial", ErrDegenerateCalibration, n, degree)
	}

	// Vandermonde system: A[i][j] = ratio_i^j, b[i] = pH_i
	n := len(samples)
	A := mat.NewDense(n, degree+1, nil)
	B := mat.NewVecDense(n, nil)
	for i, s := range samples {
		p := 1.0
		for j := 0; j <= degree; j++ {
			A.Set(i, j, p)
			p *= s.Ratio
		}
		B.SetVec(i, s.PH)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, B); err != nil {
		return CalibrationModel{}, fmt.Errorf("%w: %v", ErrDegenerateCalibration, err)
	}

	coeffs := make([]float64, degree+1)
	for j := range coeffs {
		coeffs[j] = params.AtVec(j)
	}
	if err := checkCoefficients(coeffs); err != nil {
		return CalibrationModel{}, err
	}
	return newModel(ModeFitted, coeffs), nil
}

func distinctRatios(samples []ReferenceSample) int {
	r := make([]float64, len(samples))
	for i, s := range samples {
		r[i] = s.Ratio
	}
	sort.Float64s(r)

	n := 0
	for i := range r {
		if i == 0 || r[i] != r[i-1] {
			n++
		}
	}
	return n
}
