package roadquality

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var errTooFewPoints = errors.New("roadquality: too few points for polynomial fit")

// polyFit fits y ≈ c0 + c1·x + c2·x² (degree capped by maxDegree and by the
// number of distinct x values) in the least-squares sense. It returns the
// coefficients lowest order first. A rank-deficient or ill-conditioned
// design matrix is reported as an error.
func polyFit(x, y []float64, maxDegree int) ([]float64, error) {
	n := len(x)
	if n == 0 || n != len(y) {
		return nil, errTooFewPoints
	}

	degree := maxDegree
	if d := distinctCount(x) - 1; d < degree {
		degree = d
	}
	if degree < 0 || n < degree+1 {
		return nil, errTooFewPoints
	}

	cols := degree + 1
	a := mat.NewDense(n, cols, nil)
	for i, xi := range x {
		p := 1.0
		for j := 0; j < cols; j++ {
			a.Set(i, j, p)
			p *= xi
		}
	}
	b := mat.NewVecDense(n, append([]float64(nil), y...))

	var c mat.VecDense
	if err := c.SolveVec(a, b); err != nil {
		return nil, err
	}

	coeffs := make([]float64, cols)
	for j := range coeffs {
		coeffs[j] = c.AtVec(j)
		if !finite(coeffs[j]) {
			return nil, errors.New("roadquality: non-finite polynomial coefficient")
		}
	}
	return coeffs, nil
}

// polyVal evaluates coefficients (lowest order first) at x.
func polyVal(coeffs []float64, x float64) float64 {
	v := 0.0
	for j := len(coeffs) - 1; j >= 0; j-- {
		v = v*x + coeffs[j]
	}
	return v
}

func distinctCount(x []float64) int {
	seen := make(map[float64]struct{}, len(x))
	for _, v := range x {
		seen[v] = struct{}{}
	}
	return len(seen)
}
