package glmnet

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Fit estimates the penalized model along a decreasing grid of
// penalty strengths, warm starting each fit from the previous
// solution, and returns the regularization path.
func (m *Model) Fit() (*Path, error) {

	if !m.done {
		panic("glmnet: Fit called before Done.\n")
	}

	pw := m.newPathWork()

	b0null, nulldev := m.nullFit(pw)
	if math.IsNaN(nulldev) || math.IsInf(nulldev, 0) {
		return nil, errors.New("glmnet: the null deviance is not finite")
	}
	if nulldev == 0 {
		return nil, errors.New("glmnet: the response has no variation, the null deviance is zero")
	}

	autoGrid := len(m.userLambda) == 0

	var lambdas []float64
	if autoGrid {
		var err error
		lambdas, err = m.lambdaGrid(pw)
		if err != nil {
			return nil, err
		}
	} else {
		lambdas = make([]float64, len(m.userLambda))
		copy(lambdas, m.userLambda)
		sort.Sort(sort.Reverse(sort.Float64Slice(lambdas)))
	}

	path := &Path{
		model:   m,
		NullDev: nulldev,
	}

	// Warm starts: coefficients on the internal scale, carried
	// across penalty strengths.
	beta := make([]float64, m.nvar)
	b0 := b0null

	for k, lam := range lambdas {

		var dev float64
		if m.useGaussianPath() {
			dev = m.fitLambdaGaussian(lam, beta, &b0, pw)
		} else {
			var st *irlsState
			dev, st = m.fitLambda(lam, beta, &b0, pw)
			path.Warnings = append(path.Warnings, st.messages...)
		}

		path.append(lam, beta, b0, dev)

		if !autoGrid {
			continue
		}

		// Early path exits, only on an automatic grid.
		r := path.DevRatio[k]
		if r > m.ctl.DevMax {
			break
		}
		if k > 0 && r-path.DevRatio[k-1] < m.ctl.FDev*r {
			break
		}
	}

	return path, nil
}

// lambdaGrid builds a log-linear decreasing grid of penalty
// strengths.  The pathWork value must hold the null fit.
func (m *Model) lambdaGrid(pw *pathWork) ([]float64, error) {

	lmax := m.lambdaMax(pw)
	if lmax <= 0 || math.IsInf(lmax, 0) || math.IsNaN(lmax) {
		return nil, errors.New("glmnet: cannot determine an automatic penalty grid, the null model score is degenerate; provide a grid with Lambda")
	}

	ratio := m.ctl.LambdaMinRatio
	if ratio == 0 {
		if m.nobs < m.nvar {
			ratio = 1e-2
		} else {
			ratio = 1e-4
		}
	}

	nl := m.ctl.NLambda
	if nl < 1 {
		nl = 1
	}

	lambdas := make([]float64, nl)
	if nl == 1 {
		lambdas[0] = lmax
		return lambdas, nil
	}

	llmax := math.Log(lmax)
	llmin := math.Log(lmax * ratio)
	for k := 0; k < nl; k++ {
		f := float64(k) / float64(nl-1)
		lambdas[k] = math.Exp(llmax + f*(llmin-llmax))
	}

	return lambdas, nil
}
