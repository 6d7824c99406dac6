package glmnet

import (
	"fmt"
	"math"

	"github.com/HoujieWang/glmnet/glm"
)

// Path holds the fitted regularization path: one solution per penalty
// strength, in decreasing penalty order.
type Path struct {
	model *Model

	// The penalty strengths that were fit
	Lambda []float64

	// Intercepts, one per penalty strength
	A0 []float64

	// Coefs[k] holds the coefficients at Lambda[k], on the
	// original covariate scale.
	Coefs [][]float64

	// Number of nonzero coefficients at each penalty strength
	Df []int

	// Deviance of the intercept-only model
	NullDev float64

	// Fraction of the null deviance explained at each penalty
	// strength.
	DevRatio []float64

	// Warnings accumulated during the fit, e.g. when step halving
	// was invoked.
	Warnings []string
}

// append records the solution at one penalty strength, transforming
// the internal coefficients back to the original covariate scale.
func (p *Path) append(lam float64, beta []float64, b0, dev float64) {

	m := p.model

	coef := make([]float64, m.nvar)
	a0 := b0
	df := 0
	for j, b := range beta {
		coef[j] = b / m.xs[j]
		a0 -= b * m.xm[j] / m.xs[j]
		if b != 0 {
			df++
		}
	}

	p.Lambda = append(p.Lambda, lam)
	p.A0 = append(p.A0, a0)
	p.Coefs = append(p.Coefs, coef)
	p.Df = append(p.Df, df)
	p.DevRatio = append(p.DevRatio, 1-dev/p.NullDev)
}

// Model returns the model that was fit to produce the path.
func (p *Path) Model() *Model {
	return p.model
}

// Coef returns the intercept and coefficients at the given penalty
// strength, interpolating linearly in log penalty between grid points
// and clamping outside the fitted range.
func (p *Path) Coef(lam float64) (float64, []float64) {

	k2, f := p.locate(lam)

	coef := make([]float64, len(p.Coefs[k2]))
	if f == 0 {
		copy(coef, p.Coefs[k2])
		return p.A0[k2], coef
	}

	k1 := k2 - 1
	for j := range coef {
		coef[j] = f*p.Coefs[k1][j] + (1-f)*p.Coefs[k2][j]
	}
	return f*p.A0[k1] + (1-f)*p.A0[k2], coef
}

// locate finds the grid position for a penalty strength, returning an
// index and the weight on the previous grid point.
func (p *Path) locate(lam float64) (int, float64) {

	nl := len(p.Lambda)
	if nl == 0 {
		panic("glmnet: empty path.\n")
	}

	if lam >= p.Lambda[0] {
		return 0, 0
	}
	if lam <= p.Lambda[nl-1] {
		return nl - 1, 0
	}

	for k := 1; k < nl; k++ {
		if lam >= p.Lambda[k] {
			var f float64
			if p.Lambda[k] > 0 {
				f = (math.Log(lam) - math.Log(p.Lambda[k])) /
					(math.Log(p.Lambda[k-1]) - math.Log(p.Lambda[k]))
			} else {
				// A zero penalty strength at the bottom of
				// the grid; interpolate on the raw scale.
				f = (lam - p.Lambda[k]) / (p.Lambda[k-1] - p.Lambda[k])
			}
			return k, f
		}
	}

	return nl - 1, 0
}

// Predict returns the linear predictor for the given covariates at
// the given penalty strength.  The covariates are provided in
// column-major form and must match the training covariates.  No
// offset is applied.
func (p *Path) Predict(x [][]float64, lam float64) []float64 {

	if len(x) != p.model.nvar {
		msg := fmt.Sprintf("glmnet: data has %d columns, the model has %d covariates.\n",
			len(x), p.model.nvar)
		panic(msg)
	}

	a0, coef := p.Coef(lam)

	n := len(x[0])
	eta := make([]float64, n)
	for i := range eta {
		eta[i] = a0
	}
	for j, c := range coef {
		if c != 0 {
			for i, v := range x[j] {
				eta[i] += c * v
			}
		}
	}

	return eta
}

// PredictMean returns the fitted mean response for the given
// covariates at the given penalty strength.
func (p *Path) PredictMean(x [][]float64, lam float64) []float64 {
	eta := p.Predict(x, lam)
	mn := make([]float64, len(eta))
	p.model.link.InvLink(eta, mn)
	return mn
}

// Summary returns a table describing the path: penalty strength,
// number of nonzero coefficients, and fraction of the null deviance
// explained.
func (p *Path) Summary() *glm.SummaryTable {

	m := p.model

	sum := &glm.SummaryTable{
		Title: "Elastic net regularization path",
		Msg:   p.Warnings,
	}

	sum.Top = []string{
		fmt.Sprintf("Family:   %s", m.fam.Name),
		fmt.Sprintf("Link:     %s", m.link.Name),
		fmt.Sprintf("Alpha:    %.3f", m.alpha),
		fmt.Sprintf("Num obs:  %d", m.nobs),
	}

	lamFmt := func(x interface{}, h string) []string {
		y := x.([]float64)
		var s []string
		for i := range y {
			s = append(s, fmt.Sprintf("%12.6f", y[i]))
		}
		return s
	}

	sum.ColNames = []string{"Lambda", "Df", "%Dev"}
	sum.ColFmt = []glm.Fmter{lamFmt, glm.FmtInts, glm.FmtFloats}
	sum.Cols = []interface{}{p.Lambda, p.Df, p.DevRatio}

	return sum
}
