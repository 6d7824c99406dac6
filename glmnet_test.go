package glmnet

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/HoujieWang/glmnet/glm"
)

// Simulated test data.  The generators are deterministic.

func genGaussian(n int) ([][]float64, []float64) {

	rnd := rand.New(rand.NewSource(42))

	p := 5
	coef := []float64{2, -1, 0, 0, 0.5}

	x := make([][]float64, p)
	for j := range x {
		x[j] = make([]float64, n)
		for i := range x[j] {
			x[j][i] = rnd.NormFloat64()
		}
	}

	y := make([]float64, n)
	for i := range y {
		y[i] = 1 + 0.5*rnd.NormFloat64()
		for j, c := range coef {
			y[i] += c * x[j][i]
		}
	}

	return x, y
}

// poissonDraw is a deterministic Poisson variate generator for small
// means.
func poissonDraw(rnd *rand.Rand, mn float64) float64 {
	l := math.Exp(-mn)
	var k float64
	p := 1.0
	for {
		p *= rnd.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

func genPoisson(n int) ([][]float64, []float64) {

	rnd := rand.New(rand.NewSource(43))

	p := 3
	coef := []float64{0.4, -0.3, 0}

	x := make([][]float64, p)
	for j := range x {
		x[j] = make([]float64, n)
		for i := range x[j] {
			x[j][i] = rnd.NormFloat64()
		}
	}

	y := make([]float64, n)
	for i := range y {
		eta := 0.3
		for j, c := range coef {
			eta += c * x[j][i]
		}
		y[i] = poissonDraw(rnd, math.Exp(eta))
	}

	return x, y
}

func genBinomial(n int) ([][]float64, []float64) {

	rnd := rand.New(rand.NewSource(44))

	p := 4
	coef := []float64{1, -1, 0.5, 0}

	x := make([][]float64, p)
	for j := range x {
		x[j] = make([]float64, n)
		for i := range x[j] {
			x[j][i] = rnd.NormFloat64()
		}
	}

	y := make([]float64, n)
	for i := range y {
		eta := -0.2
		for j, c := range coef {
			eta += c * x[j][i]
		}
		pr := 1 / (1 + math.Exp(-eta))
		if rnd.Float64() < pr {
			y[i] = 1
		}
	}

	return x, y
}

func TestPathShape(t *testing.T) {

	x, y := genGaussian(200)
	m := New(x, y).Family(glm.NewFamily(glm.GaussianFamily)).Done()

	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	if len(path.Lambda) == 0 {
		t.Fatal("empty path")
	}
	if len(path.A0) != len(path.Lambda) || len(path.Coefs) != len(path.Lambda) ||
		len(path.Df) != len(path.Lambda) || len(path.DevRatio) != len(path.Lambda) {
		t.Fatal("path components have inconsistent lengths")
	}

	// The grid is strictly decreasing.
	for k := 1; k < len(path.Lambda); k++ {
		if path.Lambda[k] >= path.Lambda[k-1] {
			fmt.Printf("penalty grid is not decreasing at position %d\n", k)
			t.Fail()
		}
	}

	// At the largest penalty strength all coefficients are zero.
	if path.Df[0] != 0 {
		fmt.Printf("expected no active coefficients at the largest penalty, got %d\n", path.Df[0])
		t.Fail()
	}
	for _, c := range path.Coefs[0] {
		if c != 0 {
			fmt.Printf("nonzero coefficient at the largest penalty\n")
			t.Fail()
		}
	}

	// The explained deviance is nondecreasing as the penalty relaxes.
	for k := 1; k < len(path.DevRatio); k++ {
		if path.DevRatio[k] < path.DevRatio[k-1]-1e-6 {
			fmt.Printf("explained deviance decreased at position %d\n", k)
			t.Fail()
		}
	}
	if path.DevRatio[len(path.DevRatio)-1] < 0.5 {
		fmt.Printf("the path explains too little deviance: %v\n", path.DevRatio[len(path.DevRatio)-1])
		t.Fail()
	}
}

// A penalty strength above the top of the automatic grid should give
// an all-zero solution.
func TestAllZero(t *testing.T) {

	x, y := genPoisson(150)
	fam := glm.NewFamily(glm.PoissonFamily)

	m1 := New(x, y).Family(fam).Done()
	path1, err := m1.Fit()
	if err != nil {
		t.Fatal(err)
	}

	m2 := New(x, y).Family(fam).Lambda([]float64{2 * path1.Lambda[0]}).Done()
	path2, err := m2.Fit()
	if err != nil {
		t.Fatal(err)
	}

	if path2.Df[0] != 0 {
		fmt.Printf("expected an all-zero solution, got %d active coefficients\n", path2.Df[0])
		t.Fail()
	}
}

// internalCoefs recovers the coefficients on the centered/scaled
// covariate scale from a path position.
func internalCoefs(m *Model, path *Path, k int) ([]float64, float64) {
	beta := make([]float64, m.nvar)
	b0 := path.A0[k]
	for j, c := range path.Coefs[k] {
		beta[j] = c * m.xs[j]
		b0 += c * m.xm[j]
	}
	return beta, b0
}

// The fitted lasso solutions should satisfy the subgradient
// stationarity conditions of the penalized least squares problem.
func TestGaussianKKT(t *testing.T) {

	x, y := genGaussian(200)
	m := New(x, y).Family(glm.NewFamily(glm.GaussianFamily)).Done()

	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	for _, k := range []int{5, 20, 50, len(path.Lambda) - 1} {

		if k >= len(path.Lambda) {
			continue
		}

		lam := path.Lambda[k]
		beta, b0 := internalCoefs(m, path, k)

		r := make([]float64, m.nobs)
		for i := range r {
			r[i] = y[i] - b0
		}
		for j, b := range beta {
			if b != 0 {
				for i, v := range m.xv[j] {
					r[i] -= b * v
				}
			}
		}

		tol := 1e-4 + 1e-3*lam
		for j := range beta {
			var g float64
			for i, v := range m.xv[j] {
				g += m.w[i] * v * r[i]
			}
			if beta[j] != 0 {
				if math.Abs(g-lam*sign(beta[j])) > tol {
					fmt.Printf("stationarity violated for active coefficient %d at position %d: %v\n", j, k, g)
					t.Fail()
				}
			} else if math.Abs(g) > lam+tol {
				fmt.Printf("stationarity violated for zero coefficient %d at position %d: %v\n", j, k, g)
				t.Fail()
			}
		}
	}
}

func sign(x float64) float64 {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}

// The penalized score of the binomial deviance should satisfy the
// lasso stationarity conditions along the path.
func TestBinomialKKT(t *testing.T) {

	x, y := genBinomial(300)
	m := New(x, y).Family(glm.NewFamily(glm.BinomialFamily)).Done()

	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	eta := make([]float64, m.nobs)
	mu := make([]float64, m.nobs)

	for _, k := range []int{10, 40, len(path.Lambda) - 1} {

		if k >= len(path.Lambda) {
			continue
		}

		lam := path.Lambda[k]
		beta, b0 := internalCoefs(m, path, k)

		m.linpred(beta, b0, eta)
		m.link.InvLink(eta, mu)

		// With the canonical link the score reduces to the
		// weighted covariate-residual products.
		tol := 1e-3
		for j := range beta {
			var g float64
			for i, v := range m.xv[j] {
				g += m.w[i] * v * (y[i] - mu[i])
			}
			if beta[j] != 0 {
				if math.Abs(g-lam*sign(beta[j])) > tol {
					fmt.Printf("stationarity violated for active coefficient %d at position %d: %v\n", j, k, g)
					t.Fail()
				}
			} else if math.Abs(g) > lam+tol {
				fmt.Printf("stationarity violated for zero coefficient %d at position %d: %v\n", j, k, g)
				t.Fail()
			}
		}
	}
}

// The closed-form gaussian path and the generic IRLS path should
// agree on the same grid.
func TestGaussianFastPathAgreement(t *testing.T) {

	x, y := genGaussian(150)
	fam := glm.NewFamily(glm.GaussianFamily)

	m1 := New(x, y).Family(fam).Done()
	path1, err := m1.Fit()
	if err != nil {
		t.Fatal(err)
	}

	m2 := New(x, y).Family(fam).FitMethod("irls").Lambda(path1.Lambda).Done()
	path2, err := m2.Fit()
	if err != nil {
		t.Fatal(err)
	}

	if len(path2.Lambda) != len(path1.Lambda) {
		t.Fatalf("path lengths differ: %d != %d", len(path2.Lambda), len(path1.Lambda))
	}

	for k := range path1.Lambda {
		if !scalarClose(path1.A0[k], path2.A0[k], 1e-5) {
			fmt.Printf("intercepts differ at position %d: %v != %v\n", k, path1.A0[k], path2.A0[k])
			t.Fail()
		}
		if !floats.EqualApprox(path1.Coefs[k], path2.Coefs[k], 1e-5) {
			fmt.Printf("coefficients differ at position %d\n", k)
			fmt.Printf("Fast: %v\n", path1.Coefs[k])
			fmt.Printf("IRLS: %v\n", path2.Coefs[k])
			t.Fail()
		}
	}
}

func scalarClose(x, y, eps float64) bool {
	return math.Abs(x-y) <= eps
}

// With no penalty, the path solution should match the unpenalized
// maximum likelihood fit.
func TestZeroPenaltyMatchesGLM(t *testing.T) {

	x, y := genPoisson(150)
	fam := glm.NewFamily(glm.PoissonFamily)

	m := New(x, y).Family(fam).Lambda([]float64{1, 0.3, 0.1, 0.03, 0.01, 0}).Done()
	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}
	last := len(path.Lambda) - 1
	if path.Lambda[last] != 0 {
		t.Fatal("zero penalty missing from the path")
	}

	// The reference fit carries an explicit intercept column.
	n := len(y)
	icept := make([]float64, n)
	one(icept)
	xg := append([][]float64{icept}, x...)

	rslt, err := glm.NewGLM(xg, y).Family(fam).Done().Fit()
	if err != nil {
		t.Fatal(err)
	}

	params := rslt.Params()
	if !scalarClose(path.A0[last], params[0], 1e-4) {
		fmt.Printf("intercepts differ: %v != %v\n", path.A0[last], params[0])
		t.Fail()
	}
	if !floats.EqualApprox(path.Coefs[last], params[1:], 1e-4) {
		fmt.Printf("Expected: %v\n", params[1:])
		fmt.Printf("Found:    %v\n", path.Coefs[last])
		t.Fail()
	}
}

// Starting the penalized IRLS far below the solution makes the first
// full step overshoot.  Step halving should recover, converge, and
// leave a warning.
func TestStepHalvingRescue(t *testing.T) {

	y := []float64{0, 1, 3, 2, 1, 1, 0}
	x := [][]float64{{1, 1, 1, 1, 1, 1, 1}}

	m := New(x, y).Family(glm.NewFamily(glm.PoissonFamily)).
		Standardize(false).Intercept(false).Done()

	pw := m.newPathWork()
	beta := []float64{-3}
	var b0 float64

	_, state := m.fitLambda(0, beta, &b0, pw)

	if !state.halved {
		fmt.Printf("expected the step to be halved\n")
		t.Fail()
	}
	if !state.converged {
		fmt.Printf("the fit did not converge\n")
		t.Fail()
	}

	found := false
	for _, msg := range state.messages {
		if strings.Contains(msg, "halving") {
			found = true
		}
	}
	if !found {
		fmt.Printf("no step halving message recorded\n")
		t.Fail()
	}

	// The unpenalized solution is the log of the mean response.
	if !scalarClose(beta[0], math.Log(8.0/7), 1e-6) {
		fmt.Printf("Expected: %v\n", math.Log(8.0/7))
		fmt.Printf("Found:    %v\n", beta[0])
		t.Fail()
	}
}

// An unpenalized covariate stays active along the whole path.
func TestPenaltyFactor(t *testing.T) {

	x, y := genGaussian(200)
	pf := []float64{0, 1, 1, 1, 1}

	m := New(x, y).Family(glm.NewFamily(glm.GaussianFamily)).PenaltyFactor(pf).Done()
	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	for k := range path.Lambda {
		if path.Coefs[k][0] == 0 {
			fmt.Printf("the unpenalized covariate is zero at position %d\n", k)
			t.Fail()
		}
	}
}

func TestCoefInterpolation(t *testing.T) {

	x, y := genGaussian(150)
	m := New(x, y).Family(glm.NewFamily(glm.GaussianFamily)).Done()

	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	// At a grid point, the stored solution is returned.
	k := 10
	a0, coef := path.Coef(path.Lambda[k])
	if a0 != path.A0[k] || !floats.Equal(coef, path.Coefs[k]) {
		fmt.Printf("interpolation at a grid point does not return the stored solution\n")
		t.Fail()
	}

	// Between grid points, each coefficient lies between its
	// neighboring values.
	lam := math.Sqrt(path.Lambda[k] * path.Lambda[k+1])
	_, coef = path.Coef(lam)
	for j := range coef {
		lo := math.Min(path.Coefs[k][j], path.Coefs[k+1][j])
		hi := math.Max(path.Coefs[k][j], path.Coefs[k+1][j])
		if coef[j] < lo-1e-12 || coef[j] > hi+1e-12 {
			fmt.Printf("interpolated coefficient %d outside its bracket\n", j)
			t.Fail()
		}
	}

	// Outside the grid, the endpoint solutions are returned.
	a0, _ = path.Coef(2 * path.Lambda[0])
	if a0 != path.A0[0] {
		fmt.Printf("clamping above the grid failed\n")
		t.Fail()
	}
	last := len(path.Lambda) - 1
	a0, _ = path.Coef(path.Lambda[last] / 2)
	if a0 != path.A0[last] {
		fmt.Printf("clamping below the grid failed\n")
		t.Fail()
	}
}

func TestPredict(t *testing.T) {

	x, y := genGaussian(150)
	m := New(x, y).Family(glm.NewFamily(glm.GaussianFamily)).Done()

	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	k := len(path.Lambda) - 1
	lam := path.Lambda[k]
	eta := path.Predict(x, lam)
	mu := path.PredictMean(x, lam)

	// The identity link leaves the linear predictor unchanged.
	if !floats.EqualApprox(eta, mu, 1e-12) {
		fmt.Printf("identity link prediction mismatch\n")
		t.Fail()
	}

	// Check one prediction directly.
	a0, coef := path.Coef(lam)
	var v float64 = a0
	for j := range coef {
		v += coef[j] * x[j][0]
	}
	if !scalarClose(eta[0], v, 1e-10) {
		fmt.Printf("prediction mismatch: %v != %v\n", eta[0], v)
		t.Fail()
	}
}

func TestPathSummary(t *testing.T) {

	x, y := genGaussian(150)
	m := New(x, y).Family(glm.NewFamily(glm.GaussianFamily)).Done()

	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	s := path.Summary().String()
	for _, k := range []string{"Lambda", "Df", "%Dev", "Family"} {
		if !strings.Contains(s, k) {
			fmt.Printf("path summary is missing %q\n", k)
			t.Fail()
		}
	}
}

// An offset shifts the linear predictor but is excluded from
// prediction.
func TestOffsetPath(t *testing.T) {

	x, y := genPoisson(150)
	off := make([]float64, len(y))
	for i := range off {
		off[i] = 0.1 * x[0][i]
	}
	fam := glm.NewFamily(glm.PoissonFamily)

	m := New(x, y).Family(fam).Offset(off).Lambda([]float64{1, 0.1, 0.01, 0}).Done()
	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	// Compare the unpenalized solution to a reference fit with the
	// same offset.
	n := len(y)
	icept := make([]float64, n)
	one(icept)
	xg := append([][]float64{icept}, x...)

	rslt, err := glm.NewGLM(xg, y).Family(fam).Offset(off).Done().Fit()
	if err != nil {
		t.Fatal(err)
	}

	last := len(path.Lambda) - 1
	params := rslt.Params()
	if !scalarClose(path.A0[last], params[0], 1e-4) {
		fmt.Printf("intercepts differ: %v != %v\n", path.A0[last], params[0])
		t.Fail()
	}
	if !floats.EqualApprox(path.Coefs[last], params[1:], 1e-4) {
		fmt.Printf("Expected: %v\n", params[1:])
		fmt.Printf("Found:    %v\n", path.Coefs[last])
		t.Fail()
	}
}

// Interpolating a penalty strength between zero and the smallest
// positive grid point must stay finite when the grid ends at zero.
func TestCoefInterpolationZeroPenalty(t *testing.T) {

	x, y := genPoisson(150)
	grid := []float64{1, 0.3, 0.1, 0.03, 0.01, 0}

	m := New(x, y).Family(glm.NewFamily(glm.PoissonFamily)).Lambda(grid).Done()
	path, err := m.Fit()
	if err != nil {
		t.Fatal(err)
	}

	a0, coef := path.Coef(0.005)
	if math.IsNaN(a0) || math.IsInf(a0, 0) || !allFinite(coef) {
		t.Fatalf("non-finite interpolated solution: a0=%v coef=%v", a0, coef)
	}

	// The interpolated solution lies between the bracketing grid
	// solutions.
	last := len(path.Lambda) - 1
	for j := range coef {
		lo := math.Min(path.Coefs[last-1][j], path.Coefs[last][j])
		hi := math.Max(path.Coefs[last-1][j], path.Coefs[last][j])
		if coef[j] < lo-1e-12 || coef[j] > hi+1e-12 {
			fmt.Printf("interpolated coefficient %d outside its bracket\n", j)
			t.Fail()
		}
	}

	mu := path.PredictMean(x, 0.005)
	if !allFinite(mu) {
		t.Fatalf("non-finite predictions at an interpolated penalty strength")
	}
}

// Tightening the convergence thresholds of the zero-penalty path fit
// and the unpenalized reference fit together should drive their
// coefficients together.
func TestZeroPenaltyConvergence(t *testing.T) {

	defer ResetControl()

	x, y := genPoisson(150)
	fam := glm.NewFamily(glm.PoissonFamily)
	grid := []float64{1, 0.3, 0.1, 0.03, 0.01, 0}

	n := len(y)
	icept := make([]float64, n)
	one(icept)
	xg := append([][]float64{icept}, x...)

	gap := func(eps, cdtol float64) float64 {

		c := DefaultControl()
		c.Epsilon = eps
		c.CDTol = cdtol
		SetControl(c)

		m := New(x, y).Family(fam).Lambda(grid).Done()
		path, err := m.Fit()
		if err != nil {
			t.Fatal(err)
		}
		last := len(path.Lambda) - 1

		rslt, err := glm.NewGLM(xg, y).Family(fam).ConvergeTol(eps).Done().Fit()
		if err != nil {
			t.Fatal(err)
		}
		params := rslt.Params()

		g := math.Abs(path.A0[last] - params[0])
		for j, b := range path.Coefs[last] {
			if d := math.Abs(b - params[j+1]); d > g {
				g = d
			}
		}
		return g
	}

	g1 := gap(1e-6, 1e-8)
	g2 := gap(1e-12, 1e-18)

	if g2 > 1e-6 {
		fmt.Printf("tightened fits disagree: gap=%v\n", g2)
		t.Fail()
	}
	if g2 > g1+1e-7 {
		fmt.Printf("tightening the thresholds did not tighten the agreement: %v -> %v\n", g1, g2)
		t.Fail()
	}
}

// An all-zero penalty factor vector leaves nothing to penalize and is
// rejected.
func TestAllZeroPenaltyFactor(t *testing.T) {

	x, y := genGaussian(50)

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for an all-zero penalty factor vector")
		}
	}()

	New(x, y).Family(glm.NewFamily(glm.GaussianFamily)).PenaltyFactor(make([]float64, len(x)))
}

// When the null-model score vanishes, no automatic grid exists and
// the fit reports an error instead of producing a degenerate path.
func TestDegenerateGrid(t *testing.T) {

	y := []float64{1, 2, 1, 2}
	x := [][]float64{{1, 1, -1, -1}}

	m := New(x, y).Family(glm.NewFamily(glm.GaussianFamily)).Done()

	if _, err := m.Fit(); err == nil {
		t.Fatal("expected an error for a degenerate automatic grid")
	}
}
