package glm

import (
	"fmt"
	"math"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

// A differentiation test problem
type difftestprob struct {
	title  string
	family *Family
	data   testdata
	params [][]float64
}

var diffTests []difftestprob = []difftestprob{
	{
		title:  "Gaussian 1",
		family: NewFamily(GaussianFamily),
		data:   data1(false),
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Gaussian 2",
		family: NewFamily(GaussianFamily),
		data:   data1(true),
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Poisson 1",
		family: NewFamily(PoissonFamily),
		data:   data1(false),
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Poisson 2",
		family: NewFamily(PoissonFamily),
		data:   data1(true),
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Poisson 3",
		family: NewFamily(PoissonFamily),
		data:   data5(true),
		params: [][]float64{{1, 0}, {0, 1}, {1, 1}, {-1, 1}},
	},
	{
		title:  "Binomial 1",
		family: NewFamily(BinomialFamily),
		data:   data2(true),
		params: [][]float64{{1, 0, 0}, {0, 1, 0}, {1, 1, 1}, {-1, 0, 1}},
	},
	{
		title:  "Gamma 1",
		family: NewFamily(GammaFamily),
		data:   data4(true),
		params: [][]float64{{1, 0, 0}, {1, 1, 1}, {1, 0, -0.1}},
	},
	{
		title:  "Inverse Gaussian 1",
		family: NewFamily(InvGaussianFamily),
		data:   data4(true),
		params: [][]float64{{1, 0, 0}, {1, 1, 1}, {1, 0, -0.1}},
	},
	{
		title:  "Negative binomial 1",
		family: NewNegBinomFamily(1.5, NewLink(LogLink)),
		data:   data4(true),
		params: [][]float64{{1, 0, 0}, {0.5, 0.1, 0.1}, {1, 0, -0.1}},
	},
	{
		title:  "Tweedie 1",
		family: NewTweedieFamily(1.5, NewLink(LogLink)),
		data:   data4(false),
		params: [][]float64{{1, 0, 0}, {0.5, 0.1, 0.1}, {1, 0, -0.1}},
	},
}

// The analytic score should agree with the numerical gradient of the
// log-likelihood.
func TestGrad(t *testing.T) {

	for _, dt := range diffTests {

		glm := buildGLM(dt.data, dt.family)

		p := glm.NumParams()
		ngrad := make([]float64, p)
		score := make([]float64, p)

		loglike := func(x []float64) float64 {
			return glm.LogLike(x, 1, false)
		}

		for _, params := range dt.params {
			fd.Gradient(ngrad, loglike, params, nil)
			glm.Score(params, score)
			if !floats.EqualApprox(score, ngrad, 1e-5) {
				fmt.Printf("%s\n", dt.title)
				fmt.Printf("Numerical:  %v\n", ngrad)
				fmt.Printf("Analytical: %v\n", score)
				t.Fail()
			}
		}
	}
}

// The negative expected Hessian should be positive definite on the
// diagonal, and the observed Hessian should agree with the numerical
// Hessian of the log-likelihood at interior points.
func TestHess(t *testing.T) {

	for _, dt := range diffTests {

		glm := buildGLM(dt.data, dt.family)

		p := glm.NumParams()
		hess := make([]float64, p*p)
		score0 := make([]float64, p)
		score1 := make([]float64, p)
		nhess := make([]float64, p*p)

		for _, params := range dt.params {

			// Differentiate the score numerically, one
			// coordinate at a time.
			const h = 1e-6
			px := make([]float64, p)
			for j := 0; j < p; j++ {
				copy(px, params)
				px[j] = params[j] + h
				glm.Score(px, score1)
				px[j] = params[j] - h
				glm.Score(px, score0)
				for k := 0; k < p; k++ {
					nhess[j*p+k] = (score1[k] - score0[k]) / (2 * h)
				}
			}

			glm.Hessian(params, ObsHess, hess)
			if !floats.EqualApprox(hess, nhess, 1e-4) {
				fmt.Printf("%s\n", dt.title)
				fmt.Printf("Numerical:  %v\n", nhess)
				fmt.Printf("Analytical: %v\n", hess)
				t.Fail()
			}

			glm.Hessian(params, ExpHess, hess)
			for j := 0; j < p; j++ {
				if hess[j*p+j] >= 0 {
					fmt.Printf("%s: expected Hessian has nonnegative diagonal\n", dt.title)
					t.Fail()
				}
			}
		}
	}
}

type linktestprob struct {
	link   *Link
	points []float64
}

var linkTests []linktestprob = []linktestprob{
	{NewLink(LogLink), []float64{0.1, 0.5, 1, 2, 5}},
	{NewLink(IdentityLink), []float64{-2, -0.5, 0.1, 1, 3}},
	{NewLink(LogitLink), []float64{0.05, 0.25, 0.5, 0.75, 0.95}},
	{NewLink(CloglogLink), []float64{0.05, 0.25, 0.5, 0.75, 0.95}},
	{NewLink(RecipLink), []float64{0.1, 0.5, 1, 2, 5}},
	{NewLink(RecipSquaredLink), []float64{0.1, 0.5, 1, 2, 5}},
	{NewPowerLink(0.5), []float64{0.1, 0.5, 1, 2, 5}},
	{NewPowerLink(-0.5), []float64{0.1, 0.5, 1, 2, 5}},
}

// The inverse link should invert the link, and the link derivatives
// should agree with numerical differentiation.
func TestLinks(t *testing.T) {

	u := make([]float64, 1)
	v := make([]float64, 1)

	for _, lt := range linkTests {

		lf := func(x float64) float64 {
			u[0] = x
			lt.link.Link(u, v)
			return v[0]
		}
		df := func(x float64) float64 {
			u[0] = x
			lt.link.Deriv(u, v)
			return v[0]
		}

		for _, mn := range lt.points {

			// Round trip through the inverse link
			u[0] = mn
			lt.link.Link(u, v)
			u[0] = v[0]
			lt.link.InvLink(u, v)
			if !scalarClose(v[0], mn, 1e-8) {
				fmt.Printf("%s: inverse link round trip failed at %v\n", lt.link.Name, mn)
				t.Fail()
			}

			nd := fd.Derivative(lf, mn, nil)
			if !scalarClose(df(mn), nd, 1e-5*(1+math.Abs(nd))) {
				fmt.Printf("%s: link derivative mismatch at %v: %v != %v\n",
					lt.link.Name, mn, df(mn), nd)
				t.Fail()
			}

			nd2 := fd.Derivative(df, mn, nil)
			u[0] = mn
			lt.link.Deriv2(u, v)
			if !scalarClose(v[0], nd2, 1e-4*(1+math.Abs(nd2))) {
				fmt.Printf("%s: second link derivative mismatch at %v: %v != %v\n",
					lt.link.Name, mn, v[0], nd2)
				t.Fail()
			}
		}
	}
}

type vartestprob struct {
	vari   *Variance
	points []float64
}

var varTests []vartestprob = []vartestprob{
	{NewVariance(ConstantVar), []float64{-1, 0.5, 2}},
	{NewVariance(IdentityVar), []float64{0.1, 0.5, 2}},
	{NewVariance(BinomialVar), []float64{0.1, 0.5, 0.9}},
	{NewVariance(SquaredVar), []float64{0.1, 0.5, 2}},
	{NewVariance(CubedVar), []float64{0.1, 0.5, 2}},
	{NewNegBinomVariance(1.5), []float64{0.1, 0.5, 2}},
	{NewTweedieVariance(1.5), []float64{0.1, 0.5, 2}},
}

// The variance function derivative should agree with numerical
// differentiation.
func TestVarFuncs(t *testing.T) {

	u := make([]float64, 1)
	v := make([]float64, 1)

	for _, vt := range varTests {

		vf := func(x float64) float64 {
			u[0] = x
			vt.vari.Var(u, v)
			return v[0]
		}

		for _, mn := range vt.points {
			nd := fd.Derivative(vf, mn, nil)
			u[0] = mn
			vt.vari.Deriv(u, v)
			if !scalarClose(v[0], nd, 1e-5*(1+math.Abs(nd))) {
				fmt.Printf("%s: variance derivative mismatch at %v: %v != %v\n",
					vt.vari.Name, mn, v[0], nd)
				t.Fail()
			}
		}
	}
}
