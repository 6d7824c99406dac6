package glm

import (
	"fmt"
	"log"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pkg/errors"
)

// HessType indicates the type of a Hessian matrix for a log-likelihood.
type HessType int

// ObsHess (observed Hessian) and ExpHess (expected Hessian) are the
// two types of log-likelihood Hessian matrices.
const (
	ObsHess HessType = iota
	ExpHess
)

// Default numerical controls for the IRLS iterations.
const (
	defaultConvTol     = 1e-8
	defaultMaxIter     = 25
	defaultMaxHalvings = 10
)

// GLM describes a generalized linear model to be fit by maximum
// likelihood.  The covariates are provided in column-major form, one
// slice per covariate.
type GLM struct {

	// The covariates, one column per slice
	x [][]float64

	// The response
	y []float64

	// Case weights, optional
	wgt []float64

	// Offset added to the linear predictor, optional
	off []float64

	// Covariate names, optional
	xnames []string

	// The GLM family
	fam *Family

	// The GLM link function
	link *Link

	// The GLM variance function
	vari *Variance

	// Starting values, optional
	start    []float64
	hasStart bool

	// How the dispersion parameter is handled, and its value when fixed
	dispersionMethod DispersionForm
	dispersionValue  float64

	// Convergence threshold for the relative change in deviance
	dtol float64

	// Maximum number of IRLS iterations
	maxIter int

	// Maximum number of step halvings within one IRLS iteration
	maxHalvings int

	// Use concurrent calculations in IRLS if the number of
	// observations is at least as large as this value.
	concurrentIRLS int

	// If not nil, write progress messages here
	log *log.Logger

	done bool
}

// NewGLM creates a GLM for the given covariates and response.  The
// family must be set before calling Done.
func NewGLM(x [][]float64, y []float64) *GLM {

	if len(x) == 0 {
		panic("GLM: the model must contain at least one covariate.\n")
	}
	for j, c := range x {
		if len(c) != len(y) {
			msg := fmt.Sprintf("GLM: covariate %d has length %d, but the response has length %d.\n",
				j, len(c), len(y))
			panic(msg)
		}
	}

	return &GLM{
		x:              x,
		y:              y,
		dtol:           defaultConvTol,
		maxIter:        defaultMaxIter,
		maxHalvings:    defaultMaxHalvings,
		concurrentIRLS: 1000,
	}
}

// Names sets the names of the covariates.
func (glm *GLM) Names(names []string) *GLM {
	if len(names) != len(glm.x) {
		msg := fmt.Sprintf("GLM: %d names provided for %d covariates.\n", len(names), len(glm.x))
		panic(msg)
	}
	glm.xnames = names
	return glm
}

// Weights sets the case weights.
func (glm *GLM) Weights(wgt []float64) *GLM {
	if len(wgt) != len(glm.y) {
		panic("GLM: weights and response have different lengths.\n")
	}
	glm.wgt = wgt
	return glm
}

// Offset sets an offset that is added to the linear predictor.
func (glm *GLM) Offset(off []float64) *GLM {
	if len(off) != len(glm.y) {
		panic("GLM: offset and response have different lengths.\n")
	}
	glm.off = off
	return glm
}

// Family sets the GLM family.
func (glm *GLM) Family(fam *Family) *GLM {
	glm.fam = fam
	return glm
}

// Link sets the link function.  The family must be set first.
func (glm *GLM) Link(link *Link) *GLM {

	if glm.fam == nil {
		panic("GLM: must set family before setting link.\n")
	}
	if !glm.fam.IsValidLink(link) {
		panic("GLM: invalid link for family.\n")
	}
	glm.link = link

	if glm.fam.TypeCode == NegBinomFamily {
		// Need to reset the family when the link changes
		glm.fam = NewNegBinomFamily(glm.fam.alpha, link)
	}

	return glm
}

// VarFunc sets the GLM variance function.
func (glm *GLM) VarFunc(va *Variance) *GLM {
	glm.vari = va
	return glm
}

// Start sets starting values for the fitting algorithm.
func (glm *GLM) Start(start []float64) *GLM {
	glm.start = start
	glm.hasStart = len(start) > 0
	return glm
}

// FixedDispersion holds the dispersion parameter at the given value
// rather than estimating it from the data.
func (glm *GLM) FixedDispersion(value float64) *GLM {
	glm.dispersionMethod = DispersionFixed
	glm.dispersionValue = value
	return glm
}

// ConvergeTol sets the convergence threshold for the relative change
// in deviance between IRLS iterations.
func (glm *GLM) ConvergeTol(tol float64) *GLM {
	glm.dtol = tol
	return glm
}

// MaxIter sets the maximum number of IRLS iterations.
func (glm *GLM) MaxIter(maxiter int) *GLM {
	glm.maxIter = maxiter
	return glm
}

// ConcurrentIRLS sets the minimum number of observations for which
// concurrent calculations are used during IRLS.
func (glm *GLM) ConcurrentIRLS(n int) *GLM {
	glm.concurrentIRLS = n
	return glm
}

// Log takes a Logger value that will receive progress messages during
// the fit.
func (glm *GLM) Log(log *log.Logger) *GLM {
	glm.log = log
	return glm
}

// NumParams returns the number of covariates in the model.
func (glm *GLM) NumParams() int {
	return len(glm.x)
}

// NumObs returns the number of observations in the model.
func (glm *GLM) NumObs() int {
	return len(glm.y)
}

// Done completes definition of a GLM.  After calling Done the GLM can
// be fit by calling the Fit method.
func (glm *GLM) Done() *GLM {

	if glm.fam == nil {
		panic("GLM: the family must be defined before calling Done.\n")
	}

	if glm.link == nil {
		glm.link = glm.fam.CanonicalLink()
	}

	if glm.vari == nil {
		glm.vari = glm.fam.DefaultVariance()
	}

	if glm.xnames == nil {
		glm.xnames = make([]string, len(glm.x))
		for j := range glm.xnames {
			glm.xnames[j] = fmt.Sprintf("V%d", j+1)
		}
	}

	if glm.dispersionMethod == DispersionFixed && glm.dispersionValue == 0 {
		glm.dispersionMethod = glm.fam.dispersionDefaultMethod
		glm.dispersionValue = glm.fam.dispersionDefaultValue
	}

	if len(glm.start) == 0 {
		glm.start = make([]float64, glm.NumParams())
	} else if len(glm.start) != glm.NumParams() {
		msg := fmt.Sprintf("GLM: %d starting values provided for %d covariates.\n",
			len(glm.start), glm.NumParams())
		panic(msg)
	}

	glm.done = true

	return glm
}

// LogLike returns the log-likelihood value for the model at the given
// coefficients and scale.  If exact is false, additive factors that
// do not depend on the coefficients may be omitted.
func (glm *GLM) LogLike(coeff []float64, scale float64, exact bool) float64 {

	n := glm.NumObs()
	linpred := make([]float64, n)
	mn := make([]float64, n)

	glm.linpred(coeff, linpred)
	glm.link.InvLink(linpred, mn)

	return glm.fam.LogLike(glm.y, mn, glm.wgt, scale, exact)
}

// Deviance returns the deviance for the model at the given
// coefficients.
func (glm *GLM) Deviance(coeff []float64) float64 {

	n := glm.NumObs()
	linpred := make([]float64, n)
	mn := make([]float64, n)

	glm.linpred(coeff, linpred)
	glm.link.InvLink(linpred, mn)

	return glm.fam.Deviance(glm.y, mn, glm.wgt, 1)
}

func (glm *GLM) linpred(coeff, linpred []float64) {
	zero(linpred)
	for j, xda := range glm.x {
		floats.AddScaled(linpred, coeff[j], xda)
	}
	if glm.off != nil {
		floats.Add(linpred, glm.off)
	}
}

func scoreFactor(yda, mn, deriv, va, sfac []float64) {
	for i, y := range yda {
		sfac[i] = (y - mn[i]) / (deriv[i] * va[i])
	}
}

// Score computes the score vector for the model at the given
// coefficients, storing it into the score argument.
func (glm *GLM) Score(coeff []float64, score []float64) {

	n := glm.NumObs()
	linpred := make([]float64, n)
	mn := make([]float64, n)
	deriv := make([]float64, n)
	va := make([]float64, n)
	fac := make([]float64, n)
	facw := make([]float64, n)

	glm.linpred(coeff, linpred)
	glm.link.InvLink(linpred, mn)
	glm.link.Deriv(mn, deriv)
	glm.vari.Var(mn, va)

	scoreFactor(glm.y, mn, deriv, va, fac)

	for j, xda := range glm.x {
		if glm.wgt == nil {
			score[j] = floats.Dot(fac, xda)
		} else {
			floats.MulTo(facw, fac, glm.wgt)
			score[j] = floats.Dot(facw, xda)
		}
	}
}

// Hessian computes the Hessian matrix for the model at the given
// coefficients.  The Hessian is returned in vectorized form in the
// hess argument.  Either the observed or expected Hessian can be
// calculated.
func (glm *GLM) Hessian(coeff []float64, ht HessType, hess []float64) {

	n := glm.NumObs()
	nvar := glm.NumParams()

	linpred := make([]float64, n)
	mn := make([]float64, n)
	lderiv := make([]float64, n)
	va := make([]float64, n)
	fac := make([]float64, n)
	sfac := make([]float64, n)

	glm.linpred(coeff, linpred)
	glm.link.InvLink(linpred, mn)
	glm.link.Deriv(mn, lderiv)
	glm.vari.Var(mn, va)

	// Factor for the expected Hessian
	for i := 0; i < n; i++ {
		fac[i] = 1 / (lderiv[i] * lderiv[i] * va[i])
	}

	// Adjust the factor for the observed Hessian
	if ht == ObsHess {
		vad := make([]float64, n)
		lderiv2 := make([]float64, n)
		glm.link.Deriv2(mn, lderiv2)
		glm.vari.Deriv(mn, vad)
		scoreFactor(glm.y, mn, lderiv, va, sfac)

		// The case weights are applied in hessXprod and must
		// not enter the adjustment factor.
		for i := range fac {
			h := va[i]*lderiv2[i] + lderiv[i]*vad[i]
			fac[i] *= 1 + h*sfac[i]
		}
	}

	zero(hess)
	glm.hessXprod(fac, hess)

	// Fill in the upper triangle
	for j1 := 0; j1 < nvar; j1++ {
		for j2 := 0; j2 < j1; j2++ {
			hess[j2*nvar+j1] = hess[j1*nvar+j2]
		}
	}
}

func (glm *GLM) hessXprod(fac, hess []float64) {

	nvar := glm.NumParams()
	wgts := glm.wgt

	var wg sync.WaitGroup

	for j1 := 0; j1 < nvar; j1++ {
		for j2 := 0; j2 <= j1; j2++ {

			wg.Add(1)
			go func(j1, j2 int) {
				x1 := glm.x[j1]
				x2 := glm.x[j2]
				if wgts == nil {
					for i := range x1 {
						hess[j1*nvar+j2] -= fac[i] * x1[i] * x2[i]
					}
				} else {
					for i := range x1 {
						hess[j1*nvar+j2] -= wgts[i] * fac[i] * x1[i] * x2[i]
					}
				}
				wg.Done()
			}(j1, j2)
		}
	}

	wg.Wait()
}

// Fit estimates the parameters of the GLM using iteratively
// reweighted least squares and returns a results object.
func (glm *GLM) Fit() (*Results, error) {

	if !glm.done {
		panic("GLM: Fit called before Done.\n")
	}

	params, fstate, err := glm.fitIRLS(glm.start)
	if err != nil {
		return nil, err
	}

	scale := glm.EstimateScale(params)

	vcov, err := glm.getVcov(params)
	if err == nil {
		floats.Scale(scale, vcov)
	} else {
		// Leave the vcov empty, the point estimate is still usable.
		vcov = nil
		fstate.messages = append(fstate.messages, "Unable to invert the information matrix, no standard errors available.")
	}

	ll := glm.LogLike(params, scale, true)

	results := &Results{
		model:     glm,
		params:    params,
		xnames:    glm.xnames,
		loglike:   ll,
		scale:     scale,
		vcov:      vcov,
		converged: fstate.converged,
		halved:    fstate.halved,
		messages:  fstate.messages,
	}

	return results, nil
}

func (glm *GLM) getVcov(params []float64) ([]float64, error) {

	nvar := glm.NumParams()
	hess := make([]float64, nvar*nvar)
	glm.Hessian(params, ExpHess, hess)

	hmat := mat.NewDense(nvar, nvar, hess)
	hessi := make([]float64, nvar*nvar)
	himat := mat.NewDense(nvar, nvar, hessi)
	if err := himat.Inverse(hmat); err != nil {
		return nil, errors.Wrap(err, "glm: can't invert Hessian")
	}
	himat.Scale(-1, himat)

	return hessi, nil
}

// EstimateScale returns an estimate of the dispersion parameter at
// the given coefficient values, using the Pearson statistic.
func (glm *GLM) EstimateScale(params []float64) float64 {

	if glm.dispersionMethod == DispersionFixed {
		return glm.dispersionValue
	}

	n := glm.NumObs()
	nvar := glm.NumParams()

	linpred := make([]float64, n)
	mn := make([]float64, n)
	va := make([]float64, n)

	glm.linpred(params, linpred)
	glm.link.InvLink(linpred, mn)
	glm.vari.Var(mn, va)

	var scale, ws float64
	for i, y := range glm.y {
		r := y - mn[i]
		if glm.wgt == nil {
			scale += r * r / va[i]
			ws += 1
		} else {
			scale += glm.wgt[i] * r * r / va[i]
			ws += glm.wgt[i]
		}
	}

	scale /= ws - float64(nvar)

	return scale
}

// resize returns a float64 slice of length n, using the initial
// subslice of x if it is big enough.
func resize(x []float64, n int) []float64 {
	if cap(x) >= n {
		return x[0:n]
	}
	return make([]float64, n)
}

// zero sets all elements of the slice to 0
func zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}

// one sets all elements of the slice to 1
func one(x []float64) {
	for i := range x {
		x[i] = 1
	}
}

// Results contains the results of fitting a GLM to data.
type Results struct {
	model     *GLM
	params    []float64
	xnames    []string
	loglike   float64
	scale     float64
	vcov      []float64
	stderr    []float64
	zscores   []float64
	pvalues   []float64
	converged bool
	halved    bool
	messages  []string
}

// Model returns the model that was fit to produce the results.
func (rslt *Results) Model() *GLM {
	return rslt.model
}

// Params returns the point estimates of the model coefficients.
func (rslt *Results) Params() []float64 {
	return rslt.params
}

// Names returns the names of the covariates in the model.
func (rslt *Results) Names() []string {
	return rslt.xnames
}

// LogLike returns the log-likelihood at the fitted coefficients.
func (rslt *Results) LogLike() float64 {
	return rslt.loglike
}

// Scale returns the estimated dispersion parameter.
func (rslt *Results) Scale() float64 {
	return rslt.scale
}

// Converged reports whether the IRLS iterations reached the
// convergence threshold before hitting the iteration limit.
func (rslt *Results) Converged() bool {
	return rslt.converged
}

// StepHalved reports whether any full IRLS step was rejected and
// halved during the fit.
func (rslt *Results) StepHalved() bool {
	return rslt.halved
}

// Messages returns warnings accumulated during the fit.
func (rslt *Results) Messages() []string {
	return rslt.messages
}

// VCov returns the sampling variance/covariance matrix of the
// coefficient estimates, in vectorized form.
func (rslt *Results) VCov() []float64 {
	return rslt.vcov
}

// FittedValues returns the fitted mean values for the data used to
// fit the model.
func (rslt *Results) FittedValues() []float64 {

	n := rslt.model.NumObs()
	linpred := make([]float64, n)
	mn := make([]float64, n)

	rslt.model.linpred(rslt.params, linpred)
	rslt.model.link.InvLink(linpred, mn)

	return mn
}

// StdErr returns the standard errors of the coefficient estimates.
func (rslt *Results) StdErr() []float64 {

	// No vcov, no standard error
	if rslt.vcov == nil {
		return nil
	}

	p := rslt.model.NumParams()
	if rslt.stderr == nil {
		rslt.stderr = make([]float64, p)
	} else {
		return rslt.stderr
	}

	for i := range rslt.stderr {
		rslt.stderr[i] = math.Sqrt(rslt.vcov[i*p+i])
	}

	return rslt.stderr
}

// ZScores returns the Z-scores (the coefficient estimates divided by
// the standard errors).
func (rslt *Results) ZScores() []float64 {

	// No vcov, no z-scores
	if rslt.vcov == nil {
		return nil
	}

	p := rslt.model.NumParams()
	if rslt.zscores == nil {
		rslt.zscores = make([]float64, p)
	} else {
		return rslt.zscores
	}

	std := rslt.StdErr()
	for i := range std {
		rslt.zscores[i] = rslt.params[i] / std[i]
	}

	return rslt.zscores
}

// PValues returns the p-values for the null hypothesis that each
// coefficient's population value is equal to zero.
func (rslt *Results) PValues() []float64 {

	// No vcov, no p-values
	if rslt.vcov == nil {
		return nil
	}

	p := rslt.model.NumParams()
	if rslt.pvalues == nil {
		rslt.pvalues = make([]float64, p)
	} else {
		return rslt.pvalues
	}

	norm := distuv.Normal{Mu: 0, Sigma: 1}
	for i, z := range rslt.ZScores() {
		rslt.pvalues[i] = 2 * norm.CDF(-math.Abs(z))
	}

	return rslt.pvalues
}
