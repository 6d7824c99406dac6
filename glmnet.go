package glmnet

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/HoujieWang/glmnet/glm"
)

// Model describes an elastic-net penalized generalized linear model
// to be fit along a grid of decreasing penalty strengths.  The
// covariates are provided in column-major form, one slice per
// covariate.
type Model struct {

	// The covariates, one column per slice
	x [][]float64

	// The response
	y []float64

	// Covariate names, optional
	xnames []string

	// Case weights, optional
	wgt []float64

	// Offset added to the linear predictor, optional
	off []float64

	// The GLM family
	fam *glm.Family

	// The GLM link function
	link *glm.Link

	// The GLM variance function
	vari *glm.Variance

	// Elastic net mixing parameter, 1 = lasso, 0 = ridge
	alpha float64

	// User-provided penalty grid, optional
	userLambda []float64

	// Per-covariate penalty factors
	pf []float64

	// Scale the covariates to unit weighted variance internally
	standardize bool

	// Include an unpenalized intercept
	intercept bool

	// Fitting method: auto, irls, or gaussian
	fitMethod string

	// If not nil, write progress messages here
	log *log.Logger

	// Numerical controls, captured from the process-wide settings
	// when Done is called.
	ctl Control

	// Derived quantities, set in Done
	nobs int
	nvar int

	// Normalized case weights summing to 1
	w []float64

	// Covariate centers and scales
	xm []float64
	xs []float64

	// Centered/scaled covariates
	xv [][]float64

	done bool
}

// New creates a model for the given covariates and response.  The
// family must be set before calling Done.
func New(x [][]float64, y []float64) *Model {

	if len(x) == 0 {
		panic("glmnet: the model must contain at least one covariate.\n")
	}
	for j, c := range x {
		if len(c) != len(y) {
			msg := fmt.Sprintf("glmnet: covariate %d has length %d, but the response has length %d.\n",
				j, len(c), len(y))
			panic(msg)
		}
	}

	return &Model{
		x:           x,
		y:           y,
		alpha:       1,
		standardize: true,
		intercept:   true,
		fitMethod:   "auto",
		nobs:        len(y),
		nvar:        len(x),
	}
}

// Names sets the names of the covariates.
func (m *Model) Names(names []string) *Model {
	if len(names) != m.nvar {
		msg := fmt.Sprintf("glmnet: %d names provided for %d covariates.\n", len(names), m.nvar)
		panic(msg)
	}
	m.xnames = names
	return m
}

// Weights sets the case weights.  The weights are normalized
// internally to sum to one.
func (m *Model) Weights(wgt []float64) *Model {
	if len(wgt) != m.nobs {
		panic("glmnet: weights and response have different lengths.\n")
	}
	m.wgt = wgt
	return m
}

// Offset sets an offset that is added to the linear predictor.
func (m *Model) Offset(off []float64) *Model {
	if len(off) != m.nobs {
		panic("glmnet: offset and response have different lengths.\n")
	}
	m.off = off
	return m
}

// Family sets the GLM family.  Either a canned family constructed
// with glm.NewFamily, or a fully custom family object, can be used.
func (m *Model) Family(fam *glm.Family) *Model {
	m.fam = fam
	return m
}

// Link sets the link function.  The family must be set first.
func (m *Model) Link(link *glm.Link) *Model {

	if m.fam == nil {
		panic("glmnet: must set family before setting link.\n")
	}
	if !m.fam.IsValidLink(link) {
		panic("glmnet: invalid link for family.\n")
	}
	m.link = link

	if m.fam.TypeCode == glm.NegBinomFamily {
		m.fam = glm.NewNegBinomFamily(m.fam.Alpha(), link)
	}

	return m
}

// VarFunc sets the GLM variance function.
func (m *Model) VarFunc(va *glm.Variance) *Model {
	m.vari = va
	return m
}

// Alpha sets the elastic net mixing parameter; 1 gives the lasso
// penalty and 0 gives the ridge penalty.
func (m *Model) Alpha(alpha float64) *Model {
	if alpha < 0 || alpha > 1 {
		msg := fmt.Sprintf("glmnet: alpha must be in [0, 1], got %v.\n", alpha)
		panic(msg)
	}
	m.alpha = alpha
	return m
}

// Lambda sets a user-provided grid of penalty strengths, which is
// used verbatim in decreasing order.  If not provided, a grid is
// generated automatically.
func (m *Model) Lambda(lambda []float64) *Model {
	for _, v := range lambda {
		if v < 0 {
			panic("glmnet: penalty strengths must be nonnegative.\n")
		}
	}
	m.userLambda = lambda
	return m
}

// PenaltyFactor sets per-covariate multipliers on the penalty.  A
// factor of zero leaves the corresponding covariate unpenalized.
func (m *Model) PenaltyFactor(pf []float64) *Model {
	if len(pf) != m.nvar {
		msg := fmt.Sprintf("glmnet: the penalty factor vector has length %d, but the model has %d covariates.\n",
			len(pf), m.nvar)
		panic(msg)
	}
	var ps float64
	for _, v := range pf {
		if v < 0 {
			panic("glmnet: penalty factors must be nonnegative.\n")
		}
		ps += v
	}
	if ps == 0 {
		panic("glmnet: at least one penalty factor must be positive.\n")
	}
	m.pf = pf
	return m
}

// Standardize determines whether the covariates are internally scaled
// to unit weighted variance before fitting.  The coefficients are
// always returned on the original scale.  The default is true.
func (m *Model) Standardize(flag bool) *Model {
	m.standardize = flag
	return m
}

// Intercept determines whether an unpenalized intercept is included
// in the model.  The default is true.
func (m *Model) Intercept(flag bool) *Model {
	m.intercept = flag
	return m
}

// FitMethod sets the fitting method: auto, irls, or gaussian.  The
// gaussian method is the closed-form weighted least squares path and
// is only valid for the gaussian family with the identity link; auto
// selects it in that case and IRLS otherwise.
func (m *Model) FitMethod(method string) *Model {
	lmethod := strings.ToLower(method)
	if lmethod != "auto" && lmethod != "irls" && lmethod != "gaussian" {
		msg := fmt.Sprintf("glmnet: fitting method %s not allowed.\n", method)
		panic(msg)
	}
	m.fitMethod = lmethod
	return m
}

// Log takes a Logger value that will receive progress messages during
// the fit.
func (m *Model) Log(log *log.Logger) *Model {
	m.log = log
	return m
}

// NumObs returns the number of observations in the model.
func (m *Model) NumObs() int {
	return m.nobs
}

// NumParams returns the number of covariates in the model.
func (m *Model) NumParams() int {
	return m.nvar
}

// Done completes definition of the model.  After calling Done the
// model can be fit by calling the Fit method.
func (m *Model) Done() *Model {

	if m.fam == nil {
		msg := "glmnet: the family must be defined before calling Done.\n"
		panic(msg)
	}

	if m.link == nil {
		m.link = m.fam.CanonicalLink()
	}

	if m.vari == nil {
		m.vari = m.fam.DefaultVariance()
	}

	if m.pf == nil {
		m.pf = make([]float64, m.nvar)
		one(m.pf)
	}

	if m.xnames == nil {
		m.xnames = make([]string, m.nvar)
		for j := range m.xnames {
			m.xnames[j] = fmt.Sprintf("V%d", j+1)
		}
	}

	if m.fitMethod == "gaussian" && !m.isGaussianIdentity() {
		panic("glmnet: the gaussian fitting method requires the gaussian family with the identity link.\n")
	}

	m.ctl = CurrentControl()

	m.normalizeWeights()
	m.doScale()

	m.done = true

	return m
}

func (m *Model) isGaussianIdentity() bool {
	return m.fam.TypeCode == glm.GaussianFamily && m.link.TypeCode == glm.IdentityLink
}

func (m *Model) useGaussianPath() bool {
	if m.fitMethod == "irls" {
		return false
	}
	return m.isGaussianIdentity()
}

// normalizeWeights stores case weights scaled to sum to one.
func (m *Model) normalizeWeights() {

	m.w = make([]float64, m.nobs)

	if m.wgt == nil {
		for i := range m.w {
			m.w[i] = 1 / float64(m.nobs)
		}
		return
	}

	var ws float64
	for _, v := range m.wgt {
		if v < 0 {
			panic("glmnet: case weights must be nonnegative.\n")
		}
		ws += v
	}
	if ws <= 0 {
		panic("glmnet: case weights sum to zero.\n")
	}
	for i, v := range m.wgt {
		m.w[i] = v / ws
	}
}

// doScale centers and scales the covariates.  Centering is applied
// when an intercept is present, scaling when standardization is
// requested.  Fitting is done on the transformed covariates and the
// coefficients are transformed back afterwards.
func (m *Model) doScale() {

	m.xm = make([]float64, m.nvar)
	m.xs = make([]float64, m.nvar)
	m.xv = make([][]float64, m.nvar)

	for j, xda := range m.x {

		var mn, va float64
		for i, x := range xda {
			mn += m.w[i] * x
		}
		for i, x := range xda {
			d := x - mn
			va += m.w[i] * d * d
		}

		if m.intercept {
			m.xm[j] = mn
		}

		m.xs[j] = 1
		if m.standardize {
			if va == 0 {
				msg := fmt.Sprintf("glmnet: variable %s has zero variance.\n", m.xnames[j])
				panic(msg)
			}
			m.xs[j] = math.Sqrt(va)
		}

		z := make([]float64, m.nobs)
		for i, x := range xda {
			z[i] = (x - m.xm[j]) / m.xs[j]
		}
		m.xv[j] = z
	}
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

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
