package glm

import (
	"fmt"
	"math"
)

// FamilyType is the type of GLM family used in a model.
type FamilyType uint8

// BinomialFamily, ... are families for a GLM.
const (
	BinomialFamily FamilyType = iota
	PoissonFamily
	QuasiPoissonFamily
	GaussianFamily
	GammaFamily
	InvGaussianFamily
	NegBinomFamily
	TweedieFamily
)

// DispersionForm indicates how the dispersion parameter of a family
// is handled when fitting.
type DispersionForm uint8

// DispersionFixed means that the dispersion is held at a fixed value,
// DispersionFree means that it is estimated from the data.
const (
	DispersionFixed DispersionForm = iota
	DispersionFree
)

// LogLikeFunc evaluates and returns the log-likelihood for a GLM.  The arguments
// are the data, the mean values, the weights, the scale parameter, and the 'exact flag'.
// If the exact flag is false, additive factors that are constant with respect to
// the mean may be omitted.  The weights may be nil in which case all weights are taken to be 1.
type LogLikeFunc func([]float64, []float64, []float64, float64, bool) float64

// DevianceFunc evaluates and returns the deviance for a GLM.  The arguments
// are the data, the mean values, the weights, and the scale parameter.  The weights
// may be nil in which case all weights are taken to be 1.
type DevianceFunc func([]float64, []float64, []float64, float64) float64

// ValidMeanFunc reports whether every element of a candidate mean
// vector lies in the valid domain of the family.
type ValidMeanFunc func([]float64) bool

// Family represents a generalized linear model family.
type Family struct {

	// The name of the family
	Name string

	// The numeric code for the family
	TypeCode FamilyType

	// The log-likelihood function for the family
	LogLike LogLikeFunc

	// The deviance function for the family
	Deviance DevianceFunc

	// ValidMean reports whether a candidate mean vector lies in
	// the valid domain of the family.  It is used to vet proposed
	// steps during iteratively reweighted least squares.
	ValidMean ValidMeanFunc

	// The default approach for handling the dispersion if not set explicitly.
	dispersionDefaultMethod DispersionForm

	// The default dispersion value for a fixed dispersion
	dispersionDefaultValue float64

	// The names of valid links for this family.  The first listed
	// link is the canonical link.
	validLinks []LinkType

	// The link in use by the family, only specified for negative
	// binomial and Tweedie.
	link *Link

	// Auxiliary parameter: negative binomial parameter or Tweedie
	// variance power parameter
	alpha float64
}

// NewFamily returns a family object corresponding to the given type
// code.  The negative binomial and Tweedie families are parameterized,
// use NewNegBinomFamily and NewTweedieFamily to construct them.
func NewFamily(fam FamilyType) *Family {

	switch fam {
	case PoissonFamily:
		return &poisson
	case QuasiPoissonFamily:
		return &quasiPoisson
	case BinomialFamily:
		return &binomial
	case GaussianFamily:
		return &gaussian
	case GammaFamily:
		return &gamma
	case InvGaussianFamily:
		return &invGaussian
	default:
		msg := fmt.Sprintf("Unknown family: %v\n", fam)
		panic(msg)
	}
}

var poisson = Family{
	Name:                    "Poisson",
	TypeCode:                PoissonFamily,
	LogLike:                 poissonLogLike,
	Deviance:                poissonDeviance,
	ValidMean:               positiveMean,
	validLinks:              []LinkType{LogLink, IdentityLink},
	dispersionDefaultMethod: DispersionFixed,
	dispersionDefaultValue:  1,
}

// QuasiPoisson is the same as Poisson, except that the scale parameter is estimated.
var quasiPoisson = Family{
	Name:                    "QuasiPoisson",
	TypeCode:                QuasiPoissonFamily,
	LogLike:                 poissonLogLike,
	Deviance:                poissonDeviance,
	ValidMean:               positiveMean,
	validLinks:              []LinkType{LogLink, IdentityLink},
	dispersionDefaultMethod: DispersionFree,
	dispersionDefaultValue:  1,
}

var binomial = Family{
	Name:                    "Binomial",
	TypeCode:                BinomialFamily,
	LogLike:                 binomialLogLike,
	Deviance:                binomialDeviance,
	ValidMean:               unitIntervalMean,
	validLinks:              []LinkType{LogitLink, LogLink, CloglogLink, IdentityLink},
	dispersionDefaultMethod: DispersionFixed,
	dispersionDefaultValue:  1,
}

var gaussian = Family{
	Name:                    "Gaussian",
	TypeCode:                GaussianFamily,
	LogLike:                 gaussianLogLike,
	Deviance:                gaussianDeviance,
	ValidMean:               finiteMean,
	validLinks:              []LinkType{IdentityLink, LogLink, RecipLink},
	dispersionDefaultMethod: DispersionFree,
	dispersionDefaultValue:  1,
}

var gamma = Family{
	Name:                    "Gamma",
	TypeCode:                GammaFamily,
	LogLike:                 gammaLogLike,
	Deviance:                gammaDeviance,
	ValidMean:               positiveMean,
	validLinks:              []LinkType{RecipLink, LogLink, IdentityLink},
	dispersionDefaultMethod: DispersionFree,
}

var invGaussian = Family{
	Name:                    "InvGaussian",
	TypeCode:                InvGaussianFamily,
	LogLike:                 invGaussLogLike,
	Deviance:                invGaussianDeviance,
	ValidMean:               positiveMean,
	validLinks:              []LinkType{RecipSquaredLink, RecipLink, LogLink, IdentityLink},
	dispersionDefaultMethod: DispersionFree,
}

// IsValidLink returns true or false based on whether the link is
// valid for the family.
func (fam *Family) IsValidLink(link *Link) bool {

	for _, q := range fam.validLinks {
		if link.TypeCode == q {
			return true
		}
	}

	return false
}

// CanonicalLink returns the canonical link for the family.
func (fam *Family) CanonicalLink() *Link {
	if fam.link != nil {
		return fam.link
	}
	return NewLink(fam.validLinks[0])
}

// DefaultVariance returns the standard variance function for the family.
func (fam *Family) DefaultVariance() *Variance {

	switch fam.TypeCode {
	case BinomialFamily:
		return NewVariance(BinomialVar)
	case PoissonFamily, QuasiPoissonFamily:
		return NewVariance(IdentityVar)
	case GaussianFamily:
		return NewVariance(ConstantVar)
	case GammaFamily:
		return NewVariance(SquaredVar)
	case InvGaussianFamily:
		return NewVariance(CubedVar)
	case NegBinomFamily:
		return NewNegBinomVariance(fam.alpha)
	case TweedieFamily:
		return NewTweedieVariance(fam.alpha)
	default:
		msg := fmt.Sprintf("Unknown GLM family: %s\n", fam.Name)
		panic(msg)
	}
}

// Alpha returns the auxiliary parameter of the family (the negative
// binomial dispersion or the Tweedie variance power).  It is zero for
// families with no auxiliary parameter.
func (fam *Family) Alpha() float64 {
	return fam.alpha
}

// StartingMean fills mn with initial mean values used to start the
// IRLS iterations.  The rule guarantees that the starting means lie
// in the valid domain of the family.
func (fam *Family) StartingMean(y, wt, mn []float64) {

	switch fam.TypeCode {
	case BinomialFamily:
		// Shrink toward 1/2, keeping the means inside (0, 1).
		for i := range y {
			w := 1.0
			if wt != nil {
				w = wt[i]
			}
			mn[i] = (w*y[i] + 0.5) / (w + 1)
		}
	default:
		var q, ws float64
		for i := range y {
			w := 1.0
			if wt != nil {
				w = wt[i]
			}
			q += w * y[i]
			ws += w
		}
		q /= ws
		for i := range mn {
			mn[i] = (y[i] + q) / 2
			if mn[i] < 0.1 {
				mn[i] = 0.1
			}
		}
	}
}

func positiveMean(mn []float64) bool {
	for _, m := range mn {
		if !(m > 0) || math.IsInf(m, 1) {
			return false
		}
	}
	return true
}

func unitIntervalMean(mn []float64) bool {
	for _, m := range mn {
		if !(m > 0 && m < 1) {
			return false
		}
	}
	return true
}

func finiteMean(mn []float64) bool {
	for _, m := range mn {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return false
		}
	}
	return true
}

func poissonLogLike(y []float64, mn []float64, wt []float64, scale float64, exact bool) float64 {

	var ll float64
	var w float64 = 1
	for i := range y {
		if wt != nil {
			w = wt[i]
		}
		ll += w * (y[i]*math.Log(mn[i]) - mn[i])
	}

	if exact {
		for i := range y {
			if wt != nil {
				w = wt[i]
			}
			g, _ := math.Lgamma(y[i] + 1)
			ll -= w * g
		}
	}

	return ll
}

func binomialLogLike(y []float64, mn []float64, wt []float64, scale float64, exact bool) float64 {
	var ll float64
	var w float64 = 1
	for i := range y {
		if wt != nil {
			w = wt[i]
		}
		r := mn[i]/(1-mn[i]) + 1e-200
		ll += w * (y[i]*math.Log(r) + math.Log(1-mn[i]))
	}
	return ll
}

func gaussianLogLike(y []float64, mn []float64, wt []float64, scale float64, exact bool) float64 {
	var ll float64
	var w float64 = 1
	var ws float64
	for i := range y {
		if wt != nil {
			w = wt[i]
		}
		r := y[i] - mn[i]
		ll -= w * r * r / (2 * scale)
		ws += w
	}
	ll -= ws * math.Log(2*math.Pi*scale) / 2
	return ll
}

func gammaLogLike(y []float64, mn []float64, wt []float64, scale float64, exact bool) float64 {

	var ll float64
	var w float64 = 1
	for i := range y {
		if wt != nil {
			w = wt[i]
		}

		v := y[i]/mn[i] + math.Log(mn[i])
		ll -= w * v / scale
	}

	if exact {
		for i := range y {
			if wt != nil {
				w = wt[i]
			}

			v := (scale - 1) * math.Log(y[i])
			g, _ := math.Lgamma(1 / scale)
			v += math.Log(scale) + scale*g
			ll -= w * v / scale
		}
	}

	return ll
}

func invGaussLogLike(y []float64, mn []float64, wt []float64, scale float64, exact bool) float64 {

	var ll float64
	var w float64 = 1
	var ws float64
	for i := range y {
		if wt != nil {
			w = wt[i]
		}

		r := y[i] - mn[i]
		v := r * r / (y[i] * mn[i] * mn[i] * scale)

		ll -= 0.5 * w * v
		ws += w
	}
	ll -= 0.5 * ws * math.Log(2*math.Pi)

	if exact {
		for i := range y {
			if wt != nil {
				w = wt[i]
			}
			ll -= 0.5 * w * math.Log(scale*y[i]*y[i]*y[i])
		}
	}

	return ll
}

func poissonDeviance(y []float64, mn []float64, wgt []float64, scale float64) float64 {

	var dev float64
	var w float64 = 1

	for i := range y {
		if wgt != nil {
			w = wgt[i]
		}

		dev += 2 * w * (mn[i] - y[i])
		if y[i] > 0 {
			dev += 2 * w * y[i] * (math.Log(y[i]) - math.Log(mn[i]))
		}
	}
	dev /= scale

	return dev
}

func binomialDeviance(y []float64, mn []float64, wgt []float64, scale float64) float64 {

	var dev float64
	var w float64 = 1

	for i := range y {
		if wgt != nil {
			w = wgt[i]
		}

		dev -= 2 * w * (y[i]*math.Log(mn[i]) + (1-y[i])*math.Log(1-mn[i]))
	}

	return dev
}

func gammaDeviance(y []float64, mn []float64, wgt []float64, scale float64) float64 {

	var dev float64
	var w float64 = 1

	for i := range y {
		if wgt != nil {
			w = wgt[i]
		}

		dev += 2 * w * ((y[i]-mn[i])/mn[i] - math.Log(y[i]/mn[i]))
	}

	return dev
}

func invGaussianDeviance(y []float64, mn []float64, wgt []float64, scale float64) float64 {

	var dev float64
	var w float64 = 1

	for i := range y {
		if wgt != nil {
			w = wgt[i]
		}

		r := y[i] - mn[i]
		dev += w * (r * r / (y[i] * mn[i] * mn[i]))
	}
	dev /= scale

	return dev
}

func gaussianDeviance(y []float64, mn []float64, wgt []float64, scale float64) float64 {

	var dev float64
	var w float64 = 1

	for i := range y {
		if wgt != nil {
			w = wgt[i]
		}

		r := y[i] - mn[i]
		dev += w * r * r
	}
	dev /= scale

	return dev
}

// NewTweedieFamily returns a new family object for the Tweedie
// family, using the given variance power and link function.  The
// variance power determines the mean/variance relationship,
// variance = mean^pw.  If link is nil, the canonical link is used,
// which is a power function with exponent 1 - pw.  Passing
// NewLink(LogLink) as the link gives the log link, which avoids
// domain violations.
func NewTweedieFamily(pw float64, link *Link) *Family {

	if link == nil {
		link = NewPowerLink(1 - pw)
	}

	loglike := func(y []float64, mn []float64, wt []float64, scale float64, exact bool) float64 {
		var ll float64
		var w float64 = 1
		for i := range y {
			if wt != nil {
				w = wt[i]
			}
			lmn := math.Log(mn[i])
			ll += w * (y[i]*math.Exp((1-pw)*lmn)/(1-pw) - math.Exp((2-pw)*lmn)/(2-pw))
		}
		ll /= scale

		if exact {
			// Series evaluation of the Tweedie scaling factor.
			alp := (2 - pw) / (1 - pw)
			lscale := math.Log(scale)
			for i := range y {
				if wt != nil {
					w = wt[i]
				}

				// Scaling factor is 1 in this case
				if y[i] == 0 {
					continue
				}

				lz := -alp*math.Log(y[i]) + alp*math.Log(pw-1) - math.Log(2-pw) - (1-alp)*lscale
				kf := math.Pow(y[i], 2-pw) / (scale * (2 - pw))
				k := int(math.Round(kf))
				if k < 1 {
					k = 1
				}

				// Sum the upper tail.
				w0 := float64(k)*lz - lgamma(float64(k+1)) - lgamma(-alp*float64(k))
				ws := 1.0
				for j := k + 1; j < 200; j++ {
					w1 := float64(j)*lz - lgamma(float64(j+1)) - lgamma(-alp*float64(j))
					if w1 < w0-37 {
						break
					}
					ws += math.Exp(w1 - w0)
				}

				// Sum the lower tail.
				for j := k - 1; j > 0; j-- {
					w1 := float64(j)*lz - lgamma(float64(j+1)) - lgamma(-alp*float64(j))
					if w1 < w0-37 {
						break
					}
					ws += math.Exp(w1 - w0)
				}

				ll -= w * math.Log(y[i])
				ll += w * (w0 + math.Log(ws))
			}
		}

		return ll
	}

	deviance := func(y []float64, mn []float64, wgt []float64, scale float64) float64 {

		var dev float64
		var w float64 = 1

		for i := range y {
			if wgt != nil {
				w = wgt[i]
			}

			u1 := math.Pow(y[i], 2-pw) / ((1 - pw) * (2 - pw))
			u2 := y[i] * math.Pow(mn[i], 1-pw) / (1 - pw)
			u3 := math.Pow(mn[i], 2-pw) / (2 - pw)
			dev += 2 * w * (u1 - u2 + u3)
		}
		dev /= scale

		return dev
	}

	return &Family{
		Name:                    "Tweedie",
		TypeCode:                TweedieFamily,
		LogLike:                 loglike,
		Deviance:                deviance,
		ValidMean:               positiveMean,
		alpha:                   pw,
		validLinks:              []LinkType{LogLink, PowerLink},
		link:                    link,
		dispersionDefaultMethod: DispersionFree,
	}
}

func lgamma(x float64) float64 {
	u, s := math.Lgamma(x)
	if s != 1 {
		panic("lgamma")
	}
	return u
}

// NewNegBinomFamily returns a new family object for the negative
// binomial family, using the given link function.
func NewNegBinomFamily(alpha float64, link *Link) *Family {

	if link == nil {
		link = NewLink(LogLink)
	}

	loglike := func(y []float64, mn []float64, wt []float64, scale float64, exact bool) float64 {

		var ll float64
		var w float64 = 1
		var lp []float64

		lp = resize(lp, len(y))
		link.Link(mn, lp)
		c3, _ := math.Lgamma(1 / alpha)

		for i := range y {

			if wt != nil {
				w = wt[i]
			}

			elp := math.Exp(lp[i])

			c1, _ := math.Lgamma(y[i] + 1/alpha)
			c2, _ := math.Lgamma(y[i] + 1)
			c := c1 - c2 - c3

			v := y[i] * math.Log(alpha*elp/(1+alpha*elp))
			v -= math.Log(1+alpha*elp) / alpha

			ll += w * (v + c)
		}

		return ll
	}

	deviance := func(y []float64, mn []float64, wt []float64, scale float64) float64 {

		var dev float64
		var w float64 = 1

		for i := 0; i < len(y); i++ {
			if wt != nil {
				w = wt[i]
			}

			if y[i] > 0 {
				z1 := y[i] * math.Log(y[i]/mn[i])
				z2 := (1 + alpha*y[i]) / alpha
				z2 *= math.Log((1 + alpha*y[i]) / (1 + alpha*mn[i]))
				dev += 2 * w * (z1 - z2)
			} else {
				dev += 2 * w * math.Log(1+alpha*mn[i]) / alpha
			}
		}
		dev /= scale

		return dev
	}

	return &Family{
		Name:                    "NegBinom",
		TypeCode:                NegBinomFamily,
		LogLike:                 loglike,
		Deviance:                deviance,
		ValidMean:               positiveMean,
		alpha:                   alpha,
		validLinks:              []LinkType{LogLink, IdentityLink},
		link:                    link,
		dispersionDefaultMethod: DispersionFree,
	}
}
