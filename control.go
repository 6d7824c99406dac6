package glmnet

import "sync"

// Control holds the numerical settings used when fitting a
// regularization path.  The settings are process-wide: models capture
// the current settings when Done is called, and the settings persist
// until changed or reset.
type Control struct {

	// Epsilon is the convergence threshold for the relative change
	// in deviance between IRLS iterations.
	Epsilon float64

	// MaxIter is the maximum number of IRLS iterations per penalty
	// strength.
	MaxIter int

	// Big bounds the penalized objective.  A step producing an
	// objective at or above this value is treated as divergent and
	// rejected.
	Big float64

	// MaxHalvings is the maximum number of times a rejected IRLS
	// step is halved before the fit gives up on the iteration.
	MaxHalvings int

	// CDTol is the convergence threshold for the inner coordinate
	// descent iterations, applied to the largest weighted squared
	// coefficient update.
	CDTol float64

	// CDMaxIter is the maximum number of full coordinate descent
	// cycles per weighted least squares subproblem.
	CDMaxIter int

	// NLambda is the number of penalty strengths on an
	// automatically generated grid.
	NLambda int

	// LambdaMinRatio is the ratio of the smallest to the largest
	// penalty strength on an automatically generated grid.  If
	// zero, it defaults to 1e-4, or 1e-2 when there are fewer
	// observations than covariates.
	LambdaMinRatio float64

	// FDev stops the path early when the fractional change in
	// explained deviance between adjacent penalty strengths falls
	// below this value.
	FDev float64

	// DevMax stops the path early when the fraction of the null
	// deviance explained exceeds this value.
	DevMax float64
}

// DefaultControl returns the factory-default control settings.
func DefaultControl() Control {
	return Control{
		Epsilon:     1e-8,
		MaxIter:     25,
		Big:         9.9e35,
		MaxHalvings: 10,
		CDTol:       1e-9,
		CDMaxIter:   1000,
		NLambda:     100,
		FDev:        1e-5,
		DevMax:      0.999,
	}
}

var (
	ctlMu sync.Mutex
	ctl   = DefaultControl()
)

// CurrentControl returns the control settings currently in effect.
func CurrentControl() Control {
	ctlMu.Lock()
	defer ctlMu.Unlock()
	return ctl
}

// SetControl replaces the process-wide control settings.  The new
// settings remain in effect until changed again or reset.
func SetControl(c Control) {
	ctlMu.Lock()
	defer ctlMu.Unlock()
	ctl = c
}

// ResetControl restores the factory-default control settings.
func ResetControl() {
	ctlMu.Lock()
	defer ctlMu.Unlock()
	ctl = DefaultControl()
}
