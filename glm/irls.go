package glm

import (
	"fmt"
	"math"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// fitState accumulates status information during an IRLS fit.
type fitState struct {
	converged bool
	halved    bool
	messages  []string
}

// fitIRLS estimates the model coefficients using iteratively
// reweighted least squares.  Each full step is vetted before it is
// accepted: if it produces an invalid linear predictor or mean, or a
// non-finite or increased deviance, the step is halved back toward
// the previous iterate until it becomes acceptable.
func (glm *GLM) fitIRLS(start []float64) ([]float64, *fitState, error) {

	n := glm.NumObs()
	nvar := glm.NumParams()

	linpred := make([]float64, n)
	mn := make([]float64, n)
	va := make([]float64, n)
	lderiv := make([]float64, n)
	irlsw := make([]float64, n)
	adjy := make([]float64, n)
	lpcand := make([]float64, n)
	mncand := make([]float64, n)

	xty := make([]float64, nvar)
	xtx := make([]float64, nvar*nvar)

	var nparam mat.VecDense

	params := make([]float64, nvar)
	copy(params, start)
	step := make([]float64, nvar)

	state := &fitState{}

	var devold float64

	for iter := 0; iter < glm.maxIter; iter++ {

		zero(xtx)
		zero(xty)

		if iter == 0 && !glm.hasStart {
			glm.fam.StartingMean(glm.y, glm.wgt, mn)
			glm.link.Link(mn, linpred)
			devold = glm.fam.Deviance(glm.y, mn, glm.wgt, 1)
		} else if iter == 0 {
			glm.linpred(params, linpred)
			glm.link.InvLink(linpred, mn)
			devold = glm.fam.Deviance(glm.y, mn, glm.wgt, 1)
		} else {
			glm.linpred(params, linpred)
			glm.link.InvLink(linpred, mn)
		}

		glm.link.Deriv(mn, lderiv)
		glm.vari.Var(mn, va)

		// Create weights for WLS
		if glm.wgt != nil {
			for i := range glm.y {
				irlsw[i] = glm.wgt[i] / (lderiv[i] * lderiv[i] * va[i])
			}
		} else {
			for i := range glm.y {
				irlsw[i] = 1 / (lderiv[i] * lderiv[i] * va[i])
			}
		}

		// Create an adjusted response for WLS
		if glm.off == nil {
			for i, y := range glm.y {
				adjy[i] = linpred[i] + lderiv[i]*(y-mn[i])
			}
		} else {
			for i, y := range glm.y {
				adjy[i] = linpred[i] + lderiv[i]*(y-mn[i]) - glm.off[i]
			}
		}

		// Update the weighted moment matrices.  For large data
		// sets this is by far the most expensive step.
		glm.irlsXprod(adjy, irlsw, xty, xtx)

		// Fill in the unfilled triangle of xtx
		for j1 := 0; j1 < nvar; j1++ {
			for j2 := j1 + 1; j2 < nvar; j2++ {
				xtx[j1*nvar+j2] = xtx[j2*nvar+j1]
			}
		}

		// The full IRLS step
		xtxm := mat.NewDense(nvar, nvar, xtx)
		xtyv := mat.NewVecDense(nvar, xty)
		if err := nparam.SolveVec(xtxm, xtyv); err != nil {
			return params, state, errors.Wrap(err, "glm: IRLS weighted least squares system is singular")
		}
		copy(step, nparam.RawVector().Data)

		// Vet the step, halving it back toward the previous
		// iterate until it is acceptable.
		accepted := false
		var devnew float64
		for h := 0; ; h++ {

			glm.linpred(step, lpcand)
			glm.link.InvLink(lpcand, mncand)

			if allFinite(lpcand) && glm.fam.ValidMean(mncand) {
				devnew = glm.fam.Deviance(glm.y, mncand, glm.wgt, 1)
				if !math.IsNaN(devnew) && !math.IsInf(devnew, 0) &&
					devnew <= devold+1e-10*(1+math.Abs(devold)) {
					accepted = true
					break
				}
			}

			if h == glm.maxHalvings {
				break
			}

			if h == 0 {
				state.halved = true
				msg := fmt.Sprintf("Full IRLS step rejected at iteration %d, halving the step size.", iter+1)
				state.messages = append(state.messages, msg)
				if glm.log != nil {
					glm.log.Print(msg + "\n")
				}
			}

			for j := range step {
				step[j] = (step[j] + params[j]) / 2
			}
		}

		if !accepted {
			msg := fmt.Sprintf("IRLS step at iteration %d could not be corrected by halving, returning the last valid estimate.", iter+1)
			state.messages = append(state.messages, msg)
			if glm.log != nil {
				glm.log.Print(msg + "\n")
			}
			return params, state, nil
		}

		copy(params, step)

		if glm.log != nil {
			glm.log.Print(fmt.Sprintf("Iteration %d: deviance=%.10f\n", iter+1, devnew))
		}

		// Check convergence using the relative decrease in deviance.
		if math.Abs(devnew-devold)/(0.1+math.Abs(devnew)) < glm.dtol {
			state.converged = true
			break
		}
		devold = devnew
	}

	if !state.converged {
		msg := fmt.Sprintf("IRLS did not converge in %d iterations.", glm.maxIter)
		state.messages = append(state.messages, msg)
		if glm.log != nil {
			glm.log.Print(msg + "\n")
		}
	} else if glm.log != nil {
		glm.log.Print("IRLS converged\n")
	}

	return params, state, nil
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (glm *GLM) irlsXprod(adjy, irlsw, xty, xtx []float64) {

	if len(adjy) >= glm.concurrentIRLS {
		glm.irlsXprodConcurrent(adjy, irlsw, xty, xtx)
		return
	}

	nvar := glm.NumParams()

	for j1 := 0; j1 < nvar; j1++ {

		// Update x' w^-1 yadj
		xda := glm.x[j1]
		var u float64
		for i := range adjy {
			u += adjy[i] * xda[i] * irlsw[i]
		}
		xty[j1] += u

		// Update x' w^-1 x
		for j2 := 0; j2 <= j1; j2++ {
			xdb := glm.x[j2]
			var u float64
			for i := range xda {
				u += xda[i] * xdb[i] * irlsw[i]
			}
			xtx[j1*nvar+j2] += u
		}
	}
}

// irlsXprodConcurrent is a concurrent version of irlsXprod
func (glm *GLM) irlsXprodConcurrent(adjy, irlsw, xty, xtx []float64) {

	nvar := glm.NumParams()

	var wg sync.WaitGroup

	for j1 := 0; j1 < nvar; j1++ {

		// Update x' w^-1 yadj
		xda := glm.x[j1]
		wg.Add(1)
		go func(j1 int) {
			var u float64
			for i := range adjy {
				u += adjy[i] * xda[i] * irlsw[i]
			}
			xty[j1] += u
			wg.Done()
		}(j1)

		// Update x' w^-1 x
		for j2 := 0; j2 <= j1; j2++ {
			xdb := glm.x[j2]
			wg.Add(1)
			go func(j1, j2 int) {
				var u float64
				for i := range xda {
					u += xda[i] * xdb[i] * irlsw[i]
				}
				xtx[j1*nvar+j2] += u
				wg.Done()
			}(j1, j2)
		}
	}

	wg.Wait()
}
