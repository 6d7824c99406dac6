package glmnet

import (
	"fmt"
	"math"
)

// irlsState accumulates status information for one penalty strength.
type irlsState struct {
	converged bool
	halved    bool
	messages  []string
}

// pathWork holds per-observation scratch storage reused across the
// penalty strengths of one path fit.
type pathWork struct {
	eta    []float64
	mu     []float64
	va     []float64
	lderiv []float64
	irlsw  []float64
	z      []float64
	etac   []float64
	muc    []float64
	cd     *cdWork
}

func (m *Model) newPathWork() *pathWork {
	n := m.nobs
	return &pathWork{
		eta:    make([]float64, n),
		mu:     make([]float64, n),
		va:     make([]float64, n),
		lderiv: make([]float64, n),
		irlsw:  make([]float64, n),
		z:      make([]float64, n),
		etac:   make([]float64, n),
		muc:    make([]float64, n),
		cd:     newCDWork(n, m.nvar),
	}
}

// linpred computes the linear predictor from internal coefficients,
// including the intercept and offset.
func (m *Model) linpred(beta []float64, b0 float64, eta []float64) {
	for i := range eta {
		eta[i] = b0
	}
	for j, b := range beta {
		if b != 0 {
			xda := m.xv[j]
			for i := range eta {
				eta[i] += b * xda[i]
			}
		}
	}
	if m.off != nil {
		for i := range eta {
			eta[i] += m.off[i]
		}
	}
}

// fitLambda fits the penalized model at one penalty strength using
// iteratively reweighted least squares with a step-halving safeguard.
// The coefficients beta and intercept b0 are updated in place,
// starting from the warm-start values they hold on entry.  The
// deviance at the accepted solution is returned.
func (m *Model) fitLambda(lam float64, beta []float64, b0 *float64, pw *pathWork) (float64, *irlsState) {

	state := &irlsState{}

	betac := make([]float64, m.nvar)

	m.linpred(beta, *b0, pw.eta)
	m.link.InvLink(pw.eta, pw.mu)

	dev := m.fam.Deviance(m.y, pw.mu, m.w, 1)
	obj := dev/2 + lam*m.penalty(beta)

	for iter := 0; iter < m.ctl.MaxIter; iter++ {

		m.link.Deriv(pw.mu, pw.lderiv)
		m.vari.Var(pw.mu, pw.va)

		// Weights and working response for the penalized WLS
		// subproblem.
		for i := range m.y {
			pw.irlsw[i] = m.w[i] / (pw.lderiv[i] * pw.lderiv[i] * pw.va[i])
		}
		if m.off == nil {
			for i, y := range m.y {
				pw.z[i] = pw.eta[i] + pw.lderiv[i]*(y-pw.mu[i])
			}
		} else {
			for i, y := range m.y {
				pw.z[i] = pw.eta[i] - m.off[i] + pw.lderiv[i]*(y-pw.mu[i])
			}
		}

		// The full proximal Newton step
		copy(betac, beta)
		b0c := *b0
		m.cdFit(pw.irlsw, pw.z, lam, betac, &b0c, pw.cd)

		// Vet the step; halve back toward the current iterate
		// until the objective is finite, bounded, and not
		// increasing, and the predictor and mean are valid.
		accepted := false
		var devc, objc float64
		for h := 0; ; h++ {

			m.linpred(betac, b0c, pw.etac)
			m.link.InvLink(pw.etac, pw.muc)

			if allFinite(pw.etac) && m.fam.ValidMean(pw.muc) {
				devc = m.fam.Deviance(m.y, pw.muc, m.w, 1)
				objc = devc/2 + lam*m.penalty(betac)
				if !math.IsNaN(objc) && !math.IsInf(objc, 0) && objc < m.ctl.Big &&
					objc <= obj+1e-10*(1+math.Abs(obj)) {
					accepted = true
					break
				}
			}

			if h == m.ctl.MaxHalvings {
				break
			}

			if h == 0 {
				state.halved = true
				msg := fmt.Sprintf("Full IRLS step rejected at lambda=%.6g, iteration %d, halving the step size.", lam, iter+1)
				state.messages = append(state.messages, msg)
				if m.log != nil {
					m.log.Print(msg + "\n")
				}
			}

			for j := range betac {
				betac[j] = (betac[j] + beta[j]) / 2
			}
			b0c = (b0c + *b0) / 2
		}

		if !accepted {
			msg := fmt.Sprintf("IRLS step at lambda=%.6g could not be corrected by halving, keeping the last valid estimate.", lam)
			state.messages = append(state.messages, msg)
			if m.log != nil {
				m.log.Print(msg + "\n")
			}
			return dev, state
		}

		copy(beta, betac)
		*b0 = b0c
		copy(pw.eta, pw.etac)
		copy(pw.mu, pw.muc)

		if m.log != nil {
			m.log.Print(fmt.Sprintf("lambda=%.6g iteration %d: deviance=%.10f\n", lam, iter+1, devc))
		}

		// Relative decrease in deviance
		if math.Abs(devc-dev)/(0.1+math.Abs(devc)) < m.ctl.Epsilon {
			dev = devc
			state.converged = true
			break
		}
		dev = devc
		obj = objc
	}

	if !state.converged {
		msg := fmt.Sprintf("IRLS did not converge in %d iterations at lambda=%.6g.", m.ctl.MaxIter, lam)
		state.messages = append(state.messages, msg)
		if m.log != nil {
			m.log.Print(msg + "\n")
		}
	}

	return dev, state
}

// fitLambdaGaussian is the closed-form fast path for the gaussian
// family with the identity link: a single penalized weighted least
// squares solve per penalty strength, with no IRLS.
func (m *Model) fitLambdaGaussian(lam float64, beta []float64, b0 *float64, pw *pathWork) float64 {

	if m.off == nil {
		copy(pw.z, m.y)
	} else {
		for i, y := range m.y {
			pw.z[i] = y - m.off[i]
		}
	}

	m.cdFit(m.w, pw.z, lam, beta, b0, pw.cd)

	m.linpred(beta, *b0, pw.eta)
	m.link.InvLink(pw.eta, pw.mu)

	return m.fam.Deviance(m.y, pw.mu, m.w, 1)
}

// nullFit fits the intercept-only model, returning the intercept (on
// the internal scale), the null deviance, and the working weights and
// residuals at the null solution.  The working quantities determine
// the largest penalty strength on an automatic grid.
func (m *Model) nullFit(pw *pathWork) (float64, float64) {

	var b0 float64

	if !m.intercept {
		zero(pw.eta)
		if m.off != nil {
			copy(pw.eta, m.off)
		}
		m.link.InvLink(pw.eta, pw.mu)
		return 0, m.fam.Deviance(m.y, pw.mu, m.w, 1)
	}

	// Intercept-only IRLS; one-dimensional, so the exact weighted
	// mean update replaces the coordinate descent solver.
	m.fam.StartingMean(m.y, m.w, pw.mu)
	m.link.Link(pw.mu, pw.eta)
	if m.off != nil {
		// Treat the starting predictor as b0 + off.
		var u float64
		for i := range pw.eta {
			u += m.w[i] * (pw.eta[i] - m.off[i])
		}
		b0 = u
		for i := range pw.eta {
			pw.eta[i] = b0 + m.off[i]
		}
		m.link.InvLink(pw.eta, pw.mu)
	}

	dev := m.fam.Deviance(m.y, pw.mu, m.w, 1)

	for iter := 0; iter < m.ctl.MaxIter; iter++ {

		m.link.Deriv(pw.mu, pw.lderiv)
		m.vari.Var(pw.mu, pw.va)

		var wz, ws float64
		for i, y := range m.y {
			wi := m.w[i] / (pw.lderiv[i] * pw.lderiv[i] * pw.va[i])
			zi := pw.eta[i] + pw.lderiv[i]*(y-pw.mu[i])
			if m.off != nil {
				zi -= m.off[i]
			}
			wz += wi * zi
			ws += wi
		}
		b0c := wz / ws

		// Halve toward the current intercept if the step is invalid.
		accepted := false
		var devc float64
		for h := 0; ; h++ {
			for i := range pw.etac {
				pw.etac[i] = b0c
				if m.off != nil {
					pw.etac[i] += m.off[i]
				}
			}
			m.link.InvLink(pw.etac, pw.muc)
			if allFinite(pw.etac) && m.fam.ValidMean(pw.muc) {
				devc = m.fam.Deviance(m.y, pw.muc, m.w, 1)
				if !math.IsNaN(devc) && !math.IsInf(devc, 0) && devc <= dev+1e-10*(1+math.Abs(dev)) {
					accepted = true
					break
				}
			}
			if h == m.ctl.MaxHalvings {
				break
			}
			b0c = (b0c + b0) / 2
		}
		if !accepted {
			break
		}

		b0 = b0c
		copy(pw.eta, pw.etac)
		copy(pw.mu, pw.muc)

		if math.Abs(devc-dev)/(0.1+math.Abs(devc)) < m.ctl.Epsilon {
			dev = devc
			break
		}
		dev = devc
	}

	return b0, dev
}

// lambdaMax returns the smallest penalty strength at which all
// penalized coefficients are zero, computed from the score of the
// null model.  The pathWork value must hold the mean and predictor of
// the null fit.
func (m *Model) lambdaMax(pw *pathWork) float64 {

	m.link.Deriv(pw.mu, pw.lderiv)
	m.vari.Var(pw.mu, pw.va)

	// Elastic net grids with small alpha use a floor on the mixing
	// parameter, following the reference implementation.
	alpha := m.alpha
	if alpha < 1e-3 {
		alpha = 1e-3
	}

	var lmax float64
	for j, xda := range m.xv {
		if m.pf[j] == 0 {
			continue
		}
		var g float64
		for i, y := range m.y {
			g += m.w[i] * xda[i] * (y - pw.mu[i]) / (pw.lderiv[i] * pw.va[i])
		}
		if v := math.Abs(g) / (alpha * m.pf[j]); v > lmax {
			lmax = v
		}
	}

	return lmax
}
