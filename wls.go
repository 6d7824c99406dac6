package glmnet

import "math"

// cdWork holds scratch storage reused across coordinate descent
// calls within one path fit.
type cdWork struct {
	// Working residual
	r []float64

	// Weighted second moment of each covariate
	v []float64
}

func newCDWork(nobs, nvar int) *cdWork {
	return &cdWork{
		r: make([]float64, nobs),
		v: make([]float64, nvar),
	}
}

func softThresh(z, g float64) float64 {
	switch {
	case z > g:
		return z - g
	case z < -g:
		return z + g
	default:
		return 0
	}
}

// cdFit solves one elastic-net penalized weighted least squares
// problem by cyclic coordinate descent with soft thresholding.  The
// problem is
//
//	min_{b0,b} 1/2 sum_i w_i (z_i - b0 - xv_i'b)^2
//	           + lam * sum_j pf_j (alpha*|b_j| + (1-alpha)/2*b_j^2)
//
// over the centered/scaled covariates xv.  The coefficients beta and
// the intercept are updated in place, warm starting from their
// current values.  The intercept is never penalized.  The number of
// full cycles taken is returned.
func (m *Model) cdFit(w, z []float64, lam float64, beta []float64, b0 *float64, work *cdWork) int {

	r := work.r
	v := work.v

	// Total weight; the IRLS weights do not sum to one.
	var ws float64
	for _, u := range w {
		ws += u
	}

	// Weighted second moments of the covariates
	for j, xda := range m.xv {
		var u float64
		for i, x := range xda {
			u += w[i] * x * x
		}
		v[j] = u
	}

	// Initialize the residual at the warm start.
	for i := range z {
		r[i] = z[i] - *b0
	}
	for j, b := range beta {
		if b != 0 {
			xda := m.xv[j]
			for i := range r {
				r[i] -= b * xda[i]
			}
		}
	}

	lamL1 := lam * m.alpha
	lamL2 := lam * (1 - m.alpha)

	var iter int
	for iter = 0; iter < m.ctl.CDMaxIter; iter++ {

		var dlx float64

		if m.intercept {
			var u float64
			for i, q := range r {
				u += w[i] * q
			}
			d := u / ws
			if d != 0 {
				*b0 += d
				for i := range r {
					r[i] -= d
				}
				if t := ws * d * d; t > dlx {
					dlx = t
				}
			}
		}

		for j, xda := range m.xv {

			bj := beta[j]

			var u float64
			for i, x := range xda {
				u += w[i] * x * r[i]
			}
			u += v[j] * bj

			bnew := softThresh(u, lamL1*m.pf[j])
			if bnew != 0 {
				bnew /= v[j] + lamL2*m.pf[j]
			}

			if bnew == bj {
				continue
			}

			d := bnew - bj
			for i, x := range xda {
				r[i] -= d * x
			}
			beta[j] = bnew

			if t := v[j] * d * d; t > dlx {
				dlx = t
			}
		}

		if dlx < m.ctl.CDTol {
			break
		}
	}

	return iter
}

// penalty returns the elastic net penalty value for the internal
// (centered/scaled) coefficients.
func (m *Model) penalty(beta []float64) float64 {
	var pen float64
	for j, b := range beta {
		pen += m.pf[j] * (m.alpha*math.Abs(b) + (1-m.alpha)*b*b/2)
	}
	return pen
}
