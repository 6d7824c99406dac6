package glmnet

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// CVResult holds the results of cross-validating a regularization
// path.
type CVResult struct {

	// The penalty grid, shared by all folds
	Lambda []float64

	// Mean held-out deviance at each penalty strength
	CVM []float64

	// Standard error of the held-out deviance at each penalty
	// strength
	CVSD []float64

	// The penalty strength minimizing the held-out deviance
	LambdaMin float64

	// The largest penalty strength with held-out deviance within
	// one standard error of the minimum
	Lambda1SE float64

	// Number of folds
	NFolds int
}

// CrossValidate estimates the held-out deviance of the path by
// K-fold cross validation.  The penalty grid is determined by a fit
// to the full data, then each fold is refit on that grid and scored
// on its held-out observations.  The folds are fit concurrently.
func (m *Model) CrossValidate(ctx context.Context, nfolds int, seed int64) (*CVResult, error) {

	if !m.done {
		panic("glmnet: CrossValidate called before Done.\n")
	}
	if nfolds < 2 {
		panic("glmnet: cross validation requires at least two folds.\n")
	}
	if nfolds > m.nobs {
		msg := fmt.Sprintf("glmnet: %d folds requested with only %d observations.\n", nfolds, m.nobs)
		panic(msg)
	}

	full, err := m.Fit()
	if err != nil {
		return nil, errors.Wrap(err, "glmnet: full-data fit for cross validation failed")
	}
	lambdas := full.Lambda
	nl := len(lambdas)

	// Random fold assignment
	fold := make([]int, m.nobs)
	perm := rand.New(rand.NewSource(seed)).Perm(m.nobs)
	for i, k := range perm {
		fold[k] = i % nfolds
	}

	// losses[f][k] is the held-out deviance of fold f at lambdas[k].
	losses := make([][]float64, nfolds)

	eg, ctx := errgroup.WithContext(ctx)
	for f := 0; f < nfolds; f++ {
		f := f
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			loss, err := m.foldLoss(fold, f, lambdas)
			if err != nil {
				return errors.Wrapf(err, "glmnet: fold %d fit failed", f)
			}
			losses[f] = loss
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	rslt := &CVResult{
		Lambda: lambdas,
		CVM:    make([]float64, nl),
		CVSD:   make([]float64, nl),
		NFolds: nfolds,
	}

	for k := 0; k < nl; k++ {
		var mn float64
		for f := 0; f < nfolds; f++ {
			mn += losses[f][k]
		}
		mn /= float64(nfolds)
		var va float64
		for f := 0; f < nfolds; f++ {
			d := losses[f][k] - mn
			va += d * d
		}
		va /= float64(nfolds - 1)
		rslt.CVM[k] = mn
		rslt.CVSD[k] = math.Sqrt(va / float64(nfolds))
	}

	kmin := 0
	for k, v := range rslt.CVM {
		if v < rslt.CVM[kmin] {
			kmin = k
		}
	}
	rslt.LambdaMin = lambdas[kmin]

	// The grid is decreasing, so the first penalty strength within
	// one standard error of the minimum is the largest.
	thresh := rslt.CVM[kmin] + rslt.CVSD[kmin]
	rslt.Lambda1SE = rslt.LambdaMin
	for k := 0; k <= kmin; k++ {
		if rslt.CVM[k] <= thresh {
			rslt.Lambda1SE = lambdas[k]
			break
		}
	}

	return rslt, nil
}

// foldLoss refits the model excluding one fold and returns the
// held-out deviance at each penalty strength.
func (m *Model) foldLoss(fold []int, f int, lambdas []float64) ([]float64, error) {

	var train, test []int
	for i, fi := range fold {
		if fi == f {
			test = append(test, i)
		} else {
			train = append(train, i)
		}
	}

	fm := m.subset(train).Lambda(lambdas).Done()
	fm.ctl = m.ctl
	path, err := fm.Fit()
	if err != nil {
		return nil, err
	}

	// Held-out data in column form
	xt := make([][]float64, m.nvar)
	for j := range xt {
		xt[j] = subsetVec(m.x[j], test)
	}
	yt := subsetVec(m.y, test)

	// Held-out weights, normalized to sum to one so the deviance
	// is a weighted mean over the fold.
	wt := make([]float64, len(test))
	var ws float64
	for i, k := range test {
		wt[i] = m.w[k]
		ws += m.w[k]
	}
	for i := range wt {
		wt[i] /= ws
	}

	loss := make([]float64, len(lambdas))
	mu := make([]float64, len(test))
	for k, lam := range lambdas {
		eta := path.Predict(xt, lam)
		if m.off != nil {
			for i, t := range test {
				eta[i] += m.off[t]
			}
		}
		m.link.InvLink(eta, mu)
		loss[k] = m.fam.Deviance(yt, mu, wt, 1)
	}

	return loss, nil
}

// subset creates a new model restricted to the given observations,
// carrying over the configuration of the parent model.  The returned
// model is not yet complete; Done must be called before fitting.
func (m *Model) subset(idx []int) *Model {

	sort.Ints(idx)

	x := make([][]float64, m.nvar)
	for j := range x {
		x[j] = subsetVec(m.x[j], idx)
	}

	fm := New(x, subsetVec(m.y, idx))
	fm.Family(m.fam)
	fm.Link(m.link)
	fm.VarFunc(m.vari)
	fm.Alpha(m.alpha)
	fm.PenaltyFactor(m.pf)
	fm.Standardize(m.standardize)
	fm.Intercept(m.intercept)
	fm.FitMethod(m.fitMethod)
	fm.Names(m.xnames)

	if m.wgt != nil {
		fm.Weights(subsetVec(m.wgt, idx))
	}
	if m.off != nil {
		fm.Offset(subsetVec(m.off, idx))
	}

	return fm
}

func subsetVec(x []float64, idx []int) []float64 {
	y := make([]float64, len(idx))
	for i, k := range idx {
		y[i] = x[k]
	}
	return y
}
