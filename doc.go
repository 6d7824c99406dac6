// Package glmnet fits generalized linear models with elastic net
// regularization along a path of decreasing penalty strengths.
//
// The penalty is a weighted combination of the L1 (lasso) and squared
// L2 (ridge) norms of the coefficients, controlled by a mixing
// parameter alpha.  The path is fit by a proximal Newton method: at
// each penalty strength the objective is approximated by a penalized
// weighted least squares problem, which is solved by cyclic
// coordinate descent, and the solution at each penalty strength warm
// starts the next one.  A step-halving safeguard keeps the iterations
// stable for ill-conditioned problems.
//
// For the gaussian family with the identity link the inner and outer
// problems coincide and a faster closed-form path is used.
//
// The supported families, link functions, and variance functions are
// provided by the glm subpackage, which also fits unpenalized
// generalized linear models.
//
// Basic usage:
//
//	model := glmnet.New(x, y).Family(glm.NewFamily(glm.BinomialFamily)).Done()
//	path, err := model.Fit()
//
// The returned path holds the intercepts and coefficients at each
// penalty strength, on the original scale of the covariates.
package glmnet
