// Package glm provides family objects for generalized linear models
// and a maximum-likelihood fitter based on iteratively reweighted
// least squares.  A family object bundles the link function, variance
// function, log-likelihood, deviance, domain-validity rule, and
// starting-mean rule for a response distribution.
package glm
