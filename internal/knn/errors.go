package knn

import "errors"

// Sentinel errors surfaced by the k-NN / scoring pipeline (spec §4.5
// "Failure"). An empty result set is deliberately distinct from the input
// errors below: it is not fatal, but callers may want to treat it
// differently than a populated result.
var (
	ErrEmptyResult       = errors.New("knn: query matched no candidates")
	ErrDimensionMismatch = errors.New("knn: query dimension does not match index dimension")
	ErrInvalidK          = errors.New("knn: k must be in [1, 10000]")
	ErrMetricIncompatible = errors.New("knn: metric is not compatible with the requested dtype")
)
