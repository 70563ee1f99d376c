package service

import "errors"

// Error taxonomy shared by the change-point engine and its callers. Failures wrap one of these
// sentinels so callers can branch with errors.Is.
var (
	// ErrDomain marks invalid input data: non-positive prices, too-short series, bad date ordering.
	ErrDomain = errors.New("domain error")
	// ErrConfiguration marks an invalid sampler, segmentation or association configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrInsufficientSamples is returned when burn-in leaves no draws to summarise.
	ErrInsufficientSamples = errors.New("insufficient samples")
	// ErrEmptyChain is returned when a chain never accepted a proposal.
	ErrEmptyChain = errors.New("empty chain")
)
