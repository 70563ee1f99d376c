package changepoint

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"BrentShift/internal/domain/models"
	domsvc "BrentShift/internal/domain/service"
)

// ModelKind selects which regime parameters are allowed to shift at tau.
type ModelKind string

const (
	// KindFull lets both the mean and the volatility shift.
	KindFull ModelKind = "full"
	// KindMeanShift ties sigma_after to sigma_before.
	KindMeanShift ModelKind = "mean_shift"
	// KindVolatilityShift ties mu_after to mu_before.
	KindVolatilityShift ModelKind = "volatility_shift"
)

// Priors parameterises the weakly informative priors of the model.
type Priors struct {
	MuScale    float64 // mu ~ Normal(0, MuScale)
	SigmaScale float64 // sigma ~ HalfNormal(SigmaScale)
}

// DefaultPriors is scaled for daily log returns. Both scales are an order of magnitude above
// typical daily moves; much wider priors inflate the posterior mass of one-point edge segments.
func DefaultPriors() Priors {
	return Priors{MuScale: 0.1, SigmaScale: 0.1}
}

// Model is the single change-point model. It is immutable and safe for concurrent use.
type Model struct {
	kind    ModelKind
	priors  Priors
	muPrior distuv.Normal
	sdPrior distuv.Normal
}

// NewModel validates the model definition.
func NewModel(kind ModelKind, priors Priors) (*Model, error) {
	switch kind {
	case KindFull, KindMeanShift, KindVolatilityShift:
	case "":
		kind = KindFull
	default:
		return nil, fmt.Errorf("%w: unknown model kind %q", domsvc.ErrConfiguration, kind)
	}
	if !(priors.MuScale > 0) || !(priors.SigmaScale > 0) {
		return nil, fmt.Errorf("%w: prior scales must be positive", domsvc.ErrConfiguration)
	}
	return &Model{
		kind:    kind,
		priors:  priors,
		muPrior: distuv.Normal{Mu: 0, Sigma: priors.MuScale},
		sdPrior: distuv.Normal{Mu: 0, Sigma: priors.SigmaScale},
	}, nil
}

func (m *Model) Kind() ModelKind { return m.kind }

// Tie copies shared parameters so a restricted model never carries two independent values.
func (m *Model) Tie(p models.ChangePointParameters) models.ChangePointParameters {
	switch m.kind {
	case KindMeanShift:
		p.SigmaAfter = p.SigmaBefore
	case KindVolatilityShift:
		p.MuAfter = p.MuBefore
	}
	return p
}

// Observations caches prefix sums of a return series so segment likelihoods cost O(1).
type Observations struct {
	n     int
	sum   []float64 // sum[i] = x[0] + ... + x[i-1]
	sumSq []float64
	sd    float64 // population std of the whole series
}

// NewObservations precomputes the sufficient statistics of returns.
func NewObservations(returns []float64) *Observations {
	o := &Observations{
		n:     len(returns),
		sum:   make([]float64, len(returns)+1),
		sumSq: make([]float64, len(returns)+1),
	}
	for i, x := range returns {
		o.sum[i+1] = o.sum[i] + x
		o.sumSq[i+1] = o.sumSq[i] + x*x
	}
	if o.n > 0 {
		_, o.sd = o.moments(0, o.n)
	}
	return o
}

// Len is the number of returns N.
func (o *Observations) Len() int { return o.n }

// segment returns count, sum and sum of squares of x[lo:hi].
func (o *Observations) segment(lo, hi int) (float64, float64, float64) {
	return float64(hi - lo), o.sum[hi] - o.sum[lo], o.sumSq[hi] - o.sumSq[lo]
}

// moments returns the mean and population standard deviation of x[lo:hi].
func (o *Observations) moments(lo, hi int) (float64, float64) {
	n, s, ss := o.segment(lo, hi)
	mean := s / n
	v := ss/n - mean*mean
	if v < 0 {
		v = 0
	}
	return mean, math.Sqrt(v)
}

// segmentLogLik is the Normal log-density of x[lo:hi] under (mu, sigma).
func (o *Observations) segmentLogLik(lo, hi int, mu, sigma float64) float64 {
	n, s, ss := o.segment(lo, hi)
	dev := ss - 2*mu*s + n*mu*mu
	if dev < 0 {
		dev = 0
	}
	return -0.5*n*math.Log(2*math.Pi) - n*math.Log(sigma) - dev/(2*sigma*sigma)
}

func validSigma(s float64) bool {
	return s > 0 && !math.IsInf(s, 0)
}

// LogLikelihood sums the per-segment Normal log-densities. Invalid states give -Inf.
func (m *Model) LogLikelihood(p models.ChangePointParameters, obs *Observations) float64 {
	if p.Tau <= 0 || p.Tau >= obs.n {
		return math.Inf(-1)
	}
	if !validSigma(p.SigmaBefore) || !validSigma(p.SigmaAfter) {
		return math.Inf(-1)
	}
	if math.IsNaN(p.MuBefore) || math.IsNaN(p.MuAfter) {
		return math.Inf(-1)
	}
	ll := obs.segmentLogLik(0, p.Tau, p.MuBefore, p.SigmaBefore) +
		obs.segmentLogLik(p.Tau, obs.n, p.MuAfter, p.SigmaAfter)
	if math.IsNaN(ll) {
		return math.Inf(-1)
	}
	return ll
}

// LogPrior sums the independent prior log-densities for a series of n returns.
// Tied parameters contribute once.
func (m *Model) LogPrior(p models.ChangePointParameters, n int) float64 {
	if p.Tau <= 0 || p.Tau >= n {
		return math.Inf(-1)
	}
	if !validSigma(p.SigmaBefore) || !validSigma(p.SigmaAfter) {
		return math.Inf(-1)
	}
	lp := -math.Log(float64(n - 1))
	lp += m.muPrior.LogProb(p.MuBefore)
	lp += math.Ln2 + m.sdPrior.LogProb(p.SigmaBefore)
	if m.kind != KindVolatilityShift {
		lp += m.muPrior.LogProb(p.MuAfter)
	}
	if m.kind != KindMeanShift {
		lp += math.Ln2 + m.sdPrior.LogProb(p.SigmaAfter)
	}
	return lp
}

// LogPosterior is LogLikelihood + LogPrior, up to the normalising constant.
func (m *Model) LogPosterior(p models.ChangePointParameters, obs *Observations) float64 {
	lp := m.LogPrior(p, obs.n)
	if math.IsInf(lp, -1) || math.IsNaN(lp) {
		return math.Inf(-1)
	}
	lp += m.LogLikelihood(p, obs)
	if math.IsNaN(lp) {
		return math.Inf(-1)
	}
	return lp
}
