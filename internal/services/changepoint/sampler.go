package changepoint

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"BrentShift/internal/domain/models"
	domsvc "BrentShift/internal/domain/service"
	"BrentShift/pkg/logger"
)

const (
	adaptWindow     = 50
	targetAccept    = 0.44
	minStep         = 1e-10
	streamIncrement = 0x9e3779b97f4a7c15
)

// StepSizes are the random-walk scales. Mu and Sigma are Gaussian step deviations,
// Tau is the maximum absolute jump of the discrete walk.
type StepSizes struct {
	Mu    float64
	Sigma float64
	Tau   int
}

// Config controls one sampler run.
type Config struct {
	Iterations int
	BurnIn     int
	Steps      StepSizes
	Seed       uint64
	Chains     int

	// TauJumpProb is the probability of replacing the local tau walk by a regime jump: a uniform tau
	// with regime parameters redrawn around the moments of the new split.
	TauJumpProb float64
	// Adapt scales continuous step sizes toward a 0.44 acceptance rate during burn-in only.
	Adapt bool

	AcceptanceLow  float64
	AcceptanceHigh float64
	RHatThreshold  float64
	MinESS         float64
}

// DefaultConfig returns a configuration suitable for a few thousand daily returns.
func DefaultConfig() Config {
	return Config{
		Iterations:     20000,
		BurnIn:         5000,
		Steps:          StepSizes{Mu: 0.001, Sigma: 0.001, Tau: 10},
		Seed:           42,
		Chains:         4,
		TauJumpProb:    0.1,
		Adapt:          true,
		AcceptanceLow:  0.05,
		AcceptanceHigh: 0.70,
		RHatThreshold:  1.1,
	}
}

// Validate rejects configurations before any sampling starts.
func (c Config) Validate() error {
	switch {
	case c.Iterations <= 0:
		return fmt.Errorf("%w: iterations must be positive, got %d", domsvc.ErrConfiguration, c.Iterations)
	case c.BurnIn < 0:
		return fmt.Errorf("%w: burn_in must be non-negative, got %d", domsvc.ErrConfiguration, c.BurnIn)
	case c.BurnIn >= c.Iterations:
		return fmt.Errorf("%w: burn_in (%d) must be smaller than iterations (%d)", domsvc.ErrConfiguration, c.BurnIn, c.Iterations)
	case !(c.Steps.Mu > 0) || !(c.Steps.Sigma > 0) || c.Steps.Tau < 1:
		return fmt.Errorf("%w: step sizes must be positive", domsvc.ErrConfiguration)
	case c.Chains < 1:
		return fmt.Errorf("%w: chains must be at least 1, got %d", domsvc.ErrConfiguration, c.Chains)
	case c.TauJumpProb < 0 || c.TauJumpProb >= 1:
		return fmt.Errorf("%w: tau_jump_prob must be in [0, 1)", domsvc.ErrConfiguration)
	case c.AcceptanceLow < 0 || c.AcceptanceHigh > 1 || c.AcceptanceLow >= c.AcceptanceHigh:
		return fmt.Errorf("%w: invalid acceptance band [%v, %v]", domsvc.ErrConfiguration, c.AcceptanceLow, c.AcceptanceHigh)
	}
	return nil
}

// Sampler draws posterior samples of the change-point model with Metropolis-within-Gibbs updates.
type Sampler struct {
	model *Model
	cfg   Config
	log   *logger.Logger

	// stream selects the PCG sequence; chains vary the state seed, so (stream, chain) pairs never share a generator.
	stream uint64
}

// NewSampler validates cfg and binds it to model.
func NewSampler(model *Model, cfg Config, log *logger.Logger) (*Sampler, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", domsvc.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RHatThreshold <= 1 {
		cfg.RHatThreshold = 1.1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sampler{model: model, cfg: cfg, log: log}, nil
}

func (s *Sampler) Config() Config { return s.cfg }

func (s *Sampler) Model() *Model { return s.model }

// WithStream returns a copy of the sampler drawing from generator sequence key.
// The seed is unchanged.
func (s *Sampler) WithStream(key uint64) *Sampler {
	cp := *s
	cp.stream = key
	return &cp
}

// Run samples every configured chain in parallel and merges them only after all finish.
// Cancellation is observed between iterations; a cancelled run returns no chains.
func (s *Sampler) Run(ctx context.Context, returns []float64) (*models.Trace, error) {
	if len(returns) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 returns to place a change point, got %d", domsvc.ErrDomain, len(returns))
	}
	for i, x := range returns {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: return %d is not finite", domsvc.ErrDomain, i)
		}
	}

	start := time.Now()
	obs := NewObservations(returns)
	chains := make([]models.Chain, s.cfg.Chains)

	g, gctx := errgroup.WithContext(ctx)
	for c := 0; c < s.cfg.Chains; c++ {
		g.Go(func() error {
			ch, err := s.runChain(gctx, obs, returns, c)
			if err != nil {
				return err
			}
			chains[c] = ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sample chains: %w", err)
	}

	trace := &models.Trace{Chains: chains}
	trace.Diagnostics = s.diagnose(chains)

	s.log.Debug("sampler run finished",
		logger.Int("returns", len(returns)),
		logger.Int("chains", s.cfg.Chains),
		logger.Float64("acceptance_rate", trace.Diagnostics.AcceptanceRate),
		logger.Bool("converged", trace.Diagnostics.Converged),
		logger.Duration("elapsed_ms", time.Since(start)),
	)
	return trace, nil
}

// param identifies one continuous block of the state.
type param int

const (
	pMuBefore param = iota
	pMuAfter
	pSigmaBefore
	pSigmaAfter
	numParams
)

func (s *Sampler) activeParams() []param {
	switch s.model.Kind() {
	case KindMeanShift:
		return []param{pMuBefore, pMuAfter, pSigmaBefore}
	case KindVolatilityShift:
		return []param{pMuBefore, pSigmaBefore, pSigmaAfter}
	default:
		return []param{pMuBefore, pMuAfter, pSigmaBefore, pSigmaAfter}
	}
}

// chainState is owned by exactly one goroutine.
type chainState struct {
	rng   *rand.Rand
	cur   models.ChangePointParameters
	curLP float64
	steps [numParams]float64

	proposals, accepted int
	winProp, winAcc     [numParams]int
}

func (s *Sampler) runChain(ctx context.Context, obs *Observations, returns []float64, idx int) (models.Chain, error) {
	seed := s.cfg.Seed + uint64(idx)
	st := &chainState{rng: rand.New(rand.NewPCG(seed, streamIncrement+s.stream))}
	st.steps[pMuBefore], st.steps[pMuAfter] = s.cfg.Steps.Mu, s.cfg.Steps.Mu
	st.steps[pSigmaBefore], st.steps[pSigmaAfter] = s.cfg.Steps.Sigma, s.cfg.Steps.Sigma
	st.cur = s.initialState(st.rng, returns, idx)
	st.curLP = s.model.LogPosterior(st.cur, obs)

	n := obs.Len()
	active := s.activeParams()
	samples := make([]models.Sample, 0, s.cfg.Iterations)

	for it := 0; it < s.cfg.Iterations; it++ {
		if err := ctx.Err(); err != nil {
			return models.Chain{}, err
		}

		moved := false
		if n > 2 && s.cfg.TauJumpProb > 0 && st.rng.Float64() < s.cfg.TauJumpProb {
			prop, logQ := s.regimeJump(st.rng, obs, st.cur)
			moved = s.accept(st, prop, obs, logQ)
		} else {
			prop := st.cur
			prop.Tau = s.proposeTau(st.rng, st.cur.Tau, n)
			moved = s.accept(st, prop, obs, 0)
		}

		for _, p := range active {
			prop := st.cur
			delta := st.steps[p] * st.rng.NormFloat64()
			switch p {
			case pMuBefore:
				prop.MuBefore += delta
			case pMuAfter:
				prop.MuAfter += delta
			case pSigmaBefore:
				prop.SigmaBefore += delta
			case pSigmaAfter:
				prop.SigmaAfter += delta
			}
			prop = s.model.Tie(prop)
			st.winProp[p]++
			if s.accept(st, prop, obs, 0) {
				st.winAcc[p]++
				moved = true
			}
		}

		samples = append(samples, models.Sample{Iteration: it, Params: st.cur, Accepted: moved})

		if s.cfg.Adapt && it < s.cfg.BurnIn && (it+1)%adaptWindow == 0 {
			st.adapt(active)
		}
	}

	ch := models.Chain{
		Index:        idx,
		Seed:         seed,
		SeriesLength: n,
		Samples:      samples,
		Proposals:    st.proposals,
		Accepted:     st.accepted,
	}
	if st.proposals > 0 {
		ch.AcceptanceRate = float64(st.accepted) / float64(st.proposals)
	}
	ch.Healthy = ch.AcceptanceRate >= s.cfg.AcceptanceLow && ch.AcceptanceRate <= s.cfg.AcceptanceHigh
	if !ch.Healthy {
		ch.Warnings = append(ch.Warnings, fmt.Sprintf("chain %d acceptance rate %.3f outside [%.2f, %.2f]",
			idx, ch.AcceptanceRate, s.cfg.AcceptanceLow, s.cfg.AcceptanceHigh))
	}
	return ch, nil
}

// accept runs one Metropolis-Hastings test and updates the chain state in place.
// logQ is the Hastings correction; symmetric proposals pass 0.
func (s *Sampler) accept(st *chainState, prop models.ChangePointParameters, obs *Observations, logQ float64) bool {
	st.proposals++
	propLP := s.model.LogPosterior(prop, obs)
	logR := propLP - st.curLP + logQ
	if math.IsNaN(logR) || math.IsInf(propLP, 0) {
		return false
	}
	if logR < 0 && math.Log(st.rng.Float64()) >= logR {
		return false
	}
	st.cur, st.curLP = prop, propLP
	st.accepted++
	return true
}

// proposeTau draws a ±1..k step reflected across the half-integer edges 1/2 and n-1/2,
// so q(i->j) == q(j->i) for every pair inside [1, n-1]. Landing on the current tau is a
// valid stay.
func (s *Sampler) proposeTau(rng *rand.Rand, tau, n int) int {
	if n <= 2 {
		return 1
	}
	d := 1 + rng.IntN(s.cfg.Steps.Tau)
	if rng.IntN(2) == 0 {
		d = -d
	}
	t := tau + d
	if t < 1 {
		t = 1 - t
	} else if t > n-1 {
		t = 2*n - 1 - t
	}
	// out-of-range after one reflection is left for the prior to reject
	return t
}

func (st *chainState) adapt(active []param) {
	for _, p := range active {
		if st.winProp[p] == 0 {
			continue
		}
		rate := float64(st.winAcc[p]) / float64(st.winProp[p])
		st.steps[p] = math.Max(minStep, st.steps[p]*math.Exp(rate-targetAccept))
		st.winProp[p], st.winAcc[p] = 0, 0
	}
}

// initialState spreads tau evenly across chains and jitters the regime parameters around
// the empirical moments of the series.
func (s *Sampler) initialState(rng *rand.Rand, returns []float64, idx int) models.ChangePointParameters {
	n := len(returns)
	mean, std := stat.MeanStdDev(returns, nil)
	if !(std > 0) || math.IsInf(std, 0) {
		std = 1e-3
	}
	tau := (idx + 1) * n / (s.cfg.Chains + 1)
	tau = max(1, min(n-1, tau))

	jitter := 0.0
	if s.cfg.Chains > 1 {
		jitter = 1
	}
	p := models.ChangePointParameters{
		Tau:         tau,
		MuBefore:    mean + jitter*0.1*std*rng.NormFloat64(),
		MuAfter:     mean + jitter*0.1*std*rng.NormFloat64(),
		SigmaBefore: std * math.Exp(jitter*0.2*rng.NormFloat64()),
		SigmaAfter:  std * math.Exp(jitter*0.2*rng.NormFloat64()),
	}
	return s.model.Tie(p)
}
