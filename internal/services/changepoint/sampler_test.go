package changepoint

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"

	domsvc "BrentShift/internal/domain/service"
)

type regime struct {
	n         int
	mu, sigma float64
}

// synthetic builds returns that alternate mu±sigma, so every regime has exactly the requested
// mean and standard deviation.
func synthetic(regimes ...regime) []float64 {
	var out []float64
	for _, r := range regimes {
		for i := 0; i < r.n; i++ {
			sign := 1.0
			if len(out)%2 == 1 {
				sign = -1
			}
			out = append(out, r.mu+sign*r.sigma)
		}
	}
	return out
}

func testConfig(chains int) Config {
	cfg := DefaultConfig()
	cfg.Iterations = 4000
	cfg.BurnIn = 1000
	cfg.Chains = chains
	cfg.Seed = 11
	cfg.Steps = StepSizes{Mu: 0.002, Sigma: 0.002, Tau: 5}
	return cfg
}

func newTestSampler(t *testing.T, kind ModelKind, cfg Config) *Sampler {
	t.Helper()
	m, err := NewModel(kind, DefaultPriors())
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	s, err := NewSampler(m, cfg, nil)
	if err != nil {
		t.Fatalf("new sampler: %v", err)
	}
	return s
}

func TestSamplerRecoversKnownChangePoint(t *testing.T) {
	returns := synthetic(regime{50, 0, 0.01}, regime{50, 0.01, 0.01})
	cfg := testConfig(2)
	s := newTestSampler(t, KindFull, cfg)

	trace, err := s.Run(context.Background(), returns)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	rate := trace.Diagnostics.AcceptanceRate
	if rate <= 0.05 || rate >= 0.70 {
		t.Fatalf("acceptance rate %v outside (0.05, 0.70)", rate)
	}

	sum, err := Summarize(trace.Chains, cfg.BurnIn, 0.95)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.CredibleLow > 50 || sum.CredibleHigh < 50 {
		t.Fatalf("credible interval [%d, %d] misses the true change point", sum.CredibleLow, sum.CredibleHigh)
	}
	if d := sum.MapIndex - 50; d < -3 || d > 3 {
		t.Fatalf("map index %d too far from 50", sum.MapIndex)
	}
	if sum.MeanAfter-sum.MeanBefore < 0.005 {
		t.Fatalf("expected an upward mean shift, got %v -> %v", sum.MeanBefore, sum.MeanAfter)
	}
}

func TestSamplerIsReproducible(t *testing.T) {
	returns := synthetic(regime{40, 0, 0.01}, regime{40, 0.01, 0.02})
	cfg := testConfig(3)
	cfg.Iterations, cfg.BurnIn = 800, 200

	a, err := newTestSampler(t, KindFull, cfg).Run(context.Background(), returns)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := newTestSampler(t, KindFull, cfg).Run(context.Background(), returns)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !reflect.DeepEqual(a.Chains, b.Chains) {
		t.Fatalf("identical seeds produced different chains")
	}

	cfg.Seed++
	c, err := newTestSampler(t, KindFull, cfg).Run(context.Background(), returns)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if reflect.DeepEqual(a.Chains, c.Chains) {
		t.Fatalf("different seeds produced identical chains")
	}
}

func TestSamplerStreamsDoNotOverlap(t *testing.T) {
	returns := synthetic(regime{40, 0, 0.01}, regime{40, 0.01, 0.02})
	cfg := testConfig(2)
	cfg.Iterations, cfg.BurnIn = 400, 100
	base := newTestSampler(t, KindFull, cfg)

	// neighbouring segment keys: chain 1 of one must not replay chain 0 of the next
	a, err := base.WithStream(201).Run(context.Background(), returns)
	if err != nil {
		t.Fatalf("stream 201: %v", err)
	}
	b, err := base.WithStream(202).Run(context.Background(), returns)
	if err != nil {
		t.Fatalf("stream 202: %v", err)
	}
	if reflect.DeepEqual(a.Chains[1].Samples, b.Chains[0].Samples) {
		t.Fatalf("chain 1 of stream 201 repeats chain 0 of stream 202")
	}
	if reflect.DeepEqual(a.Chains[0].Samples, b.Chains[0].Samples) {
		t.Fatalf("different streams produced identical chains")
	}

	again, err := base.WithStream(201).Run(context.Background(), returns)
	if err != nil {
		t.Fatalf("stream 201 again: %v", err)
	}
	if !reflect.DeepEqual(a.Chains, again.Chains) {
		t.Fatalf("same stream produced different chains")
	}
}

func TestSamplerRestrictedModelsKeepTiesInEveryDraw(t *testing.T) {
	returns := synthetic(regime{40, 0, 0.01}, regime{40, 0.01, 0.01})
	cfg := testConfig(2)
	cfg.Iterations, cfg.BurnIn = 600, 100

	for _, kind := range []ModelKind{KindMeanShift, KindVolatilityShift} {
		trace, err := newTestSampler(t, kind, cfg).Run(context.Background(), returns)
		if err != nil {
			t.Fatalf("%s: run: %v", kind, err)
		}
		for _, ch := range trace.Chains {
			for _, smp := range ch.Samples {
				p := smp.Params
				if kind == KindMeanShift && p.SigmaBefore != p.SigmaAfter {
					t.Fatalf("%s: sigmas diverged at iteration %d", kind, smp.Iteration)
				}
				if kind == KindVolatilityShift && p.MuBefore != p.MuAfter {
					t.Fatalf("%s: means diverged at iteration %d", kind, smp.Iteration)
				}
			}
		}
	}
}

func TestSamplerConfigValidation(t *testing.T) {
	m, _ := NewModel(KindFull, DefaultPriors())
	cases := map[string]func(c *Config){
		"burn-in equals iterations": func(c *Config) { c.BurnIn = c.Iterations },
		"zero iterations":           func(c *Config) { c.Iterations = 0 },
		"negative burn-in":          func(c *Config) { c.BurnIn = -1 },
		"zero mu step":              func(c *Config) { c.Steps.Mu = 0 },
		"zero tau step":             func(c *Config) { c.Steps.Tau = 0 },
		"no chains":                 func(c *Config) { c.Chains = 0 },
		"inverted band":             func(c *Config) { c.AcceptanceLow, c.AcceptanceHigh = 0.8, 0.2 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if _, err := NewSampler(m, cfg, nil); !errors.Is(err, domsvc.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
}

func TestSamplerRejectsInvalidReturns(t *testing.T) {
	s := newTestSampler(t, KindFull, testConfig(1))
	for name, returns := range map[string][]float64{
		"empty":  nil,
		"single": {0.01},
		"nan":    {0.01, math.NaN(), 0.02},
		"inf":    {0.01, math.Inf(1), 0.02},
	} {
		if _, err := s.Run(context.Background(), returns); !errors.Is(err, domsvc.ErrDomain) {
			t.Fatalf("%s: expected domain error, got %v", name, err)
		}
	}
}

func TestSamplerStopsOnCancellation(t *testing.T) {
	s := newTestSampler(t, KindFull, testConfig(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trace, err := s.Run(ctx, synthetic(regime{100, 0, 0.01}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if trace != nil {
		t.Fatalf("cancelled run should not return chains")
	}
}

func TestSamplerReportsUnhealthyAcceptance(t *testing.T) {
	cfg := testConfig(2)
	cfg.Iterations, cfg.BurnIn = 500, 100
	cfg.AcceptanceLow, cfg.AcceptanceHigh = 0.95, 1
	s := newTestSampler(t, KindFull, cfg)

	trace, err := s.Run(context.Background(), synthetic(regime{30, 0, 0.01}, regime{30, 0.02, 0.01}))
	if err != nil {
		t.Fatalf("an unhealthy chain must not be an error: %v", err)
	}
	if trace.Diagnostics.Converged {
		t.Fatalf("expected converged=false")
	}
	if len(trace.Diagnostics.Warnings) == 0 {
		t.Fatalf("expected acceptance warnings")
	}
	for _, ch := range trace.Chains {
		if ch.Healthy || len(ch.Samples) != cfg.Iterations {
			t.Fatalf("chain %d: healthy=%v samples=%d", ch.Index, ch.Healthy, len(ch.Samples))
		}
	}
}

func TestProposeTauStaysInRange(t *testing.T) {
	s := newTestSampler(t, KindFull, testConfig(1))
	rng := rand.New(rand.NewPCG(1, 2))
	const n = 12
	for tau := 1; tau < n; tau++ {
		for i := 0; i < 200; i++ {
			got := s.proposeTau(rng, tau, n)
			if got < 1 || got > n-1 {
				t.Fatalf("tau %d proposed %d outside [1, %d]", tau, got, n-1)
			}
		}
	}
}

func TestProposeTauIsSymmetricAtEdges(t *testing.T) {
	s := newTestSampler(t, KindFull, testConfig(1))
	rng := rand.New(rand.NewPCG(7, 8))
	const (
		n     = 40
		k     = 5
		draws = 200000
	)
	freq := func(from, to int) float64 {
		hits := 0
		for i := 0; i < draws; i++ {
			if s.proposeTau(rng, from, n) == to {
				hits++
			}
		}
		return float64(hits) / draws
	}
	cases := []struct{ a, b int }{
		{1, 2},
		{1, 3},
		{1, 1 + k},
		{2, 4},
		{n - 1, n - 3},
		{n - 1, n - 1 - k},
		{n - 2, n - 1},
	}
	for _, tc := range cases {
		ab, ba := freq(tc.a, tc.b), freq(tc.b, tc.a)
		if ab == 0 {
			t.Fatalf("q(%d->%d) is zero", tc.a, tc.b)
		}
		if math.Abs(ab-ba) > 0.01 {
			t.Fatalf("q(%d->%d)=%.4f but q(%d->%d)=%.4f", tc.a, tc.b, ab, tc.b, tc.a, ba)
		}
	}
	// the edge keeps its mass: a reflected step from 1 may stay at 1
	if stay := freq(1, 1); math.Abs(stay-0.1) > 0.01 {
		t.Fatalf("q(1->1)=%.4f, want about 0.1", stay)
	}
}

func TestRegimeJumpProducesValidProposals(t *testing.T) {
	returns := synthetic(regime{30, 0, 0.01}, regime{30, 0.01, 0.02})
	obs := NewObservations(returns)
	rng := rand.New(rand.NewPCG(3, 4))
	for _, kind := range []ModelKind{KindFull, KindMeanShift, KindVolatilityShift} {
		s := newTestSampler(t, kind, testConfig(1))
		cur := s.initialState(rng, returns, 0)
		for i := 0; i < 200; i++ {
			prop, logQ := s.regimeJump(rng, obs, cur)
			if prop.Tau < 1 || prop.Tau >= len(returns) {
				t.Fatalf("%s: jump to tau %d", kind, prop.Tau)
			}
			if math.IsNaN(logQ) || math.IsInf(logQ, 0) {
				t.Fatalf("%s: non-finite hastings correction %v", kind, logQ)
			}
			if math.IsInf(s.model.LogPosterior(prop, obs), -1) {
				t.Fatalf("%s: jump produced an impossible state %+v", kind, prop)
			}
			cur = prop
		}
	}
}
