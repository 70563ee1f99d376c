package changepoint

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"BrentShift/internal/domain/models"
)

// parameter extractors used by diagnostics and summaries, keyed by report name.
var paramExtractors = map[string]func(models.ChangePointParameters) float64{
	"tau":          func(p models.ChangePointParameters) float64 { return float64(p.Tau) },
	"mu_before":    func(p models.ChangePointParameters) float64 { return p.MuBefore },
	"mu_after":     func(p models.ChangePointParameters) float64 { return p.MuAfter },
	"sigma_before": func(p models.ChangePointParameters) float64 { return p.SigmaBefore },
	"sigma_after":  func(p models.ChangePointParameters) float64 { return p.SigmaAfter },
}

func paramNames() []string {
	names := make([]string, 0, len(paramExtractors))
	for k := range paramExtractors {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// draws returns the post burn-in values of one parameter, one slice per chain.
func draws(chains []models.Chain, burnIn int, name string) [][]float64 {
	f := paramExtractors[name]
	out := make([][]float64, 0, len(chains))
	for _, ch := range chains {
		if burnIn >= len(ch.Samples) {
			out = append(out, nil)
			continue
		}
		xs := make([]float64, 0, len(ch.Samples)-burnIn)
		for _, s := range ch.Samples[burnIn:] {
			xs = append(xs, f(s.Params))
		}
		out = append(out, xs)
	}
	return out
}

// RHat is the Gelman-Rubin potential scale reduction factor over equally long chains.
// ok is false when the statistic is undefined, e.g. fewer than two chains or chains frozen
// at different values.
func RHat(chains [][]float64) (float64, bool) {
	m := len(chains)
	if m < 2 {
		return 0, false
	}
	n := len(chains[0])
	for _, c := range chains {
		if len(c) != n {
			return 0, false
		}
	}
	if n < 2 {
		return 0, false
	}

	means := make([]float64, m)
	vars := make([]float64, m)
	for j, c := range chains {
		means[j], vars[j] = stat.MeanVariance(c, nil)
	}
	w := stat.Mean(vars, nil)
	b := float64(n) * stat.Variance(means, nil)

	if w == 0 {
		if b == 0 {
			return 1, true
		}
		return 0, false
	}
	varPlus := float64(n-1)/float64(n)*w + b/float64(n)
	return math.Sqrt(varPlus / w), true
}

// EffectiveSampleSize estimates the number of independent draws in one chain using
// Geyer's initial positive sequence of autocorrelations.
func EffectiveSampleSize(x []float64) float64 {
	n := len(x)
	if n < 4 {
		return float64(n)
	}
	rho := autocorrelation(x)
	if rho == nil {
		return float64(n)
	}
	sum := 0.0
	for lag := 1; lag+1 < n; lag += 2 {
		pair := rho[lag] + rho[lag+1]
		if pair <= 0 {
			break
		}
		sum += pair
	}
	ess := float64(n) / (1 + 2*sum)
	return math.Min(ess, float64(n))
}

// autocorrelation returns rho[k] for k in [0, n) via a zero-padded FFT, or nil for a constant series.
func autocorrelation(x []float64) []float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	m := 1
	for m < 2*n {
		m <<= 1
	}
	padded := make([]float64, m)
	for i, v := range x {
		padded[i] = v - mean
	}
	fft := fourier.NewFFT(m)
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		coeff[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	acov := fft.Sequence(nil, coeff)
	if acov[0] <= 0 {
		return nil
	}
	rho := make([]float64, n)
	for k := range rho {
		rho[k] = acov[k] / acov[0]
	}
	return rho
}

// diagnose combines per-chain health into run-level metadata.
func (s *Sampler) diagnose(chains []models.Chain) models.Diagnostics {
	d := models.Diagnostics{
		Iterations: s.cfg.Iterations,
		BurnIn:     s.cfg.BurnIn,
		NChains:    len(chains),
		ESS:        make(map[string]float64),
	}

	props, acc := 0, 0
	healthy := true
	for _, ch := range chains {
		props += ch.Proposals
		acc += ch.Accepted
		if !ch.Healthy {
			healthy = false
		}
		d.Warnings = append(d.Warnings, ch.Warnings...)
	}
	if props > 0 {
		d.AcceptanceRate = float64(acc) / float64(props)
	}
	d.Converged = healthy

	for _, name := range paramNames() {
		perChain := draws(chains, s.cfg.BurnIn, name)

		ess := 0.0
		for _, xs := range perChain {
			ess += EffectiveSampleSize(xs)
		}
		d.ESS[name] = ess
		if s.cfg.MinESS > 0 && ess < s.cfg.MinESS {
			d.Converged = false
			d.Warnings = append(d.Warnings, fmt.Sprintf("effective sample size of %s is %.0f, below %.0f", name, ess, s.cfg.MinESS))
		}

		if len(chains) < 2 {
			continue
		}
		if d.RHat == nil {
			d.RHat = make(map[string]float64)
		}
		r, ok := RHat(perChain)
		if !ok {
			d.Converged = false
			d.Warnings = append(d.Warnings, fmt.Sprintf("r_hat of %s is undefined: chains are stuck at different values", name))
			continue
		}
		d.RHat[name] = r
		if r >= s.cfg.RHatThreshold {
			d.Converged = false
			d.Warnings = append(d.Warnings, fmt.Sprintf("r_hat of %s is %.3f, not below %.2f", name, r, s.cfg.RHatThreshold))
		}
	}
	return d
}
