package changepoint

import (
	"math"
	"math/rand/v2"

	"BrentShift/internal/domain/models"
)

// jumpSpread inflates the proposal spread relative to the asymptotic posterior spread.
const jumpSpread = 1.5

// regimeFit is the data-driven proposal used by the regime jump: for a given tau it centres
// each free parameter on the empirical moments of the two segments.
type regimeFit struct {
	muB, muA, sdB, sdA     float64 // centres
	wMuB, wMuA, wSdB, wSdA float64 // spreads; sigma spreads are on the log scale
}

func (s *Sampler) fitRegimes(obs *Observations, tau int) regimeFit {
	n := obs.Len()
	floor := obs.sd
	if !(floor > 1e-12) {
		floor = 1e-3
	}
	safe := func(sd float64) float64 {
		if sd < 1e-12 {
			return floor
		}
		return sd
	}

	nb, na, nt := float64(tau), float64(n-tau), float64(n)
	mb, sb := obs.moments(0, tau)
	ma, sa := obs.moments(tau, n)
	f := regimeFit{muB: mb, muA: ma, sdB: safe(sb), sdA: safe(sa)}

	switch s.model.Kind() {
	case KindMeanShift:
		pooled := safe(math.Sqrt((nb*sb*sb + na*sa*sa) / nt))
		f.sdB, f.sdA = pooled, pooled
		f.wSdB = jumpSpread / math.Sqrt(2*nt)
		f.wSdA = f.wSdB
		f.wMuB = jumpSpread * pooled / math.Sqrt(nb)
		f.wMuA = jumpSpread * pooled / math.Sqrt(na)
	case KindVolatilityShift:
		mean, _ := obs.moments(0, n)
		f.muB, f.muA = mean, mean
		f.sdB = safe(math.Sqrt(sb*sb + (mb-mean)*(mb-mean)))
		f.sdA = safe(math.Sqrt(sa*sa + (ma-mean)*(ma-mean)))
		f.wMuB = jumpSpread * floor / math.Sqrt(nt)
		f.wMuA = f.wMuB
		f.wSdB = jumpSpread / math.Sqrt(2*nb)
		f.wSdA = jumpSpread / math.Sqrt(2*na)
	default:
		f.wMuB = jumpSpread * f.sdB / math.Sqrt(nb)
		f.wMuA = jumpSpread * f.sdA / math.Sqrt(na)
		f.wSdB = jumpSpread / math.Sqrt(2*nb)
		f.wSdA = jumpSpread / math.Sqrt(2*na)
	}
	return f
}

func logNormalPDF(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return -0.5*math.Log(2*math.Pi) - math.Log(sigma) - 0.5*z*z
}

// logSigmaPDF is the log-normal density of a positive scale parameter.
func logSigmaPDF(x, centre, w float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return logNormalPDF(math.Log(x), math.Log(centre), w) - math.Log(x)
}

// logDensity evaluates the proposal density of the free parameters of p.
func (s *Sampler) logDensity(f regimeFit, p models.ChangePointParameters) float64 {
	lg := logNormalPDF(p.MuBefore, f.muB, f.wMuB) + logSigmaPDF(p.SigmaBefore, f.sdB, f.wSdB)
	if s.model.Kind() != KindVolatilityShift {
		lg += logNormalPDF(p.MuAfter, f.muA, f.wMuA)
	}
	if s.model.Kind() != KindMeanShift {
		lg += logSigmaPDF(p.SigmaAfter, f.sdA, f.wSdA)
	}
	return lg
}

// regimeJump proposes a uniform tau together with regime parameters drawn around the moments of
// the new split. It returns the proposal and the Hastings correction log q(cur|prop) - log q(prop|cur).
func (s *Sampler) regimeJump(rng *rand.Rand, obs *Observations, cur models.ChangePointParameters) (models.ChangePointParameters, float64) {
	n := obs.Len()
	tau := 1 + rng.IntN(n-1)
	f := s.fitRegimes(obs, tau)

	prop := models.ChangePointParameters{
		Tau:         tau,
		MuBefore:    f.muB + f.wMuB*rng.NormFloat64(),
		MuAfter:     f.muA + f.wMuA*rng.NormFloat64(),
		SigmaBefore: f.sdB * math.Exp(f.wSdB*rng.NormFloat64()),
		SigmaAfter:  f.sdA * math.Exp(f.wSdA*rng.NormFloat64()),
	}
	prop = s.model.Tie(prop)

	back := s.logDensity(s.fitRegimes(obs, cur.Tau), cur)
	fwd := s.logDensity(f, prop)
	return prop, back - fwd
}
