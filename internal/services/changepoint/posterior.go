package changepoint

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"BrentShift/internal/domain/models"
	domsvc "BrentShift/internal/domain/service"
)

const massTolerance = 1e-9

// Summarize pools the post burn-in draws of the given chains into a posterior summary.
// Chains must come from one run over the same series.
func Summarize(chains []models.Chain, burnIn int, level float64) (*models.PosteriorSummary, error) {
	if !(level > 0) || level > 1 {
		return nil, fmt.Errorf("%w: credible level must be in (0, 1], got %v", domsvc.ErrConfiguration, level)
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("%w: no chains", domsvc.ErrInsufficientSamples)
	}
	if burnIn < 0 {
		return nil, fmt.Errorf("%w: negative burn-in %d", domsvc.ErrConfiguration, burnIn)
	}
	for _, ch := range chains {
		if burnIn >= len(ch.Samples) {
			return nil, fmt.Errorf("%w: burn-in %d leaves no draws from chain %d of length %d",
				domsvc.ErrInsufficientSamples, burnIn, ch.Index, len(ch.Samples))
		}
		if !hasMovement(ch) {
			return nil, fmt.Errorf("%w: chain %d never accepted a proposal", domsvc.ErrEmptyChain, ch.Index)
		}
	}

	counts := make(map[int]int)
	var muB, muA, sdB, sdA, taus []float64
	for _, ch := range chains {
		for _, s := range ch.Samples[burnIn:] {
			p := s.Params
			counts[p.Tau]++
			taus = append(taus, float64(p.Tau))
			muB = append(muB, p.MuBefore)
			muA = append(muA, p.MuAfter)
			sdB = append(sdB, p.SigmaBefore)
			sdA = append(sdA, p.SigmaAfter)
		}
	}
	total := len(taus)

	dist := make(map[int]float64, len(counts))
	for idx, c := range counts {
		dist[idx] = float64(c) / float64(total)
	}

	support := make([]int, 0, len(dist))
	for idx := range dist {
		support = append(support, idx)
	}
	sort.Ints(support)

	mapIdx := support[0]
	for _, idx := range support[1:] {
		if counts[idx] > counts[mapIdx] {
			mapIdx = idx
		}
	}
	low, high := credibleInterval(support, dist, mapIdx, level)

	return &models.PosteriorSummary{
		IndexDistribution: dist,
		MapIndex:          mapIdx,
		CredibleLevel:     level,
		CredibleLow:       low,
		CredibleHigh:      high,
		MeanTau:           stat.Mean(taus, nil),
		MeanBefore:        stat.Mean(muB, nil),
		MeanAfter:         stat.Mean(muA, nil),
		MeanSigmaBefore:   stat.Mean(sdB, nil),
		MeanSigmaAfter:    stat.Mean(sdA, nil),
		MuBeforeInterval:  percentileInterval(muB, 0.025, 0.975),
		MuAfterInterval:   percentileInterval(muA, 0.025, 0.975),
		Draws:             total,
	}, nil
}

func hasMovement(ch models.Chain) bool {
	if ch.Accepted > 0 {
		return true
	}
	for _, s := range ch.Samples {
		if s.Accepted {
			return true
		}
	}
	return false
}

// CredibleInterval recomputes the interval of an existing summary at another level.
func CredibleInterval(s *models.PosteriorSummary, level float64) (int, int, error) {
	if !(level > 0) || level > 1 {
		return 0, 0, fmt.Errorf("%w: credible level must be in (0, 1], got %v", domsvc.ErrConfiguration, level)
	}
	support := make([]int, 0, len(s.IndexDistribution))
	for idx := range s.IndexDistribution {
		support = append(support, idx)
	}
	sort.Ints(support)
	low, high := credibleInterval(support, s.IndexDistribution, s.MapIndex, level)
	return low, high, nil
}

// credibleInterval finds the shortest contiguous index range containing mapIdx whose mass
// reaches level. Ties prefer the larger mass, then the lower start.
func credibleInterval(support []int, dist map[int]float64, mapIdx int, level float64) (int, int) {
	m := sort.SearchInts(support, mapIdx)
	prefix := make([]float64, len(support)+1)
	for i, idx := range support {
		prefix[i+1] = prefix[i] + dist[idx]
	}

	bestL, bestR := 0, len(support)-1
	bestWidth := support[bestR] - support[bestL]
	bestMass := prefix[len(support)]
	r := m
	// for each left end, the minimal right end reaching the level only moves right as l grows
	for l := 0; l <= m; l++ {
		if r < m {
			r = m
		}
		for r < len(support)-1 && prefix[r+1]-prefix[l] < level-massTolerance {
			r++
		}
		mass := prefix[r+1] - prefix[l]
		if mass < level-massTolerance {
			break
		}
		width := support[r] - support[l]
		if width < bestWidth || (width == bestWidth && mass > bestMass+massTolerance) {
			bestL, bestR, bestWidth, bestMass = l, r, width, mass
		}
	}
	return support[bestL], support[bestR]
}

func percentileInterval(xs []float64, lo, hi float64) [2]float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	a := stat.Quantile(lo, stat.Empirical, sorted, nil)
	b := stat.Quantile(hi, stat.Empirical, sorted, nil)
	if math.IsNaN(a) || math.IsNaN(b) {
		return [2]float64{}
	}
	return [2]float64{a, b}
}
