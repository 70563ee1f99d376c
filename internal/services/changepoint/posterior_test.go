package changepoint

import (
	"errors"
	"math"
	"testing"

	"BrentShift/internal/domain/models"
	domsvc "BrentShift/internal/domain/service"
)

// chainOf builds a chain whose post burn-in draws visit the given taus in order.
func chainOf(idx int, taus ...int) models.Chain {
	ch := models.Chain{Index: idx, SeriesLength: 30}
	for i, tau := range taus {
		ch.Samples = append(ch.Samples, models.Sample{
			Iteration: i,
			Params:    models.ChangePointParameters{Tau: tau, MuBefore: 0.001 * float64(i), MuAfter: 0.01, SigmaBefore: 0.01, SigmaAfter: 0.02},
			Accepted:  i > 0 && taus[i-1] != tau,
		})
		if i > 0 && taus[i-1] != tau {
			ch.Accepted++
		}
		ch.Proposals++
	}
	return ch
}

func TestSummarizeCredibleInterval(t *testing.T) {
	// distribution: 10:0.1 11:0.2 12:0.4 13:0.2 20:0.1
	ch := chainOf(0, 10, 11, 11, 12, 12, 12, 12, 13, 13, 20)

	cases := []struct {
		level     float64
		low, high int
	}{
		{0.5, 11, 12},
		{0.8, 11, 13},
		{0.9, 10, 13},
		{1, 10, 20},
	}
	for _, tc := range cases {
		s, err := Summarize([]models.Chain{ch}, 0, tc.level)
		if err != nil {
			t.Fatalf("level %v: %v", tc.level, err)
		}
		if s.MapIndex != 12 {
			t.Fatalf("map index %d, want 12", s.MapIndex)
		}
		if s.CredibleLow != tc.low || s.CredibleHigh != tc.high {
			t.Fatalf("level %v: interval [%d, %d], want [%d, %d]", tc.level, s.CredibleLow, s.CredibleHigh, tc.low, tc.high)
		}
	}
}

func TestSummarizeDistributionAndMeans(t *testing.T) {
	a := chainOf(0, 3, 4, 4, 5, 5, 5)
	b := chainOf(1, 5, 5, 6, 6, 5, 4)
	s, err := Summarize([]models.Chain{a, b}, 2, 0.95)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	total := 0.0
	for _, p := range s.IndexDistribution {
		total += p
	}
	if math.Abs(total-1) > 1e-12 {
		t.Fatalf("index distribution sums to %v", total)
	}
	if s.Draws != 8 {
		t.Fatalf("draws %d, want 8", s.Draws)
	}
	if s.MapIndex != 5 || math.Abs(s.Probability(5)-0.5) > 1e-12 {
		t.Fatalf("map %d with probability %v", s.MapIndex, s.Probability(5))
	}
	if math.Abs(s.MeanAfter-0.01) > 1e-12 || math.Abs(s.MeanSigmaAfter-0.02) > 1e-12 {
		t.Fatalf("unexpected posterior means %+v", s)
	}
	if s.CredibleLow > s.MapIndex || s.CredibleHigh < s.MapIndex {
		t.Fatalf("interval [%d, %d] excludes the map index", s.CredibleLow, s.CredibleHigh)
	}
}

func TestSummarizeMapTieTakesSmallestIndex(t *testing.T) {
	s, err := Summarize([]models.Chain{chainOf(0, 7, 5, 7, 5)}, 0, 0.5)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.MapIndex != 5 {
		t.Fatalf("map index %d, want 5", s.MapIndex)
	}
}

func TestCredibleWidthGrowsWithLevel(t *testing.T) {
	ch := chainOf(0, 1, 2, 3, 3, 4, 4, 4, 4, 5, 5, 6, 9, 15, 15, 4, 4, 3, 5, 4, 2)
	s, err := Summarize([]models.Chain{ch}, 0, 0.5)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	prev := -1
	for _, level := range []float64{0.1, 0.3, 0.5, 0.7, 0.8, 0.9, 0.95, 0.99, 1} {
		low, high, err := CredibleInterval(s, level)
		if err != nil {
			t.Fatalf("level %v: %v", level, err)
		}
		if low > s.MapIndex || high < s.MapIndex {
			t.Fatalf("level %v: [%d, %d] excludes map %d", level, low, high, s.MapIndex)
		}
		if w := high - low; w < prev {
			t.Fatalf("level %v: width %d shrank from %d", level, w, prev)
		} else {
			prev = w
		}
	}
	if _, _, err := CredibleInterval(s, 1.5); !errors.Is(err, domsvc.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSummarizeFailures(t *testing.T) {
	ch := chainOf(0, 4, 5, 6)
	if _, err := Summarize([]models.Chain{ch}, 3, 0.95); !errors.Is(err, domsvc.ErrInsufficientSamples) {
		t.Fatalf("expected insufficient samples, got %v", err)
	}
	if _, err := Summarize(nil, 0, 0.95); !errors.Is(err, domsvc.ErrInsufficientSamples) {
		t.Fatalf("expected insufficient samples for no chains, got %v", err)
	}
	if _, err := Summarize([]models.Chain{ch}, 0, 0); !errors.Is(err, domsvc.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	frozen := chainOf(0, 8, 8, 8, 8)
	if _, err := Summarize([]models.Chain{frozen}, 1, 0.95); !errors.Is(err, domsvc.ErrEmptyChain) {
		t.Fatalf("expected empty chain, got %v", err)
	}
}
