package changepoint

import (
	"math/rand/v2"
	"testing"
)

func TestRHat(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	noise := func(mean float64, n int) []float64 {
		xs := make([]float64, n)
		for i := range xs {
			xs[i] = mean + rng.NormFloat64()
		}
		return xs
	}

	r, ok := RHat([][]float64{noise(0, 2000), noise(0, 2000), noise(0, 2000)})
	if !ok || r > 1.01 {
		t.Fatalf("mixed chains: r_hat %v ok=%v", r, ok)
	}
	r, ok = RHat([][]float64{noise(0, 500), noise(5, 500)})
	if !ok || r < 1.5 {
		t.Fatalf("separated chains: r_hat %v ok=%v", r, ok)
	}

	if _, ok := RHat([][]float64{noise(0, 100)}); ok {
		t.Fatalf("one chain must be undefined")
	}
	if _, ok := RHat([][]float64{{1, 1, 1}, {2, 2, 2}}); ok {
		t.Fatalf("chains frozen at different values must be undefined")
	}
	if r, ok := RHat([][]float64{{3, 3, 3}, {3, 3, 3}}); !ok || r != 1 {
		t.Fatalf("identical constant chains: r_hat %v ok=%v", r, ok)
	}
	if _, ok := RHat([][]float64{{1, 2, 3}, {1, 2}}); ok {
		t.Fatalf("unequal lengths must be undefined")
	}
}

func TestEffectiveSampleSize(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	const n = 4000

	iid := make([]float64, n)
	for i := range iid {
		iid[i] = rng.NormFloat64()
	}
	if ess := EffectiveSampleSize(iid); ess < 0.6*n {
		t.Fatalf("independent draws: ess %v", ess)
	}

	ar := make([]float64, n)
	for i := 1; i < n; i++ {
		ar[i] = 0.95*ar[i-1] + rng.NormFloat64()
	}
	if ess := EffectiveSampleSize(ar); ess > 0.1*n {
		t.Fatalf("autocorrelated draws: ess %v", ess)
	}

	constant := make([]float64, 50)
	if ess := EffectiveSampleSize(constant); ess != 50 {
		t.Fatalf("constant chain: ess %v, want 50", ess)
	}
}
