package changepoint

import (
	"math"
	"testing"
	"time"

	"BrentShift/internal/domain/models"
)

func TestCompareRegimes(t *testing.T) {
	start := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	raw := []float64{50, 51, 52, 53, 40, 41, 42}
	prices := make([]models.PricePoint, len(raw))
	for i, p := range raw {
		prices[i] = models.PricePoint{Date: start.AddDate(0, 0, i), Price: p}
	}
	values := make([]float64, len(raw)-1)
	dates := make([]time.Time, len(raw)-1)
	for i := range values {
		values[i] = math.Log(raw[i+1] / raw[i])
		dates[i] = prices[i+1].Date
	}
	returns := models.ReturnSeries{Dates: dates, Values: values}

	regs := CompareRegimes(returns, prices, []models.ChangePoint{{Index: 3}})
	if len(regs) != 2 {
		t.Fatalf("expected 2 regimes, got %d", len(regs))
	}
	first, second := regs[0], regs[1]
	if first.Count != 3 || second.Count != 3 {
		t.Fatalf("counts %d and %d", first.Count, second.Count)
	}
	if !first.Start.Equal(dates[0]) || !second.End.Equal(dates[5]) {
		t.Fatalf("unexpected regime bounds %v %v", first.Start, second.End)
	}
	if math.Abs(first.MeanPrice-52) > 1e-12 || math.Abs(second.MeanPrice-41) > 1e-12 {
		t.Fatalf("mean prices %v and %v", first.MeanPrice, second.MeanPrice)
	}
	if want := (41.0/52 - 1) * 100; math.Abs(second.PriceChangePct-want) > 1e-9 {
		t.Fatalf("price change %v, want %v", second.PriceChangePct, want)
	}
	if first.MeanCILow > first.Mean || first.MeanCIHigh < first.Mean {
		t.Fatalf("mean outside its interval: %+v", first)
	}
}

func TestCompareRegimesIgnoresOutOfRangeChangePoints(t *testing.T) {
	returns := models.ReturnSeries{Values: []float64{0.1, -0.1, 0.2}}
	regs := CompareRegimes(returns, nil, []models.ChangePoint{{Index: 0}, {Index: 3}, {Index: 9}})
	if len(regs) != 1 || regs[0].Count != 3 {
		t.Fatalf("expected a single regime, got %+v", regs)
	}
	if regs[0].MeanPrice != 0 {
		t.Fatalf("mean price needs prices, got %v", regs[0].MeanPrice)
	}
}
