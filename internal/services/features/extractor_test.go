package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"BrentShift/internal/domain/models"
	domsvc "BrentShift/internal/domain/service"
)

func series(prices ...float64) []models.PricePoint {
	start := time.Date(1987, 5, 20, 0, 0, 0, 0, time.UTC)
	out := make([]models.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = models.PricePoint{Date: start.AddDate(0, 0, i), Price: p}
	}
	return out
}

func TestComputeLogReturnsTelescopes(t *testing.T) {
	pts := series(18.63, 18.45, 18.55, 18.60, 18.63, 19.01, 17.95, 100.2, 9.12)
	r, err := ComputeLogReturns(pts)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if r.Len() != len(pts)-1 || len(r.Dates) != len(pts)-1 {
		t.Fatalf("expected %d returns, got %d", len(pts)-1, r.Len())
	}
	sum := 0.0
	for _, v := range r.Values {
		sum += v
	}
	want := pts[len(pts)-1].Price / pts[0].Price
	if math.Abs(math.Exp(sum)-want) > 1e-9 {
		t.Fatalf("exp(sum) = %v, want %v", math.Exp(sum), want)
	}
	if !r.Dates[0].Equal(pts[1].Date) {
		t.Fatalf("first return must carry the second price date")
	}
}

func TestComputeLogReturnsRejectsInvalidPrices(t *testing.T) {
	cases := map[string][]models.PricePoint{
		"zero":     series(10, 0, 11),
		"negative": series(10, -37.63, 11),
		"nan":      series(10, math.NaN()),
		"single":   series(10),
		"empty":    nil,
	}
	for name, pts := range cases {
		if _, err := ComputeLogReturns(pts); !errors.Is(err, domsvc.ErrDomain) {
			t.Fatalf("%s: expected domain error, got %v", name, err)
		}
	}
}

func TestComputeLogReturnsRejectsUnorderedDates(t *testing.T) {
	pts := series(10, 11, 12)
	pts[2].Date = pts[1].Date
	if _, err := ComputeLogReturns(pts); !errors.Is(err, domsvc.ErrDomain) {
		t.Fatalf("expected domain error for duplicate date, got %v", err)
	}
}

func TestComputeSimpleReturns(t *testing.T) {
	r, err := ComputeSimpleReturns(series(100, 110, 99))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if math.Abs(r[0]-0.1) > 1e-12 || math.Abs(r[1]+0.1) > 1e-12 {
		t.Fatalf("unexpected simple returns %v", r)
	}
}

func TestCountOutliers(t *testing.T) {
	values := []float64{0.01, -0.01, 0.02, -0.02, 0.0, 0.01, -0.01, 0.5}
	if n := CountOutliers(values); n != 1 {
		t.Fatalf("expected 1 outlier, got %d", n)
	}
	if n := CountOutliers([]float64{1, 2}); n != 0 {
		t.Fatalf("short input should report no outliers, got %d", n)
	}
}

func TestStatistics(t *testing.T) {
	st, err := Statistics(series(10, 20, 30))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if st.Count != 3 || st.MeanPrice != 20 || st.MinPrice != 10 || st.MaxPrice != 30 {
		t.Fatalf("unexpected statistics %+v", st)
	}
	st, err = Statistics(series(10, 20))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if st.StdLogReturn != 0 {
		t.Fatalf("single return must have zero std, got %v", st.StdLogReturn)
	}
}
