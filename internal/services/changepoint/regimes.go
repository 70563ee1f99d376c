package changepoint

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"BrentShift/internal/domain/models"
)

// CompareRegimes describes the returns between consecutive change points. prices, when given,
// must be the series the returns were computed from (len(prices) == returns.Len()+1).
func CompareRegimes(returns models.ReturnSeries, prices []models.PricePoint, cps []models.ChangePoint) []models.RegimeStats {
	n := returns.Len()
	if n == 0 {
		return nil
	}
	bounds := []int{0}
	for _, cp := range cps {
		if cp.Index > bounds[len(bounds)-1] && cp.Index < n {
			bounds = append(bounds, cp.Index)
		}
	}
	bounds = append(bounds, n)

	withPrices := len(prices) == n+1
	out := make([]models.RegimeStats, 0, len(bounds)-1)
	for k := 0; k+1 < len(bounds); k++ {
		lo, hi := bounds[k], bounds[k+1]
		xs := returns.Values[lo:hi]
		r := models.RegimeStats{StartIndex: lo, EndIndex: hi, Count: len(xs)}
		if len(returns.Dates) == n {
			r.Start, r.End = returns.Dates[lo], returns.Dates[hi-1]
		}
		if len(xs) > 1 {
			r.Mean, r.Std = stat.MeanStdDev(xs, nil)
		} else {
			r.Mean = xs[0]
		}
		half := 1.96 * r.Std / math.Sqrt(float64(len(xs)))
		r.MeanCILow, r.MeanCIHigh = r.Mean-half, r.Mean+half

		if withPrices {
			sum := 0.0
			for _, p := range prices[lo+1 : hi+1] {
				sum += p.Price
			}
			r.MeanPrice = sum / float64(hi-lo)
			if k > 0 && out[k-1].MeanPrice > 0 {
				r.PriceChangePct = (r.MeanPrice/out[k-1].MeanPrice - 1) * 100
			}
		}
		out = append(out, r)
	}
	return out
}
