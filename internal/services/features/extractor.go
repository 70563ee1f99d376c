package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"BrentShift/internal/domain/models"
	domsvc "BrentShift/internal/domain/service"
)

// ValidatePrices checks the invariants every price series must satisfy before it reaches the model.
func ValidatePrices(points []models.PricePoint) error {
	if len(points) < 2 {
		return fmt.Errorf("%w: need at least 2 prices, got %d", domsvc.ErrDomain, len(points))
	}
	for i, p := range points {
		if !(p.Price > 0) || math.IsInf(p.Price, 0) {
			return fmt.Errorf("%w: price %v at %s (index %d) is not a positive finite number",
				domsvc.ErrDomain, p.Price, p.Date.Format("2006-01-02"), i)
		}
		if i > 0 && !p.Date.After(points[i-1].Date) {
			return fmt.Errorf("%w: dates must be strictly increasing, %s follows %s",
				domsvc.ErrDomain, p.Date.Format("2006-01-02"), points[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// ComputeLogReturns computes r_i = ln(p[i+1]) - ln(p[i]).
// The result has len(points)-1 entries; any invalid price fails the whole series.
func ComputeLogReturns(points []models.PricePoint) (models.ReturnSeries, error) {
	if err := ValidatePrices(points); err != nil {
		return models.ReturnSeries{}, err
	}
	out := models.ReturnSeries{
		Dates:  make([]time.Time, 0, len(points)-1),
		Values: make([]float64, 0, len(points)-1),
	}
	for i := 1; i < len(points); i++ {
		out.Values = append(out.Values, math.Log(points[i].Price)-math.Log(points[i-1].Price))
		out.Dates = append(out.Dates, points[i].Date)
	}
	return out, nil
}

// ComputeSimpleReturns computes p[i+1]/p[i] - 1.
func ComputeSimpleReturns(points []models.PricePoint) ([]float64, error) {
	if err := ValidatePrices(points); err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		out = append(out, points[i].Price/points[i-1].Price-1)
	}
	return out, nil
}

// CountOutliers counts values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR]. Values are not modified.
func CountOutliers(values []float64) int {
	if len(values) < 4 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr
	n := 0
	for _, v := range values {
		if v < lo || v > hi {
			n++
		}
	}
	return n
}

// Statistics summarises a validated price series and its log returns.
func Statistics(points []models.PricePoint) (models.PriceStatistics, error) {
	returns, err := ComputeLogReturns(points)
	if err != nil {
		return models.PriceStatistics{}, err
	}
	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	meanP, stdP := stat.MeanStdDev(prices, nil)
	meanR, stdR := stat.MeanStdDev(returns.Values, nil)
	if returns.Len() < 2 {
		stdR = 0
	}
	return models.PriceStatistics{
		Count:          len(points),
		Start:          points[0].Date,
		End:            points[len(points)-1].Date,
		MeanPrice:      meanP,
		StdPrice:       stdP,
		MinPrice:       floats.Min(prices),
		MaxPrice:       floats.Max(prices),
		MeanLogReturn:  meanR,
		StdLogReturn:   stdR,
		ReturnOutliers: CountOutliers(returns.Values),
	}, nil
}
