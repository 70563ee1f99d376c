package models

import "time"

// PricePoint is one daily observation. Sequences are ordered by strictly increasing date.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// ReturnSeries holds log returns; Values[i] = log(p[i+1]) - log(p[i]) and Dates[i] is the date of p[i+1].
type ReturnSeries struct {
	Dates  []time.Time
	Values []float64
}

func (r ReturnSeries) Len() int { return len(r.Values) }

// Slice returns the half-open window [lo, hi) sharing the underlying arrays.
func (r ReturnSeries) Slice(lo, hi int) ReturnSeries {
	return ReturnSeries{Dates: r.Dates[lo:hi], Values: r.Values[lo:hi]}
}

// PriceStatistics summarises a price series and its returns.
type PriceStatistics struct {
	Count          int       `json:"count"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	MeanPrice      float64   `json:"mean_price"`
	StdPrice       float64   `json:"std_price"`
	MinPrice       float64   `json:"min_price"`
	MaxPrice       float64   `json:"max_price"`
	MeanLogReturn  float64   `json:"mean_log_return"`
	StdLogReturn   float64   `json:"std_log_return"`
	ReturnOutliers int       `json:"return_outliers"`
}
