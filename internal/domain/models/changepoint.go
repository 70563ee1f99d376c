package models

import "time"

// ChangePointParameters is one state of the single change-point model.
// Tau splits the return series into [0, Tau) and [Tau, N).
type ChangePointParameters struct {
	Tau         int     `json:"tau"`
	MuBefore    float64 `json:"mu_before"`
	MuAfter     float64 `json:"mu_after"`
	SigmaBefore float64 `json:"sigma_before"`
	SigmaAfter  float64 `json:"sigma_after"`
}

// Sample is one recorded sampler iteration.
type Sample struct {
	Iteration int
	Params    ChangePointParameters
	Accepted  bool // at least one proposal was accepted during this iteration
}

// Chain is the ordered output of a single sampler chain.
type Chain struct {
	Index        int
	Seed         uint64
	SeriesLength int
	Samples      []Sample

	Proposals      int
	Accepted       int
	AcceptanceRate float64
	Healthy        bool     // acceptance rate inside the configured band
	Warnings       []string // non-fatal convergence warnings
}

// Trace groups the chains of one sampler run with their combined diagnostics.
type Trace struct {
	Chains      []Chain
	Diagnostics Diagnostics
}

// Diagnostics is the per-run metadata reported next to every result.
type Diagnostics struct {
	Iterations     int                `json:"iterations"`
	BurnIn         int                `json:"burn_in"`
	AcceptanceRate float64            `json:"acceptance_rate"`
	Converged      bool               `json:"converged"`
	NChains        int                `json:"n_chains"`
	RHat           map[string]float64 `json:"r_hat,omitempty"`
	ESS            map[string]float64 `json:"ess,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
}

// PosteriorSummary condenses the post burn-in draws of one or more chains.
type PosteriorSummary struct {
	IndexDistribution map[int]float64 `json:"index_distribution"`
	MapIndex          int             `json:"map_index"`
	CredibleLevel     float64         `json:"credible_level"`
	CredibleLow       int             `json:"credible_low"`
	CredibleHigh      int             `json:"credible_high"`
	MeanTau           float64         `json:"mean_tau"`
	MeanBefore        float64         `json:"mean_before"`
	MeanAfter         float64         `json:"mean_after"`
	MeanSigmaBefore   float64         `json:"mean_sigma_before"`
	MeanSigmaAfter    float64         `json:"mean_sigma_after"`
	MuBeforeInterval  [2]float64      `json:"mu_before_interval"`
	MuAfterInterval   [2]float64      `json:"mu_after_interval"`
	Draws             int             `json:"draws"`
}

// Probability returns the posterior mass at index i.
func (s *PosteriorSummary) Probability(i int) float64 {
	return s.IndexDistribution[i]
}

// Width is the size of the credible interval in indices.
func (s *PosteriorSummary) Width() int {
	return s.CredibleHigh - s.CredibleLow
}

// ChangePoint is a reported regime shift located in a full return series.
type ChangePoint struct {
	Date             time.Time `json:"date"`
	Index            int       `json:"index"`
	Probability      float64   `json:"probability"`
	CredibleLow      int       `json:"credible_interval_low"`
	CredibleHigh     int       `json:"credible_interval_high"`
	CredibleDateLow  time.Time `json:"credible_date_low"`
	CredibleDateHigh time.Time `json:"credible_date_high"`
	MeanBefore       float64   `json:"mean_before"`
	MeanAfter        float64   `json:"mean_after"`
	SigmaBefore      float64   `json:"sigma_before"`
	SigmaAfter       float64   `json:"sigma_after"`
	SegmentStart     int       `json:"segment_start"`
	SegmentEnd       int       `json:"segment_end"`
}

// RegimeStats describes the returns between two consecutive change points.
type RegimeStats struct {
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	StartIndex     int       `json:"start_index"`
	EndIndex       int       `json:"end_index"` // exclusive
	Count          int       `json:"count"`
	Mean           float64   `json:"mean"`
	Std            float64   `json:"std"`
	MeanCILow      float64   `json:"mean_ci_low"`
	MeanCIHigh     float64   `json:"mean_ci_high"`
	MeanPrice      float64   `json:"mean_price"`
	PriceChangePct float64   `json:"price_change_pct"`
}
