package models

import "time"

type AnalysisStatus string

const (
	AnalysisPending   AnalysisStatus = "pending"
	AnalysisRunning   AnalysisStatus = "running"
	AnalysisCompleted AnalysisStatus = "completed"
	AnalysisFailed    AnalysisStatus = "failed"
)

// AnalysisResult is the complete output of one change-point analysis run.
type AnalysisResult struct {
	ID           string         `json:"id"`
	Series       string         `json:"series"`
	Status       AnalysisStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	Start        time.Time      `json:"start"`
	End          time.Time      `json:"end"`
	Observations int            `json:"observations"`
	ChangePoints []ChangePoint  `json:"change_points"`
	Associations []Association  `json:"associations"`
	Regimes      []RegimeStats  `json:"regimes"`
	Diagnostics  []Diagnostics  `json:"diagnostics"`
	Converged    bool           `json:"converged"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  time.Time      `json:"completed_at"`
	DurationMs   int64          `json:"duration_ms"`
}

// Summary is the dashboard headline for a series.
type Summary struct {
	Series           string          `json:"series"`
	MeanPrice        float64         `json:"mean_price"`
	PriceCount       int             `json:"price_count"`
	EventCount       int             `json:"event_count"`
	ChangePointCount int             `json:"change_point_count"`
	LatestAnalysisID string          `json:"latest_analysis_id,omitempty"`
	Statistics       PriceStatistics `json:"statistics"`
}
