package models

// Requests for the dashboard HTTP endpoints. Defined in domain for reuse by the queue and CLI.

type PricesRequest struct {
	Series    string `query:"series" json:"series" default:"brent" validate:"required"`
	StartDate string `query:"start_date" json:"start_date" validate:"omitempty,date"`
	EndDate   string `query:"end_date" json:"end_date" validate:"omitempty,date,notbefore=StartDate"`
}

type EventsRequest struct {
	StartDate string `query:"start_date" json:"start_date" validate:"omitempty,date"`
	EndDate   string `query:"end_date" json:"end_date" validate:"omitempty,date,notbefore=StartDate"`
	Category  string `query:"category" json:"category"`
}

type SeriesRequest struct {
	Series string `query:"series" json:"series" default:"brent" validate:"required"`
}

// AnalysisRequest submits a change-point analysis. Zero sampler fields fall back to configuration.
type AnalysisRequest struct {
	ID            string  `json:"id,omitempty"`
	Series        string  `json:"series" default:"brent" validate:"required"`
	StartDate     string  `json:"start_date" validate:"omitempty,date"`
	EndDate       string  `json:"end_date" validate:"omitempty,date,notbefore=StartDate"`
	Iterations    int     `json:"iterations" validate:"omitempty,gte=100,lte=500000"`
	BurnIn        int     `json:"burn_in" validate:"omitempty,gte=0"`
	Chains        int     `json:"chains" validate:"omitempty,gte=1,lte=16"`
	Seed          *uint64 `json:"seed,omitempty"`
	Model         string  `json:"model" validate:"omitempty,oneof=full mean_shift volatility_shift"`
	CredibleLevel float64 `json:"credible_level" validate:"omitempty,gt=0,lte=1"`
	ToleranceDays int     `json:"tolerance_days" validate:"omitempty,gte=1,lte=365"`
	Segmentation  *bool   `json:"segmentation,omitempty"`
	MaxChanges    int     `json:"max_change_points" validate:"omitempty,gte=1,lte=32"`
}
