package http

// APIResponse is the envelope around every dashboard reply: prices, events,
// change points, summaries and analysis status.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request parameter. Field is the wire name.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_DATE"`
	Field   string                 `json:"field,omitempty" example:"start_date"`
	Message string                 `json:"message,omitempty" example:"start_date must be a date such as 2020-04-22"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse carries price and event listings with their row count.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
