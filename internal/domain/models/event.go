package models

import "time"

// EventRecord is a dated external event used to explain a change point.
type EventRecord struct {
	Date     time.Time `json:"date"`
	Title    string    `json:"title"`
	Category string    `json:"category"`
}

const (
	AssociationExplained   = "explained"
	AssociationUnexplained = "unexplained"
)

// Association pairs a change point with its nearest event inside the tolerance window.
// Event is nil for an unexplained change point.
type Association struct {
	ChangePoint  ChangePoint  `json:"change_point"`
	Event        *EventRecord `json:"event"`
	DistanceDays int          `json:"distance_days"`
	Confidence   float64      `json:"confidence"`
	Status       string       `json:"status"`
}
