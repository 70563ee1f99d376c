package service

import (
	"context"

	"BrentShift/internal/domain/models"
)

// Detector locates change points in a return series.
type Detector interface {
	Detect(ctx context.Context, returns models.ReturnSeries) ([]models.ChangePoint, []models.Diagnostics, error)
}

// Associator matches change points to dated events.
type Associator interface {
	Associate(changePoints []models.ChangePoint, events []models.EventRecord, toleranceDays int) ([]models.Association, error)
}
