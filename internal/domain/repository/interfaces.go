package repository

import (
	"context"
	"errors"
	"time"

	"BrentShift/internal/domain/models"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

// PriceStore provides daily prices per series. Zero from/to means unbounded.
type PriceStore interface {
	GetPrices(ctx context.Context, series string, from, to time.Time) ([]models.PricePoint, error)
	StorePrices(ctx context.Context, series string, points []models.PricePoint) error
	CountPrices(ctx context.Context, series string) (int, error)
}

// EventStore provides the catalog of dated external events.
type EventStore interface {
	ListEvents(ctx context.Context, from, to time.Time) ([]models.EventRecord, error)
	StoreEvents(ctx context.Context, events []models.EventRecord) error
}

// ResultStore persists completed analyses.
type ResultStore interface {
	SaveResult(ctx context.Context, r *models.AnalysisResult) error
	GetResult(ctx context.Context, id string) (*models.AnalysisResult, error)
	LatestResult(ctx context.Context, series string) (*models.AnalysisResult, error)
}

// Publisher announces completed analyses to downstream consumers.
type Publisher interface {
	PublishResult(ctx context.Context, r *models.AnalysisResult) error
	Close() error
}

type Metrics interface {
	RecordAnalysis(series, status string, seconds float64)
	RecordAcceptance(series string, rate float64)
	RecordChangePoints(series string, n int)
	RecordIngested(series string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
