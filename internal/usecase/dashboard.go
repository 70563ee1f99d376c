package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	"BrentShift/internal/services/features"
)

// ChangePointsView is the dashboard projection of the latest completed analysis.
type ChangePointsView struct {
	AnalysisID   string               `json:"analysis_id"`
	Series       string               `json:"series"`
	ChangePoints []models.ChangePoint `json:"change_points"`
	Associations []models.Association `json:"associations"`
	Regimes      []models.RegimeStats `json:"regimes"`
	Diagnostics  []models.Diagnostics `json:"diagnostics"`
	Converged    bool                 `json:"converged"`
}

// Dashboard answers the read-only queries of the dashboard API.
type Dashboard struct {
	prices  domrepo.PriceStore
	events  domrepo.EventStore
	results domrepo.ResultStore
}

func NewDashboard(prices domrepo.PriceStore, events domrepo.EventStore, results domrepo.ResultStore) *Dashboard {
	return &Dashboard{prices: prices, events: events, results: results}
}

func (d *Dashboard) Prices(ctx context.Context, req *models.PricesRequest) ([]models.PricePoint, error) {
	from, to, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	return d.prices.GetPrices(ctx, req.Series, from, to)
}

func (d *Dashboard) Events(ctx context.Context, req *models.EventsRequest) ([]models.EventRecord, error) {
	from, to, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	events, err := d.events.ListEvents(ctx, from, to)
	if err != nil || req.Category == "" {
		return events, err
	}
	out := events[:0]
	for _, e := range events {
		if strings.EqualFold(e.Category, req.Category) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ChangePoints returns domrepo.ErrNotFound until an analysis of the series has completed.
func (d *Dashboard) ChangePoints(ctx context.Context, series string) (*ChangePointsView, error) {
	r, err := d.results.LatestResult(ctx, series)
	if err != nil {
		return nil, err
	}
	return &ChangePointsView{
		AnalysisID:   r.ID,
		Series:       r.Series,
		ChangePoints: r.ChangePoints,
		Associations: r.Associations,
		Regimes:      r.Regimes,
		Diagnostics:  r.Diagnostics,
		Converged:    r.Converged,
	}, nil
}

func (d *Dashboard) Summary(ctx context.Context, series string) (*models.Summary, error) {
	prices, err := d.prices.GetPrices(ctx, series, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("series %q: %w", series, domrepo.ErrNotFound)
	}
	events, err := d.events.ListEvents(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := &models.Summary{Series: series, PriceCount: len(prices), EventCount: len(events)}
	if len(prices) >= 2 {
		st, err := features.Statistics(prices)
		if err != nil {
			return nil, err
		}
		out.Statistics = st
		out.MeanPrice = st.MeanPrice
	} else {
		out.MeanPrice = prices[0].Price
	}

	latest, err := d.results.LatestResult(ctx, series)
	switch {
	case err == nil:
		out.ChangePointCount = len(latest.ChangePoints)
		out.LatestAnalysisID = latest.ID
	case !errors.Is(err, domrepo.ErrNotFound):
		return nil, fmt.Errorf("latest analysis: %w", err)
	}
	return out, nil
}
