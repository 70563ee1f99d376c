package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	pkgch "BrentShift/pkg/clickhouse"
	applogger "BrentShift/pkg/logger"
)

// Schema returns the idempotent DDL for the ClickHouse backend.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.prices (
            series LowCardinality(String),
            date Date,
            price Float64,
            ingested_at DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(ingested_at)
        ORDER BY (series, date)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.events (
            date Date,
            title String,
            category LowCardinality(String)
        ) ENGINE = ReplacingMergeTree
        ORDER BY (date, title)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.analyses (
            id String,
            series LowCardinality(String),
            status LowCardinality(String),
            created_at DateTime64(3),
            payload String
        ) ENGINE = ReplacingMergeTree
        ORDER BY (series, created_at, id)`, database),
	}
}

// CHStore implements the price, event and result stores on ClickHouse.
type CHStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

var (
	_ domrepo.PriceStore  = (*CHStore)(nil)
	_ domrepo.EventStore  = (*CHStore)(nil)
	_ domrepo.ResultStore = (*CHStore)(nil)
)

func NewCHStore(ch *pkgch.Client, l *applogger.Logger) *CHStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHStore{ch: ch, db: ch.DB(), l: l}
}

func (s *CHStore) table(name string) string { return s.ch.Database() + "." + name }

func (s *CHStore) GetPrices(ctx context.Context, series string, from, to time.Time) ([]models.PricePoint, error) {
	start := time.Now()
	if to.IsZero() {
		to = time.Date(2299, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	q := fmt.Sprintf(`
        SELECT date, price
        FROM %s FINAL
        WHERE series = ? AND date >= ? AND date <= ?
        ORDER BY date ASC
    `, s.table("prices"))
	rows, err := s.db.QueryContext(ctx, q, series, from, to)
	if err != nil {
		s.l.Error("clickhouse get_prices query error", applogger.String("series", series), applogger.Error(err))
		return nil, fmt.Errorf("get prices: %w", err)
	}
	defer rows.Close()

	out := make([]models.PricePoint, 0, 1024)
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Date, &p.Price); err != nil {
			s.l.Error("clickhouse get_prices scan error", applogger.String("series", series), applogger.Error(err))
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.Date = p.Date.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse get_prices ok",
		applogger.String("series", series),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHStore) StorePrices(ctx context.Context, series string, points []models.PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		rows = append(rows, []any{series, p.Date, p.Price})
	}
	q := fmt.Sprintf("INSERT INTO %s (series, date, price)", s.table("prices"))
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		s.l.Error("clickhouse store_prices error", applogger.String("series", series), applogger.Error(err))
		return fmt.Errorf("store prices: %w", err)
	}
	return nil
}

func (s *CHStore) CountPrices(ctx context.Context, series string) (int, error) {
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s FINAL WHERE series = ?", s.table("prices"))
	if err := s.db.QueryRowContext(ctx, q, series).Scan(&n); err != nil {
		return 0, fmt.Errorf("count prices: %w", err)
	}
	return int(n), nil
}

func (s *CHStore) ListEvents(ctx context.Context, from, to time.Time) ([]models.EventRecord, error) {
	if to.IsZero() {
		to = time.Date(2299, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	q := fmt.Sprintf(`
        SELECT date, title, category
        FROM %s FINAL
        WHERE date >= ? AND date <= ?
        ORDER BY date ASC, title ASC
    `, s.table("events"))
	rows, err := s.db.QueryContext(ctx, q, from, to)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []models.EventRecord
	for rows.Next() {
		var e models.EventRecord
		if err := rows.Scan(&e.Date, &e.Title, &e.Category); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Date = e.Date.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *CHStore) StoreEvents(ctx context.Context, events []models.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		rows = append(rows, []any{e.Date, e.Title, e.Category})
	}
	q := fmt.Sprintf("INSERT INTO %s (date, title, category)", s.table("events"))
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		return fmt.Errorf("store events: %w", err)
	}
	return nil
}

// SaveResult stores the analysis as a JSON payload keyed by id.
func (s *CHStore) SaveResult(ctx context.Context, r *models.AnalysisResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (id, series, status, created_at, payload) VALUES (?, ?, ?, ?, ?)", s.table("analyses"))
	if _, err := s.db.ExecContext(ctx, q, r.ID, r.Series, string(r.Status), r.CreatedAt, string(payload)); err != nil {
		s.l.Error("clickhouse save_result error", applogger.String("id", r.ID), applogger.Error(err))
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

func (s *CHStore) GetResult(ctx context.Context, id string) (*models.AnalysisResult, error) {
	q := fmt.Sprintf("SELECT payload FROM %s FINAL WHERE id = ? LIMIT 1", s.table("analyses"))
	return s.scanResult(s.db.QueryRowContext(ctx, q, id))
}

func (s *CHStore) LatestResult(ctx context.Context, series string) (*models.AnalysisResult, error) {
	q := fmt.Sprintf(`
        SELECT payload FROM %s FINAL
        WHERE series = ? AND status = ?
        ORDER BY created_at DESC
        LIMIT 1
    `, s.table("analyses"))
	return s.scanResult(s.db.QueryRowContext(ctx, q, series, string(models.AnalysisCompleted)))
}

func (s *CHStore) scanResult(row *sql.Row) (*models.AnalysisResult, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	var r models.AnalysisResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &r, nil
}
