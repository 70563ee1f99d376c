package repository

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"BrentShift/internal/domain/models"
	"BrentShift/pkg/logger"
	"BrentShift/pkg/util"
)

// LoadReport counts what the cleaning pass dropped.
type LoadReport struct {
	Rows        int
	Kept        int
	BadDate     int
	BadPrice    int
	NonPositive int
	Duplicates  int
}

// CSVLoader reads price and event files. Rows it cannot use are dropped and counted,
// never fatal; a file without usable rows is.
type CSVLoader struct {
	log *logger.Logger
}

func NewCSVLoader(log *logger.Logger) *CSVLoader {
	if log == nil {
		log = logger.Nop()
	}
	return &CSVLoader{log: log}
}

// LoadPricesFile opens path and delegates to LoadPrices.
func (l *CSVLoader) LoadPricesFile(path string) ([]models.PricePoint, LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadReport{}, fmt.Errorf("open prices: %w", err)
	}
	defer f.Close()
	points, rep, err := l.LoadPrices(f)
	if err != nil {
		return nil, rep, fmt.Errorf("%s: %w", path, err)
	}
	return points, rep, nil
}

// LoadPrices parses a Date,Price file. Dates may mix layouts ("20-May-87", "Apr 22, 2020", ISO).
// The result is sorted by date; for duplicate dates the last row wins.
func (l *CSVLoader) LoadPrices(r io.Reader) ([]models.PricePoint, LoadReport, error) {
	var rep LoadReport
	rows, err := readRows(r)
	if err != nil {
		return nil, rep, err
	}
	dateCol, priceCol, err := columns(rows[0], []string{"date"}, []string{"price", "close"})
	if err != nil {
		return nil, rep, err
	}

	byDay := make(map[time.Time]float64, len(rows))
	for _, row := range rows[1:] {
		rep.Rows++
		if len(row) <= dateCol || len(row) <= priceCol {
			rep.BadPrice++
			continue
		}
		d, err := util.ParseDate(row[dateCol])
		if err != nil {
			rep.BadDate++
			continue
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(row[priceCol]), 64)
		if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
			rep.BadPrice++
			continue
		}
		if p <= 0 {
			rep.NonPositive++
			continue
		}
		if _, dup := byDay[d]; dup {
			rep.Duplicates++
		}
		byDay[d] = p
	}

	points := make([]models.PricePoint, 0, len(byDay))
	for d, p := range byDay {
		points = append(points, models.PricePoint{Date: d, Price: p})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	rep.Kept = len(points)

	if dropped := rep.BadDate + rep.BadPrice + rep.NonPositive; dropped > 0 || rep.Duplicates > 0 {
		l.log.Warn("price rows dropped while loading",
			logger.Int("rows", rep.Rows),
			logger.Int("bad_date", rep.BadDate),
			logger.Int("bad_price", rep.BadPrice),
			logger.Int("non_positive", rep.NonPositive),
			logger.Int("duplicates", rep.Duplicates),
		)
	}
	if len(points) == 0 {
		return nil, rep, errors.New("no usable price rows")
	}
	return points, rep, nil
}

// LoadEventsFile opens path and delegates to LoadEvents.
func (l *CSVLoader) LoadEventsFile(path string) ([]models.EventRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events: %w", err)
	}
	defer f.Close()
	return l.LoadEvents(f)
}

// LoadEvents parses a Date,Event[,Category] file ordered by date.
func (l *CSVLoader) LoadEvents(r io.Reader) ([]models.EventRecord, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	dateCol, titleCol, err := columns(rows[0], []string{"date"}, []string{"event", "title"})
	if err != nil {
		return nil, err
	}
	catCol := indexOf(rows[0], "category")

	out := make([]models.EventRecord, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		if len(row) <= dateCol || len(row) <= titleCol {
			skipped++
			continue
		}
		d, err := util.ParseDate(row[dateCol])
		if err != nil || strings.TrimSpace(row[titleCol]) == "" {
			skipped++
			continue
		}
		ev := models.EventRecord{Date: d, Title: strings.TrimSpace(row[titleCol])}
		if catCol >= 0 && catCol < len(row) {
			ev.Category = strings.TrimSpace(row[catCol])
		}
		out = append(out, ev)
	}
	if skipped > 0 {
		l.log.Warn("event rows skipped while loading", logger.Int("skipped", skipped))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func readRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("empty csv")
	}
	return rows, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
			return i
		}
	}
	return -1
}

// columns locates the first header matching each candidate list.
func columns(header []string, first, second []string) (int, int, error) {
	find := func(names []string) int {
		for _, n := range names {
			if i := indexOf(header, n); i >= 0 {
				return i
			}
		}
		return -1
	}
	a, b := find(first), find(second)
	if a < 0 || b < 0 {
		return 0, 0, fmt.Errorf("csv header %v must contain %s and %s columns", header, first[0], second[0])
	}
	return a, b, nil
}

// WriteChangePoints exports change points with their associated events as CSV.
func WriteChangePoints(w io.Writer, assocs []models.Association) error {
	cw := csv.NewWriter(w)
	header := []string{"date", "index", "probability", "credible_date_low", "credible_date_high",
		"mean_before", "mean_after", "event", "distance_days", "confidence", "status"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, a := range assocs {
		cp := a.ChangePoint
		event := ""
		if a.Event != nil {
			event = a.Event.Title
		}
		row := []string{
			util.FormatDate(cp.Date),
			strconv.Itoa(cp.Index),
			strconv.FormatFloat(cp.Probability, 'f', 4, 64),
			util.FormatDate(cp.CredibleDateLow),
			util.FormatDate(cp.CredibleDateHigh),
			strconv.FormatFloat(cp.MeanBefore, 'g', 6, 64),
			strconv.FormatFloat(cp.MeanAfter, 'g', 6, 64),
			event,
			strconv.Itoa(a.DistanceDays),
			strconv.FormatFloat(a.Confidence, 'f', 3, 64),
			a.Status,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
