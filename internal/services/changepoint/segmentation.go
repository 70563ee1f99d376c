package changepoint

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"BrentShift/internal/domain/models"
	domsvc "BrentShift/internal/domain/service"
	"BrentShift/pkg/logger"
)

// SegmentationConfig controls binary segmentation. With Enabled false the detector reports
// exactly one change point for the whole series.
type SegmentationConfig struct {
	Enabled         bool
	MinSegment      int     // segments shorter than this are not split; splits closer than half of it to an edge are rejected
	MaxChangePoints int     // hard cap on reported change points
	DiffuseFraction float64 // stop when credible width > fraction * segment length
	MinEffect       float64 // stop when max(|dmu|, |dsigma|) < MinEffect * segment std; 0 disables
	CredibleLevel   float64
}

func DefaultSegmentationConfig() SegmentationConfig {
	return SegmentationConfig{
		Enabled:         true,
		MinSegment:      100,
		MaxChangePoints: 8,
		DiffuseFraction: 0.25,
		MinEffect:       0.1,
		CredibleLevel:   0.95,
	}
}

func (c SegmentationConfig) Validate() error {
	if !(c.CredibleLevel > 0) || c.CredibleLevel > 1 {
		return fmt.Errorf("%w: credible level must be in (0, 1], got %v", domsvc.ErrConfiguration, c.CredibleLevel)
	}
	if !c.Enabled {
		return nil
	}
	switch {
	case c.MinSegment < 2:
		return fmt.Errorf("%w: min_segment must be at least 2", domsvc.ErrConfiguration)
	case c.MaxChangePoints < 1:
		return fmt.Errorf("%w: max_change_points must be at least 1", domsvc.ErrConfiguration)
	case !(c.DiffuseFraction > 0) || c.DiffuseFraction > 1:
		return fmt.Errorf("%w: diffuse_fraction must be in (0, 1]", domsvc.ErrConfiguration)
	case c.MinEffect < 0:
		return fmt.Errorf("%w: min_effect must be non-negative", domsvc.ErrConfiguration)
	}
	return nil
}

// Detector finds one or more change points by running the sampler per segment.
type Detector struct {
	sampler *Sampler
	cfg     SegmentationConfig
	log     *logger.Logger
}

var _ domsvc.Detector = (*Detector)(nil)

func NewDetector(sampler *Sampler, cfg SegmentationConfig, log *logger.Logger) (*Detector, error) {
	if sampler == nil {
		return nil, fmt.Errorf("%w: sampler is required", domsvc.ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Detector{sampler: sampler, cfg: cfg, log: log}, nil
}

// Segment is a half-open window [Start, End) of the return series.
type Segment struct {
	Start, End int
}

func (s Segment) Len() int { return s.End - s.Start }

// SegmentResult is the outcome of the single change-point analysis of one segment.
type SegmentResult struct {
	Segment Segment
	Trace   *models.Trace
	Summary *models.PosteriorSummary
}

// AnalyzeSegment samples one segment and summarises it. Its generator stream depends only on the
// segment start, so results do not depend on the order segments are visited. Stream 0 belongs to
// the whole-series run.
func (d *Detector) AnalyzeSegment(ctx context.Context, returns []float64, seg Segment) (*SegmentResult, error) {
	sampler := d.sampler.WithStream(uint64(seg.Start) + 1)
	trace, err := sampler.Run(ctx, returns[seg.Start:seg.End])
	if err != nil {
		return nil, err
	}
	summary, err := Summarize(trace.Chains, sampler.Config().BurnIn, d.cfg.CredibleLevel)
	if err != nil {
		return &SegmentResult{Segment: seg, Trace: trace}, err
	}
	return &SegmentResult{Segment: seg, Trace: trace, Summary: summary}, nil
}

// Detect returns change points ordered by index, plus the diagnostics of every sampler run.
func (d *Detector) Detect(ctx context.Context, returns models.ReturnSeries) ([]models.ChangePoint, []models.Diagnostics, error) {
	n := returns.Len()
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 returns, got %d", domsvc.ErrDomain, n)
	}
	if !d.cfg.Enabled {
		res, err := d.AnalyzeSegment(ctx, returns.Values, Segment{0, n})
		if err != nil {
			return nil, diagnosticsOf(res), err
		}
		return []models.ChangePoint{d.toChangePoint(returns, res)}, []models.Diagnostics{res.Trace.Diagnostics}, nil
	}

	var (
		found []models.ChangePoint
		diags []models.Diagnostics
	)
	queue := []Segment{{0, n}}
	for len(queue) > 0 && len(found) < d.cfg.MaxChangePoints {
		seg := queue[0]
		queue = queue[1:]
		root := seg.Start == 0 && seg.End == n

		if !root && seg.Len() < d.cfg.MinSegment {
			continue
		}

		res, err := d.AnalyzeSegment(ctx, returns.Values, seg)
		diags = append(diags, diagnosticsOf(res)...)
		if err != nil {
			if root || !isSummaryError(err) {
				return nil, diags, err
			}
			d.log.Warn("segment not summarised",
				logger.Int("start", seg.Start), logger.Int("end", seg.End), logger.Error(err))
			continue
		}

		if reason, stop := d.stopReason(returns.Values, res); stop {
			d.log.Debug("segment not split",
				logger.Int("start", seg.Start), logger.Int("end", seg.End), logger.String("reason", reason))
			continue
		}

		cp := d.toChangePoint(returns, res)
		found = append(found, cp)
		d.log.Debug("change point found",
			logger.Int("index", cp.Index),
			logger.Int("start", seg.Start),
			logger.Int("end", seg.End),
			logger.Float64("probability", cp.Probability))

		queue = append(queue, Segment{seg.Start, cp.Index}, Segment{cp.Index, seg.End})
	}

	return MergeChangePoints(found, returns), diags, nil
}

func diagnosticsOf(res *SegmentResult) []models.Diagnostics {
	if res == nil || res.Trace == nil {
		return nil
	}
	return []models.Diagnostics{res.Trace.Diagnostics}
}

func isSummaryError(err error) bool {
	return errors.Is(err, domsvc.ErrEmptyChain) || errors.Is(err, domsvc.ErrInsufficientSamples)
}

// stopReason applies the diffuse-posterior and minimum-effect rules to one segment result.
func (d *Detector) stopReason(returns []float64, res *SegmentResult) (string, bool) {
	s := res.Summary
	length := res.Segment.Len()
	if margin := d.cfg.MinSegment / 2; s.MapIndex < margin || length-s.MapIndex < margin {
		return fmt.Sprintf("change point %d within %d of the segment edge", s.MapIndex, margin), true
	}
	if float64(s.Width()) > d.cfg.DiffuseFraction*float64(length) {
		return fmt.Sprintf("credible width %d exceeds %.0f%% of %d", s.Width(), d.cfg.DiffuseFraction*100, length), true
	}
	if d.cfg.MinEffect > 0 {
		sd := stat.StdDev(returns[res.Segment.Start:res.Segment.End], nil)
		effect := math.Max(math.Abs(s.MeanAfter-s.MeanBefore), math.Abs(s.MeanSigmaAfter-s.MeanSigmaBefore))
		if sd > 0 && effect < d.cfg.MinEffect*sd {
			return fmt.Sprintf("regime shift %.2g below %.2g x std %.2g", effect, d.cfg.MinEffect, sd), true
		}
	}
	return "", false
}

func (d *Detector) toChangePoint(returns models.ReturnSeries, res *SegmentResult) models.ChangePoint {
	s := res.Summary
	off := res.Segment.Start
	cp := models.ChangePoint{
		Index:        off + s.MapIndex,
		Probability:  s.Probability(s.MapIndex),
		CredibleLow:  off + s.CredibleLow,
		CredibleHigh: off + s.CredibleHigh,
		MeanBefore:   s.MeanBefore,
		MeanAfter:    s.MeanAfter,
		SigmaBefore:  s.MeanSigmaBefore,
		SigmaAfter:   s.MeanSigmaAfter,
		SegmentStart: res.Segment.Start,
		SegmentEnd:   res.Segment.End,
	}
	setDates(&cp, returns)
	return cp
}

func setDates(cp *models.ChangePoint, returns models.ReturnSeries) {
	date := func(i int) time.Time {
		if i >= 0 && i < len(returns.Dates) {
			return returns.Dates[i]
		}
		return time.Time{}
	}
	cp.Date = date(cp.Index)
	cp.CredibleDateLow = date(cp.CredibleLow)
	cp.CredibleDateHigh = date(cp.CredibleHigh)
}

// MergeChangePoints orders change points by index and clips credible intervals at the midpoint
// between neighbours so no two intervals overlap.
func MergeChangePoints(cps []models.ChangePoint, returns models.ReturnSeries) []models.ChangePoint {
	out := append([]models.ChangePoint(nil), cps...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	for i := 0; i+1 < len(out); i++ {
		mid := (out[i].Index + out[i+1].Index) / 2
		if out[i].CredibleHigh > mid {
			out[i].CredibleHigh = mid
		}
		if out[i+1].CredibleLow <= mid {
			out[i+1].CredibleLow = mid + 1
		}
	}
	for i := range out {
		setDates(&out[i], returns)
	}
	return out
}
