package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	domsvc "BrentShift/internal/domain/service"
	"BrentShift/internal/services/changepoint"
	"BrentShift/internal/services/features"
	"BrentShift/pkg/cache"
	"BrentShift/pkg/logger"
	pkgmetrics "BrentShift/pkg/metrics"
	"BrentShift/pkg/queue"
	"BrentShift/pkg/util"
)

// EngineSettings are the configured defaults an analysis request may override.
type EngineSettings struct {
	Sampler       changepoint.Config
	Model         changepoint.ModelKind
	Priors        changepoint.Priors
	Segmentation  changepoint.SegmentationConfig
	ToleranceDays int
}

// Override applies the non-zero fields of req.
func (s EngineSettings) Override(req *models.AnalysisRequest) EngineSettings {
	out := s
	if req.Iterations > 0 {
		out.Sampler.Iterations = req.Iterations
		if req.BurnIn == 0 && out.Sampler.BurnIn >= req.Iterations {
			out.Sampler.BurnIn = req.Iterations / 4
		}
	}
	if req.BurnIn > 0 {
		out.Sampler.BurnIn = req.BurnIn
	}
	if req.Chains > 0 {
		out.Sampler.Chains = req.Chains
	}
	if req.Seed != nil {
		out.Sampler.Seed = *req.Seed
	}
	if req.Model != "" {
		out.Model = changepoint.ModelKind(req.Model)
	}
	if req.CredibleLevel > 0 {
		out.Segmentation.CredibleLevel = req.CredibleLevel
	}
	if req.ToleranceDays > 0 {
		out.ToleranceDays = req.ToleranceDays
	}
	if req.Segmentation != nil {
		out.Segmentation.Enabled = *req.Segmentation
	}
	if req.MaxChanges > 0 {
		out.Segmentation.MaxChangePoints = req.MaxChanges
	}
	return out
}

// NewDetector builds the model, sampler and segmenting detector for one analysis.
func (s EngineSettings) NewDetector(log *logger.Logger) (*changepoint.Detector, error) {
	model, err := changepoint.NewModel(s.Model, s.Priors)
	if err != nil {
		return nil, err
	}
	sampler, err := changepoint.NewSampler(model, s.Sampler, log)
	if err != nil {
		return nil, err
	}
	return changepoint.NewDetector(sampler, s.Segmentation, log)
}

const (
	AnalyzeJobType = "changepoint.analyze"
	cacheNamespace = "analysis"
)

// AnalysisService runs change-point analyses end to end: load, transform, detect, associate, persist.
type AnalysisService struct {
	prices     domrepo.PriceStore
	events     domrepo.EventStore
	results    domrepo.ResultStore
	publisher  domrepo.Publisher
	metrics    domrepo.Metrics
	associator domsvc.Associator
	cache      cache.Service
	queue      queue.Publisher
	settings   EngineSettings
	cacheTTL   time.Duration
	log        *logger.Logger
}

// AnalysisOption configures optional collaborators.
type AnalysisOption func(*AnalysisService)

func WithCache(c cache.Service, ttl time.Duration) AnalysisOption {
	return func(s *AnalysisService) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithQueue makes Submit enqueue analyses instead of running them inline.
func WithQueue(q queue.Publisher) AnalysisOption {
	return func(s *AnalysisService) { s.queue = q }
}

func WithPublisher(p domrepo.Publisher) AnalysisOption {
	return func(s *AnalysisService) { s.publisher = p }
}

func NewAnalysisService(
	prices domrepo.PriceStore,
	events domrepo.EventStore,
	results domrepo.ResultStore,
	associator domsvc.Associator,
	metrics domrepo.Metrics,
	settings EngineSettings,
	log *logger.Logger,
	opts ...AnalysisOption,
) *AnalysisService {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	s := &AnalysisService{
		prices:     prices,
		events:     events,
		results:    results,
		associator: associator,
		metrics:    metrics,
		settings:   settings,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AnalysisService) Settings() EngineSettings { return s.settings }

// Submit runs the analysis inline, or enqueues it and returns the pending record when a queue is set.
func (s *AnalysisService) Submit(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	if s.queue == nil {
		return s.Run(ctx, req)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	pending := &models.AnalysisResult{
		ID:        req.ID,
		Series:    req.Series,
		Status:    models.AnalysisPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.results.SaveResult(ctx, pending); err != nil {
		return nil, fmt.Errorf("save pending analysis: %w", err)
	}
	if _, err := s.queue.Enqueue(ctx, AnalyzeJobType, req); err != nil {
		s.metrics.RecordError("enqueue")
		return nil, fmt.Errorf("enqueue analysis: %w", err)
	}
	s.log.Info("analysis enqueued", logger.String("id", req.ID), logger.String("series", req.Series))
	return pending, nil
}

// Run executes one analysis. Failures are stored as failed results and returned as errors.
func (s *AnalysisService) Run(ctx context.Context, req *models.AnalysisRequest) (*models.AnalysisResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	started := time.Now()
	res := &models.AnalysisResult{
		ID:        req.ID,
		Series:    req.Series,
		Status:    models.AnalysisRunning,
		CreatedAt: started.UTC(),
	}
	log := s.log.With(logger.String("analysis_id", req.ID), logger.String("series", req.Series))
	settings := s.settings.Override(req)

	prices, err := s.load(ctx, req)
	var hash string
	if err == nil {
		hash = requestHash(req.Series, settings, prices)
		if prev, ok := s.reuse(ctx, hash); ok {
			prev.ID, prev.CreatedAt = req.ID, res.CreatedAt
			log.Info("analysis reused from cache")
			return prev, s.store(ctx, prev, hash)
		}
		err = s.analyze(ctx, prices, settings, res, log)
	}
	res.CompletedAt = time.Now().UTC()
	res.DurationMs = time.Since(started).Milliseconds()

	if err != nil {
		res.Status = models.AnalysisFailed
		res.Error = err.Error()
		s.metrics.RecordAnalysis(req.Series, string(res.Status), time.Since(started).Seconds())
		s.metrics.RecordError(errorKind(err))
		log.Error("analysis failed", logger.Error(err))
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if saveErr := s.results.SaveResult(context.WithoutCancel(ctx), res); saveErr != nil {
			log.Warn("failed analysis not stored", logger.Error(saveErr))
		}
		return res, err
	}

	res.Status = models.AnalysisCompleted
	s.metrics.RecordAnalysis(req.Series, string(res.Status), time.Since(started).Seconds())
	s.metrics.RecordChangePoints(req.Series, len(res.ChangePoints))
	s.metrics.RecordAcceptance(req.Series, meanAcceptance(res.Diagnostics))
	log.Info("analysis completed",
		logger.Int("change_points", len(res.ChangePoints)),
		logger.Bool("converged", res.Converged),
		logger.Int64("duration_ms", res.DurationMs))
	return res, s.store(ctx, res, hash)
}

func (s *AnalysisService) load(ctx context.Context, req *models.AnalysisRequest) ([]models.PricePoint, error) {
	from, to, err := parseRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	prices, err := s.prices.GetPrices(ctx, req.Series, from, to)
	s.metrics.RecordLatency("load_prices", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("load prices: %w", err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: no prices for series %q in range", domsvc.ErrDomain, req.Series)
	}
	return prices, nil
}

func (s *AnalysisService) analyze(ctx context.Context, prices []models.PricePoint, settings EngineSettings, res *models.AnalysisResult, log *logger.Logger) error {
	detector, err := settings.NewDetector(log)
	if err != nil {
		return err
	}
	returns, err := features.ComputeLogReturns(prices)
	if err != nil {
		return err
	}
	if n := features.CountOutliers(returns.Values); n > 0 {
		log.Info("return outliers kept", logger.Int("count", n))
	}
	res.Start, res.End = prices[0].Date, prices[len(prices)-1].Date
	res.Observations = len(prices)

	start := time.Now()
	cps, diags, err := detector.Detect(ctx, returns)
	s.metrics.RecordLatency("detect", time.Since(start).Seconds())
	res.Diagnostics = diags
	if err != nil {
		return err
	}
	res.ChangePoints = cps
	res.Regimes = changepoint.CompareRegimes(returns, prices, cps)
	res.Converged = allConverged(diags)

	events, err := s.events.ListEvents(ctx, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	assocs, err := s.associator.Associate(cps, events, settings.ToleranceDays)
	if err != nil {
		return err
	}
	res.Associations = assocs
	return nil
}

// requestHash identifies the inputs of an analysis, including the loaded data window, so new
// prices never hit a stale entry.
func requestHash(series string, settings EngineSettings, prices []models.PricePoint) string {
	last := prices[len(prices)-1]
	h, err := cache.HashOf(struct {
		Series   string
		Settings EngineSettings
		First    time.Time
		Last     models.PricePoint
		Count    int
	}{series, settings, prices[0].Date, last, len(prices)})
	if err != nil {
		return ""
	}
	return h
}

// store persists a completed result; cache and publishing failures are logged only.
func (s *AnalysisService) store(ctx context.Context, res *models.AnalysisResult, hash string) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.results.SaveResult(ctx, res); err != nil {
		s.metrics.RecordError("save_result")
		return fmt.Errorf("save result: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.GenerateKey(cacheNamespace, res.ID), res, s.cacheTTL); err != nil {
			s.log.Warn("cache analysis", logger.Error(err))
		}
		if hash != "" {
			_ = s.cache.Set(ctx, cache.GenerateKey(cacheNamespace, "req", hash), res.ID, s.cacheTTL)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishResult(ctx, res); err != nil {
			s.metrics.RecordError("publish_result")
			s.log.Warn("publish analysis", logger.String("id", res.ID), logger.Error(err))
		}
	}
	return nil
}

// reuse returns an earlier completed analysis with identical inputs; seeded sampling makes it
// equal to a fresh run.
func (s *AnalysisService) reuse(ctx context.Context, hash string) (*models.AnalysisResult, bool) {
	if s.cache == nil || hash == "" {
		return nil, false
	}
	var id string
	if err := s.cache.Get(ctx, cache.GenerateKey(cacheNamespace, "req", hash), &id); err != nil {
		return nil, false
	}
	prev, err := s.Get(ctx, id)
	if err != nil || prev.Status != models.AnalysisCompleted {
		return nil, false
	}
	return prev, true
}

// Get returns a stored analysis, cache first.
func (s *AnalysisService) Get(ctx context.Context, id string) (*models.AnalysisResult, error) {
	if s.cache != nil {
		if r, err := cache.GetTyped[models.AnalysisResult](ctx, s.cache, cache.GenerateKey(cacheNamespace, id)); err == nil {
			return r, nil
		}
	}
	return s.results.GetResult(ctx, id)
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if start != "" {
		if from, err = util.ParseDate(start); err != nil {
			return from, to, fmt.Errorf("%w: start_date: %v", domsvc.ErrConfiguration, err)
		}
	}
	if end != "" {
		if to, err = util.ParseDate(end); err != nil {
			return from, to, fmt.Errorf("%w: end_date: %v", domsvc.ErrConfiguration, err)
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("%w: end_date before start_date", domsvc.ErrConfiguration)
	}
	return from, to, nil
}

func allConverged(diags []models.Diagnostics) bool {
	if len(diags) == 0 {
		return false
	}
	for _, d := range diags {
		if !d.Converged {
			return false
		}
	}
	return true
}

func meanAcceptance(diags []models.Diagnostics) float64 {
	if len(diags) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range diags {
		sum += d.AcceptanceRate
	}
	return sum / float64(len(diags))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domsvc.ErrDomain):
		return "domain"
	case errors.Is(err, domsvc.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domsvc.ErrInsufficientSamples), errors.Is(err, domsvc.ErrEmptyChain):
		return "sampling"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "analysis"
	}
}
