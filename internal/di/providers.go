package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domrepo "BrentShift/internal/domain/repository"
	"BrentShift/internal/handler/api"
	internalrepo "BrentShift/internal/repository"
	"BrentShift/internal/service/ratelimit"
	"BrentShift/internal/services/changepoint"
	"BrentShift/internal/services/events"
	"BrentShift/internal/usecase"
	"BrentShift/pkg/cache"
	pkgch "BrentShift/pkg/clickhouse"
	"BrentShift/pkg/config"
	xhttp "BrentShift/pkg/http"
	pkgkafka "BrentShift/pkg/kafka"
	"BrentShift/pkg/logger"
	"BrentShift/pkg/metrics"
	"BrentShift/pkg/queue"
	"BrentShift/pkg/server"
)

// Stores groups the storage backends selected by data.backend.
type Stores struct {
	Prices  domrepo.PriceStore
	Events  domrepo.EventStore
	Results domrepo.ResultStore
}

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder, or a no-op one when metrics are disabled.
func ProvideMetrics(cfg *config.Config) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideEngineSettings maps the sampler, priors, segmentation and association sections.
func ProvideEngineSettings(cfg *config.Config) usecase.EngineSettings {
	s := cfg.Sampler
	return usecase.EngineSettings{
		Sampler: changepoint.Config{
			Iterations:     s.Iterations,
			BurnIn:         s.BurnIn,
			Steps:          changepoint.StepSizes{Mu: s.StepMu, Sigma: s.StepSigma, Tau: s.StepTau},
			Seed:           s.Seed,
			Chains:         s.Chains,
			TauJumpProb:    s.TauJumpProb,
			Adapt:          s.Adapt,
			AcceptanceLow:  s.AcceptanceLow,
			AcceptanceHigh: s.AcceptanceHigh,
			RHatThreshold:  s.RHatThreshold,
			MinESS:         s.MinESS,
		},
		Model:  changepoint.ModelKind(cfg.Priors.Model),
		Priors: changepoint.Priors{MuScale: cfg.Priors.MuScale, SigmaScale: cfg.Priors.SigmaScale},
		Segmentation: changepoint.SegmentationConfig{
			Enabled:         cfg.Segmentation.Enabled,
			MinSegment:      cfg.Segmentation.MinSegment,
			MaxChangePoints: cfg.Segmentation.MaxChangePoints,
			DiffuseFraction: cfg.Segmentation.DiffuseFraction,
			MinEffect:       cfg.Segmentation.MinEffect,
			CredibleLevel:   s.CredibleLevel,
		},
		ToleranceDays: cfg.Association.ToleranceDays,
	}
}

// ProvideClickHouseClient creates a ClickHouse client and bootstraps the schema. Nil for the memory backend.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Data.Backend != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		pkgch.WithBatchSize(cfg.ClickHouse.BatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideStores builds the stores of the configured backend and loads the CSV inputs into them.
// The clickhouse backend is seeded only when the series has no prices yet.
func ProvideStores(cfg *config.Config, ch *pkgch.Client, log *logger.Logger) (*Stores, error) {
	loader := internalrepo.NewCSVLoader(log)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	catalog := events.Catalog()
	if cfg.Data.EventsCSV != "" {
		evs, err := loader.LoadEventsFile(cfg.Data.EventsCSV)
		if err != nil {
			return nil, err
		}
		catalog = evs
	}

	if cfg.Data.Backend != "clickhouse" {
		prices := internalrepo.NewMemoryPriceStore()
		if err := seedPrices(ctx, loader, prices, cfg, log); err != nil {
			return nil, err
		}
		return &Stores{
			Prices:  prices,
			Events:  internalrepo.NewMemoryEventStore(catalog),
			Results: internalrepo.NewMemoryResultStore(),
		}, nil
	}

	if ch == nil {
		return nil, fmt.Errorf("clickhouse backend selected without a client")
	}
	store := internalrepo.NewCHStore(ch, log)
	if cfg.Data.SeedClickHouse {
		n, err := store.CountPrices(ctx, cfg.Data.Series)
		if err != nil {
			return nil, err
		}
		if n == 0 && cfg.Data.PricesCSV != "" {
			if err := seedPrices(ctx, loader, store, cfg, log); err != nil {
				return nil, err
			}
		}
		existing, err := store.ListEvents(ctx, time.Time{}, time.Time{})
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			if err := store.StoreEvents(ctx, catalog); err != nil {
				return nil, err
			}
		}
	}
	return &Stores{Prices: store, Events: store, Results: store}, nil
}

func seedPrices(ctx context.Context, loader *internalrepo.CSVLoader, store domrepo.PriceStore, cfg *config.Config, log *logger.Logger) error {
	points, rep, err := loader.LoadPricesFile(cfg.Data.PricesCSV)
	if err != nil {
		return err
	}
	if err := store.StorePrices(ctx, cfg.Data.Series, points); err != nil {
		return fmt.Errorf("seed prices: %w", err)
	}
	log.Info("prices loaded",
		logger.String("series", cfg.Data.Series),
		logger.String("file", cfg.Data.PricesCSV),
		logger.Int("kept", rep.Kept),
		logger.Int("rows", rep.Rows))
	return nil
}

// ProvideKafkaProducer creates a Kafka producer. Nil when kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	p := cfg.Kafka.Producer
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(p.MaxAttempts),
		pkgkafka.WithBatching(p.BatchSize, p.BatchBytes, p.Linger),
		pkgkafka.WithTimeouts(p.WriteTimeout, p.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvidePublisher announces change points on the results topic, or drops them without kafka.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.Publisher {
	if producer == nil {
		return internalrepo.NoopPublisher{}
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideKafkaConsumer creates the price ingestion consumer. Nil unless kafka.consumer is enabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers, c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithHook(pkgkafka.NewLoggingHook(log))
	return consumer, nil
}

// ProvidePricesHandler handles messages of the prices topic.
func ProvidePricesHandler(cfg *config.Config, stores *Stores, m domrepo.Metrics) *usecase.KafkaPricesHandler {
	return usecase.NewKafkaPricesHandler(cfg.Kafka.PricesTopic, cfg.Data.Series, stores.Prices, m)
}

// ProvideRedisCache connects to Redis. Nil when redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process LRU over Redis, or uses the LRU alone without Redis.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	opts := []cache.MemoryOption{
		cache.WithMemoryMaxSize(cfg.Cache.MemoryEntries),
		cache.WithMemoryTTL(cfg.Cache.TTL),
	}
	if rc == nil {
		return cache.NewMemoryCache(append(opts, cache.WithMemoryCleanup(time.Minute))...)
	}
	return cache.NewLayeredCache(rc, opts...)
}

// ProvideQueue creates the Redis analysis queue. Nil unless queue.enabled.
func ProvideQueue(cfg *config.Config, rc *cache.RedisCache, log *logger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil {
		return nil
	}
	return queue.NewRedisQueue(log, queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
		JobTimeout: cfg.Queue.JobTimeout,
		PollEvery:  time.Second,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue:"+cfg.Queue.Name))
}

// ProvideAnalysisService wires the engine with its stores, cache, queue and publisher.
func ProvideAnalysisService(
	cfg *config.Config,
	stores *Stores,
	settings usecase.EngineSettings,
	m domrepo.Metrics,
	pub domrepo.Publisher,
	c cache.Service,
	q *queue.RedisQueue,
	log *logger.Logger,
) *usecase.AnalysisService {
	opts := []usecase.AnalysisOption{
		usecase.WithPublisher(pub),
		usecase.WithCache(c, cfg.Cache.TTL),
	}
	if q != nil {
		opts = append(opts, usecase.WithQueue(q))
	}
	return usecase.NewAnalysisService(stores.Prices, stores.Events, stores.Results,
		events.NewAssociator(), m, settings, log, opts...)
}

// ProvideAnalysisJob registers the analysis job with the queue workers. Nil without a queue.
func ProvideAnalysisJob(cfg *config.Config, q *queue.RedisQueue, svc *usecase.AnalysisService, c cache.Service, log *logger.Logger) (*usecase.AnalysisJob, error) {
	if q == nil {
		return nil, nil
	}
	job := usecase.NewAnalysisJob(svc, c, cfg.Queue.JobTimeout, log)
	if err := q.RegisterJob(job); err != nil {
		return nil, fmt.Errorf("register analysis job: %w", err)
	}
	return job, nil
}

func ProvideDashboard(stores *Stores) *usecase.Dashboard {
	return usecase.NewDashboard(stores.Prices, stores.Events, stores.Results)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(float64(cfg.RateLimit.Burst), cfg.RateLimit.RPS)
}

func ProvideChangePointsHandler(log *logger.Logger, d *usecase.Dashboard, svc *usecase.AnalysisService, l *ratelimit.Limiter) *api.ChangePointsHandler {
	return api.NewChangePointsHandler(log, d, svc, l)
}

// ProvideHTTPServer creates the Echo server with the dashboard routes.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, h *api.ChangePointsHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(log, []xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithMetrics(metricsPath, prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
	)
}

// ProvideApp creates the application server and registers resources to close on shutdown.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	ph *usecase.KafkaPricesHandler,
	q *queue.RedisQueue,
	_ *usecase.AnalysisJob,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	app := server.New(log, srv, consumer, ph, q)
	if ch != nil {
		app.OnShutdown("clickhouse", ch)
	}
	app.OnShutdown("cache", c)
	if producer != nil {
		app.OnShutdown("kafka producer", producer)
	}
	log.Info("app wired",
		logger.String("backend", cfg.Data.Backend),
		logger.String("series", cfg.Data.Series),
		logger.Bool("kafka", cfg.Kafka.Enabled),
		logger.Bool("queue", q != nil))
	return app
}
