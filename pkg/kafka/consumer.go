package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"BrentShift/pkg/logger"
)

// ErrPermanent marks handler errors that retrying cannot fix, such as undecodable payloads.
var ErrPermanent = errors.New("permanent failure")

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

type partitionKey struct {
	topic     string
	partition int
}

// Consumer reads registered topics through one consumer group and dispatches messages to a
// worker pool. Offsets are committed after success, or after a failed message reached the DLQ.
type Consumer struct {
	cfg      ConsumerConfig
	log      *logger.Logger
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer
	hook     ConsumerHook
	msgs     chan kafka.Message

	cancel   context.CancelFunc
	fetchers sync.WaitGroup
	workers  sync.WaitGroup
	stopOnce sync.Once

	lockMu    sync.Mutex
	partLocks map[partitionKey]*sync.Mutex
}

// NewConsumer creates a consumer; nothing connects until Start.
func NewConsumer(log *logger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:     "brentshift",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  100 * time.Millisecond,
		BackoffMax:  5 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Consumer{
		cfg:       cfg,
		log:       log.With(logger.String("component", "kafka_consumer"), logger.String("group", cfg.GroupID)),
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]*kafka.Reader),
		hook:      NoopHook{},
		msgs:      make(chan kafka.Message, cfg.BufferSize),
		partLocks: make(map[partitionKey]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.Hash{}}
	}
	initConsumerMetrics()
	return c, nil
}

// RegisterHandler binds a handler to its topic. Call before Start.
func (c *Consumer) RegisterHandler(h MessageHandler) error {
	if _, ok := c.handlers[h.Topic()]; ok {
		return fmt.Errorf("handler already registered for topic %s", h.Topic())
	}
	c.handlers[h.Topic()] = h
	return nil
}

// WithHook sets the lifecycle hook; nil keeps the current one.
func (c *Consumer) WithHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start launches one fetcher per topic and the worker pool. It does not block.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for topic := range c.handlers {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
		c.readers[topic] = r
		c.fetchers.Add(1)
		go c.fetch(ctx, topic, r)
	}
	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.workers.Add(1)
		go c.work(ctx)
	}
	go func() {
		c.fetchers.Wait()
		close(c.msgs)
	}()

	c.log.Info("kafka consumer started",
		logger.Int("topics", len(c.handlers)),
		logger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop cancels fetching, lets in-flight messages finish and closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		done := make(chan struct{})
		go func() {
			c.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}
		for topic, r := range c.readers {
			if err := r.Close(); err != nil {
				c.log.Warn("close reader", logger.String("topic", topic), logger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("close dlq writer", logger.Error(err))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return stopErr
}

func (c *Consumer) fetch(ctx context.Context, topic string, r *kafka.Reader) {
	defer c.fetchers.Done()
	attempt := 0
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			c.log.Warn("fetch message", logger.String("topic", topic), logger.Error(err))
			if !sleepCtx(ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
				return
			}
			continue
		}
		attempt = 0
		select {
		case c.msgs <- m:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgs)))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) work(ctx context.Context) {
	defer c.workers.Done()
	// in-flight messages finish even after Stop cancels fetching
	handleCtx := context.WithoutCancel(ctx)
	for m := range c.msgs {
		lock := c.partitionLock(m.Topic, m.Partition)
		lock.Lock()
		err := c.process(handleCtx, ctx.Done(), m)
		if err == nil || c.dlq != nil {
			if r := c.readers[m.Topic]; r != nil {
				c.commit(handleCtx, r, m)
			}
		}
		lock.Unlock()
	}
}

// process runs the handler with retries. stop aborts pending backoffs.
func (c *Consumer) process(ctx context.Context, stop <-chan struct{}, m kafka.Message) error {
	h, ok := c.handlers[m.Topic]
	if !ok {
		return fmt.Errorf("%w: no handler for topic %s", ErrPermanent, m.Topic)
	}
	start := time.Now()
	var err error
	for attempt := 1; ; attempt++ {
		hctx, hmsg, data, berr := c.hook.BeforeHandle(ctx, m.Topic, m, m.Value)
		if berr != nil {
			err = berr
			break
		}
		err = safeHandle(hctx, h, data)
		c.hook.AfterHandle(hctx, m.Topic, hmsg, data, err)
		if err == nil || errors.Is(err, ErrPermanent) || attempt > c.cfg.RetryMax {
			break
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-stop:
			return err
		}
	}

	result := "ok"
	if err != nil {
		result = "error"
		c.hook.OnError(ctx, m.Topic, m, m.Value, err)
		c.toDLQ(ctx, m, err)
	}
	consumerMessages.WithLabelValues(m.Topic, result).Inc()
	consumerLatency.WithLabelValues(m.Topic).Observe(time.Since(start).Seconds())
	return err
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: handler panic: %v", ErrPermanent, r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) toDLQ(ctx context.Context, m kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(m.Topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("write to dlq", logger.String("topic", c.cfg.DLQTopic), logger.Error(err))
	}
}

func (c *Consumer) commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = r.CommitMessages(cctx, m)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("commit offset",
		logger.String("topic", m.Topic),
		logger.Int("partition", m.Partition),
		logger.Int64("offset", m.Offset),
		logger.Error(err))
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	k := partitionKey{topic, partition}
	l, ok := c.partLocks[k]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[k] = l
	}
	return l
}

// backoffWithJitter doubles from min up to max and removes up to half as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := max
	if attempt < 30 {
		exp = min * time.Duration(1<<uint(attempt-1))
	}
	if exp > max || exp <= 0 {
		exp = max
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int64N(half))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var (
	consumerOnce       sync.Once
	consumerQueueDepth *prometheus.GaugeVec
	consumerMessages   *prometheus.CounterVec
	consumerLatency    *prometheus.HistogramVec
)

func initConsumerMetrics() {
	consumerOnce.Do(func() {
		consumerQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "brentshift_kafka_consumer_queue_depth",
			Help: "Messages waiting for a worker",
		}, []string{"topic"})
		consumerMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "brentshift_kafka_consumer_messages_total",
			Help: "Messages handled by result",
		}, []string{"topic", "result"})
		consumerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "brentshift_kafka_consumer_handle_seconds",
			Help:    "Handling time per message including retries",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
		register(consumerQueueDepth, consumerMessages, consumerLatency)
	})
}
