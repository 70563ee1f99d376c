package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"BrentShift/pkg/logger"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
)

// RedisQueue is a list-backed job queue with a delayed retry set and a dead-letter list.
type RedisQueue struct {
	log       *logger.Logger
	cfg       Config
	client    *redis.Client
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	mode      QueueMode
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
}

var _ Publisher = (*RedisQueue)(nil)

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.keyPrefix = prefix }
}

func WithMode(mode QueueMode) RedisQueueOption {
	return func(r *RedisQueue) { r.mode = mode }
}

func NewRedisQueue(log *logger.Logger, cfg Config, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 5 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		log:       log,
		cfg:       cfg,
		client:    client,
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
		keyPrefix: "brentshift:queue",
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJob registers a job for its type. Registering a type twice is an error.
func (r *RedisQueue) RegisterJob(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.Type()]; exists {
		return fmt.Errorf("job already registered for type %s", job.Type())
	}
	r.jobs[job.Type()] = job
	r.log.Info("job registered", logger.String("type", job.Type()))
	return nil
}

// Start pings Redis and launches the workers and the retry poller.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	r.running = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	if r.mode == ModeProducerOnly {
		r.log.Info("redis publisher started", logger.String("addr", r.client.Options().Addr))
		return nil
	}
	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryProcessor()
	r.log.Info("redis queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("prefix", r.keyPrefix))
	return nil
}

// Stop cancels in-flight jobs and waits for the workers or ctx.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		r.log.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message and returns its ID.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload any) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return "", fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return "", fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{ID: uuid.NewString(), Type: msgType, Payload: raw, EnqueuedAt: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

// Pending returns the number of queued messages, excluding scheduled retries.
func (r *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.queueKey()).Result()
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.log.Debug("queue worker started", logger.Int("worker_id", id))
	for r.ctx.Err() == nil {
		r.processNext()
	}
	r.log.Debug("queue worker stopped", logger.Int("worker_id", id))
}

func (r *RedisQueue) processNext() {
	result, err := r.client.BRPop(r.ctx, time.Second, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return
		}
		r.log.Error("brpop error", logger.Error(err))
		sleepCtx(r.ctx, time.Second)
		return
	}
	if len(result) < 2 {
		return
	}
	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.log.Error("unmarshal message", logger.Error(err))
		return
	}
	r.process(msg)
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}

	ctx := r.ctx
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(r.ctx, r.cfg.JobTimeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		r.log.Info("job done",
			logger.String("id", msg.ID),
			logger.String("type", msg.Type),
			logger.Duration("elapsed", time.Since(start)))
		return
	}
	if errors.Is(err, context.Canceled) && r.ctx.Err() != nil {
		// shutting down: put the message back for the next process
		if data, mErr := json.Marshal(msg); mErr == nil {
			_ = r.client.RPush(context.Background(), r.queueKey(), data).Err()
		}
		return
	}
	r.handleFailure(msg, err)
}

func (r *RedisQueue) handleFailure(msg Message, err error) {
	msg.LastError = err.Error()
	r.log.Error("job failed",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.cfg.RetryLimit {
		r.log.Error("max retries reached", logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}
	msg.Attempts++
	retryAt := time.Now().Add(r.cfg.RetryDelay)
	data, mErr := json.Marshal(msg)
	if mErr != nil {
		r.log.Error("marshal retry", logger.Error(mErr))
		return
	}
	if zErr := r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(retryAt.Unix()),
		Member: data,
	}).Err(); zErr != nil {
		r.log.Error("zadd retry", logger.Error(zErr))
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), data).Err(); err != nil {
		r.log.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryProcessor() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.requeueDue()
		}
	}
}

// requeueDue moves retries whose time has come back onto the main list.
func (r *RedisQueue) requeueDue() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.log.Error("fetch retry messages", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.retryKey(), member)
		pipe.LPush(r.ctx, r.queueKey(), member)
		if _, err := pipe.Exec(r.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.log.Error("move retry to queue", logger.Error(err))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }
