package usecase

import (
	"context"
	"encoding/json"
	"time"

	"BrentShift/internal/domain/models"
	"BrentShift/pkg/cache"
	"BrentShift/pkg/logger"
	"BrentShift/pkg/queue"
)

// AnalysisJob runs queued analyses on the queue workers.
type AnalysisJob struct {
	svc     *AnalysisService
	locks   cache.Service
	lockTTL time.Duration
	log     *logger.Logger
}

var _ queue.Job = (*AnalysisJob)(nil)

// NewAnalysisJob creates the job. locks may be nil; with it, a redelivered message whose
// analysis is already running elsewhere is skipped.
func NewAnalysisJob(svc *AnalysisService, locks cache.Service, lockTTL time.Duration, log *logger.Logger) *AnalysisJob {
	if log == nil {
		log = logger.Nop()
	}
	return &AnalysisJob{svc: svc, locks: locks, lockTTL: lockTTL, log: log}
}

func (j *AnalysisJob) Type() string { return AnalyzeJobType }

func (j *AnalysisJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[models.AnalysisRequest](payload)
	if err != nil {
		return err
	}
	if j.locks != nil && req.ID != "" {
		key := cache.GenerateKey("lock", cacheNamespace, req.ID)
		ok, err := j.locks.TryLock(ctx, key, j.lockTTL)
		if err != nil {
			return err
		}
		if !ok {
			j.log.Warn("analysis already running", logger.String("id", req.ID))
			return nil
		}
		defer func() { _ = j.locks.Unlock(context.WithoutCancel(ctx), key) }()
	}
	_, err = j.svc.Run(ctx, req)
	return err
}
