package docsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobHandler executes one claimed job. A returned error schedules a retry
// (or DEAD once the job's attempt budget is spent).
type JobHandler func(ctx context.Context, job *models.SyncJob) error

// Dispatcher polls the sync_jobs table and hands claimed rows to the worker,
// either in-process or through a Pub/Sub push subscription. Claims use
// SKIP LOCKED so multiple replicas can poll the same table safely.
type Dispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	Handler      JobHandler
	DispatcherID string
	TopicName    string

	BatchSize    int
	PollInterval time.Duration
	LockTimeout  time.Duration
	Workers      int
}

func NewDispatcher(db *gorm.DB, logger *logrus.Logger, handler JobHandler) *Dispatcher {
	return &Dispatcher{
		DB:           db,
		Logger:       logger,
		Handler:      handler,
		DispatcherID: uuid.NewString(),
		TopicName:    "document-process",
		BatchSize:    50,
		PollInterval: 500 * time.Millisecond,
		LockTimeout:  2 * time.Minute,
		Workers:      2,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

func (d *Dispatcher) dispatchOnce(ctx context.Context) {
	now := time.Now().UTC()
	staleBefore := now.Add(-d.LockTimeout)
	db := d.DB
	if db == nil {
		return
	}

	var claimed []models.SyncJob
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to run
		// - PROCESSING but lock is stale (worker crashed mid-job), reclaim after LockTimeout
		q := tx.
			Where(`
				(
					status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []models.SyncJobStatus{models.SyncJobStatusPending, models.SyncJobStatusFailed}, now, models.SyncJobStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		for i := range claimed {
			// Jobs that already spent their budget go terminal.
			if claimed[i].Attempts >= claimed[i].MaxAttempts {
				msg := fmt.Sprintf("max attempts exceeded (%d)", claimed[i].MaxAttempts)
				claimed[i].Status = models.SyncJobStatusDead
				if err := tx.Model(&models.SyncJob{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"status":          models.SyncJobStatusDead,
					"last_error":      &msg,
					"next_attempt_at": nil,
					"locked_at":       nil,
					"locked_by":       nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].Status = models.SyncJobStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].Attempts = claimed[i].Attempts + 1
			claimed[i].LastError = nil
			if err := tx.Model(&models.SyncJob{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"status":          claimed[i].Status,
				"locked_at":       claimed[i].LockedAt,
				"locked_by":       claimed[i].LockedBy,
				"attempts":        gorm.Expr("attempts + 1"),
				"last_error":      nil,
				"next_attempt_at": nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(claimed) == 0 {
		return
	}

	sem := make(chan struct{}, d.workerCount())
	var wg sync.WaitGroup
	for i := range claimed {
		job := claimed[i]
		if job.Status == models.SyncJobStatusDead {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			d.deliver(ctx, job)
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) workerCount() int {
	if d.Workers < 1 {
		return 1
	}
	return d.Workers
}

// deliver runs the job in-process, or ships it to the push subscription when
// the push endpoint is configured. A pushed job stays PROCESSING until the
// push handler reports the outcome; lost pushes are reclaimed after
// LockTimeout.
func (d *Dispatcher) deliver(ctx context.Context, job models.SyncJob) {
	if config.SyncDirectProcessing() || !config.SyncPushEndpointEnabled() {
		d.process(ctx, job)
		return
	}

	_, err := config.PublishJSON(ctx, d.TopicName, JobPubSubPayload{
		JobId:      job.ID,
		BusinessId: job.BusinessId,
		JobName:    job.JobName,
	})
	if err != nil {
		d.markFailed(ctx, job, err)
	}
}

func (d *Dispatcher) process(ctx context.Context, job models.SyncJob) {
	// A panicking handler must not take the dispatcher down; the job fails
	// and retries like any other error.
	defer func() {
		if r := recover(); r != nil {
			d.markFailed(ctx, job, fmt.Errorf("job handler panic: %v", r))
		}
	}()
	if err := d.Handler(ctx, &job); err != nil {
		d.markFailed(ctx, job, err)
		return
	}
	d.markDone(ctx, job.ID)
}

// ProcessPushed resolves a job id delivered through the push subscription
// and runs it. Jobs no longer PROCESSING are acked without work: the row
// was already completed directly or reclaimed by another dispatcher.
func (d *Dispatcher) ProcessPushed(ctx context.Context, jobId int) error {
	var job models.SyncJob
	if err := d.DB.WithContext(ctx).Where("id = ?", jobId).First(&job).Error; err != nil {
		return err
	}
	if job.Status != models.SyncJobStatusProcessing {
		return nil
	}
	d.process(ctx, job)
	return nil
}

func (d *Dispatcher) markDone(ctx context.Context, jobId int) {
	now := time.Now().UTC()
	_ = d.DB.WithContext(ctx).Model(&models.SyncJob{}).
		Where("id = ?", jobId).
		Updates(map[string]interface{}{
			"status":          models.SyncJobStatusDone,
			"completed_at":    &now,
			"locked_at":       nil,
			"locked_by":       nil,
			"next_attempt_at": nil,
		}).Error
}

func (d *Dispatcher) markFailed(ctx context.Context, job models.SyncJob, jobErr error) {
	db := d.DB.WithContext(ctx)
	now := time.Now().UTC()
	msg := jobErr.Error()

	// Terminal after the job's attempt budget.
	if job.Attempts >= job.MaxAttempts {
		_ = db.Model(&models.SyncJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":          models.SyncJobStatusDead,
				"last_error":      &msg,
				"next_attempt_at": nil,
				"locked_at":       nil,
				"locked_by":       nil,
			}).Error

		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":          "Dispatcher",
				"business_id":    job.BusinessId,
				"job_id":         job.ID,
				"job_name":       job.JobName,
				"correlation_id": job.CorrelationId,
				"attempt":        job.Attempts,
			}).Error("sync job moved to DEAD after max attempts: " + fmt.Sprintf("%v", jobErr))
		}
		return
	}

	next := now.Add(backoffDelay(job.BackoffType, job.BackoffDelayMs, job.Attempts))
	_ = db.Model(&models.SyncJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          models.SyncJobStatusFailed,
			"last_error":      &msg,
			"next_attempt_at": &next,
			"locked_at":       nil,
			"locked_by":       nil,
		}).Error

	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "Dispatcher",
			"business_id":     job.BusinessId,
			"job_id":          job.ID,
			"job_name":        job.JobName,
			"correlation_id":  job.CorrelationId,
			"attempt":         job.Attempts,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("sync job failed: " + fmt.Sprintf("%v", jobErr))
	}
}

// backoffDelay computes the wait before the next attempt. attempt is the
// 1-based count of attempts already made.
func backoffDelay(kind models.BackoffType, delayMs int64, attempt int) time.Duration {
	base := time.Duration(delayMs) * time.Millisecond
	if base <= 0 {
		base = 5 * time.Second
	}
	if kind != models.BackoffTypeExponential {
		return base
	}
	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > time.Minute*10 {
			return time.Minute * 10
		}
	}
	return backoff
}
