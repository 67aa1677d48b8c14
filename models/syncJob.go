package models

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncJob is a queued unit of index-sync work. Rows are written inside the
// caller's DB transaction ("transactional outbox") and picked up by the
// dispatcher after commit, so a rolled-back document change never enqueues.
type SyncJob struct {
	ID         int           `gorm:"primary_key;index:idx_sync_job_dispatch,priority:3" json:"id"`
	BusinessId string        `gorm:"size:64;not null;index" json:"business_id"`
	QueueName  string        `gorm:"size:100;not null;default:'document-process'" json:"queue_name"`
	JobName    string        `gorm:"size:100;not null;index" json:"job_name"`
	DocumentId int           `gorm:"index" json:"document_id"`
	Payload    []byte        `gorm:"type:blob" json:"payload"`
	Status     SyncJobStatus `gorm:"type:enum('PENDING','PROCESSING','DONE','FAILED','DEAD');default:'PENDING';index;index:idx_sync_job_dispatch,priority:1" json:"status"`

	// retry policy, fixed per job at enqueue time
	MaxAttempts    int         `gorm:"not null;default:1" json:"max_attempts"`
	Attempts       int         `gorm:"not null;default:0" json:"attempts"`
	BackoffType    BackoffType `gorm:"type:enum('FIXED','EXPONENTIAL');default:'FIXED'" json:"backoff_type"`
	BackoffDelayMs int64       `gorm:"not null;default:0" json:"backoff_delay_ms"`

	// dispatch metadata
	NextAttemptAt *time.Time `gorm:"index;index:idx_sync_job_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt      *time.Time `gorm:"index" json:"locked_at"`
	LockedBy      *string    `gorm:"size:100" json:"locked_by"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	CompletedAt   *time.Time `json:"completed_at"`

	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// JobOptions selects retry and delay behavior for an enqueued job.
type JobOptions struct {
	MaxAttempts    int
	BackoffType    BackoffType
	BackoffDelayMs int64
	DelayMs        int64
}

// EnqueueSyncJob writes a job row using the given tx handle. It does NOT
// dispatch; the dispatcher claims the row after the surrounding transaction
// commits.
func EnqueueSyncJob(ctx context.Context, tx *gorm.DB, businessId string, jobName string, documentId int, payload interface{}, opts JobOptions) (*SyncJob, error) {
	var payloadBytes []byte
	var err error
	if payload != nil {
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffType == "" {
		opts.BackoffType = BackoffTypeFixed
	}

	var nextAttemptAt *time.Time
	if opts.DelayMs > 0 {
		t := time.Now().Add(time.Duration(opts.DelayMs) * time.Millisecond)
		nextAttemptAt = &t
	}

	job := SyncJob{
		BusinessId:     businessId,
		QueueName:      "document-process",
		JobName:        jobName,
		DocumentId:     documentId,
		Payload:        payloadBytes,
		Status:         SyncJobStatusPending,
		MaxAttempts:    opts.MaxAttempts,
		BackoffType:    opts.BackoffType,
		BackoffDelayMs: opts.BackoffDelayMs,
		NextAttemptAt:  nextAttemptAt,
		CorrelationId:  correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
