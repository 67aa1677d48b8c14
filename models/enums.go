package models

// SyncStatus is the index-sync lifecycle state of a document.
type SyncStatus string

const (
	SyncStatusNotSync      SyncStatus = "NOT_SYNC"
	SyncStatusPendingSync  SyncStatus = "PENDING_SYNC"
	SyncStatusSync         SyncStatus = "SYNC"
	SyncStatusFailedSync   SyncStatus = "FAILED_SYNC"
	SyncStatusFailedResync SyncStatus = "FAILED_RESYNC"
)

// IsSynced reports whether the document has an index entry to maintain.
func (s SyncStatus) IsSynced() bool {
	return s == SyncStatusSync || s == SyncStatusFailedResync
}

type UserRole string

const (
	UserRoleAdmin  UserRole = "A"
	UserRoleOwner  UserRole = "O"
	UserRoleCommon UserRole = "C"
)

// SyncJobStatus is the dispatch state of a queued sync job.
type SyncJobStatus string

const (
	SyncJobStatusPending    SyncJobStatus = "PENDING"
	SyncJobStatusProcessing SyncJobStatus = "PROCESSING"
	SyncJobStatusDone       SyncJobStatus = "DONE"
	SyncJobStatusFailed     SyncJobStatus = "FAILED"
	SyncJobStatusDead       SyncJobStatus = "DEAD"
)

// BackoffType selects the retry delay curve for a sync job.
type BackoffType string

const (
	BackoffTypeFixed       BackoffType = "FIXED"
	BackoffTypeExponential BackoffType = "EXPONENTIAL"
)

// Job names understood by the sync worker.
const (
	JobSyncDocument         = "sync-document"
	JobResyncDocument       = "resync-document"
	JobRemoveResyncDocument = "remove-and-resync-document"
	JobUnsyncDocument       = "unsync-document"
	JobCheckSyncStatus      = "check-sync-status"
)
