package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/models"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

const dateLayout = "2006-01-02"

// HandleJob is the dispatcher's entry point. Every handler reloads the
// document row fresh; payload data from enqueue time is only trusted for
// identity and for fields that outlive the row (doc index id, old key).
func (s *Service) HandleJob(ctx context.Context, job *models.SyncJob) error {
	ctx = utils.SetBusinessIdInContext(ctx, job.BusinessId)
	ctx = utils.SetCorrelationIdInContext(ctx, job.CorrelationId)

	if s.Client == nil && job.JobName != models.JobCheckSyncStatus {
		return errors.New("doc index client is not configured")
	}

	switch job.JobName {
	case models.JobSyncDocument:
		return s.handleSync(ctx, job)
	case models.JobResyncDocument:
		return s.handleResync(ctx, job)
	case models.JobRemoveResyncDocument:
		return s.handleRemoveResync(ctx, job)
	case models.JobUnsyncDocument:
		return s.handleUnsync(ctx, job)
	case models.JobCheckSyncStatus:
		return s.handleCheckSyncStatus(ctx, job)
	}
	return fmt.Errorf("unknown job name %q", job.JobName)
}

func (s *Service) handleSync(ctx context.Context, job *models.SyncJob) error {
	var p DocumentJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return err
	}
	doc, err := s.loadPendingDocument(ctx, p.BusinessId, p.Id)
	if err != nil || doc == nil {
		return err
	}

	docIndexId, callErr := s.Client.Sync(ctx, buildMetadata(doc))
	if callErr != nil {
		return s.concludeFailure(ctx, job, doc, EventSyncFailed, callErr)
	}
	return s.concludeSuccess(ctx, doc, EventSyncSucceeded, docIndexId)
}

func (s *Service) handleResync(ctx context.Context, job *models.SyncJob) error {
	var p DocumentJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return err
	}
	doc, err := s.loadPendingDocument(ctx, p.BusinessId, p.Id)
	if err != nil || doc == nil {
		return err
	}

	docIndexId, callErr := s.Client.Resync(ctx, utils.DereferencePtr(doc.DocIndexId), buildMetadata(doc))
	if callErr != nil {
		return s.concludeFailure(ctx, job, doc, EventResyncFailed, callErr)
	}
	return s.concludeSuccess(ctx, doc, EventResyncSucceeded, docIndexId)
}

func (s *Service) handleRemoveResync(ctx context.Context, job *models.SyncJob) error {
	var p RemoveResyncJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return err
	}
	doc, err := s.loadPendingDocument(ctx, p.BusinessId, p.Id)
	if err != nil || doc == nil {
		return err
	}

	docIndexId, callErr := s.Client.RemoveAndResync(ctx, p.DocIndexId, p.OldKey, buildMetadata(doc))
	if callErr != nil {
		return s.concludeFailure(ctx, job, doc, EventResyncFailed, callErr)
	}
	return s.concludeSuccess(ctx, doc, EventResyncSucceeded, docIndexId)
}

// handleUnsync has no document transition to apply: the row already moved to
// NOT_SYNC (or was deleted) when the job was enqueued. Errors simply retry.
func (s *Service) handleUnsync(ctx context.Context, job *models.SyncJob) error {
	var p UnsyncJobPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return err
	}
	if p.DocIndexId == "" {
		return nil
	}
	return s.Client.Unsync(ctx, p.DocIndexId)
}

// handleCheckSyncStatus is the watchdog: a document still PENDING_SYNC this
// long after its trigger lost its job somewhere, so mark it failed and free
// the lock. Documents that completed in the meantime are left alone.
func (s *Service) handleCheckSyncStatus(ctx context.Context, job *models.SyncJob) error {
	var p CheckSyncStatusPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return err
	}
	doc, err := s.loadDocument(ctx, p.BusinessId, p.Id)
	if err != nil || doc == nil {
		return err
	}

	event := EventWatchdogExpired
	if p.Origin == "resync" {
		event = EventResyncWatchdogExpired
	}
	tr, err := Decide(event, snapshotOf(doc))
	if err != nil || tr.NoChange {
		return err
	}

	config.LogError(s.Logger, moduleName, "handleCheckSyncStatus", "Document stuck in PENDING_SYNC", doc.ID,
		errors.New("sync watchdog expired"))
	return s.applyTransition(ctx, doc, tr, "")
}

// loadPendingDocument reloads the row and screens out jobs whose document
// moved on: a deleted row or a non-pending state means the job is stale and
// completes without work.
func (s *Service) loadPendingDocument(ctx context.Context, businessId string, id int) (*models.Document, error) {
	doc, err := s.loadDocument(ctx, businessId, id)
	if err != nil || doc == nil {
		return nil, err
	}
	if doc.SyncStatus != models.SyncStatusPendingSync {
		return nil, nil
	}
	return doc, nil
}

func (s *Service) loadDocument(ctx context.Context, businessId string, id int) (*models.Document, error) {
	doc, err := models.GetDocument(ctx, businessId, id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// concludeFailure applies the fail transition only on the job's last
// attempt; earlier attempts leave the document pending so the retry can
// still succeed. The error always propagates so the dispatcher schedules
// the retry or marks the job dead.
func (s *Service) concludeFailure(ctx context.Context, job *models.SyncJob, doc *models.Document, event Event, cause error) error {
	if job.Attempts < job.MaxAttempts {
		return cause
	}
	tr, err := Decide(event, snapshotOf(doc))
	if err != nil {
		return cause
	}
	if !tr.NoChange {
		if applyErr := s.applyTransition(ctx, doc, tr, ""); applyErr != nil {
			config.LogError(s.Logger, moduleName, "concludeFailure", "Failed to record sync failure", doc.ID, applyErr)
		}
	}
	return cause
}

func (s *Service) concludeSuccess(ctx context.Context, doc *models.Document, event Event, docIndexId string) error {
	tr, err := Decide(event, snapshotOf(doc))
	if err != nil {
		return err
	}
	if tr.NoChange {
		return nil
	}
	return s.applyTransition(ctx, doc, tr, docIndexId)
}

func (s *Service) applyTransition(ctx context.Context, doc *models.Document, tr Transition, docIndexId string) error {
	cols := syncColumns(tr)
	if tr.StoreIndex {
		cols["doc_index_id"] = docIndexId
	}
	return s.DB.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND business_id = ?", doc.ID, doc.BusinessId).
		Updates(cols).Error
}

// buildMetadata flattens a document row into the gateway's shape. Date and
// flag fields go out as plain labels, not raw values.
func buildMetadata(doc *models.Document) DocumentMetadata {
	meta := DocumentMetadata{
		Title:           doc.Title,
		ReferenceNumber: doc.ReferenceNumber,
		IsRegulatory:    "non-regulatory document",
		ValidityStatus:  "expired",
		Key:             doc.Key,
		FileUrl:         doc.FileUrl,
	}
	if doc.IsRegulatory {
		meta.IsRegulatory = "regulatory document"
	}
	if doc.ValidityStatus {
		meta.ValidityStatus = "valid"
	}
	if doc.IssuingBody != nil {
		meta.IssuingBody = doc.IssuingBody.Name
	}
	if doc.DocumentType != nil {
		meta.DocumentType = doc.DocumentType.Name
	}
	if doc.DocumentField != nil {
		meta.DocumentField = doc.DocumentField.Name
	}
	meta.IssuanceDate = formatDate(doc.IssuanceDate)
	meta.EffectiveDate = formatDate(doc.EffectiveDate)
	meta.InvalidDate = formatDate(doc.InvalidDate)
	return meta
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
