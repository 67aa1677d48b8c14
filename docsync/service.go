package docsync

import (
	"context"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/models"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/docs_backend/config"
)

const moduleName = "docsync"

// Service owns the trigger side of the document lifecycle: every mutation
// funnels its event through the transition table and applies the outcome
// together with the document change in one DB transaction. The indexing
// client is injected so the worker and tests can swap it out.
type Service struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Client *Client

	// storage deletion, swappable in tests
	removeObject func(ctx context.Context, key string) error
}

func NewService(db *gorm.DB, logger *logrus.Logger, client *Client) *Service {
	return &Service{DB: db, Logger: logger, Client: client}
}

func (s *Service) deleteObject(ctx context.Context, key string) error {
	if s.removeObject != nil {
		return s.removeObject(ctx, key)
	}
	return utils.DeleteDocumentFromGCS(ctx, key)
}

func snapshotOf(doc *models.Document) Snapshot {
	return Snapshot{
		Status: doc.SyncStatus,
		Locked: doc.IsLocked,
		Valid:  doc.ValidityStatus,
	}
}

// syncColumns translates a transition outcome into the column updates it
// implies. StoreIndex is the worker's job and never appears here.
func syncColumns(tr Transition) map[string]interface{} {
	cols := map[string]interface{}{"sync_status": tr.Next}
	if tr.SetLock {
		cols["is_locked"] = true
	}
	if tr.ClearLock {
		cols["is_locked"] = false
	}
	if tr.ClearIndex {
		cols["doc_index_id"] = nil
	}
	return cols
}

func (s *Service) jobOptions() models.JobOptions {
	return models.JobOptions{
		MaxAttempts:    int(envInt64("SYNC_JOB_MAX_ATTEMPTS", 3)),
		BackoffType:    models.BackoffTypeExponential,
		BackoffDelayMs: envInt64("SYNC_JOB_BACKOFF_MS", 5000),
	}
}

func (s *Service) enqueueWatchdog(ctx context.Context, tx *gorm.DB, businessId string, documentId int, origin string) error {
	_, err := models.EnqueueSyncJob(ctx, tx, businessId, models.JobCheckSyncStatus, documentId,
		CheckSyncStatusPayload{Id: documentId, BusinessId: businessId, Origin: origin},
		models.JobOptions{MaxAttempts: 1, DelayMs: envInt64("SYNC_WATCHDOG_DELAY_MS", 600000)})
	return err
}

func envInt64(name string, fallback int64) int64 {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func (s *Service) CreateDocument(ctx context.Context, input *models.NewDocument) (*models.Document, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return nil, utils.UnauthorizedError("UNAUTHORIZED")
	}
	if err := s.validateReferences(ctx, businessId, input.DocumentTypeId, input.DocumentFieldId, input.IssuingBodyId); err != nil {
		return nil, err
	}

	validity := true
	if input.ValidityStatus != nil {
		validity = *input.ValidityStatus
	}
	if input.IsSync && !validity {
		return nil, utils.ForbiddenError("INVALID_DOCUMENT")
	}

	doc := models.Document{
		BusinessId:      businessId,
		Title:           input.Title,
		ReferenceNumber: input.ReferenceNumber,
		Description:     input.Description,
		IssuanceDate:    input.IssuanceDate,
		EffectiveDate:   input.EffectiveDate,
		Key:             input.Key,
		FileUrl:         utils.BuildObjectAccessURL(input.Key),
		MimeType:        input.MimeType,
		DocumentSize:    input.DocumentSize,
		IsRegulatory:    input.IsRegulatory,
		ValidityStatus:  validity,
		InvalidDate:     input.InvalidDate,
		DocumentTypeId:  input.DocumentTypeId,
		DocumentFieldId: input.DocumentFieldId,
		IssuingBodyId:   input.IssuingBodyId,
		SyncStatus:      models.SyncStatusNotSync,
	}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok && userId > 0 {
		doc.CreatedById = &userId
	}
	if input.IsSync {
		doc.SyncStatus = models.SyncStatusPendingSync
		doc.IsLocked = true
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		if !input.IsSync {
			return nil
		}
		if _, err := models.EnqueueSyncJob(ctx, tx, businessId, models.JobSyncDocument, doc.ID,
			DocumentJobPayload{Id: doc.ID, BusinessId: businessId}, s.jobOptions()); err != nil {
			return err
		}
		return s.enqueueWatchdog(ctx, tx, businessId, doc.ID, "sync")
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Service) validateReferences(ctx context.Context, businessId string, typeId, fieldId, bodyId *int) error {
	if typeId != nil {
		if err := utils.ValidateResourceId[models.DocumentType](ctx, businessId, *typeId); err != nil {
			return err
		}
	}
	if fieldId != nil {
		if err := utils.ValidateResourceId[models.DocumentField](ctx, businessId, *fieldId); err != nil {
			return err
		}
	}
	if bodyId != nil {
		if err := utils.ValidateResourceId[models.IssuingBody](ctx, businessId, *bodyId); err != nil {
			return err
		}
	}
	return nil
}

// SyncDocument and ResyncDocument share one trigger: the document's current
// state picks between a first sync and a resync.
func (s *Service) SyncDocument(ctx context.Context, id int) (string, error) {
	return s.triggerSync(ctx, id, "SyncDocument")
}

func (s *Service) ResyncDocument(ctx context.Context, id int) (string, error) {
	return s.triggerSync(ctx, id, "ResyncDocument")
}

func (s *Service) triggerSync(ctx context.Context, id int, funcName string) (string, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return "", utils.UnauthorizedError("UNAUTHORIZED")
	}
	release, err := utils.ObtainLock(ctx, "Document", strconv.Itoa(id), moduleName, funcName)
	if err != nil {
		return "", err
	}
	defer release()

	doc, err := models.GetDocument(ctx, businessId, id)
	if err != nil {
		return "", err
	}
	tr, err := Decide(EventTriggerSync, snapshotOf(doc))
	if err != nil {
		return "", err
	}

	origin := "sync"
	if tr.EnqueueJob == models.JobResyncDocument {
		origin = "resync"
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Document{}).
			Where("id = ? AND business_id = ?", doc.ID, businessId).
			Updates(syncColumns(tr)).Error; err != nil {
			return err
		}
		if _, err := models.EnqueueSyncJob(ctx, tx, businessId, tr.EnqueueJob, doc.ID,
			DocumentJobPayload{Id: doc.ID, BusinessId: businessId}, s.jobOptions()); err != nil {
			return err
		}
		return s.enqueueWatchdog(ctx, tx, businessId, doc.ID, origin)
	})
	if err != nil {
		return "", err
	}
	return "SYNC_TRIGGERED", nil
}

func (s *Service) UnsyncDocument(ctx context.Context, id int) (string, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return "", utils.UnauthorizedError("UNAUTHORIZED")
	}
	release, err := utils.ObtainLock(ctx, "Document", strconv.Itoa(id), moduleName, "UnsyncDocument")
	if err != nil {
		return "", err
	}
	defer release()

	doc, err := models.GetDocument(ctx, businessId, id)
	if err != nil {
		return "", err
	}
	tr, err := Decide(EventTriggerUnsync, snapshotOf(doc))
	if err != nil {
		return "", err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Document{}).
			Where("id = ? AND business_id = ?", doc.ID, businessId).
			Updates(syncColumns(tr)).Error; err != nil {
			return err
		}
		_, err := models.EnqueueSyncJob(ctx, tx, businessId, models.JobUnsyncDocument, doc.ID,
			UnsyncJobPayload{Id: doc.ID, BusinessId: businessId, DocIndexId: utils.DereferencePtr(doc.DocIndexId)},
			s.jobOptions())
		return err
	})
	if err != nil {
		return "", err
	}
	return "UNSYNC_TRIGGERED", nil
}

func (s *Service) UpdateDocument(ctx context.Context, id int, input *models.UpdateDocumentInput) (string, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return "", utils.UnauthorizedError("UNAUTHORIZED")
	}
	release, err := utils.ObtainLock(ctx, "Document", strconv.Itoa(id), moduleName, "UpdateDocument")
	if err != nil {
		return "", err
	}
	defer release()

	doc, err := models.GetDocument(ctx, businessId, id)
	if err != nil {
		return "", err
	}
	if err := s.validateReferences(ctx, businessId, input.DocumentTypeId, input.DocumentFieldId, input.IssuingBodyId); err != nil {
		return "", err
	}

	validity := doc.ValidityStatus
	if input.ValidityStatus != nil {
		validity = *input.ValidityStatus
	}
	keyReplaced := input.Key != nil && *input.Key != doc.Key

	// The update's dominant side effect picks the event: revoking validity
	// wins over everything, a new file wins over metadata edits.
	event := EventMetadataChanged
	switch {
	case doc.ValidityStatus && !validity:
		event = EventValidityRevoked
	case keyReplaced:
		event = EventContentReplaced
	}

	tr, err := Decide(event, Snapshot{Status: doc.SyncStatus, Locked: doc.IsLocked, Valid: validity})
	if err != nil {
		return "", err
	}

	updates := documentUpdates(input)
	if keyReplaced {
		updates["file_url"] = utils.BuildObjectAccessURL(*input.Key)
	}
	// restoring validity clears the invalidation date unless the caller
	// supplies a new one
	if !doc.ValidityStatus && validity && input.InvalidDate == nil {
		updates["invalid_date"] = nil
	}
	if !tr.NoChange {
		for col, val := range syncColumns(tr) {
			updates[col] = val
		}
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&models.Document{}).
				Where("id = ? AND business_id = ?", doc.ID, businessId).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		switch tr.EnqueueJob {
		case models.JobResyncDocument:
			if _, err := models.EnqueueSyncJob(ctx, tx, businessId, models.JobResyncDocument, doc.ID,
				DocumentJobPayload{Id: doc.ID, BusinessId: businessId}, s.jobOptions()); err != nil {
				return err
			}
			return s.enqueueWatchdog(ctx, tx, businessId, doc.ID, "resync")
		case models.JobRemoveResyncDocument:
			if _, err := models.EnqueueSyncJob(ctx, tx, businessId, models.JobRemoveResyncDocument, doc.ID,
				RemoveResyncJobPayload{
					Id:         doc.ID,
					BusinessId: businessId,
					DocIndexId: utils.DereferencePtr(doc.DocIndexId),
					OldKey:     doc.Key,
				}, s.jobOptions()); err != nil {
				return err
			}
			return s.enqueueWatchdog(ctx, tx, businessId, doc.ID, "resync")
		case models.JobUnsyncDocument:
			_, err := models.EnqueueSyncJob(ctx, tx, businessId, models.JobUnsyncDocument, doc.ID,
				UnsyncJobPayload{Id: doc.ID, BusinessId: businessId, DocIndexId: utils.DereferencePtr(doc.DocIndexId)},
				s.jobOptions())
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.cleanupReplacedObject(ctx, keyReplaced, doc.Key)
	return "DOCUMENT_UPDATED", nil
}

// cleanupReplacedObject removes the storage object a content replace left
// behind. Every replace discards the old object; the index side keeps its
// own copy of the old key in the remove-and-resync payload. A leftover in
// the bucket is logged, not surfaced.
func (s *Service) cleanupReplacedObject(ctx context.Context, keyReplaced bool, oldKey string) {
	if !keyReplaced || oldKey == "" {
		return
	}
	if err := s.deleteObject(ctx, oldKey); err != nil {
		config.LogError(s.Logger, moduleName, "UpdateDocument", "Failed to delete replaced object", oldKey, err)
	}
}

// documentUpdates maps the set pointer fields of an update input onto their
// columns.
func documentUpdates(input *models.UpdateDocumentInput) map[string]interface{} {
	updates := map[string]interface{}{}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.ReferenceNumber != nil {
		updates["reference_number"] = *input.ReferenceNumber
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.IssuanceDate != nil {
		updates["issuance_date"] = *input.IssuanceDate
	}
	if input.EffectiveDate != nil {
		updates["effective_date"] = *input.EffectiveDate
	}
	if input.Key != nil {
		updates["key"] = *input.Key
	}
	if input.MimeType != nil {
		updates["mime_type"] = *input.MimeType
	}
	if input.DocumentSize != nil {
		updates["document_size"] = *input.DocumentSize
	}
	if input.IsRegulatory != nil {
		updates["is_regulatory"] = *input.IsRegulatory
	}
	if input.ValidityStatus != nil {
		updates["validity_status"] = *input.ValidityStatus
	}
	if input.InvalidDate != nil {
		updates["invalid_date"] = *input.InvalidDate
	}
	if input.DocumentTypeId != nil {
		updates["document_type_id"] = *input.DocumentTypeId
	}
	if input.DocumentFieldId != nil {
		updates["document_field_id"] = *input.DocumentFieldId
	}
	if input.IssuingBodyId != nil {
		updates["issuing_body_id"] = *input.IssuingBodyId
	}
	return updates
}

func (s *Service) DeleteDocument(ctx context.Context, id int) error {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return utils.UnauthorizedError("UNAUTHORIZED")
	}
	release, err := utils.ObtainLock(ctx, "Document", strconv.Itoa(id), moduleName, "DeleteDocument")
	if err != nil {
		return err
	}
	defer release()

	doc, err := models.GetDocument(ctx, businessId, id)
	if err != nil {
		return err
	}
	tr, err := Decide(EventDelete, snapshotOf(doc))
	if err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The index entry outlives the row, so the unsync payload carries
		// everything the worker needs.
		if tr.CallUnsync && doc.DocIndexId != nil && *doc.DocIndexId != "" {
			if _, err := models.EnqueueSyncJob(ctx, tx, businessId, models.JobUnsyncDocument, doc.ID,
				UnsyncJobPayload{Id: doc.ID, BusinessId: businessId, DocIndexId: *doc.DocIndexId},
				s.jobOptions()); err != nil {
				return err
			}
		}
		return tx.Where("id = ? AND business_id = ?", doc.ID, businessId).Delete(&models.Document{}).Error
	})
	if err != nil {
		return err
	}

	if doc.Key != "" {
		if err := s.deleteObject(ctx, doc.Key); err != nil {
			config.LogError(s.Logger, moduleName, "DeleteDocument", "Failed to delete stored object", doc.Key, err)
		}
	}
	return nil
}

type UploadResult struct {
	Key          string `json:"key"`
	FileUrl      string `json:"file_url"`
	MimeType     string `json:"mime_type"`
	DocumentSize int64  `json:"document_size"`
}

func (s *Service) UploadDocument(ctx context.Context, filename string, size int64, file io.Reader) (*UploadResult, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return nil, utils.UnauthorizedError("UNAUTHORIZED")
	}
	ext := strings.ToLower(path.Ext(filename))
	if err := checkUploadLimits(ext, size); err != nil {
		return nil, err
	}
	key := businessId + "/documents/" + utils.GenerateUniqueFilename() + ext
	mimeType, size, err := utils.UploadDocumentToGCS(ctx, key, file)
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		Key:          key,
		FileUrl:      utils.BuildObjectAccessURL(key),
		MimeType:     mimeType,
		DocumentSize: size,
	}, nil
}

// checkUploadLimits enforces the PDF/Word allow-list with per-type size
// caps (MAX_FILE_SIZE_PDF / MAX_FILE_SIZE_WORD, bytes).
func checkUploadLimits(ext string, size int64) error {
	var limit int64
	switch ext {
	case ".pdf":
		limit = envInt64("MAX_FILE_SIZE_PDF", 20<<20)
	case ".doc", ".docx":
		limit = envInt64("MAX_FILE_SIZE_WORD", 10<<20)
	default:
		return utils.BadRequestError("UNSUPPORTED_FILE_TYPE")
	}
	if size > limit {
		return utils.BadRequestError("FILE_TOO_LARGE")
	}
	return nil
}

// RemoveUpload deletes an uploaded object that never became a document.
// Keys are tenant-prefixed, so a caller can only delete inside its own space.
func (s *Service) RemoveUpload(ctx context.Context, key string) error {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return utils.UnauthorizedError("UNAUTHORIZED")
	}
	if !strings.HasPrefix(key, businessId+"/") {
		return utils.ForbiddenError("NOT_ALLOWED")
	}
	return s.deleteObject(ctx, key)
}

// DownloadDocument returns a short-lived signed URL for the stored object.
func (s *Service) DownloadDocument(ctx context.Context, id int) (string, error) {
	businessId, _ := utils.GetBusinessIdFromContext(ctx)
	if businessId == "" {
		return "", utils.UnauthorizedError("UNAUTHORIZED")
	}
	doc, err := models.GetDocument(ctx, businessId, id)
	if err != nil {
		return "", err
	}
	if doc.Key == "" {
		return "", utils.NotFoundError("OBJECT_NOT_FOUND")
	}
	return utils.SignDownload(ctx, doc.Key, 60*time.Second)
}
