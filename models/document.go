package models

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
	"gorm.io/gorm"
)

type Document struct {
	ID              int        `gorm:"primary_key" json:"id"`
	BusinessId      string     `gorm:"size:64;index" json:"business_id"`
	Title           string     `gorm:"size:1000;not null" json:"title" binding:"required"`
	ReferenceNumber string     `gorm:"size:100;index" json:"reference_number"`
	Description     string     `gorm:"type:text" json:"description"`
	IssuanceDate    *time.Time `json:"issuance_date"`
	EffectiveDate   *time.Time `json:"effective_date"`

	// stored file
	Key          string `gorm:"type:text" json:"key"`
	FileUrl      string `gorm:"type:text" json:"file_url"`
	MimeType     string `gorm:"size:150" json:"mime_type"`
	DocumentSize int64  `json:"document_size"`

	IsRegulatory   bool       `gorm:"not null;default:false;index" json:"is_regulatory"`
	ValidityStatus bool       `gorm:"not null;default:true;index" json:"validity_status"`
	InvalidDate    *time.Time `json:"invalid_date"`

	DocumentTypeId  *int           `gorm:"index" json:"document_type_id"`
	DocumentType    *DocumentType  `json:"document_type,omitempty"`
	DocumentFieldId *int           `gorm:"index" json:"document_field_id"`
	DocumentField   *DocumentField `json:"document_field,omitempty"`
	IssuingBodyId   *int           `gorm:"index" json:"issuing_body_id"`
	IssuingBody     *IssuingBody   `json:"issuing_body,omitempty"`

	// index-sync lifecycle
	SyncStatus SyncStatus `gorm:"type:enum('NOT_SYNC','PENDING_SYNC','SYNC','FAILED_SYNC','FAILED_RESYNC');default:'NOT_SYNC';index" json:"sync_status"`
	DocIndexId *string    `gorm:"size:255" json:"doc_index_id"`
	IsLocked   bool       `gorm:"not null;default:false" json:"is_locked"`

	CreatedById *int      `json:"created_by_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDocument struct {
	Title           string     `json:"title" binding:"required"`
	ReferenceNumber string     `json:"reference_number"`
	Description     string     `json:"description"`
	IssuanceDate    *time.Time `json:"issuance_date"`
	EffectiveDate   *time.Time `json:"effective_date"`
	Key             string     `json:"key" binding:"required"`
	MimeType        string     `json:"mime_type"`
	DocumentSize    int64      `json:"document_size"`
	IsRegulatory    bool       `json:"is_regulatory"`
	ValidityStatus  *bool      `json:"validity_status"`
	InvalidDate     *time.Time `json:"invalid_date"`
	DocumentTypeId  *int       `json:"document_type_id"`
	DocumentFieldId *int       `json:"document_field_id"`
	IssuingBodyId   *int       `json:"issuing_body_id"`
	IsSync          bool       `json:"is_sync"`
}

// UpdateDocumentInput uses pointers so absent fields stay untouched.
type UpdateDocumentInput struct {
	Title           *string    `json:"title"`
	ReferenceNumber *string    `json:"reference_number"`
	Description     *string    `json:"description"`
	IssuanceDate    *time.Time `json:"issuance_date"`
	EffectiveDate   *time.Time `json:"effective_date"`
	Key             *string    `json:"key"`
	MimeType        *string    `json:"mime_type"`
	DocumentSize    *int64     `json:"document_size"`
	IsRegulatory    *bool      `json:"is_regulatory"`
	ValidityStatus  *bool      `json:"validity_status"`
	InvalidDate     *time.Time `json:"invalid_date"`
	DocumentTypeId  *int       `json:"document_type_id"`
	DocumentFieldId *int       `json:"document_field_id"`
	IssuingBodyId   *int       `json:"issuing_body_id"`
}

type DocumentFilter struct {
	Keyword         string     `form:"keyword"`
	DocumentTypeId  *int       `form:"document_type_id"`
	DocumentFieldId *int       `form:"document_field_id"`
	IssuingBodyId   *int       `form:"issuing_body_id"`
	IsRegulatory    *bool      `form:"is_regulatory"`
	ValidityStatus  *bool      `form:"validity_status"`
	SyncStatus      SyncStatus `form:"sync_status"`
	IsSync          *bool      `form:"is_sync"`
	IssuedFrom      *time.Time `form:"issued_from"`
	IssuedTo        *time.Time `form:"issued_to"`
	OrderBy         string     `form:"order_by"`
	Page            int        `form:"page"`
	Limit           int        `form:"limit"`
}

var documentOrderColumns = map[string]bool{
	"title":            true,
	"reference_number": true,
	"issuance_date":    true,
	"effective_date":   true,
	"created_at":       true,
	"sync_status":      true,
}

// documentOrder parses "column asc|desc" against the allow-list; anything
// else falls back to newest first.
func documentOrder(orderBy string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(orderBy)))
	if len(parts) >= 1 && documentOrderColumns[parts[0]] {
		dir := "ASC"
		if len(parts) == 2 && parts[1] == "desc" {
			dir = "DESC"
		}
		return parts[0] + " " + dir + ", id DESC"
	}
	return "created_at DESC, id DESC"
}

type PaginatedDocuments struct {
	Data       []*Document `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

func GetDocument(ctx context.Context, businessId string, id int) (*Document, error) {
	return utils.FetchModel[Document](ctx, businessId, id, "DocumentType", "DocumentField", "IssuingBody")
}

func documentFilterQuery(ctx context.Context, db *gorm.DB, businessId string, filter *DocumentFilter) *gorm.DB {
	q := db.WithContext(ctx).Model(&Document{}).Where("business_id = ?", businessId)
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		q = q.Where("title LIKE ? OR reference_number LIKE ? OR description LIKE ?", like, like, like)
	}
	if filter.DocumentTypeId != nil {
		q = q.Where("document_type_id = ?", *filter.DocumentTypeId)
	}
	if filter.DocumentFieldId != nil {
		q = q.Where("document_field_id = ?", *filter.DocumentFieldId)
	}
	if filter.IssuingBodyId != nil {
		q = q.Where("issuing_body_id = ?", *filter.IssuingBodyId)
	}
	if filter.IsRegulatory != nil {
		q = q.Where("is_regulatory = ?", *filter.IsRegulatory)
	}
	if filter.ValidityStatus != nil {
		q = q.Where("validity_status = ?", *filter.ValidityStatus)
	}
	if filter.SyncStatus != "" {
		q = q.Where("sync_status = ?", filter.SyncStatus)
	}
	// is_sync groups the five statuses into indexed vs everything else
	if filter.IsSync != nil {
		if *filter.IsSync {
			q = q.Where("sync_status = ?", SyncStatusSync)
		} else {
			q = q.Where("sync_status <> ?", SyncStatusSync)
		}
	}
	if filter.IssuedFrom != nil {
		q = q.Where("issuance_date >= ?", *filter.IssuedFrom)
	}
	if filter.IssuedTo != nil {
		q = q.Where("issuance_date <= ?", *filter.IssuedTo)
	}
	return q
}

func ListDocuments(ctx context.Context, businessId string, filter *DocumentFilter) (*PaginatedDocuments, error) {
	q := documentFilterQuery(ctx, config.GetDB(), businessId, filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}

	page := NormalizePage(filter.Page, filter.Limit)
	var docs []*Document
	err := q.Preload("DocumentType").Preload("DocumentField").Preload("IssuingBody").
		Order(documentOrder(filter.OrderBy)).
		Offset(page.Offset()).Limit(page.Limit).
		Find(&docs).Error
	if err != nil {
		return nil, err
	}

	return &PaginatedDocuments{
		Data:       docs,
		Pagination: page.WithTotal(total),
	}, nil
}

// ExportDocuments returns all matching rows without paging, for xlsx export.
func ExportDocuments(ctx context.Context, businessId string, filter *DocumentFilter) ([]*Document, error) {
	q := documentFilterQuery(ctx, config.GetDB(), businessId, filter)
	var docs []*Document
	err := q.Preload("DocumentType").Preload("DocumentField").Preload("IssuingBody").
		Order(documentOrder(filter.OrderBy)).
		Find(&docs).Error
	return docs, err
}

type DocumentStatistics struct {
	Total                int64            `json:"total"`
	Regulatory           int64            `json:"regulatory"`
	NonRegulatory        int64            `json:"non_regulatory"`
	Valid                int64            `json:"valid"`
	Expired              int64            `json:"expired"`
	Synced               int64            `json:"synced"`
	UncategorizedByType  int64            `json:"uncategorized_by_type"`
	UncategorizedByField int64            `json:"uncategorized_by_field"`
	UncategorizedByBody  int64            `json:"uncategorized_by_body"`
	BySyncStatus         map[string]int64 `json:"by_sync_status"`
	ByDocumentType       []GroupCount     `json:"by_document_type"`
}

type GroupCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// StatisticsFilter narrows the uncategorized counts; the headline totals
// always cover the whole tenant.
type StatisticsFilter struct {
	IsRegulatory   *bool      `form:"is_regulatory"`
	ValidityStatus *bool      `form:"validity_status"`
	SyncStatus     SyncStatus `form:"sync_status"`
}

func statisticsScope(ctx context.Context, db *gorm.DB, businessId string, filter *StatisticsFilter) *gorm.DB {
	q := db.WithContext(ctx).Model(&Document{}).Where("documents.business_id = ?", businessId)
	if filter == nil {
		return q
	}
	if filter.IsRegulatory != nil {
		q = q.Where("documents.is_regulatory = ?", *filter.IsRegulatory)
	}
	if filter.ValidityStatus != nil {
		q = q.Where("documents.validity_status = ?", *filter.ValidityStatus)
	}
	if filter.SyncStatus != "" {
		q = q.Where("documents.sync_status = ?", filter.SyncStatus)
	}
	return q
}

func GetDocumentStatistics(ctx context.Context, businessId string, filter *StatisticsFilter) (*DocumentStatistics, error) {
	db := config.GetDB()
	stats := &DocumentStatistics{BySyncStatus: map[string]int64{}}

	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&Document{}).Where("business_id = ?", businessId)
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := base().Where("is_regulatory = ?", true).Count(&stats.Regulatory).Error; err != nil {
		return nil, err
	}
	stats.NonRegulatory = stats.Total - stats.Regulatory
	if err := base().Where("validity_status = ?", true).Count(&stats.Valid).Error; err != nil {
		return nil, err
	}
	stats.Expired = stats.Total - stats.Valid
	if err := base().Where("sync_status = ?", SyncStatusSync).Count(&stats.Synced).Error; err != nil {
		return nil, err
	}

	// Uncategorized means the reference is missing or dangling, hence the
	// LEFT JOIN instead of a plain NULL check on the fk column.
	uncategorized := []struct {
		join string
		ref  string
		dest *int64
	}{
		{"LEFT JOIN document_types ON document_types.id = documents.document_type_id", "document_types", &stats.UncategorizedByType},
		{"LEFT JOIN document_fields ON document_fields.id = documents.document_field_id", "document_fields", &stats.UncategorizedByField},
		{"LEFT JOIN issuing_bodies ON issuing_bodies.id = documents.issuing_body_id", "issuing_bodies", &stats.UncategorizedByBody},
	}
	for _, u := range uncategorized {
		err := statisticsScope(ctx, db, businessId, filter).
			Joins(u.join).
			Where(u.ref + ".id IS NULL").
			Count(u.dest).Error
		if err != nil {
			return nil, err
		}
	}

	var statusRows []struct {
		SyncStatus string
		Count      int64
	}
	if err := base().Select("sync_status, count(*) as count").Group("sync_status").Scan(&statusRows).Error; err != nil {
		return nil, err
	}
	for _, row := range statusRows {
		stats.BySyncStatus[row.SyncStatus] = row.Count
	}

	var typeRows []GroupCount
	err := db.WithContext(ctx).Model(&Document{}).
		Select("COALESCE(document_types.name, 'Uncategorized') as name, count(*) as count").
		Joins("LEFT JOIN document_types ON document_types.id = documents.document_type_id").
		Where("documents.business_id = ?", businessId).
		Group("document_types.name").
		Order("count DESC").
		Scan(&typeRows).Error
	if err != nil {
		return nil, err
	}
	stats.ByDocumentType = typeRows

	return stats, nil
}
