package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

type DocumentType struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;index;not null" json:"business_id"`
	Name       string    `gorm:"size:200;not null" json:"name" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDocumentType struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewDocumentType) validate(ctx context.Context, businessId string, id int) error {
	return utils.ValidateUnique[DocumentType](ctx, businessId, "name", input.Name, id)
}

func CreateDocumentType(ctx context.Context, input *NewDocumentType) (*DocumentType, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	documentType := DocumentType{
		BusinessId: businessId,
		Name:       input.Name,
		IsActive:   utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&documentType).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[DocumentType](businessId); err != nil {
		return nil, err
	}

	return &documentType, nil
}

func UpdateDocumentType(ctx context.Context, id int, input *NewDocumentType) (*DocumentType, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	documentType, err := utils.FetchModel[DocumentType](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&documentType).Updates(map[string]interface{}{
		"Name": input.Name,
	}).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[DocumentType](businessId); err != nil {
		return nil, err
	}

	return documentType, nil
}

func DeleteDocumentType(ctx context.Context, id int) (*DocumentType, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	documentType, err := utils.FetchModel[DocumentType](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// refuse deletion while documents still reference it
	count, err := utils.ResourceCountWhere[Document](ctx, businessId, "document_type_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ConflictError("RESOURCE_IN_USE")
	}

	if err = db.WithContext(ctx).Delete(&documentType).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[DocumentType](businessId); err != nil {
		return nil, err
	}
	return documentType, nil
}

func GetDocumentType(ctx context.Context, id int) (*DocumentType, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	return utils.FetchModel[DocumentType](ctx, businessId, id)
}

// ListDocumentTypes reads through the redis list cache.
func ListDocumentTypes(ctx context.Context) ([]*DocumentType, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	results, err := utils.RetrieveRedisList[DocumentType](businessId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[DocumentType](ctx, businessId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[DocumentType](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
