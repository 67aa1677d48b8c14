package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

type DocumentField struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;index;not null" json:"business_id"`
	Name       string    `gorm:"size:200;not null" json:"name" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDocumentField struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewDocumentField) validate(ctx context.Context, businessId string, id int) error {
	return utils.ValidateUnique[DocumentField](ctx, businessId, "name", input.Name, id)
}

func CreateDocumentField(ctx context.Context, input *NewDocumentField) (*DocumentField, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	documentField := DocumentField{
		BusinessId: businessId,
		Name:       input.Name,
		IsActive:   utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&documentField).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[DocumentField](businessId); err != nil {
		return nil, err
	}

	return &documentField, nil
}

func UpdateDocumentField(ctx context.Context, id int, input *NewDocumentField) (*DocumentField, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	documentField, err := utils.FetchModel[DocumentField](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&documentField).Updates(map[string]interface{}{
		"Name": input.Name,
	}).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[DocumentField](businessId); err != nil {
		return nil, err
	}

	return documentField, nil
}

func DeleteDocumentField(ctx context.Context, id int) (*DocumentField, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	documentField, err := utils.FetchModel[DocumentField](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// refuse deletion while documents still reference it
	count, err := utils.ResourceCountWhere[Document](ctx, businessId, "document_field_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ConflictError("RESOURCE_IN_USE")
	}

	if err = db.WithContext(ctx).Delete(&documentField).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[DocumentField](businessId); err != nil {
		return nil, err
	}
	return documentField, nil
}

func GetDocumentField(ctx context.Context, id int) (*DocumentField, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	return utils.FetchModel[DocumentField](ctx, businessId, id)
}

// ListDocumentFields reads through the redis list cache.
func ListDocumentFields(ctx context.Context) ([]*DocumentField, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	results, err := utils.RetrieveRedisList[DocumentField](businessId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[DocumentField](ctx, businessId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[DocumentField](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
