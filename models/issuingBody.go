package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

type IssuingBody struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;index;not null" json:"business_id"`
	Name       string    `gorm:"size:200;not null" json:"name" binding:"required"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewIssuingBody struct {
	Name string `json:"name" binding:"required"`
}

func (input *NewIssuingBody) validate(ctx context.Context, businessId string, id int) error {
	return utils.ValidateUnique[IssuingBody](ctx, businessId, "name", input.Name, id)
}

func CreateIssuingBody(ctx context.Context, input *NewIssuingBody) (*IssuingBody, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := input.validate(ctx, businessId, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	issuingBody := IssuingBody{
		BusinessId: businessId,
		Name:       input.Name,
		IsActive:   utils.NewTrue(),
	}
	if err := db.WithContext(ctx).Create(&issuingBody).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[IssuingBody](businessId); err != nil {
		return nil, err
	}

	return &issuingBody, nil
}

func UpdateIssuingBody(ctx context.Context, id int, input *NewIssuingBody) (*IssuingBody, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	issuingBody, err := utils.FetchModel[IssuingBody](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := input.validate(ctx, businessId, id); err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).Model(&issuingBody).Updates(map[string]interface{}{
		"Name": input.Name,
	}).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[IssuingBody](businessId); err != nil {
		return nil, err
	}

	return issuingBody, nil
}

func DeleteIssuingBody(ctx context.Context, id int) (*IssuingBody, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	issuingBody, err := utils.FetchModel[IssuingBody](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	// refuse deletion while documents still reference it
	count, err := utils.ResourceCountWhere[Document](ctx, businessId, "issuing_body_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ConflictError("RESOURCE_IN_USE")
	}

	if err = db.WithContext(ctx).Delete(&issuingBody).Error; err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisList[IssuingBody](businessId); err != nil {
		return nil, err
	}
	return issuingBody, nil
}

func GetIssuingBody(ctx context.Context, id int) (*IssuingBody, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	return utils.FetchModel[IssuingBody](ctx, businessId, id)
}

// ListIssuingBodies reads through the redis list cache.
func ListIssuingBodies(ctx context.Context) ([]*IssuingBody, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	results, err := utils.RetrieveRedisList[IssuingBody](businessId)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results, err = utils.FetchAllModels[IssuingBody](ctx, businessId)
		if err != nil {
			return nil, err
		}
		if err := utils.StoreRedisList[IssuingBody](results, businessId); err != nil {
			return nil, err
		}
	}
	return results, nil
}
