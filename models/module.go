package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
)

// Module is a permission surface of the API, e.g. "documents" with actions
// "read;create;update;delete;sync;export".
type Module struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"index;not null" json:"business_id" binding:"required"`
	Name       string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Actions    string    `gorm:"not null" json:"actions" binding:"required"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewModule struct {
	Name    string `json:"name" binding:"required"`
	Actions string `json:"actions" binding:"required"`
}

func CreateModule(ctx context.Context, input *NewModule) (*Module, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[Module](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	module := Module{
		BusinessId: businessId,
		Name:       input.Name,
		Actions:    input.Actions,
	}
	if err := db.WithContext(ctx).Create(&module).Error; err != nil {
		return nil, err
	}
	return &module, nil
}

func ListModules(ctx context.Context) ([]*Module, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Module](ctx, businessId)
}
