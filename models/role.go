package models

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docs_backend/config"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
	"gorm.io/gorm"
)

type Role struct {
	ID          int           `gorm:"primary_key" json:"id"`
	BusinessId  string        `gorm:"index;not null" json:"business_id" binding:"required"`
	Name        string        `gorm:"index;size:100;not null" json:"name" binding:"required"`
	RoleModules []*RoleModule `gorm:"foreignKey:RoleId"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewRole struct {
	Name           string              `json:"name" binding:"required"`
	AllowedModules []*NewAllowedModule `json:"allowed_modules"`
}

type NewAllowedModule struct {
	ModuleID       int    `json:"module_id"`
	AllowedActions string `json:"allowed_actions"`
}

func extractModuleActions(s string) []string {
	return strings.Split(strings.ToLower(s), ";")
}

// GetAllowedPathsFromRole builds the "action|module" permission set for a
// role, e.g. "read|documents". Cached under AllowedPaths:Role:$id.
func GetAllowedPathsFromRole(ctx context.Context, roleId int) (map[string]bool, error) {
	cacheKey := "AllowedPaths:Role:" + fmt.Sprint(roleId)
	allowedPaths := make(map[string]bool)

	exists, err := config.GetRedisObject(cacheKey, &allowedPaths)
	if err != nil {
		return nil, err
	}
	if exists {
		return allowedPaths, nil
	}

	db := config.GetDB()
	var role Role
	if err := db.WithContext(ctx).Preload("RoleModules").Preload("RoleModules.Module").
		Where("id = ?", roleId).First(&role).Error; err != nil {
		return nil, err
	}

	for _, permission := range role.RoleModules {
		validActions := extractModuleActions(permission.Module.Actions)
		allowedActions := extractModuleActions(permission.AllowedActions)
		module := strings.ToLower(permission.Module.Name)

		for _, action := range allowedActions {
			if slices.Contains(validActions, action) {
				allowedPaths[action+"|"+module] = true
			}
		}
	}

	if err := config.SetRedisObject(cacheKey, &allowedPaths, utils.GetCacheLifespan()); err != nil {
		return nil, err
	}
	return allowedPaths, nil
}

func mapRoleModules(ctx context.Context, businessId string, roleId int, input []*NewAllowedModule) ([]*RoleModule, error) {
	availableModuleActions := make(map[int]string)
	var modules []Module
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("business_id = ?", businessId).Find(&modules).Error; err != nil {
		return nil, err
	}
	for _, m := range modules {
		availableModuleActions[m.ID] = m.Actions
	}

	var roleModules []*RoleModule
	for _, am := range input {
		valid, ok := availableModuleActions[am.ModuleID]
		if !ok {
			return nil, errors.New("module not found")
		}
		validActions := extractModuleActions(valid)
		for _, action := range extractModuleActions(am.AllowedActions) {
			if !slices.Contains(validActions, action) {
				return nil, errors.New("invalid action: " + action)
			}
		}
		roleModules = append(roleModules, &RoleModule{
			BusinessId:     businessId,
			RoleId:         roleId,
			ModuleId:       am.ModuleID,
			AllowedActions: am.AllowedActions,
		})
	}
	return roleModules, nil
}

func CreateRole(ctx context.Context, input *NewRole) (*Role, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	if err := utils.ValidateUnique[Role](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	db := config.GetDB()
	role := Role{
		BusinessId: businessId,
		Name:       input.Name,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&role).Error; err != nil {
			return err
		}
		roleModules, err := mapRoleModules(ctx, businessId, role.ID, input.AllowedModules)
		if err != nil {
			return err
		}
		if len(roleModules) > 0 {
			if err := tx.Create(&roleModules).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &role, nil
}

func UpdateRole(ctx context.Context, id int, input *NewRole) (*Role, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	db := config.GetDB()
	role, err := utils.FetchModel[Role](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[Role](ctx, businessId, "name", input.Name, id); err != nil {
		return nil, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&role).Updates(map[string]interface{}{
			"Name": input.Name,
		}).Error; err != nil {
			return err
		}
		if input.AllowedModules != nil {
			if err := tx.Where("business_id = ? AND role_id = ?", businessId, id).Delete(&RoleModule{}).Error; err != nil {
				return err
			}
			roleModules, err := mapRoleModules(ctx, businessId, id, input.AllowedModules)
			if err != nil {
				return err
			}
			if len(roleModules) > 0 {
				if err := tx.Create(&roleModules).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := utils.ClearPathsCache(id); err != nil {
		return nil, err
	}
	return role, nil
}

func DeleteRole(ctx context.Context, id int) (*Role, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}

	// refuse deletion while users still hold the role
	count, err := utils.ResourceCountWhere[User](ctx, businessId, "role_id = ?", id)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, utils.ConflictError("RESOURCE_IN_USE")
	}

	db := config.GetDB()
	role, err := utils.FetchModel[Role](ctx, businessId, id)
	if err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("business_id = ? AND role_id = ?", businessId, id).Delete(&RoleModule{}).Error; err != nil {
			return err
		}
		return tx.Delete(&role).Error
	})
	if err != nil {
		return nil, err
	}

	if err := utils.ClearPathsCache(id); err != nil {
		return nil, err
	}
	return role, nil
}

func GetRole(ctx context.Context, id int) (*Role, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchModel[Role](ctx, businessId, id, "RoleModules", "RoleModules.Module")
}

func ListRoles(ctx context.Context) ([]*Role, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, errors.New("business id is required")
	}
	return utils.FetchAllModels[Role](ctx, businessId, "RoleModules", "RoleModules.Module")
}
