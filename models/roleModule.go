package models

import "time"

type RoleModule struct {
	BusinessId     string    `gorm:"primary_key;autoIncrement:false;not null" json:"business_id" binding:"required"`
	RoleId         int       `gorm:"primary_key;autoIncrement:false;not null" json:"role_id" binding:"required"`
	ModuleId       int       `gorm:"primary_key;autoIncrement:false;not null" json:"module_id" binding:"required"`
	AllowedActions string    `gorm:"not null" json:"allowed_actions" binding:"required"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	Role           Role      `json:"role"`
	Module         Module    `json:"module"`
}
