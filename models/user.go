package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleEditor || r == RoleViewer
}

// Permissions returns what a JWT-authenticated user of this role may do.
func (r Role) Permissions() PermissionSet {
	switch r {
	case RoleAdmin:
		return NewPermissionSet(PermAll)
	case RoleEditor:
		return NewPermissionSet(
			PermProjectsRead, PermProjectsWrite,
			PermTagsRead, PermTagsWrite,
			PermContactsRead, PermContactsWrite,
			PermUploadWrite, PermStatisticsRead,
		)
	case RoleViewer:
		return NewPermissionSet(PermProjectsRead, PermTagsRead, PermContactsRead, PermStatisticsRead)
	}
	return NewPermissionSet()
}

type User struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Username     string     `json:"username" gorm:"type:varchar(50);not null;uniqueIndex"`
	Email        string     `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255);not null"`
	Role         Role       `json:"role" gorm:"type:varchar(20);not null;default:viewer"`
	Avatar       *string    `json:"avatar,omitempty" gorm:"type:text"`
	IsActive     bool       `json:"isActive" gorm:"not null;default:true"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
