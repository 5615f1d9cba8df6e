package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Contact is an inbound enquiry from the public contact form.
type Contact struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string     `json:"name" gorm:"type:varchar(100);not null"`
	Email     string     `json:"email" gorm:"type:varchar(255);not null"`
	Phone     string     `json:"phone" gorm:"type:varchar(50)"`
	Subject   string     `json:"subject" gorm:"type:varchar(255)"`
	Message   string     `json:"message" gorm:"type:text;not null"`
	ProjectID *uuid.UUID `json:"projectId,omitempty" gorm:"type:uuid;index"`
	IPAddress string     `json:"ipAddress" gorm:"type:varchar(64)"`
	UserAgent string     `json:"userAgent" gorm:"type:text"`
	IsRead    bool       `json:"isRead" gorm:"not null;default:false;index"`
	IsReplied bool       `json:"isReplied" gorm:"not null;default:false;index"`
	RepliedAt *time.Time `json:"repliedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt" gorm:"index"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (c *Contact) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
