package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tag labels projects; a tag name maps to exactly one row.
type Tag struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null;uniqueIndex"`
	Slug      string    `json:"slug" gorm:"type:varchar(120);not null;uniqueIndex"`
	CreatedAt time.Time `json:"createdAt"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TagWithCount is a tag together with the number of projects using it.
type TagWithCount struct {
	Tag
	ProjectCount int64 `json:"projectCount"`
}
