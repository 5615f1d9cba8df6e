package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ImageType string

const (
	ImageMain      ImageType = "main"
	ImageGallery   ImageType = "gallery"
	ImageFloorPlan ImageType = "floor_plan"
	ImageLocation  ImageType = "location"
	ImageVR        ImageType = "vr"
)

func (t ImageType) Valid() bool {
	switch t {
	case ImageMain, ImageGallery, ImageFloorPlan, ImageLocation, ImageVR:
		return true
	}
	return false
}

// ProjectImage is one uploaded picture of a project. FilePath points at the "optimized"
// rendition; Renditions maps every generated size name to its relative path.
type ProjectImage struct {
	ID           uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	ProjectID    uuid.UUID         `json:"projectId" gorm:"type:uuid;not null;index"`
	ImageType    ImageType         `json:"imageType" gorm:"type:varchar(20);not null;default:gallery"`
	FilePath     string            `json:"filePath" gorm:"type:text;not null"`
	Renditions   datatypes.JSONMap `json:"renditions"`
	AltText      string            `json:"altText" gorm:"type:varchar(255)"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	DisplayOrder int               `json:"displayOrder" gorm:"not null;default:0;index"`
	CreatedAt    time.Time         `json:"createdAt"`
}

func (i *ProjectImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
