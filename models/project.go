package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProjectStatus string

const (
	StatusPlanning  ProjectStatus = "planning"
	StatusPreSale   ProjectStatus = "pre_sale"
	StatusOnSale    ProjectStatus = "on_sale"
	StatusSoldOut   ProjectStatus = "sold_out"
	StatusCompleted ProjectStatus = "completed"
)

var ProjectStatuses = []ProjectStatus{StatusPlanning, StatusPreSale, StatusOnSale, StatusSoldOut, StatusCompleted}

func (s ProjectStatus) Valid() bool {
	for _, status := range ProjectStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Project is a real-estate development shown on the marketing site.
// Features and FeaturesEn hold JSON encoded string lists; use ParseFeatures to read them.
type Project struct {
	ID            uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Slug          string         `json:"slug" gorm:"type:varchar(220);not null;uniqueIndex"`
	Title         string         `json:"title" gorm:"type:varchar(255);not null"`
	TitleEn       string         `json:"titleEn" gorm:"type:varchar(255)"`
	Subtitle      string         `json:"subtitle" gorm:"type:varchar(255)"`
	SubtitleEn    string         `json:"subtitleEn" gorm:"type:varchar(255)"`
	Description   string         `json:"description" gorm:"type:text"`
	DescriptionEn string         `json:"descriptionEn" gorm:"type:text"`
	Category      string         `json:"category" gorm:"type:varchar(50);not null;index"`
	Status        ProjectStatus  `json:"status" gorm:"type:varchar(20);not null;default:planning;index"`
	Location      string         `json:"location" gorm:"type:varchar(255)"`
	Year          *int           `json:"year,omitempty"`
	Area          string         `json:"area" gorm:"type:varchar(100)"`
	PriceRange    string         `json:"priceRange" gorm:"type:varchar(100)"`
	IsFeatured    bool           `json:"isFeatured" gorm:"not null;default:false;index"`
	DisplayOrder  int            `json:"displayOrder" gorm:"not null;default:0"`
	ViewCount     int64          `json:"viewCount" gorm:"not null;default:0"`
	Features      datatypes.JSON `json:"-"`
	FeaturesEn    datatypes.JSON `json:"-"`
	CreatedBy     *uuid.UUID     `json:"createdBy,omitempty" gorm:"type:uuid"`
	UpdatedBy     *uuid.UUID     `json:"updatedBy,omitempty" gorm:"type:uuid"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`

	Images []ProjectImage `json:"images,omitempty" gorm:"foreignKey:ProjectID;references:ID;constraint:OnDelete:CASCADE"`
	Tags   []Tag          `json:"-" gorm:"many2many:project_tags;constraint:OnDelete:CASCADE"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ProjectDetail is the API shape of a project: the stored row plus decoded features and tag names.
type ProjectDetail struct {
	Project
	Features   []string `json:"features"`
	FeaturesEn []string `json:"featuresEn"`
	Tags       []string `json:"tags"`
}
