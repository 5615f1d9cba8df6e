package database

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rpupo63/realestate-site-backend/models"
)

var contactOrderColumns = map[string]string{
	"created_at": "created_at",
	"createdAt":  "created_at",
	"name":       "name",
	"email":      "email",
}

type ContactFilter struct {
	IsRead    *bool
	IsReplied *bool
	ProjectID *uuid.UUID
	Search    string
}

type ContactPage struct {
	Items      []models.Contact `json:"items"`
	Pagination PageInfo         `json:"pagination"`
}

type ContactRepo struct {
	db *gorm.DB
}

func NewContactRepo(db *gorm.DB) *ContactRepo {
	return &ContactRepo{db}
}

// Add inserts a new contact into the database
func (r *ContactRepo) Add(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Create(contact).Error
}

func (r *ContactRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	var contact models.Contact
	if err := r.db.WithContext(ctx).First(&contact, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// FindAll lists contacts matching filter, newest first unless page says otherwise.
func (r *ContactRepo) FindAll(ctx context.Context, filter ContactFilter, page Pagination) (*ContactPage, error) {
	window := page.Normalize(contactOrderColumns)
	if window.OrderBy == defaultOrderColumn {
		window.OrderBy = "created_at"
	}

	query := r.db.WithContext(ctx).Model(&models.Contact{})
	if filter.IsRead != nil {
		query = query.Where("is_read = ?", *filter.IsRead)
	}
	if filter.IsReplied != nil {
		query = query.Where("is_replied = ?", *filter.IsReplied)
	}
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		term := "%" + search + "%"
		query = query.Where("name LIKE ? OR email LIKE ? OR subject LIKE ?", term, term, term)
	}

	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	contacts := []models.Contact{}
	err := query.
		Order(window.OrderBy + " " + window.OrderDir).
		Limit(window.Limit).
		Offset(window.Offset).
		Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return &ContactPage{Items: contacts, Pagination: NewPageInfo(total, window)}, nil
}

func (r *ContactRepo) MarkRead(ctx context.Context, id uuid.UUID, read bool) (*models.Contact, error) {
	return r.update(ctx, id, map[string]interface{}{"is_read": read})
}

// MarkReplied also marks the contact read and stamps replied_at.
func (r *ContactRepo) MarkReplied(ctx context.Context, id uuid.UUID, replied bool) (*models.Contact, error) {
	columns := map[string]interface{}{"is_replied": replied, "replied_at": nil}
	if replied {
		columns["is_read"] = true
		columns["replied_at"] = time.Now()
	}
	return r.update(ctx, id, columns)
}

func (r *ContactRepo) update(ctx context.Context, id uuid.UUID, columns map[string]interface{}) (*models.Contact, error) {
	result := r.db.WithContext(ctx).Model(&models.Contact{}).Where("id = ?", id).Updates(columns)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, id)
}

// Delete removes a contact from the database by id
func (r *ContactRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.Contact{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
