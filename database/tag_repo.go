package database

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rpupo63/realestate-site-backend/models"
)

type TagRepo struct {
	db *gorm.DB
}

func NewTagRepo(db *gorm.DB) *TagRepo {
	return &TagRepo{db}
}

// FindAll returns every tag with the number of projects using it, by name.
func (r *TagRepo) FindAll(ctx context.Context) ([]models.TagWithCount, error) {
	var tags []models.TagWithCount
	err := r.db.WithContext(ctx).
		Table("tags t").
		Select("t.id, t.name, t.slug, t.created_at, COUNT(pt.project_id) AS project_count").
		Joins("LEFT JOIN project_tags pt ON pt.tag_id = t.id").
		Group("t.id, t.name, t.slug, t.created_at").
		Order("t.name ASC").
		Scan(&tags).Error
	return tags, err
}

func (r *TagRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Tag, error) {
	var tag models.Tag
	if err := r.db.WithContext(ctx).First(&tag, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// Create adds a tag. A duplicate name surfaces as gorm.ErrDuplicatedKey.
func (r *TagRepo) Create(ctx context.Context, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	var tag models.Tag
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Tag{}).Where("name = ?", name).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return gorm.ErrDuplicatedKey
		}
		created, err := createTag(ctx, tx, name)
		if err != nil {
			return err
		}
		tag = *created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func createTag(ctx context.Context, tx *gorm.DB, name string) (*models.Tag, error) {
	slug, err := GenerateUniqueSlug(ctx, tx, SlugQuery{Table: "tags", Column: "slug", Text: name})
	if err != nil {
		return nil, err
	}
	tag := models.Tag{Name: name, Slug: slug.Slug}
	if err := tx.WithContext(ctx).Create(&tag).Error; err != nil {
		return nil, err
	}
	return &tag, nil
}

// EnsureTags returns the tags named by names, creating the missing ones. Blank and repeated
// names are skipped; order follows first appearance.
func (r *TagRepo) EnsureTags(ctx context.Context, names []string) ([]models.Tag, error) {
	tags := make([]models.Tag, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true

		var tag models.Tag
		err := r.db.WithContext(ctx).Where("name = ?", name).First(&tag).Error
		switch {
		case err == nil:
			tags = append(tags, tag)
		case errors.Is(err, gorm.ErrRecordNotFound):
			created, err := createTag(ctx, r.db, name)
			if err != nil {
				return nil, err
			}
			tags = append(tags, *created)
		default:
			return nil, err
		}
	}
	return tags, nil
}

// Delete removes a tag and its project links.
func (r *TagRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tag models.Tag
		if err := tx.First(&tag, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM project_tags WHERE tag_id = ?", tag.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&tag).Error
	})
}
