package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/models"
)

type ProjectRepo struct {
	db *gorm.DB
}

func NewProjectRepo(db *gorm.DB) *ProjectRepo {
	return &ProjectRepo{db}
}

// GetDB returns the underlying database connection for debugging purposes
func (r *ProjectRepo) GetDB() *gorm.DB {
	return r.db
}

// ProjectInput carries the writable fields of a project. Tags are tag names; missing tags are created.
type ProjectInput struct {
	Slug          string               `json:"slug" validate:"omitempty,max=200"`
	Title         string               `json:"title" validate:"required,max=255"`
	TitleEn       string               `json:"titleEn" validate:"max=255"`
	Subtitle      string               `json:"subtitle" validate:"max=255"`
	SubtitleEn    string               `json:"subtitleEn" validate:"max=255"`
	Description   string               `json:"description"`
	DescriptionEn string               `json:"descriptionEn"`
	Category      string               `json:"category" validate:"required,max=50"`
	Status        models.ProjectStatus `json:"status" validate:"omitempty,oneof=planning pre_sale on_sale sold_out completed"`
	Location      string               `json:"location" validate:"max=255"`
	Year          *int                 `json:"year" validate:"omitempty,min=1900,max=2100"`
	Area          string               `json:"area" validate:"max=100"`
	PriceRange    string               `json:"priceRange" validate:"max=100"`
	IsFeatured    bool                 `json:"isFeatured"`
	DisplayOrder  int                  `json:"displayOrder"`
	Features      []string             `json:"features" validate:"omitempty,dive,max=200"`
	FeaturesEn    []string             `json:"featuresEn" validate:"omitempty,dive,max=200"`
	Tags          []string             `json:"tags" validate:"omitempty,dive,required,max=100"`
}

func (in ProjectInput) apply(p *models.Project) {
	p.Title = in.Title
	p.TitleEn = in.TitleEn
	p.Subtitle = in.Subtitle
	p.SubtitleEn = in.SubtitleEn
	p.Description = in.Description
	p.DescriptionEn = in.DescriptionEn
	p.Category = in.Category
	p.Status = in.Status
	if p.Status == "" {
		p.Status = models.StatusPlanning
	}
	p.Location = in.Location
	p.Year = in.Year
	p.Area = in.Area
	p.PriceRange = in.PriceRange
	p.IsFeatured = in.IsFeatured
	p.DisplayOrder = in.DisplayOrder
	p.Features = models.EncodeFeatures(in.Features)
	p.FeaturesEn = models.EncodeFeatures(in.FeaturesEn)
}

// CategoryCount is one row of the category summary.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// FindAll runs the filtered, paginated listing. Unknown ordering falls back to newest first.
func (r *ProjectRepo) FindAll(ctx context.Context, filter ProjectFilter, page Pagination) (*ProjectPage, error) {
	window := page.Normalize(projectOrderColumns)
	countQuery, dataQuery := buildProjectListQueries(r.db.Dialector.Name(), filter, window)

	countSQL, countArgs, err := countQuery.ToSql()
	if err != nil {
		return nil, errs.NewQueryFailedError("project count", err)
	}
	var total int64
	if err := r.db.WithContext(ctx).Raw(countSQL, countArgs...).Scan(&total).Error; err != nil {
		return nil, err
	}

	dataSQL, dataArgs, err := dataQuery.ToSql()
	if err != nil {
		return nil, errs.NewQueryFailedError("project list", err)
	}
	var rows []projectListRow
	if err := r.db.WithContext(ctx).Raw(dataSQL, dataArgs...).Scan(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]models.ProjectDetail, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.detail())
	}

	return &ProjectPage{
		Items:      items,
		Pagination: NewPageInfo(total, window),
	}, nil
}

// FindByIdentifier loads a project by id or, when identifier is not a UUID, by slug.
func (r *ProjectRepo) FindByIdentifier(ctx context.Context, identifier string) (*models.ProjectDetail, error) {
	project, err := r.findProject(ctx, r.db, identifier)
	if err != nil {
		return nil, err
	}
	detail := newProjectDetail(*project)
	return &detail, nil
}

func (r *ProjectRepo) findProject(ctx context.Context, db *gorm.DB, identifier string) (*models.Project, error) {
	query := db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC, created_at ASC")
		}).
		Preload("Tags", func(db *gorm.DB) *gorm.DB {
			return db.Order("name ASC")
		})

	if id, err := uuid.Parse(identifier); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("slug = ?", identifier)
	}

	var project models.Project
	if err := query.First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// FindFeatured returns featured projects by display order.
func (r *ProjectRepo) FindFeatured(ctx context.Context, limit int) ([]models.ProjectDetail, error) {
	if limit < 1 || limit > maxPageLimit {
		limit = 6
	}
	var projects []models.Project
	err := r.db.WithContext(ctx).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC, created_at ASC")
		}).
		Preload("Tags").
		Where("is_featured = ?", true).
		Order("display_order ASC").
		Order("created_at DESC").
		Limit(limit).
		Find(&projects).Error
	if err != nil {
		return nil, err
	}

	details := make([]models.ProjectDetail, 0, len(projects))
	for _, p := range projects {
		details = append(details, newProjectDetail(p))
	}
	return details, nil
}

// Categories counts projects per category, largest first.
func (r *ProjectRepo) Categories(ctx context.Context) ([]CategoryCount, error) {
	var counts []CategoryCount
	err := r.db.WithContext(ctx).
		Model(&models.Project{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC, category ASC").
		Scan(&counts).Error
	return counts, err
}

// Create inserts a project with a unique slug and links its tags in one transaction.
func (r *ProjectRepo) Create(ctx context.Context, in ProjectInput, userID *uuid.UUID) (*models.ProjectDetail, error) {
	var project models.Project
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slugSource := in.Slug
		if slugSource == "" {
			slugSource = in.Title
		}
		slug, err := r.uniqueSlug(ctx, tx, slugSource, "")
		if err != nil {
			return err
		}

		project.Slug = slug
		in.apply(&project)
		project.CreatedBy = userID
		project.UpdatedBy = userID
		if err := tx.Omit("Tags", "Images").Create(&project).Error; err != nil {
			return err
		}

		return replaceProjectTags(ctx, tx, &project, in.Tags)
	})
	if err != nil {
		return nil, err
	}
	return r.FindByIdentifier(ctx, project.ID.String())
}

// Update overwrites a project's fields. The slug is regenerated when a new one is given or the
// title changes; tags are replaced only when in.Tags is non-nil.
func (r *ProjectRepo) Update(ctx context.Context, identifier string, in ProjectInput, userID *uuid.UUID) (*models.ProjectDetail, error) {
	var projectID uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := r.findProject(ctx, tx, identifier)
		if err != nil {
			return err
		}
		projectID = project.ID

		switch {
		case in.Slug != "" && in.Slug != project.Slug:
			if project.Slug, err = r.uniqueSlug(ctx, tx, in.Slug, project.ID.String()); err != nil {
				return err
			}
		case in.Slug == "" && in.Title != project.Title:
			if project.Slug, err = r.uniqueSlug(ctx, tx, in.Title, project.ID.String()); err != nil {
				return err
			}
		}

		in.apply(project)
		project.UpdatedBy = userID
		if err := tx.Omit("Tags", "Images").Save(project).Error; err != nil {
			return err
		}

		if in.Tags == nil {
			return nil
		}
		return replaceProjectTags(ctx, tx, project, in.Tags)
	})
	if err != nil {
		return nil, err
	}
	return r.FindByIdentifier(ctx, projectID.String())
}

func (r *ProjectRepo) uniqueSlug(ctx context.Context, tx *gorm.DB, text, excludeID string) (string, error) {
	result, err := GenerateUniqueSlug(ctx, tx, SlugQuery{
		Table:     "projects",
		Column:    "slug",
		Text:      text,
		ExcludeID: excludeID,
	})
	if err != nil {
		return "", err
	}
	if result.Outcome == SlugForcedFallback {
		log.Warn().Str("slug", result.Slug).Msg("Project slug variants exhausted, used timestamp suffix")
	}
	return result.Slug, nil
}

func replaceProjectTags(ctx context.Context, tx *gorm.DB, project *models.Project, names []string) error {
	tags, err := NewTagRepo(tx).EnsureTags(ctx, names)
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(project).Association("Tags").Replace(tags)
}

// Delete removes a project, its images and its tag links. The deleted row is returned so the
// caller can remove image files.
func (r *ProjectRepo) Delete(ctx context.Context, identifier string) (*models.Project, error) {
	var deleted *models.Project
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := r.findProject(ctx, tx, identifier)
		if err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", project.ID).Delete(&models.ProjectImage{}).Error; err != nil {
			return err
		}
		if err := tx.Model(project).Association("Tags").Clear(); err != nil {
			return err
		}
		if err := tx.Delete(project).Error; err != nil {
			return err
		}
		deleted = project
		return nil
	})
	return deleted, err
}

// IncrementViewCount bumps the counter without touching updated_at.
func (r *ProjectRepo) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1)).Error
}

// AddImage appends an image to a project. A zero DisplayOrder places it last.
func (r *ProjectRepo) AddImage(ctx context.Context, image *models.ProjectImage) error {
	if image.DisplayOrder == 0 {
		var maxOrder sql.NullInt64
		err := r.db.WithContext(ctx).
			Model(&models.ProjectImage{}).
			Where("project_id = ?", image.ProjectID).
			Select("MAX(display_order)").
			Scan(&maxOrder).Error
		if err != nil {
			return err
		}
		if maxOrder.Valid {
			image.DisplayOrder = int(maxOrder.Int64) + 1
		}
	}
	return r.db.WithContext(ctx).Create(image).Error
}

// DeleteImage removes one image of a project and returns it for file cleanup.
func (r *ProjectRepo) DeleteImage(ctx context.Context, projectID, imageID uuid.UUID) (*models.ProjectImage, error) {
	var image models.ProjectImage
	err := r.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", imageID, projectID).
		First(&image).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&image).Error; err != nil {
		return nil, err
	}
	return &image, nil
}

// ErrImageNotInProject is returned by ReorderImages for an id that belongs to another project.
var ErrImageNotInProject = errors.New("image does not belong to project")

// ReorderImages sets display_order to each id's position in orderedIDs.
func (r *ProjectRepo) ReorderImages(ctx context.Context, projectID uuid.UUID, orderedIDs []uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for position, id := range orderedIDs {
			result := tx.Model(&models.ProjectImage{}).
				Where("id = ? AND project_id = ?", id, projectID).
				UpdateColumn("display_order", position)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", ErrImageNotInProject, id)
			}
		}
		return nil
	})
}
