package database

import (
	"database/sql"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rpupo63/realestate-site-backend/models"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	// keeps (page-1)*limit inside every dialect's OFFSET range
	maxPageOffset = math.MaxInt32

	defaultOrderColumn = "p.created_at"
	defaultOrderDir    = "DESC"
)

// projectOrderColumns is the ORDER BY allowlist. Keys are what clients send.
var projectOrderColumns = map[string]string{
	"created_at":    "p.created_at",
	"createdAt":     "p.created_at",
	"updated_at":    "p.updated_at",
	"updatedAt":     "p.updated_at",
	"title":         "p.title",
	"year":          "p.year",
	"view_count":    "p.view_count",
	"viewCount":     "p.view_count",
	"display_order": "p.display_order",
	"displayOrder":  "p.display_order",
}

// ProjectFilter narrows the project listing. Empty fields do not filter.
type ProjectFilter struct {
	Category   string
	Status     string
	IsFeatured *bool
	Search     string
	// Tag is a tag slug.
	Tag string
}

// Pagination is the raw paging request as received from a client.
type Pagination struct {
	Page     int
	Limit    int
	OrderBy  string
	OrderDir string
}

// Window is a Pagination after clamping and allowlisting.
type Window struct {
	Page     int
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// Normalize clamps limit into [1,100] (0 means the default of 10), clamps page to >= 1 and to the
// last page whose offset stays within maxPageOffset, and
// restricts ordering to known columns. An unknown column resets ordering to created_at DESC.
func (p Pagination) Normalize(orderColumns map[string]string) Window {
	limit := p.Limit
	switch {
	case limit == 0:
		limit = defaultPageLimit
	case limit < 1:
		limit = 1
	case limit > maxPageLimit:
		limit = maxPageLimit
	}

	page := p.Page
	if page < 1 {
		page = 1
	}
	if maxPage := maxPageOffset/limit + 1; page > maxPage {
		page = maxPage
	}

	orderBy, known := orderColumns[strings.TrimSpace(p.OrderBy)]
	orderDir := strings.ToUpper(strings.TrimSpace(p.OrderDir))
	if !known {
		orderBy, orderDir = defaultOrderColumn, defaultOrderDir
	}
	if orderDir != "ASC" && orderDir != "DESC" {
		orderDir = defaultOrderDir
	}

	return Window{
		Page:     page,
		Limit:    limit,
		Offset:   (page - 1) * limit,
		OrderBy:  orderBy,
		OrderDir: orderDir,
	}
}

// PageInfo describes where a page sits in the full result set.
type PageInfo struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"hasNext"`
	HasPrev bool  `json:"hasPrev"`
}

func NewPageInfo(total int64, w Window) PageInfo {
	var pages int64
	if total > 0 {
		pages = (total-1)/int64(w.Limit) + 1
	}
	return PageInfo{
		Total:   total,
		Page:    w.Page,
		Limit:   w.Limit,
		Pages:   int(pages),
		HasNext: int64(w.Page) < pages,
		HasPrev: w.Page > 1,
	}
}

type ProjectPage struct {
	Items      []models.ProjectDetail `json:"items"`
	Pagination PageInfo               `json:"pagination"`
}

// projectConditions is shared by the count and data statements so both see the same rows.
func projectConditions(dialect string, f ProjectFilter) sq.And {
	conds := sq.And{}
	if f.Category != "" {
		conds = append(conds, sq.Eq{"p.category": f.Category})
	}
	if f.Status != "" {
		conds = append(conds, sq.Eq{"p.status": f.Status})
	}
	if f.IsFeatured != nil {
		conds = append(conds, sq.Eq{"p.is_featured": *f.IsFeatured})
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		term := "%" + search + "%"
		if dialect == "postgres" {
			conds = append(conds, sq.Or{sq.ILike{"p.title": term}, sq.ILike{"p.subtitle": term}, sq.ILike{"p.location": term}})
		} else {
			conds = append(conds, sq.Or{sq.Like{"p.title": term}, sq.Like{"p.subtitle": term}, sq.Like{"p.location": term}})
		}
	}
	if f.Tag != "" {
		conds = append(conds, sq.Expr(
			"p.id IN (SELECT pt2.project_id FROM project_tags pt2 JOIN tags t2 ON t2.id = pt2.tag_id WHERE t2.slug = ?)",
			f.Tag,
		))
	}
	return conds
}

func tagAggregate(dialect string) string {
	switch dialect {
	case "postgres":
		return "string_agg(t.name, ',' ORDER BY t.name)"
	case "mysql":
		return "GROUP_CONCAT(t.name ORDER BY t.name SEPARATOR ',')"
	}
	return "group_concat(t.name, ',')"
}

var projectListColumns = []string{
	"p.id", "p.slug", "p.title", "p.title_en", "p.subtitle", "p.subtitle_en",
	"p.description", "p.description_en", "p.category", "p.status", "p.location",
	"p.year", "p.area", "p.price_range", "p.is_featured", "p.display_order",
	"p.view_count", "p.features", "p.features_en", "p.created_by", "p.updated_by",
	"p.created_at", "p.updated_at",
}

// buildProjectListQueries returns the count statement and the paginated data statement.
// Placeholders are "?"; gorm rebinds them for the active dialect.
func buildProjectListQueries(dialect string, f ProjectFilter, w Window) (count sq.SelectBuilder, data sq.SelectBuilder) {
	conds := projectConditions(dialect, f)

	count = sq.Select("COUNT(DISTINCT p.id)").
		From("projects p").
		Where(conds)

	columns := append(append([]string{}, projectListColumns...), tagAggregate(dialect)+" AS tag_names")
	data = sq.Select(columns...).
		From("projects p").
		LeftJoin("project_tags pt ON pt.project_id = p.id").
		LeftJoin("tags t ON t.id = pt.tag_id").
		Where(conds).
		GroupBy(projectListColumns...).
		OrderBy(w.OrderBy+" "+w.OrderDir, "p.id ASC").
		Limit(uint64(w.Limit)).
		Offset(uint64(w.Offset))

	return count, data
}

type projectListRow struct {
	ID            string
	Slug          string
	Title         string
	TitleEn       sql.NullString
	Subtitle      sql.NullString
	SubtitleEn    sql.NullString
	Description   sql.NullString
	DescriptionEn sql.NullString
	Category      string
	Status        string
	Location      sql.NullString
	Year          sql.NullInt64
	Area          sql.NullString
	PriceRange    sql.NullString
	IsFeatured    bool
	DisplayOrder  int
	ViewCount     int64
	Features      sql.NullString
	FeaturesEn    sql.NullString
	CreatedBy     sql.NullString
	UpdatedBy     sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TagNames      sql.NullString
}

func (row projectListRow) detail() models.ProjectDetail {
	p := models.Project{
		Slug:          row.Slug,
		Title:         row.Title,
		TitleEn:       row.TitleEn.String,
		Subtitle:      row.Subtitle.String,
		SubtitleEn:    row.SubtitleEn.String,
		Description:   row.Description.String,
		DescriptionEn: row.DescriptionEn.String,
		Category:      row.Category,
		Status:        models.ProjectStatus(row.Status),
		Location:      row.Location.String,
		Area:          row.Area.String,
		PriceRange:    row.PriceRange.String,
		IsFeatured:    row.IsFeatured,
		DisplayOrder:  row.DisplayOrder,
		ViewCount:     row.ViewCount,
		Features:      []byte(row.Features.String),
		FeaturesEn:    []byte(row.FeaturesEn.String),
		CreatedBy:     parseOptionalUUID(row.CreatedBy),
		UpdatedBy:     parseOptionalUUID(row.UpdatedBy),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	p.ID, _ = uuid.Parse(row.ID)
	if row.Year.Valid {
		year := int(row.Year.Int64)
		p.Year = &year
	}

	detail := newProjectDetail(p)
	detail.Tags = splitTagNames(row.TagNames.String)
	return detail
}

// newProjectDetail decodes the feature columns. A malformed column is logged and replaced by an
// empty list so one bad row does not fail a whole listing.
func newProjectDetail(p models.Project) models.ProjectDetail {
	detail := models.ProjectDetail{Project: p, Tags: []string{}}

	var err error
	if detail.Features, err = models.ParseFeatures(p.Features); err != nil {
		log.Warn().Err(err).Str("projectId", p.ID.String()).Str("column", "features").Msg("Malformed features column, using empty list")
	}
	if detail.FeaturesEn, err = models.ParseFeatures(p.FeaturesEn); err != nil {
		log.Warn().Err(err).Str("projectId", p.ID.String()).Str("column", "features_en").Msg("Malformed features column, using empty list")
	}

	if len(p.Tags) > 0 {
		for _, tag := range p.Tags {
			detail.Tags = append(detail.Tags, tag.Name)
		}
	}
	return detail
}

func splitTagNames(joined string) []string {
	tags := []string{}
	if joined == "" {
		return tags
	}
	for _, name := range strings.Split(joined, ",") {
		if name = strings.TrimSpace(name); name != "" {
			tags = append(tags, name)
		}
	}
	return tags
}

func parseOptionalUUID(s sql.NullString) *uuid.UUID {
	if !s.Valid || s.String == "" {
		return nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil
	}
	return &id
}
