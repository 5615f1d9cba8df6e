package database

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/rpupo63/realestate-site-backend/models"
)

type Overview struct {
	TotalProjects    int64 `json:"totalProjects"`
	FeaturedProjects int64 `json:"featuredProjects"`
	TotalViews       int64 `json:"totalViews"`
	TotalContacts    int64 `json:"totalContacts"`
	UnreadContacts   int64 `json:"unreadContacts"`
	ContactsThisWeek int64 `json:"contactsThisWeek"`
	TotalTags        int64 `json:"totalTags"`
	TotalUsers       int64 `json:"totalUsers"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type ProjectViews struct {
	ID        string `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	ViewCount int64  `json:"viewCount"`
}

type DayCount struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

type ProjectStatistics struct {
	ByCategory []CategoryCount `json:"byCategory"`
	ByStatus   []StatusCount   `json:"byStatus"`
	MostViewed []ProjectViews  `json:"mostViewed"`
}

type ContactStatistics struct {
	PerDay    []DayCount `json:"perDay"`
	Unread    int64      `json:"unread"`
	Unreplied int64      `json:"unreplied"`
}

type StatisticsRepo struct {
	db *gorm.DB
}

func NewStatisticsRepo(db *gorm.DB) *StatisticsRepo {
	return &StatisticsRepo{db}
}

// Overview runs the dashboard counters concurrently.
func (r *StatisticsRepo) Overview(ctx context.Context) (*Overview, error) {
	var o Overview
	weekAgo := time.Now().AddDate(0, 0, -7)

	g, ctx := errgroup.WithContext(ctx)
	count := func(dst *int64, model interface{}, query string, args ...interface{}) {
		g.Go(func() error {
			q := r.db.WithContext(ctx).Model(model)
			if query != "" {
				q = q.Where(query, args...)
			}
			return q.Count(dst).Error
		})
	}

	count(&o.TotalProjects, &models.Project{}, "")
	count(&o.FeaturedProjects, &models.Project{}, "is_featured = ?", true)
	count(&o.TotalContacts, &models.Contact{}, "")
	count(&o.UnreadContacts, &models.Contact{}, "is_read = ?", false)
	count(&o.ContactsThisWeek, &models.Contact{}, "created_at >= ?", weekAgo)
	count(&o.TotalTags, &models.Tag{}, "")
	count(&o.TotalUsers, &models.User{}, "")
	g.Go(func() error {
		return r.db.WithContext(ctx).
			Model(&models.Project{}).
			Select("COALESCE(SUM(view_count), 0)").
			Scan(&o.TotalViews).Error
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *StatisticsRepo) Projects(ctx context.Context, top int) (*ProjectStatistics, error) {
	stats := ProjectStatistics{
		ByCategory: []CategoryCount{},
		ByStatus:   []StatusCount{},
		MostViewed: []ProjectViews{},
	}

	categories, err := NewProjectRepo(r.db).Categories(ctx)
	if err != nil {
		return nil, err
	}
	if categories != nil {
		stats.ByCategory = categories
	}

	err = r.db.WithContext(ctx).
		Model(&models.Project{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("status ASC").
		Scan(&stats.ByStatus).Error
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&models.Project{}).
		Select("id, slug, title, view_count").
		Order("view_count DESC, title ASC").
		Limit(top).
		Scan(&stats.MostViewed).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// Contacts buckets contacts created in the last days by calendar day (YYYY-MM-DD).
func (r *StatisticsRepo) Contacts(ctx context.Context, days int) (*ContactStatistics, error) {
	stats := ContactStatistics{PerDay: []DayCount{}}
	since := time.Now().UTC().AddDate(0, 0, -days)

	// sqlite stores timestamps as text led by the date
	dayExpr := "substr(created_at, 1, 10)"
	if r.db.Dialector.Name() == "postgres" {
		dayExpr = "TO_CHAR(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}

	err := r.db.WithContext(ctx).
		Model(&models.Contact{}).
		Select(dayExpr+" AS day, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("day").
		Order("day ASC").
		Scan(&stats.PerDay).Error
	if err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).Model(&models.Contact{}).Where("is_read = ?", false).Count(&stats.Unread).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&models.Contact{}).Where("is_replied = ?", false).Count(&stats.Unreplied).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}
