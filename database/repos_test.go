package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rpupo63/realestate-site-backend/models"
)

func TestTagRepo(t *testing.T) {
	ctx := context.Background()
	d := newTestDatabase(t)

	tag, err := d.TagRepo().Create(ctx, "  Sea View ")
	require.NoError(t, err)
	assert.Equal(t, "Sea View", tag.Name)
	assert.Equal(t, "sea-view", tag.Slug)

	_, err = d.TagRepo().Create(ctx, "Sea View")
	assert.True(t, errors.Is(err, gorm.ErrDuplicatedKey))

	_, err = d.ProjectRepo().Create(ctx, fakeProjectInput(func(in *ProjectInput) { in.Tags = []string{"Sea View", "Garden"} }), nil)
	require.NoError(t, err)

	tags, err := d.TagRepo().FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "Garden", tags[0].Name)
	assert.Equal(t, int64(1), tags[1].ProjectCount)

	require.NoError(t, d.TagRepo().Delete(ctx, tag.ID))
	var links int64
	require.NoError(t, d.GetDB().Table("project_tags").Where("tag_id = ?", tag.ID).Count(&links).Error)
	assert.Zero(t, links)
}

func TestContactRepo(t *testing.T) {
	ctx := context.Background()
	d := newTestDatabase(t)
	repo := d.ContactRepo()

	var ids []models.Contact
	for i := 0; i < 3; i++ {
		c := models.Contact{
			Name:    gofakeit.Name(),
			Email:   gofakeit.Email(),
			Message: gofakeit.Sentence(8),
		}
		require.NoError(t, repo.Add(ctx, &c))
		ids = append(ids, c)
	}

	read, err := repo.MarkRead(ctx, ids[0].ID, true)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	replied, err := repo.MarkReplied(ctx, ids[1].ID, true)
	require.NoError(t, err)
	assert.True(t, replied.IsReplied)
	assert.True(t, replied.IsRead)
	assert.NotNil(t, replied.RepliedAt)

	unread := false
	page, err := repo.FindAll(ctx, ContactFilter{IsRead: &unread}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Pagination.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, ids[2].ID, page.Items[0].ID)

	all, err := repo.FindAll(ctx, ContactFilter{}, Pagination{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Pagination.Total)
	assert.Len(t, all.Items, 2)

	require.NoError(t, repo.Delete(ctx, ids[2].ID))
	assert.True(t, errors.Is(repo.Delete(ctx, ids[2].ID), gorm.ErrRecordNotFound))

	_, err = repo.MarkRead(ctx, ids[2].ID, true)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestUserAndAPIKeyRepos(t *testing.T) {
	ctx := context.Background()
	d := newTestDatabase(t)

	user := models.User{Username: "admin", Email: "admin@example.com", PasswordHash: "hash", Role: models.RoleAdmin}
	require.NoError(t, d.UserRepo().Add(ctx, &user))

	byName, err := d.UserRepo().FindByLogin(ctx, "admin")
	require.NoError(t, err)
	byEmail, err := d.UserRepo().FindByLogin(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, byName.ID, byEmail.ID)

	require.NoError(t, d.UserRepo().UpdatePassword(ctx, user.ID, "new-hash"))
	require.NoError(t, d.UserRepo().TouchLastLogin(ctx, user.ID, time.Now()))
	reloaded, err := d.UserRepo().FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", reloaded.PasswordHash)
	assert.NotNil(t, reloaded.LastLoginAt)

	admins, err := d.UserRepo().CountByRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)

	key := models.APIKey{Name: "feed", KeyHash: "h1", KeyPrefix: "rk_1", Permissions: []byte(`["projects:read"]`)}
	require.NoError(t, d.APIKeyRepo().Add(ctx, &key))

	found, err := d.APIKeyRepo().FindActiveByHash(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, found.PermissionSet().Has(models.PermProjectsRead))

	require.NoError(t, d.APIKeyRepo().Revoke(ctx, key.ID))
	_, err = d.APIKeyRepo().FindActiveByHash(ctx, "h1")
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestStatisticsRepo(t *testing.T) {
	ctx := context.Background()
	d := newTestDatabase(t)

	p, err := d.ProjectRepo().Create(ctx, fakeProjectInput(func(in *ProjectInput) { in.IsFeatured = true; in.Tags = []string{"A"} }), nil)
	require.NoError(t, err)
	_, err = d.ProjectRepo().Create(ctx, fakeProjectInput(nil), nil)
	require.NoError(t, err)
	require.NoError(t, d.ProjectRepo().IncrementViewCount(ctx, p.ID))
	require.NoError(t, d.ContactRepo().Add(ctx, &models.Contact{Name: "a", Email: "a@example.com", Message: "hi"}))

	overview, err := d.StatisticsRepo().Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), overview.TotalProjects)
	assert.Equal(t, int64(1), overview.FeaturedProjects)
	assert.Equal(t, int64(1), overview.TotalViews)
	assert.Equal(t, int64(1), overview.TotalContacts)
	assert.Equal(t, int64(1), overview.UnreadContacts)
	assert.Equal(t, int64(1), overview.TotalTags)

	projects, err := d.StatisticsRepo().Projects(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, projects.MostViewed)
	assert.Equal(t, p.ID.String(), projects.MostViewed[0].ID)

	contacts, err := d.StatisticsRepo().Contacts(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), contacts.Unread)
}
