package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/models"
)

func fakeProject(overrides map[string]any) map[string]any {
	project := map[string]any{
		"title":       gofakeit.Company() + " Residences",
		"subtitle":    gofakeit.Sentence(4),
		"description": gofakeit.Paragraph(1, 2, 8, " "),
		"category":    "residential",
		"status":      "on_sale",
		"location":    gofakeit.City(),
		"features":    []string{"pool", "gym"},
	}
	for k, v := range overrides {
		project[k] = v
	}
	return project
}

func (e *testEnv) createProject(token string, overrides map[string]any) models.ProjectDetail {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/projects", fakeProject(overrides), withBearer(token))
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var project models.ProjectDetail
	decodeEnvelope(e.t, rec, &project)
	return project
}

func TestProjectCRUD(t *testing.T) {
	env := newTestEnv(t)
	editor, token := env.createUser(models.RoleEditor)
	_, adminToken := env.createUser(models.RoleAdmin)

	created := env.createProject(token, map[string]any{"title": "Ocean Breeze Villas", "tags": []string{"Sea View"}})
	assert.Equal(t, "ocean-breeze-villas", created.Slug)
	assert.Equal(t, []string{"pool", "gym"}, created.Features)
	assert.Equal(t, []string{"Sea View"}, created.Tags)
	require.NotNil(t, created.CreatedBy)
	assert.Equal(t, editor.ID, *created.CreatedBy)

	second := env.createProject(token, map[string]any{"title": "Ocean Breeze Villas"})
	assert.Equal(t, "ocean-breeze-villas-1", second.Slug)

	rec := env.do(http.MethodGet, "/api/projects/ocean-breeze-villas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var fetched models.ProjectDetail
	decodeEnvelope(t, rec, &fetched)
	assert.Equal(t, created.ID, fetched.ID)

	update := fakeProject(map[string]any{"title": "Ocean Breeze Phase II", "isFeatured": true})
	rec = env.do(http.MethodPut, "/api/projects/"+created.ID.String(), update, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated models.ProjectDetail
	decodeEnvelope(t, rec, &updated)
	assert.Equal(t, "Ocean Breeze Phase II", updated.Title)
	assert.True(t, updated.IsFeatured)

	rec = env.do(http.MethodDelete, "/api/projects/"+created.ID.String(), nil, withBearer(token))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, "/api/projects/"+created.ID.String(), nil, withBearer(adminToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "project deleted", decodeEnvelope(t, rec, nil).Message)

	rec = env.do(http.MethodGet, "/api/projects/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errs.CodeNotFound, decodeEnvelope(t, rec, nil).Error.Code)
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(models.RoleEditor)

	rec := env.do(http.MethodPost, "/api/projects", map[string]any{"category": "residential"}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeEnvelope(t, rec, nil)
	assert.False(t, body.Success)
	assert.Equal(t, errs.CodeValidation, body.Error.Code)
	assert.Equal(t, "title", body.Error.Field)

	rec = env.do(http.MethodPost, "/api/projects", fakeProject(map[string]any{"status": "demolished"}), withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "status", decodeEnvelope(t, rec, nil).Error.Field)

	rec = env.do(http.MethodPost, "/api/projects", fakeProject(nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListProjects(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(models.RoleEditor)

	for i := 0; i < 12; i++ {
		env.createProject(token, map[string]any{
			"title":    fmt.Sprintf("Tower %02d", i),
			"category": map[bool]string{true: "commercial", false: "residential"}[i%3 == 0],
		})
	}
	env.createProject(token, map[string]any{"title": "Zyxquay Lofts", "isFeatured": true, "tags": []string{"Waterfront"}})

	rec := env.do(http.MethodGet, "/api/projects?page=2&limit=5&orderBy=title&orderDir=asc", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page database.ProjectPage
	body := decodeEnvelope(t, rec, &page)
	assert.True(t, body.Success)
	assert.Equal(t, int64(13), page.Pagination.Total)
	assert.Equal(t, 3, page.Pagination.Pages)
	assert.True(t, page.Pagination.HasNext)
	assert.True(t, page.Pagination.HasPrev)
	require.Len(t, page.Items, 5)
	assert.Equal(t, "Tower 05", page.Items[0].Title)

	rec = env.do(http.MethodGet, "/api/projects?category=commercial", nil)
	decodeEnvelope(t, rec, &page)
	assert.Equal(t, int64(4), page.Pagination.Total)

	rec = env.do(http.MethodGet, "/api/projects?is_featured=true", nil)
	decodeEnvelope(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Zyxquay Lofts", page.Items[0].Title)

	rec = env.do(http.MethodGet, "/api/projects?tag=waterfront", nil)
	decodeEnvelope(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, []string{"Waterfront"}, page.Items[0].Tags)

	rec = env.do(http.MethodGet, "/api/projects?search=zyxquay", nil)
	decodeEnvelope(t, rec, &page)
	assert.Equal(t, int64(1), page.Pagination.Total)

	rec = env.do(http.MethodGet, "/api/projects?page=9223372036854775807", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var far database.ProjectPage
	decodeEnvelope(t, rec, &far)
	assert.Empty(t, far.Items)
	assert.False(t, far.Pagination.HasNext)

	// unknown ordering falls back instead of failing
	rec = env.do(http.MethodGet, "/api/projects?orderBy=password;drop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/projects/featured", nil)
	var featured []models.ProjectDetail
	decodeEnvelope(t, rec, &featured)
	require.Len(t, featured, 1)

	rec = env.do(http.MethodGet, "/api/projects/categories", nil)
	var categories []database.CategoryCount
	decodeEnvelope(t, rec, &categories)
	assert.Len(t, categories, 2)
}

func TestProjectViewCount(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(models.RoleEditor)
	project := env.createProject(token, nil)

	for i := 0; i < 3; i++ {
		rec := env.do(http.MethodGet, "/api/projects/"+project.Slug, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := env.do(http.MethodGet, "/api/projects/"+project.Slug, nil, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := env.db.ProjectRepo().FindByIdentifier(context.Background(), project.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.ViewCount)
}

func TestProjectImages(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(models.RoleEditor)
	project := env.createProject(token, nil)
	target := "/api/projects/" + project.ID.String() + "/images"

	rec := env.upload(target, []multipartFile{
		{field: "images", name: "Front View.png", data: testPNG(t, 64, 48)},
		{field: "images", name: "pool.png", data: testPNG(t, 32, 32)},
	}, map[string]string{"imageType": "gallery", "altText": "Front"}, withBearer(token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var uploaded projectImagesResponse
	decodeEnvelope(t, rec, &uploaded)
	assert.Empty(t, uploaded.Failed)
	images := uploaded.Images
	require.Len(t, images, 2)
	assert.Equal(t, models.ImageGallery, images[0].ImageType)
	assert.Equal(t, "Front", images[0].AltText)
	assert.True(t, strings.HasPrefix(images[0].FilePath, "/uploads/projects/"+project.ID.String()+"/"), images[0].FilePath)
	assert.Contains(t, images[0].Renditions, "thumbnail")

	// originals are consumed by the pipeline; only renditions stay on disk
	assert.Empty(t, listFiles(t, env.fs, "uploads/temp"))
	assert.NotEmpty(t, listFiles(t, env.fs, "uploads/projects/"+project.ID.String()))

	rec = env.do(http.MethodGet, images[0].FilePath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.Bytes())

	order := map[string]any{"imageIds": []uuid.UUID{images[1].ID, images[0].ID}}
	rec = env.do(http.MethodPut, target+"/order", order, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reordered []models.ProjectImage
	decodeEnvelope(t, rec, &reordered)
	require.Len(t, reordered, 2)
	assert.Equal(t, images[1].ID, reordered[0].ID)

	rec = env.do(http.MethodPut, target+"/order", map[string]any{"imageIds": []uuid.UUID{uuid.New()}}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "imageIds", decodeEnvelope(t, rec, nil).Error.Field)

	rec = env.do(http.MethodDelete, target+"/"+images[0].ID.String(), nil, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(http.MethodGet, images[0].FilePath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.upload(target, []multipartFile{{field: "images", name: "a.png", data: testPNG(t, 8, 8)}},
		map[string]string{"imageType": "panorama"}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, listFiles(t, env.fs, "uploads/temp"))
}

func TestProjectImagesReportFailedFiles(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser(models.RoleEditor)
	project := env.createProject(token, nil)
	target := "/api/projects/" + project.ID.String() + "/images"

	rec := env.upload(target, []multipartFile{
		{field: "images", name: "facade.png", data: testPNG(t, 32, 32)},
		{field: "images", name: "truncated.png", data: brokenPNG()},
	}, nil, withBearer(token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var uploaded projectImagesResponse
	decodeEnvelope(t, rec, &uploaded)
	require.Len(t, uploaded.Images, 1)
	require.Len(t, uploaded.Failed, 1)
	assert.Equal(t, "truncated.png", uploaded.Failed[0].OriginalName)
	assert.NotEmpty(t, uploaded.Failed[0].Reason)

	// nothing usable at all is an error
	rec = env.upload(target, []multipartFile{{field: "images", name: "truncated.png", data: brokenPNG()}}, nil, withBearer(token))
	assert.Equal(t, http.StatusInternalServerError, rec.Code, rec.Body.String())
	assert.Equal(t, errs.CodeUploadFailed, decodeEnvelope(t, rec, nil).Error.Code)
}
