package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/models"
)

func TestAdminUsers(t *testing.T) {
	env := newTestEnv(t)
	admin, token := env.createUser(models.RoleAdmin)

	rec := env.do(http.MethodPost, "/api/admin/users", map[string]any{
		"username": "agent007",
		"email":    "Agent007@Example.com",
		"password": "secret-password",
	}, withBearer(token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.User
	decodeEnvelope(t, rec, &created)
	assert.Equal(t, models.RoleViewer, created.Role)
	assert.Equal(t, "agent007@example.com", created.Email)
	assert.NotContains(t, rec.Body.String(), "secret-password")

	rec = env.do(http.MethodPost, "/api/admin/users", map[string]any{
		"username": "agent007",
		"email":    "other@example.com",
		"password": "secret-password",
	}, withBearer(token))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, errs.CodeAlreadyExists, decodeEnvelope(t, rec, nil).Error.Code)

	role := models.RoleEditor
	rec = env.do(http.MethodPut, "/api/admin/users/"+created.ID.String(), map[string]any{"role": role}, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeEnvelope(t, rec, &created)
	assert.Equal(t, models.RoleEditor, created.Role)

	// the only admin can neither demote nor delete themselves
	rec = env.do(http.MethodPut, "/api/admin/users/"+admin.ID.String(), map[string]any{"role": "viewer"}, withBearer(token))
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = env.do(http.MethodDelete, "/api/admin/users/"+admin.ID.String(), nil, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/api/admin/users/"+created.ID.String(), nil, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/admin/users", nil, withBearer(token))
	var users []models.User
	decodeEnvelope(t, rec, &users)
	require.Len(t, users, 1)
	assert.Equal(t, admin.ID, users[0].ID)
}

func TestAdminAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	admin, token := env.createUser(models.RoleAdmin)

	rec := env.do(http.MethodPost, "/api/admin/api-keys", map[string]any{
		"name":        "Listing sync",
		"permissions": []string{"bogus:perm"},
	}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "permissions", decodeEnvelope(t, rec, nil).Error.Field)

	rec = env.do(http.MethodPost, "/api/admin/api-keys", map[string]any{
		"name":        "Listing sync",
		"permissions": []string{models.PermProjectsRead},
		"allowedIps":  []string{"not-an-ip"},
	}, withBearer(token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/admin/api-keys", map[string]any{
		"name":        "Listing sync",
		"permissions": []string{models.PermStatisticsRead},
	}, withBearer(token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued struct {
		ID        uuid.UUID  `json:"id"`
		Key       string     `json:"key"`
		KeyPrefix string     `json:"keyPrefix"`
		CreatedBy *uuid.UUID `json:"createdBy"`
	}
	decodeEnvelope(t, rec, &issued)
	assert.True(t, strings.HasPrefix(issued.Key, "rk_"))
	assert.Len(t, issued.Key, 67)
	assert.Equal(t, issued.Key[:11], issued.KeyPrefix)
	require.NotNil(t, issued.CreatedBy)
	assert.Equal(t, admin.ID, *issued.CreatedBy)

	rec = env.do(http.MethodGet, "/api/statistics/overview", nil, withAPIKey(issued.Key))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/admin/api-keys", nil, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), issued.Key)

	rec = env.do(http.MethodDelete, "/api/admin/api-keys/"+issued.ID.String(), nil, withBearer(token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/statistics/overview", nil, withAPIKey(issued.Key))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
