package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpupo63/realestate-site-backend/config"
	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/models"
)

func fakeContact() map[string]any {
	return map[string]any{
		"name":    gofakeit.Name(),
		"email":   gofakeit.Email(),
		"phone":   gofakeit.Phone(),
		"subject": "Viewing request",
		"message": "I would like to schedule a visit next week.",
	}
}

func TestCreateContactNotifies(t *testing.T) {
	env := newTestEnv(t)
	contact := fakeContact()

	rec := env.do(http.MethodPost, "/api/contacts", contact,
		withHeader("X-Forwarded-For", "203.0.113.50"), withHeader("User-Agent", "test-agent"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	decodeEnvelope(t, rec, &created)
	assert.NotEqual(t, uuid.Nil, created.ID)

	require.Eventually(t, func() bool { return len(env.notifier.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	notified := env.notifier.received()[0]
	assert.Equal(t, created.ID, notified.ID)
	assert.Equal(t, contact["email"], notified.Email)
	assert.Equal(t, "203.0.113.50", notified.IPAddress)
	assert.Equal(t, "test-agent", notified.UserAgent)
}

func TestCreateContactValidation(t *testing.T) {
	env := newTestEnv(t)

	contact := fakeContact()
	contact["email"] = "not-an-email"
	rec := env.do(http.MethodPost, "/api/contacts", contact)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email", decodeEnvelope(t, rec, nil).Error.Field)

	contact = fakeContact()
	contact["message"] = "short"
	rec = env.do(http.MethodPost, "/api/contacts", contact)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message", decodeEnvelope(t, rec, nil).Error.Field)

	rec = env.do(http.MethodPost, "/api/contacts", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errs.CodeInvalidInput, decodeEnvelope(t, rec, nil).Error.Code)

	assert.Empty(t, env.notifier.received())
}

func TestContactRateLimit(t *testing.T) {
	env := newTestEnv(t)
	ip := withHeader("X-Forwarded-For", "198.51.100.77")

	for i := 0; i < env.settings.RateLimit.ContactMax; i++ {
		rec := env.do(http.MethodPost, "/api/contacts", fakeContact(), ip)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(http.MethodPost, "/api/contacts", fakeContact(), ip)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, errs.CodeRateLimitExceeded, decodeEnvelope(t, rec, nil).Error.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other clients have their own bucket
	rec = env.do(http.MethodPost, "/api/contacts", fakeContact(), withHeader("X-Forwarded-For", "198.51.100.78"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestManageContacts(t *testing.T) {
	env := newTestEnv(t, func(s *config.Settings) { s.RateLimit.ContactMax = 10 })
	_, editor := env.createUser(models.RoleEditor)
	_, admin := env.createUser(models.RoleAdmin)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		rec := env.do(http.MethodPost, "/api/contacts", fakeContact())
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		decodeEnvelope(t, rec, &created)
		ids = append(ids, created.ID)
	}

	rec := env.do(http.MethodPatch, "/api/contacts/"+ids[0].String()+"/read", nil, withBearer(editor))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var contact models.Contact
	decodeEnvelope(t, rec, &contact)
	assert.True(t, contact.IsRead)

	rec = env.do(http.MethodPatch, "/api/contacts/"+ids[1].String()+"/replied", nil, withBearer(editor))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeEnvelope(t, rec, &contact)
	assert.True(t, contact.IsReplied)
	assert.NotNil(t, contact.RepliedAt)

	rec = env.do(http.MethodPatch, "/api/contacts/"+ids[0].String()+"/read", map[string]bool{"value": false}, withBearer(editor))
	require.Equal(t, http.StatusOK, rec.Code)
	decodeEnvelope(t, rec, &contact)
	assert.False(t, contact.IsRead)

	rec = env.do(http.MethodGet, "/api/contacts?is_replied=false", nil, withBearer(editor))
	require.Equal(t, http.StatusOK, rec.Code)
	var page database.ContactPage
	decodeEnvelope(t, rec, &page)
	assert.Equal(t, int64(2), page.Pagination.Total)

	rec = env.do(http.MethodGet, "/api/contacts/not-a-uuid", nil, withBearer(editor))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/api/contacts/"+ids[2].String(), nil, withBearer(editor))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, "/api/contacts/"+ids[2].String(), nil, withBearer(admin))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/contacts/"+ids[2].String(), nil, withBearer(editor))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownWaitsForContactNotifications(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.release = make(chan struct{})

	rec := env.do(http.MethodPost, "/api/contacts", fakeContact())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, env.handlers.contactHandler.wait(short), context.DeadlineExceeded)

	server := Server{Server: &http.Server{Handler: env.router}, handlers: env.handlers}
	done := make(chan struct{})
	go func() {
		server.ShutdownGracefully(5 * time.Second)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("shutdown returned while a notification was still sending")
	case <-time.After(50 * time.Millisecond):
	}

	close(env.notifier.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not return after the notification finished")
	}
	assert.Len(t, env.notifier.received(), 1)
}
