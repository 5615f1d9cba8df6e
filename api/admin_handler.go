package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/models"
)

const apiKeyPrefix = "rk_"

var knownPermissions = models.NewPermissionSet(
	models.PermAll,
	models.PermProjectsRead, models.PermProjectsWrite,
	models.PermTagsRead, models.PermTagsWrite,
	models.PermContactsRead, models.PermContactsWrite,
	models.PermUploadWrite, models.PermStatisticsRead,
	models.PermUsersManage, models.PermSystemManage,
	"projects:*", "tags:*", "contacts:*", "upload:*", "statistics:*", "users:*", "system:*",
)

type adminHandler struct {
	responder Responder
	logger    zerolog.Logger
	users     *database.UserRepo
	apiKeys   *database.APIKeyRepo
}

func newAdminHandler(responder Responder, users *database.UserRepo, apiKeys *database.APIKeyRepo) adminHandler {
	return adminHandler{
		responder: responder,
		logger:    log.With().Str("handlerName", "adminHandler").Logger(),
		users:     users,
		apiKeys:   apiKeys,
	}
}

func (h adminHandler) listUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := h.users.FindAll(r.Context())
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("list", "users", err))
			return
		}
		if users == nil {
			users = []models.User{}
		}
		h.responder.WriteJSON(w, users)
	}
}

func (h adminHandler) createUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			h.responder.WriteError(w, errs.NewInternalErrorWithCause("could not hash password", err))
			return
		}

		role := req.Role
		if role == "" {
			role = models.RoleViewer
		}
		user := models.User{
			Username:     strings.TrimSpace(req.Username),
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			PasswordHash: string(hash),
			Role:         role,
			IsActive:     true,
		}
		if err := h.users.Add(r.Context(), &user); err != nil {
			h.responder.WriteError(w, wrapDatabaseError("create", "user", err))
			return
		}

		h.logger.Info().Str("userId", user.ID.String()).Str("role", string(user.Role)).Msg("User created")
		h.responder.WriteCreated(w, user)
	}
}

// updateUser changes email, password, role or active flag. The last active admin cannot be
// demoted or disabled.
func (h adminHandler) updateUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		user, err := h.users.FindByID(r.Context(), id)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "user", err))
			return
		}

		losesAdmin := user.Role == models.RoleAdmin && user.IsActive &&
			((req.Role != nil && *req.Role != models.RoleAdmin) || (req.IsActive != nil && !*req.IsActive))
		if losesAdmin {
			if err := h.ensureAnotherAdmin(r); err != nil {
				h.responder.WriteError(w, err)
				return
			}
		}

		if req.Email != nil {
			user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		}
		if req.Role != nil {
			user.Role = *req.Role
		}
		if req.IsActive != nil {
			user.IsActive = *req.IsActive
		}
		if req.Password != nil {
			hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				h.responder.WriteError(w, errs.NewInternalErrorWithCause("could not hash password", err))
				return
			}
			user.PasswordHash = string(hash)
		}

		if err := h.users.Update(r.Context(), user); err != nil {
			h.responder.WriteError(w, wrapDatabaseError("update", "user", err))
			return
		}
		h.responder.WriteJSON(w, user)
	}
}

func (h adminHandler) deleteUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if identity := identityFromContext(r.Context()); identity != nil && identity.UserID == id {
			h.responder.WriteError(w, errs.NewBadRequestError("you cannot delete your own account"))
			return
		}

		user, err := h.users.FindByID(r.Context(), id)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "user", err))
			return
		}
		if user.Role == models.RoleAdmin && user.IsActive {
			if err := h.ensureAnotherAdmin(r); err != nil {
				h.responder.WriteError(w, err)
				return
			}
		}

		if err := h.users.Delete(r.Context(), id); err != nil {
			h.responder.WriteError(w, wrapDatabaseError("delete", "user", err))
			return
		}
		h.logger.Info().Str("userId", id.String()).Msg("User deleted")
		h.responder.WriteMessage(w, "user deleted", nil)
	}
}

func (h adminHandler) ensureAnotherAdmin(r *http.Request) error {
	admins, err := h.users.CountByRole(r.Context(), models.RoleAdmin)
	if err != nil {
		return wrapDatabaseError("count", "admins", err)
	}
	if admins <= 1 {
		return errs.NewConflictError("at least one active admin is required")
	}
	return nil
}

func (h adminHandler) listAPIKeys() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := h.apiKeys.FindAll(r.Context())
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("list", "api keys", err))
			return
		}
		if keys == nil {
			keys = []models.APIKey{}
		}
		h.responder.WriteJSON(w, keys)
	}
}

// createAPIKey issues a key. The plaintext is only part of this response; the database keeps
// its sha256.
func (h adminHandler) createAPIKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAPIKeyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		for _, perm := range req.Permissions {
			if _, ok := knownPermissions[strings.TrimSpace(perm)]; !ok {
				h.responder.WriteError(w, errs.NewInvalidFieldError("permissions", "unknown permission "+perm))
				return
			}
		}
		if _, err := models.ParseIPAllowlist(req.AllowedIPs); err != nil {
			h.responder.WriteError(w, errs.NewInvalidFieldError("allowedIps", err.Error()))
			return
		}

		permissions, err := json.Marshal(req.Permissions)
		if err != nil {
			h.responder.WriteError(w, errs.NewMalformedPayloadError("permissions", err))
			return
		}
		allowedIPs := []byte("[]")
		if len(req.AllowedIPs) > 0 {
			if allowedIPs, err = json.Marshal(req.AllowedIPs); err != nil {
				h.responder.WriteError(w, errs.NewMalformedPayloadError("allowedIps", err))
				return
			}
		}

		plaintext := newAPIKeySecret()
		key := models.APIKey{
			Name:        strings.TrimSpace(req.Name),
			KeyHash:     HashAPIKey(plaintext),
			KeyPrefix:   plaintext[:len(apiKeyPrefix)+8],
			Permissions: permissions,
			AllowedIPs:  allowedIPs,
			IsActive:    true,
			ExpiresAt:   req.ExpiresAt,
			CreatedBy:   identityFromContext(r.Context()).UserIDPtr(),
		}
		if err := h.apiKeys.Add(r.Context(), &key); err != nil {
			h.responder.WriteError(w, wrapDatabaseError("create", "api key", err))
			return
		}

		h.logger.Info().Str("keyPrefix", key.KeyPrefix).Str("name", key.Name).Msg("API key issued")
		h.responder.WriteCreated(w, createdAPIKey{APIKey: key, Key: plaintext})
	}
}

func (h adminHandler) revokeAPIKey() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if err := h.apiKeys.Revoke(r.Context(), id); err != nil {
			h.responder.WriteError(w, wrapDatabaseError("revoke", "api key", err))
			return
		}
		h.responder.WriteMessage(w, "api key revoked", nil)
	}
}

// newAPIKeySecret joins two random UUIDs into 64 hex characters behind the rk_ prefix.
func newAPIKeySecret() string {
	return apiKeyPrefix + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}
