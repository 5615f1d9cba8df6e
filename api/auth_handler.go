package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/metrics"
)

type authHandler struct {
	responder Responder
	logger    zerolog.Logger
	users     *database.UserRepo
	jwt       *JWTService
}

func newAuthHandler(responder Responder, users *database.UserRepo, jwtService *JWTService) authHandler {
	return authHandler{
		responder: responder,
		logger:    log.With().Str("handlerName", "authHandler").Logger(),
		users:     users,
		jwt:       jwtService,
	}
}

// login accepts a username or email. Unknown users, disabled accounts and wrong passwords all
// answer INVALID_CREDENTIALS.
func (h authHandler) login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		user, err := h.users.FindByLogin(r.Context(), strings.TrimSpace(req.Login))
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			h.responder.WriteError(w, wrapDatabaseError("find", "user", err))
			return
		}
		if err != nil || !user.IsActive || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			metrics.AuthAttemptsTotal.WithLabelValues("password", "failed").Inc()
			h.logger.Warn().Str("login", req.Login).Str("ip", clientIP(r)).Msg("Failed login attempt")
			h.responder.WriteError(w, errs.NewInvalidCredentialsError())
			return
		}

		token, expiresAt, err := h.jwt.Generate(user)
		if err != nil {
			h.responder.WriteError(w, errs.NewInternalErrorWithCause("could not issue token", err))
			return
		}

		now := time.Now()
		if err := h.users.TouchLastLogin(r.Context(), user.ID, now); err != nil {
			h.logger.Warn().Err(err).Str("userId", user.ID.String()).Msg("Failed to record last login")
		} else {
			user.LastLoginAt = &now
		}

		metrics.AuthAttemptsTotal.WithLabelValues("password", "ok").Inc()
		h.responder.WriteJSON(w, loginResponse{Token: token, ExpiresAt: expiresAt, User: *user})
	}
}

func (h authHandler) me() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromContext(r.Context())
		user, err := h.users.FindByID(r.Context(), identity.UserID)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "user", err))
			return
		}
		h.responder.WriteJSON(w, user)
	}
}

func (h authHandler) changePassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		identity := identityFromContext(r.Context())
		user, err := h.users.FindByID(r.Context(), identity.UserID)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "user", err))
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
			h.responder.WriteError(w, errs.NewInvalidCredentialsError())
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			h.responder.WriteError(w, errs.NewInternalErrorWithCause("could not hash password", err))
			return
		}
		if err := h.users.UpdatePassword(r.Context(), user.ID, string(hash)); err != nil {
			h.responder.WriteError(w, wrapDatabaseError("update", "user", err))
			return
		}

		h.logger.Info().Str("userId", user.ID.String()).Msg("Password changed")
		h.responder.WriteMessage(w, "password changed", nil)
	}
}

// logout is stateless; clients drop the token.
func (h authHandler) logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.responder.WriteMessage(w, "logged out", nil)
	}
}

func (h authHandler) refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromContext(r.Context())
		user, err := h.users.FindByID(r.Context(), identity.UserID)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "user", err))
			return
		}

		token, expiresAt, err := h.jwt.Generate(user)
		if err != nil {
			h.responder.WriteError(w, errs.NewInternalErrorWithCause("could not issue token", err))
			return
		}
		h.responder.WriteJSON(w, loginResponse{Token: token, ExpiresAt: expiresAt, User: *user})
	}
}
