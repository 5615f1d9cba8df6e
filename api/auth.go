package api

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/metrics"
	"github.com/rpupo63/realestate-site-backend/models"
)

const (
	tokenIssuer    = "realestate-site"
	apiKeyHeader   = "x-api-key"
	apiKeyQueryArg = "api_key"
)

// Claims is the JWT payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string      `json:"userId"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

// JWTService signs and validates HS256 access tokens.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTService(secret string, ttl time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a signed token for user and its expiry.
func (s *JWTService) Generate(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:   user.ID.String(),
		Username: user.Username,
		Role:     user.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses tokenString. Returned errors wrap the jwt sentinel errors so errs.Classify can
// tell expired tokens from invalid ones.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// HashAPIKey is the stored form of an API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

type authMiddleware struct {
	responder Responder
	logger    zerolog.Logger
	jwt       *JWTService
	users     *database.UserRepo
	apiKeys   *database.APIKeyRepo
	now       func() time.Time
}

func newAuthMiddleware(responder Responder, jwtService *JWTService, users *database.UserRepo, apiKeys *database.APIKeyRepo) authMiddleware {
	return authMiddleware{
		responder: responder,
		logger:    log.With().Str("handlerName", "authMiddleware").Logger(),
		jwt:       jwtService,
		users:     users,
		apiKeys:   apiKeys,
		now:       time.Now,
	}
}

// authenticate rejects requests without a valid bearer token or API key.
func (m authMiddleware) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.resolve(r)
		if err != nil {
			m.responder.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctxWithIdentity(r.Context(), identity)))
	})
}

// optionalAuth attaches the caller when credentials are present and valid and otherwise
// continues anonymously.
func (m authMiddleware) optionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hasCredentials(r) {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := m.resolve(r)
		if err != nil {
			m.logger.Debug().Err(err).Msg("Ignoring invalid credentials on public route")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctxWithIdentity(r.Context(), identity)))
	})
}

func hasCredentials(r *http.Request) bool {
	return r.Header.Get("Authorization") != "" || apiKeyFromRequest(r) != ""
}

func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return key
	}
	return r.URL.Query().Get(apiKeyQueryArg)
}

func (m authMiddleware) resolve(r *http.Request) (*Identity, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			metrics.AuthAttemptsTotal.WithLabelValues("jwt", "invalid").Inc()
			return nil, errs.NewInvalidTokenError()
		}
		return m.fromToken(r, strings.TrimSpace(parts[1]))
	}
	if key := apiKeyFromRequest(r); key != "" {
		return m.fromAPIKey(r, key)
	}
	return nil, errs.NewMissingTokenError()
}

func (m authMiddleware) fromToken(r *http.Request, token string) (*Identity, error) {
	claims, err := m.jwt.Validate(token)
	if err != nil {
		result := "invalid"
		if errors.Is(err, jwt.ErrTokenExpired) {
			result = "expired"
		}
		metrics.AuthAttemptsTotal.WithLabelValues("jwt", result).Inc()
		return nil, err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("jwt", "invalid").Inc()
		return nil, errs.NewInvalidTokenError()
	}

	user, err := m.users.FindByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.AuthAttemptsTotal.WithLabelValues("jwt", "unknown_user").Inc()
			return nil, errs.NewInvalidTokenError()
		}
		return nil, wrapDatabaseError("find", "user", err)
	}
	if !user.IsActive {
		metrics.AuthAttemptsTotal.WithLabelValues("jwt", "inactive").Inc()
		return nil, errs.NewUnauthorizedError("account is disabled")
	}

	metrics.AuthAttemptsTotal.WithLabelValues("jwt", "ok").Inc()
	return &Identity{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func (m authMiddleware) fromAPIKey(r *http.Request, key string) (*Identity, error) {
	apiKey, err := m.apiKeys.FindActiveByHash(r.Context(), HashAPIKey(key))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.AuthAttemptsTotal.WithLabelValues("api_key", "invalid").Inc()
			return nil, errs.NewUnauthorizedError("invalid api key")
		}
		return nil, wrapDatabaseError("find", "api key", err)
	}

	now := m.now()
	if apiKey.Expired(now) {
		metrics.AuthAttemptsTotal.WithLabelValues("api_key", "expired").Inc()
		return nil, errs.NewUnauthorizedError("api key has expired")
	}
	if ip := clientIP(r); !apiKey.IPAllowlist().Allows(ip) {
		metrics.AuthAttemptsTotal.WithLabelValues("api_key", "ip_denied").Inc()
		m.logger.Warn().Str("keyPrefix", apiKey.KeyPrefix).Str("ip", ip).Msg("API key used from address outside its allowlist")
		return nil, errs.NewForbiddenError("ip address not allowed for this api key")
	}

	if err := m.apiKeys.TouchLastUsed(r.Context(), apiKey.ID, now); err != nil {
		m.logger.Warn().Err(err).Str("keyPrefix", apiKey.KeyPrefix).Msg("Failed to update api key last use")
	}

	metrics.AuthAttemptsTotal.WithLabelValues("api_key", "ok").Inc()
	return &Identity{APIKey: apiKey}, nil
}

// requireRole passes callers holding one of roles. Admins always pass; API keys never do.
func (m authMiddleware) requireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := identityFromContext(r.Context())
			if identity == nil {
				m.responder.WriteError(w, errs.NewMissingTokenError())
				return
			}
			if identity.Role == models.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if identity.Role == role && !identity.IsAPIKey() {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.responder.WriteError(w, errs.NewInsufficientRoleError(string(roles[0])))
		})
	}
}

// requirePermission checks the caller's permission set: role permissions for users, the key's
// own list for API keys.
func (m authMiddleware) requirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := identityFromContext(r.Context())
			if identity == nil {
				m.responder.WriteError(w, errs.NewMissingTokenError())
				return
			}
			if !identity.Permissions().Has(perm) {
				m.responder.WriteError(w, errs.NewInsufficientPermissionsError(perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireUser rejects API key callers on routes that act on the signed in account.
func (m authMiddleware) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFromContext(r.Context())
		if identity == nil {
			m.responder.WriteError(w, errs.NewMissingTokenError())
			return
		}
		if identity.IsAPIKey() {
			m.responder.WriteError(w, errs.NewForbiddenError("this endpoint requires a user session"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For entry, then X-Real-IP, then the peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
