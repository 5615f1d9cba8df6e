package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/rpupo63/realestate-site-backend/models"
	"github.com/rpupo63/realestate-site-backend/services"
)

type keyType string

const (
	identityKey keyType = "identity"
	uploadsKey  keyType = "uploads"
)

// Identity is the authenticated caller: a user from a JWT or an API key.
type Identity struct {
	UserID   uuid.UUID
	Username string
	Role     models.Role
	APIKey   *models.APIKey
}

// IsAPIKey reports whether the caller authenticated with an API key.
func (i *Identity) IsAPIKey() bool {
	return i.APIKey != nil
}

// Permissions is the role's permission set for users and the key's own set for API keys.
func (i *Identity) Permissions() models.PermissionSet {
	if i.APIKey != nil {
		return i.APIKey.PermissionSet()
	}
	return i.Role.Permissions()
}

// UserIDPtr is nil for API key callers, for audit columns.
func (i *Identity) UserIDPtr() *uuid.UUID {
	if i == nil || i.APIKey != nil {
		return nil
	}
	id := i.UserID
	return &id
}

func ctxWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// identityFromContext returns the caller set by the auth middleware, or nil.
func identityFromContext(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityKey).(*Identity)
	return identity
}

func ctxWithUploads(ctx context.Context, files []services.UploadedFile) context.Context {
	return context.WithValue(ctx, uploadsKey, files)
}

func uploadsFromContext(ctx context.Context) []services.UploadedFile {
	files, _ := ctx.Value(uploadsKey).([]services.UploadedFile)
	return files
}
