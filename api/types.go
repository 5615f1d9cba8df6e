package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/models"
	"github.com/rpupo63/realestate-site-backend/services"
)

// routeHandlers contains all the handlers for different route types
type routeHandlers struct {
	healthHandler     healthHandler
	authHandler       authHandler
	projectHandler    projectHandler
	contactHandler    contactHandler
	tagHandler        tagHandler
	uploadHandler     uploadHandler
	adminHandler      adminHandler
	statisticsHandler statisticsHandler
	systemHandler     systemHandler
}

// Envelope is the shape of every JSON response.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries the machine readable code. Cause and Stack are only filled in development.
type ErrorBody struct {
	Code    errs.Code `json:"code"`
	Field   string    `json:"field,omitempty"`
	Details string    `json:"details,omitempty"`
	Cause   string    `json:"cause,omitempty"`
	Stack   string    `json:"stack,omitempty"`
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type createUserRequest struct {
	Username string      `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string      `json:"email" validate:"required,email,max=255"`
	Password string      `json:"password" validate:"required,min=8,max=72"`
	Role     models.Role `json:"role" validate:"omitempty,oneof=admin editor viewer"`
}

type updateUserRequest struct {
	Email    *string      `json:"email" validate:"omitempty,email,max=255"`
	Password *string      `json:"password" validate:"omitempty,min=8,max=72"`
	Role     *models.Role `json:"role" validate:"omitempty,oneof=admin editor viewer"`
	IsActive *bool        `json:"isActive"`
}

type createAPIKeyRequest struct {
	Name        string     `json:"name" validate:"required,max=100"`
	Permissions []string   `json:"permissions" validate:"required,min=1,dive,required"`
	AllowedIPs  []string   `json:"allowedIps" validate:"omitempty,dive,required"`
	ExpiresAt   *time.Time `json:"expiresAt"`
}

// createdAPIKey is returned once, right after issuing; Key is never shown again.
type createdAPIKey struct {
	models.APIKey
	Key string `json:"key"`
}

type createContactRequest struct {
	Name      string     `json:"name" validate:"required,max=100"`
	Email     string     `json:"email" validate:"required,email,max=255"`
	Phone     string     `json:"phone" validate:"omitempty,max=50"`
	Subject   string     `json:"subject" validate:"omitempty,max=255"`
	Message   string     `json:"message" validate:"required,min=10,max=5000"`
	ProjectID *uuid.UUID `json:"projectId"`
}

type contactFlagRequest struct {
	Value *bool `json:"value"`
}

type createTagRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type reorderImagesRequest struct {
	ImageIDs []uuid.UUID `json:"imageIds" validate:"required,min=1"`
}

type imageUploadResponse struct {
	ID           string                 `json:"id"`
	OriginalName string                 `json:"originalName"`
	Images       map[string]string      `json:"images"`
	FailedSizes  []string               `json:"failedSizes,omitempty"`
	Metadata     services.ImageMetadata `json:"metadata"`
}

const imageProcessingFailed = "image could not be processed"

// failedUpload names a file that produced no rendition at all.
type failedUpload struct {
	OriginalName string `json:"originalName"`
	Reason       string `json:"reason"`
}

type imageUploadsResponse struct {
	Uploads []imageUploadResponse `json:"uploads"`
	Failed  []failedUpload        `json:"failed,omitempty"`
}

type projectImagesResponse struct {
	Images []models.ProjectImage `json:"images"`
	Failed []failedUpload        `json:"failed,omitempty"`
}

type avatarResponse struct {
	Avatar string            `json:"avatar"`
	Images map[string]string `json:"images"`
}
