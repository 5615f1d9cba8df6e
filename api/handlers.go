package api

import (
	"time"

	"github.com/rpupo63/realestate-site-backend/config"
)

// initializeHandlers creates and returns all handlers organized in a routeHandlers struct
func initializeHandlers(deps Dependencies, settings config.Settings, responder Responder, jwtService *JWTService, startupTime time.Time) *routeHandlers {
	db := deps.Database
	publicPrefix := settings.Upload.PublicURLPrefix

	return &routeHandlers{
		healthHandler:     newHealthHandler(responder, db, settings.Environment, startupTime),
		authHandler:       newAuthHandler(responder, db.UserRepo(), jwtService),
		projectHandler:    newProjectHandler(responder, db.ProjectRepo(), deps.Pipeline, publicPrefix),
		contactHandler:    newContactHandler(responder, db.ContactRepo(), deps.Notifier),
		tagHandler:        newTagHandler(responder, db.TagRepo()),
		uploadHandler:     newUploadHandler(responder, db.UserRepo(), deps.Pipeline, publicPrefix),
		adminHandler:      newAdminHandler(responder, db.UserRepo(), db.APIKeyRepo()),
		statisticsHandler: newStatisticsHandler(responder, db.StatisticsRepo()),
		systemHandler: newSystemHandler(responder, db, deps.Fs, settings.Upload.Dir, deps.Cleaner,
			settings.Version, settings.Environment, startupTime),
	}
}
