package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/rpupo63/realestate-site-backend/models"
)

type routeMiddleware struct {
	auth           authMiddleware
	uploads        uploadMiddleware
	apiLimiter     *RateLimiter
	loginLimiter   *RateLimiter
	contactLimiter *RateLimiter
	responder      Responder
}

// setupAPIRoutes mounts everything below /api.
func setupAPIRoutes(r chi.Router, h *routeHandlers, mw routeMiddleware) {
	auth := mw.auth
	admin := auth.requireRole(models.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimitByIP(mw.apiLimiter, mw.responder))

		r.Route("/auth", func(r chi.Router) {
			r.With(rateLimitByIP(mw.loginLimiter, mw.responder)).Post("/login", h.authHandler.login())
			r.Post("/logout", h.authHandler.logout())

			r.Group(func(r chi.Router) {
				r.Use(auth.authenticate, auth.requireUser)
				r.Get("/me", h.authHandler.me())
				r.Post("/change-password", h.authHandler.changePassword())
				r.Post("/refresh", h.authHandler.refresh())
			})
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", h.projectHandler.listProjects())
			r.Get("/featured", h.projectHandler.featuredProjects())
			r.Get("/categories", h.projectHandler.categories())
			// staff previews must not inflate the view counter
			r.With(auth.optionalAuth).Get("/{identifier}", h.projectHandler.getProject())

			r.Group(func(r chi.Router) {
				r.Use(auth.authenticate)
				write := auth.requirePermission(models.PermProjectsWrite)

				r.With(write).Post("/", h.projectHandler.createProject())
				r.With(write).Put("/{identifier}", h.projectHandler.updateProject())
				r.With(admin).Delete("/{identifier}", h.projectHandler.deleteProject())
				r.With(write, mw.uploads.accept("images", "temp", 0)).Post("/{identifier}/images", h.projectHandler.uploadImages())
				r.With(write).Put("/{identifier}/images/order", h.projectHandler.reorderImages())
				r.With(write).Delete("/{identifier}/images/{imageID}", h.projectHandler.deleteImage())
			})
		})

		r.Route("/contacts", func(r chi.Router) {
			r.With(rateLimitByIP(mw.contactLimiter, mw.responder)).Post("/", h.contactHandler.createContact())

			r.Group(func(r chi.Router) {
				r.Use(auth.authenticate)
				read := auth.requirePermission(models.PermContactsRead)
				write := auth.requirePermission(models.PermContactsWrite)

				r.With(read).Get("/", h.contactHandler.listContacts())
				r.With(read).Get("/{id}", h.contactHandler.getContact())
				r.With(write).Patch("/{id}/read", h.contactHandler.markRead())
				r.With(write).Patch("/{id}/replied", h.contactHandler.markReplied())
				r.With(admin).Delete("/{id}", h.contactHandler.deleteContact())
			})
		})

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", h.tagHandler.listTags())
			r.Group(func(r chi.Router) {
				r.Use(auth.authenticate)
				r.With(auth.requirePermission(models.PermTagsWrite)).Post("/", h.tagHandler.createTag())
				r.With(admin).Delete("/{id}", h.tagHandler.deleteTag())
			})
		})

		r.Route("/upload", func(r chi.Router) {
			r.Use(auth.authenticate)
			r.With(auth.requirePermission(models.PermUploadWrite), mw.uploads.accept("image", "temp", 0)).
				Post("/image", h.uploadHandler.uploadImage())
			r.With(auth.requireUser, mw.uploads.accept("avatar", "temp", 1)).
				Post("/avatar", h.uploadHandler.uploadAvatar())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.authenticate, admin)

			r.Get("/users", h.adminHandler.listUsers())
			r.Post("/users", h.adminHandler.createUser())
			r.Put("/users/{id}", h.adminHandler.updateUser())
			r.Delete("/users/{id}", h.adminHandler.deleteUser())

			r.Get("/api-keys", h.adminHandler.listAPIKeys())
			r.Post("/api-keys", h.adminHandler.createAPIKey())
			r.Delete("/api-keys/{id}", h.adminHandler.revokeAPIKey())
		})

		r.Route("/statistics", func(r chi.Router) {
			r.Use(auth.authenticate, auth.requirePermission(models.PermStatisticsRead))
			r.Get("/overview", h.statisticsHandler.overview())
			r.Get("/projects", h.statisticsHandler.projects())
			r.Get("/contacts", h.statisticsHandler.contacts())
		})

		r.Route("/system", func(r chi.Router) {
			r.Use(auth.authenticate)
			r.Get("/info", h.systemHandler.info())
			r.With(admin).Post("/cleanup-temp", h.systemHandler.cleanupTemp())
		})
	})
}
