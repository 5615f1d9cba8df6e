package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"

	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/metrics"
	"github.com/rpupo63/realestate-site-backend/models"
	"github.com/rpupo63/realestate-site-backend/services"
)

type projectHandler struct {
	responder    Responder
	logger       zerolog.Logger
	projects     *database.ProjectRepo
	pipeline     *services.ImagePipeline
	publicPrefix string
}

func newProjectHandler(responder Responder, projects *database.ProjectRepo, pipeline *services.ImagePipeline, publicPrefix string) projectHandler {
	return projectHandler{
		responder:    responder,
		logger:       log.With().Str("handlerName", "projectHandler").Logger(),
		projects:     projects,
		pipeline:     pipeline,
		publicPrefix: strings.TrimSuffix(publicPrefix, "/"),
	}
}

// listProjects serves the filtered, paginated project listing.
// Query: category, status, isFeatured, search, tag, page, limit, orderBy, orderDir.
func (h projectHandler) listProjects() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := database.ProjectFilter{
			Category:   queryString(r, "category"),
			Status:     queryString(r, "status"),
			IsFeatured: queryBool(r, "isFeatured", "is_featured", "featured"),
			Search:     queryString(r, "search", "q"),
			Tag:        queryString(r, "tag"),
		}

		page, err := h.projects.FindAll(r.Context(), filter, paginationFromQuery(r))
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("list", "projects", err))
			return
		}
		h.responder.WriteJSON(w, page)
	}
}

func (h projectHandler) featuredProjects() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := h.projects.FindFeatured(r.Context(), queryInt(r, "limit", 0))
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("list", "featured projects", err))
			return
		}
		h.responder.WriteJSON(w, projects)
	}
}

func (h projectHandler) categories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := h.projects.Categories(r.Context())
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("count", "categories", err))
			return
		}
		if categories == nil {
			categories = []database.CategoryCount{}
		}
		h.responder.WriteJSON(w, categories)
	}
}

// getProject returns one project by id or slug. Anonymous visits count as views; signed in
// staff browsing the CMS do not.
func (h projectHandler) getProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := h.projects.FindByIdentifier(r.Context(), chi.URLParam(r, "identifier"))
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "project", err))
			return
		}

		if identityFromContext(r.Context()) == nil {
			if err := h.projects.IncrementViewCount(r.Context(), project.ID); err != nil {
				h.logger.Warn().Err(err).Str("projectId", project.ID.String()).Msg("Failed to increment view count")
			} else {
				project.ViewCount++
				metrics.ProjectViewsTotal.Inc()
			}
		}

		h.responder.WriteJSON(w, project)
	}
}

func (h projectHandler) createProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in database.ProjectInput
		if err := decodeJSON(w, r, &in); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		identity := identityFromContext(r.Context())
		project, err := h.projects.Create(r.Context(), in, identity.UserIDPtr())
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("create", "project", err))
			return
		}

		h.logger.Info().Str("projectId", project.ID.String()).Str("slug", project.Slug).Msg("Project created")
		h.responder.WriteCreated(w, project)
	}
}

func (h projectHandler) updateProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in database.ProjectInput
		if err := decodeJSON(w, r, &in); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		identity := identityFromContext(r.Context())
		project, err := h.projects.Update(r.Context(), chi.URLParam(r, "identifier"), in, identity.UserIDPtr())
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("update", "project", err))
			return
		}
		h.responder.WriteJSON(w, project)
	}
}

// deleteProject removes the project row and then its image directory.
func (h projectHandler) deleteProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := h.projects.Delete(r.Context(), chi.URLParam(r, "identifier"))
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("delete", "project", err))
			return
		}

		var keys []string
		for _, image := range project.Images {
			keys = append(keys, h.imageKeys(image)...)
		}
		h.pipeline.Remove(r.Context(), keys...)
		if err := h.pipeline.RemoveDir("projects/" + project.ID.String()); err != nil {
			h.logger.Warn().Err(err).Str("projectId", project.ID.String()).Msg("Failed to remove project image directory")
		}

		h.logger.Info().Str("projectId", project.ID.String()).Str("slug", project.Slug).Msg("Project deleted")
		h.responder.WriteMessage(w, "project deleted", nil)
	}
}

// uploadImages runs every uploaded file through the image pipeline into projects/<id> and
// records one ProjectImage per file. Form fields: imageType, altText. Files that yield no
// rendition are listed under failed; the request fails only when none succeeded.
func (h projectHandler) uploadImages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := h.projects.FindByIdentifier(r.Context(), chi.URLParam(r, "identifier"))
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "project", err))
			return
		}

		imageType := models.ImageType(r.FormValue("imageType"))
		if imageType == "" {
			imageType = models.ImageGallery
		}
		if !imageType.Valid() {
			h.responder.WriteError(w, errs.NewInvalidFieldError("imageType", "must be one of main, gallery, floor_plan, location, vr"))
			return
		}
		altText := strings.TrimSpace(r.FormValue("altText"))

		var (
			created  []models.ProjectImage
			failed   []failedUpload
			failures []error
		)
		for _, file := range uploadsFromContext(r.Context()) {
			result, err := h.pipeline.ProcessProject(r.Context(), file, project.ID.String())
			if err != nil {
				h.logger.Error().Err(err).Str("file", file.OriginalName).Msg("Image processing failed")
				failures = append(failures, err)
				failed = append(failed, failedUpload{OriginalName: file.OriginalName, Reason: imageProcessingFailed})
				continue
			}

			image := h.newProjectImage(result)
			image.ProjectID = project.ID
			image.ImageType = imageType
			image.AltText = altText
			if err := h.projects.AddImage(r.Context(), &image); err != nil {
				h.pipeline.Remove(r.Context(), result.Keys()...)
				h.removeImages(r.Context(), created)
				h.responder.WriteError(w, wrapDatabaseError("create", "project image", err))
				return
			}
			created = append(created, image)
		}

		if len(created) == 0 {
			h.responder.WriteError(w, errs.NewUploadFailedError(errors.Join(failures...)))
			return
		}
		h.responder.WriteCreated(w, projectImagesResponse{Images: created, Failed: failed})
	}
}

// removeImages undoes images recorded earlier in a request that failed later.
func (h projectHandler) removeImages(ctx context.Context, images []models.ProjectImage) {
	for _, image := range images {
		if _, err := h.projects.DeleteImage(ctx, image.ProjectID, image.ID); err != nil {
			h.logger.Warn().Err(err).Str("imageId", image.ID.String()).Msg("Failed to roll back project image")
			continue
		}
		h.pipeline.Remove(ctx, h.imageKeys(image)...)
	}
}

func (h projectHandler) reorderImages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := h.projects.FindByIdentifier(r.Context(), chi.URLParam(r, "identifier"))
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "project", err))
			return
		}

		var req reorderImagesRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		if err := h.projects.ReorderImages(r.Context(), project.ID, req.ImageIDs); err != nil {
			if errors.Is(err, database.ErrImageNotInProject) {
				h.responder.WriteError(w, errs.NewBadRequestErrorWithField("image does not belong to project", "imageIds", err.Error()))
				return
			}
			h.responder.WriteError(w, wrapDatabaseError("reorder", "project images", err))
			return
		}

		updated, err := h.projects.FindByIdentifier(r.Context(), project.ID.String())
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "project", err))
			return
		}
		h.responder.WriteJSON(w, updated.Images)
	}
}

func (h projectHandler) deleteImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := h.projects.FindByIdentifier(r.Context(), chi.URLParam(r, "identifier"))
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "project", err))
			return
		}
		imageID, err := uuidParam(r, "imageID")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		image, err := h.projects.DeleteImage(r.Context(), project.ID, imageID)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("delete", "project image", err))
			return
		}
		h.pipeline.Remove(r.Context(), h.imageKeys(*image)...)
		h.responder.WriteMessage(w, "image deleted", nil)
	}
}

// newProjectImage describes the renditions with public URLs. FilePath is the largest rendition.
func (h projectHandler) newProjectImage(result *services.ImageResult) models.ProjectImage {
	urls := publicRenditionURLs(h.publicPrefix, result)
	renditions := make(datatypes.JSONMap, len(urls))
	for size, url := range urls {
		renditions[size] = url
	}

	primary := primaryRendition(result)
	return models.ProjectImage{
		FilePath:   h.publicPrefix + "/" + primary.Key,
		Renditions: renditions,
		Width:      primary.Width,
		Height:     primary.Height,
	}
}

// imageKeys maps stored public URLs back to keys below the upload root.
func (h projectHandler) imageKeys(image models.ProjectImage) []string {
	var keys []string
	for _, v := range image.Renditions {
		if url, ok := v.(string); ok {
			if key, found := strings.CutPrefix(url, h.publicPrefix+"/"); found {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// renditionPreference picks the rendition that represents the image as a whole.
var renditionPreference = []string{"optimized", "large", "medium", "small", "thumbnail"}

func primaryRendition(result *services.ImageResult) services.Rendition {
	for _, size := range renditionPreference {
		if rendition, ok := result.Renditions[size]; ok {
			return rendition
		}
	}
	for _, rendition := range result.Renditions {
		return rendition
	}
	return services.Rendition{}
}

func publicRenditionURLs(prefix string, result *services.ImageResult) map[string]string {
	urls := make(map[string]string, len(result.Renditions))
	for size, rendition := range result.Renditions {
		urls[size] = prefix + "/" + rendition.Key
	}
	return urls
}
