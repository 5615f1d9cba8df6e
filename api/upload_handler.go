package api

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/services"
)

type uploadHandler struct {
	responder    Responder
	logger       zerolog.Logger
	users        *database.UserRepo
	pipeline     *services.ImagePipeline
	publicPrefix string
}

func newUploadHandler(responder Responder, users *database.UserRepo, pipeline *services.ImagePipeline, publicPrefix string) uploadHandler {
	return uploadHandler{
		responder:    responder,
		logger:       log.With().Str("handlerName", "uploadHandler").Logger(),
		users:        users,
		pipeline:     pipeline,
		publicPrefix: strings.TrimSuffix(publicPrefix, "/"),
	}
}

// uploadImage processes loose images into temp/<uuid>. The temp cleaner purges them once they
// pass TEMP_UPLOAD_MAX_AGE_HOURS.
func (h uploadHandler) uploadImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			uploaded []imageUploadResponse
			failed   []failedUpload
			failures []error
		)
		for _, file := range uploadsFromContext(r.Context()) {
			id := uuid.NewString()
			result, err := h.pipeline.Process(r.Context(), file, "temp/"+id)
			if err != nil {
				h.logger.Error().Err(err).Str("file", file.OriginalName).Msg("Image processing failed")
				failures = append(failures, err)
				failed = append(failed, failedUpload{OriginalName: file.OriginalName, Reason: imageProcessingFailed})
				continue
			}
			uploaded = append(uploaded, imageUploadResponse{
				ID:           id,
				OriginalName: file.OriginalName,
				Images:       publicRenditionURLs(h.publicPrefix, result),
				FailedSizes:  result.FailedSizes(),
				Metadata:     result.Original,
			})
		}

		if len(uploaded) == 0 {
			h.responder.WriteError(w, errs.NewUploadFailedError(errors.Join(failures...)))
			return
		}
		h.responder.WriteCreated(w, imageUploadsResponse{Uploads: uploaded, Failed: failed})
	}
}

// uploadAvatar replaces the caller's avatar. Each upload gets its own directory below
// avatars/<userID>; the previous one is removed once the new avatar is saved.
func (h uploadHandler) uploadAvatar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files := uploadsFromContext(r.Context())
		if len(files) == 0 {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("avatar"))
			return
		}

		identity := identityFromContext(r.Context())
		user, err := h.users.FindByID(r.Context(), identity.UserID)
		if err != nil {
			h.responder.WriteError(w, wrapDatabaseError("find", "user", err))
			return
		}

		userDir := "avatars/" + user.ID.String()
		result, err := h.pipeline.Process(r.Context(), files[0], userDir+"/"+uuid.NewString())
		if err != nil {
			h.responder.WriteError(w, errs.NewUploadFailedError(err))
			return
		}

		urls := publicRenditionURLs(h.publicPrefix, result)
		avatar, ok := urls["thumbnail"]
		if !ok {
			avatar = h.publicPrefix + "/" + primaryRendition(result).Key
		}

		if err := h.users.UpdateAvatar(r.Context(), user.ID, avatar); err != nil {
			h.pipeline.Remove(r.Context(), result.Keys()...)
			h.responder.WriteError(w, wrapDatabaseError("update", "user", err))
			return
		}

		if user.Avatar != nil {
			h.removeOldAvatar(*user.Avatar, userDir)
		}
		h.responder.WriteCreated(w, avatarResponse{Avatar: avatar, Images: urls})
	}
}

func (h uploadHandler) removeOldAvatar(url, userDir string) {
	key, ok := strings.CutPrefix(url, h.publicPrefix+"/")
	if !ok {
		return
	}
	dir := path.Dir(key)
	if !strings.HasPrefix(dir, userDir+"/") {
		return
	}
	if err := h.pipeline.RemoveDir(dir); err != nil {
		h.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove previous avatar")
	}
}
