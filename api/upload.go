package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/rpupo63/realestate-site-backend/errs"
	"github.com/rpupo63/realestate-site-backend/metrics"
	"github.com/rpupo63/realestate-site-backend/services"
)

const (
	multipartMemory   = 8 << 20
	maxUploadBaseName = 50
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// uploadMiddleware stores multipart image files below <root>/<prefix> before the handler runs.
// Files are removed again when the handler answers with an error status or panics.
type uploadMiddleware struct {
	responder   Responder
	logger      zerolog.Logger
	fs          afero.Fs
	root        string
	maxFileSize int64
	maxFiles    int
	now         func() time.Time
}

func newUploadMiddleware(responder Responder, fs afero.Fs, root string, maxFileSize int64, maxFiles int) uploadMiddleware {
	if maxFiles < 1 {
		maxFiles = 1
	}
	return uploadMiddleware{
		responder:   responder,
		logger:      log.With().Str("handlerName", "uploadMiddleware").Logger(),
		fs:          fs,
		root:        root,
		maxFileSize: maxFileSize,
		maxFiles:    maxFiles,
		now:         time.Now,
	}
}

// accept saves up to maxFiles files from the multipart field into prefix. A maxFiles of 0 uses
// the configured default.
func (m uploadMiddleware) accept(field, prefix string, maxFiles int) func(http.Handler) http.Handler {
	if maxFiles <= 0 || maxFiles > m.maxFiles {
		maxFiles = m.maxFiles
	}
	dir := filepath.Join(m.root, prefix)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, m.maxFileSize*int64(maxFiles)+multipartMemory)
			if err := r.ParseMultipartForm(multipartMemory); err != nil {
				metrics.UploadsTotal.WithLabelValues(prefix, "rejected").Inc()
				var maxBytesErr *http.MaxBytesError
				if errors.As(err, &maxBytesErr) {
					m.responder.WriteError(w, errs.NewFileTooLargeError(m.maxFileSize))
					return
				}
				m.responder.WriteError(w, errs.NewMalformedPayloadError("multipart form", err))
				return
			}
			defer r.MultipartForm.RemoveAll()

			headers := r.MultipartForm.File[field]
			if len(headers) == 0 {
				metrics.UploadsTotal.WithLabelValues(prefix, "rejected").Inc()
				m.responder.WriteError(w, errs.NewMissingRequiredFieldError(field))
				return
			}
			if len(headers) > maxFiles {
				metrics.UploadsTotal.WithLabelValues(prefix, "rejected").Inc()
				m.responder.WriteError(w, errs.NewBadRequestErrorWithField("too many files", field, fmt.Sprintf("at most %d files per request", maxFiles)))
				return
			}

			files, err := m.saveAll(headers, dir)
			if err != nil {
				metrics.UploadsTotal.WithLabelValues(prefix, "rejected").Inc()
				m.responder.WriteError(w, err)
				return
			}

			srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					m.cleanup(files)
					panic(p)
				}
			}()

			next.ServeHTTP(srw, r.WithContext(ctxWithUploads(r.Context(), files)))

			if srw.status >= http.StatusBadRequest {
				m.cleanup(files)
				metrics.UploadsTotal.WithLabelValues(prefix, "failed").Inc()
				return
			}
			metrics.UploadsTotal.WithLabelValues(prefix, "ok").Inc()
		})
	}
}

func (m uploadMiddleware) saveAll(headers []*multipart.FileHeader, dir string) ([]services.UploadedFile, error) {
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.NewUploadFailedError(err)
	}

	files := make([]services.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		file, err := m.save(fh, dir)
		if err != nil {
			m.cleanup(files)
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (m uploadMiddleware) save(fh *multipart.FileHeader, dir string) (services.UploadedFile, error) {
	if fh.Size > m.maxFileSize {
		return services.UploadedFile{}, errs.NewFileTooLargeError(m.maxFileSize)
	}

	src, err := fh.Open()
	if err != nil {
		return services.UploadedFile{}, errs.NewUploadFailedError(err)
	}
	defer src.Close()

	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return services.UploadedFile{}, errs.NewUploadFailedError(err)
	}
	if !mimetype.EqualsAny(mtype.String(), allowedImageTypes...) {
		return services.UploadedFile{}, errs.NewInvalidFileTypeError(mtype.String(), allowedImageTypes)
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return services.UploadedFile{}, errs.NewUploadFailedError(err)
	}

	path := filepath.Join(dir, uploadFileName(fh.Filename, mtype.Extension(), m.now()))
	dst, err := m.fs.Create(path)
	if err != nil {
		return services.UploadedFile{}, errs.NewUploadFailedError(err)
	}
	written, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = m.fs.Remove(path)
		return services.UploadedFile{}, errs.NewUploadFailedError(err)
	}

	return services.UploadedFile{
		Path:         path,
		OriginalName: fh.Filename,
		MimeType:     mtype.String(),
		Size:         written,
	}, nil
}

// cleanup removes saved files that are still on disk. The image pipeline may already have
// deleted some of them.
func (m uploadMiddleware) cleanup(files []services.UploadedFile) {
	for _, f := range files {
		if err := m.fs.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn().Err(err).Str("file", f.Path).Msg("Failed to remove upload after error")
		}
	}
}

// uploadFileName builds <base>-<unix nanos>-<random><ext> from the client supplied name.
func uploadFileName(original, ext string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base = slug.Make(strings.TrimSuffix(base, filepath.Ext(base)))
	if len(base) > maxUploadBaseName {
		base = strings.Trim(base[:maxUploadBaseName], "-")
	}
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("%s-%d-%s%s", base, now.UnixNano(), uuid.NewString()[:8], ext)
}
