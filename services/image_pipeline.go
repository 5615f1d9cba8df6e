package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/rpupo63/realestate-site-backend/metrics"
)

type FitMode int

const (
	// FitCover crops to exactly Width x Height around the centre.
	FitCover FitMode = iota
	// FitInside scales down to fit within Width x Height, never up.
	FitInside
)

type RenditionSpec struct {
	Name    string
	Width   int
	Height  int
	Fit     FitMode
	Quality int
}

// RenditionSizes is generated for every processed image. "optimized" is bounded by the
// original size entry of 1920x1080.
var RenditionSizes = []RenditionSpec{
	{Name: "thumbnail", Width: 150, Height: 150, Fit: FitCover, Quality: 80},
	{Name: "small", Width: 400, Height: 300, Fit: FitInside, Quality: 85},
	{Name: "medium", Width: 800, Height: 600, Fit: FitInside, Quality: 85},
	{Name: "large", Width: 1200, Height: 900, Fit: FitInside, Quality: 85},
	{Name: "optimized", Width: 1920, Height: 1080, Fit: FitInside, Quality: 90},
}

// UploadedFile is a file the upload middleware already wrote to disk.
type UploadedFile struct {
	Path         string
	OriginalName string
	MimeType     string
	Size         int64
}

// Rendition is one generated file. Key is relative to the upload root; Path is the full path.
type Rendition struct {
	Path     string `json:"path"`
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type RenditionFailure struct {
	Size string `json:"size"`
	Err  error  `json:"-"`
}

func (f RenditionFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Size, f.Err)
}

type ImageMetadata struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

type ImageResult struct {
	Renditions map[string]Rendition `json:"renditions"`
	Failures   []RenditionFailure   `json:"-"`
	Original   ImageMetadata        `json:"original"`
}

// FailedSizes lists the size names that could not be produced.
func (r *ImageResult) FailedSizes() []string {
	sizes := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		sizes = append(sizes, f.Size)
	}
	return sizes
}

// Keys returns the relative keys of every produced rendition.
func (r *ImageResult) Keys() []string {
	keys := make([]string, 0, len(r.Renditions))
	for _, rendition := range r.Renditions {
		keys = append(keys, rendition.Key)
	}
	return keys
}

// ImagePipeline turns uploaded images into WebP renditions below uploadRoot.
type ImagePipeline struct {
	fs     afero.Fs
	root   string
	sizes  []RenditionSpec
	store  ObjectStore
	logger zerolog.Logger
}

// NewImagePipeline creates a pipeline writing to fs below root. store may be nil.
func NewImagePipeline(fs afero.Fs, root string, store ObjectStore) *ImagePipeline {
	return &ImagePipeline{
		fs:     fs,
		root:   root,
		sizes:  RenditionSizes,
		store:  store,
		logger: log.With().Str("component", "imagePipeline").Logger(),
	}
}

// Process generates every rendition of file into <root>/<dir>/<name>-<size>.webp. A failing size
// is recorded in ImageResult.Failures and does not stop the others; only when no size at all could
// be produced is an error returned, together with the result listing every failure. The original
// upload is always removed, including when it cannot be decoded. On cancellation the renditions
// already written are removed again.
func (p *ImagePipeline) Process(ctx context.Context, file UploadedFile, dir string) (*ImageResult, error) {
	defer p.removeOriginal(file.Path)
	start := time.Now()

	src, meta, err := p.decode(file.Path)
	if err != nil {
		return nil, err
	}

	relDir := filepath.ToSlash(filepath.Clean(dir))
	fullDir := filepath.Join(p.root, filepath.FromSlash(relDir))
	existed, err := afero.DirExists(p.fs, fullDir)
	if err != nil {
		return nil, fmt.Errorf("stat rendition dir: %w", err)
	}
	if err := p.fs.MkdirAll(fullDir, 0o755); err != nil {
		return nil, fmt.Errorf("create rendition dir: %w", err)
	}

	name := renditionBaseName(file)
	result := &ImageResult{
		Renditions: make(map[string]Rendition, len(p.sizes)),
		Original:   meta,
	}

	for _, spec := range p.sizes {
		if err := ctx.Err(); err != nil {
			p.discard(result, fullDir, existed)
			return nil, err
		}
		rendition, err := p.render(src, spec, relDir, name)
		if err != nil {
			p.logger.Error().Err(err).Str("size", spec.Name).Str("file", file.Path).Msg("Failed to generate rendition")
			result.Failures = append(result.Failures, RenditionFailure{Size: spec.Name, Err: err})
			metrics.RenditionsTotal.WithLabelValues(spec.Name, "failed").Inc()
			continue
		}
		result.Renditions[spec.Name] = rendition
		metrics.RenditionsTotal.WithLabelValues(spec.Name, "ok").Inc()
	}
	metrics.ImageProcessingDuration.Observe(time.Since(start).Seconds())

	if len(result.Renditions) == 0 {
		p.discard(result, fullDir, existed)
		return result, fmt.Errorf("no renditions generated for %s: %w", file.OriginalName, errors.Join(failureErrs(result.Failures)...))
	}

	p.mirror(ctx, result)
	return result, nil
}

// discard removes what an unfinished Process wrote. A directory Process created itself goes
// entirely; a shared one such as projects/<id> only loses this upload's files.
func (p *ImagePipeline) discard(result *ImageResult, fullDir string, existed bool) {
	if !existed {
		if err := p.fs.RemoveAll(fullDir); err != nil {
			p.logger.Warn().Err(err).Str("dir", fullDir).Msg("Failed to remove rendition dir")
		}
		return
	}
	for _, rendition := range result.Renditions {
		if err := p.fs.Remove(rendition.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn().Err(err).Str("file", rendition.Path).Msg("Failed to remove rendition")
		}
	}
}

// ProcessProject is Process for files stored under projects/<projectKey>.
func (p *ImagePipeline) ProcessProject(ctx context.Context, file UploadedFile, projectKey string) (*ImageResult, error) {
	return p.Process(ctx, file, filepath.Join("projects", projectKey))
}

func failureErrs(failures []RenditionFailure) []error {
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, f)
	}
	return errs
}

func (p *ImagePipeline) decode(path string) (image.Image, ImageMetadata, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return nil, ImageMetadata{}, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, ImageMetadata{}, fmt.Errorf("decode image config: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, ImageMetadata{}, fmt.Errorf("rewind upload: %w", err)
	}

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, ImageMetadata{}, fmt.Errorf("decode image: %w", err)
	}
	return img, ImageMetadata{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

func (p *ImagePipeline) render(src image.Image, spec RenditionSpec, relDir, name string) (Rendition, error) {
	var out image.Image
	switch spec.Fit {
	case FitCover:
		out = imaging.Fill(src, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)
	default:
		// imaging.Fit returns a clone when src already fits
		out = imaging.Fit(src, spec.Width, spec.Height, imaging.Lanczos)
	}

	filename := fmt.Sprintf("%s-%s.webp", name, spec.Name)
	key := relDir + "/" + filename
	fullPath := filepath.Join(p.root, filepath.FromSlash(key))

	f, err := p.fs.Create(fullPath)
	if err != nil {
		return Rendition{}, fmt.Errorf("create %s: %w", filename, err)
	}
	if err := webp.Encode(f, out, webp.Options{Quality: spec.Quality}); err != nil {
		f.Close()
		_ = p.fs.Remove(fullPath)
		return Rendition{}, fmt.Errorf("encode %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		_ = p.fs.Remove(fullPath)
		return Rendition{}, fmt.Errorf("close %s: %w", filename, err)
	}

	b := out.Bounds()
	return Rendition{Path: fullPath, Key: key, Filename: filename, Width: b.Dx(), Height: b.Dy()}, nil
}

func (p *ImagePipeline) removeOriginal(path string) {
	if err := p.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn().Err(err).Str("file", path).Msg("Failed to remove original upload")
	}
}

// mirror copies renditions to the object store. Local files stay authoritative, so mirror
// failures are logged only.
func (p *ImagePipeline) mirror(ctx context.Context, result *ImageResult) {
	if p.store == nil {
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, rendition := range result.Renditions {
		rendition := rendition
		g.Go(func() error {
			f, err := p.fs.Open(rendition.Path)
			if err != nil {
				return err
			}
			defer f.Close()
			return p.store.Put(ctx, rendition.Key, f, "image/webp")
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Error().Err(err).Msg("Failed to mirror renditions to object storage")
	}
}

// Remove deletes rendition files by key (relative to the upload root) locally and in the mirror.
func (p *ImagePipeline) Remove(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		fullPath := filepath.Join(p.root, filepath.FromSlash(key))
		if err := p.fs.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn().Err(err).Str("file", fullPath).Msg("Failed to remove rendition")
		}
	}
	if p.store != nil {
		if err := p.store.Delete(ctx, keys...); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to remove mirrored renditions")
		}
	}
}

// RemoveDir deletes a whole rendition directory such as projects/<id>.
func (p *ImagePipeline) RemoveDir(relDir string) error {
	return p.fs.RemoveAll(filepath.Join(p.root, filepath.FromSlash(relDir)))
}

func renditionBaseName(file UploadedFile) string {
	base := filepath.Base(file.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
