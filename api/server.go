package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/unrolled/secure"

	"github.com/rpupo63/realestate-site-backend/config"
	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/services"
)

const loginAttemptsPerWindow = 10

// Dependencies are the long-lived collaborators the HTTP layer is built on.
type Dependencies struct {
	Database database.Database
	Fs       afero.Fs
	Pipeline *services.ImagePipeline
	Notifier services.ContactNotifier
	Cleaner  *services.TempCleaner
}

type Server struct {
	*http.Server
	startupTime time.Time
	handlers    *routeHandlers
}

func NewServer(settings config.Settings, deps Dependencies) (Server, error) {
	if deps.Fs == nil {
		return Server{}, fmt.Errorf("upload filesystem is required")
	}
	if deps.Pipeline == nil {
		return Server{}, fmt.Errorf("image pipeline is required")
	}

	address := fmt.Sprintf("0.0.0.0:%s", settings.Server.Port) // Bind to 0.0.0.0 for external access

	// Capture startup time
	startupTime := time.Now()

	router, handlers := newRouter(deps, withSettings(settings), withStartupTime(startupTime))

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  settings.Server.ReadTimeout,  // Timeout for reading the entire request
		WriteTimeout: settings.Server.WriteTimeout, // Timeout for writing the response
		IdleTimeout:  settings.Server.IdleTimeout,  // Timeout for idle connections
	}

	return Server{Server: server, startupTime: startupTime, handlers: handlers}, nil
}

type router struct {
	settings    config.Settings
	startupTime time.Time
}

func withSettings(settings config.Settings) func(*router) {
	return func(r *router) {
		r.settings = settings
	}
}

func withStartupTime(startupTime time.Time) func(*router) {
	return func(r *router) {
		r.startupTime = startupTime
	}
}

func newRouter(deps Dependencies, opts ...func(*router)) (*chi.Mux, *routeHandlers) {
	var router router
	for _, opt := range opts {
		opt(&router)
	}
	settings := router.settings
	if router.startupTime.IsZero() {
		router.startupTime = time.Now()
	}
	if deps.Notifier == nil {
		deps.Notifier = services.NewNotifier(nil, nil)
	}

	chiRouter := chi.NewRouter()
	chiRouter.Use(LogInternalServerErrors)
	chiRouter.Use(PrometheusMiddleware)
	chiRouter.Use(HTTPLoggingMiddleware(settings.IsDevelopment()))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		IsDevelopment:      settings.IsDevelopment(),
	})
	chiRouter.Use(secureMiddleware.Handler)

	// Apply CORS middleware
	acceptedOrigins := settings.Server.AllowedOrigins
	chiRouter.Use(CORSCheckMiddleware(acceptedOrigins))
	chiRouter.Use(cors.Handler(cors.Options{
		AllowedOrigins:   acceptedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if settings.Server.EnableSwagger {
		log.Warn().Msg("ENABLE_SWAGGER is set but no API documentation is bundled; ignoring")
	}

	responder := NewResponder(log.Logger, settings.IsDevelopment())
	jwtService := NewJWTService(settings.Auth.JWTSecret, settings.Auth.JWTTTL)

	// Initialize all handlers
	handlers := initializeHandlers(deps, settings, responder, jwtService, router.startupTime)

	window := settings.RateLimit.Window
	mw := routeMiddleware{
		auth:           newAuthMiddleware(responder, jwtService, deps.Database.UserRepo(), deps.Database.APIKeyRepo()),
		uploads:        newUploadMiddleware(responder, deps.Fs, settings.Upload.Dir, settings.Upload.MaxFileSize, settings.Upload.MaxFiles),
		apiLimiter:     NewRateLimiter("api", settings.RateLimit.Max, window),
		loginLimiter:   NewRateLimiter("login", loginAttemptsPerWindow, window),
		contactLimiter: NewRateLimiter("contact", settings.RateLimit.ContactMax, window),
		responder:      responder,
	}

	chiRouter.Get("/health", handlers.healthHandler.health())
	chiRouter.Handle("/metrics", promhttp.Handler())
	mountUploads(chiRouter, deps.Fs, settings.Upload.Dir, settings.Upload.PublicURLPrefix)

	// Setup all route types
	setupAPIRoutes(chiRouter, handlers, mw)

	return chiRouter, handlers
}

// mountUploads serves the upload root read-only below prefix. Directory listings answer 404.
func mountUploads(r chi.Router, fs afero.Fs, root, prefix string) {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		log.Warn().Msg("Upload public prefix is empty; static uploads are not served")
		return
	}

	files := http.StripPrefix(prefix, http.FileServer(afero.NewHttpFs(fs).Dir(root)))
	r.Get(prefix+"/*", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}

func (s Server) Start(errChannel chan<- error) {
	log.Info().Msgf("Server started on: %s", s.Addr)
	errChannel <- s.ListenAndServe()
}

func (s Server) ShutdownGracefully(timeout time.Duration) {
	log.Info().Msg("Gracefully shutting down...")

	gracefullCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.Shutdown(gracefullCtx); err != nil {
		log.Error().Msgf("Error shutting down the server: %v", err)
	} else {
		log.Info().Msg("HttpServer gracefully shut down")
	}

	// requests are done; contact notifications may still be sending
	if s.handlers != nil {
		if err := s.handlers.contactHandler.wait(gracefullCtx); err != nil {
			log.Warn().Err(err).Msg("Contact notifications still pending at shutdown")
		}
	}
}
