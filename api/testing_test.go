package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rpupo63/realestate-site-backend/config"
	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/models"
	"github.com/rpupo63/realestate-site-backend/services"
)

const testJWTSecret = "test-secret-0123456789"

type recordingNotifier struct {
	mu       sync.Mutex
	contacts []models.Contact
	err      error
	// release, when set, holds every notification until it is closed
	release chan struct{}
}

func (n *recordingNotifier) NotifyContact(ctx context.Context, contact *models.Contact) error {
	if n.release != nil {
		select {
		case <-n.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.contacts = append(n.contacts, *contact)
	return n.err
}

func (n *recordingNotifier) received() []models.Contact {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Contact(nil), n.contacts...)
}

type testEnv struct {
	t        *testing.T
	db       database.Database
	fs       afero.Fs
	notifier *recordingNotifier
	settings config.Settings
	jwt      *JWTService
	router   http.Handler
	handlers *routeHandlers
}

func testSettings() config.Settings {
	return config.Settings{
		Environment: config.EnvTest,
		Version:     "test",
		Server: config.ServerSettings{
			Port:           "0",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Auth: config.AuthSettings{JWTSecret: testJWTSecret, JWTTTL: time.Hour},
		RateLimit: config.RateLimitSettings{
			Window:     time.Minute,
			Max:        1000,
			ContactMax: 3,
		},
		Upload: config.UploadSettings{
			Dir:             "uploads",
			MaxFileSize:     2 << 20,
			MaxFiles:        4,
			TempMaxAge:      time.Hour,
			PublicURLPrefix: "/uploads",
		},
	}
}

func newTestDatabase(t *testing.T) database.Database {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.Migrate(db))
	return database.New(db)
}

func newTestEnv(t *testing.T, tweak ...func(*config.Settings)) *testEnv {
	t.Helper()
	settings := testSettings()
	for _, fn := range tweak {
		fn(&settings)
	}

	db := newTestDatabase(t)
	fs := afero.NewMemMapFs()
	notifier := &recordingNotifier{}
	deps := Dependencies{
		Database: db,
		Fs:       fs,
		Pipeline: services.NewImagePipeline(fs, settings.Upload.Dir, nil),
		Notifier: notifier,
		Cleaner:  services.NewTempCleaner(fs, settings.Upload.Dir, settings.Upload.TempMaxAge),
	}

	router, handlers := newRouter(deps, withSettings(settings), withStartupTime(time.Now()))
	return &testEnv{
		t:        t,
		db:       db,
		fs:       fs,
		notifier: notifier,
		settings: settings,
		jwt:      NewJWTService(settings.Auth.JWTSecret, settings.Auth.JWTTTL),
		router:   router,
		handlers: handlers,
	}
}

// createUser stores a user with the given role and returns it with a valid bearer token.
func (e *testEnv) createUser(role models.Role) (*models.User, string) {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(e.t, err)

	user := &models.User{
		Username:     gofakeit.LetterN(10),
		Email:        gofakeit.Email(),
		PasswordHash: string(hash),
		Role:         role,
		IsActive:     true,
	}
	require.NoError(e.t, e.db.UserRepo().Add(context.Background(), user))

	token, _, err := e.jwt.Generate(user)
	require.NoError(e.t, err)
	return user, token
}

// createAPIKey stores a key and returns the plaintext secret.
func (e *testEnv) createAPIKey(perms []string, allowedIPs []string, expiresAt *time.Time) string {
	e.t.Helper()
	secret := newAPIKeySecret()
	permsJSON, err := json.Marshal(perms)
	require.NoError(e.t, err)
	ipsJSON, err := json.Marshal(allowedIPs)
	require.NoError(e.t, err)

	key := &models.APIKey{
		Name:        gofakeit.AppName(),
		KeyHash:     HashAPIKey(secret),
		KeyPrefix:   secret[:11],
		Permissions: permsJSON,
		AllowedIPs:  ipsJSON,
		IsActive:    true,
		ExpiresAt:   expiresAt,
	}
	require.NoError(e.t, e.db.APIKeyRepo().Add(context.Background(), key))
	return secret
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withAPIKey(key string) requestOption {
	return func(r *http.Request) { r.Header.Set("x-api-key", key) }
}

func withHeader(name, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

func (e *testEnv) do(method, target string, body any, opts ...requestOption) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type multipartFile struct {
	field string
	name  string
	data  []byte
}

func (e *testEnv) upload(target string, files []multipartFile, fields map[string]string, opts ...requestOption) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(e.t, mw.WriteField(name, value))
	}
	for _, f := range files {
		part, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(e.t, err)
		_, err = part.Write(f.data)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// decodeEnvelope decodes the response and, when data is non-nil, its data field into data.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, data any) Envelope {
	t.Helper()
	var raw struct {
		Envelope
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(raw.Data, data), rec.Body.String())
	}
	return raw.Envelope
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func listFiles(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	var files []string
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

// brokenPNG carries the PNG signature, so it passes content sniffing, but cannot be decoded.
func brokenPNG() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), []byte("truncated before the first chunk")...)
}
