package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	DBTypePostgres = "postgres"
	DBTypeSQLite   = "sqlite"

	StorageLocal = "local"
	StorageS3    = "s3"

	// only ever used when APP_ENV is development or test
	devJWTSecret = "development-secret-do-not-use"
)

type DatabaseSettings struct {
	Type         string
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	ReplicaHosts []string
	MaxOpenConns int
	MaxIdleConns int
	// DSN overrides the host/port/user fields; used for sqlite paths.
	DSN string
}

// PostgresDSN builds a libpq keyword/value connection string for host.
func (d DatabaseSettings) PostgresDSN(host string) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

type AuthSettings struct {
	JWTSecret string
	JWTTTL    time.Duration
}

type RateLimitSettings struct {
	Window     time.Duration
	Max        int
	ContactMax int
}

type SMTPSettings struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	NotifyTo []string
}

// Enabled reports whether enough is configured to attempt delivery.
func (s SMTPSettings) Enabled() bool {
	return s.Host != "" && s.From != "" && len(s.NotifyTo) > 0
}

type TwilioSettings struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	NotifyTo   string
}

func (s TwilioSettings) Enabled() bool {
	return s.AccountSID != "" && s.AuthToken != "" && s.FromNumber != "" && s.NotifyTo != ""
}

type UploadSettings struct {
	Dir             string
	MaxFileSize     int64
	MaxFiles        int
	TempMaxAge      time.Duration
	StorageDriver   string
	S3Bucket        string
	S3Prefix        string
	AWSRegion       string
	PublicURLPrefix string
}

type LogSettings struct {
	Level string
	File  string
}

type ServerSettings struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
	EnableSwagger  bool
}

// Settings is the typed view of the environment the server runs with.
type Settings struct {
	Environment string
	Version     string
	Server      ServerSettings
	Database    DatabaseSettings
	Auth        AuthSettings
	RateLimit   RateLimitSettings
	SMTP        SMTPSettings
	Twilio      TwilioSettings
	Upload      UploadSettings
	Log         LogSettings
}

func (s Settings) IsDevelopment() bool {
	return s.Environment == EnvDevelopment || s.Environment == EnvTest
}

// Load builds Settings from an env map produced by New (optionally overlaid with SSM values).
func Load(c map[string]string) (Settings, error) {
	env := strings.ToLower(GetString(c, "APP_ENV", GetString(c, "NODE_ENV", EnvDevelopment)))

	settings := Settings{
		Environment: env,
		Version:     GetString(c, "APP_VERSION", "dev"),
		Server: ServerSettings{
			Port:           GetString(c, "PORT", "8080"),
			ReadTimeout:    GetDuration(c, "READ_TIMEOUT_SECONDS", 180, time.Second),
			WriteTimeout:   GetDuration(c, "WRITE_TIMEOUT_SECONDS", 180, time.Second),
			IdleTimeout:    GetDuration(c, "IDLE_TIMEOUT_SECONDS", 180, time.Second),
			AllowedOrigins: GetStrings(c, "ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			EnableSwagger:  GetBool(c, "ENABLE_SWAGGER", false),
		},
		Database: DatabaseSettings{
			Type:         strings.ToLower(GetString(c, "DB_TYPE", DBTypePostgres)),
			Host:         GetString(c, "DB_HOST", "localhost"),
			Port:         GetString(c, "DB_PORT", "5432"),
			User:         GetString(c, "DB_USER", "postgres"),
			Password:     GetString(c, "DB_PASSWORD", ""),
			Name:         GetString(c, "DB_NAME", "realestate"),
			SSLMode:      GetString(c, "DB_SSLMODE", "disable"),
			ReplicaHosts: GetStrings(c, "DB_REPLICA_HOSTS", nil),
			MaxOpenConns: GetInt(c, "DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: GetInt(c, "DB_MAX_IDLE_CONNS", 5),
			DSN:          GetString(c, "DB_DSN", ""),
		},
		Auth: AuthSettings{
			JWTSecret: GetString(c, "JWT_SECRET", ""),
			JWTTTL:    GetDuration(c, "JWT_TTL_HOURS", 24, time.Hour),
		},
		RateLimit: RateLimitSettings{
			Window:     GetDuration(c, "RATE_LIMIT_WINDOW_MINUTES", 15, time.Minute),
			Max:        GetInt(c, "RATE_LIMIT_MAX", 100),
			ContactMax: GetInt(c, "CONTACT_RATE_LIMIT_MAX", 5),
		},
		SMTP: SMTPSettings{
			Host:     GetString(c, "SMTP_HOST", ""),
			Port:     GetInt(c, "SMTP_PORT", 587),
			User:     GetString(c, "SMTP_USER", ""),
			Password: GetString(c, "SMTP_PASSWORD", ""),
			From:     GetString(c, "SMTP_FROM", ""),
			NotifyTo: GetStrings(c, "CONTACT_NOTIFY_EMAIL", nil),
		},
		Twilio: TwilioSettings{
			AccountSID: GetString(c, "TWILIO_ACCOUNT_SID", ""),
			AuthToken:  GetString(c, "TWILIO_AUTH_TOKEN", ""),
			FromNumber: GetString(c, "TWILIO_FROM_NUMBER", ""),
			NotifyTo:   GetString(c, "CONTACT_NOTIFY_PHONE", ""),
		},
		Upload: UploadSettings{
			Dir:             GetString(c, "UPLOAD_DIR", "uploads"),
			MaxFileSize:     int64(GetInt(c, "UPLOAD_MAX_FILE_SIZE_MB", 10)) << 20,
			MaxFiles:        GetInt(c, "UPLOAD_MAX_FILES", 10),
			TempMaxAge:      GetDuration(c, "TEMP_UPLOAD_MAX_AGE_HOURS", 24, time.Hour),
			StorageDriver:   strings.ToLower(GetString(c, "STORAGE_DRIVER", StorageLocal)),
			S3Bucket:        GetString(c, "S3_BUCKET", ""),
			S3Prefix:        GetString(c, "S3_PREFIX", ""),
			AWSRegion:       GetString(c, "AWS_REGION", "us-east-1"),
			PublicURLPrefix: GetString(c, "UPLOAD_PUBLIC_PREFIX", "/uploads"),
		},
		Log: LogSettings{
			Level: GetString(c, "LOG_LEVEL", "info"),
			File:  GetString(c, "LOG_FILE", ""),
		},
	}

	if settings.Auth.JWTSecret == "" && settings.IsDevelopment() {
		settings.Auth.JWTSecret = devJWTSecret
	}

	if err := settings.validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s Settings) validate() error {
	switch s.Database.Type {
	case DBTypePostgres, DBTypeSQLite:
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", s.Database.Type)
	}

	if s.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required outside development")
	}
	if len(s.Auth.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}

	if s.Upload.StorageDriver == StorageS3 && s.Upload.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
	}
	if s.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("UPLOAD_MAX_FILE_SIZE_MB must be positive")
	}
	return nil
}
