package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"github.com/rpupo63/realestate-site-backend/config"
)

// Database owns the connection pool and hands out repositories bound to it.
// Open creates it, Close releases the pool.
type Database struct {
	db             *gorm.DB
	projectRepo    *ProjectRepo
	tagRepo        *TagRepo
	userRepo       *UserRepo
	contactRepo    *ContactRepo
	apiKeyRepo     *APIKeyRepo
	statisticsRepo *StatisticsRepo
}

// New initializes a new Database struct with each repository using a shared GORM database instance
func New(db *gorm.DB) Database {
	return Database{
		db:             db,
		projectRepo:    NewProjectRepo(db),
		tagRepo:        NewTagRepo(db),
		userRepo:       NewUserRepo(db),
		contactRepo:    NewContactRepo(db),
		apiKeyRepo:     NewAPIKeyRepo(db),
		statisticsRepo: NewStatisticsRepo(db),
	}
}

// Open connects according to settings, registers read replicas and sizes the pool.
func Open(settings config.DatabaseSettings) (Database, error) {
	gormLogger := logger.New(
		log.New(zlog.Logger.Level(zerolog.WarnLevel), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gormConfig := &gorm.Config{
		PrepareStmt:    false,
		Logger:         gormLogger,
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch settings.Type {
	case config.DBTypePostgres:
		dsn := settings.DSN
		if dsn == "" {
			dsn = settings.PostgresDSN(settings.Host)
		}
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), gormConfig)
		if err != nil {
			return Database{}, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := registerReplicas(db, settings); err != nil {
			return Database{}, err
		}
	case config.DBTypeSQLite:
		dsn := settings.DSN
		if dsn == "" {
			dsn = "realestate.db"
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormConfig)
		if err != nil {
			return Database{}, fmt.Errorf("connect to sqlite: %w", err)
		}
	default:
		return Database{}, fmt.Errorf("unsupported database type: %s", settings.Type)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return Database{}, fmt.Errorf("get raw DB connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(settings.MaxOpenConns)
	sqlDB.SetMaxIdleConns(settings.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	if settings.Type == config.DBTypeSQLite {
		// sqlite allows a single writer; a second pooled connection to :memory: is a different database
		sqlDB.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return Database{}, fmt.Errorf("ping database: %w", err)
	}

	return New(db), nil
}

func registerReplicas(db *gorm.DB, settings config.DatabaseSettings) error {
	if len(settings.ReplicaHosts) == 0 {
		return nil
	}

	replicas := make([]gorm.Dialector, 0, len(settings.ReplicaHosts))
	for _, host := range settings.ReplicaHosts {
		replicas = append(replicas, postgres.New(postgres.Config{
			DSN:                  settings.PostgresDSN(host),
			PreferSimpleProtocol: true,
		}))
	}

	err := db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: replicas,
		Policy:   dbresolver.RandomPolicy{},
	}).
		SetMaxOpenConns(settings.MaxOpenConns).
		SetMaxIdleConns(settings.MaxIdleConns))
	if err != nil {
		return fmt.Errorf("register read replicas: %w", err)
	}
	zlog.Info().Int("replicas", len(replicas)).Msg("Registered read replicas")
	return nil
}

// Close releases the connection pool.
func (d Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// Ping checks the database is reachable.
func (d Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithTransaction runs fn with repositories bound to a single transaction. The transaction
// is committed when fn returns nil and rolled back otherwise; the connection always goes back
// to the pool.
func (d Database) WithTransaction(ctx context.Context, fn func(tx Database) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// GetDB returns the underlying database connection for debugging purposes
func (d Database) GetDB() *gorm.DB {
	return d.db
}

// Dialect is the gorm dialector name ("postgres", "sqlite", ...).
func (d Database) Dialect() string {
	return d.db.Dialector.Name()
}

// Accessor methods for each repository

func (d Database) ProjectRepo() *ProjectRepo {
	return d.projectRepo
}

func (d Database) TagRepo() *TagRepo {
	return d.tagRepo
}

func (d Database) UserRepo() *UserRepo {
	return d.userRepo
}

func (d Database) ContactRepo() *ContactRepo {
	return d.contactRepo
}

func (d Database) APIKeyRepo() *APIKeyRepo {
	return d.apiKeyRepo
}

func (d Database) StatisticsRepo() *StatisticsRepo {
	return d.statisticsRepo
}
