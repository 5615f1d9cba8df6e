package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rpupo63/realestate-site-backend/api"
	"github.com/rpupo63/realestate-site-backend/config"
	"github.com/rpupo63/realestate-site-backend/database"
	"github.com/rpupo63/realestate-site-backend/models"
	"github.com/rpupo63/realestate-site-backend/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "realestate",
		Short:         "Real-estate site backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the database schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd.Context(), func(_ config.Settings, db database.Database) error {
					if err := models.Migrate(db.GetDB()); err != nil {
						return err
					}
					log.Info().Msg("Migration complete")
					return nil
				})
			},
		},
		newCreateAdminCommand(),
		newGenerateCommand(),
		&cobra.Command{
			Use:   "column-report",
			Short: "List database columns that no model accounts for",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(cmd.Context(), func(_ config.Settings, db database.Database) error {
					if n := models.GenerateColumnMismatchReport(db.GetDB(), os.Stdout); n > 0 {
						return fmt.Errorf("%d unmapped columns", n)
					}
					return nil
				})
			},
		},
	)
	return root
}

func newCreateAdminCommand() *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}
			if username == "" || email == "" || len(password) < 8 {
				return errors.New("--username, --email and a password of at least 8 characters are required")
			}
			return withDatabase(cmd.Context(), func(_ config.Settings, db database.Database) error {
				if err := models.Migrate(db.GetDB()); err != nil {
					return err
				}
				hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
				if err != nil {
					return fmt.Errorf("hash password: %w", err)
				}
				user := &models.User{
					Username:     username,
					Email:        strings.ToLower(email),
					PasswordHash: string(hash),
					Role:         models.RoleAdmin,
					IsActive:     true,
				}
				if err := db.UserRepo().Add(cmd.Context(), user); err != nil {
					return fmt.Errorf("create admin: %w", err)
				}
				log.Info().Str("userID", user.ID.String()).Str("username", user.Username).Msg("Admin created")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password (defaults to $ADMIN_PASSWORD)")
	return cmd
}

func newGenerateCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate gorm/gen query helpers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(_ config.Settings, db database.Database) error {
				return models.GenerateModels(db.GetDB(), outPath)
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "./query", "output directory")
	return cmd
}

// loadSettings reads .env, the process environment and the optional SSM overlay, then sets up logging.
func loadSettings(ctx context.Context) (config.Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	c := config.New()
	if err := config.LoadSSMOverlay(ctx, c); err != nil {
		return config.Settings{}, err
	}
	settings, err := config.Load(c)
	if err != nil {
		return config.Settings{}, err
	}

	setupLogger(settings)
	return settings, nil
}

func setupLogger(settings config.Settings) {
	level, err := zerolog.ParseLevel(strings.ToLower(settings.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if settings.IsDevelopment() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if settings.Log.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   settings.Log.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(out).With().
		Timestamp().
		Str("env", settings.Environment).
		Str("version", settings.Version).
		Logger()
}

func withDatabase(ctx context.Context, fn func(config.Settings, database.Database) error) error {
	settings, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	db, err := database.Open(settings.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing database")
		}
	}()
	return fn(settings, db)
}

func serve(ctx context.Context) error {
	return withDatabase(ctx, func(settings config.Settings, db database.Database) error {
		log.Info().Str("dialect", db.Dialect()).Msg("Initializing app...")

		if err := models.Migrate(db.GetDB()); err != nil {
			return err
		}

		var store services.ObjectStore
		if settings.Upload.StorageDriver == config.StorageS3 {
			s3Store, err := services.NewS3Store(ctx, settings.Upload.S3Bucket, settings.Upload.S3Prefix, settings.Upload.AWSRegion)
			if err != nil {
				return err
			}
			store = s3Store
		}

		fs := afero.NewOsFs()
		if err := fs.MkdirAll(settings.Upload.Dir, 0o755); err != nil {
			return fmt.Errorf("create upload dir: %w", err)
		}

		cleaner := services.NewTempCleaner(fs, settings.Upload.Dir, settings.Upload.TempMaxAge)
		if err := cleaner.Start(services.TempPurgeSchedule); err != nil {
			return err
		}
		defer cleaner.Stop()

		server, err := api.NewServer(settings, api.Dependencies{
			Database: db,
			Fs:       fs,
			Pipeline: services.NewImagePipeline(fs, settings.Upload.Dir, store),
			Notifier: services.NewNotifier(services.NewMailer(settings.SMTP), services.NewSMSSender(settings.Twilio)),
			Cleaner:  cleaner,
		})
		if err != nil {
			return fmt.Errorf("initialize server: %w", err)
		}

		serverErrors := make(chan error, 1)
		go server.Start(serverErrors)

		// Listen for interrupt signals to gracefully shutdown the server
		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(interrupts)

		return waitForShutdown(server, serverErrors, interrupts)
	})
}

// waitForShutdown blocks until the server stops on its own or a signal arrives. A serve loop that
// ends with anything but http.ErrServerClosed is returned so the process exits non-zero.
func waitForShutdown(server api.Server, serverErrors <-chan error, interrupts <-chan os.Signal) error {
	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		log.Error().Err(err).Msg("Server stopped unexpectedly")
		server.ShutdownGracefully(shutdownTimeout)
		return fmt.Errorf("serve: %w", err)
	case sig := <-interrupts:
		log.Info().Str("signal", sig.String()).Msg("Closing server")
		server.ShutdownGracefully(shutdownTimeout)
		return nil
	}
}
