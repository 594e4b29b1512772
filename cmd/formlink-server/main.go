package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/auth"
	"github.com/mikepea/formlink/pkg/formlink/config"
	"github.com/mikepea/formlink/pkg/formlink/database"
	"github.com/mikepea/formlink/pkg/formlink/logging"
	"github.com/mikepea/formlink/pkg/formlink/logging/sl"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"github.com/mikepea/formlink/pkg/formlink/ratelimit"
	"github.com/mikepea/formlink/pkg/formlink/server"
	"github.com/mikepea/formlink/pkg/formlink/storage"
	"gorm.io/gorm"

	_ "github.com/mikepea/formlink/api/swagger"
)

// @title Formlink API
// @version 1.0
// @description Shareable expiring links that collect identity forms with a photo, grouped by capacity.

// @contact.name Formlink Support
// @contact.url https://github.com/mikepea/formlink

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := config.MustLoad(*configPath)

	logger, err := logging.SetupLogger(conf.Env, conf.LogLevel, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	logger.Info("starting formlink",
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
	)

	if conf.Env == logging.EnvProd {
		gin.SetMode(gin.ReleaseMode)
		if conf.JWT.Secret == "" {
			logger.Warn("JWT_SECRET is not set, using the development signing key")
		}
	}
	auth.Configure(conf.JWT.Secret, conf.JWT.TTL)

	// Connect to database
	if err := database.Connect(conf.Database.Driver, conf.Database.DSN); err != nil {
		fatal(logger, "failed to connect to database", err)
	}
	db := database.GetDB()

	// Run auto-migrations
	if err := database.Migrate(db); err != nil {
		fatal(logger, "failed to run migrations", err)
	}
	logger.Info("database migrations completed", slog.String("driver", conf.Database.Driver))

	// Create default admin user if no admin exists
	if err := ensureAdminExists(db, conf.Admin, logger); err != nil {
		fatal(logger, "failed to ensure admin user exists", err)
	}

	blobs, err := openBlobStore(conf)
	if err != nil {
		fatal(logger, "failed to open upload storage", err)
	}

	var limiter *ratelimit.Limiter
	if conf.Redis.Addr != "" {
		limiter, err = ratelimit.New(conf.Redis.Addr, conf.Redis.Password, "", conf.RateLimit.SubmissionsPerMinute, time.Minute)
		if err != nil {
			fatal(logger, "failed to set up rate limiter", err)
		}
		defer limiter.Close()
		logger.Info("rate limiting public forms", slog.Int("per_minute", conf.RateLimit.SubmissionsPerMinute))
	} else {
		logger.Info("no redis configured, public forms are not rate limited")
	}

	router := server.NewRouter(server.Options{
		DB:             db,
		Blobs:          blobs,
		Logger:         logger,
		MaxUploadBytes: conf.Uploads.MaxBytes,
		LinksPerPage:   conf.Links.PerPage,
		Limiter:        limiter,
		Swagger:        conf.Env != logging.EnvProd,
	})

	srv := &http.Server{
		Addr:         conf.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", sl.Err(err))
	}
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, sl.Err(err))
	os.Exit(1)
}

func openBlobStore(conf *config.Config) (storage.BlobStore, error) {
	if conf.Uploads.Driver == "minio" {
		return storage.NewMinioStore(conf.Minio.Endpoint, conf.Minio.AccessKey, conf.Minio.SecretKey, conf.Minio.Bucket, conf.Minio.UseSSL)
	}
	return storage.NewFileStore(conf.Uploads.Path)
}

// ensureAdminExists creates a default admin user if no admin exists in the database.
func ensureAdminExists(db *gorm.DB, conf config.Admin, logger *slog.Logger) error {
	// Check if any admin user exists
	var count int64
	if err := db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil // Admin already exists
	}

	hashedPassword, err := auth.HashPassword(conf.Password)
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        strings.ToLower(strings.TrimSpace(conf.Email)),
		Name:         "Admin",
		PasswordHash: hashedPassword,
		SystemRole:   models.SystemRoleAdmin,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	logger.Info("created default admin user",
		slog.String("email", adminUser.Email),
		sl.Secret("password", conf.Password),
	)
	return nil
}
