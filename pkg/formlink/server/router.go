// Package server wires the handlers into a single gin engine.
package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/admin"
	"github.com/mikepea/formlink/pkg/formlink/auth"
	"github.com/mikepea/formlink/pkg/formlink/export"
	"github.com/mikepea/formlink/pkg/formlink/forms"
	"github.com/mikepea/formlink/pkg/formlink/groups"
	"github.com/mikepea/formlink/pkg/formlink/links"
	"github.com/mikepea/formlink/pkg/formlink/logging"
	"github.com/mikepea/formlink/pkg/formlink/metrics"
	"github.com/mikepea/formlink/pkg/formlink/public"
	"github.com/mikepea/formlink/pkg/formlink/ratelimit"
	"github.com/mikepea/formlink/pkg/formlink/storage"
	"github.com/mikepea/formlink/pkg/formlink/submissions"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Options holds the dependencies of the HTTP server
type Options struct {
	DB             *gorm.DB
	Blobs          storage.BlobStore
	Logger         *slog.Logger
	MaxUploadBytes int64
	LinksPerPage   int
	// Limiter throttles the public form routes; nil disables rate limiting
	Limiter *ratelimit.Limiter
	Swagger bool
}

// NewRouter builds the gin engine with every route registered
func NewRouter(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestID(), logging.RequestLog(log))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", metrics.Handler())

	if opts.Swagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	db := opts.DB
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "formlink",
			})
		})

		// Auth routes (public)
		authHandler := auth.NewHandler(db, log)
		authHandler.RegisterRoutes(api.Group("/auth"))

		protected := api.Group("", auth.AuthMiddleware(), auth.TouchLastSeen(db))

		// Groups and their submissions
		groupsHandler := groups.NewHandler(db)
		groupsGroup := protected.Group("/groups")
		groupsHandler.RegisterRoutes(groupsGroup)
		groupsHandler.RegisterFormRoutes(groupsGroup)

		// Link issuance and listing
		linksHandler := links.NewHandler(db, opts.LinksPerPage)
		linksHandler.RegisterRoutes(protected)

		// Spreadsheet and photo archive exports
		exportHandler := export.NewHandler(db, opts.Blobs, log)
		exportHandler.RegisterRoutes(protected)

		// Single submission and photo access
		formsHandler := forms.NewHandler(db, opts.Blobs, log)
		formsHandler.RegisterRoutes(protected.Group("/forms"))

		// Admin routes (admin role required)
		adminHandler := admin.NewHandler(db, opts.Blobs, log)
		adminHandler.RegisterRoutes(protected.Group("/admin", auth.RequireAdmin()))
	}

	// Public form routes, reachable without an account
	recorder := submissions.NewRecorder(db, opts.Blobs, log)
	publicHandler := public.NewHandler(recorder, opts.MaxUploadBytes)
	var publicMiddleware []gin.HandlerFunc
	if opts.Limiter != nil {
		publicMiddleware = append(publicMiddleware, opts.Limiter.Middleware(log))
	}
	publicHandler.RegisterRoutes(r, publicMiddleware...)

	return r
}
