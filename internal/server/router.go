package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sangitam/krithi-backend/internal/handlers"
	"github.com/sangitam/krithi-backend/internal/middleware"
)

type RouterConfig struct {
	ServiceName       string
	AllowedOrigins    []string
	AuthHandler       *handlers.AuthHandler
	AuthMiddleware    *middleware.AuthMiddleware
	BatchHandler      *handlers.BatchHandler
	ExtractionHandler *handlers.ExtractionHandler
	ReviewHandler     *handlers.ReviewHandler
	ReferenceHandler  *handlers.ReferenceHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(cfg.ServiceName))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// Public
	router.GET("/healthcheck", handlers.HealthCheck)
	router.POST("/login", cfg.AuthHandler.Login)

	// Protected
	protected := router.Group("/api")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	admin := protected.Group("/")
	admin.Use(cfg.AuthMiddleware.RequireRole("admin"))
	admin.POST("/register", cfg.AuthHandler.Register)

	// Batches
	protected.POST("/batches", cfg.BatchHandler.Submit)
	protected.GET("/batches", cfg.BatchHandler.List)
	protected.GET("/batches/:id", cfg.BatchHandler.Get)
	protected.POST("/batches/:id/pause", cfg.BatchHandler.Pause)
	protected.POST("/batches/:id/resume", cfg.BatchHandler.Resume)
	protected.POST("/batches/:id/cancel", cfg.BatchHandler.Cancel)
	protected.POST("/batches/:id/requeue", cfg.BatchHandler.RequeueFailed)
	protected.POST("/batches/:id/dedupe-pass", cfg.BatchHandler.ScheduleDedupePass)

	// Extraction queue
	protected.GET("/extractions/stats", cfg.ExtractionHandler.Stats)
	protected.GET("/extractions", cfg.ExtractionHandler.ListByStatus)
	protected.GET("/extractions/:id", cfg.ExtractionHandler.Get)
	protected.POST("/extractions/:id/retry", cfg.ExtractionHandler.Retry)
	protected.POST("/extractions/:id/cancel", cfg.ExtractionHandler.Cancel)
	protected.POST("/extractions/:id/enrich", cfg.ExtractionHandler.EnqueueEnrich)
	protected.POST("/extractions/retry-all", cfg.ExtractionHandler.RetryAllFailed)

	// Staged import review
	protected.GET("/staged", cfg.ReviewHandler.ListStaged)
	protected.GET("/staged/:id", cfg.ReviewHandler.GetStaged)
	protected.POST("/staged/:id/approve", cfg.ReviewHandler.ApproveStaged)
	protected.POST("/staged/:id/reject", cfg.ReviewHandler.RejectStaged)
	protected.POST("/staged/:id/discard", cfg.ReviewHandler.DiscardStaged)

	// Catalog
	protected.GET("/krithis", cfg.ReferenceHandler.SearchKrithis)
	protected.GET("/krithis/:id", cfg.ReferenceHandler.GetKrithi)
	protected.GET("/krithis/:id/votes", cfg.ReviewHandler.ListVotes)
	protected.POST("/krithis/:id/structure", cfg.ReviewHandler.OverrideStructure)
	protected.GET("/krithis/:id/evidence", cfg.ReviewHandler.ListEvidence)

	// Variant matches
	protected.GET("/variant-matches", cfg.ReviewHandler.ListVariantMatches)
	protected.POST("/variant-matches/:id/review", cfg.ReviewHandler.ReviewVariantMatch)

	// Reference entities
	protected.GET("/reference/:entity", cfg.ReferenceHandler.List)
	protected.POST("/reference/:entity/aliases", cfg.ReferenceHandler.AddAlias)

	return router
}
