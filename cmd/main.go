package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sangitam/krithi-backend/internal/db"
	"github.com/sangitam/krithi-backend/internal/handlers"
	"github.com/sangitam/krithi-backend/internal/ingestion"
	"github.com/sangitam/krithi-backend/internal/ingestion/approval"
	"github.com/sangitam/krithi-backend/internal/ingestion/dedupe"
	"github.com/sangitam/krithi-backend/internal/ingestion/htmltext"
	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/ingestion/pipeline"
	"github.com/sangitam/krithi-backend/internal/ingestion/resolve"
	"github.com/sangitam/krithi-backend/internal/jobs"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/middleware"
	"github.com/sangitam/krithi-backend/internal/observability"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/server"
	"github.com/sangitam/krithi-backend/internal/services"
	"github.com/sangitam/krithi-backend/internal/utils"
)

const serviceName = "krithi-backend"

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	port := utils.GetEnv("PORT", "8080", log)
	policyPath := utils.GetEnv("INGESTION_POLICY_PATH", "", log)
	redisAddr := utils.GetEnv("REDIS_ADDR", "", log)

	// Tracing
	ctx := context.Background()
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: utils.GetEnv("APP_ENV", "development", log),
		Version:     utils.GetEnv("APP_VERSION", "dev", log),
	})
	if shutdownOTel != nil {
		defer func() { _ = shutdownOTel(context.Background()) }()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Warn("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	batchRepo := repos.NewImportBatchRepo(thePG, log)
	jobRepo := repos.NewImportJobRepo(thePG, log)
	taskRunRepo := repos.NewImportTaskRunRepo(thePG, log)
	extractionRepo := repos.NewExtractionQueueRepo(thePG, log)
	stagedRepo := repos.NewImportedKrithiRepo(thePG, log)
	krithiRepo := repos.NewKrithiRepo(thePG, log)
	voteRepo := repos.NewStructuralVoteLogRepo(thePG, log)
	matchRepo := repos.NewVariantMatchRepo(thePG, log)
	evidenceRepo := repos.NewSourceEvidenceRepo(thePG, log)
	referenceRepo := repos.NewReferenceRepo(thePG, log)
	userRepo := repos.NewUserRepo(thePG, log)

	// Ingestion policy
	policy, err := ingestion.LoadPolicyFile(policyPath)
	if err != nil {
		log.Error("Could not load ingestion policy", "path", policyPath, "error", err)
		os.Exit(1)
	}
	gate, err := approval.NewGate(policy.Approval)
	if err != nil {
		log.Error("Invalid approval config", "error", err)
		os.Exit(1)
	}

	// Resolution cache
	var cache resolve.Cache
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		cache = resolve.NewRedisCache(client, 10*time.Minute, log)
	} else {
		cache = resolve.NewMemoryCache()
	}

	// Ingestion pipeline
	resolver := resolve.NewResolver(referenceRepo, cache, log)
	detector := dedupe.NewDetector(krithiRepo, log)
	extractor := pipeline.NewExtractor(htmltext.NewHTTPFetcher(log), parser.New(policy.Parser), log)
	writer := pipeline.NewWriter(thePG, log, extractionRepo, stagedRepo, krithiRepo, voteRepo, matchRepo, evidenceRepo, resolver, detector, gate, policy.Voting)

	// In-process worker
	registry := jobs.NewRegistry()
	if err := registry.Register(jobs.NewExtractHandler(log, extractionRepo, jobRepo, taskRunRepo, extractor)); err != nil {
		log.Error("Could not register extract handler", "error", err)
		os.Exit(1)
	}
	if err := registry.Register(jobs.NewCatalogWriteHandler(log, writer)); err != nil {
		log.Error("Could not register catalog-write handler", "error", err)
		os.Exit(1)
	}
	if err := registry.Register(jobs.NewDedupePassHandler(log, stagedRepo, detector)); err != nil {
		log.Error("Could not register dedupe-pass handler", "error", err)
		os.Exit(1)
	}
	worker := jobs.NewWorker(thePG, log, taskRunRepo, jobRepo, batchRepo, registry)
	worker.Start(ctx)

	// Services
	log.Info("Setting up Services from main...")
	authService := services.NewAuthService(thePG, log, userRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second)
	batchService := services.NewBatchService(thePG, log, batchRepo, jobRepo, taskRunRepo, extractionRepo)
	extractionService := services.NewExtractionService(thePG, log, extractionRepo, batchRepo, jobRepo, taskRunRepo)
	reviewService := services.NewReviewService(thePG, log, stagedRepo, krithiRepo, voteRepo, matchRepo, evidenceRepo, extractionRepo)
	referenceService := services.NewReferenceService(log, referenceRepo, krithiRepo, resolver)

	// Handlers + router
	router := server.NewRouter(server.RouterConfig{
		ServiceName:       serviceName,
		AuthHandler:       handlers.NewAuthHandler(authService),
		AuthMiddleware:    middleware.NewAuthMiddleware(log, authService),
		BatchHandler:      handlers.NewBatchHandler(batchService),
		ExtractionHandler: handlers.NewExtractionHandler(extractionService),
		ReviewHandler:     handlers.NewReviewHandler(reviewService),
		ReferenceHandler:  handlers.NewReferenceHandler(referenceService),
	})

	log.Info("Starting server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}
