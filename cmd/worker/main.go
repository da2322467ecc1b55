package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/sangitam/krithi-backend/internal/db"
	"github.com/sangitam/krithi-backend/internal/ingestion"
	"github.com/sangitam/krithi-backend/internal/ingestion/approval"
	"github.com/sangitam/krithi-backend/internal/ingestion/dedupe"
	"github.com/sangitam/krithi-backend/internal/ingestion/htmltext"
	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/ingestion/pipeline"
	"github.com/sangitam/krithi-backend/internal/ingestion/resolve"
	"github.com/sangitam/krithi-backend/internal/jobs"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/utils"
)

// Standalone worker process. Several may run against the same database; task
// claiming keeps them from stepping on each other.
func main() {
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

	workerCount := utils.GetEnvAsInt("WORKER_COUNT", 2, log)
	policyPath := utils.GetEnv("INGESTION_POLICY_PATH", "", log)
	redisAddr := utils.GetEnv("REDIS_ADDR", "", log)

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

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

	var cache resolve.Cache
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		cache = resolve.NewRedisCache(client, 10*time.Minute, log)
	} else {
		cache = resolve.NewMemoryCache()
	}

	resolver := resolve.NewResolver(referenceRepo, cache, log)
	detector := dedupe.NewDetector(krithiRepo, log)
	extractor := pipeline.NewExtractor(htmltext.NewHTTPFetcher(log), parser.New(policy.Parser), log)
	writer := pipeline.NewWriter(thePG, log, extractionRepo, stagedRepo, krithiRepo, voteRepo, matchRepo, evidenceRepo, resolver, detector, gate, policy.Voting)

	registry := jobs.NewRegistry()
	for _, h := range []jobs.Handler{
		jobs.NewExtractHandler(log, extractionRepo, jobRepo, taskRunRepo, extractor),
		jobs.NewCatalogWriteHandler(log, writer),
		jobs.NewDedupePassHandler(log, stagedRepo, detector),
	} {
		if err := registry.Register(h); err != nil {
			log.Error("Could not register handler", "job_type", h.Type(), "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workerCount; i++ {
		worker := jobs.NewWorker(thePG, log, taskRunRepo, jobRepo, batchRepo, registry)
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
	}
	log.Info("Workers started", "count", workerCount)
	_ = g.Wait()
	log.Info("Workers stopped")
}
