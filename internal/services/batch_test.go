package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

// The batch and extraction services touch the queue tables only; the
// in-memory fixture declares those tables explicitly because the production
// schema leans on Postgres defaults. Timestamp columns keep a DB-side
// default since gorm omits zero timestamps on INSERT.
var serviceTestSchema = []string{
	`CREATE TABLE import_batches (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		source_manifest TEXT,
		total_tasks INTEGER NOT NULL DEFAULT 0,
		processed_tasks INTEGER NOT NULL DEFAULT 0,
		succeeded_tasks INTEGER NOT NULL DEFAULT 0,
		failed_tasks INTEGER NOT NULL DEFAULT 0,
		blocked_tasks INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE import_jobs (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0,
		payload TEXT,
		result TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE import_task_runs (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		krithi_key TEXT,
		source_url TEXT,
		status TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		evidence_path TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER,
		claimed_at DATETIME,
		finished_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE extraction_queue (
		id TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		source_format TEXT NOT NULL DEFAULT '',
		source_name TEXT NOT NULL DEFAULT '',
		source_tier INTEGER NOT NULL DEFAULT 3,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		confidence REAL,
		extraction_method TEXT NOT NULL DEFAULT '',
		extractor_version TEXT NOT NULL DEFAULT '',
		content_language TEXT NOT NULL DEFAULT '',
		extraction_intent TEXT NOT NULL,
		related_extraction_id TEXT,
		result_payload TEXT,
		result_count INTEGER NOT NULL DEFAULT 0,
		error_detail TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER,
		claimed_by TEXT NOT NULL DEFAULT '',
		claimed_at DATETIME,
		completed_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

type serviceFixture struct {
	db          *gorm.DB
	batches     repos.ImportBatchRepo
	jobRepo     repos.ImportJobRepo
	runs        repos.ImportTaskRunRepo
	extractions repos.ExtractionQueueRepo
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	for _, stmt := range serviceTestSchema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create test schema: %v", err)
		}
	}
	return &serviceFixture{
		db:          db,
		batches:     repos.NewImportBatchRepo(db, logger.NewNop()),
		jobRepo:     repos.NewImportJobRepo(db, logger.NewNop()),
		runs:        repos.NewImportTaskRunRepo(db, logger.NewNop()),
		extractions: repos.NewExtractionQueueRepo(db, logger.NewNop()),
	}
}

func (f *serviceFixture) batchService() BatchService {
	return NewBatchService(f.db, logger.NewNop(), f.batches, f.jobRepo, f.runs, f.extractions)
}

func (f *serviceFixture) extractionService() ExtractionService {
	return NewExtractionService(f.db, logger.NewNop(), f.extractions, f.batches, f.jobRepo, f.runs)
}

func TestCreateBatchLinksRunsToQueueRows(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.batchService()
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, []BatchSource{
		{URL: "https://example.org/krithi/1", Tier: 1},
		{URL: "https://example.org/krithi/2"},
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	jobs, err := f.jobRepo.ListByBatch(ctx, nil, batch.ID)
	if err != nil {
		t.Fatalf("ListByBatch: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobType != "extract" {
		t.Fatalf("jobs = %+v", jobs)
	}
	runs, err := f.runs.ListByJob(ctx, nil, jobs[0].ID)
	if err != nil {
		t.Fatalf("ListByJob: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	for _, run := range runs {
		if run.KrithiKey == nil || *run.KrithiKey == "" {
			t.Fatalf("run %s has no extraction key", run.ID)
		}
		extID, err := uuid.Parse(*run.KrithiKey)
		if err != nil {
			t.Fatalf("run key %q: %v", *run.KrithiKey, err)
		}
		ext, err := f.extractions.GetByID(ctx, nil, extID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if ext == nil || run.SourceURL == nil || ext.SourceURL != *run.SourceURL {
			t.Fatalf("run %s points at %+v", run.ID, ext)
		}
	}
}

// Queueing an enrichment must produce claimable work, not just a queue row:
// a one-source batch with an extract job and a task run keyed to the new
// extraction.
func TestEnqueueEnrichSchedulesExtractRun(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.extractionService()
	ctx := context.Background()

	related, err := f.extractions.Create(ctx, nil, &types.ExtractionTask{
		SourceURL: "https://example.org/krithi/primary",
	})
	if err != nil {
		t.Fatalf("create related: %v", err)
	}
	if err := f.db.Model(&types.ExtractionTask{}).
		Where("id = ?", related.ID).
		Update("status", types.ExtractionIngested).Error; err != nil {
		t.Fatalf("ingest related: %v", err)
	}

	task, err := svc.EnqueueEnrich(ctx, related.ID, BatchSource{
		URL:  "https://example.org/krithi/variant",
		Tier: 2,
	})
	if err != nil {
		t.Fatalf("EnqueueEnrich: %v", err)
	}
	if task.ExtractionIntent != types.IntentEnrich || task.RelatedExtractionID == nil || *task.RelatedExtractionID != related.ID {
		t.Fatalf("enrich task = %+v", task)
	}

	batches, err := f.batches.List(ctx, nil, 10)
	if err != nil {
		t.Fatalf("List batches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	if batches[0].Status != types.BatchRunning || batches[0].TotalTasks != 1 {
		t.Fatalf("enrich batch = %+v", batches[0])
	}
	jobs, err := f.jobRepo.ListByBatch(ctx, nil, batches[0].ID)
	if err != nil {
		t.Fatalf("ListByBatch: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobType != "extract" {
		t.Fatalf("enrich jobs = %+v", jobs)
	}
	runs, err := f.runs.ListByJob(ctx, nil, jobs[0].ID)
	if err != nil {
		t.Fatalf("ListByJob: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if runs[0].Status != types.TaskPending {
		t.Fatalf("enrich run status = %s", runs[0].Status)
	}
	if runs[0].KrithiKey == nil || *runs[0].KrithiKey != task.ID.String() {
		t.Fatalf("enrich run key = %v, want %s", runs[0].KrithiKey, task.ID)
	}
}

func TestEnqueueEnrichRejectsUnfinishedRelated(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.extractionService()
	ctx := context.Background()

	related, err := f.extractions.Create(ctx, nil, &types.ExtractionTask{
		SourceURL: "https://example.org/krithi/pending",
	})
	if err != nil {
		t.Fatalf("create related: %v", err)
	}
	if _, err := svc.EnqueueEnrich(ctx, related.ID, BatchSource{URL: "https://example.org/krithi/variant"}); err == nil {
		t.Fatal("EnqueueEnrich accepted a PENDING related extraction")
	}
	if _, err := svc.EnqueueEnrich(ctx, uuid.New(), BatchSource{URL: "https://example.org/krithi/variant"}); err == nil {
		t.Fatal("EnqueueEnrich accepted a missing related extraction")
	}
}

func TestRequeueFailedRestoresCountersAndJobs(t *testing.T) {
	f := newServiceFixture(t)
	svc := f.batchService()
	ctx := context.Background()

	batch, err := svc.CreateBatch(ctx, []BatchSource{{URL: "https://example.org/krithi/1"}})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	jobs, err := f.jobRepo.ListByBatch(ctx, nil, batch.ID)
	if err != nil {
		t.Fatalf("ListByBatch: %v", err)
	}
	runs, err := f.runs.ListByJob(ctx, nil, jobs[0].ID)
	if err != nil {
		t.Fatalf("ListByJob: %v", err)
	}

	// One counted failure, job finalized FAILED.
	if err := f.db.Model(&types.ImportTaskRun{}).
		Where("id = ?", runs[0].ID).
		Updates(map[string]interface{}{"status": types.TaskFailed, "error": "fetch: timeout"}).Error; err != nil {
		t.Fatalf("fail task: %v", err)
	}
	if err := f.batches.IncrementCounters(ctx, nil, batch.ID, repos.CounterDeltas{Processed: 1, Failed: 1}); err != nil {
		t.Fatalf("IncrementCounters: %v", err)
	}
	if err := f.jobRepo.UpdateStatus(ctx, nil, jobs[0].ID, types.JobFailed); err != nil {
		t.Fatalf("fail job: %v", err)
	}

	n, err := svc.RequeueFailed(ctx, batch.ID)
	if err != nil {
		t.Fatalf("RequeueFailed: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d, want 1", n)
	}
	got, err := f.batches.GetByID(ctx, nil, batch.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ProcessedTasks != 0 || got.FailedTasks != 0 {
		t.Fatalf("counters after requeue = processed %d failed %d", got.ProcessedTasks, got.FailedTasks)
	}
	if got.ProcessedTasks < 0 || got.FailedTasks < 0 {
		t.Fatalf("counters went negative: %+v", got)
	}
	job, err := f.jobRepo.GetByID(ctx, nil, jobs[0].ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != types.JobRunning {
		t.Fatalf("requeued job status = %s, want RUNNING", job.Status)
	}
	run, err := f.runs.GetByID(ctx, nil, runs[0].ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != types.TaskPending || run.Error != "" {
		t.Fatalf("requeued run = %+v", run)
	}
}
