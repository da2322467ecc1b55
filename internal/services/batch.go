package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

// BatchSource is one entry in the submitted manifest.
type BatchSource struct {
	URL    string `json:"url" binding:"required"`
	Name   string `json:"name,omitempty"`
	Format string `json:"format,omitempty"` // blog_html|scanned_text|registry
	Tier   int    `json:"tier,omitempty"`   // 1 = most authoritative
}

type BatchService interface {
	CreateBatch(ctx context.Context, sources []BatchSource) (*types.ImportBatch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*types.ImportBatch, error)
	ListBatches(ctx context.Context, limit int) ([]*types.ImportBatch, error)
	PauseBatch(ctx context.Context, id uuid.UUID) error
	ResumeBatch(ctx context.Context, id uuid.UUID) error
	CancelBatch(ctx context.Context, id uuid.UUID) error
	RequeueFailed(ctx context.Context, id uuid.UUID) (int64, error)
	ScheduleDedupePass(ctx context.Context, id uuid.UUID) error
}

type batchService struct {
	db          *gorm.DB
	log         *logger.Logger
	batches     repos.ImportBatchRepo
	jobRepo     repos.ImportJobRepo
	runs        repos.ImportTaskRunRepo
	extractions repos.ExtractionQueueRepo
}

func NewBatchService(db *gorm.DB, baseLog *logger.Logger, batches repos.ImportBatchRepo, jobRepo repos.ImportJobRepo, runs repos.ImportTaskRunRepo, extractions repos.ExtractionQueueRepo) BatchService {
	return &batchService{
		db:          db,
		log:         baseLog.With("service", "BatchService"),
		batches:     batches,
		jobRepo:     jobRepo,
		runs:        runs,
		extractions: extractions,
	}
}

// CreateBatch stages a manifest of source URLs as one batch: the batch row,
// an extract job, one task run per source, and one extraction_queue row per
// source, all in a single transaction. The batch starts RUNNING so workers
// pick it up immediately.
func (s *batchService) CreateBatch(ctx context.Context, sources []BatchSource) (*types.ImportBatch, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("batch needs at least one source")
	}
	seen := make(map[string]bool, len(sources))
	for i, src := range sources {
		if src.URL == "" {
			return nil, fmt.Errorf("source %d has no url", i)
		}
		if seen[src.URL] {
			return nil, fmt.Errorf("duplicate source url %s", src.URL)
		}
		seen[src.URL] = true
	}

	manifest, err := json.Marshal(sources)
	if err != nil {
		return nil, err
	}
	var batch *types.ImportBatch
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err = s.batches.Create(ctx, tx, &types.ImportBatch{
			Status:         types.BatchRunning,
			SourceManifest: datatypes.JSON(manifest),
			TotalTasks:     len(sources),
		})
		if err != nil {
			return err
		}
		job, err := s.jobRepo.Create(ctx, tx, &types.ImportJob{
			BatchID: batch.ID,
			JobType: "extract",
			Status:  types.JobRunning,
		})
		if err != nil {
			return err
		}
		tasks := make([]*types.ImportTaskRun, 0, len(sources))
		for _, src := range sources {
			format := src.Format
			if format == "" {
				format = "blog_html"
			}
			tier := src.Tier
			if tier <= 0 {
				tier = 3
			}
			ext, err := s.extractions.Create(ctx, tx, &types.ExtractionTask{
				SourceURL:        src.URL,
				SourceFormat:     format,
				SourceName:       src.Name,
				SourceTier:       tier,
				ExtractionIntent: types.IntentPrimary,
			})
			if err != nil {
				return err
			}
			// The run carries its queue row's ID so the extract handler
			// never has to disambiguate same-URL extractions.
			url := src.URL
			key := ext.ID.String()
			tasks = append(tasks, &types.ImportTaskRun{
				JobID:     job.ID,
				KrithiKey: &key,
				SourceURL: &url,
			})
		}
		_, err = s.runs.CreateTasks(ctx, tx, tasks)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Batch created", "batch_id", batch.ID, "sources", len(sources))
	return batch, nil
}

func (s *batchService) GetBatch(ctx context.Context, id uuid.UUID) (*types.ImportBatch, error) {
	return s.batches.GetByID(ctx, nil, id)
}

func (s *batchService) ListBatches(ctx context.Context, limit int) ([]*types.ImportBatch, error) {
	return s.batches.List(ctx, nil, limit)
}

func (s *batchService) PauseBatch(ctx context.Context, id uuid.UUID) error {
	return s.batches.UpdateStatus(ctx, nil, id, types.BatchPaused)
}

func (s *batchService) ResumeBatch(ctx context.Context, id uuid.UUID) error {
	return s.batches.UpdateStatus(ctx, nil, id, types.BatchRunning)
}

func (s *batchService) CancelBatch(ctx context.Context, id uuid.UUID) error {
	return s.batches.UpdateStatus(ctx, nil, id, types.BatchCancelled)
}

// RequeueFailed flips the batch's FAILED task runs back to PENDING so workers
// retry them. The extraction_queue rows keep their attempt counts.
func (s *batchService) RequeueFailed(ctx context.Context, id uuid.UUID) (int64, error) {
	batch, err := s.batches.GetByID(ctx, nil, id)
	if err != nil {
		return 0, err
	}
	if batch == nil {
		return 0, fmt.Errorf("batch %s not found", id)
	}
	if batch.Status.Terminal() {
		return 0, fmt.Errorf("%w: batch %s is %s", repos.ErrInvalidTransition, id, batch.Status)
	}
	n, err := s.runs.RequeueTasksForBatch(ctx, nil, id, []types.TaskStatus{types.TaskFailed})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		// Counters track outcomes, so undone outcomes are subtracted. Every
		// FAILED run was counted exactly once when it failed, which keeps
		// this subtraction from driving counters negative.
		if err := s.batches.IncrementCounters(ctx, nil, id, repos.CounterDeltas{
			Processed: -int(n),
			Failed:    -int(n),
		}); err != nil {
			return n, err
		}
		if err := s.reopenJobs(ctx, id); err != nil {
			return n, err
		}
	}
	return n, nil
}

// reopenJobs flips finalized jobs back to RUNNING when a requeue handed them
// pending work again.
func (s *batchService) reopenJobs(ctx context.Context, batchID uuid.UUID) error {
	jobs, err := s.jobRepo.ListByBatch(ctx, nil, batchID)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.Status != types.JobDone && job.Status != types.JobFailed {
			continue
		}
		counts, err := s.runs.StatusCounts(ctx, nil, job.ID)
		if err != nil {
			return err
		}
		if counts[types.TaskPending] == 0 {
			continue
		}
		if err := s.jobRepo.UpdateStatus(ctx, nil, job.ID, types.JobRunning); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleDedupePass enqueues one dedupe-pass task for the batch.
func (s *batchService) ScheduleDedupePass(ctx context.Context, id uuid.UUID) error {
	batch, err := s.batches.GetByID(ctx, nil, id)
	if err != nil {
		return err
	}
	if batch == nil {
		return fmt.Errorf("batch %s not found", id)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := s.jobRepo.Create(ctx, tx, &types.ImportJob{
			BatchID: batch.ID,
			JobType: "dedupe-pass",
			Status:  types.JobRunning,
		})
		if err != nil {
			return err
		}
		if _, err = s.runs.CreateTasks(ctx, tx, []*types.ImportTaskRun{{JobID: job.ID}}); err != nil {
			return err
		}
		// The maintenance task counts against the batch like any other, so
		// its outcome keeps processed <= total.
		return s.batches.IncrementCounters(ctx, tx, batch.ID, repos.CounterDeltas{Total: 1})
	})
}
