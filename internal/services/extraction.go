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

type ExtractionService interface {
	GetTask(ctx context.Context, id uuid.UUID) (*types.ExtractionTask, error)
	ListByStatus(ctx context.Context, status types.ExtractionStatus, limit int) ([]*types.ExtractionTask, error)
	Stats(ctx context.Context) (*repos.ExtractionStats, error)
	Retry(ctx context.Context, id uuid.UUID) error
	RetryAllFailed(ctx context.Context) (int64, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	EnqueueEnrich(ctx context.Context, relatedExtractionID uuid.UUID, source BatchSource) (*types.ExtractionTask, error)
}

type extractionService struct {
	db          *gorm.DB
	log         *logger.Logger
	extractions repos.ExtractionQueueRepo
	batches     repos.ImportBatchRepo
	jobRepo     repos.ImportJobRepo
	runs        repos.ImportTaskRunRepo
}

func NewExtractionService(db *gorm.DB, baseLog *logger.Logger, extractions repos.ExtractionQueueRepo, batches repos.ImportBatchRepo, jobRepo repos.ImportJobRepo, runs repos.ImportTaskRunRepo) ExtractionService {
	return &extractionService{
		db:          db,
		log:         baseLog.With("service", "ExtractionService"),
		extractions: extractions,
		batches:     batches,
		jobRepo:     jobRepo,
		runs:        runs,
	}
}

func (s *extractionService) GetTask(ctx context.Context, id uuid.UUID) (*types.ExtractionTask, error) {
	return s.extractions.GetByID(ctx, nil, id)
}

func (s *extractionService) ListByStatus(ctx context.Context, status types.ExtractionStatus, limit int) ([]*types.ExtractionTask, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid extraction status %q", status)
	}
	return s.extractions.ListByStatus(ctx, nil, status, limit)
}

func (s *extractionService) Stats(ctx context.Context) (*repos.ExtractionStats, error) {
	return s.extractions.GetStats(ctx, nil)
}

func (s *extractionService) Retry(ctx context.Context, id uuid.UUID) error {
	return s.extractions.Retry(ctx, nil, id)
}

func (s *extractionService) RetryAllFailed(ctx context.Context) (int64, error) {
	return s.extractions.RetryAllFailed(ctx, nil)
}

func (s *extractionService) Cancel(ctx context.Context, id uuid.UUID) error {
	return s.extractions.Cancel(ctx, nil, id)
}

// EnqueueEnrich queues a secondary source against an already-ingested primary
// extraction. The related extraction must exist and be past DONE; anything
// earlier has no accepted structure to enrich. The enrichment rides the same
// worker machinery as batch imports: a one-source batch with an extract job
// and task run, so claiming and counters stay uniform.
func (s *extractionService) EnqueueEnrich(ctx context.Context, relatedExtractionID uuid.UUID, source BatchSource) (*types.ExtractionTask, error) {
	related, err := s.extractions.GetByID(ctx, nil, relatedExtractionID)
	if err != nil {
		return nil, err
	}
	if related == nil {
		return nil, fmt.Errorf("related extraction %s not found", relatedExtractionID)
	}
	if related.Status != types.ExtractionDone && related.Status != types.ExtractionIngested {
		return nil, fmt.Errorf("related extraction %s is %s; enrichment needs an accepted extraction", relatedExtractionID, related.Status)
	}
	format := source.Format
	if format == "" {
		format = "blog_html"
	}
	tier := source.Tier
	if tier <= 0 {
		tier = 3
	}
	manifest, err := json.Marshal([]BatchSource{source})
	if err != nil {
		return nil, err
	}
	var created *types.ExtractionTask
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err = s.extractions.Create(ctx, tx, &types.ExtractionTask{
			SourceURL:           source.URL,
			SourceFormat:        format,
			SourceName:          source.Name,
			SourceTier:          tier,
			ExtractionIntent:    types.IntentEnrich,
			RelatedExtractionID: &relatedExtractionID,
		})
		if err != nil {
			return err
		}
		batch, err := s.batches.Create(ctx, tx, &types.ImportBatch{
			Status:         types.BatchRunning,
			SourceManifest: datatypes.JSON(manifest),
			TotalTasks:     1,
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
		url := source.URL
		key := created.ID.String()
		_, err = s.runs.CreateTasks(ctx, tx, []*types.ImportTaskRun{{
			JobID:     job.ID,
			KrithiKey: &key,
			SourceURL: &url,
		}})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Enrichment queued", "extraction_id", created.ID, "related_extraction_id", relatedExtractionID)
	return created, nil
}
