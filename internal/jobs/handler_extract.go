package jobs

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sangitam/krithi-backend/internal/ingestion/pipeline"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

const (
	JobTypeExtract      = "extract"
	JobTypeCatalogWrite = "catalog-write"
	JobTypeDedupePass   = "dedupe-pass"
)

// ExtractHandler runs the structural extraction for one source URL. The task
// run it executes under is the exclusivity guard; the extraction_queue row is
// moved alongside it so both views of the work agree.
type ExtractHandler struct {
	log         *logger.Logger
	extractions repos.ExtractionQueueRepo
	jobRepo     repos.ImportJobRepo
	runs        repos.ImportTaskRunRepo
	extractor   *pipeline.Extractor
	workerID    string
}

func NewExtractHandler(baseLog *logger.Logger, extractions repos.ExtractionQueueRepo, jobRepo repos.ImportJobRepo, runs repos.ImportTaskRunRepo, extractor *pipeline.Extractor) *ExtractHandler {
	host, _ := os.Hostname()
	return &ExtractHandler{
		log:         baseLog.With("handler", JobTypeExtract),
		extractions: extractions,
		jobRepo:     jobRepo,
		runs:        runs,
		extractor:   extractor,
		workerID:    fmt.Sprintf("%s-%d", host, os.Getpid()),
	}
}

func (h *ExtractHandler) Type() string { return JobTypeExtract }

func (h *ExtractHandler) Run(jc *Context) error {
	if jc.Task.SourceURL == nil || *jc.Task.SourceURL == "" {
		err := fmt.Errorf("extract task %s has no source_url", jc.Task.ID)
		_ = jc.Fail(err)
		return err
	}
	sourceURL := *jc.Task.SourceURL

	queued, err := h.lookupExtraction(jc, sourceURL)
	if err != nil {
		_ = jc.Fail(err)
		return err
	}
	if queued == nil {
		err := fmt.Errorf("no extraction queued for %s", sourceURL)
		_ = jc.Fail(err)
		return err
	}
	// A re-delivered task run whose extraction already finished only needs
	// the downstream write scheduled again.
	if queued.Status == types.ExtractionDone || queued.Status == types.ExtractionIngested {
		if err := h.scheduleCatalogWrite(jc, queued.ID); err != nil {
			_ = jc.Fail(err)
			return err
		}
		return jc.Succeed("")
	}

	task, err := h.extractions.ClaimByID(jc.Ctx, nil, queued.ID, h.workerID)
	if err != nil {
		_ = jc.Fail(err)
		return err
	}
	if task == nil {
		err := fmt.Errorf("extraction %s is not claimable (status=%s)", queued.ID, queued.Status)
		_ = jc.Fail(err)
		return err
	}

	run, runErr := h.extractor.Run(jc.Ctx, task)
	if runErr != nil {
		if mErr := h.extractions.MarkFailed(jc.Ctx, nil, task.ID, runErr.Error()); mErr != nil {
			h.log.Error("MarkFailed failed", "extraction_id", task.ID, "error", mErr)
		}
		_ = jc.Fail(runErr)
		return runErr
	}

	payloadJSON, err := run.Payload.ToJSON()
	if err != nil {
		_ = jc.Fail(err)
		return err
	}
	confidence := run.Payload.Confidence
	if err := h.extractions.MarkDone(jc.Ctx, nil, task.ID, repos.ExtractionResult{
		Payload:     payloadJSON,
		ResultCount: len(run.Payload.Sections),
		Method:      "structural",
		Version:     pipeline.ExtractorVersion,
		Confidence:  &confidence,
		DurationMs:  run.DurationMs,
	}); err != nil {
		_ = jc.Fail(err)
		return err
	}

	if err := h.scheduleCatalogWrite(jc, task.ID); err != nil {
		_ = jc.Fail(err)
		return err
	}
	return jc.Succeed("")
}

// lookupExtraction finds the queue row this run executes. The run's
// krithi_key carries the extraction ID; source_url is only a fallback and
// can be ambiguous when the same URL was queued more than once.
func (h *ExtractHandler) lookupExtraction(jc *Context, sourceURL string) (*types.ExtractionTask, error) {
	if jc.Task.KrithiKey != nil && *jc.Task.KrithiKey != "" {
		id, err := uuid.Parse(*jc.Task.KrithiKey)
		if err != nil {
			return nil, fmt.Errorf("extract task %s: bad extraction id %q: %w", jc.Task.ID, *jc.Task.KrithiKey, err)
		}
		return h.extractions.GetByID(jc.Ctx, nil, id)
	}
	return h.extractions.GetBySourceURL(jc.Ctx, nil, sourceURL)
}

// scheduleCatalogWrite enqueues the follow-on write for a finished
// extraction, creating the batch's catalog-write job lazily.
func (h *ExtractHandler) scheduleCatalogWrite(jc *Context, extractionID uuid.UUID) error {
	if jc.Job == nil {
		return fmt.Errorf("extract task %s has no owning job", jc.Task.ID)
	}
	return jc.DB.WithContext(jc.Ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := h.jobRepo.ListByBatch(jc.Ctx, tx, jc.Job.BatchID)
		if err != nil {
			return err
		}
		var writeJob *types.ImportJob
		for _, j := range existing {
			if j.JobType == JobTypeCatalogWrite {
				writeJob = j
				break
			}
		}
		if writeJob == nil {
			writeJob, err = h.jobRepo.Create(jc.Ctx, tx, &types.ImportJob{
				BatchID: jc.Job.BatchID,
				JobType: JobTypeCatalogWrite,
				Status:  types.JobRunning,
			})
			if err != nil {
				return err
			}
		}
		key := extractionID.String()
		_, err = h.runs.CreateTasks(jc.Ctx, tx, []*types.ImportTaskRun{{
			JobID:     writeJob.ID,
			KrithiKey: &key,
			SourceURL: jc.Task.SourceURL,
		}})
		return err
	})
}
