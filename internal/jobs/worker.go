package jobs

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

// claimableBatchStatuses: PAUSED and CANCELLED batches stop yielding work
// without touching their task rows, so a resume picks up where claiming left
// off.
var claimableBatchStatuses = []types.BatchStatus{types.BatchRunning}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	runs     repos.ImportTaskRunRepo
	jobs     repos.ImportJobRepo
	batches  repos.ImportBatchRepo
	registry *Registry
	interval time.Duration
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, runs repos.ImportTaskRunRepo, jobRepo repos.ImportJobRepo, batches repos.ImportBatchRepo, registry *Registry) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "TaskWorker"),
		runs:     runs,
		jobs:     jobRepo,
		batches:  batches,
		registry: registry,
		interval: 1 * time.Second,
	}
}

func (w *Worker) Start(ctx context.Context) {
	go w.Run(ctx)
}

// Run blocks until ctx is cancelled. Standalone worker processes call it
// directly; the API server uses Start.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, jobType := range w.registry.Types() {
				w.tick(ctx, jobType)
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context, jobType string) {
	task, err := w.runs.ClaimNextPending(ctx, w.db, jobType, claimableBatchStatuses)
	if err != nil {
		w.log.Warn("ClaimNextPending failed", "job_type", jobType, "error", err)
		return
	}
	if task == nil {
		return
	}
	job, err := w.jobs.GetByID(ctx, nil, task.JobID)
	if err != nil || job == nil {
		w.log.Error("Claimed task has no job row", "task_id", task.ID, "job_id", task.JobID, "error", err)
		jc := NewContext(ctx, w.db, task, nil, w.runs, w.batches)
		_ = jc.Fail(fmt.Errorf("job %s not found", task.JobID))
		return
	}
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "task_id", task.ID)
		jc := NewContext(ctx, w.db, task, job, w.runs, w.batches)
		_ = jc.Fail(fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}
	jc := NewContext(ctx, w.db, task, job, w.runs, w.batches)
	// A panicking handler must not take the poll loop down with it.
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("Task handler panic", "task_id", task.ID, "job_type", job.JobType, "panic", r)
				_ = jc.Fail(fmt.Errorf("panic: %v", r))
			}
		}()
		if err := h.Run(jc); err != nil {
			w.log.Warn("Task handler returned error", "task_id", task.ID, "job_type", job.JobType, "error", err)
		}
	}()
	w.finalizeJob(ctx, job)
}

// finalizeJob settles the job's status once its task runs drain: FAILED if
// any run failed, DONE otherwise. A requeue reopens the job.
func (w *Worker) finalizeJob(ctx context.Context, job *types.ImportJob) {
	counts, err := w.runs.StatusCounts(ctx, nil, job.ID)
	if err != nil {
		w.log.Warn("StatusCounts failed", "job_id", job.ID, "error", err)
		return
	}
	if counts[types.TaskPending] > 0 || counts[types.TaskRunning] > 0 {
		return
	}
	status := types.JobDone
	if counts[types.TaskFailed] > 0 {
		status = types.JobFailed
	}
	if status == job.Status {
		return
	}
	if err := w.jobs.UpdateStatus(ctx, nil, job.ID, status); err != nil {
		w.log.Warn("Job status update failed", "job_id", job.ID, "status", status, "error", err)
	}
}
