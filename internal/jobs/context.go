package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

// Context is the execution handle for one claimed task run. Handlers report
// terminal state only through Succeed/Block/Fail; they never touch the
// import_task_runs row directly.
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Task    *types.ImportTaskRun
	Job     *types.ImportJob
	Runs    repos.ImportTaskRunRepo
	Batches repos.ImportBatchRepo
	started time.Time
}

func NewContext(ctx context.Context, db *gorm.DB, task *types.ImportTaskRun, job *types.ImportJob, runs repos.ImportTaskRunRepo, batches repos.ImportBatchRepo) *Context {
	return &Context{
		Ctx:     ctx,
		DB:      db,
		Task:    task,
		Job:     job,
		Runs:    runs,
		Batches: batches,
		started: time.Now(),
	}
}

// Succeed completes the run without touching counters; handlers whose
// success is a counted outcome bump explicitly before calling it.
func (c *Context) Succeed(checksum string) error {
	return c.finish(types.TaskDone, "", checksum)
}

// Block marks the run DONE from the queue's perspective but records that the
// item was held for review rather than written through. It counts the
// outcome itself, as does Fail: every task that lands in a requeueable
// terminal state bumps processed exactly once, which is what lets requeue
// subtract one per task without underflowing.
func (c *Context) Block(reason string) error {
	err := c.finish(types.TaskBlocked, reason, "")
	c.Bump(repos.CounterDeltas{Processed: 1, Blocked: 1})
	return err
}

func (c *Context) Fail(err error) error {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	finishErr := c.finish(types.TaskFailed, msg, "")
	c.Bump(repos.CounterDeltas{Processed: 1, Failed: 1})
	return finishErr
}

func (c *Context) finish(status types.TaskStatus, errMsg, checksum string) error {
	elapsed := time.Since(c.started).Milliseconds()
	return c.Runs.Complete(c.Ctx, nil, c.Task.ID, repos.TaskCompletion{
		Status:     status,
		Error:      errMsg,
		Checksum:   checksum,
		DurationMs: &elapsed,
	})
}

// Bump applies relative counter deltas to the owning batch. Deltas are
// additive so concurrent workers never clobber each other's progress.
func (c *Context) Bump(deltas repos.CounterDeltas) {
	if c.Job == nil {
		return
	}
	_ = c.Batches.IncrementCounters(c.Ctx, nil, c.Job.BatchID, deltas)
}
