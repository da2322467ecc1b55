package repos

import (
	"context"
	"errors"
	"fmt"
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/types"
)

type TaskCompletion struct {
	Status       types.TaskStatus
	Error        string
	Checksum     string
	EvidencePath string
	DurationMs   *int64
}

type ImportTaskRunRepo interface {
	CreateTasks(ctx context.Context, tx *gorm.DB, tasks []*types.ImportTaskRun) ([]*types.ImportTaskRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportTaskRun, error)
	ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ImportTaskRun, error)
	ClaimNextPending(ctx context.Context, tx *gorm.DB, jobType string, allowedBatchStatuses []types.BatchStatus) (*types.ImportTaskRun, error)
	Complete(ctx context.Context, tx *gorm.DB, id uuid.UUID, result TaskCompletion) error
	RequeueTasksForBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, fromStatuses []types.TaskStatus) (int64, error)
	StatusCounts(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (map[types.TaskStatus]int64, error)
}

type importTaskRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportTaskRunRepo(db *gorm.DB, baseLog *logger.Logger) ImportTaskRunRepo {
	return &importTaskRunRepo{
		db:  db,
		log: baseLog.With("repo", "ImportTaskRunRepo"),
	}
}

func (r *importTaskRunRepo) CreateTasks(ctx context.Context, tx *gorm.DB, tasks []*types.ImportTaskRun) ([]*types.ImportTaskRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(tasks) == 0 {
		return []*types.ImportTaskRun{}, nil
	}
	for _, task := range tasks {
		if task.JobID == uuid.Nil {
			return nil, fmt.Errorf("task job_id is required")
		}
		if task.ID == uuid.Nil {
			task.ID = uuid.New()
		}
		if task.Status == "" {
			task.Status = types.TaskPending
		}
		if !task.Status.Valid() {
			return nil, fmt.Errorf("invalid task status %q", task.Status)
		}
	}
	if err := transaction.WithContext(ctx).Create(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *importTaskRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportTaskRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var task types.ImportTaskRun
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&task).Error
	if err != nil {
		return nil, err
	}
	if task.ID == uuid.Nil {
		return nil, nil
	}
	return &task, nil
}

func (r *importTaskRunRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ImportTaskRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ImportTaskRun
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimNextPending selects the oldest PENDING task whose job matches jobType
// and whose batch is in an allowed status, locks the row against concurrent
// claimants, and flips it to RUNNING in the same transaction. SKIP LOCKED
// keeps parallel workers from queueing up behind each other's claims.
func (r *importTaskRunRepo) ClaimNextPending(ctx context.Context, tx *gorm.DB, jobType string, allowedBatchStatuses []types.BatchStatus) (*types.ImportTaskRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobType == "" {
		return nil, fmt.Errorf("job_type is required")
	}
	if len(allowedBatchStatuses) == 0 {
		allowedBatchStatuses = []types.BatchStatus{types.BatchRunning}
	}
	now := time.Now()
	var claimed *types.ImportTaskRun
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var task types.ImportTaskRun
		qErr := txx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED", Table: clause.Table{Name: "import_task_runs"}}).
			Joins("JOIN import_jobs ON import_jobs.id = import_task_runs.job_id").
			Joins("JOIN import_batches ON import_batches.id = import_jobs.batch_id").
			Where("import_task_runs.status = ?", types.TaskPending).
			Where("import_jobs.job_type = ?", jobType).
			Where("import_batches.status IN ?", allowedBatchStatuses).
			Order("import_task_runs.created_at ASC").
			First(&task).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.ImportTaskRun{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"status":     types.TaskRunning,
				"attempt":    gorm.Expr("attempt + 1"),
				"claimed_at": now,
				"updated_at": now,
			}).Error
		if uErr != nil {
			return uErr
		}
		task.Status = types.TaskRunning
		task.Attempt++
		task.ClaimedAt = &now
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *importTaskRunRepo) Complete(ctx context.Context, tx *gorm.DB, id uuid.UUID, result TaskCompletion) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("task id is required")
	}
	switch result.Status {
	case types.TaskDone, types.TaskFailed, types.TaskBlocked:
	default:
		return fmt.Errorf("%w: task completion status %q", ErrInvalidTransition, result.Status)
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":      result.Status,
		"error":       result.Error,
		"finished_at": now,
		"updated_at":  now,
	}
	if result.Checksum != "" {
		updates["checksum"] = result.Checksum
	}
	if result.EvidencePath != "" {
		updates["evidence_path"] = result.EvidencePath
	}
	if result.DurationMs != nil {
		updates["duration_ms"] = *result.DurationMs
	}
	res := transaction.WithContext(ctx).
		Model(&types.ImportTaskRun{}).
		Where("id = ? AND status = ?", id, types.TaskRunning).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: task %s is not RUNNING", ErrInvalidTransition, id)
	}
	return nil
}

// StatusCounts groups a job's task runs by status.
func (r *importTaskRunRepo) StatusCounts(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) (map[types.TaskStatus]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("job id is required")
	}
	type row struct {
		Status types.TaskStatus
		N      int64
	}
	var rows []row
	if err := transaction.WithContext(ctx).
		Model(&types.ImportTaskRun{}).
		Select("status, count(*) as n").
		Where("job_id = ?", jobID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[types.TaskStatus]int64, len(rows))
	for _, rr := range rows {
		out[rr.Status] = rr.N
	}
	return out, nil
}

// RequeueTasksForBatch resets a status-filtered subset of a batch's tasks back
// to PENDING for retry/resume flows. Returns the number of tasks reset.
func (r *importTaskRunRepo) RequeueTasksForBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID, fromStatuses []types.TaskStatus) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if batchID == uuid.Nil {
		return 0, fmt.Errorf("batch id is required")
	}
	if len(fromStatuses) == 0 {
		fromStatuses = []types.TaskStatus{types.TaskFailed, types.TaskBlocked}
	}
	for _, s := range fromStatuses {
		if !s.CanTransitionTo(types.TaskPending) {
			return 0, fmt.Errorf("%w: cannot requeue from %s", ErrInvalidTransition, s)
		}
	}
	res := transaction.WithContext(ctx).
		Model(&types.ImportTaskRun{}).
		Where("status IN ?", fromStatuses).
		Where("job_id IN (?)", transaction.Model(&types.ImportJob{}).Select("id").Where("batch_id = ?", batchID)).
		Updates(map[string]interface{}{
			"status":      types.TaskPending,
			"error":       "",
			"claimed_at":  nil,
			"finished_at": nil,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
