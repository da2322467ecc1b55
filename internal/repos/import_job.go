package repos

import (
	"context"
	"fmt"
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/types"
)

type ImportJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.ImportJob) (*types.ImportJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportJob, error)
	ListByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) ([]*types.ImportJob, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.JobStatus) error
	IncrementRetryCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type importJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportJobRepo(db *gorm.DB, baseLog *logger.Logger) ImportJobRepo {
	return &importJobRepo{
		db:  db,
		log: baseLog.With("repo", "ImportJobRepo"),
	}
}

func (r *importJobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.ImportJob) (*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if job == nil {
		return nil, fmt.Errorf("no job given")
	}
	if job.BatchID == uuid.Nil {
		return nil, fmt.Errorf("job batch_id is required")
	}
	if job.JobType == "" {
		return nil, fmt.Errorf("job_type is required")
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = types.JobPending
	}
	if !job.Status.Valid() {
		return nil, fmt.Errorf("invalid job status %q", job.Status)
	}
	if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *importJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ImportJob
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *importJobRepo) ListByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) ([]*types.ImportJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ImportJob
	if batchID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *importJobRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.JobStatus) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("job id is required")
	}
	if !status.Valid() {
		return fmt.Errorf("invalid job status %q", status)
	}
	return transaction.WithContext(ctx).
		Model(&types.ImportJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *importJobRepo) IncrementRetryCount(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("job id is required")
	}
	return transaction.WithContext(ctx).
		Model(&types.ImportJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now(),
		}).Error
}
