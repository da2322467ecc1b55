package repos

import (
	"context"
	"errors"
	"fmt"
	"time"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/types"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// CounterDeltas are relative increments applied atomically in SQL so that
// concurrent task completions from different workers never lose updates.
type CounterDeltas struct {
	Total     int
	Processed int
	Succeeded int
	Failed    int
	Blocked   int
}

type ImportBatchRepo interface {
	Create(ctx context.Context, tx *gorm.DB, batch *types.ImportBatch) (*types.ImportBatch, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportBatch, error)
	List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ImportBatch, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.BatchStatus) error
	IncrementCounters(ctx context.Context, tx *gorm.DB, id uuid.UUID, deltas CounterDeltas) error
}

type importBatchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportBatchRepo(db *gorm.DB, baseLog *logger.Logger) ImportBatchRepo {
	return &importBatchRepo{
		db:  db,
		log: baseLog.With("repo", "ImportBatchRepo"),
	}
}

func (r *importBatchRepo) Create(ctx context.Context, tx *gorm.DB, batch *types.ImportBatch) (*types.ImportBatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if batch == nil {
		return nil, fmt.Errorf("no batch given")
	}
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.Status == "" {
		batch.Status = types.BatchPending
	}
	if !batch.Status.Valid() {
		return nil, fmt.Errorf("invalid batch status %q", batch.Status)
	}
	if err := transaction.WithContext(ctx).Create(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func (r *importBatchRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportBatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var batch types.ImportBatch
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&batch).Error
	if err != nil {
		return nil, err
	}
	if batch.ID == uuid.Nil {
		return nil, nil
	}
	return &batch, nil
}

func (r *importBatchRepo) List(ctx context.Context, tx *gorm.DB, limit int) ([]*types.ImportBatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var out []*types.ImportBatch
	if err := transaction.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *importBatchRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.BatchStatus) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("batch id is required")
	}
	if !next.Valid() {
		return fmt.Errorf("invalid batch status %q", next)
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var batch types.ImportBatch
		if err := txx.Where("id = ?", id).Limit(1).Find(&batch).Error; err != nil {
			return err
		}
		if batch.ID == uuid.Nil {
			return fmt.Errorf("batch %s not found", id)
		}
		if batch.Status == next {
			return nil
		}
		if !batch.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: batch %s -> %s", ErrInvalidTransition, batch.Status, next)
		}
		now := time.Now()
		updates := map[string]interface{}{
			"status":     next,
			"updated_at": now,
		}
		switch next {
		case types.BatchRunning:
			if batch.StartedAt == nil {
				updates["started_at"] = now
			}
		case types.BatchCompleted, types.BatchCancelled:
			updates["completed_at"] = now
		}
		return txx.Model(&types.ImportBatch{}).
			Where("id = ?", id).
			Updates(updates).Error
	})
}

// IncrementCounters applies deltas in a single UPDATE, clamped by nothing:
// callers only ever send deltas for work that actually finished, so the
// succeeded+failed+blocked <= processed <= total invariant holds by
// construction.
func (r *importBatchRepo) IncrementCounters(ctx context.Context, tx *gorm.DB, id uuid.UUID, deltas CounterDeltas) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("batch id is required")
	}
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if deltas.Total != 0 {
		updates["total_tasks"] = gorm.Expr("total_tasks + ?", deltas.Total)
	}
	if deltas.Processed != 0 {
		updates["processed_tasks"] = gorm.Expr("processed_tasks + ?", deltas.Processed)
	}
	if deltas.Succeeded != 0 {
		updates["succeeded_tasks"] = gorm.Expr("succeeded_tasks + ?", deltas.Succeeded)
	}
	if deltas.Failed != 0 {
		updates["failed_tasks"] = gorm.Expr("failed_tasks + ?", deltas.Failed)
	}
	if deltas.Blocked != 0 {
		updates["blocked_tasks"] = gorm.Expr("blocked_tasks + ?", deltas.Blocked)
	}
	return transaction.WithContext(ctx).
		Model(&types.ImportBatch{}).
		Where("id = ?", id).
		Updates(updates).Error
}
