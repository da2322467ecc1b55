package repos

import (
	"context"
	"errors"
	"fmt"
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/types"
)

var ErrAlreadyIngested = errors.New("extraction already ingested")

type ExtractionResult struct {
	Payload     datatypes.JSON
	ResultCount int
	Method      string
	Version     string
	Confidence  *float64
	Language    string
	DurationMs  int64
}

type ExtractionStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
	Ingested   int64 `json:"ingested"`
	Retryable  int64 `json:"retryable"`
}

type ExtractionQueueRepo interface {
	Create(ctx context.Context, tx *gorm.DB, task *types.ExtractionTask) (*types.ExtractionTask, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ExtractionTask, error)
	GetBySourceURL(ctx context.Context, tx *gorm.DB, sourceURL string) (*types.ExtractionTask, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status types.ExtractionStatus, limit int) ([]*types.ExtractionTask, error)
	ClaimByID(ctx context.Context, tx *gorm.DB, id uuid.UUID, claimedBy string) (*types.ExtractionTask, error)
	MarkDone(ctx context.Context, tx *gorm.DB, id uuid.UUID, result ExtractionResult) error
	MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errorDetail string) error
	MarkIngested(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	Retry(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	Cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	RetryAllFailed(ctx context.Context, tx *gorm.DB) (int64, error)
	GetStats(ctx context.Context, tx *gorm.DB) (*ExtractionStats, error)
}

type extractionQueueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractionQueueRepo(db *gorm.DB, baseLog *logger.Logger) ExtractionQueueRepo {
	return &extractionQueueRepo{
		db:  db,
		log: baseLog.With("repo", "ExtractionQueueRepo"),
	}
}

func (r *extractionQueueRepo) Create(ctx context.Context, tx *gorm.DB, task *types.ExtractionTask) (*types.ExtractionTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if task == nil {
		return nil, fmt.Errorf("no extraction task given")
	}
	if task.SourceURL == "" {
		return nil, fmt.Errorf("source_url is required")
	}
	if task.ExtractionIntent == "" {
		task.ExtractionIntent = types.IntentPrimary
	}
	if !task.ExtractionIntent.Valid() {
		return nil, fmt.Errorf("invalid extraction intent %q", task.ExtractionIntent)
	}
	// ENRICH is always evaluated against an already-accepted primary
	// extraction, so the link is mandatory in that direction only.
	if task.ExtractionIntent == types.IntentEnrich && (task.RelatedExtractionID == nil || *task.RelatedExtractionID == uuid.Nil) {
		return nil, fmt.Errorf("related_extraction_id is required for ENRICH tasks")
	}
	if task.ExtractionIntent == types.IntentPrimary && task.RelatedExtractionID != nil {
		return nil, fmt.Errorf("related_extraction_id must not be set for PRIMARY tasks")
	}
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = types.ExtractionPending
	}
	if task.MaxAttempts <= 0 {
		task.MaxAttempts = 3
	}
	if err := transaction.WithContext(ctx).Create(task).Error; err != nil {
		return nil, err
	}
	return task, nil
}

func (r *extractionQueueRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ExtractionTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var task types.ExtractionTask
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

func (r *extractionQueueRepo) GetBySourceURL(ctx context.Context, tx *gorm.DB, sourceURL string) (*types.ExtractionTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if sourceURL == "" {
		return nil, nil
	}
	var task types.ExtractionTask
	err := transaction.WithContext(ctx).
		Where("source_url = ?", sourceURL).
		Order("created_at DESC").
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

func (r *extractionQueueRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status types.ExtractionStatus, limit int) ([]*types.ExtractionTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid extraction status %q", status)
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.ExtractionTask
	if err := transaction.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimByID flips one PENDING queue row to PROCESSING, bumping attempts. The
// caller already owns an exclusive handle on the work (a claimed batch task
// run); the queue row is moved alongside it so both views agree.
func (r *extractionQueueRepo) ClaimByID(ctx context.Context, tx *gorm.DB, id uuid.UUID, claimedBy string) (*types.ExtractionTask, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	res := transaction.WithContext(ctx).Model(&types.ExtractionTask{}).
		Where("id = ? AND status = ?", id, types.ExtractionPending).
		Updates(map[string]interface{}{
			"status":     types.ExtractionProcessing,
			"attempts":   gorm.Expr("attempts + 1"),
			"claimed_by": claimedBy,
			"claimed_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, transaction, id)
}

func (r *extractionQueueRepo) MarkDone(ctx context.Context, tx *gorm.DB, id uuid.UUID, result ExtractionResult) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("extraction id is required")
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":            types.ExtractionDone,
		"result_payload":    result.Payload,
		"result_count":      result.ResultCount,
		"extraction_method": result.Method,
		"extractor_version": result.Version,
		"duration_ms":       result.DurationMs,
		"error_detail":      "",
		"completed_at":      now,
		"updated_at":        now,
	}
	if result.Confidence != nil {
		updates["confidence"] = *result.Confidence
	}
	if result.Language != "" {
		updates["content_language"] = result.Language
	}
	res := transaction.WithContext(ctx).
		Model(&types.ExtractionTask{}).
		Where("id = ? AND status = ?", id, types.ExtractionProcessing).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: extraction %s is not PROCESSING", ErrInvalidTransition, id)
	}
	return nil
}

func (r *extractionQueueRepo) MarkFailed(ctx context.Context, tx *gorm.DB, id uuid.UUID, errorDetail string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("extraction id is required")
	}
	now := time.Now()
	res := transaction.WithContext(ctx).
		Model(&types.ExtractionTask{}).
		Where("id = ? AND status = ?", id, types.ExtractionProcessing).
		Updates(map[string]interface{}{
			"status":       types.ExtractionFailed,
			"error_detail": errorDetail,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: extraction %s is not PROCESSING", ErrInvalidTransition, id)
	}
	return nil
}

// MarkIngested is the one-way DONE -> INGESTED transition taken by the
// catalog writer. Re-ingesting an already-INGESTED task is a no-op success.
func (r *extractionQueueRepo) MarkIngested(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("extraction id is required")
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var task types.ExtractionTask
		if err := txx.Where("id = ?", id).Limit(1).Find(&task).Error; err != nil {
			return err
		}
		if task.ID == uuid.Nil {
			return fmt.Errorf("extraction %s not found", id)
		}
		switch task.Status {
		case types.ExtractionIngested:
			return nil
		case types.ExtractionDone:
			return txx.Model(&types.ExtractionTask{}).
				Where("id = ? AND status = ?", id, types.ExtractionDone).
				Updates(map[string]interface{}{
					"status":     types.ExtractionIngested,
					"updated_at": time.Now(),
				}).Error
		default:
			return fmt.Errorf("%w: extraction %s is %s, not DONE", ErrInvalidTransition, id, task.Status)
		}
	})
}

// Retry resets FAILED/CANCELLED back to PENDING while the attempt budget
// lasts; the attempts history is never touched. Tasks at max_attempts stay
// put, RetryAllFailed is the explicit bulk override.
func (r *extractionQueueRepo) Retry(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("extraction id is required")
	}
	res := transaction.WithContext(ctx).
		Model(&types.ExtractionTask{}).
		Where("id = ? AND status IN ? AND attempts < max_attempts", id, []types.ExtractionStatus{types.ExtractionFailed, types.ExtractionCancelled}).
		Updates(map[string]interface{}{
			"status":     types.ExtractionPending,
			"claimed_by": "",
			"claimed_at": nil,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: extraction %s cannot be retried", ErrInvalidTransition, id)
	}
	return nil
}

// Cancel prevents a not-yet-claimed task from being claimed. A PROCESSING
// task is marked for the worker to notice asynchronously; there is no
// in-flight cancellation signal.
func (r *extractionQueueRepo) Cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("extraction id is required")
	}
	res := transaction.WithContext(ctx).
		Model(&types.ExtractionTask{}).
		Where("id = ? AND status IN ?", id, []types.ExtractionStatus{types.ExtractionPending, types.ExtractionProcessing}).
		Updates(map[string]interface{}{
			"status":     types.ExtractionCancelled,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: extraction %s cannot be cancelled", ErrInvalidTransition, id)
	}
	return nil
}

func (r *extractionQueueRepo) RetryAllFailed(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Model(&types.ExtractionTask{}).
		Where("status = ?", types.ExtractionFailed).
		Updates(map[string]interface{}{
			"status":     types.ExtractionPending,
			"claimed_by": "",
			"claimed_at": nil,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *extractionQueueRepo) GetStats(ctx context.Context, tx *gorm.DB) (*ExtractionStats, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	stats := &ExtractionStats{}
	type row struct {
		Status types.ExtractionStatus
		N      int64
	}
	var rows []row
	if err := transaction.WithContext(ctx).
		Model(&types.ExtractionTask{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, rr := range rows {
		switch rr.Status {
		case types.ExtractionPending:
			stats.Pending = rr.N
		case types.ExtractionProcessing:
			stats.Processing = rr.N
		case types.ExtractionDone:
			stats.Done = rr.N
		case types.ExtractionFailed:
			stats.Failed = rr.N
		case types.ExtractionCancelled:
			stats.Cancelled = rr.N
		case types.ExtractionIngested:
			stats.Ingested = rr.N
		}
	}
	if err := transaction.WithContext(ctx).
		Model(&types.ExtractionTask{}).
		Where("status = ? AND attempts < max_attempts", types.ExtractionFailed).
		Count(&stats.Retryable).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
