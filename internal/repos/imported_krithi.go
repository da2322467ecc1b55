package repos

import (
	"context"
	"fmt"
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/types"
)

type ImportedKrithiRepo interface {
	Create(ctx context.Context, tx *gorm.DB, staged *types.ImportedKrithi) (*types.ImportedKrithi, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportedKrithi, error)
	GetByExtractionTaskID(ctx context.Context, tx *gorm.DB, extractionID uuid.UUID) (*types.ImportedKrithi, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status types.ImportStatus, limit int) ([]*types.ImportedKrithi, error)
	SetResolutionData(ctx context.Context, tx *gorm.DB, id uuid.UUID, data datatypes.JSON) error
	SetDuplicateCandidates(ctx context.Context, tx *gorm.DB, id uuid.UUID, data datatypes.JSON) error
	SetQuality(ctx context.Context, tx *gorm.DB, id uuid.UUID, score float64, tier string) error
	UpdateImportStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.ImportStatus, mappedKrithiID *uuid.UUID) error
}

type importedKrithiRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportedKrithiRepo(db *gorm.DB, baseLog *logger.Logger) ImportedKrithiRepo {
	return &importedKrithiRepo{
		db:  db,
		log: baseLog.With("repo", "ImportedKrithiRepo"),
	}
}

func (r *importedKrithiRepo) Create(ctx context.Context, tx *gorm.DB, staged *types.ImportedKrithi) (*types.ImportedKrithi, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if staged == nil {
		return nil, fmt.Errorf("no staged import given")
	}
	if staged.ImportSourceID == uuid.Nil {
		return nil, fmt.Errorf("import_source_id is required")
	}
	if staged.RawTitle == "" && staged.RawLyrics == "" {
		return nil, fmt.Errorf("a staged import needs at least a title or lyrics")
	}
	if staged.ID == uuid.Nil {
		staged.ID = uuid.New()
	}
	if staged.ImportStatus == "" {
		staged.ImportStatus = types.ImportPending
	}
	if !staged.ImportStatus.Valid() {
		return nil, fmt.Errorf("invalid import status %q", staged.ImportStatus)
	}
	if err := transaction.WithContext(ctx).Create(staged).Error; err != nil {
		return nil, err
	}
	return staged, nil
}

func (r *importedKrithiRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ImportedKrithi, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var staged types.ImportedKrithi
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&staged).Error
	if err != nil {
		return nil, err
	}
	if staged.ID == uuid.Nil {
		return nil, nil
	}
	return &staged, nil
}

func (r *importedKrithiRepo) GetByExtractionTaskID(ctx context.Context, tx *gorm.DB, extractionID uuid.UUID) (*types.ImportedKrithi, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if extractionID == uuid.Nil {
		return nil, nil
	}
	var staged types.ImportedKrithi
	err := transaction.WithContext(ctx).
		Where("extraction_task_id = ?", extractionID).
		Order("created_at DESC").
		Limit(1).
		Find(&staged).Error
	if err != nil {
		return nil, err
	}
	if staged.ID == uuid.Nil {
		return nil, nil
	}
	return &staged, nil
}

func (r *importedKrithiRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status types.ImportStatus, limit int) ([]*types.ImportedKrithi, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid import status %q", status)
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.ImportedKrithi
	if err := transaction.WithContext(ctx).
		Where("import_status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *importedKrithiRepo) SetResolutionData(ctx context.Context, tx *gorm.DB, id uuid.UUID, data datatypes.JSON) error {
	return r.setColumn(ctx, tx, id, "resolution_data", data)
}

func (r *importedKrithiRepo) SetDuplicateCandidates(ctx context.Context, tx *gorm.DB, id uuid.UUID, data datatypes.JSON) error {
	return r.setColumn(ctx, tx, id, "duplicate_candidates", data)
}

func (r *importedKrithiRepo) setColumn(ctx context.Context, tx *gorm.DB, id uuid.UUID, column string, data datatypes.JSON) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("staged import id is required")
	}
	return transaction.WithContext(ctx).
		Model(&types.ImportedKrithi{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			column:       data,
			"updated_at": time.Now(),
		}).Error
}

func (r *importedKrithiRepo) SetQuality(ctx context.Context, tx *gorm.DB, id uuid.UUID, score float64, tier string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("staged import id is required")
	}
	return transaction.WithContext(ctx).
		Model(&types.ImportedKrithi{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"quality_score": score,
			"quality_tier":  tier,
			"updated_at":    time.Now(),
		}).Error
}

// UpdateImportStatus is the only mutation the review/approval step performs.
// Raw fields stay immutable; terminal statuses never move again.
func (r *importedKrithiRepo) UpdateImportStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, next types.ImportStatus, mappedKrithiID *uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("staged import id is required")
	}
	if !next.Valid() {
		return fmt.Errorf("invalid import status %q", next)
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var staged types.ImportedKrithi
		if err := txx.Where("id = ?", id).Limit(1).Find(&staged).Error; err != nil {
			return err
		}
		if staged.ID == uuid.Nil {
			return fmt.Errorf("staged import %s not found", id)
		}
		if staged.ImportStatus.Terminal() {
			return fmt.Errorf("%w: staged import %s is %s", ErrInvalidTransition, id, staged.ImportStatus)
		}
		now := time.Now()
		updates := map[string]interface{}{
			"import_status": next,
			"updated_at":    now,
		}
		switch next {
		case types.ImportApproved, types.ImportMapped, types.ImportRejected, types.ImportDiscarded:
			updates["reviewed_at"] = now
		}
		if mappedKrithiID != nil {
			updates["mapped_krithi_id"] = *mappedKrithiID
		}
		return txx.Model(&types.ImportedKrithi{}).
			Where("id = ?", id).
			Updates(updates).Error
	})
}
