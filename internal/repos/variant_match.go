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

type VariantMatchRepo interface {
	Create(ctx context.Context, tx *gorm.DB, match *types.VariantMatch) (*types.VariantMatch, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.VariantMatch, error)
	ListByStatus(ctx context.Context, tx *gorm.DB, status types.MatchStatus, limit int) ([]*types.VariantMatch, error)
	ListByKrithi(ctx context.Context, tx *gorm.DB, krithiID uuid.UUID) ([]*types.VariantMatch, error)
	Review(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.MatchStatus, notes string) error
}

type variantMatchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVariantMatchRepo(db *gorm.DB, baseLog *logger.Logger) VariantMatchRepo {
	return &variantMatchRepo{
		db:  db,
		log: baseLog.With("repo", "VariantMatchRepo"),
	}
}

func (r *variantMatchRepo) Create(ctx context.Context, tx *gorm.DB, match *types.VariantMatch) (*types.VariantMatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if match == nil {
		return nil, fmt.Errorf("no variant match given")
	}
	if match.ExtractionID == uuid.Nil || match.KrithiID == uuid.Nil {
		return nil, fmt.Errorf("extraction_id and krithi_id are required")
	}
	if !match.ConfidenceTier.Valid() {
		return nil, fmt.Errorf("invalid confidence tier %q", match.ConfidenceTier)
	}
	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	if match.MatchStatus == "" {
		match.MatchStatus = types.MatchPending
	}
	if !match.MatchStatus.Valid() {
		return nil, fmt.Errorf("invalid match status %q", match.MatchStatus)
	}
	if err := transaction.WithContext(ctx).Create(match).Error; err != nil {
		return nil, err
	}
	return match, nil
}

func (r *variantMatchRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.VariantMatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var match types.VariantMatch
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&match).Error
	if err != nil {
		return nil, err
	}
	if match.ID == uuid.Nil {
		return nil, nil
	}
	return &match, nil
}

func (r *variantMatchRepo) ListByStatus(ctx context.Context, tx *gorm.DB, status types.MatchStatus, limit int) ([]*types.VariantMatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if !status.Valid() {
		return nil, fmt.Errorf("invalid match status %q", status)
	}
	if limit <= 0 {
		limit = 100
	}
	var out []*types.VariantMatch
	if err := transaction.WithContext(ctx).
		Where("match_status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *variantMatchRepo) ListByKrithi(ctx context.Context, tx *gorm.DB, krithiID uuid.UUID) ([]*types.VariantMatch, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.VariantMatch
	if krithiID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("krithi_id = ?", krithiID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *variantMatchRepo) Review(ctx context.Context, tx *gorm.DB, id uuid.UUID, status types.MatchStatus, notes string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("variant match id is required")
	}
	switch status {
	case types.MatchApproved, types.MatchRejected:
	default:
		return fmt.Errorf("%w: review status must be APPROVED or REJECTED, got %q", ErrInvalidTransition, status)
	}
	res := transaction.WithContext(ctx).
		Model(&types.VariantMatch{}).
		Where("id = ? AND match_status = ?", id, types.MatchPending).
		Updates(map[string]interface{}{
			"match_status":   status,
			"reviewer_notes": notes,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: variant match %s is not PENDING", ErrInvalidTransition, id)
	}
	return nil
}
