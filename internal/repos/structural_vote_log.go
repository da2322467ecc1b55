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

// StructuralVoteLogRepo is append-only; there is no update path. A manual
// override appends a MANUAL row on top of the history.
type StructuralVoteLogRepo interface {
	Append(ctx context.Context, tx *gorm.DB, entry *types.StructuralVoteLog) (*types.StructuralVoteLog, error)
	ListByKrithi(ctx context.Context, tx *gorm.DB, krithiID uuid.UUID) ([]*types.StructuralVoteLog, error)
	LatestByKrithi(ctx context.Context, tx *gorm.DB, krithiID uuid.UUID) (*types.StructuralVoteLog, error)
}

type structuralVoteLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStructuralVoteLogRepo(db *gorm.DB, baseLog *logger.Logger) StructuralVoteLogRepo {
	return &structuralVoteLogRepo{
		db:  db,
		log: baseLog.With("repo", "StructuralVoteLogRepo"),
	}
}

func (r *structuralVoteLogRepo) Append(ctx context.Context, tx *gorm.DB, entry *types.StructuralVoteLog) (*types.StructuralVoteLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if entry == nil {
		return nil, fmt.Errorf("no vote log entry given")
	}
	if entry.KrithiID == uuid.Nil {
		return nil, fmt.Errorf("krithi_id is required")
	}
	if !entry.ConsensusType.Valid() {
		return nil, fmt.Errorf("invalid consensus type %q", entry.ConsensusType)
	}
	if !entry.Confidence.Valid() {
		return nil, fmt.Errorf("invalid confidence %q", entry.Confidence)
	}
	if entry.ConsensusType == types.ConsensusManual && entry.ReviewerID == nil {
		return nil, fmt.Errorf("reviewer_id is required for MANUAL consensus")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.VotedAt.IsZero() {
		entry.VotedAt = time.Now()
	}
	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *structuralVoteLogRepo) ListByKrithi(ctx context.Context, tx *gorm.DB, krithiID uuid.UUID) ([]*types.StructuralVoteLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.StructuralVoteLog
	if krithiID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("krithi_id = ?", krithiID).
		Order("voted_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *structuralVoteLogRepo) LatestByKrithi(ctx context.Context, tx *gorm.DB, krithiID uuid.UUID) (*types.StructuralVoteLog, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if krithiID == uuid.Nil {
		return nil, nil
	}
	var entry types.StructuralVoteLog
	err := transaction.WithContext(ctx).
		Where("krithi_id = ?", krithiID).
		Order("voted_at DESC").
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == uuid.Nil {
		return nil, nil
	}
	return &entry, nil
}
