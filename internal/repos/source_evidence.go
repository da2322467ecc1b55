package repos

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/types"
)

const pgUniqueViolation = "23505"

type SourceEvidenceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, evidence *types.KrithiSourceEvidence) (*types.KrithiSourceEvidence, error)
	ListByKrithi(ctx context.Context, tx *gorm.DB, krithiID uuid.UUID) ([]*types.KrithiSourceEvidence, error)
}

type sourceEvidenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceEvidenceRepo(db *gorm.DB, baseLog *logger.Logger) SourceEvidenceRepo {
	return &sourceEvidenceRepo{
		db:  db,
		log: baseLog.With("repo", "SourceEvidenceRepo"),
	}
}

// Create is idempotent on (krithi_id, source_url): inserting a duplicate
// edge returns the existing row instead of an error. ON CONFLICT DO NOTHING
// covers the common case; the pg error-code check covers stores where the
// conflict target can't be inferred.
func (r *sourceEvidenceRepo) Create(ctx context.Context, tx *gorm.DB, evidence *types.KrithiSourceEvidence) (*types.KrithiSourceEvidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if evidence == nil {
		return nil, fmt.Errorf("no evidence given")
	}
	if evidence.KrithiID == uuid.Nil {
		return nil, fmt.Errorf("krithi_id is required")
	}
	if evidence.SourceURL == "" {
		return nil, fmt.Errorf("source_url is required")
	}
	if evidence.ID == uuid.Nil {
		evidence.ID = uuid.New()
	}
	err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "krithi_id"}, {Name: "source_url"}},
			DoNothing: true,
		}).
		Create(evidence).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
			return nil, err
		}
	}
	var existing types.KrithiSourceEvidence
	if err := transaction.WithContext(ctx).
		Where("krithi_id = ? AND source_url = ?", evidence.KrithiID, evidence.SourceURL).
		Limit(1).
		Find(&existing).Error; err != nil {
		return nil, err
	}
	if existing.ID != uuid.Nil {
		return &existing, nil
	}
	return evidence, nil
}

func (r *sourceEvidenceRepo) ListByKrithi(ctx context.Context, tx *gorm.DB, krithiID uuid.UUID) ([]*types.KrithiSourceEvidence, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.KrithiSourceEvidence
	if krithiID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("krithi_id = ?", krithiID).
		Order("source_tier ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
