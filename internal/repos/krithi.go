package repos

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/normalization"
	"github.com/sangitam/krithi-backend/internal/types"
)

type KrithiRepo interface {
	Create(ctx context.Context, tx *gorm.DB, krithi *types.Krithi) (*types.Krithi, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Krithi, error)
	FindByNormalizedTitle(ctx context.Context, tx *gorm.DB, normalizedTitle string) ([]*types.Krithi, error)
	SearchByTitle(ctx context.Context, tx *gorm.DB, titleFragment string, limit int) ([]*types.Krithi, error)
	UpdateStructure(ctx context.Context, tx *gorm.DB, id uuid.UUID, structure []byte) error
}

type krithiRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKrithiRepo(db *gorm.DB, baseLog *logger.Logger) KrithiRepo {
	return &krithiRepo{
		db:  db,
		log: baseLog.With("repo", "KrithiRepo"),
	}
}

func (r *krithiRepo) Create(ctx context.Context, tx *gorm.DB, krithi *types.Krithi) (*types.Krithi, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if krithi == nil {
		return nil, fmt.Errorf("no krithi given")
	}
	if krithi.Title == "" {
		return nil, fmt.Errorf("krithi title is required")
	}
	if krithi.ID == uuid.Nil {
		krithi.ID = uuid.New()
	}
	if krithi.NormalizedTitle == "" {
		krithi.NormalizedTitle = normalization.NormalizeName(krithi.Title)
	}
	if err := transaction.WithContext(ctx).Create(krithi).Error; err != nil {
		return nil, err
	}
	return krithi, nil
}

func (r *krithiRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Krithi, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var krithi types.Krithi
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&krithi).Error
	if err != nil {
		return nil, err
	}
	if krithi.ID == uuid.Nil {
		return nil, nil
	}
	return &krithi, nil
}

func (r *krithiRepo) FindByNormalizedTitle(ctx context.Context, tx *gorm.DB, normalizedTitle string) ([]*types.Krithi, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Krithi
	if normalizedTitle == "" {
		return out, nil
	}
	if err := transaction.WithContext(ctx).
		Where("normalized_title = ?", normalizedTitle).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *krithiRepo) SearchByTitle(ctx context.Context, tx *gorm.DB, titleFragment string, limit int) ([]*types.Krithi, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Krithi
	fragment := normalization.NormalizeName(titleFragment)
	if fragment == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 25
	}
	if err := transaction.WithContext(ctx).
		Where("normalized_title LIKE ?", "%"+fragment+"%").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *krithiRepo) UpdateStructure(ctx context.Context, tx *gorm.DB, id uuid.UUID, structure []byte) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return fmt.Errorf("krithi id is required")
	}
	return transaction.WithContext(ctx).
		Model(&types.Krithi{}).
		Where("id = ?", id).
		Update("structure", structure).Error
}
