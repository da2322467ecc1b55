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

// ReferenceEntry is the type-agnostic view entity resolution matches against.
type ReferenceEntry struct {
	ID             uuid.UUID
	Name           string
	NormalizedName string
}

type ReferenceRepo interface {
	ListAll(ctx context.Context, tx *gorm.DB, entityType types.EntityType) ([]ReferenceEntry, error)
	FindByNormalizedName(ctx context.Context, tx *gorm.DB, entityType types.EntityType, normalized string) (*ReferenceEntry, error)
	FindAlias(ctx context.Context, tx *gorm.DB, entityType types.EntityType, normalizedAlias string) (*types.EntityAlias, error)
	CreateAlias(ctx context.Context, tx *gorm.DB, alias *types.EntityAlias) (*types.EntityAlias, error)
	SeedComposer(ctx context.Context, tx *gorm.DB, name string) (*types.Composer, error)
	SeedRaga(ctx context.Context, tx *gorm.DB, name string) (*types.Raga, error)
	SeedTala(ctx context.Context, tx *gorm.DB, name string) (*types.Tala, error)
}

type referenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReferenceRepo(db *gorm.DB, baseLog *logger.Logger) ReferenceRepo {
	return &referenceRepo{
		db:  db,
		log: baseLog.With("repo", "ReferenceRepo"),
	}
}

func (r *referenceRepo) tableFor(entityType types.EntityType) (string, error) {
	switch entityType {
	case types.EntityComposer:
		return types.Composer{}.TableName(), nil
	case types.EntityRaga:
		return types.Raga{}.TableName(), nil
	case types.EntityTala:
		return types.Tala{}.TableName(), nil
	}
	return "", fmt.Errorf("unknown entity type %q", entityType)
}

func (r *referenceRepo) ListAll(ctx context.Context, tx *gorm.DB, entityType types.EntityType) ([]ReferenceEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	table, err := r.tableFor(entityType)
	if err != nil {
		return nil, err
	}
	var out []ReferenceEntry
	if err := transaction.WithContext(ctx).
		Table(table).
		Select("id, name, normalized_name").
		Order("normalized_name ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *referenceRepo) FindByNormalizedName(ctx context.Context, tx *gorm.DB, entityType types.EntityType, normalized string) (*ReferenceEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if normalized == "" {
		return nil, nil
	}
	table, err := r.tableFor(entityType)
	if err != nil {
		return nil, err
	}
	var entry ReferenceEntry
	if err := transaction.WithContext(ctx).
		Table(table).
		Select("id, name, normalized_name").
		Where("normalized_name = ?", normalized).
		Limit(1).
		Scan(&entry).Error; err != nil {
		return nil, err
	}
	if entry.ID == uuid.Nil {
		return nil, nil
	}
	return &entry, nil
}

func (r *referenceRepo) FindAlias(ctx context.Context, tx *gorm.DB, entityType types.EntityType, normalizedAlias string) (*types.EntityAlias, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if normalizedAlias == "" {
		return nil, nil
	}
	var alias types.EntityAlias
	err := transaction.WithContext(ctx).
		Where("entity_type = ? AND normalized_alias = ?", entityType, normalizedAlias).
		Limit(1).
		Find(&alias).Error
	if err != nil {
		return nil, err
	}
	if alias.ID == uuid.Nil {
		return nil, nil
	}
	return &alias, nil
}

func (r *referenceRepo) CreateAlias(ctx context.Context, tx *gorm.DB, alias *types.EntityAlias) (*types.EntityAlias, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if alias == nil {
		return nil, fmt.Errorf("no alias given")
	}
	if !alias.EntityType.Valid() {
		return nil, fmt.Errorf("invalid entity type %q", alias.EntityType)
	}
	if alias.Alias == "" || alias.CanonicalID == uuid.Nil {
		return nil, fmt.Errorf("alias and canonical_id are required")
	}
	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	if alias.NormalizedAlias == "" {
		alias.NormalizedAlias = normalization.NormalizeName(alias.Alias)
	}
	if err := transaction.WithContext(ctx).Create(alias).Error; err != nil {
		return nil, err
	}
	return alias, nil
}

func (r *referenceRepo) SeedComposer(ctx context.Context, tx *gorm.DB, name string) (*types.Composer, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	c := &types.Composer{ID: uuid.New(), Name: name, NormalizedName: normalization.NormalizeName(name)}
	if err := transaction.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r *referenceRepo) SeedRaga(ctx context.Context, tx *gorm.DB, name string) (*types.Raga, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	ra := &types.Raga{ID: uuid.New(), Name: name, NormalizedName: normalization.NormalizeName(name)}
	if err := transaction.WithContext(ctx).Create(ra).Error; err != nil {
		return nil, err
	}
	return ra, nil
}

func (r *referenceRepo) SeedTala(ctx context.Context, tx *gorm.DB, name string) (*types.Tala, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	ta := &types.Tala{ID: uuid.New(), Name: name, NormalizedName: normalization.NormalizeName(name)}
	if err := transaction.WithContext(ctx).Create(ta).Error; err != nil {
		return nil, err
	}
	return ta, nil
}
