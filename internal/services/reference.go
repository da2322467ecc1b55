package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sangitam/krithi-backend/internal/ingestion/resolve"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/normalization"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

type ReferenceService interface {
	List(ctx context.Context, entityType types.EntityType) ([]repos.ReferenceEntry, error)
	AddAlias(ctx context.Context, entityType types.EntityType, canonicalID uuid.UUID, alias string) (*types.EntityAlias, error)
	SearchKrithis(ctx context.Context, title string, limit int) ([]*types.Krithi, error)
	GetKrithi(ctx context.Context, id uuid.UUID) (*types.Krithi, error)
}

type referenceService struct {
	log      *logger.Logger
	refs     repos.ReferenceRepo
	krithis  repos.KrithiRepo
	resolver *resolve.Resolver
}

func NewReferenceService(baseLog *logger.Logger, refs repos.ReferenceRepo, krithis repos.KrithiRepo, resolver *resolve.Resolver) ReferenceService {
	return &referenceService{
		log:      baseLog.With("service", "ReferenceService"),
		refs:     refs,
		krithis:  krithis,
		resolver: resolver,
	}
}

func (s *referenceService) List(ctx context.Context, entityType types.EntityType) ([]repos.ReferenceEntry, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("invalid entity type %q", entityType)
	}
	return s.refs.ListAll(ctx, nil, entityType)
}

// AddAlias registers a new alias and drops any cached resolution for the
// canonical entity so the next lookup sees it.
func (s *referenceService) AddAlias(ctx context.Context, entityType types.EntityType, canonicalID uuid.UUID, alias string) (*types.EntityAlias, error) {
	normalized := normalization.NormalizeName(alias)
	if normalized == "" {
		return nil, fmt.Errorf("alias normalizes to empty")
	}
	created, err := s.refs.CreateAlias(ctx, nil, &types.EntityAlias{
		EntityType:      entityType,
		CanonicalID:     canonicalID,
		Alias:           alias,
		NormalizedAlias: normalized,
	})
	if err != nil {
		return nil, err
	}
	if s.resolver != nil {
		s.resolver.Invalidate(ctx, entityType, canonicalID)
	}
	return created, nil
}

func (s *referenceService) SearchKrithis(ctx context.Context, title string, limit int) ([]*types.Krithi, error) {
	return s.krithis.SearchByTitle(ctx, nil, title, limit)
}

func (s *referenceService) GetKrithi(ctx context.Context, id uuid.UUID) (*types.Krithi, error) {
	return s.krithis.GetByID(ctx, nil, id)
}
