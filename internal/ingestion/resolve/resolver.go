package resolve

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/normalization"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

const (
	exactMatchScore = 100.0
	aliasMatchScore = 95.0
	// fuzzyFloor is the similarity below which a reference row is not even
	// proposed as a candidate.
	fuzzyFloor    = 0.6
	maxCandidates = 3
)

// Candidate is one proposed mapping from free text to a reference row.
type Candidate struct {
	ID    uuid.UUID            `json:"id"`
	Name  string               `json:"name"`
	Score float64              `json:"score"`
	Tier  types.ConfidenceTier `json:"tier"`
}

// Result carries per-entity candidate lists for a staged import. Resolved is
// true when every provided name found at least a MEDIUM-confidence candidate.
type Result struct {
	ComposerCandidates []Candidate `json:"composer_candidates"`
	RagaCandidates     []Candidate `json:"raga_candidates"`
	TalaCandidates     []Candidate `json:"tala_candidates"`
	Resolved           bool        `json:"resolved"`
}

// Top returns the best candidate of a list, if any.
func Top(candidates []Candidate) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

func TierForScore(score float64) types.ConfidenceTier {
	switch {
	case score >= 90:
		return types.ConfidenceHigh
	case score >= 70:
		return types.ConfidenceMedium
	default:
		return types.ConfidenceLow
	}
}

type Resolver struct {
	refs  repos.ReferenceRepo
	cache Cache
	log   *logger.Logger
}

func NewResolver(refs repos.ReferenceRepo, cache Cache, baseLog *logger.Logger) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{
		refs:  refs,
		cache: cache,
		log:   baseLog.With("component", "EntityResolver"),
	}
}

// Resolve maps the staged import's free-text composer/raga/tala names to
// canonical reference candidates. Empty raw fields resolve vacuously.
func (r *Resolver) Resolve(ctx context.Context, tx *gorm.DB, staged *types.ImportedKrithi) (*Result, error) {
	result := &Result{Resolved: true}
	var err error
	result.ComposerCandidates, err = r.resolveOne(ctx, tx, types.EntityComposer, staged.RawComposer)
	if err != nil {
		return nil, err
	}
	result.RagaCandidates, err = r.resolveOne(ctx, tx, types.EntityRaga, staged.RawRaga)
	if err != nil {
		return nil, err
	}
	result.TalaCandidates, err = r.resolveOne(ctx, tx, types.EntityTala, staged.RawTala)
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		raw        string
		candidates []Candidate
	}{
		{staged.RawComposer, result.ComposerCandidates},
		{staged.RawRaga, result.RagaCandidates},
		{staged.RawTala, result.TalaCandidates},
	} {
		if normalization.NormalizeName(pair.raw) == "" {
			continue
		}
		top := Top(pair.candidates)
		if top == nil || !top.Tier.AtLeast(types.ConfidenceMedium) {
			result.Resolved = false
		}
	}
	return result, nil
}

func (r *Resolver) resolveOne(ctx context.Context, tx *gorm.DB, entityType types.EntityType, rawName string) ([]Candidate, error) {
	normalized := normalization.NormalizeName(rawName)
	if normalized == "" {
		return nil, nil
	}

	if id, ok := r.cache.Get(ctx, entityType, normalized); ok {
		return []Candidate{{ID: id, Name: rawName, Score: exactMatchScore, Tier: types.ConfidenceHigh}}, nil
	}

	if alias, err := r.refs.FindAlias(ctx, tx, entityType, normalized); err != nil {
		return nil, err
	} else if alias != nil {
		r.cache.Set(ctx, entityType, normalized, alias.CanonicalID)
		return []Candidate{{ID: alias.CanonicalID, Name: alias.Alias, Score: aliasMatchScore, Tier: types.ConfidenceHigh}}, nil
	}

	if exact, err := r.refs.FindByNormalizedName(ctx, tx, entityType, normalized); err != nil {
		return nil, err
	} else if exact != nil {
		r.cache.Set(ctx, entityType, normalized, exact.ID)
		return []Candidate{{ID: exact.ID, Name: exact.Name, Score: exactMatchScore, Tier: types.ConfidenceHigh}}, nil
	}

	entries, err := r.refs.ListAll(ctx, tx, entityType)
	if err != nil {
		return nil, err
	}
	var candidates []Candidate
	for _, entry := range entries {
		sim := normalization.Similarity(normalized, entry.NormalizedName)
		if sim < fuzzyFloor {
			continue
		}
		score := sim * 100
		candidates = append(candidates, Candidate{
			ID:    entry.ID,
			Name:  entry.Name,
			Score: score,
			Tier:  TierForScore(score),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	// Fuzzy results are never cached; only unambiguous mappings are.
	return candidates, nil
}

// Invalidate evicts cached mappings for one reference row, for use by the
// reference-data write path.
func (r *Resolver) Invalidate(ctx context.Context, entityType types.EntityType, canonicalID uuid.UUID) {
	r.cache.Invalidate(ctx, entityType, canonicalID)
}
