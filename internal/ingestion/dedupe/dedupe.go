package dedupe

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/normalization"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

// titleFloor is the minimum title similarity for a row to count as a
// duplicate candidate at all.
const titleFloor = 0.75

// Match is one suspected duplicate of a staged import. Matches gate
// auto-approval; nothing here ever merges records.
type Match struct {
	KrithiID   uuid.UUID            `json:"krithi_id"`
	Title      string               `json:"title"`
	Reason     string               `json:"reason"`
	Confidence types.ConfidenceTier `json:"confidence"`
}

type Result struct {
	Matches []Match `json:"matches"`
}

// HighestConfidence returns the strongest match tier, or "" if none.
func (r Result) HighestConfidence() types.ConfidenceTier {
	var out types.ConfidenceTier
	for _, m := range r.Matches {
		if out == "" || m.Confidence.AtLeast(out) {
			out = m.Confidence
		}
	}
	return out
}

type Detector struct {
	krithis repos.KrithiRepo
	log     *logger.Logger
}

func NewDetector(krithis repos.KrithiRepo, baseLog *logger.Logger) *Detector {
	return &Detector{
		krithis: krithis,
		log:     baseLog.With("component", "DuplicateDetector"),
	}
}

// FindDuplicates compares the staged import's normalized title against the
// catalog and grades each hit by how much of the composer/raga combination
// also agrees.
func (d *Detector) FindDuplicates(ctx context.Context, tx *gorm.DB, staged *types.ImportedKrithi, resolution *ResolutionView) (*Result, error) {
	result := &Result{}
	normalizedTitle := normalization.NormalizeName(staged.RawTitle)
	if normalizedTitle == "" {
		return result, nil
	}

	exact, err := d.krithis.FindByNormalizedTitle(ctx, tx, normalizedTitle)
	if err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	for _, k := range exact {
		seen[k.ID] = true
		result.Matches = append(result.Matches, d.grade(k, staged, resolution, 1.0))
	}

	near, err := d.krithis.SearchByTitle(ctx, tx, firstToken(normalizedTitle), 50)
	if err != nil {
		return nil, err
	}
	for _, k := range near {
		if seen[k.ID] {
			continue
		}
		sim := normalization.Similarity(normalizedTitle, k.NormalizedTitle)
		if sim < titleFloor {
			continue
		}
		seen[k.ID] = true
		result.Matches = append(result.Matches, d.grade(k, staged, resolution, sim))
	}
	return result, nil
}

// ResolutionView is the slice of entity resolution dedup needs: the resolved
// IDs it can compare against catalog rows.
type ResolutionView struct {
	ComposerID *uuid.UUID
	RagaID     *uuid.UUID
}

func (d *Detector) grade(k *types.Krithi, staged *types.ImportedKrithi, resolution *ResolutionView, titleSim float64) Match {
	match := Match{KrithiID: k.ID, Title: k.Title}

	composerAgrees := false
	ragaAgrees := false
	if resolution != nil {
		if resolution.ComposerID != nil && k.ComposerID != nil && *resolution.ComposerID == *k.ComposerID {
			composerAgrees = true
		}
		if resolution.RagaID != nil && k.RagaID != nil && *resolution.RagaID == *k.RagaID {
			ragaAgrees = true
		}
	}

	switch {
	case titleSim >= 1.0 && composerAgrees && ragaAgrees:
		match.Confidence = types.ConfidenceHigh
		match.Reason = "same title, composer and raga"
	case titleSim >= 1.0 && (composerAgrees || ragaAgrees):
		match.Confidence = types.ConfidenceHigh
		match.Reason = "same title with composer or raga agreement"
	case titleSim >= 1.0:
		match.Confidence = types.ConfidenceMedium
		match.Reason = "same normalized title"
	case composerAgrees && ragaAgrees:
		match.Confidence = types.ConfidenceMedium
		match.Reason = "similar title, same composer and raga"
	default:
		match.Confidence = types.ConfidenceLow
		match.Reason = "similar title"
	}
	return match
}

func firstToken(normalized string) string {
	for i, r := range normalized {
		if r == ' ' {
			return normalized[:i]
		}
	}
	return normalized
}
