package approval

import (
	"fmt"

	"github.com/sangitam/krithi-backend/internal/ingestion/dedupe"
	"github.com/sangitam/krithi-backend/internal/ingestion/resolve"
	"github.com/sangitam/krithi-backend/internal/types"
)

// Config is the auto-approval policy. Scores are in [0,1]; an out-of-range
// or inconsistent config is a construction error, never silently clamped.
type Config struct {
	MinQualityScore       float64              `yaml:"min_quality_score"`
	AcceptedQualityTiers  []string             `yaml:"accepted_quality_tiers"`
	RequireTitleOrLyrics  bool                 `yaml:"require_title_or_lyrics"`
	MinComposerConfidence types.ConfidenceTier `yaml:"min_composer_confidence"`
	MinRagaConfidence     types.ConfidenceTier `yaml:"min_raga_confidence"`
	MinTalaConfidence     types.ConfidenceTier `yaml:"min_tala_confidence"`
	RequireRagaMatch      bool                 `yaml:"require_raga_match"`
	// MaxDuplicateConfidence is the strongest duplicate match tolerated;
	// anything above it blocks auto-approval.
	MaxDuplicateConfidence types.ConfidenceTier `yaml:"max_duplicate_confidence"`
}

func DefaultConfig() Config {
	return Config{
		MinQualityScore:        0.75,
		AcceptedQualityTiers:   []string{"HIGH", "MEDIUM"},
		RequireTitleOrLyrics:   true,
		MinComposerConfidence:  types.ConfidenceHigh,
		MinRagaConfidence:      types.ConfidenceHigh,
		MinTalaConfidence:      types.ConfidenceMedium,
		RequireRagaMatch:       true,
		MaxDuplicateConfidence: types.ConfidenceMedium,
	}
}

// Decision explains one gate evaluation. Reason is empty iff Approved.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Gate is the deterministic auto-approval policy. Construction validates the
// config; evaluation is a pure function of its inputs.
type Gate struct {
	cfg Config
}

func NewGate(cfg Config) (*Gate, error) {
	if cfg.MinQualityScore < 0 || cfg.MinQualityScore > 1 {
		return nil, fmt.Errorf("min_quality_score must be in [0,1], got %v", cfg.MinQualityScore)
	}
	if len(cfg.AcceptedQualityTiers) == 0 {
		return nil, fmt.Errorf("accepted_quality_tiers must not be empty")
	}
	for _, tier := range []types.ConfidenceTier{cfg.MinComposerConfidence, cfg.MinRagaConfidence, cfg.MinTalaConfidence, cfg.MaxDuplicateConfidence} {
		if !tier.Valid() {
			return nil, fmt.Errorf("invalid confidence tier %q in auto-approval config", tier)
		}
	}
	return &Gate{cfg: cfg}, nil
}

// Evaluate applies the ordered checks: import status, quality, minimal
// metadata, per-entity resolution confidence, then duplicates. The first
// failing check wins; it never mutates anything.
func (g *Gate) Evaluate(staged *types.ImportedKrithi, resolution *resolve.Result, duplicates *dedupe.Result) Decision {
	if staged == nil {
		return Decision{Reason: "no staged import"}
	}
	if staged.ImportStatus != types.ImportPending {
		return Decision{Reason: fmt.Sprintf("import status is %s, not PENDING", staged.ImportStatus)}
	}

	if staged.QualityScore == nil || *staged.QualityScore < g.cfg.MinQualityScore {
		return Decision{Reason: "quality score below threshold"}
	}
	tierAccepted := false
	for _, t := range g.cfg.AcceptedQualityTiers {
		if staged.QualityTier == t {
			tierAccepted = true
			break
		}
	}
	if !tierAccepted {
		return Decision{Reason: fmt.Sprintf("quality tier %q not accepted", staged.QualityTier)}
	}

	if g.cfg.RequireTitleOrLyrics && staged.RawTitle == "" && staged.RawLyrics == "" {
		return Decision{Reason: "missing both title and lyrics"}
	}

	if resolution == nil {
		return Decision{Reason: "no resolution data"}
	}
	if reason := checkConfidence("composer", staged.RawComposer, resolution.ComposerCandidates, g.cfg.MinComposerConfidence); reason != "" {
		return Decision{Reason: reason}
	}
	if g.cfg.RequireRagaMatch {
		if reason := checkConfidence("raga", staged.RawRaga, resolution.RagaCandidates, g.cfg.MinRagaConfidence); reason != "" {
			return Decision{Reason: reason}
		}
	}
	if reason := checkConfidence("tala", staged.RawTala, resolution.TalaCandidates, g.cfg.MinTalaConfidence); reason != "" {
		return Decision{Reason: reason}
	}

	if duplicates != nil {
		for _, m := range duplicates.Matches {
			if m.Confidence == types.ConfidenceHigh || !g.cfg.MaxDuplicateConfidence.AtLeast(m.Confidence) {
				return Decision{Reason: fmt.Sprintf("duplicate candidate %s at %s confidence", m.KrithiID, m.Confidence)}
			}
		}
	}

	return Decision{Approved: true}
}

func checkConfidence(field, raw string, candidates []resolve.Candidate, min types.ConfidenceTier) string {
	if raw == "" {
		// Nothing to resolve; the metadata-presence checks decide whether
		// that matters.
		return ""
	}
	top := resolve.Top(candidates)
	if top == nil {
		return fmt.Sprintf("%s %q did not resolve", field, raw)
	}
	if !top.Tier.AtLeast(min) {
		return fmt.Sprintf("%s resolution confidence %s below required %s", field, top.Tier, min)
	}
	return ""
}
