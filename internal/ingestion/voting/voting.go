package voting

import (
	"fmt"

	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/types"
)

// Weights are the scoring constants. The defaults are deliberate but not
// sacred, so they live in config rather than inline literals.
type Weights struct {
	Primary    float64 `yaml:"primary"`
	Technical  float64 `yaml:"technical"`
	PerSection float64 `yaml:"per_section"`
	Authority  float64 `yaml:"authority"`
}

func DefaultWeights() Weights {
	return Weights{
		Primary:    2.0,
		Technical:  0.5,
		PerSection: 0.1,
		Authority:  0.5,
	}
}

func (w Weights) Validate() error {
	if w.Primary < 0 || w.Technical < 0 || w.PerSection < 0 || w.Authority < 0 {
		return fmt.Errorf("voting weights must be non-negative: %+v", w)
	}
	return nil
}

// Candidate is one source's structural proposal.
type Candidate struct {
	Label     string
	Sections  []parser.SectionType
	Authority bool
}

// Score rewards structural completeness over raw length, with a fixed bonus
// (not an override) for a designated authoritative source.
func (w Weights) Score(c Candidate) float64 {
	var primary, technical int
	for _, s := range c.Sections {
		if s.Primary() {
			primary++
		}
		if s.Technical() {
			technical++
		}
	}
	score := w.Primary*float64(primary) +
		w.Technical*float64(technical) +
		w.PerSection*float64(len(c.Sections))
	if c.Authority {
		score += w.Authority
	}
	return score
}

// Decision is the outcome of one voting round.
type Decision struct {
	Winner     Candidate
	WinnerIdx  int
	Structure  []parser.SectionType
	Consensus  types.ConsensusType
	Confidence types.ConfidenceTier
	Dissenting []string
}

// PickBestStructure deterministically selects the consensus structure.
// Tie-break order: score, then raw section count, then the authority flag.
// All-empty candidate sets yield an empty structure.
func PickBestStructure(candidates []Candidate, w Weights) Decision {
	decision := Decision{WinnerIdx: -1, Consensus: types.ConsensusSingleSource, Confidence: types.ConfidenceLow}
	if len(candidates) == 0 {
		return decision
	}
	best := -1
	var bestScore float64
	for i, c := range candidates {
		if len(c.Sections) == 0 {
			continue
		}
		score := w.Score(c)
		if best < 0 || better(score, c, bestScore, candidates[best]) {
			best = i
			bestScore = score
		}
	}
	if best < 0 {
		return decision
	}
	decision.Winner = candidates[best]
	decision.WinnerIdx = best
	decision.Structure = candidates[best].Sections
	decision.Consensus, decision.Confidence, decision.Dissenting = classify(candidates, best)
	return decision
}

func better(score float64, c Candidate, bestScore float64, incumbent Candidate) bool {
	if score != bestScore {
		return score > bestScore
	}
	if len(c.Sections) != len(incumbent.Sections) {
		return len(c.Sections) > len(incumbent.Sections)
	}
	return c.Authority && !incumbent.Authority
}

// classify labels how the decision was reached and how confident it is.
func classify(candidates []Candidate, winner int) (types.ConsensusType, types.ConfidenceTier, []string) {
	var nonEmpty, agreeing int
	var dissenting []string
	winning := candidates[winner].Sections
	for i, c := range candidates {
		if len(c.Sections) == 0 {
			continue
		}
		nonEmpty++
		if sameStructure(c.Sections, winning) {
			agreeing++
		} else if i != winner {
			label := c.Label
			if label == "" {
				label = fmt.Sprintf("candidate-%d", i)
			}
			dissenting = append(dissenting, label)
		}
	}
	switch {
	case nonEmpty == 1:
		return types.ConsensusSingleSource, types.ConfidenceMedium, nil
	case agreeing == nonEmpty:
		return types.ConsensusUnanimous, types.ConfidenceHigh, nil
	case agreeing*2 > nonEmpty:
		return types.ConsensusMajority, types.ConfidenceHigh, dissenting
	case candidates[winner].Authority:
		return types.ConsensusAuthorityOverride, types.ConfidenceMedium, dissenting
	default:
		return types.ConsensusMajority, types.ConfidenceLow, dissenting
	}
}

func sameStructure(a, b []parser.SectionType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
