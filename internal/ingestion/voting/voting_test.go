package voting

import (
	"testing"

	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/types"
)

func TestScorePrefersStructuralCompleteness(t *testing.T) {
	w := DefaultWeights()
	complete := Candidate{
		Label:    "complete",
		Sections: []parser.SectionType{parser.SectionPallavi, parser.SectionAnupallavi, parser.SectionCharanam},
	}
	technical := Candidate{
		Label: "technical",
		Sections: []parser.SectionType{
			parser.SectionPallavi,
			parser.SectionChittaswaram,
			parser.SectionMadhyamaKala,
			parser.SectionMuktayiSwara,
			parser.SectionEttugadaSwara,
			parser.SectionSwaraSahitya,
		},
	}
	completeScore := w.Score(complete)
	technicalScore := w.Score(technical)
	if completeScore <= technicalScore {
		t.Fatalf("three primary sections scored %.2f, expected above the section-padded %.2f", completeScore, technicalScore)
	}

	decision := PickBestStructure([]Candidate{technical, complete}, w)
	if decision.WinnerIdx != 1 {
		t.Fatalf("winner = %d, want the structurally complete candidate", decision.WinnerIdx)
	}
}

func TestPickBestStructureIsDeterministic(t *testing.T) {
	w := DefaultWeights()
	candidates := []Candidate{
		{Label: "a", Sections: []parser.SectionType{parser.SectionPallavi, parser.SectionAnupallavi, parser.SectionCharanam}},
		{Label: "b", Sections: []parser.SectionType{parser.SectionPallavi, parser.SectionCharanam}},
		{Label: "c", Sections: []parser.SectionType{parser.SectionPallavi, parser.SectionAnupallavi, parser.SectionCharanam}},
	}
	first := PickBestStructure(candidates, w)
	for i := 0; i < 10; i++ {
		again := PickBestStructure(candidates, w)
		if again.WinnerIdx != first.WinnerIdx || again.Consensus != first.Consensus {
			t.Fatalf("run %d: got winner=%d consensus=%s, want winner=%d consensus=%s",
				i, again.WinnerIdx, again.Consensus, first.WinnerIdx, first.Consensus)
		}
	}
}

func TestPickBestStructureTieBreaks(t *testing.T) {
	w := DefaultWeights()
	// Identical shape and score: the earlier index wins, an authority
	// flag breaks an exact tie.
	same := []parser.SectionType{parser.SectionPallavi, parser.SectionAnupallavi}
	decision := PickBestStructure([]Candidate{
		{Label: "plain", Sections: same},
		{Label: "authority", Sections: same},
	}, w)
	// The authority candidate carries the Authority bonus, so it scores
	// higher outright.
	if decision.WinnerIdx != 0 {
		t.Fatalf("equal candidates: winner = %d, want first", decision.WinnerIdx)
	}

	decision = PickBestStructure([]Candidate{
		{Label: "plain", Sections: same},
		{Label: "authority", Sections: same, Authority: true},
	}, w)
	if decision.WinnerIdx != 1 {
		t.Fatalf("authority bonus: winner = %d, want authority candidate", decision.WinnerIdx)
	}
}

func TestClassifyConsensusTypes(t *testing.T) {
	w := DefaultWeights()
	pa := []parser.SectionType{parser.SectionPallavi, parser.SectionAnupallavi}
	pac := []parser.SectionType{parser.SectionPallavi, parser.SectionAnupallavi, parser.SectionCharanam}

	cases := []struct {
		name       string
		candidates []Candidate
		consensus  types.ConsensusType
		confidence types.ConfidenceTier
		dissenting int
	}{
		{
			name:       "single_source",
			candidates: []Candidate{{Label: "only", Sections: pac}},
			consensus:  types.ConsensusSingleSource,
			confidence: types.ConfidenceMedium,
		},
		{
			name: "unanimous",
			candidates: []Candidate{
				{Label: "a", Sections: pac},
				{Label: "b", Sections: pac},
			},
			consensus:  types.ConsensusUnanimous,
			confidence: types.ConfidenceHigh,
		},
		{
			name: "majority",
			candidates: []Candidate{
				{Label: "a", Sections: pac},
				{Label: "b", Sections: pac},
				{Label: "c", Sections: pa},
			},
			consensus:  types.ConsensusMajority,
			confidence: types.ConfidenceHigh,
			dissenting: 1,
		},
		{
			name: "empty_candidates_ignored",
			candidates: []Candidate{
				{Label: "empty"},
				{Label: "real", Sections: pac},
			},
			consensus:  types.ConsensusSingleSource,
			confidence: types.ConfidenceMedium,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := PickBestStructure(tc.candidates, w)
			if d.Consensus != tc.consensus {
				t.Fatalf("consensus = %s, want %s", d.Consensus, tc.consensus)
			}
			if d.Confidence != tc.confidence {
				t.Fatalf("confidence = %s, want %s", d.Confidence, tc.confidence)
			}
			if len(d.Dissenting) != tc.dissenting {
				t.Fatalf("dissenting = %v, want %d entries", d.Dissenting, tc.dissenting)
			}
		})
	}
}

func TestPickBestStructureNoCandidates(t *testing.T) {
	d := PickBestStructure(nil, DefaultWeights())
	if d.WinnerIdx != -1 {
		t.Fatalf("WinnerIdx = %d, want -1", d.WinnerIdx)
	}
	d = PickBestStructure([]Candidate{{Label: "empty"}}, DefaultWeights())
	if d.WinnerIdx != -1 {
		t.Fatalf("all-empty candidates: WinnerIdx = %d, want -1", d.WinnerIdx)
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights invalid: %v", err)
	}
	bad := Weights{Primary: -1, Technical: 0.5, PerSection: 0.1, Authority: 0.5}
	if err := bad.Validate(); err == nil {
		t.Fatal("negative primary weight accepted")
	}
}
