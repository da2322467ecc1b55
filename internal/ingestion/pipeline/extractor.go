package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/sangitam/krithi-backend/internal/ingestion/htmltext"
	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/types"
)

const ExtractorVersion = "structural-v2"

// ExtractionPayload is the result_payload stored on a DONE extraction task.
type ExtractionPayload struct {
	Title      string                `json:"title,omitempty"`
	Raga       string                `json:"raga,omitempty"`
	Tala       string                `json:"tala,omitempty"`
	Composer   string                `json:"composer,omitempty"`
	Sections   []parser.Section      `json:"sections"`
	Variants   []parser.LyricVariant `json:"variants,omitempty"`
	MetaLines  []string              `json:"meta_lines,omitempty"`
	Confidence float64               `json:"confidence"`
}

func (p *ExtractionPayload) ToJSON() (datatypes.JSON, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func PayloadFromJSON(raw datatypes.JSON) (*ExtractionPayload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("extraction has no result payload")
	}
	var payload ExtractionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode result payload: %w", err)
	}
	return &payload, nil
}

// SectionTypes returns the payload's ordered structural labels.
func (p *ExtractionPayload) SectionTypes() []parser.SectionType {
	out := make([]parser.SectionType, 0, len(p.Sections))
	for _, s := range p.Sections {
		out = append(out, s.Type)
	}
	return out
}

// LyricText flattens the payload's sections into lyric text.
func (p *ExtractionPayload) LyricText() string {
	var out string
	for _, s := range p.Sections {
		for _, line := range s.Lines {
			if out != "" {
				out += "\n"
			}
			out += line
		}
	}
	return out
}

// Extractor runs one extraction task: fetch clean text, parse structure,
// grade confidence. It holds no queue state; callers own status transitions.
type Extractor struct {
	fetcher htmltext.Fetcher
	parser  *parser.Parser
	log     *logger.Logger
}

func NewExtractor(fetcher htmltext.Fetcher, p *parser.Parser, baseLog *logger.Logger) *Extractor {
	if p == nil {
		p = parser.NewDefault()
	}
	return &Extractor{
		fetcher: fetcher,
		parser:  p,
		log:     baseLog.With("component", "Extractor"),
	}
}

type ExtractionRun struct {
	Payload    *ExtractionPayload
	DurationMs int64
}

func (e *Extractor) Run(ctx context.Context, task *types.ExtractionTask) (*ExtractionRun, error) {
	start := time.Now()
	text, err := e.fetcher.FetchText(ctx, task.SourceURL, task.SourceFormat)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	parsed := e.parser.Parse(text)
	payload := &ExtractionPayload{
		Title:     parsed.Hints.Title,
		Raga:      parsed.Hints.Raga,
		Tala:      parsed.Hints.Tala,
		Composer:  parsed.Hints.Composer,
		Sections:  parsed.Sections,
		Variants:  parsed.Variants,
		MetaLines: parsed.MetaLines,
	}
	payload.Confidence = GradeConfidence(payload)
	return &ExtractionRun{
		Payload:    payload,
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// GradeConfidence scores how complete an extraction looks, in [0,1].
// Structure dominates; metadata hints round it out.
func GradeConfidence(p *ExtractionPayload) float64 {
	score := 0.0
	hasPallavi := false
	primary := 0
	for _, s := range p.Sections {
		if s.Type == parser.SectionPallavi {
			hasPallavi = true
		}
		if s.Type.Primary() {
			primary++
		}
	}
	if len(p.Sections) > 0 {
		score += 0.25
	}
	if hasPallavi {
		score += 0.15
	}
	if primary >= 2 {
		score += 0.15
	}
	if p.Title != "" {
		score += 0.2
	}
	if p.Raga != "" {
		score += 0.15
	}
	if p.Tala != "" {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

// QualityTier buckets a quality score the way the review UI groups imports.
func QualityTier(score float64) string {
	switch {
	case score >= 0.8:
		return "HIGH"
	case score >= 0.5:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
