package parser

import (
	"strings"
)

// Parser segments normalized raw text into labeled structural blocks and
// per-language lyric variants. It is pure and never fails: garbage in, empty
// Result out.
type Parser struct {
	matcher *HeaderMatcher
	policy  Policy
}

func New(policy Policy) *Parser {
	return &Parser{
		matcher: NewHeaderMatcher(),
		policy:  policy,
	}
}

func NewDefault() *Parser {
	return New(DefaultPolicy())
}

func (p *Parser) Parse(raw string) Result {
	var result Result
	lines := normalizeLines(raw)
	if len(lines) == 0 {
		return result
	}

	var bodyLines []string
	for _, line := range lines {
		if p.policy.isBoilerplate(line) {
			continue
		}
		if p.policy.isMetaLine(line) {
			result.MetaLines = append(result.MetaLines, line)
			continue
		}
		bodyLines = append(bodyLines, line)
	}

	result.Hints = p.extractHints(result.MetaLines)

	blocks, preamble := p.groupBlocks(bodyLines)
	result.Preamble = preamble
	result.Sections = flattenSections(blocks)
	result.Variants = extractLyricVariants(blocks)
	return result
}

// normalizeLines unescapes literal "\n" sequences left by scraped JSON,
// normalizes line endings, and drops empty lines.
func normalizeLines(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	s := strings.ReplaceAll(raw, `\r\n`, "\n")
	s = strings.ReplaceAll(s, `\n`, "\n")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	var out []string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// groupBlocks scans body lines for headers. Lines before the first header are
// returned as preamble rather than forced into a fabricated section.
func (p *Parser) groupBlocks(lines []string) ([]Block, []string) {
	var blocks []Block
	var preamble []string
	var current *Block
	for _, line := range lines {
		label, rest, ok := p.matcher.Match(line)
		if ok {
			blocks = append(blocks, Block{
				Kind:     label.kind,
				Section:  label.section,
				Language: label.language,
				Aux:      label.aux,
			})
			current = &blocks[len(blocks)-1]
			if rest != "" {
				current.Lines = append(current.Lines, rest)
			}
			continue
		}
		if current == nil {
			preamble = append(preamble, line)
			continue
		}
		current.Lines = append(current.Lines, line)
	}
	return blocks, preamble
}

// flattenSections turns section blocks into the ordered section list,
// sub-splitting on embedded ragamalika raga-change markers.
func flattenSections(blocks []Block) []Section {
	var out []Section
	for _, block := range blocks {
		if block.Kind != BlockSection {
			continue
		}
		out = append(out, splitRagamalika(block)...)
	}
	return out
}

func splitRagamalika(block Block) []Section {
	sections := []Section{{Type: block.Section}}
	idx := 0
	for _, line := range block.Lines {
		if label, ok := matchRagaChange(line); ok {
			// Only open a sub-section if the current one has content;
			// a marker on the first line names the whole section.
			if len(sections[idx].Lines) == 0 {
				sections[idx].SubLabel = label
				continue
			}
			sections = append(sections, Section{Type: block.Section, SubLabel: label})
			idx++
			continue
		}
		sections[idx].Lines = append(sections[idx].Lines, line)
	}
	// Drop a trailing empty sub-section left by a marker with no lyrics.
	var out []Section
	for _, s := range sections {
		if len(s.Lines) == 0 && s.SubLabel == "" {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 && len(sections) > 0 {
		out = sections[:1]
	}
	return out
}

// extractLyricVariants groups language-headed blocks into per-language lyric
// variants. Aux blocks (meaning/notes/gist/word-division/variations) end the
// current variant; sections before any language header belong to none.
func extractLyricVariants(blocks []Block) []LyricVariant {
	var variants []LyricVariant
	var current *LyricVariant
	for _, block := range blocks {
		switch block.Kind {
		case BlockLanguage:
			variants = append(variants, LyricVariant{Language: block.Language})
			current = &variants[len(variants)-1]
		case BlockAux:
			current = nil
		case BlockSection:
			if current == nil {
				continue
			}
			current.Sections = append(current.Sections, splitRagamalika(block)...)
		}
	}
	// A language header with no sections after it carries no lyric variant.
	var out []LyricVariant
	for _, v := range variants {
		if len(v.Sections) == 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (p *Parser) extractHints(metaLines []string) MetadataHints {
	var hints MetadataHints
	for _, line := range metaLines {
		if h, ok := matchTitleHint(line); ok {
			if hints.Title == "" {
				hints.Title = h.Title
			}
			if hints.Raga == "" {
				hints.Raga = h.Raga
			}
			if hints.Tala == "" {
				hints.Tala = h.Tala
			}
			continue
		}
		lower := strings.ToLower(line)
		if hints.Raga == "" {
			hints.Raga = valueAfterKeyword(line, lower, "raga:", "ragam:", "raagam:")
		}
		if hints.Tala == "" {
			hints.Tala = valueAfterKeyword(line, lower, "tala:", "talam:", "taalam:")
		}
		if hints.Title == "" {
			hints.Title = valueAfterKeyword(line, lower, "title:", "kriti:", "krithi:")
		}
		if hints.Composer == "" {
			hints.Composer = valueAfterKeyword(line, lower, "composer:", "vaggeyakara:", "composed by")
		}
	}
	return hints
}

func valueAfterKeyword(line, lower string, keywords ...string) string {
	for _, kw := range keywords {
		i := strings.Index(lower, kw)
		if i < 0 {
			continue
		}
		return strings.TrimSpace(line[i+len(kw):])
	}
	return ""
}
