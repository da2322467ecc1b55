package parser

import "strings"

// Policy holds the heuristic line filters. These are tuned per source family,
// not domain invariants, so they are data the caller can override (the app
// loads them from the ingestion policy file).
type Policy struct {
	// BoilerplatePatterns drops navigation/footer/pagination chrome. Matched
	// as lowercase substrings.
	BoilerplatePatterns []string `yaml:"boilerplate_patterns"`
	// MetaKeywords classify a line as metadata rather than lyric body.
	MetaKeywords []string `yaml:"meta_keywords"`
}

func DefaultPolicy() Policy {
	return Policy{
		BoilerplatePatterns: []string{
			"posted by",
			"labels:",
			"newer post",
			"older post",
			"blog archive",
			"subscribe to",
			"no comments",
			"comments:",
			"search this blog",
			"click here",
			"all rights reserved",
			"home page",
			"next page",
			"previous page",
			"page 1 of",
			"share this",
		},
		MetaKeywords: []string{
			"raga:",
			"ragam:",
			"raagam:",
			"tala:",
			"talam:",
			"taalam:",
			"composer:",
			"composed by",
			"title:",
			"deity:",
			"temple:",
			"language:",
			"kriti:",
			"krithi:",
		},
	}
}

func (p Policy) isBoilerplate(line string) bool {
	lower := strings.ToLower(line)
	for _, pat := range p.BoilerplatePatterns {
		if pat != "" && strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// isMetaLine is true for lines carrying raga/tala/composer/title keywords,
// except lines that already look like a ragamalika raga-change header.
func (p Policy) isMetaLine(line string) bool {
	if _, ok := matchRagaChange(line); ok {
		return false
	}
	lower := strings.ToLower(line)
	for _, kw := range p.MetaKeywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	if _, ok := matchTitleHint(line); ok {
		return true
	}
	return false
}
