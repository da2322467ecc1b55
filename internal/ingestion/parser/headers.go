package parser

import (
	"regexp"
	"strings"
)

// Header detection is table-driven: every (script, label, tokens) tuple below
// compiles to one rule, so covering a new script or spelling is a data change.

type headerLabel struct {
	kind     BlockKind
	section  SectionType
	language Language
	aux      AuxLabel
}

type headerRule struct {
	script string
	label  headerLabel
	re     *regexp.Regexp
}

type sectionTokenSpec struct {
	section SectionType
	script  string
	tokens  []string
	abbrevs []string
}

// Latin abbreviations only count as headers when followed by punctuation
// (P., C:, A)) or standing alone; bare words like "a" would otherwise
// swallow lyric lines.
var sectionTokenTable = []sectionTokenSpec{
	{SectionSamashtiCharanam, "latin", []string{"samashti charanam", "samashthi charanam", "samasti charanam", "samashti charana"}, nil},
	{SectionVilomaChittaswaram, "latin", []string{"viloma chittaswaram", "viloma chittaswara", "viloma chitta swaram"}, nil},
	{SectionAnupallavi, "latin", []string{"anupallavi", "anu pallavi"}, []string{"ap", "a.p", "a"}},
	{SectionPallavi, "latin", []string{"pallavi"}, []string{"p"}},
	{SectionCharanam, "latin", []string{"charanam", "charana", "caranam", "carana"}, []string{"ch", "c"}},
	{SectionChittaswaram, "latin", []string{"chittaswaram", "chittaswara", "chitta swaram", "chittaswaras"}, nil},
	{SectionMadhyamaKala, "latin", []string{"madhyama kala", "madhyamakala", "madhyama kala sahityam", "madhyamakala sahityam"}, nil},
	{SectionMuktayiSwara, "latin", []string{"muktayi swara", "muktayiswara", "muktayi swaram", "muktaayi swara"}, nil},
	{SectionEttugadaSwara, "latin", []string{"ettugada swara", "ettugada swaram", "ettugada swaras"}, nil},
	{SectionEttugadaSahitya, "latin", []string{"ettugada sahitya", "ettugada sahityam"}, nil},
	{SectionSwaraSahitya, "latin", []string{"swara sahitya", "swara sahityam", "swarasahitya"}, nil},
	{SectionAnubandha, "latin", []string{"anubandha", "anubandham"}, nil},

	{SectionSamashtiCharanam, "devanagari", []string{"समष्टि चरणम्", "समष्टि चरण"}, nil},
	{SectionAnupallavi, "devanagari", []string{"अनुपल्लवि", "अनुपल्लवी"}, nil},
	{SectionPallavi, "devanagari", []string{"पल्लवि", "पल्लवी"}, nil},
	{SectionCharanam, "devanagari", []string{"चरणम्", "चरणं", "चरण"}, nil},

	{SectionAnupallavi, "tamil", []string{"அனுபல்லவி"}, nil},
	{SectionPallavi, "tamil", []string{"பல்லவி"}, nil},
	{SectionCharanam, "tamil", []string{"சரணம்"}, nil},

	{SectionSamashtiCharanam, "telugu", []string{"సమష్టి చరణం", "సమష్టి చరణము"}, nil},
	{SectionAnupallavi, "telugu", []string{"అనుపల్లవి"}, nil},
	{SectionPallavi, "telugu", []string{"పల్లవి"}, nil},
	{SectionCharanam, "telugu", []string{"చరణం", "చరణము"}, nil},
	{SectionChittaswaram, "telugu", []string{"చిట్టస్వరం"}, nil},

	{SectionSamashtiCharanam, "kannada", []string{"ಸಮಷ್ಟಿ ಚರಣ"}, nil},
	{SectionAnupallavi, "kannada", []string{"ಅನುಪಲ್ಲವಿ"}, nil},
	{SectionPallavi, "kannada", []string{"ಪಲ್ಲವಿ"}, nil},
	{SectionCharanam, "kannada", []string{"ಚರಣಂ", "ಚರಣ"}, nil},

	{SectionAnupallavi, "malayalam", []string{"അനുപല്ലവി"}, nil},
	{SectionPallavi, "malayalam", []string{"പല്ലവി"}, nil},
	{SectionCharanam, "malayalam", []string{"ചരണം"}, nil},
}

type languageTokenSpec struct {
	language Language
	script   string
	tokens   []string
}

var languageTokenTable = []languageTokenSpec{
	{LangEnglish, "latin", []string{"english"}},
	{LangSanskrit, "latin", []string{"sanskrit", "devanagari"}},
	{LangTamil, "latin", []string{"tamil"}},
	{LangTelugu, "latin", []string{"telugu"}},
	{LangKannada, "latin", []string{"kannada"}},
	{LangMalayalam, "latin", []string{"malayalam"}},
	{LangHindi, "latin", []string{"hindi"}},
	{LangLatin, "latin", []string{"latin", "roman", "transliteration", "diacritic"}},
	{LangSanskrit, "devanagari", []string{"संस्कृत", "देवनागरी"}},
	{LangHindi, "devanagari", []string{"हिन्दी", "हिंदी"}},
	{LangTamil, "tamil", []string{"தமிழ்"}},
	{LangTelugu, "telugu", []string{"తెలుగు"}},
	{LangKannada, "kannada", []string{"ಕನ್ನಡ"}},
	{LangMalayalam, "malayalam", []string{"മലയാളം"}},
}

type auxTokenSpec struct {
	aux    AuxLabel
	script string
	tokens []string
}

var auxTokenTable = []auxTokenSpec{
	{AuxWordDivision, "latin", []string{"word division", "word-division", "padachcheda", "pada chheda"}},
	{AuxMeaning, "latin", []string{"meaning", "meanings", "translation"}},
	{AuxGist, "latin", []string{"gist", "summary"}},
	{AuxNotes, "latin", []string{"notes", "note"}},
	{AuxVariations, "latin", []string{"variations", "pathantara", "pathantaram"}},
}

// headerSeparator is what may follow a header token on the same line; any
// remaining text becomes the first line of the new block.
const headerSeparator = `[:.)\]\-–—]`

func compileTokenPattern(tokens []string) *regexp.Regexp {
	quoted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		q := regexp.QuoteMeta(t)
		// allow any run of whitespace where the token has a space
		q = strings.ReplaceAll(q, ` `, `\s+`)
		quoted = append(quoted, q)
	}
	alt := strings.Join(quoted, "|")
	return regexp.MustCompile(`(?i)^\s*(?:` + alt + `)(?:\s*$|\s*` + headerSeparator + `+\s*(.*)$|\s+(\d.*)$)`)
}

func compileAbbrevPattern(abbrevs []string) *regexp.Regexp {
	quoted := make([]string, 0, len(abbrevs))
	for _, t := range abbrevs {
		quoted = append(quoted, regexp.QuoteMeta(t))
	}
	alt := strings.Join(quoted, "|")
	return regexp.MustCompile(`(?i)^\s*(?:` + alt + `)\s*(?:$|` + headerSeparator + `+\s*(.*)$)`)
}

type HeaderMatcher struct {
	rules []headerRule
}

func NewHeaderMatcher() *HeaderMatcher {
	var rules []headerRule
	for _, spec := range languageTokenTable {
		rules = append(rules, headerRule{
			script: spec.script,
			label:  headerLabel{kind: BlockLanguage, language: spec.language},
			re:     compileTokenPattern(spec.tokens),
		})
	}
	for _, spec := range auxTokenTable {
		rules = append(rules, headerRule{
			script: spec.script,
			label:  headerLabel{kind: BlockAux, aux: spec.aux},
			re:     compileTokenPattern(spec.tokens),
		})
	}
	for _, spec := range sectionTokenTable {
		rules = append(rules, headerRule{
			script: spec.script,
			label:  headerLabel{kind: BlockSection, section: spec.section},
			re:     compileTokenPattern(spec.tokens),
		})
	}
	// Abbreviations last so full words win.
	for _, spec := range sectionTokenTable {
		if len(spec.abbrevs) == 0 {
			continue
		}
		rules = append(rules, headerRule{
			script: spec.script,
			label:  headerLabel{kind: BlockSection, section: spec.section},
			re:     compileAbbrevPattern(spec.abbrevs),
		})
	}
	return &HeaderMatcher{rules: rules}
}

// Match reports whether line is a header; rest is any text after the header
// token on the same line.
func (m *HeaderMatcher) Match(line string) (headerLabel, string, bool) {
	for _, rule := range m.rules {
		groups := rule.re.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		rest := ""
		for _, g := range groups[1:] {
			if g != "" {
				rest = strings.TrimSpace(g)
				break
			}
		}
		return rule.label, rest, true
	}
	return headerLabel{}, "", false
}

var ragaChangeRe = regexp.MustCompile(`(?i)^\s*(viloma\s*[-–]\s*)?([\p{L}][\p{L}' .]*?)\s+r[aā]gam?\s*$`)

// matchRagaChange detects embedded ragamalika markers of the shape
// "<raga> rAgaM" or "vilOma - <raga> rAgaM".
func matchRagaChange(line string) (string, bool) {
	groups := ragaChangeRe.FindStringSubmatch(line)
	if groups == nil {
		return "", false
	}
	label := strings.TrimSpace(groups[2])
	if groups[1] != "" {
		label = "viloma - " + label
	}
	return label, true
}

var (
	titleRagaTalaRe = regexp.MustCompile(`(?i)^(.+?)\s*[-–]\s*r[aā]gam?\s+(.+?)\s*[-–]\s*t[aā][lḷ]am?\s+(.+)$`)
	titleRagaRe     = regexp.MustCompile(`(?i)^(.+?)\s*[-–]\s*r[aā]gam?\s+(.+)$`)
)

// matchTitleHint pulls "<title> - rAgaM <raga> - tALaM <tala>" hints out of a
// meta line, with a tala-less fallback.
func matchTitleHint(line string) (MetadataHints, bool) {
	if groups := titleRagaTalaRe.FindStringSubmatch(line); groups != nil {
		return MetadataHints{
			Title: strings.TrimSpace(groups[1]),
			Raga:  strings.TrimSpace(groups[2]),
			Tala:  strings.TrimSpace(groups[3]),
		}, true
	}
	if groups := titleRagaRe.FindStringSubmatch(line); groups != nil {
		return MetadataHints{
			Title: strings.TrimSpace(groups[1]),
			Raga:  strings.TrimSpace(groups[2]),
		}, true
	}
	return MetadataHints{}, false
}
