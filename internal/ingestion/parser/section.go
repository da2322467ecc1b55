package parser

// SectionType labels one structural block of a krithi.
type SectionType string

const (
	SectionPallavi            SectionType = "PALLAVI"
	SectionAnupallavi         SectionType = "ANUPALLAVI"
	SectionCharanam           SectionType = "CHARANAM"
	SectionSamashtiCharanam   SectionType = "SAMASHTI_CHARANAM"
	SectionChittaswaram       SectionType = "CHITTASWARAM"
	SectionMadhyamaKala       SectionType = "MADHYAMA_KALA"
	SectionMuktayiSwara       SectionType = "MUKTAYI_SWARA"
	SectionEttugadaSwara      SectionType = "ETTUGADA_SWARA"
	SectionEttugadaSahitya    SectionType = "ETTUGADA_SAHITYA"
	SectionSwaraSahitya       SectionType = "SWARA_SAHITYA"
	SectionAnubandha          SectionType = "ANUBANDHA"
	SectionVilomaChittaswaram SectionType = "VILOMA_CHITTASWARAM"
)

// Primary reports whether the section is one of the canonical structural
// sections of a kriti, as opposed to a technical/swara marker.
func (s SectionType) Primary() bool {
	switch s {
	case SectionPallavi, SectionAnupallavi, SectionCharanam, SectionSamashtiCharanam:
		return true
	}
	return false
}

func (s SectionType) Technical() bool {
	switch s {
	case SectionChittaswaram, SectionMadhyamaKala, SectionMuktayiSwara,
		SectionEttugadaSwara, SectionEttugadaSahitya, SectionSwaraSahitya,
		SectionAnubandha, SectionVilomaChittaswaram:
		return true
	}
	return false
}

// Language tags a lyric variant.
type Language string

const (
	LangEnglish   Language = "ENGLISH"
	LangSanskrit  Language = "SANSKRIT"
	LangTamil     Language = "TAMIL"
	LangTelugu    Language = "TELUGU"
	LangKannada   Language = "KANNADA"
	LangMalayalam Language = "MALAYALAM"
	LangHindi     Language = "HINDI"
	LangLatin     Language = "LATIN"
)

// AuxLabel marks non-lyric blocks. An aux block terminates the current lyric
// variant during variant extraction.
type AuxLabel string

const (
	AuxMeaning      AuxLabel = "MEANING"
	AuxNotes        AuxLabel = "NOTES"
	AuxGist         AuxLabel = "GIST"
	AuxWordDivision AuxLabel = "WORD_DIVISION"
	AuxVariations   AuxLabel = "VARIATIONS"
)

type BlockKind int

const (
	BlockSection BlockKind = iota
	BlockLanguage
	BlockAux
)

// Block is one header-delimited run of body lines.
type Block struct {
	Kind     BlockKind
	Section  SectionType
	Language Language
	Aux      AuxLabel
	Lines    []string
}

// Section is one labeled structural unit in the parse output. SubLabel is set
// for ragamalika sub-sections and carries the raga-change marker text.
type Section struct {
	Type     SectionType `json:"type"`
	SubLabel string      `json:"sub_label,omitempty"`
	Lines    []string    `json:"lines"`
}

// LyricVariant is one language's rendering of the composition.
type LyricVariant struct {
	Language Language  `json:"language"`
	Sections []Section `json:"sections"`
}

// MetadataHints are best-effort title/raga/tala hints pulled from meta lines.
type MetadataHints struct {
	Title    string `json:"title,omitempty"`
	Raga     string `json:"raga,omitempty"`
	Tala     string `json:"tala,omitempty"`
	Composer string `json:"composer,omitempty"`
}

// Result is the full structural parse of one source document. Empty input
// parses to an empty Result, never an error.
type Result struct {
	MetaLines []string       `json:"meta_lines,omitempty"`
	Preamble  []string       `json:"preamble,omitempty"`
	Sections  []Section      `json:"sections"`
	Variants  []LyricVariant `json:"variants,omitempty"`
	Hints     MetadataHints  `json:"hints"`
}

// SectionTypes returns the ordered section labels, the shape the voting
// engine scores.
func (r Result) SectionTypes() []SectionType {
	out := make([]SectionType, 0, len(r.Sections))
	for _, s := range r.Sections {
		out = append(out, s.Type)
	}
	return out
}
