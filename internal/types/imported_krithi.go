package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ImportedKrithi is the staging record between extraction and the catalog.
// Raw fields are immutable once created; only the review/approval step moves
// import_status.
type ImportedKrithi struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ImportSourceID      uuid.UUID      `gorm:"type:uuid;column:import_source_id;not null;index" json:"import_source_id"`
	ExtractionTaskID    *uuid.UUID     `gorm:"type:uuid;column:extraction_task_id;index" json:"extraction_task_id,omitempty"`
	RawTitle            string         `gorm:"column:raw_title" json:"raw_title"`
	RawLyrics           string         `gorm:"column:raw_lyrics;type:text" json:"raw_lyrics"`
	RawComposer         string         `gorm:"column:raw_composer" json:"raw_composer"`
	RawRaga             string         `gorm:"column:raw_raga" json:"raw_raga"`
	RawTala             string         `gorm:"column:raw_tala" json:"raw_tala"`
	RawDeity            string         `gorm:"column:raw_deity" json:"raw_deity"`
	RawTemple           string         `gorm:"column:raw_temple" json:"raw_temple"`
	RawLanguage         string         `gorm:"column:raw_language" json:"raw_language"`
	ResolutionData      datatypes.JSON `gorm:"type:jsonb;column:resolution_data" json:"resolution_data,omitempty"`
	DuplicateCandidates datatypes.JSON `gorm:"type:jsonb;column:duplicate_candidates" json:"duplicate_candidates,omitempty"`
	QualityScore        *float64       `gorm:"column:quality_score" json:"quality_score,omitempty"`
	QualityTier         string         `gorm:"column:quality_tier" json:"quality_tier,omitempty"`
	ImportStatus        ImportStatus   `gorm:"column:import_status;not null;index" json:"import_status"`
	MappedKrithiID      *uuid.UUID     `gorm:"type:uuid;column:mapped_krithi_id;index" json:"mapped_krithi_id,omitempty"`
	ReviewedAt          *time.Time     `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt           time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ImportedKrithi) TableName() string { return "imported_krithis" }

// StructuralVoteLog is append-only: a manual override inserts a new row and
// leaves history untouched.
type StructuralVoteLog struct {
	ID                   uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	KrithiID             uuid.UUID      `gorm:"type:uuid;column:krithi_id;not null;index" json:"krithi_id"`
	VotedAt              time.Time      `gorm:"column:voted_at;not null;default:now();index" json:"voted_at"`
	ParticipatingSources datatypes.JSON `gorm:"type:jsonb;column:participating_sources" json:"participating_sources"`
	ConsensusStructure   datatypes.JSON `gorm:"type:jsonb;column:consensus_structure" json:"consensus_structure"`
	ConsensusType        ConsensusType  `gorm:"column:consensus_type;not null;index" json:"consensus_type"`
	Confidence           ConfidenceTier `gorm:"column:confidence;not null" json:"confidence"`
	DissentingSources    datatypes.JSON `gorm:"type:jsonb;column:dissenting_sources" json:"dissenting_sources,omitempty"`
	ReviewerID           *uuid.UUID     `gorm:"type:uuid;column:reviewer_id" json:"reviewer_id,omitempty"`
	Notes                string         `gorm:"column:notes" json:"notes,omitempty"`
}

func (StructuralVoteLog) TableName() string { return "structural_vote_log" }

type VariantMatch struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ExtractionID       uuid.UUID      `gorm:"type:uuid;column:extraction_id;not null;index" json:"extraction_id"`
	KrithiID           uuid.UUID      `gorm:"type:uuid;column:krithi_id;not null;index" json:"krithi_id"`
	Confidence         float64        `gorm:"column:confidence;not null" json:"confidence"`
	ConfidenceTier     ConfidenceTier `gorm:"column:confidence_tier;not null" json:"confidence_tier"`
	MatchStatus        MatchStatus    `gorm:"column:match_status;not null;index" json:"match_status"`
	IsAnomaly          bool           `gorm:"column:is_anomaly;not null;default:false" json:"is_anomaly"`
	StructureMismatch  bool           `gorm:"column:structure_mismatch;not null;default:false" json:"structure_mismatch"`
	ReviewerNotes      string         `gorm:"column:reviewer_notes" json:"reviewer_notes,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (VariantMatch) TableName() string { return "variant_match" }

// KrithiSourceEvidence is the provenance edge from a catalog composition to a
// contributing source. Creation is idempotent on (krithi_id, source_url).
type KrithiSourceEvidence struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	KrithiID          uuid.UUID      `gorm:"type:uuid;column:krithi_id;not null;index:idx_evidence_krithi_url,unique" json:"krithi_id"`
	ImportSourceID    uuid.UUID      `gorm:"type:uuid;column:import_source_id;not null;index" json:"import_source_id"`
	SourceURL         string         `gorm:"column:source_url;not null;index:idx_evidence_krithi_url,unique" json:"source_url"`
	SourceTier        int            `gorm:"column:source_tier;not null;default:3" json:"source_tier"`
	ExtractionMethod  string         `gorm:"column:extraction_method" json:"extraction_method,omitempty"`
	Confidence        *float64       `gorm:"column:confidence" json:"confidence,omitempty"`
	ContributedFields datatypes.JSON `gorm:"type:jsonb;column:contributed_fields" json:"contributed_fields,omitempty"`
	RawExtraction     datatypes.JSON `gorm:"type:jsonb;column:raw_extraction" json:"raw_extraction,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;default:now();index" json:"created_at"`
}

func (KrithiSourceEvidence) TableName() string { return "krithi_source_evidence" }
