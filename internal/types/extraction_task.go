package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ExtractionTask struct {
	ID                  uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SourceURL           string           `gorm:"column:source_url;not null;index" json:"source_url"`
	SourceFormat        string           `gorm:"column:source_format;not null" json:"source_format"` // blog_html|scanned_text|registry
	SourceName          string           `gorm:"column:source_name" json:"source_name,omitempty"`
	SourceTier          int              `gorm:"column:source_tier;not null;default:3" json:"source_tier"` // 1 = most authoritative
	Status              ExtractionStatus `gorm:"column:status;not null;index" json:"status"`
	Attempts            int              `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts         int              `gorm:"column:max_attempts;not null;default:3" json:"max_attempts"`
	Confidence          *float64         `gorm:"column:confidence" json:"confidence,omitempty"`
	ExtractionMethod    string           `gorm:"column:extraction_method" json:"extraction_method,omitempty"`
	ExtractorVersion    string           `gorm:"column:extractor_version" json:"extractor_version,omitempty"`
	ContentLanguage     string           `gorm:"column:content_language" json:"content_language,omitempty"`
	ExtractionIntent    ExtractionIntent `gorm:"column:extraction_intent;not null;index" json:"extraction_intent"`
	RelatedExtractionID *uuid.UUID       `gorm:"type:uuid;column:related_extraction_id;index" json:"related_extraction_id,omitempty"`
	ResultPayload       datatypes.JSON   `gorm:"type:jsonb;column:result_payload" json:"result_payload,omitempty"`
	ResultCount         int              `gorm:"column:result_count;not null;default:0" json:"result_count"`
	ErrorDetail         string           `gorm:"column:error_detail" json:"error_detail,omitempty"`
	DurationMs          *int64           `gorm:"column:duration_ms" json:"duration_ms,omitempty"`
	ClaimedBy           string           `gorm:"column:claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt           *time.Time       `gorm:"column:claimed_at;index" json:"claimed_at,omitempty"`
	CompletedAt         *time.Time       `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time        `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt           time.Time        `gorm:"not null;default:now()" json:"updated_at"`
}

func (ExtractionTask) TableName() string { return "extraction_queue" }
