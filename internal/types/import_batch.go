package types

import (
	"time"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ImportBatch struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status         BatchStatus    `gorm:"column:status;not null;index" json:"status"`
	SourceManifest datatypes.JSON `gorm:"type:jsonb;column:source_manifest" json:"source_manifest"`
	TotalTasks     int            `gorm:"column:total_tasks;not null;default:0" json:"total_tasks"`
	ProcessedTasks int            `gorm:"column:processed_tasks;not null;default:0" json:"processed_tasks"`
	SucceededTasks int            `gorm:"column:succeeded_tasks;not null;default:0" json:"succeeded_tasks"`
	FailedTasks    int            `gorm:"column:failed_tasks;not null;default:0" json:"failed_tasks"`
	BlockedTasks   int            `gorm:"column:blocked_tasks;not null;default:0" json:"blocked_tasks"`
	StartedAt      *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ImportBatch) TableName() string { return "import_batches" }

type ImportJob struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BatchID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"batch_id"`
	JobType    string         `gorm:"column:job_type;not null;index" json:"job_type"`
	Status     JobStatus      `gorm:"column:status;not null;index" json:"status"`
	RetryCount int            `gorm:"column:retry_count;not null;default:0" json:"retry_count"`
	Payload    datatypes.JSON `gorm:"type:jsonb;column:payload" json:"payload,omitempty"`
	Result     datatypes.JSON `gorm:"type:jsonb;column:result" json:"result,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ImportJob) TableName() string { return "import_jobs" }

type ImportTaskRun struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	JobID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"job_id"`
	KrithiKey    *string    `gorm:"column:krithi_key;index" json:"krithi_key,omitempty"`
	SourceURL    *string    `gorm:"column:source_url" json:"source_url,omitempty"`
	Status       TaskStatus `gorm:"column:status;not null;index" json:"status"`
	Attempt      int        `gorm:"column:attempt;not null;default:0" json:"attempt"`
	Checksum     string     `gorm:"column:checksum" json:"checksum,omitempty"`
	EvidencePath string     `gorm:"column:evidence_path" json:"evidence_path,omitempty"`
	Error        string     `gorm:"column:error" json:"error,omitempty"`
	DurationMs   *int64     `gorm:"column:duration_ms" json:"duration_ms,omitempty"`
	ClaimedAt    *time.Time `gorm:"column:claimed_at;index" json:"claimed_at,omitempty"`
	FinishedAt   *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (ImportTaskRun) TableName() string { return "import_task_runs" }
