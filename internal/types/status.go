package types

import "fmt"

// Status enums are closed sets. Every transition site switches exhaustively;
// anything outside the set is rejected at the boundary, never stored.

type BatchStatus string

const (
	BatchPending   BatchStatus = "PENDING"
	BatchRunning   BatchStatus = "RUNNING"
	BatchPaused    BatchStatus = "PAUSED"
	BatchCancelled BatchStatus = "CANCELLED"
	BatchCompleted BatchStatus = "COMPLETED"
)

func (s BatchStatus) Valid() bool {
	switch s {
	case BatchPending, BatchRunning, BatchPaused, BatchCancelled, BatchCompleted:
		return true
	}
	return false
}

// Terminal batches never change status again.
func (s BatchStatus) Terminal() bool {
	return s == BatchCancelled || s == BatchCompleted
}

func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case BatchPending:
		return next == BatchRunning || next == BatchCancelled
	case BatchRunning:
		return next == BatchPaused || next == BatchCancelled || next == BatchCompleted
	case BatchPaused:
		return next == BatchRunning || next == BatchCancelled
	}
	return false
}

type JobStatus string

const (
	JobPending JobStatus = "PENDING"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobDone, JobFailed:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskRunning TaskStatus = "RUNNING"
	TaskDone    TaskStatus = "DONE"
	TaskFailed  TaskStatus = "FAILED"
	TaskBlocked TaskStatus = "BLOCKED"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskRunning, TaskDone, TaskFailed, TaskBlocked:
		return true
	}
	return false
}

// Claiming is the sole PENDING->RUNNING transition; everything else happens
// via UpdateStatus on an already-claimed row.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskRunning || next == TaskBlocked
	case TaskRunning:
		return next == TaskDone || next == TaskFailed || next == TaskBlocked
	case TaskFailed, TaskBlocked:
		return next == TaskPending
	}
	return false
}

type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "PENDING"
	ExtractionProcessing ExtractionStatus = "PROCESSING"
	ExtractionDone       ExtractionStatus = "DONE"
	ExtractionFailed     ExtractionStatus = "FAILED"
	ExtractionCancelled  ExtractionStatus = "CANCELLED"
	ExtractionIngested   ExtractionStatus = "INGESTED"
)

func (s ExtractionStatus) Valid() bool {
	switch s {
	case ExtractionPending, ExtractionProcessing, ExtractionDone,
		ExtractionFailed, ExtractionCancelled, ExtractionIngested:
		return true
	}
	return false
}

func (s ExtractionStatus) CanTransitionTo(next ExtractionStatus) bool {
	switch s {
	case ExtractionPending:
		return next == ExtractionProcessing || next == ExtractionCancelled
	case ExtractionProcessing:
		return next == ExtractionDone || next == ExtractionFailed || next == ExtractionCancelled
	case ExtractionFailed, ExtractionCancelled:
		return next == ExtractionPending
	case ExtractionDone:
		return next == ExtractionIngested
	}
	return false
}

type ExtractionIntent string

const (
	IntentPrimary ExtractionIntent = "PRIMARY"
	IntentEnrich  ExtractionIntent = "ENRICH"
)

func (i ExtractionIntent) Valid() bool {
	return i == IntentPrimary || i == IntentEnrich
}

type ImportStatus string

const (
	ImportPending   ImportStatus = "PENDING"
	ImportInReview  ImportStatus = "IN_REVIEW"
	ImportApproved  ImportStatus = "APPROVED"
	ImportMapped    ImportStatus = "MAPPED"
	ImportRejected  ImportStatus = "REJECTED"
	ImportDiscarded ImportStatus = "DISCARDED"
)

func (s ImportStatus) Valid() bool {
	switch s {
	case ImportPending, ImportInReview, ImportApproved, ImportMapped, ImportRejected, ImportDiscarded:
		return true
	}
	return false
}

// REJECTED and DISCARDED are terminal for a staged import.
func (s ImportStatus) Terminal() bool {
	return s == ImportRejected || s == ImportDiscarded
}

type ConsensusType string

const (
	ConsensusUnanimous         ConsensusType = "UNANIMOUS"
	ConsensusMajority          ConsensusType = "MAJORITY"
	ConsensusAuthorityOverride ConsensusType = "AUTHORITY_OVERRIDE"
	ConsensusSingleSource      ConsensusType = "SINGLE_SOURCE"
	ConsensusManual            ConsensusType = "MANUAL"
)

func (c ConsensusType) Valid() bool {
	switch c {
	case ConsensusUnanimous, ConsensusMajority, ConsensusAuthorityOverride, ConsensusSingleSource, ConsensusManual:
		return true
	}
	return false
}

type ConfidenceTier string

const (
	ConfidenceHigh   ConfidenceTier = "HIGH"
	ConfidenceMedium ConfidenceTier = "MEDIUM"
	ConfidenceLow    ConfidenceTier = "LOW"
)

func (t ConfidenceTier) Valid() bool {
	return t == ConfidenceHigh || t == ConfidenceMedium || t == ConfidenceLow
}

// AtLeast reports whether t meets min, with HIGH > MEDIUM > LOW.
func (t ConfidenceTier) AtLeast(min ConfidenceTier) bool {
	return t.rank() >= min.rank()
}

func (t ConfidenceTier) rank() int {
	switch t {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	}
	return 0
}

type MatchStatus string

const (
	MatchPending      MatchStatus = "PENDING"
	MatchApproved     MatchStatus = "APPROVED"
	MatchRejected     MatchStatus = "REJECTED"
	MatchAutoApproved MatchStatus = "AUTO_APPROVED"
)

func (s MatchStatus) Valid() bool {
	switch s {
	case MatchPending, MatchApproved, MatchRejected, MatchAutoApproved:
		return true
	}
	return false
}

type EntityType string

const (
	EntityComposer EntityType = "COMPOSER"
	EntityRaga     EntityType = "RAGA"
	EntityTala     EntityType = "TALA"
)

func (e EntityType) Valid() bool {
	return e == EntityComposer || e == EntityRaga || e == EntityTala
}

func ParseEntityType(s string) (EntityType, error) {
	e := EntityType(s)
	if !e.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return e, nil
}
