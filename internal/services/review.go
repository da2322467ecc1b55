package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/ingestion/pipeline"
	"github.com/sangitam/krithi-backend/internal/ingestion/resolve"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

type ReviewService interface {
	ListStaged(ctx context.Context, status types.ImportStatus, limit int) ([]*types.ImportedKrithi, error)
	GetStaged(ctx context.Context, id uuid.UUID) (*types.ImportedKrithi, error)
	ApproveStaged(ctx context.Context, stagedID, reviewerID uuid.UUID, notes string) (*types.Krithi, error)
	RejectStaged(ctx context.Context, stagedID uuid.UUID) error
	DiscardStaged(ctx context.Context, stagedID uuid.UUID) error
	ListVotes(ctx context.Context, krithiID uuid.UUID) ([]*types.StructuralVoteLog, error)
	OverrideStructure(ctx context.Context, krithiID, reviewerID uuid.UUID, sections []parser.Section, notes string) (*types.StructuralVoteLog, error)
	ListVariantMatches(ctx context.Context, status types.MatchStatus, limit int) ([]*types.VariantMatch, error)
	ReviewVariantMatch(ctx context.Context, matchID uuid.UUID, approve bool, notes string) error
	ListEvidence(ctx context.Context, krithiID uuid.UUID) ([]*types.KrithiSourceEvidence, error)
}

type reviewService struct {
	db          *gorm.DB
	log         *logger.Logger
	staged      repos.ImportedKrithiRepo
	krithis     repos.KrithiRepo
	votes       repos.StructuralVoteLogRepo
	matches     repos.VariantMatchRepo
	evidence    repos.SourceEvidenceRepo
	extractions repos.ExtractionQueueRepo
}

func NewReviewService(
	db *gorm.DB,
	baseLog *logger.Logger,
	staged repos.ImportedKrithiRepo,
	krithis repos.KrithiRepo,
	votes repos.StructuralVoteLogRepo,
	matches repos.VariantMatchRepo,
	evidence repos.SourceEvidenceRepo,
	extractions repos.ExtractionQueueRepo,
) ReviewService {
	return &reviewService{
		db:          db,
		log:         baseLog.With("service", "ReviewService"),
		staged:      staged,
		krithis:     krithis,
		votes:       votes,
		matches:     matches,
		evidence:    evidence,
		extractions: extractions,
	}
}

func (s *reviewService) ListStaged(ctx context.Context, status types.ImportStatus, limit int) ([]*types.ImportedKrithi, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid import status %q", status)
	}
	return s.staged.ListByStatus(ctx, nil, status, limit)
}

func (s *reviewService) GetStaged(ctx context.Context, id uuid.UUID) (*types.ImportedKrithi, error) {
	return s.staged.GetByID(ctx, nil, id)
}

// ApproveStaged is the human override of the auto-approval gate: it promotes
// a held staged import into the catalog and logs the decision as a MANUAL
// vote round carrying the reviewer.
func (s *reviewService) ApproveStaged(ctx context.Context, stagedID, reviewerID uuid.UUID, notes string) (*types.Krithi, error) {
	row, err := s.staged.GetByID(ctx, nil, stagedID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("staged import %s not found", stagedID)
	}
	if row.ImportStatus != types.ImportPending && row.ImportStatus != types.ImportInReview {
		return nil, fmt.Errorf("%w: staged import %s is %s", repos.ErrInvalidTransition, stagedID, row.ImportStatus)
	}

	structure, sections := s.stagedStructure(ctx, row)
	var krithi *types.Krithi
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		title := row.RawTitle
		if title == "" {
			title = "(untitled import)"
		}
		krithi, err = s.krithis.Create(ctx, tx, &types.Krithi{
			Title:      title,
			Deity:      row.RawDeity,
			Temple:     row.RawTemple,
			Language:   row.RawLanguage,
			Structure:  structure,
			Lyrics:     row.RawLyrics,
			ComposerID: topResolvedID(row.ResolutionData, "composer_candidates"),
			RagaID:     topResolvedID(row.ResolutionData, "raga_candidates"),
			TalaID:     topResolvedID(row.ResolutionData, "tala_candidates"),
		})
		if err != nil {
			return err
		}

		consensus, mErr := json.Marshal(sections)
		if mErr != nil {
			return mErr
		}
		if _, err := s.votes.Append(ctx, tx, &types.StructuralVoteLog{
			KrithiID:           krithi.ID,
			ConsensusStructure: datatypes.JSON(consensus),
			ConsensusType:      types.ConsensusManual,
			Confidence:         types.ConfidenceHigh,
			ReviewerID:         &reviewerID,
			Notes:              notes,
		}); err != nil {
			return err
		}

		if row.ExtractionTaskID != nil {
			task, tErr := s.extractions.GetByID(ctx, tx, *row.ExtractionTaskID)
			if tErr != nil {
				return tErr
			}
			if task != nil {
				if _, err := s.evidence.Create(ctx, tx, &types.KrithiSourceEvidence{
					KrithiID:         krithi.ID,
					ImportSourceID:   row.ImportSourceID,
					SourceURL:        task.SourceURL,
					SourceTier:       task.SourceTier,
					ExtractionMethod: task.ExtractionMethod,
					Confidence:       task.Confidence,
					RawExtraction:    task.ResultPayload,
				}); err != nil {
					return err
				}
			}
		}

		return s.staged.UpdateImportStatus(ctx, tx, stagedID, types.ImportMapped, &krithi.ID)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Staged import approved", "staged_id", stagedID, "krithi_id", krithi.ID, "reviewer_id", reviewerID)
	return krithi, nil
}

func (s *reviewService) RejectStaged(ctx context.Context, stagedID uuid.UUID) error {
	return s.staged.UpdateImportStatus(ctx, nil, stagedID, types.ImportRejected, nil)
}

func (s *reviewService) DiscardStaged(ctx context.Context, stagedID uuid.UUID) error {
	return s.staged.UpdateImportStatus(ctx, nil, stagedID, types.ImportDiscarded, nil)
}

func (s *reviewService) ListVotes(ctx context.Context, krithiID uuid.UUID) ([]*types.StructuralVoteLog, error) {
	return s.votes.ListByKrithi(ctx, nil, krithiID)
}

// OverrideStructure appends a MANUAL vote round and rewrites the catalog
// structure. Earlier rounds stay in the log untouched.
func (s *reviewService) OverrideStructure(ctx context.Context, krithiID, reviewerID uuid.UUID, sections []parser.Section, notes string) (*types.StructuralVoteLog, error) {
	krithi, err := s.krithis.GetByID(ctx, nil, krithiID)
	if err != nil {
		return nil, err
	}
	if krithi == nil {
		return nil, fmt.Errorf("krithi %s not found", krithiID)
	}
	shape := make([]parser.SectionType, 0, len(sections))
	for _, sec := range sections {
		shape = append(shape, sec.Type)
	}
	consensus, err := json.Marshal(shape)
	if err != nil {
		return nil, err
	}
	structure, err := json.Marshal(sections)
	if err != nil {
		return nil, err
	}
	var entry *types.StructuralVoteLog
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err = s.votes.Append(ctx, tx, &types.StructuralVoteLog{
			KrithiID:           krithiID,
			ConsensusStructure: datatypes.JSON(consensus),
			ConsensusType:      types.ConsensusManual,
			Confidence:         types.ConfidenceHigh,
			ReviewerID:         &reviewerID,
			Notes:              notes,
		})
		if err != nil {
			return err
		}
		return s.krithis.UpdateStructure(ctx, tx, krithiID, structure)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *reviewService) ListVariantMatches(ctx context.Context, status types.MatchStatus, limit int) ([]*types.VariantMatch, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid match status %q", status)
	}
	return s.matches.ListByStatus(ctx, nil, status, limit)
}

func (s *reviewService) ReviewVariantMatch(ctx context.Context, matchID uuid.UUID, approve bool, notes string) error {
	next := types.MatchRejected
	if approve {
		next = types.MatchApproved
	}
	if err := s.matches.Review(ctx, nil, matchID, next, notes); err != nil {
		return err
	}
	if !approve {
		return nil
	}
	// An approved variant contributes provenance for its source.
	match, err := s.matches.GetByID(ctx, nil, matchID)
	if err != nil || match == nil {
		return err
	}
	task, err := s.extractions.GetByID(ctx, nil, match.ExtractionID)
	if err != nil || task == nil {
		return err
	}
	_, err = s.evidence.Create(ctx, nil, &types.KrithiSourceEvidence{
		KrithiID:         match.KrithiID,
		ImportSourceID:   task.ID,
		SourceURL:        task.SourceURL,
		SourceTier:       task.SourceTier,
		ExtractionMethod: task.ExtractionMethod,
		Confidence:       task.Confidence,
		RawExtraction:    task.ResultPayload,
	})
	return err
}

func (s *reviewService) ListEvidence(ctx context.Context, krithiID uuid.UUID) ([]*types.KrithiSourceEvidence, error) {
	return s.evidence.ListByKrithi(ctx, nil, krithiID)
}

// stagedStructure recovers the parsed sections for a staged import from its
// extraction payload. A manual import with no extraction approves with an
// empty structure.
func (s *reviewService) stagedStructure(ctx context.Context, row *types.ImportedKrithi) (datatypes.JSON, []parser.SectionType) {
	if row.ExtractionTaskID == nil {
		return nil, nil
	}
	task, err := s.extractions.GetByID(ctx, nil, *row.ExtractionTaskID)
	if err != nil || task == nil || len(task.ResultPayload) == 0 {
		return nil, nil
	}
	payload, err := pipeline.PayloadFromJSON(task.ResultPayload)
	if err != nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload.Sections)
	if err != nil {
		return nil, nil
	}
	return datatypes.JSON(raw), payload.SectionTypes()
}

// topResolvedID pulls the leading candidate for one entity list out of the
// stored resolution JSON, MEDIUM tier or better.
func topResolvedID(raw datatypes.JSON, key string) *uuid.UUID {
	if len(raw) == 0 {
		return nil
	}
	var stored map[string][]resolve.Candidate
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil
	}
	top := resolve.Top(stored[key])
	if top == nil || !top.Tier.AtLeast(types.ConfidenceMedium) {
		return nil
	}
	id := top.ID
	return &id
}
