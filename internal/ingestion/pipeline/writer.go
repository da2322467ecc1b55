package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sangitam/krithi-backend/internal/ingestion/approval"
	"github.com/sangitam/krithi-backend/internal/ingestion/dedupe"
	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/ingestion/resolve"
	"github.com/sangitam/krithi-backend/internal/ingestion/voting"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/normalization"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

// authorityTier marks the source ranking treated as authoritative in voting.
const authorityTier = 1

// SourceRef identifies one participating source inside a vote-log row.
type SourceRef struct {
	URL       string `json:"url"`
	Tier      int    `json:"tier"`
	Label     string `json:"label,omitempty"`
	Authority bool   `json:"authority"`
}

// Writer consumes DONE extractions and turns them into catalog writes:
// staging, resolution, dedup, the approval gate, evidence, and the one-way
// INGESTED transition.
type Writer struct {
	db          *gorm.DB
	log         *logger.Logger
	extractions repos.ExtractionQueueRepo
	staged      repos.ImportedKrithiRepo
	krithis     repos.KrithiRepo
	votes       repos.StructuralVoteLogRepo
	matches     repos.VariantMatchRepo
	evidence    repos.SourceEvidenceRepo
	resolver    *resolve.Resolver
	detector    *dedupe.Detector
	gate        *approval.Gate
	weights     voting.Weights
}

func NewWriter(
	db *gorm.DB,
	baseLog *logger.Logger,
	extractions repos.ExtractionQueueRepo,
	staged repos.ImportedKrithiRepo,
	krithis repos.KrithiRepo,
	votes repos.StructuralVoteLogRepo,
	matches repos.VariantMatchRepo,
	evidence repos.SourceEvidenceRepo,
	resolver *resolve.Resolver,
	detector *dedupe.Detector,
	gate *approval.Gate,
	weights voting.Weights,
) *Writer {
	return &Writer{
		db:          db,
		log:         baseLog.With("component", "CatalogWriter"),
		extractions: extractions,
		staged:      staged,
		krithis:     krithis,
		votes:       votes,
		matches:     matches,
		evidence:    evidence,
		resolver:    resolver,
		detector:    detector,
		gate:        gate,
		weights:     weights,
	}
}

type IngestOutcome struct {
	StagedID        *uuid.UUID        `json:"staged_id,omitempty"`
	KrithiID        *uuid.UUID        `json:"krithi_id,omitempty"`
	VariantMatchID  *uuid.UUID        `json:"variant_match_id,omitempty"`
	AutoApproved    bool              `json:"auto_approved"`
	Reason          string            `json:"reason,omitempty"`
	AlreadyIngested bool              `json:"already_ingested"`
}

// Ingest consumes one DONE extraction. Calling it again after success is a
// no-op: the INGESTED status is the idempotence guard. Everything from
// staging through MarkIngested runs in one transaction, so a failure or
// crash mid-write leaves the extraction DONE with no partial rows behind.
func (w *Writer) Ingest(ctx context.Context, extractionID uuid.UUID) (*IngestOutcome, error) {
	task, err := w.extractions.GetByID(ctx, nil, extractionID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("extraction %s not found", extractionID)
	}
	switch task.Status {
	case types.ExtractionIngested:
		return &IngestOutcome{AlreadyIngested: true}, nil
	case types.ExtractionDone:
	default:
		return nil, fmt.Errorf("%w: extraction %s is %s, not DONE", repos.ErrInvalidTransition, extractionID, task.Status)
	}

	payload, err := PayloadFromJSON(task.ResultPayload)
	if err != nil {
		return nil, err
	}

	var outcome *IngestOutcome
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		switch task.ExtractionIntent {
		case types.IntentPrimary:
			outcome, txErr = w.ingestPrimary(ctx, tx, task, payload)
		case types.IntentEnrich:
			outcome, txErr = w.ingestEnrich(ctx, tx, task, payload)
		default:
			txErr = fmt.Errorf("unknown extraction intent %q", task.ExtractionIntent)
		}
		if txErr != nil {
			return txErr
		}
		return w.extractions.MarkIngested(ctx, tx, task.ID)
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (w *Writer) ingestPrimary(ctx context.Context, tx *gorm.DB, task *types.ExtractionTask, payload *ExtractionPayload) (*IngestOutcome, error) {
	staged, err := w.staged.Create(ctx, tx, &types.ImportedKrithi{
		ImportSourceID:   task.ID,
		ExtractionTaskID: &task.ID,
		RawTitle:         payload.Title,
		RawLyrics:        payload.LyricText(),
		RawComposer:      payload.Composer,
		RawRaga:          payload.Raga,
		RawTala:          payload.Tala,
		RawLanguage:      task.ContentLanguage,
		ImportStatus:     types.ImportPending,
	})
	if err != nil {
		return nil, err
	}
	outcome := &IngestOutcome{StagedID: &staged.ID}

	resolution, err := w.resolver.Resolve(ctx, tx, staged)
	if err != nil {
		return nil, err
	}
	if raw, mErr := json.Marshal(resolution); mErr == nil {
		if err := w.staged.SetResolutionData(ctx, tx, staged.ID, datatypes.JSON(raw)); err != nil {
			return nil, err
		}
	}

	dupes, err := w.detector.FindDuplicates(ctx, tx, staged, resolutionView(resolution))
	if err != nil {
		return nil, err
	}
	if raw, mErr := json.Marshal(dupes); mErr == nil {
		if err := w.staged.SetDuplicateCandidates(ctx, tx, staged.ID, datatypes.JSON(raw)); err != nil {
			return nil, err
		}
	}

	score := payload.Confidence
	tier := QualityTier(score)
	if err := w.staged.SetQuality(ctx, tx, staged.ID, score, tier); err != nil {
		return nil, err
	}
	staged.QualityScore = &score
	staged.QualityTier = tier

	decision := w.gate.Evaluate(staged, resolution, dupes)
	outcome.Reason = decision.Reason
	if !decision.Approved {
		if err := w.staged.UpdateImportStatus(ctx, tx, staged.ID, types.ImportInReview, nil); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	krithiID, err := w.promote(ctx, tx, task, staged, payload, resolution)
	if err != nil {
		return nil, err
	}
	outcome.AutoApproved = true
	outcome.KrithiID = &krithiID
	return outcome, nil
}

// promote writes the catalog record, the single-source vote round, the
// provenance edge, and flips the staged import to MAPPED, all on the
// caller's transaction.
func (w *Writer) promote(ctx context.Context, tx *gorm.DB, task *types.ExtractionTask, staged *types.ImportedKrithi, payload *ExtractionPayload, resolution *resolve.Result) (uuid.UUID, error) {
	structureJSON, err := json.Marshal(payload.Sections)
	if err != nil {
		return uuid.Nil, err
	}
	title := staged.RawTitle
	if title == "" {
		title = "(untitled) " + task.SourceURL
	}
	krithi := &types.Krithi{
		Title:     title,
		Deity:     staged.RawDeity,
		Temple:    staged.RawTemple,
		Language:  staged.RawLanguage,
		Structure: datatypes.JSON(structureJSON),
		Lyrics:    staged.RawLyrics,
	}
	krithi.ComposerID = candidateID(resolution.ComposerCandidates)
	krithi.RagaID = candidateID(resolution.RagaCandidates)
	krithi.TalaID = candidateID(resolution.TalaCandidates)
	created, err := w.krithis.Create(ctx, tx, krithi)
	if err != nil {
		return uuid.Nil, err
	}
	krithiID := created.ID

	candidate := voting.Candidate{
		Label:     task.SourceURL,
		Sections:  payload.SectionTypes(),
		Authority: task.SourceTier <= authorityTier,
	}
	decision := voting.PickBestStructure([]voting.Candidate{candidate}, w.weights)
	if err := w.appendVote(ctx, tx, krithiID, decision, []SourceRef{sourceRef(task)}); err != nil {
		return uuid.Nil, err
	}

	if _, err := w.evidence.Create(ctx, tx, &types.KrithiSourceEvidence{
		KrithiID:          krithiID,
		ImportSourceID:    staged.ImportSourceID,
		SourceURL:         task.SourceURL,
		SourceTier:        task.SourceTier,
		ExtractionMethod:  task.ExtractionMethod,
		Confidence:        &payload.Confidence,
		ContributedFields: contributedFields(staged),
		RawExtraction:     task.ResultPayload,
	}); err != nil {
		return uuid.Nil, err
	}

	if err := w.staged.UpdateImportStatus(ctx, tx, staged.ID, types.ImportMapped, &krithiID); err != nil {
		return uuid.Nil, err
	}
	return krithiID, nil
}

func (w *Writer) ingestEnrich(ctx context.Context, tx *gorm.DB, task *types.ExtractionTask, payload *ExtractionPayload) (*IngestOutcome, error) {
	if task.RelatedExtractionID == nil {
		return nil, fmt.Errorf("ENRICH extraction %s has no related extraction", task.ID)
	}
	relatedStaged, err := w.staged.GetByExtractionTaskID(ctx, tx, *task.RelatedExtractionID)
	if err != nil {
		return nil, err
	}
	if relatedStaged == nil || relatedStaged.MappedKrithiID == nil {
		return nil, fmt.Errorf("related extraction %s has not been mapped to a catalog record yet", *task.RelatedExtractionID)
	}
	krithi, err := w.krithis.GetByID(ctx, tx, *relatedStaged.MappedKrithiID)
	if err != nil {
		return nil, err
	}
	if krithi == nil {
		return nil, fmt.Errorf("catalog record %s not found", *relatedStaged.MappedKrithiID)
	}

	accepted := acceptedStructure(krithi)
	proposed := payload.SectionTypes()
	structureMismatch := !sameShape(accepted, proposed)

	title := payload.Title
	if title == "" && len(payload.MetaLines) > 0 {
		title = payload.MetaLines[0]
	}
	titleSim := normalization.Similarity(title, krithi.Title)
	confidence := 0.6*titleSim*100 + 40
	if structureMismatch {
		confidence -= 40
	}
	if confidence < 0 {
		confidence = 0
	}
	tier := resolve.TierForScore(confidence)
	isAnomaly := len(proposed) == 0 || titleSim < 0.3

	status := types.MatchPending
	if tier == types.ConfidenceHigh && !structureMismatch && !isAnomaly {
		status = types.MatchAutoApproved
	}
	match, err := w.matches.Create(ctx, tx, &types.VariantMatch{
		ExtractionID:      task.ID,
		KrithiID:          krithi.ID,
		Confidence:        confidence,
		ConfidenceTier:    tier,
		MatchStatus:       status,
		IsAnomaly:         isAnomaly,
		StructureMismatch: structureMismatch,
	})
	if err != nil {
		return nil, err
	}
	outcome := &IngestOutcome{
		KrithiID:       &krithi.ID,
		VariantMatchID: &match.ID,
		AutoApproved:   status == types.MatchAutoApproved,
	}
	if status != types.MatchAutoApproved {
		outcome.Reason = "variant match held for review"
		return outcome, nil
	}

	if err := w.attachEnrichment(ctx, tx, task, payload, krithi, accepted); err != nil {
		return nil, err
	}
	return outcome, nil
}

// attachEnrichment records evidence for the enriching source and re-votes the
// structure with the catalog's accepted shape in the candidate set.
func (w *Writer) attachEnrichment(ctx context.Context, tx *gorm.DB, task *types.ExtractionTask, payload *ExtractionPayload, krithi *types.Krithi, accepted []parser.SectionType) error {
	if _, err := w.evidence.Create(ctx, tx, &types.KrithiSourceEvidence{
		KrithiID:          krithi.ID,
		ImportSourceID:    task.ID,
		SourceURL:         task.SourceURL,
		SourceTier:        task.SourceTier,
		ExtractionMethod:  task.ExtractionMethod,
		Confidence:        &payload.Confidence,
		RawExtraction:     task.ResultPayload,
	}); err != nil {
		return err
	}

	candidates := []voting.Candidate{
		{Label: "catalog", Sections: accepted, Authority: true},
		{Label: task.SourceURL, Sections: payload.SectionTypes(), Authority: task.SourceTier <= authorityTier},
	}
	decision := voting.PickBestStructure(candidates, w.weights)
	sources := []SourceRef{
		{URL: "catalog", Authority: true},
		sourceRef(task),
	}
	if err := w.appendVote(ctx, tx, krithi.ID, decision, sources); err != nil {
		return err
	}
	if decision.WinnerIdx == 1 {
		structureJSON, err := json.Marshal(payload.Sections)
		if err != nil {
			return err
		}
		return w.krithis.UpdateStructure(ctx, tx, krithi.ID, structureJSON)
	}
	return nil
}

func (w *Writer) appendVote(ctx context.Context, tx *gorm.DB, krithiID uuid.UUID, decision voting.Decision, sources []SourceRef) error {
	participating, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	structure, err := json.Marshal(decision.Structure)
	if err != nil {
		return err
	}
	var dissenting datatypes.JSON
	if len(decision.Dissenting) > 0 {
		raw, err := json.Marshal(decision.Dissenting)
		if err != nil {
			return err
		}
		dissenting = datatypes.JSON(raw)
	}
	_, err = w.votes.Append(ctx, tx, &types.StructuralVoteLog{
		KrithiID:             krithiID,
		ParticipatingSources: datatypes.JSON(participating),
		ConsensusStructure:   datatypes.JSON(structure),
		ConsensusType:        decision.Consensus,
		Confidence:           decision.Confidence,
		DissentingSources:    dissenting,
	})
	return err
}

func resolutionView(resolution *resolve.Result) *dedupe.ResolutionView {
	view := &dedupe.ResolutionView{}
	if c := resolve.Top(resolution.ComposerCandidates); c != nil && c.Tier.AtLeast(types.ConfidenceMedium) {
		view.ComposerID = &c.ID
	}
	if c := resolve.Top(resolution.RagaCandidates); c != nil && c.Tier.AtLeast(types.ConfidenceMedium) {
		view.RagaID = &c.ID
	}
	return view
}

func candidateID(candidates []resolve.Candidate) *uuid.UUID {
	top := resolve.Top(candidates)
	if top == nil || !top.Tier.AtLeast(types.ConfidenceMedium) {
		return nil
	}
	id := top.ID
	return &id
}

func sourceRef(task *types.ExtractionTask) SourceRef {
	return SourceRef{
		URL:       task.SourceURL,
		Tier:      task.SourceTier,
		Label:     task.SourceName,
		Authority: task.SourceTier <= authorityTier,
	}
}

func contributedFields(staged *types.ImportedKrithi) datatypes.JSON {
	fields := []string{}
	if staged.RawTitle != "" {
		fields = append(fields, "title")
	}
	if staged.RawLyrics != "" {
		fields = append(fields, "lyrics")
	}
	if staged.RawComposer != "" {
		fields = append(fields, "composer")
	}
	if staged.RawRaga != "" {
		fields = append(fields, "raga")
	}
	if staged.RawTala != "" {
		fields = append(fields, "tala")
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

func acceptedStructure(krithi *types.Krithi) []parser.SectionType {
	if len(krithi.Structure) == 0 {
		return nil
	}
	var sections []parser.Section
	if err := json.Unmarshal(krithi.Structure, &sections); err != nil {
		return nil
	}
	out := make([]parser.SectionType, 0, len(sections))
	for _, s := range sections {
		out = append(out, s.Type)
	}
	return out
}

func sameShape(a, b []parser.SectionType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
