package jobs

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/sangitam/krithi-backend/internal/ingestion/dedupe"
	"github.com/sangitam/krithi-backend/internal/ingestion/resolve"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/repos"
	"github.com/sangitam/krithi-backend/internal/types"
)

const dedupePassLimit = 500

// DedupePassHandler re-runs duplicate detection over staged imports awaiting
// review. The catalog grows between a staging write and a human look, so the
// candidate list recorded at ingest time goes stale.
type DedupePassHandler struct {
	log      *logger.Logger
	staged   repos.ImportedKrithiRepo
	detector *dedupe.Detector
}

func NewDedupePassHandler(baseLog *logger.Logger, staged repos.ImportedKrithiRepo, detector *dedupe.Detector) *DedupePassHandler {
	return &DedupePassHandler{
		log:      baseLog.With("handler", JobTypeDedupePass),
		staged:   staged,
		detector: detector,
	}
}

func (h *DedupePassHandler) Type() string { return JobTypeDedupePass }

func (h *DedupePassHandler) Run(jc *Context) error {
	refreshed := 0
	for _, status := range []types.ImportStatus{types.ImportPending, types.ImportInReview} {
		rows, err := h.staged.ListByStatus(jc.Ctx, nil, status, dedupePassLimit)
		if err != nil {
			_ = jc.Fail(err)
			return err
		}
		for _, row := range rows {
			result, err := h.detector.FindDuplicates(jc.Ctx, nil, row, resolutionViewFromStored(row.ResolutionData))
			if err != nil {
				h.log.Warn("FindDuplicates failed", "staged_id", row.ID, "error", err)
				continue
			}
			raw, err := json.Marshal(result)
			if err != nil {
				continue
			}
			if err := h.staged.SetDuplicateCandidates(jc.Ctx, nil, row.ID, datatypes.JSON(raw)); err != nil {
				h.log.Warn("SetDuplicateCandidates failed", "staged_id", row.ID, "error", err)
				continue
			}
			refreshed++
		}
	}
	h.log.Info("Dedupe pass finished", "refreshed", refreshed)
	jc.Bump(repos.CounterDeltas{Processed: 1, Succeeded: 1})
	return jc.Succeed("")
}

// resolutionViewFromStored rebuilds the composer/raga view from the
// resolution JSON recorded at ingest time. Missing or unreadable data just
// weakens the duplicate grading, it never fails the pass.
func resolutionViewFromStored(raw datatypes.JSON) *dedupe.ResolutionView {
	view := &dedupe.ResolutionView{}
	if len(raw) == 0 {
		return view
	}
	var stored resolve.Result
	if err := json.Unmarshal(raw, &stored); err != nil {
		return view
	}
	if c := resolve.Top(stored.ComposerCandidates); c != nil && c.Tier.AtLeast(types.ConfidenceMedium) {
		view.ComposerID = &c.ID
	}
	if c := resolve.Top(stored.RagaCandidates); c != nil && c.Tier.AtLeast(types.ConfidenceMedium) {
		view.RagaID = &c.ID
	}
	return view
}
