package jobs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sangitam/krithi-backend/internal/ingestion/pipeline"
	"github.com/sangitam/krithi-backend/internal/logger"
	"github.com/sangitam/krithi-backend/internal/repos"
)

// CatalogWriteHandler consumes a DONE extraction and runs it through the
// catalog writer. The task's krithi_key carries the extraction ID.
type CatalogWriteHandler struct {
	log    *logger.Logger
	writer *pipeline.Writer
}

func NewCatalogWriteHandler(baseLog *logger.Logger, writer *pipeline.Writer) *CatalogWriteHandler {
	return &CatalogWriteHandler{
		log:    baseLog.With("handler", JobTypeCatalogWrite),
		writer: writer,
	}
}

func (h *CatalogWriteHandler) Type() string { return JobTypeCatalogWrite }

func (h *CatalogWriteHandler) Run(jc *Context) error {
	if jc.Task.KrithiKey == nil || *jc.Task.KrithiKey == "" {
		err := fmt.Errorf("catalog-write task %s has no krithi_key", jc.Task.ID)
		_ = jc.Fail(err)
		return err
	}
	extractionID, err := uuid.Parse(*jc.Task.KrithiKey)
	if err != nil {
		err = fmt.Errorf("catalog-write task %s: bad extraction id %q: %w", jc.Task.ID, *jc.Task.KrithiKey, err)
		_ = jc.Fail(err)
		return err
	}

	outcome, err := h.writer.Ingest(jc.Ctx, extractionID)
	if err != nil {
		_ = jc.Fail(err)
		return err
	}
	if outcome.AlreadyIngested {
		// Re-delivery after a crash between ingest and completion. The
		// original delivery already counted it.
		return jc.Succeed(extractionID.String())
	}
	if !outcome.AutoApproved && outcome.KrithiID == nil {
		_ = jc.Block(outcome.Reason)
		return nil
	}
	jc.Bump(repos.CounterDeltas{Processed: 1, Succeeded: 1})
	return jc.Succeed(extractionID.String())
}
