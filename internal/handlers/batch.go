package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sangitam/krithi-backend/internal/services"
)

type BatchHandler struct {
	batchService services.BatchService
}

func NewBatchHandler(batchService services.BatchService) *BatchHandler {
	return &BatchHandler{batchService: batchService}
}

func (bh *BatchHandler) Submit(c *gin.Context) {
	var req struct {
		Sources []services.BatchSource `json:"sources" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	batch, err := bh.batchService.CreateBatch(c.Request.Context(), req.Sources)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "batch_create_failed", err)
		return
	}
	c.JSON(http.StatusCreated, batch)
}

func (bh *BatchHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	batch, err := bh.batchService.GetBatch(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "batch_get_failed", err)
		return
	}
	if batch == nil {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	RespondOK(c, batch)
}

func (bh *BatchHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	batches, err := bh.batchService.ListBatches(c.Request.Context(), limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "batch_list_failed", err)
		return
	}
	RespondOK(c, batches)
}

func (bh *BatchHandler) Pause(c *gin.Context) {
	bh.transition(c, bh.batchService.PauseBatch)
}

func (bh *BatchHandler) Resume(c *gin.Context) {
	bh.transition(c, bh.batchService.ResumeBatch)
}

func (bh *BatchHandler) Cancel(c *gin.Context) {
	bh.transition(c, bh.batchService.CancelBatch)
}

func (bh *BatchHandler) RequeueFailed(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	n, err := bh.batchService.RequeueFailed(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusConflict, "requeue_failed", err)
		return
	}
	RespondOK(c, gin.H{"requeued": n})
}

func (bh *BatchHandler) ScheduleDedupePass(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	if err := bh.batchService.ScheduleDedupePass(c.Request.Context(), id); err != nil {
		RespondError(c, http.StatusConflict, "dedupe_schedule_failed", err)
		return
	}
	RespondOK(c, gin.H{"scheduled": true})
}

func (bh *BatchHandler) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	if err := fn(c.Request.Context(), id); err != nil {
		RespondError(c, http.StatusConflict, "transition_failed", err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}
