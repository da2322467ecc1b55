package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sangitam/krithi-backend/internal/services"
	"github.com/sangitam/krithi-backend/internal/types"
)

type ExtractionHandler struct {
	extractionService services.ExtractionService
}

func NewExtractionHandler(extractionService services.ExtractionService) *ExtractionHandler {
	return &ExtractionHandler{extractionService: extractionService}
}

func (eh *ExtractionHandler) Stats(c *gin.Context) {
	stats, err := eh.extractionService.Stats(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "stats_failed", err)
		return
	}
	RespondOK(c, stats)
}

func (eh *ExtractionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	task, err := eh.extractionService.GetTask(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "extraction_get_failed", err)
		return
	}
	if task == nil {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	RespondOK(c, task)
}

func (eh *ExtractionHandler) ListByStatus(c *gin.Context) {
	status := types.ExtractionStatus(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	tasks, err := eh.extractionService.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "extraction_list_failed", err)
		return
	}
	RespondOK(c, tasks)
}

func (eh *ExtractionHandler) Retry(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	if err := eh.extractionService.Retry(c.Request.Context(), id); err != nil {
		RespondError(c, http.StatusConflict, "retry_failed", err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (eh *ExtractionHandler) RetryAllFailed(c *gin.Context) {
	n, err := eh.extractionService.RetryAllFailed(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "retry_all_failed", err)
		return
	}
	RespondOK(c, gin.H{"retried": n})
}

func (eh *ExtractionHandler) Cancel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	if err := eh.extractionService.Cancel(c.Request.Context(), id); err != nil {
		RespondError(c, http.StatusConflict, "cancel_failed", err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (eh *ExtractionHandler) EnqueueEnrich(c *gin.Context) {
	relatedID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	var req services.BatchSource
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	task, err := eh.extractionService.EnqueueEnrich(c.Request.Context(), relatedID, req)
	if err != nil {
		RespondError(c, http.StatusConflict, "enrich_enqueue_failed", err)
		return
	}
	c.JSON(http.StatusCreated, task)
}
