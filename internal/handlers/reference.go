package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sangitam/krithi-backend/internal/services"
	"github.com/sangitam/krithi-backend/internal/types"
)

type ReferenceHandler struct {
	referenceService services.ReferenceService
}

func NewReferenceHandler(referenceService services.ReferenceService) *ReferenceHandler {
	return &ReferenceHandler{referenceService: referenceService}
}

func (rh *ReferenceHandler) List(c *gin.Context) {
	entityType := types.EntityType(c.Param("entity"))
	entries, err := rh.referenceService.List(c.Request.Context(), entityType)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "reference_list_failed", err)
		return
	}
	RespondOK(c, entries)
}

func (rh *ReferenceHandler) AddAlias(c *gin.Context) {
	entityType := types.EntityType(c.Param("entity"))
	var req struct {
		CanonicalID uuid.UUID `json:"canonical_id" binding:"required"`
		Alias       string    `json:"alias" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	alias, err := rh.referenceService.AddAlias(c.Request.Context(), entityType, req.CanonicalID, req.Alias)
	if err != nil {
		RespondError(c, http.StatusConflict, "alias_create_failed", err)
		return
	}
	c.JSON(http.StatusCreated, alias)
}

func (rh *ReferenceHandler) SearchKrithis(c *gin.Context) {
	title := c.Query("title")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "25"))
	results, err := rh.referenceService.SearchKrithis(c.Request.Context(), title, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "krithi_search_failed", err)
		return
	}
	RespondOK(c, results)
}

func (rh *ReferenceHandler) GetKrithi(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	krithi, err := rh.referenceService.GetKrithi(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "krithi_get_failed", err)
		return
	}
	if krithi == nil {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	RespondOK(c, krithi)
}
