package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sangitam/krithi-backend/internal/ingestion/parser"
	"github.com/sangitam/krithi-backend/internal/middleware"
	"github.com/sangitam/krithi-backend/internal/services"
	"github.com/sangitam/krithi-backend/internal/types"
)

type ReviewHandler struct {
	reviewService services.ReviewService
}

func NewReviewHandler(reviewService services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

func (rh *ReviewHandler) ListStaged(c *gin.Context) {
	status := types.ImportStatus(c.DefaultQuery("status", string(types.ImportInReview)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := rh.reviewService.ListStaged(c.Request.Context(), status, limit)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "staged_list_failed", err)
		return
	}
	RespondOK(c, rows)
}

func (rh *ReviewHandler) GetStaged(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	row, err := rh.reviewService.GetStaged(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "staged_get_failed", err)
		return
	}
	if row == nil {
		RespondError(c, http.StatusNotFound, "not_found", nil)
		return
	}
	RespondOK(c, row)
}

func (rh *ReviewHandler) ApproveStaged(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	reviewerID, ok := middleware.UserIDFrom(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("no reviewer identity"))
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	_ = c.ShouldBindJSON(&req)
	krithi, err := rh.reviewService.ApproveStaged(c.Request.Context(), id, reviewerID, req.Notes)
	if err != nil {
		RespondError(c, http.StatusConflict, "approve_failed", err)
		return
	}
	RespondOK(c, krithi)
}

func (rh *ReviewHandler) RejectStaged(c *gin.Context) {
	rh.statusChange(c, rh.reviewService.RejectStaged)
}

func (rh *ReviewHandler) DiscardStaged(c *gin.Context) {
	rh.statusChange(c, rh.reviewService.DiscardStaged)
}

func (rh *ReviewHandler) ListVotes(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	votes, err := rh.reviewService.ListVotes(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "votes_list_failed", err)
		return
	}
	RespondOK(c, votes)
}

func (rh *ReviewHandler) OverrideStructure(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	reviewerID, ok := middleware.UserIDFrom(c)
	if !ok {
		RespondError(c, http.StatusForbidden, "forbidden", fmt.Errorf("no reviewer identity"))
		return
	}
	var req struct {
		Sections []parser.Section `json:"sections" binding:"required"`
		Notes    string           `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	entry, err := rh.reviewService.OverrideStructure(c.Request.Context(), id, reviewerID, req.Sections, req.Notes)
	if err != nil {
		RespondError(c, http.StatusConflict, "override_failed", err)
		return
	}
	RespondOK(c, entry)
}

func (rh *ReviewHandler) ListVariantMatches(c *gin.Context) {
	status := types.MatchStatus(c.DefaultQuery("status", string(types.MatchPending)))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	matches, err := rh.reviewService.ListVariantMatches(c.Request.Context(), status, limit)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "matches_list_failed", err)
		return
	}
	RespondOK(c, matches)
}

func (rh *ReviewHandler) ReviewVariantMatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	var req struct {
		Approve bool   `json:"approve"`
		Notes   string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := rh.reviewService.ReviewVariantMatch(c.Request.Context(), id, req.Approve, req.Notes); err != nil {
		RespondError(c, http.StatusConflict, "match_review_failed", err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (rh *ReviewHandler) ListEvidence(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	evidence, err := rh.reviewService.ListEvidence(c.Request.Context(), id)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "evidence_list_failed", err)
		return
	}
	RespondOK(c, evidence)
}

func (rh *ReviewHandler) statusChange(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_id", err)
		return
	}
	if err := fn(c.Request.Context(), id); err != nil {
		RespondError(c, http.StatusConflict, "status_change_failed", err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}
