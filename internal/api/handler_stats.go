package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coffee-booking-backend/internal/model"
)

// GetReactions handles GET /api/reactions.
func (h *Handler) GetReactions(c *gin.Context) {
	rc, err := h.bookings.Reactions(c.Request.Context())
	if err != nil {
		fail(c, err, "Failed to load reactions")
		return
	}
	c.JSON(http.StatusOK, rc)
}

type reactionRequest struct {
	Kind model.ReactionKind `json:"kind" binding:"required"`
}

// PostReaction handles POST /api/reactions.
func (h *Handler) PostReaction(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	rc, err := h.bookings.React(c.Request.Context(), req.Kind)
	if err != nil {
		fail(c, err, "Failed to save reaction")
		return
	}
	c.JSON(http.StatusOK, rc)
}

// RecordVisit handles GET and POST /api/visit-stats.
func (h *Handler) RecordVisit(c *gin.Context) {
	stats, err := h.bookings.RecordVisit(c.Request.Context())
	if err != nil {
		fail(c, err, "Failed to record visit")
		return
	}
	c.JSON(http.StatusOK, stats)
}
