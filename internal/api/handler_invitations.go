package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sendInvitationRequest struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Message     string `json:"message"`
}

// SendInvitation handles POST /api/send-invitation.
func (h *Handler) SendInvitation(c *gin.Context) {
	var req sendInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	inv, err := h.invitations.Create(c.Request.Context(), req.SenderID, req.RecipientID, req.Message)
	if err != nil {
		fail(c, err, "Failed to send invitation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invitation": inv})
}

// GetInvitation handles GET /api/invitations/:id.
func (h *Handler) GetInvitation(c *gin.Context) {
	inv, err := h.invitations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "Failed to load invitation")
		return
	}
	c.JSON(http.StatusOK, inv)
}

type respondInvitationRequest struct {
	Action     string `json:"action" binding:"required"`
	OperatorID string `json:"operatorId" binding:"required"`
}

// RespondInvitation handles POST /api/invitations/:id/respond, the HTTP
// equivalent of pressing a card button. It is only routed when card
// callbacks are not received over the long connection.
func (h *Handler) RespondInvitation(c *gin.Context) {
	var req respondInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	inv, err := h.invitations.HandleCallback(c.Request.Context(), c.Param("id"), req.Action, req.OperatorID)
	if err != nil {
		fail(c, err, "Failed to update invitation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "invitation": inv})
}
