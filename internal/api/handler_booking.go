package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetLedger handles GET /api/booking-slots.
func (h *Handler) GetLedger(c *gin.Context) {
	ledger, err := h.bookings.ReadLedger(c.Request.Context())
	if err != nil {
		fail(c, err, "Failed to load booking slots")
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// bookSlotRequest accepts the slot under "time", "slot" or "slotId".
type bookSlotRequest struct {
	Name   string `json:"name" binding:"required"`
	Time   string `json:"time"`
	Slot   string `json:"slot"`
	SlotID string `json:"slotId"`
}

func (r bookSlotRequest) slot() string {
	for _, s := range []string{r.Time, r.Slot, r.SlotID} {
		if s != "" {
			return s
		}
	}
	return ""
}

// BookSlot handles POST /api/booking-slots.
func (h *Handler) BookSlot(c *gin.Context) {
	var req bookSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	ledger, err := h.bookings.BookSlot(c.Request.Context(), req.slot(), req.Name)
	if err != nil {
		fail(c, err, "Failed to book slot")
		return
	}
	c.JSON(http.StatusOK, ledger)
}

type resetRequest struct {
	Password string `json:"password" binding:"required"`
	Confirm  bool   `json:"confirm"`
}

// ResetLedger handles POST /api/booking-slots/reset.
func (h *Handler) ResetLedger(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	ledger, err := h.bookings.ResetLedger(c.Request.Context(), req.Password, req.Confirm)
	if err != nil {
		fail(c, err, "Failed to reset booking slots")
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// LiveLedger handles GET /api/booking-slots/live, a websocket that receives
// the ledger now and after every change.
func (h *Handler) LiveLedger(c *gin.Context) {
	if h.live == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates are disabled"})
		return
	}
	ledger, err := h.bookings.ReadLedger(c.Request.Context())
	if err != nil {
		fail(c, err, "Failed to load booking slots")
		return
	}
	h.live.ServeWS(c.Writer, c.Request, ledger)
}
