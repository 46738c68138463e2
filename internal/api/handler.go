package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"coffee-booking-backend/internal/booking"
	"coffee-booking-backend/internal/invitation"
	"coffee-booking-backend/internal/live"
	"coffee-booking-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	bookings    *booking.Service
	invitations *invitation.Service
	subs        store.SubscriptionStore
	live        *live.Hub
	webpush     *webpush.Options
}

// NewHandler creates a new API handler. hub and webpushOptions may be nil.
func NewHandler(bookings *booking.Service, invitations *invitation.Service, subs store.SubscriptionStore, hub *live.Hub, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		bookings:    bookings,
		invitations: invitations,
		subs:        subs,
		live:        hub,
		webpush:     webpushOptions,
	}
}

const errInvalidRequest = "invalid request"

func statusFor(err error) int {
	switch {
	case errors.Is(err, booking.ErrInvalidSlot),
		errors.Is(err, booking.ErrAlreadyBooked),
		errors.Is(err, booking.ErrInvalidBooker),
		errors.Is(err, booking.ErrInvalidReaction),
		errors.Is(err, booking.ErrConfirmationRequired),
		errors.Is(err, invitation.ErrInvalidAction),
		errors.Is(err, invitation.ErrRecipientRequired),
		errors.Is(err, invitation.ErrInvalidUserID):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, invitation.ErrNotRecipient):
		return http.StatusForbidden
	case errors.Is(err, invitation.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Client errors carry their own message;
// server errors are logged and answered with fallback.
func fail(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %s: %v", c.Request.Method, c.FullPath(), fallback, err)
		c.AbortWithStatusJSON(status, gin.H{"error": fallback})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// Healthz reports that the process is serving.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
