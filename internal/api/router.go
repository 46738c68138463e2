package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"coffee-booking-backend/config"
	"coffee-booking-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. The HTTP respond
// endpoint is only registered when card callbacks are not delivered by the
// chat platform.
func NewRouter(h *Handler, cfg config.ServerConfig, chat config.LarkConfig) *gin.Engine {
	r := gin.Default()

	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, 10*time.Minute)

	r.GET("/healthz", Healthz)

	api := r.Group("/api")
	api.Use(mw.RateLimiter(limiter, cfg.RequestIPHeader))
	{
		api.GET("/booking-slots", h.GetLedger)
		api.POST("/booking-slots", h.BookSlot)
		api.POST("/booking-slots/reset", h.ResetLedger)
		api.GET("/booking-slots/live", h.LiveLedger)

		api.GET("/reactions", h.GetReactions)
		api.POST("/reactions", h.PostReaction)

		api.GET("/visit-stats", h.RecordVisit)
		api.POST("/visit-stats", h.RecordVisit)

		api.POST("/send-invitation", h.SendInvitation)
		api.GET("/invitations/:id", h.GetInvitation)
		if !chat.CallbacksEnabled() {
			api.POST("/invitations/:id/respond", h.RespondInvitation)
		}

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}

// WithCORS wraps the router for browser clients on allowedOrigins. An empty
// list allows every origin.
func WithCORS(h http.Handler, allowedOrigins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(h)
}
