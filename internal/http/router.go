// README: HTTP router registration. Authenticated API routes sit behind the
// Firebase middleware; the gateway webhook authenticates by signature only.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"levo/internal/http/handlers"
	"levo/internal/http/middleware"
	"levo/internal/infra"
	"levo/internal/modules/location"
	"levo/internal/modules/order"
	"levo/internal/modules/payment"
	"levo/internal/modules/pricing"
)

type RouterDeps struct {
	Order    *order.Service
	Payment  *payment.Service
	Pricing  *pricing.Service
	Location *location.Service
	Geocoder handlers.Geocoder

	Reconciler    *payment.Reconciler
	WebhookSecret string

	Verifier infra.TokenVerifier
	Log      *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	webhookHandler := handlers.NewWebhookHandler(deps.WebhookSecret, deps.Reconciler)
	r.POST("/webhooks/gateway", webhookHandler.Handle)

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	quoteHandler := handlers.NewQuoteHandler(deps.Pricing)
	api.POST("/quotes", quoteHandler.Quote)

	orderHandler := handlers.NewOrderHandler(deps.Order)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders", orderHandler.List)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/transition", orderHandler.Transition)

	paymentHandler := handlers.NewPaymentHandler(deps.Payment)
	api.POST("/orders/:id/payment", paymentHandler.Request)
	api.GET("/orders/:id/payment/pix", paymentHandler.PixDetails)
	api.GET("/orders/:id/payment/status", paymentHandler.Status)
	api.POST("/orders/:id/payout", paymentHandler.Payout)

	locationHandler := handlers.NewLocationHandler(deps.Location)
	api.PUT("/couriers/location", locationHandler.Update)
	api.GET("/couriers/nearby", locationHandler.Nearby)

	addressHandler := handlers.NewAddressHandler(deps.Geocoder)
	api.GET("/addresses/search", addressHandler.Search)
	api.GET("/addresses/cep/:cep", addressHandler.ByPostalCode)

	return r
}
