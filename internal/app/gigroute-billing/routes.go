// Package gigroutebilling предоставляет маршруты для основного приложения.
package gigroutebilling

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/gigroute/billing/internal/config"
	"github.com/gigroute/billing/internal/http/handlers/billing/cancel"
	"github.com/gigroute/billing/internal/http/handlers/billing/checkout"
	"github.com/gigroute/billing/internal/http/handlers/billing/overview"
	"github.com/gigroute/billing/internal/http/handlers/billing/portal"
	"github.com/gigroute/billing/internal/http/handlers/billing/webhook"
	"github.com/gigroute/billing/internal/http/handlers/tour/create"
	"github.com/gigroute/billing/internal/http/handlers/tour/export"
	"github.com/gigroute/billing/internal/http/handlers/tour/list"
	"github.com/gigroute/billing/internal/http/handlers/tour/stopcreate"
	"github.com/gigroute/billing/internal/http/middlewarectx"
	libjwt "github.com/gigroute/billing/internal/lib/jwt"
	billingservice "github.com/gigroute/billing/internal/services/billing"
	tourservice "github.com/gigroute/billing/internal/services/tour"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	jwtMaker *libjwt.MakerImpl, billingService *billingservice.Service,
	webhookProcessor *billingservice.Processor, tourService *tourservice.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger, 10, 20))

			r.Post("/billing/checkout", checkout.New(logger, billingService).ServeHTTP)
			r.Post("/billing/portal", portal.New(logger, billingService).ServeHTTP)
			r.Post("/billing/cancel", cancel.New(logger, billingService).ServeHTTP)
			r.Get("/billing/subscription", overview.New(logger, billingService).ServeHTTP)

			r.Post("/tours", create.New(logger, tourService).ServeHTTP)
			r.Get("/tours/list", list.New(logger, tourService).ServeHTTP)
			r.Post("/tours/{id}/stops", stopcreate.New(logger, tourService).ServeHTTP)
			r.Get("/tours/{id}/export", export.New(logger, tourService).ServeHTTP)
		})

		// Webhook endpoint (без аутентификации, подлинность по подписи)
		r.Post("/billing/webhook", webhook.New(logger, webhookProcessor, cfg.Stripe.WebhookSecret).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
