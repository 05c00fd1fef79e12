// Package overview реализует HTTP-обработчик сводки по подписке аккаунта.
package overview

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/gigroute/billing/internal/http/middlewarectx"
	"github.com/gigroute/billing/internal/http/response"
	"github.com/gigroute/billing/internal/lib/sl"
	billingservice "github.com/gigroute/billing/internal/services/billing"
)

// Service описывает интерфейс получения сводки по подписке.
type Service interface {
	GetOverview(ctx context.Context, accountUID string) (*billingservice.Overview, error)
}

// Handler управляет HTTP-запросами сводки по подписке.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Сводка по подписке: план, статус, лимиты и потребление
// @Tags Billing
// @Produce json
// @Success 200 {object} billingservice.Overview
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /billing/subscription [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.overview"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	_, _, accountUID, ok := middlewarectx.AccountFromContext(r.Context())
	if !ok {
		log.Error("account not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	overview, err := h.service.GetOverview(r.Context(), accountUID)
	if err != nil {
		log.Error("failed to load subscription overview", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not load subscription overview"))
		return
	}

	log.Info("subscription overview loaded")
	render.JSON(w, r, response.OKWithData(overview))
}
