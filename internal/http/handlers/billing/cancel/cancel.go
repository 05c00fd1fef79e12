// Package cancel реализует HTTP-обработчик отмены подписки.
//
// Отмена помечает подписку флагом cancel_at_period_end: доступ к Pro
// сохраняется до конца оплаченного периода, даунгрейд до Free выполняет
// webhook-событие удаления подписки.
package cancel

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/gigroute/billing/internal/http/middlewarectx"
	"github.com/gigroute/billing/internal/http/response"
	"github.com/gigroute/billing/internal/lib/sl"
	"github.com/gigroute/billing/internal/models"
)

// Service описывает интерфейс бизнес-логики отмены подписки.
type Service interface {
	Cancel(ctx context.Context, accountUID string) (*models.Entitlement, error)
}

// Handler управляет HTTP-запросами на отмену подписки.
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
// @Summary Отменить подписку в конце периода
// @Tags Billing
// @Produce json
// @Success 200 {object} response.Response
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /billing/cancel [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.cancel"
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

	ent, err := h.service.Cancel(r.Context(), accountUID)
	if err != nil {
		log.Error("failed to cancel subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not cancel subscription"))
		return
	}

	log.Info("subscription marked for cancellation",
		sl.UID(accountUID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"cancel_at_period_end": ent.CancelAtPeriodEnd,
	}))
}
