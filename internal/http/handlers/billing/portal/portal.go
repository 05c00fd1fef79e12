// Package portal реализует HTTP-обработчик перехода в кабинет
// управления подпиской у платёжного провайдера.
package portal

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

// Service описывает интерфейс бизнес-логики создания portal-сессии.
type Service interface {
	CreatePortalSession(ctx context.Context, account billingservice.Account) (string, error)
}

// Handler управляет HTTP-запросами на создание portal-сессии.
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
// @Summary Открыть кабинет управления подпиской
// @Tags Billing
// @Produce json
// @Success 200 {object} map[string]any "URL portal-сессии"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Router /billing/portal [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.portal"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	username, email, accountUID, ok := middlewarectx.AccountFromContext(r.Context())
	if !ok {
		log.Error("account not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	account := billingservice.Account{
		UID:      accountUID,
		Username: username,
		Email:    email,
	}
	portalURL, err := h.service.CreatePortalSession(r.Context(), account)
	if err != nil {
		log.Error("failed to create portal session", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.Error("could not create portal session"))
		return
	}

	log.Info("portal session created")
	render.JSON(w, r, response.OKWithData(map[string]any{
		"portal_url": portalURL,
	}))
}
