// Package checkout реализует HTTP-обработчик запуска оплаты тарифа Pro.
//
// Handler создаёт checkout-сессию у платёжного провайдера и возвращает
// URL для редиректа. План и статус аккаунта здесь не меняются: активация
// происходит только после асинхронного webhook-события провайдера.
package checkout

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

// Service описывает интерфейс бизнес-логики создания checkout-сессии.
type Service interface {
	CreateCheckoutSession(ctx context.Context, account billingservice.Account) (string, error)
}

// Handler управляет HTTP-запросами на создание checkout-сессии.
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
// @Summary Начать оплату тарифа Pro
// @Description Создаёт checkout-сессию у платёжного провайдера и возвращает URL для редиректа.
// @Tags Billing
// @Produce json
// @Success 200 {object} map[string]any "URL checkout-сессии"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 502 {object} response.ErrorResponse "Провайдер недоступен"
// @Router /billing/checkout [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.checkout"
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
	checkoutURL, err := h.service.CreateCheckoutSession(r.Context(), account)
	if err != nil {
		log.Error("failed to create checkout session", sl.Err(err))
		w.WriteHeader(http.StatusBadGateway)
		render.JSON(w, r, response.ErrorWithData("could not create checkout session", map[string]any{
			"redirect": "/billing/pricing",
		}))
		return
	}

	log.Info("checkout session created")
	render.JSON(w, r, response.OKWithData(map[string]any{
		"checkout_url": checkoutURL,
	}))
}
