// Package webhook реализует HTTP-обработчик webhook-событий платёжного
// провайдера.
//
// Единственная причина ответить не-2xx — невалидная подпись: провайдер
// повторяет доставку только при ошибке, и повтор события с плохим телом
// ничего не исправит. Любое принятое событие подтверждается HTTP 200,
// даже если обработка его пропустила.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/gigroute/billing/internal/http/response"
	"github.com/gigroute/billing/internal/lib/sl"
	"github.com/gigroute/billing/internal/paymentprovider"
)

// maxBodyBytes ограничивает размер тела webhook-запроса.
const maxBodyBytes = 1 << 16

// Service описывает интерфейс обработки webhook-событий.
type Service interface {
	ProcessEvent(ctx context.Context, event paymentprovider.Event) error
}

// Handler управляет HTTP-запросами webhook-событий провайдера.
type Handler struct {
	log       *slog.Logger
	service   Service
	secret    string
	tolerance time.Duration
}

// New создает новый Handler с переданными логгером, сервисом и секретом подписи.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:       log,
		service:   service,
		secret:    secret,
		tolerance: paymentprovider.DefaultSignatureTolerance,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.webhook"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	header := r.Header.Get("Stripe-Signature")
	if err := paymentprovider.VerifySignature(payload, header, h.secret, h.tolerance); err != nil {
		if !errors.Is(err, paymentprovider.ErrInvalidSignature) {
			log.Error("failed to verify webhook signature", sl.Err(err))
		} else {
			log.Warn("webhook signature verification failed")
		}
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid signature"))
		return
	}

	var event paymentprovider.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		// Подпись сошлась, тело пришло от провайдера как есть.
		log.Warn("failed to decode webhook payload", sl.Err(err))
		render.JSON(w, r, response.OK())
		return
	}

	if err := h.service.ProcessEvent(r.Context(), event); err != nil {
		// Контракт ответа: не-2xx только при невалидной подписи.
		log.Error("failed to process webhook event",
			slog.String("event_type", event.Type),
			slog.String("event_id", event.ID),
			sl.Err(err))
		render.JSON(w, r, response.OK())
		return
	}

	log.Info("webhook event acknowledged",
		slog.String("event_type", event.Type),
		slog.String("event_id", event.ID))
	render.JSON(w, r, response.OK())
}
