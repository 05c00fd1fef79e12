// Package create реализует HTTP-обработчик создания тура.
//
// Отказ квотной проверки — ожидаемый исход, а не ошибка: возвращается
// HTTP 422 с наблюдавшимися счётчиками лимита.
package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/gigroute/billing/internal/http/middlewarectx"
	"github.com/gigroute/billing/internal/http/response"
	"github.com/gigroute/billing/internal/lib/sl"
	"github.com/gigroute/billing/internal/models"
	"github.com/gigroute/billing/internal/services/quota"
)

// Service описывает интерфейс бизнес-логики создания тура.
type Service interface {
	Create(ctx context.Context, accountUID string, req models.DummyTour) (int, quota.Result, error)
}

// Handler управляет HTTP-запросами на создание тура.
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
// @Summary Создать тур
// @Description Создаёт тур, если лимит тарифа позволяет. При превышении лимита возвращает 422 со счётчиками.
// @Tags Tours
// @Accept json
// @Produce json
// @Param request body models.DummyTour true "Данные тура"
// @Success 200 {object} map[string]any "ID созданного тура"
// @Failure 400 {object} response.ErrorResponse "Некорректное тело запроса"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Превышен лимит тарифа"
// @Router /tours [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tour.create"
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

	var req models.DummyTour
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := validator.New().Struct(req); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			log.Error("invalid request", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErrs))
			return
		}
		log.Error("failed to validate request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request"))
		return
	}

	id, res, err := h.service.Create(r.Context(), accountUID, req)
	if err != nil {
		log.Error("failed to create tour", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not create tour"))
		return
	}
	if !res.Allowed {
		log.Info("tour creation rejected by plan limit",
			slog.Int("current", res.Current),
			slog.Int("max", res.Max))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ErrorWithData("plan limit reached", map[string]any{
			"current": res.Current,
			"max":     res.Max,
		}))
		return
	}

	log.Info("tour created", slog.Int("id", id))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"id": id,
	}))
}
