// Package stopcreate реализует HTTP-обработчик добавления даты в тур.
package stopcreate

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/gigroute/billing/internal/http/middlewarectx"
	"github.com/gigroute/billing/internal/http/response"
	"github.com/gigroute/billing/internal/lib/sl"
	"github.com/gigroute/billing/internal/models"
	"github.com/gigroute/billing/internal/services/quota"
	tourservice "github.com/gigroute/billing/internal/services/tour"
)

// Service описывает интерфейс бизнес-логики добавления даты тура.
type Service interface {
	AddStop(ctx context.Context, accountUID string, tourID int, req models.DummyTourStop) (int, quota.Result, error)
}

// Handler управляет HTTP-запросами на добавление даты тура.
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
// @Summary Добавить дату в тур
// @Tags Tours
// @Accept json
// @Produce json
// @Param id path int true "ID тура"
// @Param request body models.DummyTourStop true "Данные даты"
// @Success 200 {object} map[string]any "ID созданной даты"
// @Failure 400 {object} response.ErrorResponse "Некорректный запрос"
// @Failure 404 {object} response.ErrorResponse "Тур не найден"
// @Failure 422 {object} response.ErrorResponse "Превышен лимит тарифа"
// @Router /tours/{id}/stops [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tour.stopcreate"
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

	tourID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		log.Error("invalid tour id", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid tour id"))
		return
	}

	var req models.DummyTourStop
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

	id, res, err := h.service.AddStop(r.Context(), accountUID, tourID, req)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		log.Info("tour not found", slog.Int("tour_id", tourID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("tour not found"))
		return
	case errors.Is(err, tourservice.ErrNotOwner):
		// Чужой тур не раскрываем, отвечаем как на отсутствующий.
		log.Warn("tour owned by another account", slog.Int("tour_id", tourID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("tour not found"))
		return
	case err != nil:
		log.Error("failed to add tour stop", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not add tour stop"))
		return
	}
	if !res.Allowed {
		log.Info("stop creation rejected by plan limit",
			slog.Int("current", res.Current),
			slog.Int("max", res.Max))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ErrorWithData("plan limit reached", map[string]any{
			"current": res.Current,
			"max":     res.Max,
		}))
		return
	}

	log.Info("tour stop created", slog.Int("id", id), slog.Int("tour_id", tourID))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"id": id,
	}))
}
