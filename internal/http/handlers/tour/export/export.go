// Package export реализует HTTP-обработчик выгрузки тура с датами.
//
// Выгрузка доступна только планам с возможностью "api": на остальных
// запрос отклоняется HTTP 403 без чтения данных тура.
package export

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

	"github.com/gigroute/billing/internal/http/middlewarectx"
	"github.com/gigroute/billing/internal/http/response"
	"github.com/gigroute/billing/internal/lib/sl"
	"github.com/gigroute/billing/internal/models"
	tourservice "github.com/gigroute/billing/internal/services/tour"
)

// featureAPI возможность плана, открывающая программную выгрузку.
const featureAPI = "api"

// Service описывает интерфейс бизнес-логики выгрузки тура.
type Service interface {
	HasFeature(ctx context.Context, accountUID, feature string) (bool, error)
	Export(ctx context.Context, accountUID string, tourID int) (*models.Tour, []*models.TourStop, error)
}

// Handler управляет HTTP-запросами выгрузки тура.
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
// @Summary Выгрузить тур с датами
// @Tags Tours
// @Produce json
// @Param id path int true "ID тура"
// @Success 200 {object} map[string]any "Тур и его даты"
// @Failure 403 {object} response.ErrorResponse "План не включает возможность api"
// @Failure 404 {object} response.ErrorResponse "Тур не найден"
// @Router /tours/{id}/export [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tour.export"
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

	allowed, err := h.service.HasFeature(r.Context(), accountUID, featureAPI)
	if err != nil {
		log.Error("failed to check plan feature", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not export tour"))
		return
	}
	if !allowed {
		log.Info("export rejected: feature not in plan")
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("current plan does not include api access"))
		return
	}

	tour, stops, err := h.service.Export(r.Context(), accountUID, tourID)
	switch {
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, tourservice.ErrNotOwner):
		log.Info("tour not found", slog.Int("tour_id", tourID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("tour not found"))
		return
	case err != nil:
		log.Error("failed to export tour", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not export tour"))
		return
	}

	log.Info("tour exported", slog.Int("tour_id", tourID), slog.Int("stops", len(stops)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"tour":  tour,
		"stops": stops,
	}))
}
