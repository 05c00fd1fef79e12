// Package list реализует HTTP-обработчик списка туров аккаунта.
package list

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/gigroute/billing/internal/http/middlewarectx"
	"github.com/gigroute/billing/internal/http/response"
	"github.com/gigroute/billing/internal/lib/sl"
	"github.com/gigroute/billing/internal/models"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Service описывает интерфейс получения списка туров.
type Service interface {
	List(ctx context.Context, accountUID string, limit, offset int) ([]*models.Tour, error)
}

// Handler управляет HTTP-запросами списка туров.
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
// @Summary Список туров аккаунта
// @Tags Tours
// @Produce json
// @Param limit query int false "Размер страницы"
// @Param offset query int false "Смещение"
// @Success 200 {array} models.Tour
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Router /tours/list [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.tour.list"
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

	limit := defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}

	tours, err := h.service.List(r.Context(), accountUID, limit, offset)
	if err != nil {
		log.Error("failed to list tours", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list tours"))
		return
	}

	log.Info("tours listed", slog.Int("count", len(tours)))
	render.JSON(w, r, response.OKWithData(tours))
}
