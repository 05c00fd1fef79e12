// Package tour содержит бизнес-логику создания и чтения туров и их дат.
// Создание проходит квотную проверку и транзакционное резервирование
// места под лимитом тарифа.
package tour

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigroute/billing/internal/lib/sl"
	"github.com/gigroute/billing/internal/metrics"
	"github.com/gigroute/billing/internal/models"
	"github.com/gigroute/billing/internal/plans"
	"github.com/gigroute/billing/internal/services/quota"
	"github.com/gigroute/billing/internal/storage/repository"
)

// ErrNotOwner возвращается при попытке работать с чужим туром.
var ErrNotOwner = errors.New("tour belongs to another account")

// Repository определяет методы хранилища туров.
type Repository interface {
	CreateTourReserved(ctx context.Context, tour models.Tour, max int) (int, int, error)
	CreateStopReserved(ctx context.Context, stop models.TourStop, max int) (int, int, error)
	GetTour(ctx context.Context, id int) (*models.Tour, error)
	ListTours(ctx context.Context, accountUID string, limit, offset int) ([]*models.Tour, error)
	ListStops(ctx context.Context, tourID int) ([]*models.TourStop, error)
}

// EntitlementProvider отдаёт запись о тарифе аккаунта.
type EntitlementProvider interface {
	Ensure(ctx context.Context, accountUID string) (*models.Entitlement, error)
}

// Service реализует бизнес-логику туров.
type Service struct {
	repo         Repository
	entitlements EntitlementProvider
	gate         *quota.Gate
	log          *slog.Logger
}

// New создает новый Service.
func New(repo Repository, entitlements EntitlementProvider, gate *quota.Gate, log *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		entitlements: entitlements,
		gate:         gate,
		log:          log,
	}
}

// Create создаёт тур, если лимит тарифа позволяет. Квотная проверка
// выполняется непосредственно перед записью, а сама запись ещё раз
// перепроверяет лимит под замком аккаунта, поэтому конкурентные
// создатели не перешагивают лимит. Отказ по квоте возвращается как
// результат с наблюдавшимися счётчиками, без ошибки.
func (s *Service) Create(ctx context.Context, accountUID string, req models.DummyTour) (int, quota.Result, error) {
	startDate, err := time.Parse("02-01-2006", req.StartDate)
	if err != nil {
		return 0, quota.Result{}, fmt.Errorf("invalid start date: %w", err)
	}
	var endDate *time.Time
	if req.EndDate != "" {
		parsed, err := time.Parse("02-01-2006", req.EndDate)
		if err != nil {
			return 0, quota.Result{}, fmt.Errorf("invalid end date: %w", err)
		}
		endDate = &parsed
	}

	res, err := s.gate.Check(ctx, accountUID, quota.ResourceTour, 0)
	if err != nil {
		return 0, quota.Result{}, err
	}
	if !res.Allowed {
		metrics.QuotaRejectionsTotal.WithLabelValues(string(quota.ResourceTour)).Inc()
		return 0, res, nil
	}

	ent, err := s.entitlements.Ensure(ctx, accountUID)
	if err != nil {
		return 0, quota.Result{}, err
	}
	max := plans.LimitsFor(ent.EffectivePlan()).MaxTours

	entry := models.Tour{
		AccountUID: accountUID,
		Name:       req.Name,
		StartDate:  startDate,
		EndDate:    endDate,
	}
	id, current, err := s.repo.CreateTourReserved(ctx, entry, max)
	if errors.Is(err, repository.ErrLimitReached) {
		// Проигравший конкурентную гонку увидел строку победителя под замком.
		metrics.QuotaRejectionsTotal.WithLabelValues(string(quota.ResourceTour)).Inc()
		return 0, quota.Result{Allowed: false, Current: current, Max: max}, nil
	}
	if err != nil {
		return 0, quota.Result{}, err
	}

	s.log.Info("created new tour", slog.Int("id", id), sl.UID(accountUID))
	return id, quota.Result{Allowed: true, Current: current, Max: max}, nil
}

// AddStop добавляет дату в тур аккаунта по той же схеме, что и Create.
func (s *Service) AddStop(ctx context.Context, accountUID string, tourID int, req models.DummyTourStop) (int, quota.Result, error) {
	date, err := time.Parse("02-01-2006", req.Date)
	if err != nil {
		return 0, quota.Result{}, fmt.Errorf("invalid date: %w", err)
	}

	parent, err := s.repo.GetTour(ctx, tourID)
	if err != nil {
		return 0, quota.Result{}, err
	}
	if parent.AccountUID != accountUID {
		return 0, quota.Result{}, ErrNotOwner
	}

	res, err := s.gate.Check(ctx, accountUID, quota.ResourceStop, tourID)
	if err != nil {
		return 0, quota.Result{}, err
	}
	if !res.Allowed {
		metrics.QuotaRejectionsTotal.WithLabelValues(string(quota.ResourceStop)).Inc()
		return 0, res, nil
	}

	ent, err := s.entitlements.Ensure(ctx, accountUID)
	if err != nil {
		return 0, quota.Result{}, err
	}
	max := plans.LimitsFor(ent.EffectivePlan()).MaxStopsPerTour

	entry := models.TourStop{
		TourID: tourID,
		City:   req.City,
		Venue:  req.Venue,
		Date:   date,
	}
	id, current, err := s.repo.CreateStopReserved(ctx, entry, max)
	if errors.Is(err, repository.ErrLimitReached) {
		metrics.QuotaRejectionsTotal.WithLabelValues(string(quota.ResourceStop)).Inc()
		return 0, quota.Result{Allowed: false, Current: current, Max: max}, nil
	}
	if err != nil {
		return 0, quota.Result{}, err
	}

	s.log.Info("created new tour stop", slog.Int("id", id), slog.Int("tour_id", tourID))
	return id, quota.Result{Allowed: true, Current: current, Max: max}, nil
}

// List возвращает туры аккаунта с пагинацией.
func (s *Service) List(ctx context.Context, accountUID string, limit, offset int) ([]*models.Tour, error) {
	return s.repo.ListTours(ctx, accountUID, limit, offset)
}

// Export возвращает тур вместе с датами. Доступно только на тарифах
// с возможностью "api".
func (s *Service) Export(ctx context.Context, accountUID string, tourID int) (*models.Tour, []*models.TourStop, error) {
	parent, err := s.repo.GetTour(ctx, tourID)
	if err != nil {
		return nil, nil, err
	}
	if parent.AccountUID != accountUID {
		return nil, nil, ErrNotOwner
	}

	stops, err := s.repo.ListStops(ctx, tourID)
	if err != nil {
		return nil, nil, err
	}
	return parent, stops, nil
}

// HasFeature сообщает, включена ли возможность в действующем плане аккаунта.
func (s *Service) HasFeature(ctx context.Context, accountUID, feature string) (bool, error) {
	return s.gate.HasFeature(ctx, accountUID, feature)
}
