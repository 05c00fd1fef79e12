package tour

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gigroute/billing/internal/models"
	"github.com/gigroute/billing/internal/services/quota"
	"github.com/gigroute/billing/internal/storage/repository"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateTourReserved(ctx context.Context, tour models.Tour, max int) (int, int, error) {
	args := m.Called(ctx, tour, max)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *RepoMock) CreateStopReserved(ctx context.Context, stop models.TourStop, max int) (int, int, error) {
	args := m.Called(ctx, stop, max)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *RepoMock) GetTour(ctx context.Context, id int) (*models.Tour, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tour), args.Error(1)
}

func (m *RepoMock) ListTours(ctx context.Context, accountUID string, limit, offset int) ([]*models.Tour, error) {
	args := m.Called(ctx, accountUID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Tour), args.Error(1)
}

func (m *RepoMock) ListStops(ctx context.Context, tourID int) ([]*models.TourStop, error) {
	args := m.Called(ctx, tourID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TourStop), args.Error(1)
}

type EntitlementProviderMock struct{ mock.Mock }

func (m *EntitlementProviderMock) Ensure(ctx context.Context, accountUID string) (*models.Entitlement, error) {
	args := m.Called(ctx, accountUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Entitlement), args.Error(1)
}

type UsageRepoMock struct{ mock.Mock }

func (m *UsageRepoMock) CountTours(ctx context.Context, accountUID string) (int, error) {
	args := m.Called(ctx, accountUID)
	return args.Int(0), args.Error(1)
}

func (m *UsageRepoMock) CountStops(ctx context.Context, tourID int) (int, error) {
	args := m.Called(ctx, tourID)
	return args.Int(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newTestService(repo *RepoMock, provider *EntitlementProviderMock, usage *UsageRepoMock) *Service {
	gate := quota.NewGate(provider, usage, newNoopLogger())
	return New(repo, provider, gate, newNoopLogger())
}

func freeEntitlement() *models.Entitlement {
	return &models.Entitlement{AccountUID: "acc-1", Plan: models.PlanFree, Status: models.StatusActive}
}

func TestCreate_Success(t *testing.T) {
	repo := new(RepoMock)
	provider := new(EntitlementProviderMock)
	usage := new(UsageRepoMock)
	service := newTestService(repo, provider, usage)

	provider.On("Ensure", mock.Anything, "acc-1").Return(freeEntitlement(), nil).Twice()
	usage.On("CountTours", mock.Anything, "acc-1").Return(0, nil).Once()
	repo.On("CreateTourReserved", mock.Anything, mock.MatchedBy(func(tour models.Tour) bool {
		return tour.AccountUID == "acc-1" && tour.Name == "Spring Tour" &&
			tour.StartDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	}), 1).Return(7, 1, nil).Once()

	id, res, err := service.Create(context.Background(), "acc-1", models.DummyTour{
		Name:      "Spring Tour",
		StartDate: "01-03-2026",
	})

	assert.NoError(t, err)
	assert.Equal(t, 7, id)
	assert.True(t, res.Allowed)
	repo.AssertExpectations(t)
}

func TestCreate_RejectedByQuota(t *testing.T) {
	repo := new(RepoMock)
	provider := new(EntitlementProviderMock)
	usage := new(UsageRepoMock)
	service := newTestService(repo, provider, usage)

	provider.On("Ensure", mock.Anything, "acc-1").Return(freeEntitlement(), nil).Once()
	usage.On("CountTours", mock.Anything, "acc-1").Return(1, nil).Once()

	_, res, err := service.Create(context.Background(), "acc-1", models.DummyTour{
		Name:      "Second Tour",
		StartDate: "01-03-2026",
	})

	assert.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1, res.Current)
	assert.Equal(t, 1, res.Max)
	repo.AssertNotCalled(t, "CreateTourReserved", mock.Anything, mock.Anything, mock.Anything)
}

// Проигрыш конкурентной гонки: проверка пропустила, но транзакционное
// резервирование уже увидело строку победителя. Это отказ по квоте,
// а не ошибка.
func TestCreate_LosesConcurrentRace(t *testing.T) {
	repo := new(RepoMock)
	provider := new(EntitlementProviderMock)
	usage := new(UsageRepoMock)
	service := newTestService(repo, provider, usage)

	provider.On("Ensure", mock.Anything, "acc-1").Return(freeEntitlement(), nil).Twice()
	usage.On("CountTours", mock.Anything, "acc-1").Return(0, nil).Once()
	repo.On("CreateTourReserved", mock.Anything, mock.Anything, 1).
		Return(0, 1, fmt.Errorf("storage.CreateTourReserved: %w", repository.ErrLimitReached)).Once()

	_, res, err := service.Create(context.Background(), "acc-1", models.DummyTour{
		Name:      "Raced Tour",
		StartDate: "01-03-2026",
	})

	assert.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1, res.Current)
}

func TestCreate_InvalidDate(t *testing.T) {
	repo := new(RepoMock)
	provider := new(EntitlementProviderMock)
	usage := new(UsageRepoMock)
	service := newTestService(repo, provider, usage)

	_, _, err := service.Create(context.Background(), "acc-1", models.DummyTour{
		Name:      "Bad Tour",
		StartDate: "2026-03-01",
	})

	assert.Error(t, err)
	repo.AssertNotCalled(t, "CreateTourReserved", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddStop_Success(t *testing.T) {
	repo := new(RepoMock)
	provider := new(EntitlementProviderMock)
	usage := new(UsageRepoMock)
	service := newTestService(repo, provider, usage)

	repo.On("GetTour", mock.Anything, 7).
		Return(&models.Tour{ID: 7, AccountUID: "acc-1", Name: "Spring Tour"}, nil).Once()
	provider.On("Ensure", mock.Anything, "acc-1").Return(freeEntitlement(), nil).Twice()
	usage.On("CountStops", mock.Anything, 7).Return(4, nil).Once()
	repo.On("CreateStopReserved", mock.Anything, mock.MatchedBy(func(stop models.TourStop) bool {
		return stop.TourID == 7 && stop.City == "Berlin" && stop.Venue == "SO36"
	}), 5).Return(21, 5, nil).Once()

	id, res, err := service.AddStop(context.Background(), "acc-1", 7, models.DummyTourStop{
		City:  "Berlin",
		Venue: "SO36",
		Date:  "15-03-2026",
	})

	assert.NoError(t, err)
	assert.Equal(t, 21, id)
	assert.True(t, res.Allowed)
}

func TestAddStop_NotOwner(t *testing.T) {
	repo := new(RepoMock)
	provider := new(EntitlementProviderMock)
	usage := new(UsageRepoMock)
	service := newTestService(repo, provider, usage)

	repo.On("GetTour", mock.Anything, 7).
		Return(&models.Tour{ID: 7, AccountUID: "acc-other"}, nil).Once()

	_, _, err := service.AddStop(context.Background(), "acc-1", 7, models.DummyTourStop{
		City:  "Berlin",
		Venue: "SO36",
		Date:  "15-03-2026",
	})

	assert.ErrorIs(t, err, ErrNotOwner)
	repo.AssertNotCalled(t, "CreateStopReserved", mock.Anything, mock.Anything, mock.Anything)
}

func TestAddStop_RejectedByQuota(t *testing.T) {
	repo := new(RepoMock)
	provider := new(EntitlementProviderMock)
	usage := new(UsageRepoMock)
	service := newTestService(repo, provider, usage)

	repo.On("GetTour", mock.Anything, 7).
		Return(&models.Tour{ID: 7, AccountUID: "acc-1"}, nil).Once()
	provider.On("Ensure", mock.Anything, "acc-1").Return(freeEntitlement(), nil).Once()
	usage.On("CountStops", mock.Anything, 7).Return(5, nil).Once()

	_, res, err := service.AddStop(context.Background(), "acc-1", 7, models.DummyTourStop{
		City:  "Berlin",
		Venue: "SO36",
		Date:  "15-03-2026",
	})

	assert.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 5, res.Current)
	assert.Equal(t, 5, res.Max)
}

func TestExport(t *testing.T) {
	repo := new(RepoMock)
	provider := new(EntitlementProviderMock)
	usage := new(UsageRepoMock)
	service := newTestService(repo, provider, usage)

	repo.On("GetTour", mock.Anything, 7).
		Return(&models.Tour{ID: 7, AccountUID: "acc-1", Name: "Spring Tour"}, nil).Once()
	repo.On("ListStops", mock.Anything, 7).
		Return([]*models.TourStop{{ID: 21, TourID: 7, City: "Berlin"}}, nil).Once()

	tour, stops, err := service.Export(context.Background(), "acc-1", 7)

	assert.NoError(t, err)
	assert.Equal(t, "Spring Tour", tour.Name)
	assert.Len(t, stops, 1)
}

func TestExport_NotOwner(t *testing.T) {
	repo := new(RepoMock)
	provider := new(EntitlementProviderMock)
	usage := new(UsageRepoMock)
	service := newTestService(repo, provider, usage)

	repo.On("GetTour", mock.Anything, 7).
		Return(&models.Tour{ID: 7, AccountUID: "acc-other"}, nil).Once()

	_, _, err := service.Export(context.Background(), "acc-1", 7)

	assert.ErrorIs(t, err, ErrNotOwner)
	repo.AssertNotCalled(t, "ListStops", mock.Anything, mock.Anything)
}
