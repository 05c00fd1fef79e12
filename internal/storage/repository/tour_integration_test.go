package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigroute/billing/internal/models"
)

func TestStorage_CreateTourReserved(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	accountUID := NewAccountUID()
	startDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	id, current, err := storage.CreateTourReserved(context.Background(), models.Tour{
		AccountUID: accountUID,
		Name:       "Spring Tour",
		StartDate:  startDate,
	}, 1)
	require.NoError(t, err)
	assert.Greater(t, id, 0)
	assert.Equal(t, 1, current)

	// Второй тур упирается в лимит
	_, current, err = storage.CreateTourReserved(context.Background(), models.Tour{
		AccountUID: accountUID,
		Name:       "Second Tour",
		StartDate:  startDate,
	}, 1)
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, 1, current)
}

func TestStorage_CreateTourReserved_Unlimited(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	verification := NewTestVerification(storage)
	accountUID := NewAccountUID()
	startDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, _, err := storage.CreateTourReserved(context.Background(), models.Tour{
			AccountUID: accountUID,
			Name:       "Tour",
			StartDate:  startDate,
		}, -1)
		require.NoError(t, err)
	}
	verification.VerifyTourCount(t, accountUID, 5)
}

// Конкурентные создатели не перешагивают лимит: пересчёт идёт под
// advisory-замком аккаунта, и место под лимитом получает ровно один.
func TestStorage_CreateTourReserved_ConcurrentNeverOvershoots(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	verification := NewTestVerification(storage)
	accountUID := NewAccountUID()
	startDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)

	for i := range workers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, err := storage.CreateTourReserved(context.Background(), models.Tour{
				AccountUID: accountUID,
				Name:       "Raced Tour",
				StartDate:  startDate,
			}, 1)
			results[n] = err
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrLimitReached):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, workers-1, lost)
	verification.VerifyTourCount(t, accountUID, 1)
}

func TestStorage_CreateStopReserved(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	accountUID := NewAccountUID()
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	tourID := factory.CreateTour(t, accountUID, "Spring Tour", date)

	for i := 0; i < 5; i++ {
		_, _, err := storage.CreateStopReserved(context.Background(), models.TourStop{
			TourID: tourID,
			City:   "Berlin",
			Venue:  "SO36",
			Date:   date,
		}, 5)
		require.NoError(t, err)
	}

	_, current, err := storage.CreateStopReserved(context.Background(), models.TourStop{
		TourID: tourID,
		City:   "Hamburg",
		Venue:  "Molotow",
		Date:   date,
	}, 5)
	assert.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, 5, current)
}

func TestStorage_CountsAndLists(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	accountUID := NewAccountUID()
	date := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	first := factory.CreateTour(t, accountUID, "Spring Tour", date)
	second := factory.CreateTour(t, accountUID, "Summer Tour", date)
	factory.CreateStop(t, first, "Berlin", "SO36", date)
	factory.CreateStop(t, first, "Hamburg", "Molotow", date.AddDate(0, 0, 1))
	factory.CreateStop(t, second, "Munich", "Backstage", date)

	count, err := storage.CountTours(context.Background(), accountUID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stops, err := storage.CountStops(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, 2, stops)

	maxStops, err := storage.MaxStopsAcrossTours(context.Background(), accountUID)
	require.NoError(t, err)
	assert.Equal(t, 2, maxStops)

	tours, err := storage.ListTours(context.Background(), accountUID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, tours, 2)

	listed, err := storage.ListStops(context.Background(), first)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	// Хронологический порядок
	assert.Equal(t, "Berlin", listed[0].City)
	assert.Equal(t, "Hamburg", listed[1].City)
}

func TestStorage_MaxStopsAcrossTours_NoTours(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	maxStops, err := storage.MaxStopsAcrossTours(context.Background(), NewAccountUID())
	require.NoError(t, err)
	assert.Equal(t, 0, maxStops)
}
