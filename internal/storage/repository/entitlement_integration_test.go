package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigroute/billing/internal/models"
)

func TestStorage_EnsureEntitlement(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	verification := NewTestVerification(storage)
	accountUID := NewAccountUID()

	got, err := storage.EnsureEntitlement(context.Background(), accountUID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, got.Plan)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.Nil(t, got.ProviderSubscriptionRef)

	// Повторный вызов возвращает ту же строку, а не создаёт новую
	again, err := storage.EnsureEntitlement(context.Background(), accountUID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID)
	verification.VerifyEntitlementCount(t, accountUID, 1)
}

// Конкурентные первые обращения не создают дубликатов: проигравшая
// вставка превращается в no-op и перечитывает строку победителя.
func TestStorage_EnsureEntitlement_Concurrent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	verification := NewTestVerification(storage)
	accountUID := NewAccountUID()

	const workers = 10
	var wg sync.WaitGroup
	ids := make([]int, workers)
	errs := make([]error, workers)

	for i := range workers {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ent, err := storage.EnsureEntitlement(context.Background(), accountUID)
			errs[n] = err
			if err == nil {
				ids[n] = ent.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	verification.VerifyEntitlementCount(t, accountUID, 1)
}

func TestStorage_ApplyTransition(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	verification := NewTestVerification(storage)
	accountUID := NewAccountUID()

	_, err := storage.EnsureEntitlement(context.Background(), accountUID)
	require.NoError(t, err)

	plan := models.PlanPro
	status := models.StatusActive
	subscriptionRef := "sub_123"
	customerRef := "cus_123"
	cancel := false
	upd := models.EntitlementUpdate{
		Plan:                    &plan,
		Status:                  &status,
		ProviderSubscriptionRef: &subscriptionRef,
		ProviderCustomerRef:     &customerRef,
		CancelAtPeriodEnd:       &cancel,
	}

	got, err := storage.ApplyTransition(context.Background(), accountUID, upd)
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, got.Plan)
	require.NotNil(t, got.ProviderSubscriptionRef)
	assert.Equal(t, "sub_123", *got.ProviderSubscriptionRef)
	assert.NotNil(t, got.UpdatedAt)

	// Повторное применение того же перехода даёт то же состояние
	replayed, err := storage.ApplyTransition(context.Background(), accountUID, upd)
	require.NoError(t, err)
	assert.Equal(t, got.Plan, replayed.Plan)
	assert.Equal(t, got.Status, replayed.Status)
	assert.Equal(t, *got.ProviderSubscriptionRef, *replayed.ProviderSubscriptionRef)
	verification.VerifyEntitlementState(t, accountUID, models.PlanPro, models.StatusActive)
}

func TestStorage_ApplyTransitionBySubscriptionRef(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	accountUID := NewAccountUID()
	subscriptionRef := "sub_123"
	factory.CreateEntitlement(t, accountUID, models.PlanPro, models.StatusActive, &subscriptionRef)

	status := models.StatusPastDue
	got, err := storage.ApplyTransitionBySubscriptionRef(context.Background(), "sub_123",
		models.EntitlementUpdate{Status: &status})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, accountUID, got.AccountUID)
	assert.Equal(t, models.StatusPastDue, got.Status)
}

// Неизвестная ссылка на подписку — nil без ошибки, состояние не меняется.
func TestStorage_ApplyTransitionBySubscriptionRef_UnknownRef(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	verification := NewTestVerification(storage)
	accountUID := NewAccountUID()
	factory := NewTestDataFactory(storage)
	subscriptionRef := "sub_123"
	factory.CreateEntitlement(t, accountUID, models.PlanPro, models.StatusActive, &subscriptionRef)

	status := models.StatusCanceled
	got, err := storage.ApplyTransitionBySubscriptionRef(context.Background(), "sub_unknown",
		models.EntitlementUpdate{Status: &status})
	require.NoError(t, err)
	assert.Nil(t, got)
	verification.VerifyEntitlementState(t, accountUID, models.PlanPro, models.StatusActive)
}

// Даунгрейд отвязывает ссылку на подписку: повторное событие по той же
// ссылке больше не находит запись.
func TestStorage_ApplyTransition_ClearSubscriptionRef(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	factory := NewTestDataFactory(storage)
	accountUID := NewAccountUID()
	subscriptionRef := "sub_123"
	factory.CreateEntitlement(t, accountUID, models.PlanPro, models.StatusActive, &subscriptionRef)

	plan := models.PlanFree
	status := models.StatusCanceled
	got, err := storage.ApplyTransitionBySubscriptionRef(context.Background(), "sub_123",
		models.EntitlementUpdate{
			Plan:                         &plan,
			Status:                       &status,
			ClearProviderSubscriptionRef: true,
			ClearCurrentPeriodEnd:        true,
		})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.ProviderSubscriptionRef)
	assert.Nil(t, got.CurrentPeriodEnd)

	replayed, err := storage.ApplyTransitionBySubscriptionRef(context.Background(), "sub_123",
		models.EntitlementUpdate{Status: &status})
	require.NoError(t, err)
	assert.Nil(t, replayed)
}

func TestStorage_SetCancelAtPeriodEnd(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	accountUID := NewAccountUID()
	_, err := storage.EnsureEntitlement(context.Background(), accountUID)
	require.NoError(t, err)

	got, err := storage.SetCancelAtPeriodEnd(context.Background(), accountUID, true)
	require.NoError(t, err)
	assert.True(t, got.CancelAtPeriodEnd)
}

func TestStorage_ApplyTransition_PeriodBounds(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	accountUID := NewAccountUID()
	_, err := storage.EnsureEntitlement(context.Background(), accountUID)
	require.NoError(t, err)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	got, err := storage.ApplyTransition(context.Background(), accountUID, models.EntitlementUpdate{
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	})
	require.NoError(t, err)
	require.NotNil(t, got.CurrentPeriodStart)
	require.NotNil(t, got.CurrentPeriodEnd)
	assert.True(t, got.CurrentPeriodStart.Equal(start))
	assert.True(t, got.CurrentPeriodEnd.Equal(end))
}
