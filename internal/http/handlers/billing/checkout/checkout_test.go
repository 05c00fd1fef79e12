package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gigroute/billing/internal/http/middlewarectx"
	billingservice "github.com/gigroute/billing/internal/services/billing"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CreateCheckoutSession(ctx context.Context, account billingservice.Account) (string, error) {
	args := m.Called(ctx, account)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newCheckoutRequest(accountUID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/checkout", nil)
	ctx := context.WithValue(req.Context(), middlewarectx.User, "ivan")
	ctx = context.WithValue(ctx, middlewarectx.Email, "ivan@example.com")
	ctx = context.WithValue(ctx, middlewarectx.AccountUID, accountUID)
	ctx = context.WithValue(ctx, middleware.RequestIDKey, "req-id")
	return req.WithContext(ctx)
}

func TestCheckoutHandler_Success(t *testing.T) {
	service := new(MockService)
	handler := New(newNoopLogger(), service)

	service.On("CreateCheckoutSession", mock.Anything, billingservice.Account{
		UID:      "acc-1",
		Username: "ivan",
		Email:    "ivan@example.com",
	}).Return("https://pay.example.com/cs_1", nil).Once()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newCheckoutRequest("acc-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","data":{"checkout_url":"https://pay.example.com/cs_1"}}`, w.Body.String())
	service.AssertExpectations(t)
}

func TestCheckoutHandler_Unauthorized(t *testing.T) {
	service := new(MockService)
	handler := New(newNoopLogger(), service)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newCheckoutRequest(""))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	service.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

// Сбой провайдера отдаётся как 502 с редиректом на страницу тарифов.
func TestCheckoutHandler_ProviderFailure(t *testing.T) {
	service := new(MockService)
	handler := New(newNoopLogger(), service)

	service.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return("", errors.New("stripe: 503")).Once()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newCheckoutRequest("acc-1"))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"status":"Error","error":"could not create checkout session","data":{"redirect":"/billing/pricing"}}`, w.Body.String())
}
