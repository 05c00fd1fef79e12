package webhook

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/gigroute/billing/internal/paymentprovider"
)

const testSecret = "whsec_test"

type MockService struct {
	mock.Mock
}

func (m *MockService) ProcessEvent(ctx context.Context, event paymentprovider.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newWebhookRequest(payload []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	ctx := context.WithValue(req.Context(), middleware.RequestIDKey, "req-id")
	return req.WithContext(ctx)
}

func TestWebhookHandler_ValidSignature(t *testing.T) {
	service := new(MockService)
	handler := New(newNoopLogger(), service, testSecret)

	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{"id":"in_1","subscription":"sub_1"}}}`)
	signature := paymentprovider.SignatureHeader(time.Now(), payload, testSecret)

	service.On("ProcessEvent", mock.Anything, mock.MatchedBy(func(event paymentprovider.Event) bool {
		return event.ID == "evt_1" && event.Type == "invoice.payment_failed"
	})).Return(nil).Once()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newWebhookRequest(payload, signature))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK"}`, w.Body.String())
	service.AssertExpectations(t)
}

func TestWebhookHandler_SignatureReject(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{}}}`)
	validSignature := paymentprovider.SignatureHeader(time.Now(), payload, testSecret)

	tests := []struct {
		name      string
		payload   []byte
		signature string
	}{
		{"без заголовка подписи", payload, ""},
		{"мусор в заголовке", payload, "not-a-signature"},
		{"подпись чужим секретом", payload, paymentprovider.SignatureHeader(time.Now(), payload, "whsec_other")},
		{"протухшая метка времени", payload, paymentprovider.SignatureHeader(time.Now().Add(-time.Hour), payload, testSecret)},
		{"подменённое тело", []byte(`{"id":"evt_1","type":"customer.subscription.deleted","data":{"object":{}}}`), validSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockService)
			handler := New(newNoopLogger(), service, testSecret)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, newWebhookRequest(tt.payload, tt.signature))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.JSONEq(t, `{"status":"Error","error":"invalid signature"}`, w.Body.String())
			// Состояние не трогается: до сервиса запрос не доходит.
			service.AssertNotCalled(t, "ProcessEvent", mock.Anything, mock.Anything)
		})
	}
}

// Подпись сошлась, но тело не парсится: приём подтверждается,
// до сервиса событие не доходит.
func TestWebhookHandler_MalformedPayloadIsAcknowledged(t *testing.T) {
	service := new(MockService)
	handler := New(newNoopLogger(), service, testSecret)

	payload := []byte(`{"id": "evt_1", "type": `)
	signature := paymentprovider.SignatureHeader(time.Now(), payload, testSecret)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newWebhookRequest(payload, signature))

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertNotCalled(t, "ProcessEvent", mock.Anything, mock.Anything)
}

// Сбой обработки тоже подтверждается: 400 зарезервирован за подписью.
func TestWebhookHandler_ProcessErrorIsAcknowledged(t *testing.T) {
	service := new(MockService)
	handler := New(newNoopLogger(), service, testSecret)

	payload := []byte(`{"id":"evt_1","type":"invoice.payment_failed","data":{"object":{"id":"in_1","subscription":"sub_1"}}}`)
	signature := paymentprovider.SignatureHeader(time.Now(), payload, testSecret)

	service.On("ProcessEvent", mock.Anything, mock.Anything).
		Return(assert.AnError).Once()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newWebhookRequest(payload, signature))

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}
