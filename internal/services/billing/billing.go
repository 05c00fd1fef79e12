// Package billing содержит бизнес-логику биллинга: создание сессий
// провайдера (checkout и портал самообслуживания), отмену подписки
// в конце периода и сводку по тарифу, а также обработчик webhook-событий
// провайдера (см. webhook.go).
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigroute/billing/internal/config"
	"github.com/gigroute/billing/internal/lib/sl"
	"github.com/gigroute/billing/internal/metrics"
	"github.com/gigroute/billing/internal/models"
	"github.com/gigroute/billing/internal/paymentprovider"
	"github.com/gigroute/billing/internal/plans"
)

// Account данные аккаунта из авторизационного контекста запроса.
type Account struct {
	UID      string
	Username string
	Email    string
}

// EntitlementRepository определяет методы хранилища, нужные биллингу.
type EntitlementRepository interface {
	EnsureEntitlement(ctx context.Context, accountUID string) (*models.Entitlement, error)
	SetProviderCustomerRef(ctx context.Context, accountUID, customerRef string) error
	SetCancelAtPeriodEnd(ctx context.Context, accountUID string, flag bool) (*models.Entitlement, error)
}

// UsageRepository отдаёт счётчики ресурсов для сводки по тарифу.
type UsageRepository interface {
	CountTours(ctx context.Context, accountUID string) (int, error)
	MaxStopsAcrossTours(ctx context.Context, accountUID string) (int, error)
}

// ProviderClient определяет вызовы платёжного провайдера.
type ProviderClient interface {
	CreateCustomer(ctx context.Context, params paymentprovider.CreateCustomerParams) (*paymentprovider.Customer, error)
	CreateCheckoutSession(ctx context.Context, params paymentprovider.CreateCheckoutSessionParams) (*paymentprovider.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerRef, returnURL string) (*paymentprovider.PortalSession, error)
}

// Invalidator сбрасывает кешированный снимок записи аккаунта.
type Invalidator interface {
	Invalidate(ctx context.Context, accountUID string)
}

// Service реализует пользовательские операции биллинга.
// Создание сессий никогда не меняет план и статус напрямую:
// активация происходит только через webhook-обработчик.
type Service struct {
	repo     EntitlementRepository
	usage    UsageRepository
	provider ProviderClient
	invalid  Invalidator
	cfg      config.Stripe
	log      *slog.Logger
}

// New создает новый Service.
func New(repo EntitlementRepository, usage UsageRepository, provider ProviderClient,
	invalid Invalidator, cfg config.Stripe, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		usage:    usage,
		provider: provider,
		invalid:  invalid,
		cfg:      cfg,
		log:      log,
	}
}

// getOrCreateCustomerRef возвращает идентификатор клиента у провайдера,
// создавая его при первом обращении. Сохранённая ссылка переиспользуется:
// её безопасно оставлять даже при неудачном исходе дальнейших шагов.
func (s *Service) getOrCreateCustomerRef(ctx context.Context, account Account) (string, error) {
	ent, err := s.repo.EnsureEntitlement(ctx, account.UID)
	if err != nil {
		return "", err
	}
	if ent.ProviderCustomerRef != nil && *ent.ProviderCustomerRef != "" {
		return *ent.ProviderCustomerRef, nil
	}

	customer, err := s.provider.CreateCustomer(ctx, paymentprovider.CreateCustomerParams{
		Email:      account.Email,
		Name:       account.Username,
		AccountUID: account.UID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create provider customer: %w", err)
	}
	if err := s.repo.SetProviderCustomerRef(ctx, account.UID, customer.ID); err != nil {
		return "", err
	}
	s.invalid.Invalidate(ctx, account.UID)
	return customer.ID, nil
}

// CreateCheckoutSession создаёт checkout-сессию на тариф Pro и возвращает
// URL для редиректа пользователя. UID аккаунта уходит в metadata сессии,
// чтобы атрибутировать последующий webhook без обратного поиска.
func (s *Service) CreateCheckoutSession(ctx context.Context, account Account) (string, error) {
	customerRef, err := s.getOrCreateCustomerRef(ctx, account)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("checkout", "error").Inc()
		return "", err
	}

	session, err := s.provider.CreateCheckoutSession(ctx, paymentprovider.CreateCheckoutSessionParams{
		CustomerRef: customerRef,
		PriceID:     s.cfg.ProPriceID,
		SuccessURL:  s.cfg.AppURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   s.cfg.AppURL + "/billing/pricing",
		AccountUID:  account.UID,
	})
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("checkout", "error").Inc()
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("checkout", "ok").Inc()
	s.log.Info("created checkout session", sl.UID(account.UID), slog.String("session_id", session.ID))
	return session.URL, nil
}

// CreatePortalSession создаёт сессию портала самообслуживания.
func (s *Service) CreatePortalSession(ctx context.Context, account Account) (string, error) {
	customerRef, err := s.getOrCreateCustomerRef(ctx, account)
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("portal", "error").Inc()
		return "", err
	}

	session, err := s.provider.CreatePortalSession(ctx, customerRef, s.cfg.AppURL+"/billing/dashboard")
	if err != nil {
		metrics.CheckoutSessionsTotal.WithLabelValues("portal", "error").Inc()
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}

	metrics.CheckoutSessionsTotal.WithLabelValues("portal", "ok").Inc()
	return session.URL, nil
}

// Cancel помечает подписку к отмене в конце оплаченного периода.
// До конца периода права тарифа сохраняются; немедленного понижения нет.
func (s *Service) Cancel(ctx context.Context, accountUID string) (*models.Entitlement, error) {
	if _, err := s.repo.EnsureEntitlement(ctx, accountUID); err != nil {
		return nil, err
	}
	ent, err := s.repo.SetCancelAtPeriodEnd(ctx, accountUID, true)
	if err != nil {
		return nil, err
	}
	s.invalid.Invalidate(ctx, accountUID)
	s.log.Info("subscription marked for cancellation", sl.UID(accountUID))
	return ent, nil
}

// Overview сводка по тарифу аккаунта: запись, лимиты и текущее потребление.
type Overview struct {
	Subscription models.EntitlementView `json:"subscription"`
	Limits       OverviewLimits         `json:"limits"`
	Usage        OverviewUsage          `json:"usage"`
}

// OverviewLimits лимиты действующего плана в форме для JSON-ответа.
type OverviewLimits struct {
	MaxTours        int      `json:"max_tours"`
	MaxStopsPerTour int      `json:"max_stops_per_tour"`
	Features        []string `json:"features"`
}

// OverviewUsage текущее потребление лимитируемых ресурсов.
type OverviewUsage struct {
	TourCount    int `json:"tour_count"`
	MaxStopsUsed int `json:"max_stops_used"`
}

// GetOverview возвращает сводку по тарифу аккаунта.
func (s *Service) GetOverview(ctx context.Context, accountUID string) (*Overview, error) {
	ent, err := s.repo.EnsureEntitlement(ctx, accountUID)
	if err != nil {
		return nil, err
	}
	limits := plans.LimitsFor(ent.EffectivePlan())

	tourCount, err := s.usage.CountTours(ctx, accountUID)
	if err != nil {
		return nil, err
	}
	maxStops, err := s.usage.MaxStopsAcrossTours(ctx, accountUID)
	if err != nil {
		return nil, err
	}

	return &Overview{
		Subscription: ent.View(time.Now()),
		Limits: OverviewLimits{
			MaxTours:        limits.MaxTours,
			MaxStopsPerTour: limits.MaxStopsPerTour,
			Features:        limits.Features,
		},
		Usage: OverviewUsage{
			TourCount:    tourCount,
			MaxStopsUsed: maxStops,
		},
	}, nil
}
