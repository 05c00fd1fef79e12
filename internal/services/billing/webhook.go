package billing

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gigroute/billing/internal/lib/sl"
	"github.com/gigroute/billing/internal/metrics"
	"github.com/gigroute/billing/internal/models"
	"github.com/gigroute/billing/internal/paymentprovider"
)

// Типы событий провайдера, которые обрабатывает процессор.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// Исходы обработки события для метрик.
const (
	outcomeApplied = "applied"
	outcomeSkipped = "skipped"
	outcomeError   = "error"
)

// statusMap словарь статусов провайдера. Статус вне словаря не меняет
// локальный статус: чужое значение никогда не угадывается и не
// подменяется оптимистичным active.
var statusMap = map[string]models.Status{
	"active":     models.StatusActive,
	"past_due":   models.StatusPastDue,
	"canceled":   models.StatusCanceled,
	"trialing":   models.StatusTrialing,
	"incomplete": models.StatusIncomplete,
}

// ProcessorRepository определяет методы хранилища для переходов состояния.
type ProcessorRepository interface {
	EnsureEntitlement(ctx context.Context, accountUID string) (*models.Entitlement, error)
	ApplyTransition(ctx context.Context, accountUID string, upd models.EntitlementUpdate) (*models.Entitlement, error)
	// ApplyTransitionBySubscriptionRef возвращает nil без ошибки для неизвестной ссылки.
	ApplyTransitionBySubscriptionRef(ctx context.Context, subscriptionRef string, upd models.EntitlementUpdate) (*models.Entitlement, error)
}

// EventPublisher публикует события о смене тарифа в брокер.
type EventPublisher interface {
	PublishEntitlementEvent(event models.EntitlementEvent) error
}

// Processor применяет webhook-события провайдера к записям о тарифах.
//
// Каждый переход — чистая перезапись полей, выведенная из payload самого
// события, без инкрементов и дельт, поэтому повторная доставка того же
// события даёт то же конечное состояние. Записи ищутся по ссылке на
// подписку из события, а не по "текущей подписке аккаунта": устаревшее
// событие по уже отвязанной ссылке становится no-op. Порядок доставки
// между разными событиями провайдер не гарантирует.
type Processor struct {
	repo      ProcessorRepository
	invalid   Invalidator
	publisher EventPublisher
	log       *slog.Logger
}

// NewProcessor создает новый Processor.
func NewProcessor(repo ProcessorRepository, invalid Invalidator, publisher EventPublisher, log *slog.Logger) *Processor {
	return &Processor{
		repo:      repo,
		invalid:   invalid,
		publisher: publisher,
		log:       log,
	}
}

// ProcessEvent классифицирует событие и применяет соответствующий
// переход. Ошибка возвращается только для внутренних сбоев хранилища;
// непонятные и неатрибутируемые события — штатный no-op: провайдер
// не различает "проигнорировано" и "обработано", а повторные доставки
// ему не нужны.
func (p *Processor) ProcessEvent(ctx context.Context, event paymentprovider.Event) error {
	log := p.log.With(slog.String("event_id", event.ID), slog.String("event_type", event.Type))

	var err error
	var outcome string
	switch event.Type {
	case EventCheckoutCompleted:
		outcome, err = p.handleCheckoutCompleted(ctx, log, event.Data.Object)
	case EventSubscriptionUpdated:
		outcome, err = p.handleSubscriptionUpdated(ctx, log, event.Data.Object)
	case EventSubscriptionDeleted:
		outcome, err = p.handleSubscriptionDeleted(ctx, log, event.Data.Object)
	case EventInvoicePaymentFailed:
		outcome, err = p.handlePaymentFailed(ctx, log, event.Data.Object)
	default:
		log.Info("ignored webhook event")
		outcome = outcomeSkipped
	}
	if err != nil {
		outcome = outcomeError
	}

	metrics.WebhookEventsTotal.WithLabelValues(event.Type, outcome).Inc()
	return err
}

// handleCheckoutCompleted активирует Pro по завершённой checkout-сессии.
// Аккаунт берётся из metadata сессии; отсутствие атрибуции — no-op,
// webhook-endpoint никогда не падает из-за неё.
func (p *Processor) handleCheckoutCompleted(ctx context.Context, log *slog.Logger, object json.RawMessage) (string, error) {
	var session paymentprovider.CheckoutSessionObject
	if err := json.Unmarshal(object, &session); err != nil {
		log.Error("failed to unmarshal checkout session object", slog.Any("err", err))
		return outcomeSkipped, nil
	}

	accountUID := session.Metadata["account_uid"]
	if accountUID == "" {
		log.Warn("checkout completed without account_uid metadata")
		return outcomeSkipped, nil
	}
	if session.Subscription == "" || session.Customer == "" {
		log.Warn("checkout completed without subscription or customer refs")
		return outcomeSkipped, nil
	}

	if _, err := p.repo.EnsureEntitlement(ctx, accountUID); err != nil {
		return outcomeError, err
	}

	plan := models.PlanPro
	status := models.StatusActive
	cancel := false
	ent, err := p.repo.ApplyTransition(ctx, accountUID, models.EntitlementUpdate{
		Plan:                    &plan,
		Status:                  &status,
		ProviderSubscriptionRef: &session.Subscription,
		ProviderCustomerRef:     &session.Customer,
		CancelAtPeriodEnd:       &cancel,
	})
	if err != nil {
		return outcomeError, err
	}

	p.applied(ctx, ent, EventCheckoutCompleted)
	log.Info("pro plan activated", sl.UID(accountUID))
	return outcomeApplied, nil
}

// handleSubscriptionUpdated обновляет границы периода, флаг отложенной
// отмены и статус по словарю провайдера. Нераспознанный статус оставляет
// локальный статус нетронутым.
func (p *Processor) handleSubscriptionUpdated(ctx context.Context, log *slog.Logger, object json.RawMessage) (string, error) {
	var sub paymentprovider.SubscriptionObject
	if err := json.Unmarshal(object, &sub); err != nil {
		log.Error("failed to unmarshal subscription object", slog.Any("err", err))
		return outcomeSkipped, nil
	}

	upd := models.EntitlementUpdate{
		CancelAtPeriodEnd: &sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodStart > 0 {
		start := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		upd.CurrentPeriodStart = &start
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		upd.CurrentPeriodEnd = &end
	}
	if status, ok := statusMap[sub.Status]; ok {
		upd.Status = &status
	} else {
		log.Warn("unrecognized provider subscription status, keeping local status",
			slog.String("provider_status", sub.Status))
	}

	ent, err := p.repo.ApplyTransitionBySubscriptionRef(ctx, sub.ID, upd)
	if err != nil {
		return outcomeError, err
	}
	if ent == nil {
		log.Info("subscription updated for unknown subscription ref", slog.String("subscription_ref", sub.ID))
		return outcomeSkipped, nil
	}

	p.applied(ctx, ent, EventSubscriptionUpdated)
	return outcomeApplied, nil
}

// handleSubscriptionDeleted возвращает запись к базовому free/canceled.
// Ссылка на подписку обнуляется, поэтому повторная доставка и любые
// устаревшие события по этой ссылке дальше не находят запись.
func (p *Processor) handleSubscriptionDeleted(ctx context.Context, log *slog.Logger, object json.RawMessage) (string, error) {
	var sub paymentprovider.SubscriptionObject
	if err := json.Unmarshal(object, &sub); err != nil {
		log.Error("failed to unmarshal subscription object", slog.Any("err", err))
		return outcomeSkipped, nil
	}

	plan := models.PlanFree
	status := models.StatusCanceled
	cancel := false
	ent, err := p.repo.ApplyTransitionBySubscriptionRef(ctx, sub.ID, models.EntitlementUpdate{
		Plan:                         &plan,
		Status:                       &status,
		ClearProviderSubscriptionRef: true,
		ClearCurrentPeriodEnd:        true,
		CancelAtPeriodEnd:            &cancel,
	})
	if err != nil {
		return outcomeError, err
	}
	if ent == nil {
		log.Info("subscription deleted for unknown subscription ref", slog.String("subscription_ref", sub.ID))
		return outcomeSkipped, nil
	}

	p.applied(ctx, ent, EventSubscriptionDeleted)
	log.Info("subscription deactivated", sl.UID(ent.AccountUID))
	return outcomeApplied, nil
}

// handlePaymentFailed помечает подписку как просроченную. План и границы
// периода не трогаются: просрочка оставляет льготный период.
func (p *Processor) handlePaymentFailed(ctx context.Context, log *slog.Logger, object json.RawMessage) (string, error) {
	var invoice paymentprovider.InvoiceObject
	if err := json.Unmarshal(object, &invoice); err != nil {
		log.Error("failed to unmarshal invoice object", slog.Any("err", err))
		return outcomeSkipped, nil
	}
	if invoice.Subscription == "" {
		return outcomeSkipped, nil
	}

	status := models.StatusPastDue
	ent, err := p.repo.ApplyTransitionBySubscriptionRef(ctx, invoice.Subscription, models.EntitlementUpdate{
		Status: &status,
	})
	if err != nil {
		return outcomeError, err
	}
	if ent == nil {
		return outcomeSkipped, nil
	}

	p.applied(ctx, ent, EventInvoicePaymentFailed)
	log.Warn("payment failed, subscription past due", sl.UID(ent.AccountUID))
	return outcomeApplied, nil
}

// applied сбрасывает кеш аккаунта и публикует событие о смене тарифа.
// Сбой публикации только логируется: webhook из-за брокера не падает.
func (p *Processor) applied(ctx context.Context, ent *models.Entitlement, eventType string) {
	p.invalid.Invalidate(ctx, ent.AccountUID)

	if err := p.publisher.PublishEntitlementEvent(models.EntitlementEvent{
		AccountUID: ent.AccountUID,
		Plan:       string(ent.Plan),
		Status:     string(ent.Status),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		p.log.Warn("failed to publish entitlement event", slog.Any("err", err))
	}
}
