// Package models содержит доменные структуры биллинга: запись о тарифе
// аккаунта (Entitlement), закрытые перечисления плана и статуса,
// а также вспомогательные типы для обмена данными с внешними источниками.
package models

import "time"

// Plan закрытое перечисление тарифных планов.
type Plan string

// Допустимые значения плана.
const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// ParsePlan приводит строку к типу Plan. Неизвестное имя плана
// трактуется как free — лимиты никогда не "открываются" по ошибке.
func ParsePlan(s string) Plan {
	if s == string(PlanPro) {
		return PlanPro
	}
	return PlanFree
}

// Status закрытое перечисление статусов подписки,
// словарь совпадает со статусами платёжного провайдера.
type Status string

// Допустимые значения статуса.
const (
	StatusActive     Status = "active"
	StatusPastDue    Status = "past_due"
	StatusCanceled   Status = "canceled"
	StatusTrialing   Status = "trialing"
	StatusIncomplete Status = "incomplete"
)

// Entitlement локальная запись о тарифе аккаунта, единственная на аккаунт.
// Создаётся лениво со значениями free/active и никогда не удаляется:
// отмена подписки возвращает запись к базовому free, а не убирает строку.
type Entitlement struct {
	ID                      int
	AccountUID              string
	Plan                    Plan
	Status                  Status
	ProviderSubscriptionRef *string // идентификатор подписки у провайдера, только для pro
	ProviderCustomerRef     *string
	CurrentPeriodStart      *time.Time
	CurrentPeriodEnd        *time.Time
	CancelAtPeriodEnd       bool
	CreatedAt               time.Time
	UpdatedAt               *time.Time
}

// IsEntitled сообщает, даёт ли текущий статус право на платные возможности.
// Past_due входит в набор: просрочка платежа оставляет льготный период.
func (e *Entitlement) IsEntitled() bool {
	switch e.Status {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	}
	return false
}

// EffectivePlan возвращает план, по которому реально считаются лимиты.
// Pro действует только в сочетании с действующим статусом: запись
// plan=pro со статусом canceled не даёт доступа к платным возможностям.
func (e *Entitlement) EffectivePlan() Plan {
	if e.Plan == PlanPro && e.IsEntitled() {
		return PlanPro
	}
	return PlanFree
}

// DaysRemaining возвращает число дней до конца оплаченного периода,
// nil для бесплатного плана или при отсутствии границы периода.
func (e *Entitlement) DaysRemaining(now time.Time) *int {
	if e.Plan == PlanFree || e.CurrentPeriodEnd == nil {
		return nil
	}
	days := int(e.CurrentPeriodEnd.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}

// EntitlementView форма записи для JSON-ответов API.
type EntitlementView struct {
	AccountUID        string     `json:"account_uid"`
	Plan              string     `json:"plan"`
	Status            string     `json:"status"`
	IsEntitled        bool       `json:"is_entitled"`
	EffectivePlan     string     `json:"effective_plan"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	DaysRemaining     *int       `json:"days_remaining,omitempty"`
}

// View конвертирует запись в форму для ответа API.
func (e *Entitlement) View(now time.Time) EntitlementView {
	return EntitlementView{
		AccountUID:        e.AccountUID,
		Plan:              string(e.Plan),
		Status:            string(e.Status),
		IsEntitled:        e.IsEntitled(),
		EffectivePlan:     string(e.EffectivePlan()),
		CurrentPeriodEnd:  e.CurrentPeriodEnd,
		CancelAtPeriodEnd: e.CancelAtPeriodEnd,
		DaysRemaining:     e.DaysRemaining(now),
	}
}

// EntitlementUpdate набор полей для идемпотентного перехода состояния.
// Каждое non-nil поле перезаписывается как есть, счётчиков и дельт нет,
// поэтому повторное применение того же набора даёт то же состояние.
// Флаги Clear* записывают NULL в соответствующие nullable-колонки.
type EntitlementUpdate struct {
	Plan                         *Plan
	Status                       *Status
	ProviderSubscriptionRef      *string
	ClearProviderSubscriptionRef bool
	ProviderCustomerRef          *string
	CurrentPeriodStart           *time.Time
	CurrentPeriodEnd             *time.Time
	ClearCurrentPeriodEnd        bool
	CancelAtPeriodEnd            *bool
}

// EntitlementEvent сообщение о смене тарифа, публикуемое в брокер
// для сервисов уведомлений.
type EntitlementEvent struct {
	AccountUID string    `json:"account_uid"`
	Plan       string    `json:"plan"`
	Status     string    `json:"status"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
}
