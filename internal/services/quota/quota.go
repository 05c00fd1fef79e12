// Package quota реализует проверку квот тарифа перед созданием
// учитываемых ресурсов. Проверка возвращает явный результат с
// наблюдавшимися счётчиками, а не ошибку: отказ по лимиту — ожидаемый
// исход, а не исключительная ситуация.
package quota

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gigroute/billing/internal/models"
	"github.com/gigroute/billing/internal/plans"
)

// ResourceKind вид учитываемого ресурса.
type ResourceKind string

// Виды ресурсов, на которые действуют лимиты тарифа.
const (
	ResourceTour ResourceKind = "tour"
	ResourceStop ResourceKind = "tour_stop"
)

// Result результат квотной проверки. При отказе Current и Max содержат
// наблюдавшийся счётчик и лимит тарифа для сообщения пользователю.
type Result struct {
	Allowed bool `json:"allowed"`
	Current int  `json:"current"`
	Max     int  `json:"max"`
}

// EntitlementProvider отдаёт запись о тарифе аккаунта.
type EntitlementProvider interface {
	Ensure(ctx context.Context, accountUID string) (*models.Entitlement, error)
}

// UsageRepository отдаёт живые счётчики ресурсов.
type UsageRepository interface {
	CountTours(ctx context.Context, accountUID string) (int, error)
	CountStops(ctx context.Context, tourID int) (int, error)
}

// Gate проверяет попытку создания ресурса против лимитов действующего
// плана. Проверка только читает и не резервирует место: её нужно звать
// непосредственно перед создающей записью, а путь записи дополнительно
// перепроверяет лимит в транзакции.
type Gate struct {
	entitlements EntitlementProvider
	usage        UsageRepository
	log          *slog.Logger
}

// NewGate создает новый Gate.
func NewGate(entitlements EntitlementProvider, usage UsageRepository, log *slog.Logger) *Gate {
	return &Gate{
		entitlements: entitlements,
		usage:        usage,
		log:          log,
	}
}

// Check проверяет, может ли аккаунт создать ещё один ресурс вида kind.
// parentID осмыслен только для ресурсов, лимитируемых на родителя
// (даты внутри тура). Лимит 0 отклоняет всегда, Unlimited принимает всегда.
// Протухший pro (например, со статусом canceled) считается по лимитам free.
func (g *Gate) Check(ctx context.Context, accountUID string, kind ResourceKind, parentID int) (Result, error) {
	ent, err := g.entitlements.Ensure(ctx, accountUID)
	if err != nil {
		return Result{}, err
	}
	limits := plans.LimitsFor(ent.EffectivePlan())

	var max, current int
	switch kind {
	case ResourceTour:
		max = limits.MaxTours
		if max == plans.Unlimited {
			return Result{Allowed: true, Max: max}, nil
		}
		current, err = g.usage.CountTours(ctx, accountUID)
	case ResourceStop:
		max = limits.MaxStopsPerTour
		if max == plans.Unlimited {
			return Result{Allowed: true, Max: max}, nil
		}
		current, err = g.usage.CountStops(ctx, parentID)
	default:
		return Result{}, fmt.Errorf("unknown resource kind: %s", kind)
	}
	if err != nil {
		return Result{}, err
	}

	return Result{
		Allowed: current < max,
		Current: current,
		Max:     max,
	}, nil
}

// HasFeature сообщает, включена ли возможность в действующем плане аккаунта.
func (g *Gate) HasFeature(ctx context.Context, accountUID, feature string) (bool, error) {
	ent, err := g.entitlements.Ensure(ctx, accountUID)
	if err != nil {
		return false, err
	}
	return plans.LimitsFor(ent.EffectivePlan()).HasFeature(feature), nil
}
