// Package plans содержит статический каталог тарифов: лимиты на
// учитываемые ресурсы и включённые возможности для каждого плана.
// Каталог компилируется в бинарник и не меняется в рантайме.
package plans

import "github.com/gigroute/billing/internal/models"

// Unlimited значение лимита без ограничения.
const Unlimited = -1

// Limits лимиты одного тарифного плана.
type Limits struct {
	MaxTours        int // максимум туров на аккаунт, Unlimited — без ограничения
	MaxStopsPerTour int // максимум дат в одном туре
	Features        []string
}

// HasFeature сообщает, включена ли возможность в тарифе.
func (l Limits) HasFeature(name string) bool {
	for _, f := range l.Features {
		if f == name {
			return true
		}
	}
	return false
}

var catalog = map[models.Plan]Limits{
	models.PlanFree: {
		MaxTours:        1,
		MaxStopsPerTour: 5,
		Features:        []string{"advancing", "guestlist"},
	},
	models.PlanPro: {
		MaxTours:        Unlimited,
		MaxStopsPerTour: Unlimited,
		Features: []string{
			"advancing", "guestlist", "invoices",
			"api", "export_pdf", "email_venue",
		},
	},
}

// LimitsFor возвращает лимиты плана. Неизвестный план получает
// лимиты free — fail-safe, а не fail-open.
func LimitsFor(plan models.Plan) Limits {
	if l, ok := catalog[plan]; ok {
		return l
	}
	return catalog[models.PlanFree]
}
