// Package metrics определяет счётчики prometheus для биллингового ядра.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WebhookEventsTotal счётчик обработанных webhook-событий
// с разбивкой по типу события и исходу (applied, skipped, error).
var WebhookEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Processed billing webhook events by type and outcome.",
	},
	[]string{"type", "outcome"},
)

// QuotaRejectionsTotal счётчик отказов квотных проверок по виду ресурса.
var QuotaRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_quota_rejections_total",
		Help: "Resource creation attempts rejected by plan limits.",
	},
	[]string{"resource"},
)

// CheckoutSessionsTotal счётчик созданных сессий провайдера по виду и исходу.
var CheckoutSessionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_provider_sessions_total",
		Help: "Provider-hosted sessions created by kind and outcome.",
	},
	[]string{"kind", "outcome"},
)
