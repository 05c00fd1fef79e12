package rabbitmq

import (
	"github.com/streadway/amqp"

	"github.com/gigroute/billing/internal/models"
)

// EntitlementPublisher публикует события о смене тарифа в обменник биллинга.
type EntitlementPublisher struct {
	ch *amqp.Channel
}

// NewEntitlementPublisher создает новый EntitlementPublisher.
func NewEntitlementPublisher(ch *amqp.Channel) *EntitlementPublisher {
	return &EntitlementPublisher{ch: ch}
}

// PublishEntitlementEvent публикует событие о смене тарифа.
func (p *EntitlementPublisher) PublishEntitlementEvent(event models.EntitlementEvent) error {
	return PublishMessage(p.ch, BillingExchange, EntitlementRoutingKey, event)
}
