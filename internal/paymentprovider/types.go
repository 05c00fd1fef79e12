package paymentprovider

import "encoding/json"

// Customer клиент у провайдера.
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CheckoutSession сессия оплаты, размещённая у провайдера.
// URL — адрес, на который нужно перенаправить пользователя.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PortalSession сессия портала самообслуживания.
type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCustomerParams параметры создания клиента.
// AccountUID уходит в metadata, чтобы клиент был атрибутируем без поиска.
type CreateCustomerParams struct {
	Email      string
	Name       string
	AccountUID string
}

// CreateCheckoutSessionParams параметры checkout-сессии подписки.
type CreateCheckoutSessionParams struct {
	CustomerRef string
	PriceID     string
	SuccessURL  string
	CancelURL   string
	AccountUID  string // попадает в metadata сессии для атрибуции webhook
}

// Event входящее webhook-событие провайдера. Объект события
// раскодируется по типу уже в обработчике.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData контейнер объекта события.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// CheckoutSessionObject объект события checkout.session.completed.
type CheckoutSessionObject struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// SubscriptionObject объект событий customer.subscription.*.
type SubscriptionObject struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
}

// InvoiceObject объект события invoice.payment_failed.
type InvoiceObject struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
}
