// Package paymentprovider реализует клиент Stripe API и проверку подписи
// webhook-уведомлений. Клиент покрывает только то, что нужно биллингу:
// создание клиента, checkout-сессии и сессии портала самообслуживания.
package paymentprovider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client клиент Stripe API.
type Client struct {
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент Stripe.
func NewClient(secretKey string) *Client {
	return NewClientWithURL(secretKey, "https://api.stripe.com/v1")
}

// NewClientWithURL создаёт клиент с произвольным базовым URL, используется в тестах.
func NewClientWithURL(secretKey, apiURL string) *Client {
	return &Client{
		secretKey:  secretKey,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errors.New("unexpected status: " + resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateCustomer создаёт клиента у провайдера.
func (c *Client) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	form := url.Values{}
	form.Set("email", params.Email)
	form.Set("name", params.Name)
	form.Set("metadata[account_uid]", params.AccountUID)

	var customer Customer
	if err := c.postForm(ctx, "/customers", form, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// CreateCheckoutSession создаёт checkout-сессию подписки, привязанную
// к клиенту и цене тарифа. UID аккаунта кладётся в metadata сессии,
// чтобы последующий webhook был атрибутирован без обратного поиска.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CreateCheckoutSessionParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("customer", params.CustomerRef)
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("metadata[account_uid]", params.AccountUID)

	var session CheckoutSession
	if err := c.postForm(ctx, "/checkout/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreatePortalSession создаёт сессию портала самообслуживания.
func (c *Client) CreatePortalSession(ctx context.Context, customerRef, returnURL string) (*PortalSession, error) {
	form := url.Values{}
	form.Set("customer", customerRef)
	form.Set("return_url", returnURL)

	var session PortalSession
	if err := c.postForm(ctx, "/billing_portal/sessions", form, &session); err != nil {
		return nil, err
	}
	return &session, nil
}
