package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// CheckoutLineItem describes a single product line in a checkout session.
type CheckoutLineItem struct {
	Name     string
	SKU      string
	Quantity int64
	Amount   int64
	Currency string
}

// ShippingLine is the fixed shipping charge shown alongside the product lines.
type ShippingLine struct {
	DisplayName     string
	Amount          int64
	MinDeliveryDays int
	MaxDeliveryDays int
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Currency       string
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
	Items          []CheckoutLineItem
	Shipping       *ShippingLine
}

// CheckoutSession represents the PSP session returned to the client.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

// Manager routes checkout requests to a provider by currency.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = normaliseKey(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := normaliseKey(k)
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{providers: registered}
	if _, ok := registered["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

func (m *Manager) resolveProvider(currency string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key, ok := m.currencyRoutes[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
	}
	if def := normaliseKey(m.defaultProvider); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCheckoutSession delegates to the provider routed for the request currency.
func (m *Manager) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	key, provider, err := m.resolveProvider(req.Currency)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	session.Provider = key
	return session, nil
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
