package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

const defaultSessionLifetime = 30 * time.Minute

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time

	sessions stripeSessionAPI
}

// StripeProvider creates Stripe Checkout sessions.
type StripeProvider struct {
	sessions stripeSessionAPI
	clock    func() time.Time
	logger   StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	sessions := cfg.sessions
	if sessions == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sessions = client.New(apiKey, cfg.Backends).CheckoutSessions
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions: sessions,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateCheckoutSession creates a Stripe Checkout session in payment mode. The shipping charge is sent
// as a fixed-amount shipping rate so Stripe shows it separately from the products.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	if len(req.Items) == 0 {
		return CheckoutSession{}, errors.New("stripe: at least one line item is required")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: make(map[string]string, len(req.Metadata)),
		}
		for k, v := range req.Metadata {
			params.Metadata[k] = v
			params.PaymentIntentData.Metadata[k] = v
		}
	}

	params.LineItems = make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		line := &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max(item.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(item.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		}
		if item.SKU != "" {
			line.PriceData.ProductData.Metadata = map[string]string{"sku": item.SKU}
		}
		params.LineItems = append(params.LineItems, line)
	}

	if req.Shipping != nil {
		params.ShippingOptions = []*stripe.CheckoutSessionShippingOptionParams{{
			ShippingRateData: shippingRateData(*req.Shipping, currency),
		}}
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"currency":  session.Currency,
	})

	expiresAt := p.clock().Add(defaultSessionLifetime)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}

	return CheckoutSession{
		ID:          session.ID,
		Provider:    "stripe",
		RedirectURL: session.URL,
		ExpiresAt:   expiresAt,
	}, nil
}

func shippingRateData(line ShippingLine, currency string) *stripe.CheckoutSessionShippingOptionShippingRateDataParams {
	data := &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
		Type:        stripe.String("fixed_amount"),
		DisplayName: stripe.String(defaultString(line.DisplayName, "Shipping")),
		FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
			Amount:   stripe.Int64(max(line.Amount, 0)),
			Currency: stripe.String(currency),
		},
	}
	if line.MinDeliveryDays > 0 && line.MaxDeliveryDays >= line.MinDeliveryDays {
		data.DeliveryEstimate = &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateParams{
			Minimum: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateMinimumParams{
				Unit:  stripe.String("business_day"),
				Value: stripe.Int64(int64(line.MinDeliveryDays)),
			},
			Maximum: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateMaximumParams{
				Unit:  stripe.String("business_day"),
				Value: stripe.Int64(int64(line.MaxDeliveryDays)),
			},
		}
	}
	return data
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
