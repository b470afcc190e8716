package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/shipping"
)

const shippingMeterName = "github.com/storefront/api/internal/services"

var (
	// ErrShippingInvalidInput signals the caller provided an unusable request.
	ErrShippingInvalidInput = errors.New("shipping: invalid input")
	// ErrShippingOptionUnavailable indicates the requested rule does not ship this cart to this address.
	ErrShippingOptionUnavailable = errors.New("shipping: option unavailable")
	// ErrShippingUnavailable indicates the rule catalog could not be read.
	ErrShippingUnavailable = errors.New("shipping: rule catalog unavailable")
)

// ShippingServiceDeps bundles collaborators required to construct the shipping service.
type ShippingServiceDeps struct {
	Rules  repositories.ShippingRuleRepository
	Cart   CartResolver
	Cache  *ShippingRuleCache
	Config shipping.Config
	Meter  metric.Meter
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type shippingService struct {
	rules      repositories.ShippingRuleRepository
	cart       CartResolver
	cache      *ShippingRuleCache
	calculator *shipping.Calculator
	quotes     metric.Int64Counter
	logger     func(context.Context, string, map[string]any)
}

// NewShippingService wires dependencies into a concrete ShippingService implementation.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Rules == nil {
		return nil, errors.New("shipping service: rule repository is required")
	}
	if deps.Cart == nil {
		return nil, errors.New("shipping service: cart resolver is required")
	}

	cache := deps.Cache
	if cache == nil {
		cache = NewShippingRuleCache(0, nil)
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(shippingMeterName)
	}
	quotes, err := meter.Int64Counter("shipping.quotes",
		metric.WithDescription("Shipping quotes computed, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("shipping service: create quote counter: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &shippingService{
		rules:      deps.Rules,
		cart:       deps.Cart,
		cache:      cache,
		calculator: shipping.NewCalculator(deps.Config),
		quotes:     quotes,
		logger:     logger,
	}, nil
}

func (s *shippingService) Quote(ctx context.Context, cmd QuoteShippingCommand) (ShippingQuote, error) {
	items, err := s.resolve(ctx, cmd.Lines)
	if err != nil {
		return ShippingQuote{}, err
	}
	quote, err := s.compute(ctx, cmd.SessionID, items, cmd.Address)
	if err != nil {
		return ShippingQuote{}, err
	}

	s.quotes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(quote.Status))))
	if quote.Status != shipping.QuoteStatusOK {
		s.logger(ctx, "shipping.quote.empty", map[string]any{
			"sessionId": cmd.SessionID,
			"status":    string(quote.Status),
			"missing":   quote.MissingFields,
		})
	}
	return quote, nil
}

func (s *shippingService) SelectOption(ctx context.Context, cmd SelectShippingCommand) (ShippingSelection, error) {
	ruleID := strings.TrimSpace(cmd.RuleID)
	if ruleID == "" {
		return ShippingSelection{}, fmt.Errorf("%w: shipping rule id is required", ErrShippingInvalidInput)
	}

	items, err := s.resolve(ctx, cmd.Lines)
	if err != nil {
		return ShippingSelection{}, err
	}
	quote, err := s.compute(ctx, cmd.SessionID, items, cmd.Address)
	if err != nil {
		return ShippingSelection{}, err
	}
	option, ok := quote.Find(ruleID)
	if !ok {
		return ShippingSelection{}, fmt.Errorf("%w: rule %s (%s)", ErrShippingOptionUnavailable, ruleID, quote.Status)
	}
	return ShippingSelection{Option: option, Items: items}, nil
}

func (s *shippingService) EndSession(sessionID string) {
	s.cache.Forget(strings.TrimSpace(sessionID))
}

// resolve prices the lines from the catalog. Cart errors stay in the chain next to the shipping sentinel.
func (s *shippingService) resolve(ctx context.Context, lines []CartLine) ([]CartItem, error) {
	items, err := s.cart.Resolve(ctx, lines)
	if err == nil {
		return items, nil
	}
	if errors.Is(err, ErrCartCatalogUnavailable) {
		s.logger(ctx, "shipping.products.load.failed", map[string]any{
			"lines": len(lines),
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", ErrShippingUnavailable, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrShippingInvalidInput, err)
}

// compute recomputes from scratch on every call; only the rule catalog is cached.
func (s *shippingService) compute(ctx context.Context, sessionID string, items []CartItem, addr Address) (ShippingQuote, error) {
	rules, err := s.cache.Load(ctx, strings.TrimSpace(sessionID), s.rules.ListActive)
	if err != nil {
		s.logger(ctx, "shipping.rules.load.failed", map[string]any{
			"sessionId": sessionID,
			"error":     err.Error(),
		})
		return ShippingQuote{}, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}

	start := time.Now()
	quote := s.calculator.Options(shipping.QuoteInput{Items: items, Address: addr, Rules: rules})
	s.logger(ctx, "shipping.quote.computed", map[string]any{
		"sessionId": sessionID,
		"status":    string(quote.Status),
		"options":   len(quote.Options),
		"rules":     len(rules),
		"elapsedMs": time.Since(start).Milliseconds(),
	})
	return quote, nil
}
