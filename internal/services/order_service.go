package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/payments"
	"github.com/storefront/api/internal/repositories"
)

const (
	orderEventCreated = "order.created"

	orderIDPrefix = "ord_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderInsufficientStock indicates a line asks for more units than are available.
	ErrOrderInsufficientStock = errors.New("order: insufficient stock")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates a duplicate order ID.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderPaymentFailed indicates the PSP checkout session could not be opened.
	ErrOrderPaymentFailed = errors.New("order: payment session failed")
	// ErrOrderUnavailable indicates the order store is unreachable.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

// CheckoutSessionCreator opens a PSP checkout session. *payments.Manager satisfies it.
type CheckoutSessionCreator interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Shipping    ShippingService
	Payments    CheckoutSessionCreator
	Events      OrderEventPublisher
	Currency    string
	SuccessURL  string
	CancelURL   string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	shipping   ShippingService
	payments   CheckoutSessionCreator
	events     OrderEventPublisher
	currency   string
	successURL string
	cancelURL  string
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("order service: shipping service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("order service: payment provider is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		shipping:   deps.Shipping,
		payments:   deps.Payments,
		events:     deps.Events,
		currency:   strings.ToUpper(strings.TrimSpace(deps.Currency)),
		successURL: strings.TrimSpace(deps.SuccessURL),
		cancelURL:  strings.TrimSpace(deps.CancelURL),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PlacedOrder{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return PlacedOrder{}, fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	ruleID := strings.TrimSpace(cmd.ShippingRuleID)
	if ruleID == "" {
		return PlacedOrder{}, fmt.Errorf("%w: shipping rule id is required", ErrOrderInvalidInput)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}
	if currency == "" {
		return PlacedOrder{}, fmt.Errorf("%w: currency is required", ErrOrderInvalidInput)
	}

	successURL := firstNonEmpty(cmd.SuccessURL, s.successURL)
	cancelURL := firstNonEmpty(cmd.CancelURL, s.cancelURL)
	if successURL == "" || cancelURL == "" {
		return PlacedOrder{}, fmt.Errorf("%w: success and cancel urls are required", ErrOrderInvalidInput)
	}

	// Items are priced from the catalog and shipping is recomputed; only line IDs and quantities
	// come from the client.
	selection, err := s.shipping.SelectOption(ctx, SelectShippingCommand{
		SessionID: cmd.SessionID,
		Lines:     cmd.Lines,
		Address:   cmd.Address,
		RuleID:    ruleID,
	})
	if err != nil {
		if errors.Is(err, ErrCartInvalid) || errors.Is(err, ErrCartProductUnavailable) {
			return PlacedOrder{}, fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
		}
		return PlacedOrder{}, err
	}
	option := selection.Option
	if err := validateOrderItems(selection.Items, currency); err != nil {
		return PlacedOrder{}, err
	}
	if option.Currency != "" && option.Currency != currency {
		return PlacedOrder{}, fmt.Errorf("%w: shipping option is priced in %s, order in %s", ErrOrderInvalidInput, option.Currency, currency)
	}

	now := s.clock()
	items := cloneItems(selection.Items)
	subtotal := orderSubtotal(items)

	order := Order{
		ID:              s.nextOrderID(),
		UserID:          userID,
		SessionID:       strings.TrimSpace(cmd.SessionID),
		Status:          domain.OrderStatusPendingPayment,
		Currency:        currency,
		Email:           strings.TrimSpace(cmd.Email),
		Items:           items,
		ShippingAddress: cmd.Address,
		Shipping:        orderShippingFromOption(option),
		Totals: OrderTotals{
			Subtotal: subtotal,
			Shipping: option.TotalShippingCost,
			Total:    subtotal + option.TotalShippingCost,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	// The session is opened first so a stored order always carries its payment reference.
	session, err := s.payments.CreateCheckoutSession(ctx, checkoutRequest(order, option, successURL, cancelURL))
	if err != nil {
		s.logger(ctx, "order.payment.session.failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
		return PlacedOrder{}, fmt.Errorf("%w: %v", ErrOrderPaymentFailed, err)
	}
	order.Payment = OrderPayment{
		Provider:    session.Provider,
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		// the redirect is withheld, so the open session expires unpaid
		s.logger(ctx, "order.persist.failed", map[string]any{
			"order":   order.ID,
			"session": session.ID,
			"error":   err.Error(),
		})
		return PlacedOrder{}, s.mapRepositoryError(err)
	}

	s.shipping.EndSession(cmd.SessionID)

	s.publishEvent(ctx, OrderEvent{
		Type:              orderEventCreated,
		OrderID:           order.ID,
		UserID:            order.UserID,
		Status:            string(order.Status),
		Currency:          order.Currency,
		Total:             order.Totals.Total,
		TotalShippingCost: order.Shipping.TotalShippingCost,
		ShippingRuleID:    order.Shipping.RuleID,
		OccurredAt:        now,
		Metadata: map[string]any{
			"packages": order.Shipping.PackageCount,
			"provider": session.Provider,
		},
	})

	return PlacedOrder{Order: order, RedirectURL: session.RedirectURL}, nil
}

func (s *orderService) GetOrder(ctx context.Context, userID string, orderID string) (Order, error) {
	userID = strings.TrimSpace(userID)
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	// other users' orders are reported as missing
	if order.UserID != userID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// validateOrderItems checks catalog snapshots, so stock and currency are server values.
func validateOrderItems(items []CartItem, currency string) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	for _, item := range items {
		if item.Currency != "" && item.Currency != currency {
			return fmt.Errorf("%w: item %s is priced in %s, order in %s", ErrOrderInvalidInput, item.ID, item.Currency, currency)
		}
		if item.Quantity > item.Stock {
			return fmt.Errorf("%w: item %s requests %d, %d available", ErrOrderInsufficientStock, item.ID, item.Quantity, item.Stock)
		}
	}
	return nil
}

func orderShippingFromOption(option ShippingOption) OrderShipping {
	packages := make([]domain.PackageSnapshot, 0, len(option.Packages))
	for _, pkg := range option.Packages {
		packages = append(packages, pkg.Snapshot())
	}
	return OrderShipping{
		RuleID:            option.RuleID,
		RuleName:          option.Name,
		Carrier:           option.Carrier,
		ServiceLevel:      option.ServiceLevel,
		TotalShippingCost: option.TotalShippingCost,
		Free:              option.Free,
		PackageCount:      len(packages),
		Packages:          packages,
		MinDeliveryDays:   option.MinDeliveryDays,
		MaxDeliveryDays:   option.MaxDeliveryDays,
	}
}

func checkoutRequest(order Order, option ShippingOption, successURL, cancelURL string) payments.CheckoutSessionRequest {
	lines := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payments.CheckoutLineItem{
			Name:     firstNonEmpty(item.Name, item.SKU, item.ProductID),
			SKU:      item.SKU,
			Quantity: int64(item.Quantity),
			Amount:   item.UnitPrice,
			Currency: order.Currency,
		})
	}

	name := option.Name
	if option.Carrier != "" && option.Carrier != option.Name {
		name = strings.TrimSpace(option.Carrier + " " + option.Name)
	}

	return payments.CheckoutSessionRequest{
		Currency:       order.Currency,
		CustomerEmail:  order.Email,
		SuccessURL:     successURL,
		CancelURL:      cancelURL,
		IdempotencyKey: "order:" + order.ID,
		Metadata: map[string]string{
			"orderId":        order.ID,
			"userId":         order.UserID,
			"shippingRuleId": order.Shipping.RuleID,
		},
		Items: lines,
		Shipping: &payments.ShippingLine{
			DisplayName:     firstNonEmpty(name, "Shipping"),
			Amount:          option.TotalShippingCost,
			MinDeliveryDays: option.MinDeliveryDays,
			MaxDeliveryDays: option.MaxDeliveryDays,
		},
	}
}

func orderSubtotal(items []CartItem) int64 {
	var sum int64
	for _, item := range items {
		sum += item.Subtotal()
	}
	return sum
}

func cloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].ID = strings.TrimSpace(out[i].ID)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}

	return err
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}
