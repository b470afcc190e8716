package services

import (
	"context"
	"time"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/shipping"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	CartLine           = domain.CartLine
	CartItem           = domain.CartItem
	Product            = domain.Product
	Address            = domain.Address
	ShippingRule       = domain.ShippingRule
	ShippingOption     = domain.ShippingOption
	Order              = domain.Order
	OrderStatus        = domain.OrderStatus
	OrderTotals        = domain.OrderTotals
	OrderShipping      = domain.OrderShipping
	OrderPayment       = domain.OrderPayment
	SystemHealthReport = domain.SystemHealthReport

	ShippingQuote          = shipping.Quote
	ShippingRuleListFilter = repositories.ShippingRuleListFilter
)

// ShippingService quotes shipping options for a checkout session.
type ShippingService interface {
	Quote(ctx context.Context, cmd QuoteShippingCommand) (ShippingQuote, error)
	SelectOption(ctx context.Context, cmd SelectShippingCommand) (ShippingSelection, error)
	EndSession(sessionID string)
}

// ShippingRuleService manages the shipping rule catalog for staff.
type ShippingRuleService interface {
	List(ctx context.Context, filter ShippingRuleListFilter) (domain.CursorPage[ShippingRule], error)
	Get(ctx context.Context, ruleID string) (ShippingRule, error)
	Create(ctx context.Context, cmd UpsertShippingRuleCommand) (ShippingRule, error)
	Update(ctx context.Context, cmd UpsertShippingRuleCommand) (ShippingRule, error)
	Delete(ctx context.Context, cmd DeleteShippingRuleCommand) error
}

// OrderService places orders from a checkout snapshot and exposes them to their owners.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlacedOrder, error)
	GetOrder(ctx context.Context, userID string, orderID string) (Order, error)
}

// QuoteShippingCommand carries the cart lines and address of a checkout session.
type QuoteShippingCommand struct {
	SessionID string
	Lines     []CartLine
	Address   Address
}

// SelectShippingCommand asks for the recomputed option of a single rule.
type SelectShippingCommand struct {
	SessionID string
	Lines     []CartLine
	Address   Address
	RuleID    string
}

// ShippingSelection is the recomputed option together with the catalog snapshot it was priced on.
type ShippingSelection struct {
	Option ShippingOption
	Items  []CartItem
}

// UpsertShippingRuleCommand creates or replaces a rule. Rule.ID is ignored on create.
type UpsertShippingRuleCommand struct {
	Rule    ShippingRule
	ActorID string
}

// DeleteShippingRuleCommand removes a rule from the catalog.
type DeleteShippingRuleCommand struct {
	RuleID  string
	ActorID string
}

// PlaceOrderCommand captures everything required to turn a checkout into an order.
type PlaceOrderCommand struct {
	UserID         string
	SessionID      string
	Email          string
	Currency       string
	Lines          []CartLine
	Address        Address
	ShippingRuleID string
	SuccessURL     string
	CancelURL      string
}

// PlacedOrder pairs the persisted order with the payment redirect the client follows.
type PlacedOrder struct {
	Order       Order
	RedirectURL string
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type              string         `json:"type"`
	OrderID           string         `json:"orderId"`
	UserID            string         `json:"userId,omitempty"`
	Status            string         `json:"status"`
	Currency          string         `json:"currency,omitempty"`
	Total             int64          `json:"total"`
	TotalShippingCost int64          `json:"totalShippingCost"`
	ShippingRuleID    string         `json:"shippingRuleId,omitempty"`
	OccurredAt        time.Time      `json:"occurredAt"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// ShippingRuleEventPublisher announces catalog changes so other instances can drop cached rules.
type ShippingRuleEventPublisher interface {
	PublishShippingRuleEvent(ctx context.Context, event ShippingRuleEvent) error
}

// ShippingRuleEvent describes a single catalog mutation.
type ShippingRuleEvent struct {
	Type       string    `json:"type"`
	Action     string    `json:"action"`
	RuleID     string    `json:"ruleId"`
	ActorID    string    `json:"actorId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
