package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository persists placed orders in Firestore.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document together with its payment session. Existing IDs are reported
// as conflicts.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.orders.Create(ctx, strings.TrimSpace(order.ID), newOrderDocument(order))
	return err
}

// Get loads an order by ID.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

type orderDocument struct {
	UserID          string                `firestore:"userId"`
	SessionID       string                `firestore:"sessionId,omitempty"`
	Status          string                `firestore:"status"`
	Currency        string                `firestore:"currency"`
	Email           string                `firestore:"email,omitempty"`
	Items           []orderItemDocument   `firestore:"items"`
	ShippingAddress addressDocument       `firestore:"shippingAddress"`
	Shipping        orderShippingDocument `firestore:"shipping"`
	Totals          orderTotalsDocument   `firestore:"totals"`
	Payment         orderPaymentDocument  `firestore:"payment"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ID                 string `firestore:"id"`
	ProductID          string `firestore:"productId"`
	SKU                string `firestore:"sku,omitempty"`
	Name               string `firestore:"name"`
	UnitPrice          int64  `firestore:"unitPrice"`
	Quantity           int    `firestore:"quantity"`
	WeightGrams        int64  `firestore:"weightGrams"`
	RestrictedShipping bool   `firestore:"restrictedShipping,omitempty"`
}

type addressDocument struct {
	Name       string `firestore:"name"`
	Street     string `firestore:"street"`
	NumExt     string `firestore:"numExt,omitempty"`
	NumInt     string `firestore:"numInt,omitempty"`
	Colonia    string `firestore:"colonia,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country,omitempty"`
	Phone      string `firestore:"phone,omitempty"`
}

type orderShippingDocument struct {
	RuleID            string            `firestore:"ruleId"`
	RuleName          string            `firestore:"ruleName"`
	Carrier           string            `firestore:"carrier"`
	ServiceLevel      string            `firestore:"serviceLevel"`
	TotalShippingCost int64             `firestore:"totalShippingCost"`
	Free              bool              `firestore:"free"`
	PackageCount      int               `firestore:"packageCount"`
	Packages          []packageDocument `firestore:"packages"`
	MinDeliveryDays   int               `firestore:"minDeliveryDays,omitempty"`
	MaxDeliveryDays   int               `firestore:"maxDeliveryDays,omitempty"`
}

type packageDocument struct {
	ItemIDs     []string `firestore:"itemIds"`
	Units       int      `firestore:"units"`
	WeightGrams int64    `firestore:"weightGrams"`
	Cost        int64    `firestore:"cost"`
}

type orderTotalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type orderPaymentDocument struct {
	Provider    string    `firestore:"provider,omitempty"`
	SessionID   string    `firestore:"sessionId,omitempty"`
	RedirectURL string    `firestore:"redirectUrl,omitempty"`
	ExpiresAt   time.Time `firestore:"expiresAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ID:                 item.ID,
			ProductID:          item.ProductID,
			SKU:                item.SKU,
			Name:               item.Name,
			UnitPrice:          item.UnitPrice,
			Quantity:           item.Quantity,
			WeightGrams:        item.WeightGrams,
			RestrictedShipping: item.RestrictedShipping,
		})
	}
	packages := make([]packageDocument, 0, len(order.Shipping.Packages))
	for _, pkg := range order.Shipping.Packages {
		packages = append(packages, packageDocument(pkg))
	}
	addr := order.ShippingAddress

	return orderDocument{
		UserID:    order.UserID,
		SessionID: order.SessionID,
		Status:    string(order.Status),
		Currency:  order.Currency,
		Email:     order.Email,
		Items:     items,
		ShippingAddress: addressDocument{
			Name:       addr.Name,
			Street:     addr.Street,
			NumExt:     addr.NumExt,
			NumInt:     addr.NumInt,
			Colonia:    addr.Colonia,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Phone:      addr.Phone,
		},
		Shipping: orderShippingDocument{
			RuleID:            order.Shipping.RuleID,
			RuleName:          order.Shipping.RuleName,
			Carrier:           order.Shipping.Carrier,
			ServiceLevel:      string(order.Shipping.ServiceLevel),
			TotalShippingCost: order.Shipping.TotalShippingCost,
			Free:              order.Shipping.Free,
			PackageCount:      order.Shipping.PackageCount,
			Packages:          packages,
			MinDeliveryDays:   order.Shipping.MinDeliveryDays,
			MaxDeliveryDays:   order.Shipping.MaxDeliveryDays,
		},
		Totals:    orderTotalsDocument(order.Totals),
		Payment:   newOrderPaymentDocument(order.Payment),
		CreatedAt: order.CreatedAt.UTC(),
		UpdatedAt: order.UpdatedAt.UTC(),
	}
}

func newOrderPaymentDocument(payment domain.OrderPayment) orderPaymentDocument {
	return orderPaymentDocument{
		Provider:    payment.Provider,
		SessionID:   payment.SessionID,
		RedirectURL: payment.RedirectURL,
		ExpiresAt:   payment.ExpiresAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{
			ID:                 item.ID,
			ProductID:          item.ProductID,
			SKU:                item.SKU,
			Name:               item.Name,
			UnitPrice:          item.UnitPrice,
			Currency:           d.Currency,
			Quantity:           item.Quantity,
			WeightGrams:        item.WeightGrams,
			RestrictedShipping: item.RestrictedShipping,
		})
	}
	packages := make([]domain.PackageSnapshot, 0, len(d.Shipping.Packages))
	for _, pkg := range d.Shipping.Packages {
		packages = append(packages, domain.PackageSnapshot(pkg))
	}
	addr := d.ShippingAddress

	return domain.Order{
		ID:        id,
		UserID:    d.UserID,
		SessionID: d.SessionID,
		Status:    domain.OrderStatus(d.Status),
		Currency:  d.Currency,
		Email:     d.Email,
		Items:     items,
		ShippingAddress: domain.Address{
			Name:       addr.Name,
			Street:     addr.Street,
			NumExt:     addr.NumExt,
			NumInt:     addr.NumInt,
			Colonia:    addr.Colonia,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Phone:      addr.Phone,
		},
		Shipping: domain.OrderShipping{
			RuleID:            d.Shipping.RuleID,
			RuleName:          d.Shipping.RuleName,
			Carrier:           d.Shipping.Carrier,
			ServiceLevel:      domain.ServiceLevel(d.Shipping.ServiceLevel),
			TotalShippingCost: d.Shipping.TotalShippingCost,
			Free:              d.Shipping.Free,
			PackageCount:      d.Shipping.PackageCount,
			Packages:          packages,
			MinDeliveryDays:   d.Shipping.MinDeliveryDays,
			MaxDeliveryDays:   d.Shipping.MaxDeliveryDays,
		},
		Totals: domain.OrderTotals(d.Totals),
		Payment: domain.OrderPayment{
			Provider:    d.Payment.Provider,
			SessionID:   d.Payment.SessionID,
			RedirectURL: d.Payment.RedirectURL,
			ExpiresAt:   d.Payment.ExpiresAt,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
