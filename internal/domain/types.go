package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps paginated results.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// CartLine is what a client submits for a cart line: which product and how many. Everything
// else about the line is read from the product catalog.
type CartLine struct {
	ID        string
	ProductID string
	Quantity  int
}

// Product is the catalog record a cart line resolves against. Amounts are minor currency units.
type Product struct {
	ID                 string
	SKU                string
	Name               string
	UnitPrice          int64
	Currency           string
	WeightGrams        int64
	Stock              int
	RestrictedShipping bool
	Active             bool
	UpdatedAt          time.Time
}

// CartItem is the immutable snapshot of a cart line taken when checkout starts. It is built
// server-side from a CartLine and its Product.
type CartItem struct {
	ID                 string
	ProductID          string
	SKU                string
	Name               string
	UnitPrice          int64
	Currency           string
	Quantity           int
	WeightGrams        int64
	Stock              int
	RestrictedShipping bool
}

// Units returns the number of physical units the line represents. Zero or negative quantities count as one.
func (i CartItem) Units() int {
	if i.Quantity < 1 {
		return 1
	}
	return i.Quantity
}

// Weight returns the line weight in grams.
func (i CartItem) Weight() int64 {
	if i.WeightGrams <= 0 {
		return 0
	}
	return i.WeightGrams * int64(i.Units())
}

// Subtotal returns the line amount in minor currency units.
func (i CartItem) Subtotal() int64 {
	return i.UnitPrice * int64(i.Units())
}

// Address holds the free-text delivery address captured at checkout.
type Address struct {
	Name       string
	Street     string
	NumExt     string
	NumInt     string
	Colonia    string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// OrderStatus enumerates order lifecycle states handled by the API.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCanceled       OrderStatus = "canceled"
)

// Order is the persisted result of placing a checkout.
type Order struct {
	ID              string
	UserID          string
	SessionID       string
	Status          OrderStatus
	Currency        string
	Email           string
	Items           []CartItem
	ShippingAddress Address
	Shipping        OrderShipping
	Totals          OrderTotals
	Payment         OrderPayment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderPayment references the PSP checkout session opened for the order.
type OrderPayment struct {
	Provider    string
	SessionID   string
	RedirectURL string
	ExpiresAt   time.Time
}

// OrderTotals holds rolled-up monetary fields in the smallest currency unit.
type OrderTotals struct {
	Subtotal int64
	Shipping int64
	Total    int64
}

// OrderShipping snapshots the shipping option selected for the order.
type OrderShipping struct {
	RuleID            string
	RuleName          string
	Carrier           string
	ServiceLevel      ServiceLevel
	TotalShippingCost int64
	Free              bool
	PackageCount      int
	Packages          []PackageSnapshot
	MinDeliveryDays   int
	MaxDeliveryDays   int
}

// PackageSnapshot records the contents of an allocated package as stored on the order.
type PackageSnapshot struct {
	ItemIDs     []string
	Units       int
	WeightGrams int64
	Cost        int64
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
