package repositories

import (
	"context"

	domain "github.com/storefront/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ShippingRuleRepository persists the shipping rule catalog.
type ShippingRuleRepository interface {
	// ListActive returns every active rule. Checkout quoting reads the full set.
	ListActive(ctx context.Context) ([]domain.ShippingRule, error)
	List(ctx context.Context, filter ShippingRuleListFilter) (domain.CursorPage[domain.ShippingRule], error)
	// Get returns a RepositoryError with IsNotFound when the rule is absent.
	Get(ctx context.Context, ruleID string) (domain.ShippingRule, error)
	// Insert fails with IsConflict when the ID is already taken.
	Insert(ctx context.Context, rule domain.ShippingRule) error
	// Update replaces a stored rule. When rule.Default is set, every other rule loses its Default flag
	// in the same transaction.
	Update(ctx context.Context, rule domain.ShippingRule) error
	Delete(ctx context.Context, ruleID string) error
}

// OrderRepository persists placed orders.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
}

// ProductRepository reads the product catalog that prices and weighs cart lines.
type ProductRepository interface {
	// GetMany returns the products found for ids. Unknown IDs are absent from the result.
	GetMany(ctx context.Context, ids []string) ([]domain.Product, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// ShippingRuleListFilter narrows admin rule listings.
type ShippingRuleListFilter struct {
	ActiveOnly   bool
	ServiceLevel domain.ServiceLevel
	Pagination   domain.Pagination
}
