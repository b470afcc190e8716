package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
)

var (
	// ErrCartInvalid signals a malformed cart line.
	ErrCartInvalid = errors.New("cart: invalid line")
	// ErrCartProductUnavailable indicates a line references a product that is unknown or not for sale.
	ErrCartProductUnavailable = errors.New("cart: product unavailable")
	// ErrCartCatalogUnavailable indicates the product catalog could not be read.
	ErrCartCatalogUnavailable = errors.New("cart: product catalog unavailable")
)

// CartResolver turns client cart lines into priced snapshots read from the product catalog.
type CartResolver interface {
	Resolve(ctx context.Context, lines []CartLine) ([]CartItem, error)
}

type catalogCartResolver struct {
	products repositories.ProductRepository
}

// NewCartResolver builds a resolver over the product repository.
func NewCartResolver(products repositories.ProductRepository) (CartResolver, error) {
	if products == nil {
		return nil, errors.New("cart resolver: product repository is required")
	}
	return &catalogCartResolver{products: products}, nil
}

// Resolve keeps only the line ID and quantity from the client. Price, weight, stock and the
// restricted flag come from the product record. A line without an ID takes its product ID.
func (r *catalogCartResolver) Resolve(ctx context.Context, lines []CartLine) ([]CartItem, error) {
	if len(lines) == 0 {
		return nil, nil
	}

	normalized := make([]CartLine, 0, len(lines))
	productIDs := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for i, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		lineID := strings.TrimSpace(line.ID)
		if productID == "" {
			productID = lineID
		}
		if lineID == "" {
			lineID = productID
		}
		if productID == "" {
			return nil, fmt.Errorf("%w: line %d has no product", ErrCartInvalid, i)
		}
		if _, dup := seen[lineID]; dup {
			return nil, fmt.Errorf("%w: line %s appears more than once", ErrCartInvalid, lineID)
		}
		seen[lineID] = struct{}{}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %s quantity must be positive", ErrCartInvalid, lineID)
		}
		normalized = append(normalized, CartLine{ID: lineID, ProductID: productID, Quantity: line.Quantity})
		productIDs = append(productIDs, productID)
	}

	products, err := r.products.GetMany(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCartCatalogUnavailable, err)
	}
	byID := make(map[string]domain.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	items := make([]CartItem, 0, len(normalized))
	for _, line := range normalized {
		product, ok := byID[line.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("%w: %s", ErrCartProductUnavailable, line.ProductID)
		}
		if product.UnitPrice < 0 || product.WeightGrams < 0 {
			return nil, fmt.Errorf("%w: %s has an invalid catalog entry", ErrCartProductUnavailable, line.ProductID)
		}
		items = append(items, CartItem{
			ID:                 line.ID,
			ProductID:          product.ID,
			SKU:                product.SKU,
			Name:               product.Name,
			UnitPrice:          product.UnitPrice,
			Currency:           product.Currency,
			Quantity:           line.Quantity,
			WeightGrams:        product.WeightGrams,
			Stock:              product.Stock,
			RestrictedShipping: product.RestrictedShipping,
		})
	}
	return items, nil
}
