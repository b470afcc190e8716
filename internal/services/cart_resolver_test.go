package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/storefront/api/internal/domain"
)

func TestCartResolverUsesCatalogValues(t *testing.T) {
	products := &stubProductRepo{}
	resolver, err := NewCartResolver(products)
	if err != nil {
		t.Fatalf("new cart resolver: %v", err)
	}

	items, err := resolver.Resolve(context.Background(), []domain.CartLine{
		{ID: " line-1 ", ProductID: "prod-1", Quantity: 2},
		{ProductID: "prod-2", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	first := items[0]
	if first.ID != "line-1" || first.UnitPrice != 25000 || first.WeightGrams != 400 || first.Stock != 5 || first.Quantity != 2 {
		t.Fatalf("unexpected first item %+v", first)
	}
	if items[1].ID != "prod-2" || items[1].Name != "Plato" || items[1].Currency != "MXN" {
		t.Fatalf("expected line id to default to product id, got %+v", items[1])
	}
	if len(products.calls) != 1 || len(products.calls[0]) != 2 {
		t.Fatalf("expected a single batched lookup, got %v", products.calls)
	}
}

func TestCartResolverErrors(t *testing.T) {
	cases := []struct {
		name     string
		lines    []domain.CartLine
		products *stubProductRepo
		want     error
	}{
		{"no product", []domain.CartLine{{Quantity: 1}}, &stubProductRepo{}, ErrCartInvalid},
		{"negative quantity", []domain.CartLine{{ProductID: "prod-1", Quantity: -1}}, &stubProductRepo{}, ErrCartInvalid},
		{"duplicate line", []domain.CartLine{{ID: "a", ProductID: "prod-1", Quantity: 1}, {ID: "a", ProductID: "prod-2", Quantity: 1}}, &stubProductRepo{}, ErrCartInvalid},
		{"unknown product", []domain.CartLine{{ProductID: "prod-9", Quantity: 1}}, &stubProductRepo{}, ErrCartProductUnavailable},
		{"inactive product", []domain.CartLine{{ProductID: "prod-1", Quantity: 1}}, &stubProductRepo{getManyFn: func(context.Context, []string) ([]domain.Product, error) {
			return []domain.Product{{ID: "prod-1", UnitPrice: 100, Stock: 3}}, nil
		}}, ErrCartProductUnavailable},
		{"catalog failure", []domain.CartLine{{ProductID: "prod-1", Quantity: 1}}, &stubProductRepo{getManyFn: func(context.Context, []string) ([]domain.Product, error) {
			return nil, errors.New("deadline exceeded")
		}}, ErrCartCatalogUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resolver, err := NewCartResolver(tc.products)
			if err != nil {
				t.Fatalf("new cart resolver: %v", err)
			}
			if _, err := resolver.Resolve(context.Background(), tc.lines); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCartResolverEmptyCart(t *testing.T) {
	products := &stubProductRepo{}
	resolver, err := NewCartResolver(products)
	if err != nil {
		t.Fatalf("new cart resolver: %v", err)
	}
	items, err := resolver.Resolve(context.Background(), nil)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty result, got %v, %v", items, err)
	}
	if len(products.calls) != 0 {
		t.Fatalf("expected no catalog lookup for an empty cart")
	}
}
