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

const productsCollection = "products"

// ProductRepository reads catalog products from Firestore. The catalog is maintained elsewhere.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product reader.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
	}, nil
}

// GetMany loads the products for ids. Duplicates are fetched once.
func (r *ProductRepository) GetMany(ctx context.Context, ids []string) ([]domain.Product, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	docs, err := r.products.GetMany(ctx, unique)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product := doc.Data.toDomain(doc.ID)
		if product.UpdatedAt.IsZero() {
			product.UpdatedAt = doc.UpdateTime
		}
		products = append(products, product)
	}
	return products, nil
}

type productDocument struct {
	SKU                string    `firestore:"sku,omitempty"`
	Name               string    `firestore:"name"`
	UnitPrice          int64     `firestore:"unitPrice"`
	Currency           string    `firestore:"currency"`
	WeightGrams        int64     `firestore:"weightGrams"`
	Stock              int       `firestore:"stock"`
	RestrictedShipping bool      `firestore:"restrictedShipping"`
	Active             bool      `firestore:"active"`
	UpdatedAt          time.Time `firestore:"updatedAt,omitempty"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:                 id,
		SKU:                d.SKU,
		Name:               d.Name,
		UnitPrice:          d.UnitPrice,
		Currency:           strings.ToUpper(strings.TrimSpace(d.Currency)),
		WeightGrams:        d.WeightGrams,
		Stock:              d.Stock,
		RestrictedShipping: d.RestrictedShipping,
		Active:             d.Active,
		UpdatedAt:          d.UpdatedAt,
	}
}
