package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storefront/api/internal/domain"
	pfirestore "github.com/storefront/api/internal/platform/firestore"
	"github.com/storefront/api/internal/platform/pagination"
	"github.com/storefront/api/internal/repositories"
)

const shippingRulesCollection = "shippingRules"

// ShippingRuleRepository persists shipping rules in Firestore.
type ShippingRuleRepository struct {
	provider *pfirestore.Provider
	rules    *pfirestore.Collection[shippingRuleDocument]
}

var _ repositories.ShippingRuleRepository = (*ShippingRuleRepository)(nil)

// NewShippingRuleRepository constructs a Firestore-backed shipping rule repository.
func NewShippingRuleRepository(provider *pfirestore.Provider) (*ShippingRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("shipping rule repository requires firestore provider")
	}
	return &ShippingRuleRepository{
		provider: provider,
		rules:    pfirestore.NewCollection[shippingRuleDocument](provider, shippingRulesCollection),
	}, nil
}

// ListActive returns every active rule ordered by ID.
func (r *ShippingRuleRepository) ListActive(ctx context.Context) ([]domain.ShippingRule, error) {
	docs, err := r.rules.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	rules := make([]domain.ShippingRule, 0, len(docs))
	for _, doc := range docs {
		rules = append(rules, doc.Data.toDomain(doc.ID))
	}
	return rules, nil
}

// List returns a page of rules ordered by ID.
func (r *ShippingRuleRepository) List(ctx context.Context, filter repositories.ShippingRuleListFilter) (domain.CursorPage[domain.ShippingRule], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.ShippingRule]{}, err
	}
	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = pagination.DefaultPageSize
	}

	docs, err := r.rules.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		if filter.ServiceLevel != "" {
			q = q.Where("serviceLevel", "==", string(filter.ServiceLevel))
		}
		q = q.OrderBy(firestore.DocumentID, firestore.Asc)
		if cursor.AfterID != "" {
			q = q.StartAfter(cursor.AfterID)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.ShippingRule]{}, err
	}

	page := domain.CursorPage[domain.ShippingRule]{Items: make([]domain.ShippingRule, 0, min(len(docs), pageSize))}
	for i, doc := range docs {
		if i == pageSize {
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{AfterID: docs[i-1].ID})
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// Get loads a single rule.
func (r *ShippingRuleRepository) Get(ctx context.Context, ruleID string) (domain.ShippingRule, error) {
	id, err := ruleDocumentID(ruleID)
	if err != nil {
		return domain.ShippingRule{}, err
	}
	doc, err := r.rules.Get(ctx, id)
	if err != nil {
		return domain.ShippingRule{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Insert creates the rule, clearing the Default flag elsewhere when it is set.
func (r *ShippingRuleRepository) Insert(ctx context.Context, rule domain.ShippingRule) error {
	return r.write(ctx, rule, true)
}

// Update replaces the stored rule, clearing the Default flag elsewhere when it is set.
func (r *ShippingRuleRepository) Update(ctx context.Context, rule domain.ShippingRule) error {
	return r.write(ctx, rule, false)
}

// Delete removes the rule. Missing rules surface as not found.
func (r *ShippingRuleRepository) Delete(ctx context.Context, ruleID string) error {
	id, err := ruleDocumentID(ruleID)
	if err != nil {
		return err
	}
	return r.rules.Delete(ctx, id)
}

func (r *ShippingRuleRepository) write(ctx context.Context, rule domain.ShippingRule, create bool) error {
	id, err := ruleDocumentID(rule.ID)
	if err != nil {
		return err
	}
	docRef, err := r.rules.Doc(ctx, id)
	if err != nil {
		return err
	}
	coll, err := r.rules.Ref(ctx)
	if err != nil {
		return err
	}
	doc := newShippingRuleDocument(rule)

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// All reads happen before the first write.
		var others []*firestore.DocumentSnapshot
		if rule.Default {
			snaps, err := tx.Documents(coll.Where("default", "==", true)).GetAll()
			if err != nil {
				return err
			}
			others = snaps
		}

		if create {
			if err := tx.Create(docRef, doc); err != nil {
				return err
			}
		} else {
			if _, err := tx.Get(docRef); err != nil {
				return err
			}
			if err := tx.Set(docRef, doc); err != nil {
				return err
			}
		}

		for _, snap := range others {
			if snap.Ref.ID == docRef.ID {
				continue
			}
			if err := tx.Update(snap.Ref, []firestore.Update{
				{Path: "default", Value: false},
				{Path: "updatedAt", Value: doc.UpdatedAt},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		op := "shippingRules.update"
		if create {
			op = "shippingRules.insert"
		}
		return pfirestore.WrapError(op, err)
	}
	return nil
}

type shippingRuleDocument struct {
	Name                  string                  `firestore:"name"`
	Description           string                  `firestore:"description,omitempty"`
	Carrier               string                  `firestore:"carrier"`
	ServiceLevel          string                  `firestore:"serviceLevel"`
	Priority              int                     `firestore:"priority,omitempty"`
	Zone                  shippingZoneDocument    `firestore:"zone"`
	Pricing               shippingPricingDocument `firestore:"pricing"`
	MaxItemsPerPackage    int                     `firestore:"maxItemsPerPackage"`
	MaxWeightPerPackage   int64                   `firestore:"maxWeightPerPackage"`
	FreeShippingThreshold *int64                  `firestore:"freeShippingThreshold,omitempty"`
	AllowsRestricted      bool                    `firestore:"allowsRestricted"`
	Active                bool                    `firestore:"active"`
	Default               bool                    `firestore:"default"`
	CreatedAt             time.Time               `firestore:"createdAt"`
	UpdatedAt             time.Time               `firestore:"updatedAt"`
}

type shippingZoneDocument struct {
	Countries   []string `firestore:"countries,omitempty"`
	States      []string `firestore:"states,omitempty"`
	Cities      []string `firestore:"cities,omitempty"`
	PostalCodes []string `firestore:"postalCodes,omitempty"`
}

type shippingPricingDocument struct {
	Currency             string  `firestore:"currency,omitempty"`
	BaseCost             int64   `firestore:"baseCost"`
	PackageCosts         []int64 `firestore:"packageCosts,omitempty"`
	ExtraWeightThreshold int64   `firestore:"extraWeightThreshold,omitempty"`
	ExtraWeightStepGrams int64   `firestore:"extraWeightStepGrams,omitempty"`
	ExtraWeightSurcharge int64   `firestore:"extraWeightSurcharge,omitempty"`
	MinDeliveryDays      int     `firestore:"minDeliveryDays,omitempty"`
	MaxDeliveryDays      int     `firestore:"maxDeliveryDays,omitempty"`
}

func newShippingRuleDocument(rule domain.ShippingRule) shippingRuleDocument {
	return shippingRuleDocument{
		Name:         rule.Name,
		Description:  rule.Description,
		Carrier:      rule.Carrier,
		ServiceLevel: string(rule.ServiceLevel),
		Priority:     rule.Priority,
		Zone: shippingZoneDocument{
			Countries:   rule.Zone.Countries,
			States:      rule.Zone.States,
			Cities:      rule.Zone.Cities,
			PostalCodes: rule.Zone.PostalCodes,
		},
		Pricing: shippingPricingDocument{
			Currency:             rule.Pricing.Currency,
			BaseCost:             rule.Pricing.BaseCost,
			PackageCosts:         rule.Pricing.PackageCosts,
			ExtraWeightThreshold: rule.Pricing.ExtraWeightThreshold,
			ExtraWeightStepGrams: rule.Pricing.ExtraWeightStepGrams,
			ExtraWeightSurcharge: rule.Pricing.ExtraWeightSurcharge,
			MinDeliveryDays:      rule.Pricing.MinDeliveryDays,
			MaxDeliveryDays:      rule.Pricing.MaxDeliveryDays,
		},
		MaxItemsPerPackage:    rule.Constraints.MaxItemsPerPackage,
		MaxWeightPerPackage:   rule.Constraints.MaxWeightPerPackage,
		FreeShippingThreshold: rule.FreeShippingThreshold,
		AllowsRestricted:      rule.AllowsRestricted,
		Active:                rule.Active,
		Default:               rule.Default,
		CreatedAt:             rule.CreatedAt.UTC(),
		UpdatedAt:             rule.UpdatedAt.UTC(),
	}
}

func (d shippingRuleDocument) toDomain(id string) domain.ShippingRule {
	return domain.ShippingRule{
		ID:           id,
		Name:         d.Name,
		Description:  d.Description,
		Carrier:      d.Carrier,
		ServiceLevel: domain.ServiceLevel(d.ServiceLevel),
		Priority:     d.Priority,
		Zone: domain.ShippingZone{
			Countries:   d.Zone.Countries,
			States:      d.Zone.States,
			Cities:      d.Zone.Cities,
			PostalCodes: d.Zone.PostalCodes,
		},
		Pricing: domain.ShippingPricing{
			Currency:             d.Pricing.Currency,
			BaseCost:             d.Pricing.BaseCost,
			PackageCosts:         d.Pricing.PackageCosts,
			ExtraWeightThreshold: d.Pricing.ExtraWeightThreshold,
			ExtraWeightStepGrams: d.Pricing.ExtraWeightStepGrams,
			ExtraWeightSurcharge: d.Pricing.ExtraWeightSurcharge,
			MinDeliveryDays:      d.Pricing.MinDeliveryDays,
			MaxDeliveryDays:      d.Pricing.MaxDeliveryDays,
		},
		Constraints: domain.PackageConstraints{
			MaxItemsPerPackage:  d.MaxItemsPerPackage,
			MaxWeightPerPackage: d.MaxWeightPerPackage,
		},
		FreeShippingThreshold: d.FreeShippingThreshold,
		AllowsRestricted:      d.AllowsRestricted,
		Active:                d.Active,
		Default:               d.Default,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

func ruleDocumentID(ruleID string) (string, error) {
	id := strings.TrimSpace(ruleID)
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("shipping rule repository: invalid rule id %q", ruleID)
	}
	return id, nil
}
