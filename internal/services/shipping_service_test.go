package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/shipping"
)

type stubRuleRepo struct {
	listActiveFn func(context.Context) ([]domain.ShippingRule, error)
	listFn       func(context.Context, repositories.ShippingRuleListFilter) (domain.CursorPage[domain.ShippingRule], error)
	getFn        func(context.Context, string) (domain.ShippingRule, error)
	insertFn     func(context.Context, domain.ShippingRule) error
	updateFn     func(context.Context, domain.ShippingRule) error
	deleteFn     func(context.Context, string) error

	listActiveCalls int
}

func (s *stubRuleRepo) ListActive(ctx context.Context) ([]domain.ShippingRule, error) {
	s.listActiveCalls++
	if s.listActiveFn != nil {
		return s.listActiveFn(ctx)
	}
	return nil, nil
}

func (s *stubRuleRepo) List(ctx context.Context, filter repositories.ShippingRuleListFilter) (domain.CursorPage[domain.ShippingRule], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.ShippingRule]{}, nil
}

func (s *stubRuleRepo) Get(ctx context.Context, ruleID string) (domain.ShippingRule, error) {
	if s.getFn != nil {
		return s.getFn(ctx, ruleID)
	}
	return domain.ShippingRule{}, errors.New("not implemented")
}

func (s *stubRuleRepo) Insert(ctx context.Context, rule domain.ShippingRule) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, rule)
	}
	return nil
}

func (s *stubRuleRepo) Update(ctx context.Context, rule domain.ShippingRule) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, rule)
	}
	return nil
}

func (s *stubRuleRepo) Delete(ctx context.Context, ruleID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, ruleID)
	}
	return nil
}

type stubProductRepo struct {
	getManyFn func(context.Context, []string) ([]domain.Product, error)
	calls     [][]string
}

func (s *stubProductRepo) GetMany(ctx context.Context, ids []string) ([]domain.Product, error) {
	s.calls = append(s.calls, append([]string(nil), ids...))
	if s.getManyFn != nil {
		return s.getManyFn(ctx, ids)
	}
	return testProducts(), nil
}

type repoErr struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoErr) Error() string       { return "repository failure" }
func (e repoErr) IsNotFound() bool    { return e.notFound }
func (e repoErr) IsConflict() bool    { return e.conflict }
func (e repoErr) IsUnavailable() bool { return e.unavailable }

func testRules() []domain.ShippingRule {
	return []domain.ShippingRule{
		{
			ID:           "shr_std",
			Name:         "Estándar",
			Carrier:      "Estafeta",
			ServiceLevel: domain.ServiceLevelStandard,
			Active:       true,
			Pricing:      domain.ShippingPricing{BaseCost: 9900, MinDeliveryDays: 3, MaxDeliveryDays: 7},
			Constraints:  domain.PackageConstraints{MaxItemsPerPackage: 2},
		},
		{
			ID:           "shr_local",
			Name:         "Local",
			Carrier:      "Mensajería",
			ServiceLevel: domain.ServiceLevelLocal,
			Active:       true,
			Zone:         domain.ShippingZone{States: []string{"Nuevo León"}},
			Pricing:      domain.ShippingPricing{BaseCost: 4900},
		},
		{
			ID:           "shr_jal",
			Name:         "Jalisco",
			Carrier:      "Mensajería",
			ServiceLevel: domain.ServiceLevelLocal,
			Active:       true,
			Zone:         domain.ShippingZone{States: []string{"Jalisco"}},
			Pricing:      domain.ShippingPricing{BaseCost: 100},
		},
	}
}

func testAddress() domain.Address {
	return domain.Address{Name: "Ana", Street: "Av. Constitución 100", City: "Monterrey", State: "Nuevo Leon", PostalCode: "64000", Country: "MX"}
}

func testProducts() []domain.Product {
	return []domain.Product{
		{ID: "prod-1", SKU: "SKU-1", Name: "Taza", UnitPrice: 25000, Currency: "MXN", WeightGrams: 400, Stock: 5, Active: true},
		{ID: "prod-2", SKU: "SKU-2", Name: "Plato", UnitPrice: 10000, Currency: "MXN", WeightGrams: 900, Stock: 1, Active: true},
	}
}

func testLines() []domain.CartLine {
	return []domain.CartLine{
		{ID: "line-1", ProductID: "prod-1", Quantity: 2},
		{ID: "line-2", ProductID: "prod-2", Quantity: 1},
	}
}

func newTestShippingService(t *testing.T, repo *stubRuleRepo, cache *ShippingRuleCache) ShippingService {
	t.Helper()
	return newTestShippingServiceWithProducts(t, repo, &stubProductRepo{}, cache)
}

func newTestShippingServiceWithProducts(t *testing.T, repo *stubRuleRepo, products *stubProductRepo, cache *ShippingRuleCache) ShippingService {
	t.Helper()
	resolver, err := NewCartResolver(products)
	if err != nil {
		t.Fatalf("new cart resolver: %v", err)
	}
	svc, err := NewShippingService(ShippingServiceDeps{
		Rules:  repo,
		Cart:   resolver,
		Cache:  cache,
		Config: shipping.Config{Currency: "MXN"},
	})
	if err != nil {
		t.Fatalf("new shipping service: %v", err)
	}
	return svc
}

func TestShippingServiceQuoteRanksOptions(t *testing.T) {
	repo := &stubRuleRepo{listActiveFn: func(context.Context) ([]domain.ShippingRule, error) {
		return testRules(), nil
	}}
	svc := newTestShippingService(t, repo, nil)

	quote, err := svc.Quote(context.Background(), QuoteShippingCommand{SessionID: "sess-1", Lines: testLines(), Address: testAddress()})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Status != shipping.QuoteStatusOK {
		t.Fatalf("expected ok status, got %s", quote.Status)
	}
	if len(quote.Options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(quote.Options))
	}
	if quote.Options[0].RuleID != "shr_local" || quote.Options[1].RuleID != "shr_std" {
		t.Fatalf("unexpected ranking %s, %s", quote.Options[0].RuleID, quote.Options[1].RuleID)
	}
	if got := len(quote.Options[1].Packages); got != 2 {
		t.Fatalf("expected standard option to split into 2 packages, got %d", got)
	}
	if quote.Subtotal != 60000 {
		t.Fatalf("unexpected subtotal %d", quote.Subtotal)
	}
}

func TestShippingServiceCachesRulesPerSession(t *testing.T) {
	repo := &stubRuleRepo{listActiveFn: func(context.Context) ([]domain.ShippingRule, error) {
		return testRules(), nil
	}}
	svc := newTestShippingService(t, repo, NewShippingRuleCache(0, nil))
	ctx := context.Background()
	cmd := QuoteShippingCommand{SessionID: "sess-1", Lines: testLines(), Address: testAddress()}

	for i := 0; i < 3; i++ {
		if _, err := svc.Quote(ctx, cmd); err != nil {
			t.Fatalf("quote %d: %v", i, err)
		}
	}
	if repo.listActiveCalls != 1 {
		t.Fatalf("expected a single catalog read per session, got %d", repo.listActiveCalls)
	}

	cmd.SessionID = "sess-2"
	if _, err := svc.Quote(ctx, cmd); err != nil {
		t.Fatalf("quote other session: %v", err)
	}
	if repo.listActiveCalls != 2 {
		t.Fatalf("expected another read for a new session, got %d", repo.listActiveCalls)
	}

	svc.EndSession("sess-1")
	cmd.SessionID = "sess-1"
	if _, err := svc.Quote(ctx, cmd); err != nil {
		t.Fatalf("quote after end session: %v", err)
	}
	if repo.listActiveCalls != 3 {
		t.Fatalf("expected re-read after session end, got %d", repo.listActiveCalls)
	}
}

func TestShippingServiceQuoteIncompleteAddress(t *testing.T) {
	repo := &stubRuleRepo{listActiveFn: func(context.Context) ([]domain.ShippingRule, error) {
		return testRules(), nil
	}}
	svc := newTestShippingService(t, repo, nil)

	quote, err := svc.Quote(context.Background(), QuoteShippingCommand{Lines: testLines(), Address: domain.Address{City: "Monterrey"}})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Status != shipping.QuoteStatusAddressIncomplete {
		t.Fatalf("expected address_incomplete, got %s", quote.Status)
	}
	if len(quote.MissingFields) != 2 {
		t.Fatalf("expected state and postal code missing, got %v", quote.MissingFields)
	}
}

func TestShippingServiceQuoteRepositoryFailure(t *testing.T) {
	repo := &stubRuleRepo{listActiveFn: func(context.Context) ([]domain.ShippingRule, error) {
		return nil, repoErr{unavailable: true}
	}}
	svc := newTestShippingService(t, repo, nil)

	_, err := svc.Quote(context.Background(), QuoteShippingCommand{SessionID: "sess-1", Lines: testLines(), Address: testAddress()})
	if !errors.Is(err, ErrShippingUnavailable) {
		t.Fatalf("expected ErrShippingUnavailable, got %v", err)
	}
}

func TestShippingServiceSelectOption(t *testing.T) {
	repo := &stubRuleRepo{listActiveFn: func(context.Context) ([]domain.ShippingRule, error) {
		return testRules(), nil
	}}
	svc := newTestShippingService(t, repo, nil)
	ctx := context.Background()

	selection, err := svc.SelectOption(ctx, SelectShippingCommand{Lines: testLines(), Address: testAddress(), RuleID: "shr_std"})
	if err != nil {
		t.Fatalf("select option: %v", err)
	}
	if len(selection.Items) != 2 || selection.Items[0].UnitPrice != 25000 {
		t.Fatalf("expected catalog snapshot with the selection, got %+v", selection.Items)
	}
	option := selection.Option
	if option.TotalShippingCost != 9900 || option.Currency != "MXN" {
		t.Fatalf("unexpected option %+v", option)
	}

	if _, err := svc.SelectOption(ctx, SelectShippingCommand{Lines: testLines(), Address: testAddress(), RuleID: "shr_jal"}); !errors.Is(err, ErrShippingOptionUnavailable) {
		t.Fatalf("expected ErrShippingOptionUnavailable for out of zone rule, got %v", err)
	}
	if _, err := svc.SelectOption(ctx, SelectShippingCommand{Lines: testLines(), Address: testAddress()}); !errors.Is(err, ErrShippingInvalidInput) {
		t.Fatalf("expected ErrShippingInvalidInput without rule id, got %v", err)
	}
}

func TestShippingServiceQuotePricesFromCatalog(t *testing.T) {
	rules := &stubRuleRepo{listActiveFn: func(context.Context) ([]domain.ShippingRule, error) {
		return testRules(), nil
	}}
	products := &stubProductRepo{}
	svc := newTestShippingServiceWithProducts(t, rules, products, nil)

	quote, err := svc.Quote(context.Background(), QuoteShippingCommand{
		Lines:   []domain.CartLine{{ID: "line-1", ProductID: "prod-1", Quantity: 3}},
		Address: testAddress(),
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Subtotal != 75000 {
		t.Fatalf("expected subtotal from catalog price, got %d", quote.Subtotal)
	}
	if len(products.calls) != 1 || len(products.calls[0]) != 1 || products.calls[0][0] != "prod-1" {
		t.Fatalf("unexpected catalog lookups %v", products.calls)
	}
}

func TestShippingServiceQuoteCatalogErrors(t *testing.T) {
	rules := &stubRuleRepo{listActiveFn: func(context.Context) ([]domain.ShippingRule, error) {
		return testRules(), nil
	}}
	cases := []struct {
		name     string
		products *stubProductRepo
		lines    []domain.CartLine
		want     []error
	}{
		{
			name:     "unknown product",
			products: &stubProductRepo{},
			lines:    []domain.CartLine{{ID: "line-9", ProductID: "prod-9", Quantity: 1}},
			want:     []error{ErrShippingInvalidInput, ErrCartProductUnavailable},
		},
		{
			name:     "zero quantity",
			products: &stubProductRepo{},
			lines:    []domain.CartLine{{ID: "line-1", ProductID: "prod-1"}},
			want:     []error{ErrShippingInvalidInput, ErrCartInvalid},
		},
		{
			name: "catalog down",
			products: &stubProductRepo{getManyFn: func(context.Context, []string) ([]domain.Product, error) {
				return nil, repoErr{unavailable: true}
			}},
			lines: testLines(),
			want:  []error{ErrShippingUnavailable, ErrCartCatalogUnavailable},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestShippingServiceWithProducts(t, rules, tc.products, nil)
			_, err := svc.Quote(context.Background(), QuoteShippingCommand{Lines: tc.lines, Address: testAddress()})
			for _, want := range tc.want {
				if !errors.Is(err, want) {
					t.Fatalf("expected %v in chain, got %v", want, err)
				}
			}
		})
	}
}
