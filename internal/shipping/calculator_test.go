package shipping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/storefront/api/internal/domain"
)

func catalog() []domain.ShippingRule {
	return []domain.ShippingRule{
		{
			ID:           "std",
			Name:         "Estándar",
			Carrier:      "Estafeta",
			ServiceLevel: domain.ServiceLevelStandard,
			Active:       true,
			Pricing:      domain.ShippingPricing{BaseCost: 9900, MinDeliveryDays: 3, MaxDeliveryDays: 7},
			Constraints:  domain.PackageConstraints{MaxItemsPerPackage: 5, MaxWeightPerPackage: 10000},
		},
		{
			ID:           "express",
			Name:         "Express",
			Carrier:      "DHL",
			ServiceLevel: domain.ServiceLevelExpress,
			Active:       true,
			Pricing:      domain.ShippingPricing{BaseCost: 25000, Currency: "mxn", MinDeliveryDays: 1, MaxDeliveryDays: 2},
			Constraints:  domain.PackageConstraints{MaxItemsPerPackage: 1},
		},
		{
			ID:           "local",
			Name:         "Local",
			Carrier:      "Mensajería",
			ServiceLevel: domain.ServiceLevelLocal,
			Active:       true,
			Default:      true,
			Zone:         domain.ShippingZone{States: []string{"Nuevo León"}},
			Pricing:      domain.ShippingPricing{PackageCosts: []int64{4900}},
		},
		{
			ID:           "jalisco",
			ServiceLevel: domain.ServiceLevelLocal,
			Active:       true,
			Zone:         domain.ShippingZone{States: []string{"Jalisco"}},
			Pricing:      domain.ShippingPricing{BaseCost: 100},
		},
	}
}

func TestCalculatorRanksMatchingOptions(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Config{Currency: "MXN"})
	items := []domain.CartItem{item("1", 5000), item("2", 5000), item("3", 5000)}

	quote := calc.Options(QuoteInput{Items: items, Address: monterrey(), Rules: catalog()})

	require.Equal(t, QuoteStatusOK, quote.Status)
	require.Len(t, quote.Options, 3)
	assert.Equal(t, int64(30000), quote.Subtotal)
	assert.Equal(t, "local", quote.DefaultOptionID)

	express := quote.Options[0]
	assert.Equal(t, "express", express.RuleID)
	assert.Len(t, express.Packages, 3)
	assert.Equal(t, int64(75000), express.TotalShippingCost)
	assert.Equal(t, "MXN", express.Currency)

	local := quote.Options[1]
	assert.Equal(t, "local", local.RuleID)
	assert.Len(t, local.Packages, 1)
	assert.Equal(t, int64(4900), local.TotalShippingCost)

	std := quote.Options[2]
	assert.Equal(t, "std", std.RuleID)
	require.Len(t, std.Packages, 2)
	assert.Equal(t, int64(9900), std.TotalShippingCost)
	assert.Equal(t, int64(9900), std.Packages[0].Cost)
	assert.Equal(t, int64(0), std.Packages[1].Cost)
	assert.Equal(t, 3, std.MinDeliveryDays)
	assert.Equal(t, "MXN", std.Currency)
}

func TestCalculatorFreeShippingZeroesEveryOption(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Config{FreeShippingThreshold: 30000})
	items := []domain.CartItem{item("1", 5000), item("2", 5000), item("3", 5000)}

	quote := calc.Options(QuoteInput{Items: items, Address: monterrey(), Rules: catalog()})

	require.Equal(t, QuoteStatusOK, quote.Status)
	require.NotEmpty(t, quote.Options)
	for _, option := range quote.Options {
		assert.Zero(t, option.TotalShippingCost, option.RuleID)
		assert.True(t, option.Free, option.RuleID)
		for _, pkg := range option.Packages {
			assert.Zero(t, pkg.Cost)
		}
	}
}

func TestCalculatorBelowFreeShippingThreshold(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Config{FreeShippingThreshold: 30001})
	items := []domain.CartItem{item("1", 5000), item("2", 5000), item("3", 5000)}

	quote := calc.Options(QuoteInput{Items: items, Address: monterrey(), Rules: catalog()})

	for _, option := range quote.Options {
		assert.False(t, option.Free)
		assert.Positive(t, option.TotalShippingCost)
	}
}

func TestCalculatorEmptyCart(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Config{})

	quote := calc.Options(QuoteInput{Address: monterrey(), Rules: catalog()})

	require.Equal(t, QuoteStatusOK, quote.Status)
	for _, option := range quote.Options {
		assert.Empty(t, option.Packages)
		assert.Zero(t, option.TotalShippingCost)
	}
}

func TestCalculatorIncompleteAddress(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Config{RequireStreet: true})
	addr := domain.Address{City: "Monterrey"}

	quote := calc.Options(QuoteInput{Items: []domain.CartItem{item("1", 100)}, Address: addr, Rules: catalog()})

	assert.Equal(t, QuoteStatusAddressIncomplete, quote.Status)
	assert.Equal(t, []string{FieldStreet, FieldState, FieldPostalCode}, quote.MissingFields)
	assert.Empty(t, quote.Options)
}

func TestCalculatorNoMatchingRules(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Config{})
	rules := []domain.ShippingRule{{ID: "jalisco", Active: true, Zone: domain.ShippingZone{States: []string{"Jalisco"}}}}

	quote := calc.Options(QuoteInput{Items: []domain.CartItem{item("1", 100)}, Address: monterrey(), Rules: rules})

	assert.Equal(t, QuoteStatusNoMatchingRules, quote.Status)
	assert.Empty(t, quote.Options)
	assert.Empty(t, quote.DefaultOptionID)
}

func TestCalculatorRestrictedItems(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Config{})
	rules := catalog()
	rules[0].AllowsRestricted = true
	items := []domain.CartItem{item("1", 100), {ID: "2", Quantity: 1, WeightGrams: 200, RestrictedShipping: true}}

	quote := calc.Options(QuoteInput{Items: items, Address: monterrey(), Rules: rules})

	require.Len(t, quote.Options, 1)
	assert.Equal(t, "std", quote.Options[0].RuleID)
	assert.Equal(t, "std", quote.DefaultOptionID)
}

func TestQuoteFind(t *testing.T) {
	t.Parallel()

	calc := NewCalculator(Config{})
	quote := calc.Options(QuoteInput{Items: []domain.CartItem{item("1", 100)}, Address: monterrey(), Rules: catalog()})

	option, ok := quote.Find("std")
	require.True(t, ok)
	assert.Equal(t, "Estafeta", option.Carrier)

	_, ok = quote.Find("jalisco")
	assert.False(t, ok)
}
