package shipping

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/storefront/api/internal/domain"
)

func item(id string, weightGrams int64) domain.CartItem {
	return domain.CartItem{ID: id, ProductID: "prod_" + id, Quantity: 1, UnitPrice: 10000, WeightGrams: weightGrams, Stock: 10}
}

func ruleWithLimits(maxItems int, maxWeight int64) domain.ShippingRule {
	return domain.ShippingRule{
		ID:           "rule",
		Active:       true,
		ServiceLevel: domain.ServiceLevelNational,
		Pricing:      domain.ShippingPricing{BaseCost: 9900},
		Constraints:  domain.PackageConstraints{MaxItemsPerPackage: maxItems, MaxWeightPerPackage: maxWeight},
	}
}

func packageIDs(pkg domain.Package) []string {
	ids := make([]string, 0, len(pkg.Items))
	for _, it := range pkg.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

func TestAllocateSplitsByWeight(t *testing.T) {
	t.Parallel()

	items := []domain.CartItem{item("1", 5000), item("2", 5000), item("3", 5000)}

	packages := Allocate(ruleWithLimits(0, 10000), items)

	require.Len(t, packages, 2)
	assert.Equal(t, []string{"1", "2"}, packageIDs(packages[0]))
	assert.Equal(t, int64(10000), packages[0].WeightGrams)
	assert.Equal(t, []string{"3"}, packageIDs(packages[1]))
	assert.Equal(t, int64(5000), packages[1].WeightGrams)
}

func TestAllocateEmptyCart(t *testing.T) {
	t.Parallel()

	packages := Allocate(ruleWithLimits(3, 10000), nil)
	require.Empty(t, packages)

	total, breakdown := Price(ruleWithLimits(3, 10000), packages)
	assert.Zero(t, total)
	assert.Empty(t, breakdown)
}

func TestAllocateOversizedItemShipsAlone(t *testing.T) {
	t.Parallel()

	packages := Allocate(ruleWithLimits(0, 10000), []domain.CartItem{item("heavy", 50000)})

	require.Len(t, packages, 1)
	assert.Equal(t, []string{"heavy"}, packageIDs(packages[0]))
	assert.Equal(t, int64(50000), packages[0].WeightGrams)
}

func TestAllocateOversizedItemDoesNotShareAPackage(t *testing.T) {
	t.Parallel()

	items := []domain.CartItem{item("a", 2000), item("heavy", 50000), item("b", 2000)}

	packages := Allocate(ruleWithLimits(0, 10000), items)

	require.Len(t, packages, 3)
	assert.Equal(t, []string{"a"}, packageIDs(packages[0]))
	assert.Equal(t, []string{"heavy"}, packageIDs(packages[1]))
	assert.Equal(t, []string{"b"}, packageIDs(packages[2]))
}

func TestAllocateOneItemPerPackage(t *testing.T) {
	t.Parallel()

	items := []domain.CartItem{item("1", 100), item("2", 100), item("3", 100)}
	items[1].Quantity = 4

	packages := Allocate(ruleWithLimits(1, 0), items)

	require.Len(t, packages, len(items))
	for i, pkg := range packages {
		assert.Equal(t, []string{items[i].ID}, packageIDs(pkg))
	}
	assert.Equal(t, 4, packages[1].Units)
	assert.Equal(t, int64(400), packages[1].WeightGrams)
}

func TestAllocateCountsUnitsAgainstItemLimit(t *testing.T) {
	t.Parallel()

	items := []domain.CartItem{item("1", 100), item("2", 100), item("3", 100)}
	items[0].Quantity = 2

	packages := Allocate(ruleWithLimits(3, 0), items)

	require.Len(t, packages, 2)
	assert.Equal(t, []string{"1", "2"}, packageIDs(packages[0]))
	assert.Equal(t, 3, packages[0].Units)
	assert.Equal(t, []string{"3"}, packageIDs(packages[1]))
}

func TestAllocateChecksBothLimits(t *testing.T) {
	t.Parallel()

	items := []domain.CartItem{item("1", 1000), item("2", 1000), item("3", 8500), item("4", 500)}

	packages := Allocate(ruleWithLimits(3, 10000), items)

	require.Len(t, packages, 2)
	assert.Equal(t, []string{"1", "2"}, packageIDs(packages[0]))
	assert.Equal(t, []string{"3", "4"}, packageIDs(packages[1]))
}

func TestAllocateKeepsEveryItemExactlyOnce(t *testing.T) {
	t.Parallel()

	for maxItems := 2; maxItems <= 5; maxItems++ {
		for count := 1; count <= 12; count++ {
			items := make([]domain.CartItem, 0, count)
			for i := 0; i < count; i++ {
				items = append(items, item(fmt.Sprintf("item-%d", i), int64(700*(i%4+1))))
			}

			packages := Allocate(ruleWithLimits(maxItems, 4000), items)

			seen := make([]string, 0, count)
			for _, pkg := range packages {
				require.NotEmpty(t, pkg.Items, "packages are never empty")
				if len(pkg.Items) > 1 {
					assert.LessOrEqual(t, pkg.Units, maxItems)
					assert.LessOrEqual(t, pkg.WeightGrams, int64(4000))
				}
				seen = append(seen, packageIDs(pkg)...)
			}

			want := make([]string, 0, count)
			for _, it := range items {
				want = append(want, it.ID)
			}
			assert.Equal(t, want, seen, "maxItems=%d count=%d", maxItems, count)
		}
	}
}

func TestAllocateUnlimitedRuleUsesSinglePackage(t *testing.T) {
	t.Parallel()

	items := []domain.CartItem{item("1", 90000), item("2", 90000)}

	packages := Allocate(ruleWithLimits(0, 0), items)

	require.Len(t, packages, 1)
	assert.Equal(t, 2, packages[0].Units)
}
