package shipping

import (
	domain "github.com/storefront/api/internal/domain"
)

// Allocate partitions the cart into packages under the rule's constraints.
//
// Items are walked in input order and appended to the current package until the next one would
// push it past the unit or weight limit, at which point a new package opens. Both limits are hard
// for packages holding several items. An item that alone exceeds a limit still ships, alone in its
// own package. With a one-item limit every cart item gets its own package regardless of quantity.
// An empty cart yields no packages.
func Allocate(rule domain.ShippingRule, items []domain.CartItem) []domain.Package {
	if len(items) == 0 {
		return nil
	}

	limits := rule.Constraints
	packages := make([]domain.Package, 0, len(items))

	if limits.MaxItemsPerPackage == 1 {
		for _, item := range items {
			packages = append(packages, newPackage(item))
		}
		return packages
	}

	for _, item := range items {
		if last := len(packages) - 1; last >= 0 && fits(packages[last], item, limits) {
			packages[last].Items = append(packages[last].Items, item)
			packages[last].Units += item.Units()
			packages[last].WeightGrams += item.Weight()
			continue
		}
		packages = append(packages, newPackage(item))
	}
	return packages
}

func newPackage(item domain.CartItem) domain.Package {
	return domain.Package{
		Items:       []domain.CartItem{item},
		Units:       item.Units(),
		WeightGrams: item.Weight(),
	}
}

func fits(pkg domain.Package, item domain.CartItem, limits domain.PackageConstraints) bool {
	if limits.MaxItemsPerPackage > 0 && pkg.Units+item.Units() > limits.MaxItemsPerPackage {
		return false
	}
	if limits.MaxWeightPerPackage > 0 && pkg.WeightGrams+item.Weight() > limits.MaxWeightPerPackage {
		return false
	}
	return true
}
