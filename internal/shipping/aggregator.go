package shipping

import (
	"sort"

	domain "github.com/storefront/api/internal/domain"
)

// Price computes the total shipping cost for the packages and the cost of each package.
//
// An explicit cost table wins: package n costs table[n] and packages past the end reuse the last
// entry. Without a table, one-item packages each carry the base cost; otherwise the base cost is
// charged once and every package heavier than the surcharge threshold adds the extra-weight
// surcharge. Missing or negative amounts price as zero.
func Price(rule domain.ShippingRule, packages []domain.Package) (int64, []int64) {
	if len(packages) == 0 {
		return 0, nil
	}

	pricing := rule.Pricing
	breakdown := make([]int64, len(packages))

	switch {
	case len(pricing.PackageCosts) > 0:
		for i := range packages {
			breakdown[i] = tableCost(pricing.PackageCosts, i)
		}
	case rule.Constraints.MaxItemsPerPackage == 1:
		base := nonNegative(pricing.BaseCost)
		for i := range packages {
			breakdown[i] = base
		}
	default:
		for i, pkg := range packages {
			breakdown[i] = weightSurcharge(pricing, rule.Constraints, pkg)
		}
		breakdown[0] += nonNegative(pricing.BaseCost)
	}

	var total int64
	for _, cost := range breakdown {
		total += cost
	}
	return total, breakdown
}

// FreeShipping reports whether the subtotal waives shipping, either through the store-wide
// threshold or the rule's own. Thresholds of zero or less are disabled.
func FreeShipping(subtotal, threshold int64, rule domain.ShippingRule) bool {
	if threshold > 0 && subtotal >= threshold {
		return true
	}
	if rule.FreeShippingThreshold != nil && *rule.FreeShippingThreshold > 0 && subtotal >= *rule.FreeShippingThreshold {
		return true
	}
	return false
}

// Rank orders options by priority (express, local, national, international, standard), then by
// ascending cost, then by rule ID so the order is stable across requests.
func Rank(options []domain.ShippingOption) {
	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.TotalShippingCost != b.TotalShippingCost {
			return a.TotalShippingCost < b.TotalShippingCost
		}
		return a.RuleID < b.RuleID
	})
}

func tableCost(table []int64, index int) int64 {
	if index >= len(table) {
		index = len(table) - 1
	}
	return nonNegative(table[index])
}

func weightSurcharge(pricing domain.ShippingPricing, limits domain.PackageConstraints, pkg domain.Package) int64 {
	surcharge := nonNegative(pricing.ExtraWeightSurcharge)
	if surcharge == 0 {
		return 0
	}
	threshold := pricing.ExtraWeightThreshold
	if threshold <= 0 {
		threshold = limits.MaxWeightPerPackage
	}
	if threshold <= 0 || pkg.WeightGrams <= threshold {
		return 0
	}
	if pricing.ExtraWeightStepGrams <= 0 {
		return surcharge
	}
	excess := pkg.WeightGrams - threshold
	steps := (excess + pricing.ExtraWeightStepGrams - 1) / pricing.ExtraWeightStepGrams
	return steps * surcharge
}

func nonNegative(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}
