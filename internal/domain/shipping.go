package domain

import "time"

// ServiceLevel classifies a shipping offering and drives option ordering.
type ServiceLevel string

const (
	ServiceLevelExpress       ServiceLevel = "express"
	ServiceLevelLocal         ServiceLevel = "local"
	ServiceLevelNational      ServiceLevel = "national"
	ServiceLevelInternational ServiceLevel = "international"
	ServiceLevelStandard      ServiceLevel = "standard"
)

var serviceLevelPriority = map[ServiceLevel]int{
	ServiceLevelExpress:       10,
	ServiceLevelLocal:         20,
	ServiceLevelNational:      30,
	ServiceLevelInternational: 40,
	ServiceLevelStandard:      50,
}

// Priority returns the ordering weight for the level. Lower sorts first; unknown levels sort with standard.
func (l ServiceLevel) Priority() int {
	if p, ok := serviceLevelPriority[l]; ok {
		return p
	}
	return serviceLevelPriority[ServiceLevelStandard]
}

// Valid reports whether the level is one of the recognised values.
func (l ServiceLevel) Valid() bool {
	_, ok := serviceLevelPriority[l]
	return ok
}

// ShippingRule is a configured shipping offering tied to a zone and a carrier.
type ShippingRule struct {
	ID                    string
	Name                  string
	Description           string
	Carrier               string
	ServiceLevel          ServiceLevel
	Priority              int
	Zone                  ShippingZone
	Pricing               ShippingPricing
	Constraints           PackageConstraints
	FreeShippingThreshold *int64
	AllowsRestricted      bool
	Active                bool
	Default               bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// EffectivePriority returns the explicit priority when set, otherwise the service level priority.
func (r ShippingRule) EffectivePriority() int {
	if r.Priority > 0 {
		return r.Priority
	}
	return r.ServiceLevel.Priority()
}

// ShippingZone lists the geographic filters a rule applies to. Empty lists do not constrain.
type ShippingZone struct {
	Countries   []string
	States      []string
	Cities      []string
	PostalCodes []string
}

// ShippingPricing describes how packages are priced. Amounts are minor currency units.
// PackageCosts, when present, is an explicit cost table indexed by package position.
type ShippingPricing struct {
	Currency             string
	BaseCost             int64
	PackageCosts         []int64
	ExtraWeightThreshold int64
	ExtraWeightStepGrams int64
	ExtraWeightSurcharge int64
	MinDeliveryDays      int
	MaxDeliveryDays      int
}

// PackageConstraints bounds the contents of a single package. Zero means unlimited.
type PackageConstraints struct {
	MaxItemsPerPackage  int
	MaxWeightPerPackage int64
}

// Package is a physical parcel produced by the allocator.
type Package struct {
	Items       []CartItem
	Units       int
	WeightGrams int64
	Cost        int64
}

// Snapshot converts the package into its persisted form.
func (p Package) Snapshot() PackageSnapshot {
	ids := make([]string, 0, len(p.Items))
	for _, item := range p.Items {
		ids = append(ids, item.ID)
	}
	return PackageSnapshot{
		ItemIDs:     ids,
		Units:       p.Units,
		WeightGrams: p.WeightGrams,
		Cost:        p.Cost,
	}
}

// ShippingOption pairs a rule with its computed packages and total cost.
type ShippingOption struct {
	RuleID            string
	Name              string
	Carrier           string
	ServiceLevel      ServiceLevel
	Priority          int
	Currency          string
	Packages          []Package
	TotalShippingCost int64
	Free              bool
	Default           bool
	MinDeliveryDays   int
	MaxDeliveryDays   int
}
