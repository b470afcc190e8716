package shipping

import (
	"strings"

	domain "github.com/storefront/api/internal/domain"
)

// QuoteStatus summarises why a quote did or did not produce options.
type QuoteStatus string

const (
	// QuoteStatusOK indicates at least one option is available.
	QuoteStatusOK QuoteStatus = "ok"
	// QuoteStatusAddressIncomplete indicates required address fields are missing.
	QuoteStatusAddressIncomplete QuoteStatus = "address_incomplete"
	// QuoteStatusNoMatchingRules indicates no configured rule ships to the address.
	QuoteStatusNoMatchingRules QuoteStatus = "no_matching_rules"
)

// Address field names reported in Quote.MissingFields.
const (
	FieldStreet     = "street"
	FieldCity       = "city"
	FieldState      = "state"
	FieldPostalCode = "postalCode"
)

// Config holds the store-wide knobs of the calculator.
type Config struct {
	// FreeShippingThreshold waives shipping when the cart subtotal reaches it. Zero disables.
	FreeShippingThreshold int64
	// Currency applies to rules that do not declare their own.
	Currency string
	// RequireStreet adds the street to the fields an address must carry before quoting.
	RequireStreet bool
}

// QuoteInput is the cart snapshot, address and rule catalog a quote is computed from.
type QuoteInput struct {
	Items   []domain.CartItem
	Address domain.Address
	Rules   []domain.ShippingRule
}

// Quote is the ranked result of a shipping computation.
type Quote struct {
	Status          QuoteStatus
	MissingFields   []string
	Subtotal        int64
	Options         []domain.ShippingOption
	DefaultOptionID string
}

// Find returns the option computed for the given rule.
func (q Quote) Find(ruleID string) (domain.ShippingOption, bool) {
	for _, option := range q.Options {
		if option.RuleID == ruleID {
			return option, true
		}
	}
	return domain.ShippingOption{}, false
}

// Calculator turns a cart, an address and a rule catalog into ranked shipping options.
// It performs no I/O and keeps no state between calls.
type Calculator struct {
	cfg Config
}

// NewCalculator constructs a calculator with the supplied configuration.
func NewCalculator(cfg Config) *Calculator {
	cfg.Currency = strings.ToUpper(strings.TrimSpace(cfg.Currency))
	return &Calculator{cfg: cfg}
}

// Options runs matching, allocation and pricing for every candidate rule and ranks the result.
func (c *Calculator) Options(input QuoteInput) Quote {
	quote := Quote{Subtotal: subtotal(input.Items)}

	if missing := c.missingFields(input.Address); len(missing) > 0 {
		quote.Status = QuoteStatusAddressIncomplete
		quote.MissingFields = missing
		return quote
	}

	rules := EligibleForItems(MatchRules(input.Address, input.Rules), input.Items)
	if len(rules) == 0 {
		quote.Status = QuoteStatusNoMatchingRules
		return quote
	}

	options := make([]domain.ShippingOption, 0, len(rules))
	for _, rule := range rules {
		options = append(options, c.option(rule, input.Items, quote.Subtotal))
	}
	Rank(options)

	quote.Status = QuoteStatusOK
	quote.Options = options
	quote.DefaultOptionID = options[0].RuleID
	for _, option := range options {
		if option.Default {
			quote.DefaultOptionID = option.RuleID
			break
		}
	}
	return quote
}

func (c *Calculator) option(rule domain.ShippingRule, items []domain.CartItem, cartSubtotal int64) domain.ShippingOption {
	packages := Allocate(rule, items)
	total, breakdown := Price(rule, packages)

	free := len(packages) > 0 && FreeShipping(cartSubtotal, c.cfg.FreeShippingThreshold, rule)
	for i := range packages {
		if free {
			packages[i].Cost = 0
			continue
		}
		packages[i].Cost = breakdown[i]
	}
	if free {
		total = 0
	}

	currency := strings.ToUpper(strings.TrimSpace(rule.Pricing.Currency))
	if currency == "" {
		currency = c.cfg.Currency
	}

	return domain.ShippingOption{
		RuleID:            rule.ID,
		Name:              rule.Name,
		Carrier:           rule.Carrier,
		ServiceLevel:      rule.ServiceLevel,
		Priority:          rule.EffectivePriority(),
		Currency:          currency,
		Packages:          packages,
		TotalShippingCost: total,
		Free:              free,
		Default:           rule.Default,
		MinDeliveryDays:   rule.Pricing.MinDeliveryDays,
		MaxDeliveryDays:   rule.Pricing.MaxDeliveryDays,
	}
}

func (c *Calculator) missingFields(addr domain.Address) []string {
	var missing []string
	if c.cfg.RequireStreet && strings.TrimSpace(addr.Street) == "" {
		missing = append(missing, FieldStreet)
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, FieldCity)
	}
	if strings.TrimSpace(addr.State) == "" {
		missing = append(missing, FieldState)
	}
	if strings.TrimSpace(addr.PostalCode) == "" {
		missing = append(missing, FieldPostalCode)
	}
	return missing
}

func subtotal(items []domain.CartItem) int64 {
	var sum int64
	for _, item := range items {
		sum += item.Subtotal()
	}
	return sum
}
