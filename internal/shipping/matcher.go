package shipping

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/textutil"
)

// MatchRules returns the active rules whose zone accepts the address, preserving input order.
// An empty result means shipping is not available for the address.
func MatchRules(addr domain.Address, rules []domain.ShippingRule) []domain.ShippingRule {
	if len(rules) == 0 {
		return nil
	}
	target := newAddressKey(addr)
	matched := make([]domain.ShippingRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if !zoneMatches(rule.Zone, target) {
			continue
		}
		matched = append(matched, rule)
	}
	return matched
}

// EligibleForItems drops rules that cannot carry restricted items when the cart holds any.
func EligibleForItems(rules []domain.ShippingRule, items []domain.CartItem) []domain.ShippingRule {
	restricted := false
	for _, item := range items {
		if item.RestrictedShipping {
			restricted = true
			break
		}
	}
	if !restricted {
		return rules
	}
	eligible := make([]domain.ShippingRule, 0, len(rules))
	for _, rule := range rules {
		if rule.AllowsRestricted {
			eligible = append(eligible, rule)
		}
	}
	return eligible
}

type addressKey struct {
	country string
	state   string
	city    string
	postal  string
}

func newAddressKey(addr domain.Address) addressKey {
	return addressKey{
		country: textutil.FoldKey(addr.Country),
		state:   textutil.FoldKey(addr.State),
		city:    textutil.FoldKey(addr.City),
		postal:  normalizePostalCode(addr.PostalCode),
	}
}

func zoneMatches(zone domain.ShippingZone, target addressKey) bool {
	if !memberOf(zone.Countries, target.country) {
		return false
	}
	if !memberOf(zone.States, target.state) {
		return false
	}
	if !memberOf(zone.Cities, target.city) {
		return false
	}
	if len(zone.PostalCodes) == 0 {
		return true
	}
	for _, raw := range zone.PostalCodes {
		pattern, err := ParsePostalPattern(raw)
		if err != nil {
			continue
		}
		if pattern.Match(target.postal) {
			return true
		}
	}
	return false
}

func memberOf(values []string, key string) bool {
	allowed := textutil.FoldKeys(values)
	if len(allowed) == 0 {
		return true
	}
	if key == "" {
		return false
	}
	for _, value := range allowed {
		if value == key {
			return true
		}
	}
	return false
}

// ErrInvalidPostalPattern reports a zone postal-code filter that cannot be parsed.
var ErrInvalidPostalPattern = errors.New("shipping: invalid postal pattern")

type postalKind int

const (
	postalExact postalKind = iota
	postalPrefix
	postalRange
)

// PostalPattern is a parsed zone postal-code filter: exact ("64000"), prefix ("64*") or inclusive range ("64000-64999").
type PostalPattern struct {
	kind  postalKind
	value string
	low   int
	high  int
	width int
}

// ParsePostalPattern parses a postal-code filter as stored on a shipping rule.
func ParsePostalPattern(raw string) (PostalPattern, error) {
	value := normalizePostalCode(raw)
	if value == "" {
		return PostalPattern{}, fmt.Errorf("%w: empty", ErrInvalidPostalPattern)
	}

	if strings.HasSuffix(value, "*") {
		prefix := strings.TrimSuffix(value, "*")
		if prefix == "" || strings.Contains(prefix, "*") {
			return PostalPattern{}, fmt.Errorf("%w: %q invalid prefix", ErrInvalidPostalPattern, raw)
		}
		return PostalPattern{kind: postalPrefix, value: prefix}, nil
	}
	if strings.Contains(value, "*") {
		return PostalPattern{}, fmt.Errorf("%w: %q wildcard must be trailing", ErrInvalidPostalPattern, raw)
	}

	if lowRaw, highRaw, ok := strings.Cut(value, "-"); ok {
		if len(lowRaw) != len(highRaw) {
			return PostalPattern{}, fmt.Errorf("%w: %q range bounds differ in length", ErrInvalidPostalPattern, raw)
		}
		low, err := strconv.Atoi(lowRaw)
		if err != nil || !digitsOnly(lowRaw) {
			return PostalPattern{}, fmt.Errorf("%w: %q invalid lower bound", ErrInvalidPostalPattern, raw)
		}
		high, err := strconv.Atoi(highRaw)
		if err != nil || !digitsOnly(highRaw) {
			return PostalPattern{}, fmt.Errorf("%w: %q invalid upper bound", ErrInvalidPostalPattern, raw)
		}
		if low > high {
			return PostalPattern{}, fmt.Errorf("%w: %q lower bound exceeds upper bound", ErrInvalidPostalPattern, raw)
		}
		return PostalPattern{kind: postalRange, low: low, high: high, width: len(lowRaw)}, nil
	}

	return PostalPattern{kind: postalExact, value: value}, nil
}

// Match reports whether the normalised postal code satisfies the pattern.
func (p PostalPattern) Match(code string) bool {
	if code == "" {
		return false
	}
	switch p.kind {
	case postalPrefix:
		return strings.HasPrefix(code, p.value)
	case postalRange:
		if len(code) != p.width || !digitsOnly(code) {
			return false
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			return false
		}
		return n >= p.low && n <= p.high
	default:
		return code == p.value
	}
}

func normalizePostalCode(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}

func digitsOnly(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
