package shipping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/storefront/api/internal/domain"
)

func monterrey() domain.Address {
	return domain.Address{
		Name:       "Ana",
		Street:     "Av. Constitución",
		NumExt:     "100",
		Colonia:    "Centro",
		City:       "Monterrey",
		State:      "Nuevo León",
		PostalCode: "64000",
		Country:    "MX",
	}
}

func ruleIDs(rules []domain.ShippingRule) []string {
	ids := make([]string, 0, len(rules))
	for _, rule := range rules {
		ids = append(ids, rule.ID)
	}
	return ids
}

func TestMatchRulesByZone(t *testing.T) {
	t.Parallel()

	rules := []domain.ShippingRule{
		{ID: "nationwide", Active: true},
		{ID: "nuevo-leon", Active: true, Zone: domain.ShippingZone{States: []string{"nuevo leon"}}},
		{ID: "jalisco", Active: true, Zone: domain.ShippingZone{States: []string{"Jalisco"}}},
		{ID: "mty-city", Active: true, Zone: domain.ShippingZone{Cities: []string{"MONTERREY"}, States: []string{"Nuevo León"}}},
		{ID: "inactive", Active: false},
		{ID: "cp-prefix", Active: true, Zone: domain.ShippingZone{PostalCodes: []string{"64*"}}},
		{ID: "cp-range", Active: true, Zone: domain.ShippingZone{PostalCodes: []string{"44100-44999", "63990-64010"}}},
		{ID: "cp-exact-miss", Active: true, Zone: domain.ShippingZone{PostalCodes: []string{"64001"}}},
		{ID: "other-country", Active: true, Zone: domain.ShippingZone{Countries: []string{"US"}}},
	}

	matched := MatchRules(monterrey(), rules)

	assert.Equal(t, []string{"nationwide", "nuevo-leon", "mty-city", "cp-prefix", "cp-range"}, ruleIDs(matched))
}

func TestMatchRulesEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, MatchRules(monterrey(), nil))
	assert.Empty(t, MatchRules(monterrey(), []domain.ShippingRule{{ID: "off", Active: false}}))
}

func TestMatchRulesIgnoresBrokenPatterns(t *testing.T) {
	t.Parallel()

	rules := []domain.ShippingRule{
		{ID: "broken", Active: true, Zone: domain.ShippingZone{PostalCodes: []string{"6*4", "99-1"}}},
		{ID: "mixed", Active: true, Zone: domain.ShippingZone{PostalCodes: []string{"bad-range", "64000"}}},
	}

	assert.Equal(t, []string{"mixed"}, ruleIDs(MatchRules(monterrey(), rules)))
}

func TestEligibleForItemsRestricted(t *testing.T) {
	t.Parallel()

	rules := []domain.ShippingRule{
		{ID: "ground", Active: true, AllowsRestricted: true},
		{ID: "air", Active: true},
	}
	plain := []domain.CartItem{item("1", 100)}
	restricted := []domain.CartItem{item("1", 100), {ID: "2", Quantity: 1, RestrictedShipping: true}}

	assert.Equal(t, []string{"ground", "air"}, ruleIDs(EligibleForItems(rules, plain)))
	assert.Equal(t, []string{"ground"}, ruleIDs(EligibleForItems(rules, restricted)))
}

func TestParsePostalPattern(t *testing.T) {
	t.Parallel()

	cases := []struct {
		pattern string
		code    string
		match   bool
	}{
		{"64000", "64000", true},
		{" 64 000 ", "64000", true},
		{"64000", "64001", false},
		{"64*", "64850", true},
		{"64*", "65000", false},
		{"64000-64999", "64500", true},
		{"64000-64999", "65000", false},
		{"64000-64999", "6450", false},
		{"sw1*", "SW1A1AA", true},
	}

	for _, tc := range cases {
		pattern, err := ParsePostalPattern(tc.pattern)
		require.NoError(t, err, tc.pattern)
		assert.Equal(t, tc.match, pattern.Match(normalizePostalCode(tc.code)), "%s vs %s", tc.pattern, tc.code)
	}

	for _, bad := range []string{"", "*", "6*4", "100-20", "1000-999", "ab-cd"} {
		_, err := ParsePostalPattern(bad)
		require.Error(t, err, bad)
		assert.True(t, errors.Is(err, ErrInvalidPostalPattern), bad)
	}
}
