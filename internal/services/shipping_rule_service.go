package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/repositories"
	"github.com/storefront/api/internal/shipping"
)

const (
	shippingRuleIDPrefix     = "shr_"
	shippingRuleEventChanged = "shipping_rules.changed"

	maxRuleNameLength        = 120
	maxRuleDescriptionLength = 2000
)

var (
	// ErrShippingRuleInvalid signals the submitted rule failed validation.
	ErrShippingRuleInvalid = errors.New("shipping rule: invalid input")
	// ErrShippingRuleNotFound indicates the rule could not be located.
	ErrShippingRuleNotFound = errors.New("shipping rule: not found")
	// ErrShippingRuleConflict indicates the rule ID is already taken.
	ErrShippingRuleConflict = errors.New("shipping rule: conflict")
	// ErrShippingRuleUnavailable indicates the rule store is unreachable.
	ErrShippingRuleUnavailable = errors.New("shipping rule: repository unavailable")
)

// ShippingRuleServiceDeps bundles collaborators required to construct the rule service.
type ShippingRuleServiceDeps struct {
	Rules       repositories.ShippingRuleRepository
	Cache       *ShippingRuleCache
	Events      ShippingRuleEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type shippingRuleService struct {
	rules    repositories.ShippingRuleRepository
	cache    *ShippingRuleCache
	events   ShippingRuleEventPublisher
	clock    func() time.Time
	newID    func() string
	sanitize *bluemonday.Policy
	logger   func(context.Context, string, map[string]any)
}

// NewShippingRuleService wires dependencies into a concrete ShippingRuleService implementation.
func NewShippingRuleService(deps ShippingRuleServiceDeps) (ShippingRuleService, error) {
	if deps.Rules == nil {
		return nil, errors.New("shipping rule service: rule repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &shippingRuleService{
		rules:  deps.Rules,
		cache:  deps.Cache,
		events: deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: bluemonday.StrictPolicy(),
		logger:   logger,
	}, nil
}

func (s *shippingRuleService) List(ctx context.Context, filter ShippingRuleListFilter) (domain.CursorPage[ShippingRule], error) {
	if filter.ServiceLevel != "" && !filter.ServiceLevel.Valid() {
		return domain.CursorPage[ShippingRule]{}, fmt.Errorf("%w: unknown service level %q", ErrShippingRuleInvalid, filter.ServiceLevel)
	}
	page, err := s.rules.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[ShippingRule]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *shippingRuleService) Get(ctx context.Context, ruleID string) (ShippingRule, error) {
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" {
		return ShippingRule{}, fmt.Errorf("%w: rule id is required", ErrShippingRuleInvalid)
	}
	rule, err := s.rules.Get(ctx, ruleID)
	if err != nil {
		return ShippingRule{}, s.mapRepositoryError(err)
	}
	return rule, nil
}

func (s *shippingRuleService) Create(ctx context.Context, cmd UpsertShippingRuleCommand) (ShippingRule, error) {
	rule, err := s.normalize(cmd.Rule)
	if err != nil {
		return ShippingRule{}, err
	}

	now := s.clock()
	rule.ID = shippingRuleIDPrefix + s.newID()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.rules.Insert(ctx, rule); err != nil {
		return ShippingRule{}, s.mapRepositoryError(err)
	}

	s.changed(ctx, "created", rule.ID, cmd.ActorID, now)
	return rule, nil
}

func (s *shippingRuleService) Update(ctx context.Context, cmd UpsertShippingRuleCommand) (ShippingRule, error) {
	ruleID := strings.TrimSpace(cmd.Rule.ID)
	if ruleID == "" {
		return ShippingRule{}, fmt.Errorf("%w: rule id is required", ErrShippingRuleInvalid)
	}
	rule, err := s.normalize(cmd.Rule)
	if err != nil {
		return ShippingRule{}, err
	}

	existing, err := s.rules.Get(ctx, ruleID)
	if err != nil {
		return ShippingRule{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	rule.ID = ruleID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = now

	if err := s.rules.Update(ctx, rule); err != nil {
		return ShippingRule{}, s.mapRepositoryError(err)
	}

	s.changed(ctx, "updated", rule.ID, cmd.ActorID, now)
	return rule, nil
}

func (s *shippingRuleService) Delete(ctx context.Context, cmd DeleteShippingRuleCommand) error {
	ruleID := strings.TrimSpace(cmd.RuleID)
	if ruleID == "" {
		return fmt.Errorf("%w: rule id is required", ErrShippingRuleInvalid)
	}
	if err := s.rules.Delete(ctx, ruleID); err != nil {
		return s.mapRepositoryError(err)
	}
	s.changed(ctx, "deleted", ruleID, cmd.ActorID, s.clock())
	return nil
}

// normalize sanitises text fields and validates the rule. The returned rule is a copy.
func (s *shippingRuleService) normalize(rule ShippingRule) (ShippingRule, error) {
	rule.Name = s.cleanText(rule.Name)
	rule.Description = s.cleanText(rule.Description)
	rule.Carrier = s.cleanText(rule.Carrier)
	rule.ServiceLevel = domain.ServiceLevel(strings.ToLower(strings.TrimSpace(string(rule.ServiceLevel))))
	rule.Pricing.Currency = strings.ToUpper(strings.TrimSpace(rule.Pricing.Currency))
	rule.Zone = domain.ShippingZone{
		Countries:   cleanList(rule.Zone.Countries),
		States:      cleanList(rule.Zone.States),
		Cities:      cleanList(rule.Zone.Cities),
		PostalCodes: cleanList(rule.Zone.PostalCodes),
	}
	if rule.Pricing.PackageCosts != nil {
		rule.Pricing.PackageCosts = append([]int64(nil), rule.Pricing.PackageCosts...)
	}
	if rule.FreeShippingThreshold != nil {
		threshold := *rule.FreeShippingThreshold
		rule.FreeShippingThreshold = &threshold
	}

	var problems []string
	switch {
	case rule.Name == "":
		problems = append(problems, "name is required")
	case len([]rune(rule.Name)) > maxRuleNameLength:
		problems = append(problems, fmt.Sprintf("name must be at most %d characters", maxRuleNameLength))
	}
	if len([]rune(rule.Description)) > maxRuleDescriptionLength {
		problems = append(problems, fmt.Sprintf("description must be at most %d characters", maxRuleDescriptionLength))
	}
	if rule.Carrier == "" {
		problems = append(problems, "carrier is required")
	}
	if !rule.ServiceLevel.Valid() {
		problems = append(problems, fmt.Sprintf("service level %q is not supported", rule.ServiceLevel))
	}
	if rule.Priority < 0 {
		problems = append(problems, "priority must not be negative")
	}
	if rule.Pricing.Currency != "" && len(rule.Pricing.Currency) != 3 {
		problems = append(problems, "currency must be a three letter code")
	}
	problems = append(problems, pricingProblems(rule)...)
	for _, raw := range rule.Zone.PostalCodes {
		if _, err := shipping.ParsePostalPattern(raw); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return ShippingRule{}, fmt.Errorf("%w: %s", ErrShippingRuleInvalid, strings.Join(problems, "; "))
	}
	return rule, nil
}

func pricingProblems(rule ShippingRule) []string {
	var problems []string
	pricing := rule.Pricing
	if pricing.BaseCost < 0 {
		problems = append(problems, "base cost must not be negative")
	}
	for i, cost := range pricing.PackageCosts {
		if cost < 0 {
			problems = append(problems, fmt.Sprintf("package cost %d must not be negative", i+1))
		}
	}
	if pricing.ExtraWeightThreshold < 0 || pricing.ExtraWeightStepGrams < 0 || pricing.ExtraWeightSurcharge < 0 {
		problems = append(problems, "extra weight settings must not be negative")
	}
	if pricing.MinDeliveryDays < 0 || pricing.MaxDeliveryDays < 0 {
		problems = append(problems, "delivery days must not be negative")
	}
	if pricing.MaxDeliveryDays > 0 && pricing.MinDeliveryDays > pricing.MaxDeliveryDays {
		problems = append(problems, "min delivery days must not exceed max delivery days")
	}
	if rule.Constraints.MaxItemsPerPackage < 0 || rule.Constraints.MaxWeightPerPackage < 0 {
		problems = append(problems, "package limits must not be negative")
	}
	if rule.FreeShippingThreshold != nil && *rule.FreeShippingThreshold < 0 {
		problems = append(problems, "free shipping threshold must not be negative")
	}
	return problems
}

// cleanText strips markup. The policy escapes entities, which are decoded back since values are not HTML.
func (s *shippingRuleService) cleanText(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitize.Sanitize(value)))
}

func cleanList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *shippingRuleService) changed(ctx context.Context, action, ruleID, actorID string, at time.Time) {
	s.cache.Invalidate()

	s.logger(ctx, "shipping_rules.changed", map[string]any{
		"action": action,
		"ruleId": ruleID,
		"actor":  actorID,
	})

	if s.events == nil {
		return
	}
	event := ShippingRuleEvent{
		Type:       shippingRuleEventChanged,
		Action:     action,
		RuleID:     ruleID,
		ActorID:    strings.TrimSpace(actorID),
		OccurredAt: at,
	}
	if err := s.events.PublishShippingRuleEvent(ctx, event); err != nil {
		s.logger(ctx, "shipping_rules.event.publish.failed", map[string]any{
			"action": action,
			"ruleId": ruleID,
			"error":  err.Error(),
		})
	}
}

func (s *shippingRuleService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrShippingRuleNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrShippingRuleConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrShippingRuleUnavailable, err)
		}
	}

	return err
}
