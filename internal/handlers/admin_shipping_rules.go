package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/platform/pagination"
	"github.com/storefront/api/internal/services"
)

const maxShippingRuleRequestBody = 64 * 1024

// AdminShippingRuleHandlers exposes shipping rule CRUD endpoints for staff.
type AdminShippingRuleHandlers struct {
	authn *auth.Authenticator
	rules services.ShippingRuleService
	roles []string
}

// NewAdminShippingRuleHandlers constructs admin handlers. Roles default to admin and staff.
func NewAdminShippingRuleHandlers(authn *auth.Authenticator, rules services.ShippingRuleService, roles ...string) *AdminShippingRuleHandlers {
	if len(roles) == 0 {
		roles = []string{auth.RoleAdmin, auth.RoleStaff}
	}
	return &AdminShippingRuleHandlers{authn: authn, rules: rules, roles: roles}
}

// Routes registers admin shipping rule endpoints.
func (h *AdminShippingRuleHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(h.roles...))
	}
	r.Route("/shipping-rules", func(rt chi.Router) {
		rt.Get("/", h.listRules)
		rt.Post("/", h.createRule)
		rt.Get("/{ruleID}", h.getRule)
		rt.Put("/{ruleID}", h.updateRule)
		rt.Delete("/{ruleID}", h.deleteRule)
	})
}

type shippingZonePayload struct {
	Countries   []string `json:"countries,omitempty"`
	States      []string `json:"states,omitempty"`
	Cities      []string `json:"cities,omitempty"`
	PostalCodes []string `json:"postalCodes,omitempty"`
}

type shippingPricingPayload struct {
	Currency             string  `json:"currency,omitempty"`
	BaseCost             int64   `json:"baseCost"`
	PackageCosts         []int64 `json:"packageCosts,omitempty"`
	ExtraWeightThreshold int64   `json:"extraWeightThreshold,omitempty"`
	ExtraWeightStepGrams int64   `json:"extraWeightStepGrams,omitempty"`
	ExtraWeightSurcharge int64   `json:"extraWeightSurcharge,omitempty"`
	MinDeliveryDays      int     `json:"minDeliveryDays,omitempty"`
	MaxDeliveryDays      int     `json:"maxDeliveryDays,omitempty"`
}

type packageConstraintsPayload struct {
	MaxItemsPerPackage  int   `json:"maxItemsPerPackage"`
	MaxWeightPerPackage int64 `json:"maxWeightPerPackage"`
}

type shippingRulePayload struct {
	ID                    string                    `json:"id,omitempty"`
	Name                  string                    `json:"name"`
	Description           string                    `json:"description,omitempty"`
	Carrier               string                    `json:"carrier"`
	ServiceLevel          string                    `json:"serviceLevel"`
	Priority              int                       `json:"priority,omitempty"`
	Zone                  shippingZonePayload       `json:"zone"`
	Pricing               shippingPricingPayload    `json:"pricing"`
	Constraints           packageConstraintsPayload `json:"constraints"`
	FreeShippingThreshold *int64                    `json:"freeShippingThreshold,omitempty"`
	AllowsRestricted      bool                      `json:"allowsRestricted"`
	Active                bool                      `json:"active"`
	Default               bool                      `json:"default"`
	CreatedAt             string                    `json:"createdAt,omitempty"`
	UpdatedAt             string                    `json:"updatedAt,omitempty"`
}

type shippingRuleListResponse struct {
	Items         []shippingRulePayload `json:"items"`
	NextPageToken string                `json:"nextPageToken,omitempty"`
}

func (h *AdminShippingRuleHandlers) listRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "shipping rule service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.ShippingRuleListFilter{
		ServiceLevel: domain.ServiceLevel(strings.ToLower(strings.TrimSpace(query.Get("serviceLevel")))),
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}
	if raw := strings.TrimSpace(query.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "active must be a boolean", http.StatusBadRequest))
			return
		}
		filter.ActiveOnly = active
	}

	page, err := h.rules.List(ctx, filter)
	if err != nil {
		writeShippingRuleError(ctx, w, err)
		return
	}

	items := make([]shippingRulePayload, 0, len(page.Items))
	for _, rule := range page.Items {
		items = append(items, shippingRuleToPayload(rule))
	}
	httpx.WriteJSON(w, http.StatusOK, shippingRuleListResponse{Items: items, NextPageToken: page.NextPageToken})
}

func (h *AdminShippingRuleHandlers) getRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "shipping rule service unavailable", http.StatusServiceUnavailable))
		return
	}

	rule, err := h.rules.Get(ctx, chi.URLParam(r, "ruleID"))
	if err != nil {
		writeShippingRuleError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, shippingRuleToPayload(rule))
}

func (h *AdminShippingRuleHandlers) createRule(w http.ResponseWriter, r *http.Request) {
	h.saveRule(w, r, "")
}

func (h *AdminShippingRuleHandlers) updateRule(w http.ResponseWriter, r *http.Request) {
	h.saveRule(w, r, chi.URLParam(r, "ruleID"))
}

func (h *AdminShippingRuleHandlers) saveRule(w http.ResponseWriter, r *http.Request, ruleID string) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "shipping rule service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var payload shippingRulePayload
	if status, err := decodeBody(r, maxShippingRuleRequestBody, &payload); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	cmd := services.UpsertShippingRuleCommand{
		Rule:    payload.toDomain(),
		ActorID: identity.UID,
	}

	var (
		saved  domain.ShippingRule
		err    error
		status = http.StatusOK
	)
	if ruleID == "" {
		saved, err = h.rules.Create(ctx, cmd)
		status = http.StatusCreated
	} else {
		if bodyID := strings.TrimSpace(payload.ID); bodyID != "" && bodyID != ruleID {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "rule id in body does not match path", http.StatusBadRequest))
			return
		}
		cmd.Rule.ID = ruleID
		saved, err = h.rules.Update(ctx, cmd)
	}
	if err != nil {
		writeShippingRuleError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, status, shippingRuleToPayload(saved))
}

func (h *AdminShippingRuleHandlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "shipping rule service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, _ := auth.IdentityFromContext(ctx)
	err := h.rules.Delete(ctx, services.DeleteShippingRuleCommand{
		RuleID:  chi.URLParam(r, "ruleID"),
		ActorID: identity.Actor(),
	})
	if err != nil {
		writeShippingRuleError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (p shippingRulePayload) toDomain() domain.ShippingRule {
	return domain.ShippingRule{
		ID:           strings.TrimSpace(p.ID),
		Name:         p.Name,
		Description:  p.Description,
		Carrier:      p.Carrier,
		ServiceLevel: domain.ServiceLevel(p.ServiceLevel),
		Priority:     p.Priority,
		Zone: domain.ShippingZone{
			Countries:   p.Zone.Countries,
			States:      p.Zone.States,
			Cities:      p.Zone.Cities,
			PostalCodes: p.Zone.PostalCodes,
		},
		Pricing: domain.ShippingPricing{
			Currency:             p.Pricing.Currency,
			BaseCost:             p.Pricing.BaseCost,
			PackageCosts:         p.Pricing.PackageCosts,
			ExtraWeightThreshold: p.Pricing.ExtraWeightThreshold,
			ExtraWeightStepGrams: p.Pricing.ExtraWeightStepGrams,
			ExtraWeightSurcharge: p.Pricing.ExtraWeightSurcharge,
			MinDeliveryDays:      p.Pricing.MinDeliveryDays,
			MaxDeliveryDays:      p.Pricing.MaxDeliveryDays,
		},
		Constraints: domain.PackageConstraints{
			MaxItemsPerPackage:  p.Constraints.MaxItemsPerPackage,
			MaxWeightPerPackage: p.Constraints.MaxWeightPerPackage,
		},
		FreeShippingThreshold: p.FreeShippingThreshold,
		AllowsRestricted:      p.AllowsRestricted,
		Active:                p.Active,
		Default:               p.Default,
	}
}

func shippingRuleToPayload(rule domain.ShippingRule) shippingRulePayload {
	return shippingRulePayload{
		ID:           rule.ID,
		Name:         rule.Name,
		Description:  rule.Description,
		Carrier:      rule.Carrier,
		ServiceLevel: string(rule.ServiceLevel),
		Priority:     rule.Priority,
		Zone: shippingZonePayload{
			Countries:   rule.Zone.Countries,
			States:      rule.Zone.States,
			Cities:      rule.Zone.Cities,
			PostalCodes: rule.Zone.PostalCodes,
		},
		Pricing: shippingPricingPayload{
			Currency:             rule.Pricing.Currency,
			BaseCost:             rule.Pricing.BaseCost,
			PackageCosts:         rule.Pricing.PackageCosts,
			ExtraWeightThreshold: rule.Pricing.ExtraWeightThreshold,
			ExtraWeightStepGrams: rule.Pricing.ExtraWeightStepGrams,
			ExtraWeightSurcharge: rule.Pricing.ExtraWeightSurcharge,
			MinDeliveryDays:      rule.Pricing.MinDeliveryDays,
			MaxDeliveryDays:      rule.Pricing.MaxDeliveryDays,
		},
		Constraints: packageConstraintsPayload{
			MaxItemsPerPackage:  rule.Constraints.MaxItemsPerPackage,
			MaxWeightPerPackage: rule.Constraints.MaxWeightPerPackage,
		},
		FreeShippingThreshold: rule.FreeShippingThreshold,
		AllowsRestricted:      rule.AllowsRestricted,
		Active:                rule.Active,
		Default:               rule.Default,
		CreatedAt:             formatTime(rule.CreatedAt),
		UpdatedAt:             formatTime(rule.UpdatedAt),
	}
}

func writeShippingRuleError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrShippingRuleInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShippingRuleNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_rule_not_found", "shipping rule not found", http.StatusNotFound))
	case errors.Is(err, services.ErrShippingRuleConflict):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_rule_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrShippingRuleUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "shipping rules are temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("shipping_rule_error", "failed to process shipping rule request", http.StatusInternalServerError))
	}
}
