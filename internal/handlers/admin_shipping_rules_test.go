package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/services"
)

type stubShippingRuleService struct {
	listFn   func(context.Context, services.ShippingRuleListFilter) (domain.CursorPage[services.ShippingRule], error)
	getFn    func(context.Context, string) (services.ShippingRule, error)
	createFn func(context.Context, services.UpsertShippingRuleCommand) (services.ShippingRule, error)
	updateFn func(context.Context, services.UpsertShippingRuleCommand) (services.ShippingRule, error)
	deleteFn func(context.Context, services.DeleteShippingRuleCommand) error
}

func (s *stubShippingRuleService) List(ctx context.Context, filter services.ShippingRuleListFilter) (domain.CursorPage[services.ShippingRule], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.ShippingRule]{}, nil
}

func (s *stubShippingRuleService) Get(ctx context.Context, ruleID string) (services.ShippingRule, error) {
	if s.getFn != nil {
		return s.getFn(ctx, ruleID)
	}
	return services.ShippingRule{}, services.ErrShippingRuleNotFound
}

func (s *stubShippingRuleService) Create(ctx context.Context, cmd services.UpsertShippingRuleCommand) (services.ShippingRule, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return cmd.Rule, nil
}

func (s *stubShippingRuleService) Update(ctx context.Context, cmd services.UpsertShippingRuleCommand) (services.ShippingRule, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return cmd.Rule, nil
}

func (s *stubShippingRuleService) Delete(ctx context.Context, cmd services.DeleteShippingRuleCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return nil
}

func newAdminRouter(svc services.ShippingRuleService) http.Handler {
	router := chi.NewRouter()
	router.Route("/admin", NewAdminShippingRuleHandlers(nil, svc).Routes)
	return router
}

const ruleBody = `{
	"name": "Local Monterrey",
	"carrier": "Estafeta",
	"serviceLevel": "local",
	"zone": {"states": ["Nuevo León"], "postalCodes": ["64000-64999"]},
	"pricing": {"currency": "MXN", "baseCost": 4900, "packageCosts": [4900, 3900]},
	"constraints": {"maxItemsPerPackage": 3, "maxWeightPerPackage": 5000},
	"freeShippingThreshold": 150000,
	"active": true
}`

func TestAdminShippingRuleHandlersList(t *testing.T) {
	var captured services.ShippingRuleListFilter
	svc := &stubShippingRuleService{listFn: func(_ context.Context, filter services.ShippingRuleListFilter) (domain.CursorPage[services.ShippingRule], error) {
		captured = filter
		return domain.CursorPage[services.ShippingRule]{
			Items: []services.ShippingRule{
				{ID: "shr_local", Name: "Local", ServiceLevel: domain.ServiceLevelLocal, Active: true},
				{ID: "shr_local_2", Name: "Local 2", ServiceLevel: domain.ServiceLevelLocal, Active: true},
			},
			NextPageToken: "next-token",
		}, nil
	}}
	router := newAdminRouter(svc)

	req := withUser(httptest.NewRequest(http.MethodGet, "/admin/shipping-rules?pageSize=2&serviceLevel=LOCAL&active=true", nil), "staff-1", "staff")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Pagination.PageSize != 2 || captured.ServiceLevel != domain.ServiceLevelLocal || !captured.ActiveOnly {
		t.Fatalf("unexpected filter %+v", captured)
	}
	var body shippingRuleListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Items) != 2 || body.NextPageToken != "next-token" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAdminShippingRuleHandlersListRejectsBadQuery(t *testing.T) {
	router := newAdminRouter(&stubShippingRuleService{})
	for _, target := range []string{"/admin/shipping-rules?active=maybe", "/admin/shipping-rules?pageSize=-1"} {
		req := withUser(httptest.NewRequest(http.MethodGet, target, nil), "staff-1", "staff")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestAdminShippingRuleHandlersCreate(t *testing.T) {
	var captured services.UpsertShippingRuleCommand
	svc := &stubShippingRuleService{createFn: func(_ context.Context, cmd services.UpsertShippingRuleCommand) (services.ShippingRule, error) {
		captured = cmd
		rule := cmd.Rule
		rule.ID = "shr_new"
		rule.CreatedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		rule.UpdatedAt = rule.CreatedAt
		return rule, nil
	}}
	router := newAdminRouter(svc)

	req := withUser(httptest.NewRequest(http.MethodPost, "/admin/shipping-rules", strings.NewReader(ruleBody)), "staff-1", "staff")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "staff-1" {
		t.Fatalf("expected actor staff-1, got %q", captured.ActorID)
	}
	rule := captured.Rule
	if rule.ServiceLevel != domain.ServiceLevelLocal || rule.Constraints.MaxItemsPerPackage != 3 || len(rule.Pricing.PackageCosts) != 2 {
		t.Fatalf("unexpected rule %+v", rule)
	}
	if rule.FreeShippingThreshold == nil || *rule.FreeShippingThreshold != 150000 {
		t.Fatalf("expected free shipping threshold, got %v", rule.FreeShippingThreshold)
	}

	var body shippingRulePayload
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ID != "shr_new" || body.CreatedAt != "2026-03-01T09:00:00Z" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestAdminShippingRuleHandlersCreateInvalid(t *testing.T) {
	svc := &stubShippingRuleService{createFn: func(context.Context, services.UpsertShippingRuleCommand) (services.ShippingRule, error) {
		return services.ShippingRule{}, fmt.Errorf("%w: name is required", services.ErrShippingRuleInvalid)
	}}
	router := newAdminRouter(svc)

	req := withUser(httptest.NewRequest(http.MethodPost, "/admin/shipping-rules", strings.NewReader(ruleBody)), "staff-1", "staff")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "name is required") {
		t.Fatalf("expected validation message, got %s", rr.Body.String())
	}
}

func TestAdminShippingRuleHandlersUpdate(t *testing.T) {
	var captured services.UpsertShippingRuleCommand
	svc := &stubShippingRuleService{updateFn: func(_ context.Context, cmd services.UpsertShippingRuleCommand) (services.ShippingRule, error) {
		captured = cmd
		return cmd.Rule, nil
	}}
	router := newAdminRouter(svc)

	req := withUser(httptest.NewRequest(http.MethodPut, "/admin/shipping-rules/shr_local", strings.NewReader(ruleBody)), "staff-1", "staff")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Rule.ID != "shr_local" {
		t.Fatalf("expected path id to be applied, got %q", captured.Rule.ID)
	}

	mismatch := strings.Replace(ruleBody, `"name"`, `"id": "shr_other", "name"`, 1)
	req = withUser(httptest.NewRequest(http.MethodPut, "/admin/shipping-rules/shr_local", strings.NewReader(mismatch)), "staff-1", "staff")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for id mismatch, got %d", rr.Code)
	}
}

func TestAdminShippingRuleHandlersGetAndDelete(t *testing.T) {
	var deleted services.DeleteShippingRuleCommand
	svc := &stubShippingRuleService{
		getFn: func(_ context.Context, ruleID string) (services.ShippingRule, error) {
			if ruleID == "shr_local" {
				return services.ShippingRule{ID: ruleID, Name: "Local"}, nil
			}
			return services.ShippingRule{}, services.ErrShippingRuleNotFound
		},
		deleteFn: func(_ context.Context, cmd services.DeleteShippingRuleCommand) error {
			if cmd.RuleID != "shr_local" {
				return services.ErrShippingRuleNotFound
			}
			deleted = cmd
			return nil
		},
	}
	router := newAdminRouter(svc)

	cases := []struct {
		method string
		target string
		status int
	}{
		{http.MethodGet, "/admin/shipping-rules/shr_local", http.StatusOK},
		{http.MethodGet, "/admin/shipping-rules/shr_missing", http.StatusNotFound},
		{http.MethodDelete, "/admin/shipping-rules/shr_local", http.StatusNoContent},
		{http.MethodDelete, "/admin/shipping-rules/shr_missing", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := withUser(httptest.NewRequest(tc.method, tc.target, nil), "staff-1", "staff")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.target, tc.status, rr.Code)
		}
	}
	if deleted.ActorID != "staff-1" {
		t.Fatalf("expected delete actor staff-1, got %q", deleted.ActorID)
	}
}
