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
	"github.com/storefront/api/internal/platform/idempotency"
	"github.com/storefront/api/internal/services"
)

type stubOrderService struct {
	placeFn func(context.Context, services.PlaceOrderCommand) (services.PlacedOrder, error)
	getFn   func(context.Context, string, string) (services.Order, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.PlacedOrder{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, userID, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID, orderID)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func newOrderRouter(svc services.OrderService, opts ...OrderOption) http.Handler {
	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, svc, opts...).Routes)
	return router
}

func sampleOrder(userID string) services.Order {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return services.Order{
		ID:       "ord_1",
		UserID:   userID,
		Status:   domain.OrderStatusPendingPayment,
		Currency: "MXN",
		Email:    userID + "@example.com",
		Items: []domain.CartItem{{
			ID: "line-1", ProductID: "prod-1", UnitPrice: 25000, Quantity: 2, WeightGrams: 400,
		}},
		Shipping: domain.OrderShipping{
			RuleID:            "shr_local",
			RuleName:          "Local",
			ServiceLevel:      domain.ServiceLevelLocal,
			TotalShippingCost: 4900,
			PackageCount:      1,
			Packages:          []domain.PackageSnapshot{{ItemIDs: []string{"line-1"}, Units: 2, WeightGrams: 800, Cost: 4900}},
		},
		Totals:    domain.OrderTotals{Subtotal: 50000, Shipping: 4900, Total: 54900},
		Payment:   domain.OrderPayment{Provider: "stripe", SessionID: "cs_1", ExpiresAt: created.Add(time.Hour)},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

const placeOrderBody = `{
	"sessionId": "sess-1",
	"currency": "MXN",
	"shippingRuleId": "shr_local",
	"items": [{"id": "line-1", "productId": "prod-1", "unitPrice": 25000, "quantity": 2, "weightGrams": 400, "stock": 3}],
	"address": {"street": "Av. Constitución 100", "city": "Monterrey", "state": "Nuevo León", "postalCode": "64000"}
}`

func TestOrderHandlersPlaceOrder(t *testing.T) {
	var captured services.PlaceOrderCommand
	svc := &stubOrderService{placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
		captured = cmd
		return services.PlacedOrder{Order: sampleOrder(cmd.UserID), RedirectURL: "https://checkout.stripe.com/c/cs_1"}, nil
	}}
	router := newOrderRouter(svc)

	req := withUser(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(placeOrderBody)), "uid-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "uid-1" || captured.SessionID != "sess-1" || captured.ShippingRuleID != "shr_local" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Email != "uid-1@example.com" {
		t.Fatalf("expected identity email fallback, got %q", captured.Email)
	}
	want := domain.CartLine{ID: "line-1", ProductID: "prod-1", Quantity: 2}
	if len(captured.Lines) != 1 || captured.Lines[0] != want {
		t.Fatalf("unexpected lines %+v", captured.Lines)
	}

	var body orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.RedirectURL == "" || body.Order.ID != "ord_1" || body.Order.Status != "pending_payment" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.Order.Totals.Total != 54900 || body.Order.Shipping.PackageCount != 1 {
		t.Fatalf("unexpected totals %+v / %+v", body.Order.Totals, body.Order.Shipping)
	}
	if body.Order.Payment == nil || body.Order.Payment.SessionID != "cs_1" {
		t.Fatalf("expected payment payload, got %+v", body.Order.Payment)
	}
	if body.Order.CreatedAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected createdAt %q", body.Order.CreatedAt)
	}
}

func TestOrderHandlersPlaceOrderErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", fmt.Errorf("%w: currency", services.ErrOrderInvalidInput), http.StatusBadRequest, "invalid_request"},
		{"stock", fmt.Errorf("%w: line-1", services.ErrOrderInsufficientStock), http.StatusConflict, "insufficient_stock"},
		{"option", fmt.Errorf("%w: shr_x", services.ErrShippingOptionUnavailable), http.StatusUnprocessableEntity, "shipping_option_unavailable"},
		{"payment", fmt.Errorf("%w: stripe down", services.ErrOrderPaymentFailed), http.StatusBadGateway, "payment_unavailable"},
		{"unavailable", fmt.Errorf("%w: firestore", services.ErrOrderUnavailable), http.StatusServiceUnavailable, "order_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{placeFn: func(context.Context, services.PlaceOrderCommand) (services.PlacedOrder, error) {
				return services.PlacedOrder{}, tc.err
			}}
			router := newOrderRouter(svc)
			req := withUser(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(placeOrderBody)), "uid-1")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tc.code) {
				t.Fatalf("expected error code %q in %s", tc.code, rr.Body.String())
			}
		})
	}
}

func TestOrderHandlersPlaceOrderRequiresIdentity(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(placeOrderBody))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrder(t *testing.T) {
	svc := &stubOrderService{getFn: func(_ context.Context, userID, orderID string) (services.Order, error) {
		if orderID != "ord_1" || userID != "uid-1" {
			return services.Order{}, services.ErrOrderNotFound
		}
		return sampleOrder(userID), nil
	}}
	router := newOrderRouter(svc)

	req := withUser(httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil), "uid-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Order.ID != "ord_1" || body.RedirectURL != "" {
		t.Fatalf("unexpected body %+v", body)
	}

	req = withUser(httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil), "uid-2")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another user's order, got %d", rr.Code)
	}
}

func TestOrderHandlersPlaceOrderDropsClientPricing(t *testing.T) {
	var captured services.PlaceOrderCommand
	svc := &stubOrderService{placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
		captured = cmd
		return services.PlacedOrder{Order: sampleOrder(cmd.UserID)}, nil
	}}
	router := newOrderRouter(svc)

	body := `{
		"currency": "MXN",
		"shippingRuleId": "shr_local",
		"items": [{"id": "line-1", "productId": "prod-1", "quantity": 2, "unitPrice": 1, "stock": 999999, "weightGrams": 0, "restrictedShipping": false, "currency": "USD"}],
		"address": {"street": "Av. Constitución 100", "city": "Monterrey", "state": "Nuevo León", "postalCode": "64000"}
	}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)), "uid-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	want := []domain.CartLine{{ID: "line-1", ProductID: "prod-1", Quantity: 2}}
	if len(captured.Lines) != 1 || captured.Lines[0] != want[0] {
		t.Fatalf("expected only id, product and quantity to reach the service, got %+v", captured.Lines)
	}
}

func TestOrderHandlersPlaceOrderIdempotent(t *testing.T) {
	var calls int
	svc := &stubOrderService{placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.PlacedOrder, error) {
		calls++
		order := sampleOrder(cmd.UserID)
		order.ID = fmt.Sprintf("ord_%d", calls)
		return services.PlacedOrder{Order: order, RedirectURL: "https://checkout.stripe.com/c/" + order.ID}, nil
	}}
	router := newOrderRouter(svc, WithOrderIdempotency(idempotency.NewMemoryStore(), time.Hour))

	send := func(key string) *httptest.ResponseRecorder {
		req := withUser(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(placeOrderBody)), "uid-1")
		if key != "" {
			req.Header.Set(idempotency.HeaderName, key)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	first := send("checkout-attempt-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", first.Code, first.Body.String())
	}
	second := send("checkout-attempt-1")
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d: %s", second.Code, second.Body.String())
	}
	if calls != 1 {
		t.Fatalf("expected one order placement, got %d", calls)
	}
	if second.Header().Get(idempotency.ReplayHeader) != "true" {
		t.Fatalf("expected replay header on retried request")
	}

	var a, b orderResponse
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if a.Order.ID != "ord_1" || b.Order.ID != a.Order.ID || b.RedirectURL != a.RedirectURL {
		t.Fatalf("expected the first order to be returned, got %q then %q", a.Order.ID, b.Order.ID)
	}

	if rr := send(""); rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "idempotency_key_required") {
		t.Fatalf("expected missing key to be rejected, got %d: %s", rr.Code, rr.Body.String())
	}
	if calls != 1 {
		t.Fatalf("rejected request must not place an order")
	}

	req := withUser(httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil), "uid-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code == http.StatusBadRequest {
		t.Fatalf("reads must not require an idempotency key")
	}
}
