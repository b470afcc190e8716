package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/platform/idempotency"
	"github.com/storefront/api/internal/services"
)

const maxOrderRequestBody = 32 * 1024

// OrderHandlers exposes order placement and read endpoints for authenticated users.
type OrderHandlers struct {
	authn          *auth.Authenticator
	orders         services.OrderService
	idempotency    idempotency.Store
	idempotencyTTL time.Duration
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithOrderIdempotency requires an Idempotency-Key on order placement and replays the stored
// response for retried requests.
func WithOrderIdempotency(store idempotency.Store, ttl time.Duration) OrderOption {
	return func(h *OrderHandlers) {
		h.idempotency = store
		h.idempotencyTTL = ttl
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.idempotency != nil {
		r.With(idempotency.Middleware(h.idempotency, idempotency.WithTTL(h.idempotencyTTL))).Post("/", h.placeOrder)
	} else {
		r.Post("/", h.placeOrder)
	}
	r.Get("/{orderID}", h.getOrder)
}

type placeOrderRequest struct {
	SessionID      string            `json:"sessionId"`
	Email          string            `json:"email"`
	Currency       string            `json:"currency"`
	Items          []cartLinePayload `json:"items"`
	Address        addressPayload    `json:"address"`
	ShippingRuleID string            `json:"shippingRuleId"`
	SuccessURL     string            `json:"successUrl"`
	CancelURL      string            `json:"cancelUrl"`
}

type orderItemPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId"`
	SKU         string `json:"sku,omitempty"`
	Name        string `json:"name,omitempty"`
	UnitPrice   int64  `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	WeightGrams int64  `json:"weightGrams"`
}

type orderShippingPayload struct {
	RuleID            string           `json:"ruleId"`
	RuleName          string           `json:"ruleName,omitempty"`
	Carrier           string           `json:"carrier,omitempty"`
	ServiceLevel      string           `json:"serviceLevel,omitempty"`
	TotalShippingCost int64            `json:"totalShippingCost"`
	Free              bool             `json:"free"`
	PackageCount      int              `json:"packageCount"`
	Packages          []packagePayload `json:"packages"`
	MinDeliveryDays   int              `json:"minDeliveryDays,omitempty"`
	MaxDeliveryDays   int              `json:"maxDeliveryDays,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type orderPaymentPayload struct {
	Provider  string `json:"provider,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type orderPayload struct {
	ID              string               `json:"id"`
	Status          string               `json:"status"`
	Currency        string               `json:"currency"`
	Email           string               `json:"email,omitempty"`
	Items           []orderItemPayload   `json:"items"`
	ShippingAddress addressPayload       `json:"shippingAddress"`
	Shipping        orderShippingPayload `json:"shipping"`
	Totals          orderTotalsPayload   `json:"totals"`
	Payment         *orderPaymentPayload `json:"payment,omitempty"`
	CreatedAt       string               `json:"createdAt"`
	UpdatedAt       string               `json:"updatedAt"`
}

type orderResponse struct {
	Order       orderPayload `json:"order"`
	RedirectURL string       `json:"redirectUrl,omitempty"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req placeOrderRequest
	if status, err := decodeBody(r, maxOrderRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	if len(req.Items) > maxCartLines {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "too many cart lines", http.StatusBadRequest))
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = identity.Email
	}

	placed, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID:         identity.UID,
		SessionID:      checkoutSessionID(r, req.SessionID),
		Email:          email,
		Currency:       req.Currency,
		Lines:          cartLinesFromPayload(req.Items),
		Address:        req.Address.toDomain(),
		ShippingRuleID: req.ShippingRuleID,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, orderResponse{
		Order:       buildOrderPayload(placed.Order),
		RedirectURL: placed.RedirectURL,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, identity.UID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			SKU:         item.SKU,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			WeightGrams: item.WeightGrams,
		})
	}

	packages := make([]packagePayload, 0, len(order.Shipping.Packages))
	for _, pkg := range order.Shipping.Packages {
		packages = append(packages, packageToPayload(pkg))
	}

	payload := orderPayload{
		ID:              order.ID,
		Status:          string(order.Status),
		Currency:        order.Currency,
		Email:           order.Email,
		Items:           items,
		ShippingAddress: addressToPayload(order.ShippingAddress),
		Shipping: orderShippingPayload{
			RuleID:            order.Shipping.RuleID,
			RuleName:          order.Shipping.RuleName,
			Carrier:           order.Shipping.Carrier,
			ServiceLevel:      string(order.Shipping.ServiceLevel),
			TotalShippingCost: order.Shipping.TotalShippingCost,
			Free:              order.Shipping.Free,
			PackageCount:      order.Shipping.PackageCount,
			Packages:          packages,
			MinDeliveryDays:   order.Shipping.MinDeliveryDays,
			MaxDeliveryDays:   order.Shipping.MaxDeliveryDays,
		},
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	}
	if order.Payment.SessionID != "" {
		payload.Payment = &orderPaymentPayload{
			Provider:  order.Payment.Provider,
			SessionID: order.Payment.SessionID,
			ExpiresAt: formatTime(order.Payment.ExpiresAt),
		}
	}
	return payload
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_unavailable", "payment session could not be created", http.StatusBadGateway))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "orders are temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrShippingOptionUnavailable),
		errors.Is(err, services.ErrShippingInvalidInput),
		errors.Is(err, services.ErrShippingUnavailable):
		writeShippingError(ctx, w, err)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
