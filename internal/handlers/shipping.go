package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
	"github.com/storefront/api/internal/shipping"
)

const (
	maxShippingRequestBody = 32 * 1024
	maxCartLines           = 200
)

var quoteStatusMessages = map[shipping.QuoteStatus]string{
	shipping.QuoteStatusAddressIncomplete: "address is missing required fields",
	shipping.QuoteStatusNoMatchingRules:   "not eligible for shipping to this address",
}

// CheckoutHandlers exposes the shipping quote endpoint of the checkout flow.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	shipping services.ShippingService
	limiter  quoteLimiter
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithQuoteRateLimit caps quotes per user within the window. Non-positive values disable the limit.
func WithQuoteRateLimit(limit int, window time.Duration, clock func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = newWindowLimiter(limit, window, clock)
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, shippingSvc services.ShippingService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		shipping: shippingSvc,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/shipping-options", h.quote)
}

type shippingOptionsRequest struct {
	SessionID string            `json:"sessionId"`
	Items     []cartLinePayload `json:"items"`
	Address   addressPayload    `json:"address"`
}

type shippingOptionsResponse struct {
	Status          string                  `json:"status"`
	Message         string                  `json:"message,omitempty"`
	MissingFields   []string                `json:"missingFields,omitempty"`
	Subtotal        int64                   `json:"subtotal"`
	DefaultOptionID string                  `json:"defaultOptionId,omitempty"`
	Options         []shippingOptionPayload `json:"options"`
}

func (h *CheckoutHandlers) quote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if h.limiter != nil {
		if ok, retryAfter := h.limiter.Allow(identity.UID); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many shipping quotes, try again shortly", http.StatusTooManyRequests))
			return
		}
	}

	var req shippingOptionsRequest
	if status, err := decodeBody(r, maxShippingRequestBody, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}
	if len(req.Items) > maxCartLines {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "too many cart lines", http.StatusBadRequest))
		return
	}

	quote, err := h.shipping.Quote(ctx, services.QuoteShippingCommand{
		SessionID: checkoutSessionID(r, req.SessionID),
		Lines:     cartLinesFromPayload(req.Items),
		Address:   req.Address.toDomain(),
	})
	if err != nil {
		writeShippingError(ctx, w, err)
		return
	}

	options := make([]shippingOptionPayload, 0, len(quote.Options))
	for _, option := range quote.Options {
		options = append(options, shippingOptionToPayload(option))
	}
	httpx.WriteJSON(w, http.StatusOK, shippingOptionsResponse{
		Status:          string(quote.Status),
		Message:         quoteStatusMessages[quote.Status],
		MissingFields:   quote.MissingFields,
		Subtotal:        quote.Subtotal,
		DefaultOptionID: quote.DefaultOptionID,
		Options:         options,
	})
}

func writeShippingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrShippingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShippingOptionUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_option_unavailable", "selected shipping option is not available for this cart and address", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping rules are temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to compute shipping options", http.StatusInternalServerError))
	}
}
