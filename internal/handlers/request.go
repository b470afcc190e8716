package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/requestctx"
)

const defaultMaxBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads and unmarshals a JSON body. The returned status is meaningful only when err is set.
func decodeBody(r *http.Request, limit int64, dst any) (int, error) {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return http.StatusRequestEntityTooLarge, err
		}
		return http.StatusBadRequest, err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return http.StatusBadRequest, fmt.Errorf("request body must be valid JSON: %w", err)
	}
	return http.StatusOK, nil
}

// cartLinePayload is the only cart shape accepted from clients. Price, weight and stock sent
// alongside these fields are ignored and read from the catalog instead.
type cartLinePayload struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func cartLinesFromPayload(lines []cartLinePayload) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, domain.CartLine{
			ID:        strings.TrimSpace(line.ID),
			ProductID: strings.TrimSpace(line.ProductID),
			Quantity:  line.Quantity,
		})
	}
	return out
}

type addressPayload struct {
	Name       string `json:"name"`
	Street     string `json:"street"`
	NumExt     string `json:"numExt"`
	NumInt     string `json:"numInt"`
	Colonia    string `json:"colonia"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		Name:       strings.TrimSpace(p.Name),
		Street:     strings.TrimSpace(p.Street),
		NumExt:     strings.TrimSpace(p.NumExt),
		NumInt:     strings.TrimSpace(p.NumInt),
		Colonia:    strings.TrimSpace(p.Colonia),
		City:       strings.TrimSpace(p.City),
		State:      strings.TrimSpace(p.State),
		PostalCode: strings.TrimSpace(p.PostalCode),
		Country:    strings.TrimSpace(p.Country),
		Phone:      strings.TrimSpace(p.Phone),
	}
}

func addressToPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Name:       addr.Name,
		Street:     addr.Street,
		NumExt:     addr.NumExt,
		NumInt:     addr.NumInt,
		Colonia:    addr.Colonia,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
		Phone:      addr.Phone,
	}
}

type packagePayload struct {
	ItemIDs     []string `json:"itemIds"`
	Units       int      `json:"units"`
	WeightGrams int64    `json:"weightGrams"`
	Cost        int64    `json:"cost"`
}

type shippingOptionPayload struct {
	RuleID            string           `json:"ruleId"`
	Name              string           `json:"name"`
	Carrier           string           `json:"carrier"`
	ServiceLevel      string           `json:"serviceLevel"`
	Priority          int              `json:"priority"`
	Currency          string           `json:"currency"`
	TotalShippingCost int64            `json:"totalShippingCost"`
	Free              bool             `json:"free"`
	Default           bool             `json:"default"`
	MinDeliveryDays   int              `json:"minDeliveryDays,omitempty"`
	MaxDeliveryDays   int              `json:"maxDeliveryDays,omitempty"`
	PackageCount      int              `json:"packageCount"`
	Packages          []packagePayload `json:"packages"`
}

func shippingOptionToPayload(option domain.ShippingOption) shippingOptionPayload {
	packages := make([]packagePayload, 0, len(option.Packages))
	for _, pkg := range option.Packages {
		packages = append(packages, packageToPayload(pkg.Snapshot()))
	}
	return shippingOptionPayload{
		RuleID:            option.RuleID,
		Name:              option.Name,
		Carrier:           option.Carrier,
		ServiceLevel:      string(option.ServiceLevel),
		Priority:          option.Priority,
		Currency:          option.Currency,
		TotalShippingCost: option.TotalShippingCost,
		Free:              option.Free,
		Default:           option.Default,
		MinDeliveryDays:   option.MinDeliveryDays,
		MaxDeliveryDays:   option.MaxDeliveryDays,
		PackageCount:      len(packages),
		Packages:          packages,
	}
}

func packageToPayload(pkg domain.PackageSnapshot) packagePayload {
	ids := pkg.ItemIDs
	if ids == nil {
		ids = []string{}
	}
	return packagePayload{ItemIDs: ids, Units: pkg.Units, WeightGrams: pkg.WeightGrams, Cost: pkg.Cost}
}

// checkoutSessionID prefers the explicit body value over the session header.
func checkoutSessionID(r *http.Request, explicit string) string {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed
	}
	return requestctx.SessionID(r.Context())
}
