package api

import (
	"context"
	"math"
	"net/http"
	"slices"

	"action-gateway/middleware/idempotency"
	"action-gateway/middleware/idempotency/application"
	"action-gateway/middleware/idempotency/domain"
)

const actionQuoteSandbox = "quote_sandbox"

type price struct {
	UnitPrice float64
	Currency  string
}

var pricing = map[string]price{
	"SKU-123":     {UnitPrice: 29.99, Currency: "USD"},
	"SKU-456":     {UnitPrice: 49.99, Currency: "USD"},
	"SKU-789":     {UnitPrice: 99.99, Currency: "USD"},
	"SKU-PREMIUM": {UnitPrice: 199.99, Currency: "USD"},
}

type quoteRequest struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type quoteItem struct {
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type quote struct {
	QuoteID  string      `json:"quote_id"`
	Subtotal float64     `json:"subtotal"`
	Currency string      `json:"currency"`
	Items    []quoteItem `json:"items"`
}

func availableSKUs() []string {
	skus := make([]string, 0, len(pricing))
	for k := range pricing {
		skus = append(skus, k)
	}
	slices.Sort(skus)
	return skus
}

func (s *Server) handleQuoteSandbox(w http.ResponseWriter, r *http.Request) {
	key, ok := idempotencyKey(w, r, false)
	if !ok {
		return
	}

	var in quoteRequest
	doc, ok := decodeBody(w, r, s.schemas.quoteRequest, "QuoteRequest", &in)
	if !ok {
		return
	}

	p, known := pricing[in.SKU]
	if !known {
		s.logger.Warn("unknown sku", "type", "quote", "sku", in.SKU)
		writeError(w, http.StatusBadRequest, CodeBadRequest, "SKU "+in.SKU+" not found", map[string]any{
			"sku":           in.SKU,
			"availableSkus": availableSKUs(),
			"message":       "Please use a valid SKU from the available list",
		})
		return
	}

	exec := func(context.Context) (domain.Response, error) {
		q := quote{
			QuoteID:  newTicketID("QUOTE"),
			Subtotal: math.Round(p.UnitPrice*float64(in.Quantity)*100) / 100,
			Currency: p.Currency,
			Items:    []quoteItem{{SKU: in.SKU, Quantity: in.Quantity, UnitPrice: p.UnitPrice}},
		}
		s.logger.Info("quote generated", "type", "quote", "quote_id", q.QuoteID, "sku", in.SKU, "quantity", in.Quantity, "subtotal", q.Subtotal)
		return jsonResponse(http.StatusOK, q, nil)
	}

	if key == "" {
		resp, err := exec(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
			return
		}
		idempotency.WriteResponse(w, resp, false)
		return
	}

	s.runIdempotent(w, r, application.Request{Action: actionQuoteSandbox, Key: key, Payload: doc}, exec)
}
