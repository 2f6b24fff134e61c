package api

import (
	"net/http"
	"regexp"
	"slices"
	"time"
)

var orderIDPattern = regexp.MustCompile(`^[A-Z0-9_-]{6,32}$`)

type orderStatus struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// mockOrders devolve os pedidos de demonstração relativos a now.
func mockOrders(now time.Time) map[string]orderStatus {
	return map[string]orderStatus{
		"ORD-ABC123": {OrderID: "ORD-ABC123", Status: "shipped", UpdatedAt: now.UTC()},
		"ORD-DEF456": {OrderID: "ORD-DEF456", Status: "delivered", UpdatedAt: now.Add(-24 * time.Hour).UTC()},
		"ORD-GHI789": {OrderID: "ORD-GHI789", Status: "pending", UpdatedAt: now.UTC()},
	}
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("order_id")

	if !orderIDPattern.MatchString(id) {
		s.logger.Warn("invalid order id", "type", "order", "order_id", id)
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid order ID format", map[string]any{
			"orderId": id,
			"pattern": orderIDPattern.String(),
			"message": "Order ID must be 6-32 characters, containing only uppercase letters, numbers, hyphens, and underscores",
		})
		return
	}

	orders := mockOrders(s.now())
	order, ok := orders[id]
	if !ok {
		ids := make([]string, 0, len(orders))
		for k := range orders {
			ids = append(ids, k)
		}
		slices.Sort(ids)
		writeError(w, http.StatusNotFound, CodeNotFound, "Order "+id+" not found", map[string]any{
			"orderId":         id,
			"availableOrders": ids,
		})
		return
	}

	s.logger.Info("order status", "type", "order", "order_id", id, "request_id", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusOK, order)
}
