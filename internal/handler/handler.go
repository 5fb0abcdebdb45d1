package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/averix/storefront-checkout/internal/domain/checkout"
	"github.com/averix/storefront-checkout/internal/domain/order"
)

// Handler exposes the checkout and order-lifecycle services over HTTP,
// delegating all business logic to the injected domain services.
type Handler struct {
	checkout *checkout.Service
	orders   *order.Service
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(checkoutSvc *checkout.Service, orderSvc *order.Service) *Handler {
	return &Handler{
		checkout: checkoutSvc,
		orders:   orderSvc,
	}
}

// Register wires the order routes onto the mux. All routes assume the API-key
// middleware has already resolved the acting user into the request context.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/orders", h.listOrders)
	mux.HandleFunc("POST /api/orders", h.placeOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	mux.HandleFunc("PUT /api/orders/{id}", h.updateOrder)
	mux.HandleFunc("POST /api/orders/validate-coupon", h.validateCoupon)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

// errorResponse is the envelope for every non-2xx response.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Success: false, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
