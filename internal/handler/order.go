package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/averix/storefront-checkout/internal/domain/checkout"
	"github.com/averix/storefront-checkout/internal/domain/coupon"
	"github.com/averix/storefront-checkout/internal/domain/order"
)

// orderItemJSON is the wire form of an order line. Monetary values leave the
// service as plain JSON numbers rounded to 2 decimal places.
type orderItemJSON struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	Image     string  `json:"image"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

type orderCouponJSON struct {
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discountAmount"`
}

type orderJSON struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"orderNumber"`
	Items           []orderItemJSON       `json:"items"`
	TotalAmount     float64               `json:"totalAmount"`
	Coupon          *orderCouponJSON      `json:"coupon,omitempty"`
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	Phone           string                `json:"phone"`
	Status          string                `json:"status"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

func toOrderJSON(o *order.Order) orderJSON {
	items := make([]orderItemJSON, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemJSON{
			ProductID: it.ProductID,
			Name:      it.Name,
			Slug:      it.Slug,
			Image:     it.Image,
			Price:     it.Price.Round(2).InexactFloat64(),
			Quantity:  it.Quantity,
		}
	}

	out := orderJSON{
		ID:              o.ID,
		OrderNumber:     o.Number,
		Items:           items,
		TotalAmount:     o.TotalAmount.Round(2).InexactFloat64(),
		ShippingAddress: o.ShippingAddress,
		Phone:           o.Phone,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	if o.AppliedCoupon != nil {
		out.Coupon = &orderCouponJSON{
			Code:           o.AppliedCoupon.Code,
			DiscountAmount: o.AppliedCoupon.DiscountAmount.Round(2).InexactFloat64(),
		}
	}
	return out
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())

	orders, err := h.orders.List(r.Context(), userID)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	items := make([]orderJSON, len(orders))
	for i := range orders {
		items[i] = toOrderJSON(&orders[i])
	}
	writeJSON(w, r, http.StatusOK, struct {
		Success bool        `json:"success"`
		Count   int         `json:"count"`
		Orders  []orderJSON `json:"orders"`
	}{Success: true, Count: len(items), Orders: items})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())

	o, err := h.orders.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, struct {
		Success bool      `json:"success"`
		Order   orderJSON `json:"order"`
	}{Success: true, Order: toOrderJSON(o)})
}

type placeOrderRequest struct {
	ShippingAddress order.ShippingAddress `json:"shippingAddress"`
	Phone           string                `json:"phone"`
	CouponCode      string                `json:"couponCode"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.checkout.Checkout(r.Context(), checkout.Request{
		UserID:          UserID(r.Context()),
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		CouponCode:      req.CouponCode,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("order.number", o.Number),
	)

	writeJSON(w, r, http.StatusCreated, struct {
		Success bool      `json:"success"`
		Message string    `json:"message"`
		Order   orderJSON `json:"order"`
	}{Success: true, Message: "order placed successfully", Order: toOrderJSON(o)})
}

type updateOrderRequest struct {
	Status string `json:"status"`
}

// updateOrder handles user-side status changes. The only transition a user
// may request is cancellation; everything else belongs to the admin side.
func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if order.Status(req.Status) != order.StatusCanceled {
		writeError(w, r, http.StatusBadRequest, "only cancellation is allowed")
		return
	}

	o, err := h.orders.Cancel(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, struct {
		Success bool      `json:"success"`
		Message string    `json:"message"`
		Order   orderJSON `json:"order"`
	}{Success: true, Message: "order canceled", Order: toOrderJSON(o)})
}

type validateCouponRequest struct {
	CouponCode string          `json:"couponCode"`
	CartTotal  decimal.Decimal `json:"cartTotal"`
}

func (h *Handler) validateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}

	preview, err := h.checkout.PreviewCoupon(r.Context(), UserID(r.Context()), req.CouponCode, req.CartTotal)
	if err != nil {
		if msg, ok := couponRejection(err); ok {
			writeJSON(w, r, http.StatusOK, struct {
				Valid   bool   `json:"valid"`
				Message string `json:"message"`
			}{Valid: false, Message: msg})
			return
		}
		h.writeOrderError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, struct {
		Valid          bool    `json:"valid"`
		DiscountAmount float64 `json:"discountAmount"`
		FinalTotal     float64 `json:"finalTotal"`
		Coupon         struct {
			Code  string `json:"code"`
			Title string `json:"title"`
		} `json:"coupon"`
	}{
		Valid:          true,
		DiscountAmount: preview.Applied.DiscountAmount.Round(2).InexactFloat64(),
		FinalTotal:     preview.FinalTotal.InexactFloat64(),
		Coupon: struct {
			Code  string `json:"code"`
			Title string `json:"title"`
		}{Code: preview.Applied.Code, Title: preview.Applied.Title},
	})
}

// couponRejection maps evaluator errors onto user-facing rejection messages
// for the preview endpoint. Anything not listed is an internal failure.
func couponRejection(err error) (string, bool) {
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		return "invalid or expired coupon code", true
	case errors.Is(err, coupon.ErrUsageExhausted):
		return "coupon usage limit reached", true
	case errors.Is(err, coupon.ErrAlreadyUsed):
		return "you have already used this coupon", true
	case errors.Is(err, coupon.ErrMinimumOrderNotMet):
		return "minimum order amount not met", true
	}
	return "", false
}

// writeOrderError maps domain errors onto HTTP statuses. Advisory failures
// (empty cart, out of stock, minimum order) are 400s; ownership misses are
// 404s; commit-time races are 409s.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		outOfStock  *checkout.OutOfStockError
		unavailable *checkout.ProductUnavailableError
		badQuantity *checkout.InvalidQuantityError
		illegal     *order.IllegalTransitionError
		conflict    *checkout.StockConflictError
	)

	switch {
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrShippingRequired),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, coupon.ErrMinimumOrderNotMet),
		errors.As(err, &outOfStock),
		errors.As(err, &unavailable),
		errors.As(err, &badQuantity),
		errors.As(err, &illegal):
		writeError(w, r, http.StatusBadRequest, err.Error())

	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "order not found")

	case errors.As(err, &conflict),
		errors.Is(err, coupon.ErrUsageExhausted),
		errors.Is(err, coupon.ErrAlreadyUsed),
		errors.Is(err, order.ErrNumberConflict):
		writeError(w, r, http.StatusConflict, "checkout conflict, please retry")

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
