package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/averix/storefront-checkout/internal/domain/cart"
	"github.com/averix/storefront-checkout/internal/domain/coupon"
	"github.com/averix/storefront-checkout/internal/domain/money"
	"github.com/averix/storefront-checkout/internal/domain/order"
	"github.com/averix/storefront-checkout/internal/domain/product"
)

var (
	// ErrEmptyCart is returned when the user has no cart or an empty one.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrShippingRequired is returned when the shipping address or phone is missing.
	ErrShippingRequired = errors.New("shipping address and phone are required")
)

// Request is the checkout input. Prices and totals are never taken from the
// client; everything monetary is computed server-side from the cart and
// catalog.
type Request struct {
	UserID          string
	ShippingAddress order.ShippingAddress
	Phone           string
	CouponCode      string
}

// CouponPreview is the result of the pre-checkout coupon validation call.
type CouponPreview struct {
	Applied    *coupon.Applied
	FinalTotal decimal.Decimal
}

// Service is the checkout orchestrator: it converts a cart into a confirmed
// order. All side effects are funneled through a single atomic Commit so the
// order, stock decrements, coupon counters, and cart deletion move together
// or not at all.
//
// Pricing note: checkout honors the price snapshotted when the item was added
// to the cart and falls back to the live sale price only when the snapshot is
// absent. Stock is re-validated live; price deliberately is not, since
// re-pricing at commit time would charge an amount the user never saw.
type Service struct {
	carts     cart.Repository
	stock     *StockChecker
	coupons   *coupon.Evaluator
	committer Committer
	genNumber order.NumberGenerator
	now       func() time.Time
}

// NewService creates a checkout Service with the required dependencies.
func NewService(
	carts cart.Repository,
	catalog product.Catalog,
	coupons *coupon.Evaluator,
	committer Committer,
	genNumber order.NumberGenerator,
) *Service {
	return &Service{
		carts:     carts,
		stock:     NewStockChecker(catalog),
		coupons:   coupons,
		committer: committer,
		genNumber: genNumber,
		now:       time.Now,
	}
}

// Checkout runs the full checkout flow: cart load, advisory stock check,
// server-side pricing, coupon evaluation, and the atomic commit. An
// order-number collision is retried once with a fresh number; every other
// commit failure aborts with no partial side effects.
func (s *Service) Checkout(ctx context.Context, req Request) (*order.Order, error) {
	if req.Phone == "" || req.ShippingAddress.Street == "" || req.ShippingAddress.City == "" {
		return nil, ErrShippingRequired
	}

	c, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "get cart")
	}
	if len(c.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	products, err := s.stock.Check(ctx, c.Lines)
	if err != nil {
		return nil, err
	}

	lines, subtotal := buildLines(c.Lines, products)

	applied, err := s.applyCoupon(ctx, req, subtotal)
	if err != nil {
		return nil, err
	}
	discount := decimal.Zero
	if applied != nil {
		discount = applied.DiscountAmount
	}

	o := &order.Order{
		ID:              uuid.New().String(),
		Number:          s.genNumber(),
		UserID:          req.UserID,
		Items:           lines,
		TotalAmount:     money.Round(money.FinalTotal(subtotal, discount)),
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		Status:          order.StatusPending,
		CreatedAt:       s.now(),
	}
	if applied != nil {
		o.AppliedCoupon = &order.AppliedCoupon{
			Code:           applied.Code,
			DiscountAmount: money.Round(discount),
		}
	}

	if err := s.commit(ctx, o, c); err != nil {
		return nil, err
	}
	return o, nil
}

// applyCoupon evaluates the optional coupon code. A coupon that became
// invalid between cart-add and checkout must not block the order, so failures
// degrade to "no discount" with a log line. The exception is the minimum-order
// floor, which stays a hard failure: silently charging full price when the
// user expected a discount on a qualifying threshold is worse than rejecting.
func (s *Service) applyCoupon(ctx context.Context, req Request, subtotal decimal.Decimal) (*coupon.Applied, error) {
	if req.CouponCode == "" {
		return nil, nil
	}

	applied, err := s.coupons.Evaluate(ctx, req.CouponCode, subtotal, req.UserID)
	if err != nil {
		if errors.Is(err, coupon.ErrMinimumOrderNotMet) {
			return nil, err
		}
		zctx.From(ctx).Info("coupon not applied at checkout",
			zap.String("code", coupon.NormalizeCode(req.CouponCode)),
			zap.Error(err),
		)
		return nil, nil
	}
	return applied, nil
}

func (s *Service) commit(ctx context.Context, o *order.Order, c *cart.Cart) error {
	cm := Commit{
		Order:      o,
		Stock:      make([]StockDecrement, len(c.Lines)),
		CartUserID: c.UserID,
	}
	for i, line := range c.Lines {
		cm.Stock[i] = StockDecrement{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	if o.AppliedCoupon != nil {
		cm.Coupon = &CouponRedemption{Code: o.AppliedCoupon.Code, UserID: o.UserID}
	}

	err := s.committer.Commit(ctx, cm)
	if errors.Is(err, order.ErrNumberConflict) {
		// Collisions are overwhelmingly unlikely; one retry with a fresh
		// number before surfacing a conflict to the caller.
		o.Number = s.genNumber()
		err = s.committer.Commit(ctx, cm)
	}
	if err != nil {
		return errors.Wrap(err, "commit order")
	}
	return nil
}

// PreviewCoupon validates a coupon for the "apply coupon" UI call. Unlike
// checkout, an invalid coupon here is an explicit rejection, and nothing is
// mutated, so the preview is idempotent.
func (s *Service) PreviewCoupon(ctx context.Context, userID, code string, cartTotal decimal.Decimal) (*CouponPreview, error) {
	applied, err := s.coupons.Evaluate(ctx, code, cartTotal, userID)
	if err != nil {
		return nil, err
	}

	return &CouponPreview{
		Applied:    applied,
		FinalTotal: money.Round(money.FinalTotal(cartTotal, applied.DiscountAmount)),
	}, nil
}

// buildLines converts cart lines into immutable order lines, filling snapshot
// gaps from the live product, and returns the full-precision subtotal.
func buildLines(cartLines []cart.Line, products map[string]product.Product) ([]order.Line, decimal.Decimal) {
	lines := make([]order.Line, len(cartLines))
	subtotal := decimal.Zero

	for i, line := range cartLines {
		p := products[line.ProductID]

		price := p.SalePrice()
		if line.Price != nil {
			price = *line.Price
		}

		name, slug, image := line.Name, line.Slug, line.Image
		if name == "" {
			name = p.Name
		}
		if slug == "" {
			slug = p.Slug
		}
		if image == "" {
			image = p.Image
		}

		lines[i] = order.Line{
			ProductID: line.ProductID,
			Name:      name,
			Slug:      slug,
			Image:     image,
			Price:     price,
			Quantity:  line.Quantity,
		}
		subtotal = subtotal.Add(money.LineTotal(price, line.Quantity))
	}

	return lines, subtotal
}
