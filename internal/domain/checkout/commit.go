package checkout

import (
	"context"
	"fmt"

	"github.com/averix/storefront-checkout/internal/domain/order"
)

// StockDecrement is one conditional stock mutation inside the commit.
type StockDecrement struct {
	ProductID string
	Quantity  int
}

// CouponRedemption records exactly one coupon usage inside the commit. The
// caps are re-checked by the storage layer at commit time; the earlier
// evaluator pass only proves the redemption was plausible at read time.
type CouponRedemption struct {
	Code   string
	UserID string
}

// Commit describes the all-or-nothing multi-entity mutation that concludes a
// checkout: order insert, conditional stock decrements (with sold-count
// increments), cap-checked coupon usage increments, and cart deletion.
type Commit struct {
	Order      *order.Order
	Stock      []StockDecrement
	Coupon     *CouponRedemption
	CartUserID string
}

// Committer applies a Commit atomically. Implementations must guarantee that
// either every mutation is durably applied or none is, and must surface:
//
//   - order.ErrNumberConflict for an order-number uniqueness violation,
//   - *StockConflictError when a conditional decrement finds too little stock,
//   - coupon.ErrUsageExhausted / coupon.ErrAlreadyUsed when a cap re-check
//     fails at commit time.
type Committer interface {
	Commit(ctx context.Context, c Commit) error
}

// StockConflictError indicates a commit-time conditional decrement failed:
// stock changed between the advisory check and the commit.
type StockConflictError struct {
	ProductID string
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("stock changed for product %s during checkout", e.ProductID)
}
