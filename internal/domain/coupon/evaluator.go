package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/averix/storefront-checkout/internal/domain/money"
)

// Applied is the server-computed result of a successful coupon evaluation.
type Applied struct {
	Code           string
	Title          string
	DiscountAmount decimal.Decimal
}

// Evaluator validates a coupon code against an order subtotal and the
// requesting user's redemption history, producing the discount to apply.
//
// Evaluation is side-effect free: the same call backs both the preview
// endpoint and checkout, so it never touches usage counters. Counters are
// incremented exactly once, commit-scoped, by the checkout transaction,
// which re-validates both caps under the same atomicity boundary.
type Evaluator struct {
	store Store
	now   func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store, now: time.Now}
}

// Evaluate runs the ordered coupon checks; the first failure wins.
//
//  1. ErrNotFound: unknown code, inactive, or past validUntil.
//  2. ErrUsageExhausted: global cap reached.
//  3. ErrAlreadyUsed: requesting user at the per-user cap.
//  4. ErrMinimumOrderNotMet: subtotal below the coupon floor.
//
// On success the discount is computed from the coupon type and value.
func (e *Evaluator) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal, userID string) (*Applied, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, ErrNotFound
	}

	c, err := e.store.FindActiveByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if c.ValidUntil != nil && !e.now().Before(*c.ValidUntil) {
		return nil, ErrNotFound
	}

	if c.UsageLimitTotal > 0 && c.UsedCount >= c.UsageLimitTotal {
		return nil, ErrUsageExhausted
	}

	uses, err := e.store.UserUses(ctx, normalized, userID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup coupon redemptions")
	}
	if uses >= c.UsageLimitPerUser {
		return nil, ErrAlreadyUsed
	}

	if c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount) {
		return nil, ErrMinimumOrderNotMet
	}

	return &Applied{
		Code:           c.Code,
		Title:          c.Title,
		DiscountAmount: e.discount(c, subtotal),
	}, nil
}

func (e *Evaluator) discount(c *Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.Type {
	case TypePercent:
		return money.PercentDiscount(subtotal, c.Value)
	case TypeFixed:
		return money.FixedDiscount(subtotal, c.Value)
	default:
		return decimal.Zero
	}
}
