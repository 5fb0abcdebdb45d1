package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/averix/storefront-checkout/internal/domain/checkout"
	"github.com/averix/storefront-checkout/internal/domain/coupon"
)

const (
	decrementStockSQL = `UPDATE products
		SET stock = stock - $2, sold_count = sold_count + $2
		WHERE id = $1 AND stock >= $2`

	incrementCouponUsageSQL = `UPDATE coupons
		SET used_count = used_count + 1
		WHERE code = $1 AND (usage_limit_total IS NULL OR used_count < usage_limit_total)`

	upsertRedemptionSQL = `INSERT INTO coupon_redemptions (code, user_id, uses)
		VALUES ($1, $2, 1)
		ON CONFLICT (code, user_id) DO UPDATE
		SET uses = coupon_redemptions.uses + 1
		WHERE coupon_redemptions.uses < (SELECT usage_limit_per_user FROM coupons WHERE code = $1)`
)

var _ checkout.Committer = (*CheckoutCommitter)(nil)

// CheckoutCommitter applies a checkout commit as a single transaction. Every
// conditional write re-validates its guard against current row state, so a
// decision made on a stale read loses here instead of overselling.
type CheckoutCommitter struct {
	pool *pgxpool.Pool
}

// NewCheckoutCommitter returns a CheckoutCommitter that uses the given pool.
func NewCheckoutCommitter(pool *pgxpool.Pool) *CheckoutCommitter {
	return &CheckoutCommitter{pool: pool}
}

// Commit inserts the order, decrements stock per line, counts coupon usage
// and drops the cart, all or nothing. Failed guards surface as the sentinel
// errors documented on checkout.Committer and roll back the transaction.
func (c *CheckoutCommitter) Commit(ctx context.Context, commit checkout.Commit) error {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning checkout transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertOrder(ctx, tx, commit.Order); err != nil {
		return err
	}

	for _, dec := range commit.Stock {
		tag, err := tx.Exec(ctx, decrementStockSQL, dec.ProductID, dec.Quantity)
		if err != nil {
			return fmt.Errorf("decrementing stock for product %q: %w", dec.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return &checkout.StockConflictError{ProductID: dec.ProductID}
		}
	}

	if commit.Coupon != nil {
		tag, err := tx.Exec(ctx, incrementCouponUsageSQL, commit.Coupon.Code)
		if err != nil {
			return fmt.Errorf("incrementing usage for coupon %q: %w", commit.Coupon.Code, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrUsageExhausted
		}

		tag, err = tx.Exec(ctx, upsertRedemptionSQL, commit.Coupon.Code, commit.Coupon.UserID)
		if err != nil {
			return fmt.Errorf("recording redemption for coupon %q: %w", commit.Coupon.Code, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrAlreadyUsed
		}
	}

	if _, err := tx.Exec(ctx, deleteCartSQL, commit.CartUserID); err != nil {
		return fmt.Errorf("deleting cart for user %q: %w", commit.CartUserID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing checkout transaction: %w", err)
	}
	return nil
}
