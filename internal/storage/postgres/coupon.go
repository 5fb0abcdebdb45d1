package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/averix/storefront-checkout/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, title, discount_type, value, min_order_amount,
		usage_limit_total, usage_limit_per_user, used_count, valid_until, active
		FROM coupons WHERE code = $1 AND active = TRUE`

	getUserUsesSQL = `SELECT uses FROM coupon_redemptions WHERE code = $1 AND user_id = $2`
)

var _ coupon.Store = (*CouponRepository)(nil)

// CouponRepository implements coupon.Store backed by PostgreSQL. It is
// read-only: usage increments happen exclusively inside the checkout commit
// transaction (see CheckoutCommitter).
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindActiveByCode looks up an active coupon by its normalized (uppercase)
// code. Returns coupon.ErrNotFound when no matching active coupon exists.
func (r *CouponRepository) FindActiveByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// UserUses returns the user's redemption count for the coupon; zero when the
// user has never redeemed it.
func (r *CouponRepository) UserUses(ctx context.Context, code, userID string) (int, error) {
	var uses int
	err := r.pool.QueryRow(ctx, getUserUsesSQL, code, userID).Scan(&uses)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("getting redemptions for coupon %q user %q: %w", code, userID, err)
	}
	return uses, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c              coupon.Coupon
		discountType   string
		value          decimal.Decimal
		minOrderAmount *decimal.Decimal
		limitTotal     *int32
		limitPerUser   int32
		usedCount      int32
		validUntil     *time.Time
	)
	err := row.Scan(
		&c.Code, &c.Title, &discountType, &value, &minOrderAmount,
		&limitTotal, &limitPerUser, &usedCount, &validUntil, &c.Active,
	)
	c.Type = coupon.Type(discountType)
	c.Value = value
	c.MinOrderAmount = minOrderAmount
	if limitTotal != nil {
		c.UsageLimitTotal = int(*limitTotal)
	}
	c.UsageLimitPerUser = int(limitPerUser)
	c.UsedCount = int(usedCount)
	c.ValidUntil = validUntil
	return c, err
}
