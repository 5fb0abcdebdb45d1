package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/averix/storefront-checkout/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, order_number, user_id, items, total_amount, coupon_code, discount_amount, shipping, phone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`

	selectOrderSQL = `SELECT id, order_number, user_id, items, total_amount, coupon_code, discount_amount, shipping, phone, status, created_at, updated_at
		FROM orders`

	transitionStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND status = ANY($4)
		RETURNING id, order_number, user_id, items, total_amount, coupon_code, discount_amount, shipping, phone, status, created_at, updated_at`
)

// uniqueViolation is the PostgreSQL error code for unique index violations.
const uniqueViolation = "23505"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
// Order items and the shipping address are stored as JSONB snapshots.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order outside the checkout transaction. Checkout
// itself inserts through CheckoutCommitter; this path serves tooling and the
// admin collaborator.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if err := insertOrder(ctx, r.pool, o); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// FindByUserAndID returns a single order scoped by owner. A missing order
// and a foreign order are both order.ErrNotFound.
func (r *OrderRepository) FindByUserAndID(ctx context.Context, userID, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrderSQL+` WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns all of the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrderSQL+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// TransitionStatus conditionally moves the order to the target status. The
// status check and the write are one statement, so concurrent transitions
// cannot both win. When the conditional update matches no row, a follow-up
// read distinguishes "not found" from "illegal transition".
func (r *OrderRepository) TransitionStatus(ctx context.Context, userID, id string, from []order.Status, to order.Status) (*order.Order, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, transitionStatusSQL, id, userID, string(to), fromStrs)
	if err != nil {
		return nil, fmt.Errorf("transitioning order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transitioning order %q: %w", id, err)
	}

	current, err := r.FindByUserAndID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return nil, &order.IllegalTransitionError{From: current.Status, To: to}
}

// insertOrder is shared between the repository and the checkout committer so
// both paths serialize orders identically.
func insertOrder(ctx context.Context, q querier, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}
	shippingJSON, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}

	var couponCode *string
	var discountAmount *decimal.Decimal
	if o.AppliedCoupon != nil {
		couponCode = &o.AppliedCoupon.Code
		discountAmount = &o.AppliedCoupon.DiscountAmount
	}

	_, err = q.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID, itemsJSON, o.TotalAmount,
		couponCode, discountAmount, shippingJSON, o.Phone, string(o.Status),
	)
	if isUniqueViolation(err) {
		return order.ErrNumberConflict
	}
	return err
}

// querier is the subset of pgx operations shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o              order.Order
		itemsJSON      []byte
		shippingJSON   []byte
		couponCode     *string
		discountAmount *decimal.Decimal
		status         string
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &itemsJSON, &o.TotalAmount,
		&couponCode, &discountAmount, &shippingJSON, &o.Phone, &status,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}
	if err := json.Unmarshal(shippingJSON, &o.ShippingAddress); err != nil {
		return o, errors.Wrap(err, "unmarshal shipping address")
	}
	if couponCode != nil && discountAmount != nil {
		o.AppliedCoupon = &order.AppliedCoupon{Code: *couponCode, DiscountAmount: *discountAmount}
	}
	o.Status = order.Status(status)
	return o, nil
}
