package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when an order does not exist or is not owned by
	// the requesting user. The two cases are deliberately indistinguishable so
	// order existence never leaks across users.
	ErrNotFound = errors.New("order not found")
	// ErrNumberConflict is returned when an order number collides with an
	// existing one. Callers retry with a freshly generated number.
	ErrNumberConflict = errors.New("order number already exists")
)

// Line is an immutable snapshot of a cart line captured at order creation.
// It stays stable regardless of later catalog edits.
type Line struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Slug      string          `json:"slug"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// ShippingAddress is the destination captured at checkout.
type ShippingAddress struct {
	Title      string `json:"title"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode"`
}

// AppliedCoupon records the server-computed discount attached to an order.
type AppliedCoupon struct {
	Code           string
	DiscountAmount decimal.Decimal
}

// Order is a confirmed purchase. Items, TotalAmount and AppliedCoupon are
// immutable after creation; only Status (and, pre-fulfillment, the shipping
// details via the admin collaborator) may change.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []Line
	TotalAmount     decimal.Decimal
	AppliedCoupon   *AppliedCoupon
	ShippingAddress ShippingAddress
	Phone           string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repository defines persistence operations for orders. Creation during
// checkout does not go through this interface but through the atomic
// commit (checkout.Committer); Create exists for tooling and tests.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	FindByUserAndID(ctx context.Context, userID, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// TransitionStatus atomically moves the order to the target status if its
	// current status is one of from. It returns ErrNotFound when the order
	// does not exist for the user, or an IllegalTransitionError when the
	// order exists but its status is not in from.
	TransitionStatus(ctx context.Context, userID, id string, from []Status, to Status) (*Order, error)
}
