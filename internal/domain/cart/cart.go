package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a user has no cart.
var ErrNotFound = errors.New("cart not found")

// Cart holds a user's pending lines. Each user owns at most one cart; it is
// mutated by the external cart-management surface and consumed read-only by
// checkout, which deletes it as part of a successful order commit.
type Cart struct {
	UserID    string
	Lines     []Line
	UpdatedAt time.Time
}

// Line is one product entry in a cart. Name, slug, image and price are
// snapshots taken when the item was added; Price may be nil for lines added
// before price snapshotting existed, in which case checkout falls back to
// the live catalog price.
type Line struct {
	ProductID string
	Name      string
	Slug      string
	Image     string
	Price     *decimal.Decimal
	Quantity  int
}

// Repository defines the cart operations checkout consumes. Deletion is also
// performed transactionally inside the order commit; Delete here exists for
// the external cart surface.
type Repository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Delete(ctx context.Context, userID string) error
}
