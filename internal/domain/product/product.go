package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/averix/storefront-checkout/internal/domain/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item as seen by checkout. The catalog itself
// is managed by an external admin collaborator; this core only reads products
// and conditionally decrements stock during the order commit.
type Product struct {
	ID              string
	Name            string
	Slug            string
	Image           string
	RegularPrice    decimal.Decimal
	DiscountPercent int
	Stock           int
	SoldCount       int
	Active          bool
}

// SalePrice returns the effective unit price: the regular price reduced by
// the catalog discount percentage when one is set.
func (p Product) SalePrice() decimal.Decimal {
	if p.DiscountPercent <= 0 {
		return p.RegularPrice
	}
	discount := money.PercentDiscount(p.RegularPrice, decimal.NewFromInt(int64(p.DiscountPercent)))
	return p.RegularPrice.Sub(discount)
}

// Catalog defines the read operations checkout needs from the product store.
// Stock mutation is not part of this interface: decrements happen only inside
// the atomic order commit (see checkout.Committer).
type Catalog interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
