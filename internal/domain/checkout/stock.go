package checkout

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/averix/storefront-checkout/internal/domain/cart"
	"github.com/averix/storefront-checkout/internal/domain/product"
)

// ProductUnavailableError indicates a cart line references a product that no
// longer exists in the catalog.
type ProductUnavailableError struct {
	ProductID string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("product %s is no longer available", e.ProductID)
}

// OutOfStockError indicates a cart line requests more units than the catalog
// currently holds. It names the product and the shortfall so the client can
// render an actionable message.
type OutOfStockError struct {
	ProductID string
	Name      string
	Available int
	Requested int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d",
		e.Name, e.Available, e.Requested)
}

// InvalidQuantityError indicates a cart line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// StockChecker validates cart lines against live catalog stock. The check is
// advisory and purely read-only: it catches obviously doomed checkouts early,
// while final enforcement happens via conditional decrements inside the
// atomic commit (the gap between this check and the commit is a race window).
type StockChecker struct {
	catalog product.Catalog
}

// NewStockChecker creates a StockChecker over the given catalog.
func NewStockChecker(catalog product.Catalog) *StockChecker {
	return &StockChecker{catalog: catalog}
}

// Check fetches every referenced product in a single batch and verifies each
// line's quantity is positive and currently satisfiable. It returns the
// fetched products keyed by ID for the caller to reuse when building order
// lines.
func (c *StockChecker) Check(ctx context.Context, lines []cart.Line) (map[string]product.Product, error) {
	ids := make([]string, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		ids[i] = line.ProductID
	}

	fetched, err := c.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	for _, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, &ProductUnavailableError{ProductID: line.ProductID}
		}
		if p.Stock < line.Quantity {
			return nil, &OutOfStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: line.Quantity,
			}
		}
	}

	return byID, nil
}
