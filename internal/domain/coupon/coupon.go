package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercent discounts a percentage of the order subtotal.
	TypePercent Type = "percent"
	// TypeFixed discounts a fixed amount, capped at the subtotal.
	TypeFixed Type = "fixed"
)

var (
	// ErrNotFound is returned when no active, unexpired coupon matches a code.
	ErrNotFound = errors.New("invalid or expired coupon")
	// ErrUsageExhausted is returned when a coupon's global usage cap is reached.
	ErrUsageExhausted = errors.New("coupon usage limit reached")
	// ErrAlreadyUsed is returned when the requesting user has redeemed the
	// coupon up to its per-user limit.
	ErrAlreadyUsed = errors.New("coupon already used")
	// ErrMinimumOrderNotMet is returned when the order subtotal is below the
	// coupon's minimum order amount.
	ErrMinimumOrderNotMet = errors.New("minimum order amount not met")
)

// Coupon is a discount rule created by the admin collaborator. UsedCount and
// the per-user redemption counters are mutated only by the checkout commit,
// never by admin edits.
type Coupon struct {
	Code              string
	Title             string
	Type              Type
	Value             decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	UsageLimitTotal   int // 0 means unlimited
	UsageLimitPerUser int
	UsedCount         int
	ValidUntil        *time.Time
	Active            bool
}

// NormalizeCode canonicalizes a user-supplied coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Store provides coupon lookups for evaluation. Usage increments are not part
// of this interface; they are commit-scoped (see checkout.Committer).
type Store interface {
	// FindActiveByCode returns the active coupon for a normalized code, or
	// ErrNotFound. Expiry is checked by the evaluator, not the store.
	FindActiveByCode(ctx context.Context, code string) (*Coupon, error)
	// UserUses returns how many times the user has redeemed the coupon.
	UserUses(ctx context.Context, code, userID string) (int, error)
}
