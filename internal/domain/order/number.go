package order

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NumberGenerator produces human-legible order numbers of the form
// ORD-<year>-<6 time-derived digits><8 random hex chars>, e.g.
// ORD-2026-492817F3A19C2B. The year prefix keeps numbers sortable; the random
// tail makes collisions between orders created in the same millisecond
// overwhelmingly unlikely. Uniqueness is still a soft guarantee: the orders
// table enforces it with a unique index, and a collision surfaces as
// ErrNumberConflict to be retried with a fresh number.
type NumberGenerator func() string

// NewNumberGenerator returns the production generator using the wall clock.
func NewNumberGenerator() NumberGenerator {
	return func() string {
		return generateNumber(time.Now())
	}
}

func generateNumber(now time.Time) string {
	var tail [4]byte
	_, _ = rand.Read(tail[:])
	return fmt.Sprintf("ORD-%d-%06d%s",
		now.Year(),
		now.UnixMilli()%1_000_000,
		strings.ToUpper(hex.EncodeToString(tail[:])),
	)
}
