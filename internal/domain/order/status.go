package order

import "fmt"

// Status is the order lifecycle state. The forward path is
// pending → paid → processing → shipped → delivered; canceled is terminal
// and reachable only from pending or paid.
type Status string

const (
	StatusPending    Status = "pending"
	StatusPaid       Status = "paid"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCanceled   Status = "canceled"
)

// forwardRank orders the non-terminal states. Canceled is absent on purpose:
// nothing moves out of it and entry is guarded by CancelableStatuses.
var forwardRank = map[Status]int{
	StatusPending:    0,
	StatusPaid:       1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// CancelableStatuses are the states a user may cancel from.
var CancelableStatuses = []Status{StatusPending, StatusPaid}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCanceled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown order status %q", s)
	}
}

// CanAdvance reports whether an admin-driven transition from one status to
// another is legal: both must be on the forward path, strictly in order.
func CanAdvance(from, to Status) bool {
	fr, ok := forwardRank[from]
	if !ok {
		return false
	}
	tr, ok := forwardRank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// Cancelable reports whether an order in the given status may be canceled.
func Cancelable(s Status) bool {
	for _, allowed := range CancelableStatuses {
		if s == allowed {
			return true
		}
	}
	return false
}

// IllegalTransitionError indicates a state change the lifecycle forbids.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}
