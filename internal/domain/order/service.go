package order

import (
	"context"

	"github.com/go-faster/errors"
)

// Service exposes the user-facing order lifecycle: listing, fetching and
// cancellation. Forward transitions (paid, processing, shipped, delivered)
// belong to the admin collaborator but are validated by the same state
// machine via Advance.
type Service struct {
	orders Repository
}

// NewService creates an order lifecycle Service.
func NewService(orders Repository) *Service {
	return &Service{orders: orders}
}

// List returns the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	out, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return out, nil
}

// Get returns a single order owned by the user. Missing and foreign orders
// both yield ErrNotFound.
func (s *Service) Get(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.orders.FindByUserAndID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// Cancel moves the user's order to canceled. Only pending and paid orders
// can be canceled; the check and the write happen in a single conditional
// update so a concurrent cancel or admin advance cannot both win.
func (s *Service) Cancel(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.orders.TransitionStatus(ctx, userID, id, CancelableStatuses, StatusCanceled)
	if err != nil {
		var itErr *IllegalTransitionError
		if errors.Is(err, ErrNotFound) || errors.As(err, &itErr) {
			return nil, err
		}
		return nil, errors.Wrap(err, "cancel order")
	}
	return o, nil
}

// Advance performs an admin-driven forward transition. The state machine
// rejects backward moves, moves out of canceled, and cancellation through
// this path.
func (s *Service) Advance(ctx context.Context, userID, id string, to Status) (*Order, error) {
	current, err := s.orders.FindByUserAndID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !CanAdvance(current.Status, to) {
		return nil, &IllegalTransitionError{From: current.Status, To: to}
	}

	// Conditional on the observed status so a concurrent transition fails
	// rather than silently overwriting.
	o, err := s.orders.TransitionStatus(ctx, userID, id, []Status{current.Status}, to)
	if err != nil {
		return nil, errors.Wrap(err, "advance order status")
	}
	return o, nil
}
