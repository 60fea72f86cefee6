package service

import (
	"context"
	"fmt"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
)

// queues lists the phases each staff role works on.
var queues = map[domain.Role][]domain.Phase{
	domain.RoleLogistics: {
		domain.PhasePaid,
		domain.PhaseInPreparation,
		domain.PhaseReservationRequested,
	},
	domain.RoleCustomerSupport: {
		domain.PhasePaymentPendingReview,
		domain.PhaseShortageReported,
		domain.PhaseReservationAvailable,
	},
}

type Counters struct {
	Orders        int `json:"orders"`
	Notifications int `json:"notifications"`
}

func (s *Service) Get(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.tx.Reader().Orders().FindByID(ctx, orderID)
}

// GetForCustomer hides other customers' orders behind NotFound.
func (s *Service) GetForCustomer(ctx context.Context, orderID int64, customerID string) (*domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != customerID {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("order with id %d not found", orderID))
	}
	return order, nil
}

// ListForRole returns the role's work queue, oldest first.
func (s *Service) ListForRole(ctx context.Context, role domain.Role) ([]domain.Order, error) {
	phases, ok := queues[role]
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("role %s has no order queue", role))
	}
	return nonNil(s.tx.Reader().Orders().ListByPhases(ctx, phases, false))
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return nonNil(s.tx.Reader().Orders().ListByCustomer(ctx, customerID))
}

// DispatchHistory returns dispatched orders, newest first.
func (s *Service) DispatchHistory(ctx context.Context) ([]domain.Order, error) {
	return nonNil(s.tx.Reader().Orders().ListByPhases(ctx, []domain.Phase{domain.PhaseDispatched}, true))
}

func (s *Service) Counters(ctx context.Context, role domain.Role) (*Counters, error) {
	phases, ok := queues[role]
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("role %s has no order queue", role))
	}
	orders, err := s.tx.Reader().Orders().CountByPhases(ctx, phases)
	if err != nil {
		return nil, err
	}
	notifications, err := s.router.CountOpen(ctx, role)
	if err != nil {
		return nil, err
	}
	return &Counters{Orders: orders, Notifications: notifications}, nil
}

// Notifications returns the full notification trail of an order.
func (s *Service) Notifications(ctx context.Context, orderID int64) ([]domain.Notification, error) {
	list, err := s.tx.Reader().Notifications().ListByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Notification{}
	}
	return list, nil
}

func (s *Service) OpenNotifications(ctx context.Context, role domain.Role) ([]domain.Notification, error) {
	return s.router.ListOpen(ctx, role)
}

func (s *Service) Notification(ctx context.Context, id int64) (*domain.Notification, error) {
	return s.router.Get(ctx, id)
}

func nonNil(orders []domain.Order, err error) ([]domain.Order, error) {
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}
