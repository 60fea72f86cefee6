// Package workflow drives the order state machine on behalf of staff. Each action checks
// the actor's role and then invokes exactly one transition.
package workflow

import (
	"context"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/order/service"
)

// OrderMachine is the part of the order service staff workflows drive.
type OrderMachine interface {
	Get(ctx context.Context, orderID int64) (*domain.Order, error)
	StartPreparation(ctx context.Context, orderID int64) (*service.Outcome, error)
	Dispatch(ctx context.Context, orderID int64, trackingCode string) (*service.Outcome, error)
	ReportShortage(ctx context.Context, orderID int64, message string) (*service.Outcome, error)
	ResolveShortage(ctx context.Context, orderID int64) (*service.Outcome, error)
	CancelShortage(ctx context.Context, orderID int64) (*service.Outcome, error)
	ConfirmTransfer(ctx context.Context, orderID int64) (*service.Outcome, error)
	MarkReservationAvailable(ctx context.Context, orderID int64) (*service.Outcome, error)
	RaiseException(ctx context.Context, orderID int64, category domain.Category, message string) (*service.Outcome, error)
	MarkAwaitingCustomerReply(ctx context.Context, notificationID int64) (*domain.Notification, error)
	Notification(ctx context.Context, id int64) (*domain.Notification, error)
	ListForRole(ctx context.Context, role domain.Role) ([]domain.Order, error)
	OpenNotifications(ctx context.Context, role domain.Role) ([]domain.Notification, error)
	Counters(ctx context.Context, role domain.Role) (*service.Counters, error)
	DispatchHistory(ctx context.Context) ([]domain.Order, error)
}

func requireRole(actor domain.Actor, role domain.Role) error {
	if !actor.HasRole(role) {
		return apperrors.NewAuthorizationError(actor.ID, string(role))
	}
	return nil
}

func requireStaff(actor domain.Actor) error {
	if actor.HasRole(domain.RoleLogistics) || actor.HasRole(domain.RoleCustomerSupport) {
		return nil
	}
	return apperrors.NewAuthorizationError(actor.ID, "staff")
}

// Board is a role's work view: its order queue, open notifications and badge counters.
type Board struct {
	Orders        []domain.Order
	Notifications []domain.Notification
	Counters      service.Counters
}

func board(ctx context.Context, orders OrderMachine, role domain.Role) (*Board, error) {
	queue, err := orders.ListForRole(ctx, role)
	if err != nil {
		return nil, err
	}
	open, err := orders.OpenNotifications(ctx, role)
	if err != nil {
		return nil, err
	}
	counters, err := orders.Counters(ctx, role)
	if err != nil {
		return nil, err
	}
	return &Board{Orders: queue, Notifications: open, Counters: *counters}, nil
}

// RaiseException lets any staff member open a notification for an order.
func RaiseException(ctx context.Context, orders OrderMachine, actor domain.Actor, orderID int64, category domain.Category, message string) (*service.Outcome, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	return orders.RaiseException(ctx, orderID, category, message)
}
