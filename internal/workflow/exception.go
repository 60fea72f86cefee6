package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/order/service"
)

type ResolutionOutcome string

const (
	OutcomeReturnToFulfillment ResolutionOutcome = "RETURN_TO_FULFILLMENT"
	OutcomeCancelAndRefund     ResolutionOutcome = "CANCEL_AND_REFUND"
)

// Exception is the staff view that closes notifications by moving their order.
type Exception struct {
	orders OrderMachine
	logger *zap.Logger
}

func NewException(orders OrderMachine, logger *zap.Logger) *Exception {
	return &Exception{orders: orders, logger: logger}
}

// Resolve closes a notification through the transition its category and outcome map to.
// Only customer support resolves. A closed notification is a no-op.
func (e *Exception) Resolve(ctx context.Context, actor domain.Actor, notificationID int64, outcome ResolutionOutcome) (*service.Outcome, error) {
	outcome = ResolutionOutcome(strings.ToUpper(string(outcome)))
	if outcome != OutcomeReturnToFulfillment && outcome != OutcomeCancelAndRefund {
		return nil, apperrors.NewValidationError("unknown outcome", apperrors.ValidationDetail{
			Field:   "outcome",
			Message: fmt.Sprintf("outcome must be %s or %s", OutcomeReturnToFulfillment, OutcomeCancelAndRefund),
		})
	}

	if err := requireRole(actor, domain.RoleCustomerSupport); err != nil {
		e.logger.Warn("exception resolution refused", zap.String("actorId", actor.ID), zap.Int64("notificationId", notificationID))
		return nil, err
	}

	n, err := e.orders.Notification(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	if !n.Status.Active() {
		order, err := e.orders.Get(ctx, n.OrderID)
		if err != nil {
			return nil, err
		}
		return &service.Outcome{Order: order, Notification: n, Replayed: true}, nil
	}

	e.logger.Info("resolving exception",
		zap.String("actorId", actor.ID),
		zap.Int64("notificationId", n.ID),
		zap.Int64("orderId", n.OrderID),
		zap.String("category", string(n.Category)),
		zap.String("outcome", string(outcome)),
	)

	switch n.Category {
	case domain.CategoryShortageAlert:
		if outcome == OutcomeCancelAndRefund {
			return e.orders.CancelShortage(ctx, n.OrderID)
		}
		return e.orders.ResolveShortage(ctx, n.OrderID)

	case domain.CategoryTransferPendingReview:
		if outcome == OutcomeCancelAndRefund {
			return nil, e.refuse(ctx, n, "CANCEL_TRANSFER")
		}
		return e.orders.ConfirmTransfer(ctx, n.OrderID)

	case domain.CategoryReservationRequest:
		if outcome == OutcomeCancelAndRefund {
			return nil, e.refuse(ctx, n, "CANCEL_RESERVATION")
		}
		return e.orders.MarkReservationAvailable(ctx, n.OrderID)

	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s notifications close when the customer pays", n.Category))
	}
}

// refuse reports an outcome no transition supports, from the order's current phase.
func (e *Exception) refuse(ctx context.Context, n *domain.Notification, event string) error {
	order, err := e.orders.Get(ctx, n.OrderID)
	if err != nil {
		return err
	}
	return apperrors.NewInvalidTransitionError(order.ID, string(order.Status.Phase), event)
}

// AwaitCustomer parks a notification while support waits on the customer.
func (e *Exception) AwaitCustomer(ctx context.Context, actor domain.Actor, notificationID int64) (*domain.Notification, error) {
	if err := requireRole(actor, domain.RoleCustomerSupport); err != nil {
		return nil, err
	}
	return e.orders.MarkAwaitingCustomerReply(ctx, notificationID)
}

func (e *Exception) Board(ctx context.Context, actor domain.Actor) (*Board, error) {
	if err := requireRole(actor, domain.RoleCustomerSupport); err != nil {
		return nil, err
	}
	return board(ctx, e.orders, domain.RoleCustomerSupport)
}

// Raise opens a notification on behalf of any staff member.
func (e *Exception) Raise(ctx context.Context, actor domain.Actor, orderID int64, category domain.Category, message string) (*service.Outcome, error) {
	return RaiseException(ctx, e.orders, actor, orderID, category, message)
}
