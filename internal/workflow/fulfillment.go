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

type Action string

const (
	ActionStartPreparation         Action = "START_PREPARATION"
	ActionDispatch                 Action = "DISPATCH"
	ActionReportShortage           Action = "REPORT_SHORTAGE"
	ActionMarkReservationAvailable Action = "MARK_RESERVATION_AVAILABLE"
)

type AdvanceRequest struct {
	Action       Action
	TrackingCode string
	Message      string
}

// Fulfillment is the logistics view of the order lifecycle.
type Fulfillment struct {
	orders OrderMachine
	logger *zap.Logger
}

func NewFulfillment(orders OrderMachine, logger *zap.Logger) *Fulfillment {
	return &Fulfillment{orders: orders, logger: logger}
}

// Advance applies one logistics action to an order.
func (f *Fulfillment) Advance(ctx context.Context, actor domain.Actor, orderID int64, req AdvanceRequest) (*service.Outcome, error) {
	if err := requireRole(actor, domain.RoleLogistics); err != nil {
		f.logger.Warn("fulfillment action refused", zap.String("actorId", actor.ID), zap.String("action", string(req.Action)))
		return nil, err
	}

	f.logger.Info("fulfillment action",
		zap.String("actorId", actor.ID),
		zap.Int64("orderId", orderID),
		zap.String("action", string(req.Action)),
	)

	switch Action(strings.ToUpper(string(req.Action))) {
	case ActionStartPreparation:
		return f.orders.StartPreparation(ctx, orderID)
	case ActionDispatch:
		return f.orders.Dispatch(ctx, orderID, req.TrackingCode)
	case ActionReportShortage:
		return f.orders.ReportShortage(ctx, orderID, req.Message)
	case ActionMarkReservationAvailable:
		return f.orders.MarkReservationAvailable(ctx, orderID)
	default:
		return nil, apperrors.NewValidationError("unknown action", apperrors.ValidationDetail{
			Field:   "action",
			Message: fmt.Sprintf("action must be one of %s, %s, %s, %s", ActionStartPreparation, ActionDispatch, ActionReportShortage, ActionMarkReservationAvailable),
		})
	}
}

func (f *Fulfillment) Board(ctx context.Context, actor domain.Actor) (*Board, error) {
	if err := requireRole(actor, domain.RoleLogistics); err != nil {
		return nil, err
	}
	return board(ctx, f.orders, domain.RoleLogistics)
}

func (f *Fulfillment) DispatchHistory(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	if err := requireRole(actor, domain.RoleLogistics); err != nil {
		return nil, err
	}
	return f.orders.DispatchHistory(ctx)
}
