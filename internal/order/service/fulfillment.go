package service

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/notification"
	"storefront/internal/storage"
)

// PickupTrackingCode is recorded when a pickup order is handed over.
const PickupTrackingCode = "Pickup"

func (s *Service) StartPreparation(ctx context.Context, orderID int64) (*Outcome, error) {
	order, err := s.transition(ctx, orderID, EventStartPreparation, nil)
	if err != nil {
		return nil, err
	}
	return &Outcome{Order: order}, nil
}

// Dispatch closes the order. Delivery orders need a courier tracking code.
func (s *Service) Dispatch(ctx context.Context, orderID int64, trackingCode string) (*Outcome, error) {
	trackingCode = strings.TrimSpace(trackingCode)

	order, err := s.transition(ctx, orderID, EventDispatch, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		code := trackingCode
		if o.Status.DeliveryMode == domain.DeliveryModePickup {
			code = PickupTrackingCode
		} else if code == "" {
			return apperrors.NewValidationError("tracking code required", apperrors.ValidationDetail{
				Field:   "trackingCode",
				Message: "trackingCode is required for delivery orders",
			})
		}
		o.TrackingCode = &code
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Order: order, Warnings: s.notifyCustomer(ctx, order, domain.MessageDispatched)}, nil
}

// ReportShortage stops preparation and opens a ShortageAlert for support.
func (s *Service) ReportShortage(ctx context.Context, orderID int64, message string) (*Outcome, error) {
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("Stock shortage while preparing order %d", orderID)
	}

	var raised *domain.Notification
	order, err := s.transition(ctx, orderID, EventReportShortage, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		n, _, err := s.router.Raise(ctx, tx.Notifications(), notification.RaiseRequest{
			TargetRole: domain.RoleCustomerSupport,
			OrderID:    o.ID,
			Category:   domain.CategoryShortageAlert,
			Message:    message,
		})
		raised = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Order: order, Notification: raised}, nil
}

// ResolveShortage sends the order back to preparation.
func (s *Service) ResolveShortage(ctx context.Context, orderID int64) (*Outcome, error) {
	var resolved *domain.Notification
	order, err := s.transition(ctx, orderID, EventResolveShortage, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		n, err := s.router.ResolveActive(ctx, tx.Notifications(), o.ID, domain.CategoryShortageAlert)
		resolved = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Order: order, Notification: resolved}, nil
}

// CancelShortage refunds the order and returns the stock it took.
func (s *Service) CancelShortage(ctx context.Context, orderID int64) (*Outcome, error) {
	var cancelled *domain.Notification
	order, err := s.transition(ctx, orderID, EventCancelShortage, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		if err := s.releaseStock(ctx, tx, o); err != nil {
			return err
		}
		n, err := s.router.CancelActive(ctx, tx.Notifications(), o.ID, domain.CategoryShortageAlert)
		cancelled = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Order:        order,
		Notification: cancelled,
		Warnings:     s.notifyCustomer(ctx, order, domain.MessageRefunded),
	}, nil
}

// MarkReservationAvailable is allowed only once stock covers the reservation. The
// stock is not taken until the customer pays.
func (s *Service) MarkReservationAvailable(ctx context.Context, orderID int64) (*Outcome, error) {
	var raised *domain.Notification
	order, err := s.transition(ctx, orderID, EventMarkReservationAvailable, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		if err := s.ledger.ReserveCheck(ctx, tx.Products(), o.Lines); err != nil {
			return err
		}
		if _, err := s.router.ResolveActive(ctx, tx.Notifications(), o.ID, domain.CategoryReservationRequest); err != nil {
			return err
		}
		n, _, err := s.router.Raise(ctx, tx.Notifications(), notification.RaiseRequest{
			TargetRole: domain.RoleCustomerSupport,
			OrderID:    o.ID,
			Category:   domain.CategoryReservationAvailable,
			Message:    fmt.Sprintf("Reservation %d is available. Waiting for the customer to pay.", o.ID),
		})
		raised = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Order:        order,
		Notification: raised,
		Warnings:     s.notifyCustomer(ctx, order, domain.MessageReservationAvailable),
	}, nil
}

// RaiseException opens a staff notification for an order. A shortage alert also moves
// the order out of preparation. Other categories only need the order to exist.
func (s *Service) RaiseException(ctx context.Context, orderID int64, category domain.Category, message string) (*Outcome, error) {
	if !category.Valid() {
		return nil, apperrors.NewValidationError("invalid category", apperrors.ValidationDetail{
			Field:   "category",
			Message: "unknown category",
		})
	}
	if category == domain.CategoryShortageAlert {
		return s.ReportShortage(ctx, orderID, message)
	}

	var out Outcome
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		order, err := tx.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		n, _, err := s.router.Raise(ctx, tx.Notifications(), notification.RaiseRequest{
			TargetRole: TargetRole(category),
			OrderID:    orderID,
			Category:   category,
			Message:    message,
		})
		if err != nil {
			return err
		}
		out.Order, out.Notification = order, n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TargetRole is the staff queue a category lands in.
func TargetRole(category domain.Category) domain.Role {
	if category == domain.CategoryReservationRequest {
		return domain.RoleLogistics
	}
	return domain.RoleCustomerSupport
}

// MarkAwaitingCustomerReply parks a notification while staff waits on the customer.
func (s *Service) MarkAwaitingCustomerReply(ctx context.Context, notificationID int64) (*domain.Notification, error) {
	return s.router.MarkAwaitingCustomerReply(ctx, notificationID)
}
