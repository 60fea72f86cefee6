package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/storage"
)

const commitScope = "gateway-commit"

// PaymentRedirect is where the customer must go to pay.
type PaymentRedirect struct {
	Order *domain.Order
	URL   string
	Token string
}

// ChooseShipping fixes the delivery mode and reprices the order.
func (s *Service) ChooseShipping(ctx context.Context, orderID int64, customerID string, mode domain.DeliveryMode) (*Outcome, error) {
	if !mode.Valid() {
		return nil, apperrors.NewValidationError("invalid delivery mode", apperrors.ValidationDetail{
			Field:   "deliveryMode",
			Message: fmt.Sprintf("deliveryMode must be %s or %s", domain.DeliveryModePickup, domain.DeliveryModeDelivery),
		})
	}

	order, err := s.transition(ctx, orderID, EventChooseShipping, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		if err := requireOwner(o, customerID); err != nil {
			return err
		}
		if len(o.Lines) == 0 {
			return apperrors.NewValidationError("order has no lines")
		}
		o.Status.DeliveryMode = mode
		o.Recalculate(s.cfg.Shipping)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Order: order}, nil
}

// StartGatewayPayment opens a gateway transaction for the order's total and records its
// token on the order. The gateway is called outside the transaction.
func (s *Service) StartGatewayPayment(ctx context.Context, orderID int64, customerID string, returnURL string) (*PaymentRedirect, error) {
	current, err := s.tx.Reader().Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(current, customerID); err != nil {
		return nil, err
	}
	if _, err := Next(current, EventStartGatewayPayment); err != nil {
		return nil, err
	}

	if returnURL == "" {
		returnURL = s.cfg.ReturnURL
	}
	now := s.now()
	created, err := s.gateway.Create(ctx, payment.CreateRequest{
		BuyOrder:  payment.NewBuyOrder(orderID, now),
		SessionID: payment.NewSessionID(customerID, now),
		Amount:    payment.MinorUnits(current.Total, s.cfg.CurrencyExponent),
		ReturnURL: returnURL,
	})
	if err != nil {
		s.logger.Warn("gateway create failed", zap.Int64("orderId", orderID), zap.Error(err))
		return nil, err
	}

	order, err := s.transition(ctx, orderID, EventStartGatewayPayment, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		if err := requireOwner(o, customerID); err != nil {
			return err
		}
		if !o.Total.Equal(current.Total) {
			return apperrors.NewConflictError(fmt.Sprintf("order %d total changed while opening the payment", orderID))
		}
		token := created.Token
		o.GatewayToken = &token
		o.Status.PaymentMethod = domain.PaymentMethodOnlineGateway
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &PaymentRedirect{Order: order, URL: created.URL, Token: created.Token}, nil
}

// CommitGatewayPayment handles the gateway callback. Repeated callbacks for a paid order
// are answered as replays and never touch stock twice.
func (s *Service) CommitGatewayPayment(ctx context.Context, token string) (*Outcome, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewValidationError("missing payment token", apperrors.ValidationDetail{
			Field:   "token_ws",
			Message: "token_ws is required",
		})
	}
	logger := s.logger.With(zap.String("gatewayToken", token))

	// Bloque 1: replay ya memorizado o pedido ya pagado
	current, replay, err := s.lookupCommit(ctx, token)
	if err != nil || replay != nil {
		return replay, err
	}
	if _, err := Next(current, EventGatewayApproved); err != nil {
		return nil, err
	}

	// Bloque 2: lock por token
	locked, err := s.idem.TryLock(ctx, commitScope, token)
	if err != nil {
		return nil, fmt.Errorf("acquiring payment lock: %w", err)
	}
	if !locked {
		return nil, apperrors.NewConflictError("payment confirmation already in progress")
	}
	defer func() {
		if err := s.idem.Unlock(context.WithoutCancel(ctx), commitScope, token); err != nil {
			logger.Warn("releasing payment lock failed", zap.Error(err))
		}
	}()

	// Bloque 3: otra entrega pudo terminar entre la lectura y el lock
	current, replay, err = s.lookupCommit(ctx, token)
	if err != nil || replay != nil {
		return replay, err
	}

	// Bloque 4: confirmar con el gateway
	resp, err := s.gateway.Commit(ctx, token)
	if err != nil {
		logger.Warn("gateway commit failed", zap.Int64("orderId", current.ID), zap.Error(err))
		return nil, err
	}
	if !resp.Approved() {
		logger.Info("gateway declined payment", zap.Int64("orderId", current.ID), zap.Int("responseCode", resp.ResponseCode))
		return nil, apperrors.NewGatewayRejectedError("commit", resp.ResponseCode)
	}

	buyOrderID, err := payment.ParseBuyOrder(resp.BuyOrder)
	if err != nil {
		logger.Error("gateway approved an unparseable buy order", zap.String("buyOrder", resp.BuyOrder))
		return nil, err
	}
	if buyOrderID != current.ID {
		logger.Error("buy order does not match token owner", zap.Int64("orderId", current.ID), zap.Int64("buyOrderId", buyOrderID))
		return nil, apperrors.NewValidationError("buy order does not match the order holding the token")
	}

	// Bloque 5: transicion atomica a PAID con descuento de stock
	order, err := s.transition(ctx, current.ID, EventGatewayApproved, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		if want := payment.MinorUnits(o.Total, s.cfg.CurrencyExponent); resp.Amount != 0 && resp.Amount != want {
			return apperrors.NewValidationError(fmt.Sprintf("paid amount %d does not match order amount %d", resp.Amount, want))
		}
		o.GatewayToken = &token
		o.Status.PaymentMethod = domain.PaymentMethodOnlineGateway
		if err := s.commitStock(ctx, tx, o); err != nil {
			return err
		}
		if o.IsReservation {
			if _, err := s.router.ResolveActive(ctx, tx.Notifications(), o.ID, domain.CategoryReservationAvailable); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if _, ok := apperrors.IsInvalidTransitionError(err); ok {
			if after, findErr := s.tx.Reader().Orders().FindByID(ctx, current.ID); findErr == nil && settled(after.Status.Phase) {
				logger.Info("gateway callback raced a completed payment", zap.Int64("orderId", after.ID))
				return &Outcome{Order: after, Replayed: true}, nil
			}
		}
		if _, ok := apperrors.IsStockInsufficientError(err); ok {
			logger.Error("payment approved but stock is insufficient, refund required", zap.Int64("orderId", current.ID), zap.Error(err))
		}
		return nil, err
	}

	// Bloque 6: memo y aviso al cliente
	if err := s.idem.Remember(ctx, commitScope, token, strconv.FormatInt(order.ID, 10)); err != nil {
		logger.Warn("remembering payment commit failed", zap.Error(err))
	}
	return &Outcome{Order: order, Warnings: s.notifyCustomer(ctx, order, domain.MessagePaymentConfirmed)}, nil
}

// lookupCommit finds the order a token was issued for. A non-nil Outcome means the payment
// already went through and the callback is a replay.
func (s *Service) lookupCommit(ctx context.Context, token string) (*domain.Order, *Outcome, error) {
	if out, ok := s.recallCommit(ctx, token); ok {
		return nil, out, nil
	}

	order, err := s.tx.Reader().Orders().FindByGatewayToken(ctx, token)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, nil, apperrors.NewValidationError("unknown payment token", apperrors.ValidationDetail{
				Field:   "token_ws",
				Message: "no order is waiting for this token",
			})
		}
		return nil, nil, err
	}
	if settled(order.Status.Phase) {
		s.logger.Info("duplicate gateway callback",
			zap.String("gatewayToken", token),
			zap.Int64("orderId", order.ID),
			zap.String("phase", string(order.Status.Phase)),
		)
		return nil, &Outcome{Order: order, Replayed: true}, nil
	}
	return order, nil, nil
}

func (s *Service) recallCommit(ctx context.Context, token string) (*Outcome, bool) {
	value, found, err := s.idem.Recall(ctx, commitScope, token)
	if err != nil {
		s.logger.Warn("recalling payment commit failed", zap.String("gatewayToken", token), zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	orderID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, false
	}
	order, err := s.tx.Reader().Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, false
	}
	return &Outcome{Order: order, Replayed: true}, true
}

// SelectBankTransfer parks the order until support confirms the transfer arrived.
func (s *Service) SelectBankTransfer(ctx context.Context, orderID int64, customerID string) (*Outcome, error) {
	var raised *domain.Notification
	order, err := s.transition(ctx, orderID, EventSelectBankTransfer, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		if err := requireOwner(o, customerID); err != nil {
			return err
		}
		o.Status.PaymentMethod = domain.PaymentMethodBankTransfer
		n, _, err := s.router.Raise(ctx, tx.Notifications(), notification.RaiseRequest{
			TargetRole: domain.RoleCustomerSupport,
			OrderID:    o.ID,
			Category:   domain.CategoryTransferPendingReview,
			Message:    fmt.Sprintf("Order %d paid by bank transfer, total %s. Confirm receipt.", o.ID, o.Total.StringFixed(0)),
		})
		raised = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Order: order, Notification: raised}, nil
}

// ConfirmTransfer records that the transfer arrived. Stock is taken here.
func (s *Service) ConfirmTransfer(ctx context.Context, orderID int64) (*Outcome, error) {
	var resolved *domain.Notification
	order, err := s.transition(ctx, orderID, EventConfirmTransfer, func(ctx context.Context, tx storage.Tx, o *domain.Order) error {
		if err := s.commitStock(ctx, tx, o); err != nil {
			return err
		}
		n, err := s.router.ResolveActive(ctx, tx.Notifications(), o.ID, domain.CategoryTransferPendingReview)
		resolved = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{
		Order:        order,
		Notification: resolved,
		Warnings:     s.notifyCustomer(ctx, order, domain.MessagePaymentConfirmed),
	}, nil
}
