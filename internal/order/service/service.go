// Package service is the order state machine. Every phase change, together with its stock
// and staff-notification side effects, commits in one transaction or not at all.
package service

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/infrastructure/metrics"
	"storefront/internal/infrastructure/tracing"
	"storefront/internal/inventory"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/storage"
)

// CustomerNotifier delivers outbound messages to customers after commit.
type CustomerNotifier interface {
	NotifyCustomer(ctx context.Context, msg domain.CustomerMessage) error
}

// IdempotencyStore guards gateway callbacks against concurrent and repeated delivery.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Unlock(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

type Config struct {
	Shipping         domain.ShippingPolicy
	MaxRetryAttempts int
	CurrencyExponent int32
	ReturnURL        string
}

// Outcome is the result of a state-changing operation.
type Outcome struct {
	Order        *domain.Order
	Notification *domain.Notification
	// Replayed is true when the request had already been applied and nothing changed.
	Replayed bool
	// Warnings carry post-commit delivery failures. The state change itself succeeded.
	Warnings []string
}

type Service struct {
	tx       storage.TxManager
	ledger   *inventory.Ledger
	router   *notification.Router
	gateway  payment.Gateway
	notifier CustomerNotifier
	idem     IdempotencyStore
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Recorder
	tracer   *tracing.Tracer
	now      func() time.Time
}

func NewService(
	tx storage.TxManager,
	ledger *inventory.Ledger,
	router *notification.Router,
	gateway payment.Gateway,
	notifier CustomerNotifier,
	idem IdempotencyStore,
	cfg Config,
	logger *zap.Logger,
	recorder *metrics.Recorder,
	tracer *tracing.Tracer,
) *Service {
	if cfg.MaxRetryAttempts < 1 {
		cfg.MaxRetryAttempts = 1
	}
	return &Service{
		tx:       tx,
		ledger:   ledger,
		router:   router,
		gateway:  gateway,
		notifier: notifier,
		idem:     idem,
		cfg:      cfg,
		logger:   logger,
		metrics:  recorder,
		tracer:   tracer,
		now:      time.Now,
	}
}

// mutation applies an event's side effects to a locked order inside the transaction.
type mutation func(ctx context.Context, tx storage.Tx, order *domain.Order) error

func (s *Service) transition(ctx context.Context, orderID int64, event Event, mutate mutation) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order."+strings.ToLower(string(event)), attribute.Int64("order.id", orderID))
	defer span.End()

	// Backoff intervals: attempt 1 (0ms), attempt 2 (100ms), attempt 3 (200ms), etc.
	backoffs := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}

	for attempt := 1; ; attempt++ {
		order, from, err := s.applyOnce(ctx, orderID, event, mutate)
		if err == nil {
			s.metrics.Transition(string(from), string(order.Status.Phase), string(event))
			span.SetAttributes(attribute.String("order.from", string(from)), attribute.String("order.to", string(order.Status.Phase)))
			s.logger.Info("order transitioned",
				zap.Int64("orderId", orderID),
				zap.String("event", string(event)),
				zap.String("from", string(from)),
				zap.String("to", string(order.Status.Phase)),
			)
			return order, nil
		}

		if _, ok := apperrors.IsDeadlockError(err); ok && attempt < s.cfg.MaxRetryAttempts {
			base := backoffs[min(attempt, len(backoffs)-1)]
			// Jitter: ±20% of backoff base
			wait := time.Duration(float64(base) * (0.8 + rand.Float64()*0.4))
			s.logger.Warn("deadlock detected, retrying", zap.Int("attempt", attempt), zap.Int("maxAttempts", s.cfg.MaxRetryAttempts), zap.Int64("orderId", orderID))
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if _, ok := apperrors.IsInvalidTransitionError(err); ok {
			s.logger.Warn("transition refused", zap.Int64("orderId", orderID), zap.String("event", string(event)), zap.Error(err))
		}
		return nil, err
	}
}

func (s *Service) applyOnce(ctx context.Context, orderID int64, event Event, mutate mutation) (*domain.Order, domain.Phase, error) {
	var (
		result *domain.Order
		from   domain.Phase
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		order, err := tx.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from = order.Status.Phase

		next, err := Next(order, event)
		if err != nil {
			return err
		}

		if mutate != nil {
			if err := mutate(ctx, tx, order); err != nil {
				return err
			}
		}

		order.Status.Phase = next
		if err := tx.Orders().Update(ctx, order, from); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, from, err
	}
	return result, from, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// commitStock takes the order's stock once. Later calls are no-ops.
func (s *Service) commitStock(ctx context.Context, tx storage.Tx, order *domain.Order) error {
	if order.StockCommitted {
		return nil
	}
	if err := s.ledger.Decrement(ctx, tx.Products(), order.Lines); err != nil {
		return err
	}
	order.StockCommitted = true
	return nil
}

// releaseStock returns exactly what commitStock took.
func (s *Service) releaseStock(ctx context.Context, tx storage.Tx, order *domain.Order) error {
	if !order.StockCommitted {
		return nil
	}
	if err := s.ledger.Restore(ctx, tx.Products(), order.Lines); err != nil {
		return err
	}
	order.StockCommitted = false
	return nil
}

// notifyCustomer runs after commit. Failures become warnings and are never rolled back.
func (s *Service) notifyCustomer(ctx context.Context, order *domain.Order, kind domain.MessageKind) []string {
	msg := domain.CustomerMessage{
		Kind:       kind,
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		OccurredAt: s.now().UTC(),
	}
	if order.TrackingCode != nil {
		msg.TrackingCode = *order.TrackingCode
	}

	if err := s.notifier.NotifyCustomer(ctx, msg); err != nil {
		if _, ok := apperrors.IsNotificationDeliveryError(err); !ok {
			err = apperrors.NewNotificationDeliveryError("customer", err)
		}
		s.metrics.DeliveryFailure(string(kind))
		s.logger.Warn("customer notification failed", zap.Int64("orderId", order.ID), zap.String("kind", string(kind)), zap.Error(err))
		return []string{err.Error()}
	}
	return nil
}

func requireOwner(order *domain.Order, customerID string) error {
	if order.CustomerID != customerID {
		return apperrors.NewAuthorizationError(customerID, "owner of order")
	}
	return nil
}
