// Package notification routes staff work items to a role queue. At most one active
// notification exists per (order, category); raising again returns that one.
package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/infrastructure/metrics"
	"storefront/internal/storage"
)

type RaiseRequest struct {
	TargetRole domain.Role
	OrderID    int64
	Category   domain.Category
	Message    string
}

type Router struct {
	tx      storage.TxManager
	logger  *zap.Logger
	metrics *metrics.Recorder
}

func NewRouter(tx storage.TxManager, logger *zap.Logger, recorder *metrics.Recorder) *Router {
	return &Router{tx: tx, logger: logger, metrics: recorder}
}

// Raise creates an Open notification unless an active one exists for the same order and
// category, in which case that one is returned unchanged and created is false.
func (r *Router) Raise(ctx context.Context, repo storage.NotificationRepository, req RaiseRequest) (n *domain.Notification, created bool, err error) {
	if err := validateRaise(req); err != nil {
		return nil, false, err
	}

	existing, err := repo.FindActive(ctx, req.OrderID, req.Category)
	if err == nil {
		r.metrics.NotificationRaised(string(req.Category), true)
		r.logger.Info("notification already open", zap.Int64("orderId", req.OrderID), zap.String("category", string(req.Category)), zap.Int64("notificationId", existing.ID))
		return existing, false, nil
	}
	if _, ok := apperrors.IsNotFoundError(err); !ok {
		return nil, false, err
	}

	n = &domain.Notification{
		TargetRole: req.TargetRole,
		OrderID:    req.OrderID,
		Category:   req.Category,
		Message:    req.Message,
		Status:     domain.NotificationOpen,
	}
	if _, err := repo.Insert(ctx, n); err != nil {
		// A concurrent raise won the unique active key.
		if _, ok := apperrors.IsConflictError(err); ok {
			existing, findErr := repo.FindActive(ctx, req.OrderID, req.Category)
			if findErr != nil {
				return nil, false, findErr
			}
			r.metrics.NotificationRaised(string(req.Category), true)
			return existing, false, nil
		}
		return nil, false, err
	}

	r.metrics.NotificationRaised(string(req.Category), false)
	r.logger.Info("notification raised",
		zap.Int64("notificationId", n.ID),
		zap.Int64("orderId", n.OrderID),
		zap.String("category", string(n.Category)),
		zap.String("targetRole", string(n.TargetRole)),
	)
	return n, true, nil
}

func validateRaise(req RaiseRequest) error {
	var details []apperrors.ValidationDetail
	if req.TargetRole != domain.RoleLogistics && req.TargetRole != domain.RoleCustomerSupport {
		details = append(details, apperrors.ValidationDetail{Field: "targetRole", Message: "targetRole must be a staff role"})
	}
	if req.OrderID <= 0 {
		details = append(details, apperrors.ValidationDetail{Field: "orderId", Message: "orderId must be a positive integer"})
	}
	if !req.Category.Valid() {
		details = append(details, apperrors.ValidationDetail{Field: "category", Message: "unknown category"})
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid notification", details...)
	}
	return nil
}

// Resolve closes a notification. Closing a closed one is a no-op.
func (r *Router) Resolve(ctx context.Context, repo storage.NotificationRepository, id int64) (*domain.Notification, error) {
	return r.close(ctx, repo, id, domain.NotificationResolved)
}

// Cancel withdraws a notification. Closing a closed one is a no-op.
func (r *Router) Cancel(ctx context.Context, repo storage.NotificationRepository, id int64) (*domain.Notification, error) {
	return r.close(ctx, repo, id, domain.NotificationCancelled)
}

// ResolveActive resolves the active notification of the pair if there is one.
func (r *Router) ResolveActive(ctx context.Context, repo storage.NotificationRepository, orderID int64, category domain.Category) (*domain.Notification, error) {
	return r.closeActive(ctx, repo, orderID, category, domain.NotificationResolved)
}

// CancelActive cancels the active notification of the pair if there is one.
func (r *Router) CancelActive(ctx context.Context, repo storage.NotificationRepository, orderID int64, category domain.Category) (*domain.Notification, error) {
	return r.closeActive(ctx, repo, orderID, category, domain.NotificationCancelled)
}

func (r *Router) closeActive(ctx context.Context, repo storage.NotificationRepository, orderID int64, category domain.Category, status domain.NotificationStatus) (*domain.Notification, error) {
	n, err := repo.FindActive(ctx, orderID, category)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, nil
		}
		return nil, err
	}
	return r.close(ctx, repo, n.ID, status)
}

func (r *Router) close(ctx context.Context, repo storage.NotificationRepository, id int64, status domain.NotificationStatus) (*domain.Notification, error) {
	n, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.Status.Active() {
		return n, nil
	}

	if err := repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	n.Status = status

	r.logger.Info("notification closed", zap.Int64("notificationId", id), zap.Int64("orderId", n.OrderID), zap.String("status", string(status)))
	return n, nil
}

// MarkAwaitingCustomerReply parks an Open notification while staff waits on the customer.
func (r *Router) MarkAwaitingCustomerReply(ctx context.Context, id int64) (*domain.Notification, error) {
	var out *domain.Notification
	err := r.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		repo := tx.Notifications()
		n, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch n.Status {
		case domain.NotificationAwaitingCustomerReply:
			out = n
			return nil
		case domain.NotificationOpen:
		default:
			return apperrors.NewConflictError(fmt.Sprintf("notification %d is %s and cannot be reopened", id, n.Status))
		}

		if err := repo.UpdateStatus(ctx, id, domain.NotificationAwaitingCustomerReply); err != nil {
			return err
		}
		n.Status = domain.NotificationAwaitingCustomerReply
		out = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Router) Get(ctx context.Context, id int64) (*domain.Notification, error) {
	return r.tx.Reader().Notifications().FindByID(ctx, id)
}

// ListOpen returns the role's active notifications, newest first.
func (r *Router) ListOpen(ctx context.Context, role domain.Role) ([]domain.Notification, error) {
	list, err := r.tx.Reader().Notifications().ListOpenByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Notification{}
	}
	return list, nil
}

func (r *Router) CountOpen(ctx context.Context, role domain.Role) (int, error) {
	return r.tx.Reader().Notifications().CountOpenByRole(ctx, role)
}
