// Package mysqlstore binds the MySQL repositories into storage.TxManager.
package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "storefront/internal/errors"
	"storefront/internal/infrastructure/mysql"
	notificationrepo "storefront/internal/notification/repository"
	orderrepo "storefront/internal/order/repository"
	productrepo "storefront/internal/product/repository"
	"storefront/internal/storage"
)

type repositories struct {
	products      *productrepo.MySQLRepository
	orders        *orderrepo.MySQLOrderRepository
	notifications *notificationrepo.MySQLNotificationRepository
}

func newRepositories(q storage.Querier) *repositories {
	return &repositories{
		products:      productrepo.NewMySQLRepository(q),
		orders:        orderrepo.NewMySQLOrderRepository(q),
		notifications: notificationrepo.NewMySQLNotificationRepository(q),
	}
}

func (r *repositories) Products() storage.ProductRepository           { return r.products }
func (r *repositories) Orders() storage.OrderRepository               { return r.orders }
func (r *repositories) Notifications() storage.NotificationRepository { return r.notifications }

type TxManager struct {
	db      *sql.DB
	timeout time.Duration
	reader  *repositories
	logger  *zap.Logger
}

func NewTxManager(db *sql.DB, timeout time.Duration, logger *zap.Logger) *TxManager {
	return &TxManager{
		db:      db,
		timeout: timeout,
		reader:  newRepositories(db),
		logger:  logger,
	}
}

func (m *TxManager) Reader() storage.Tx {
	return m.reader
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	txCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	tx, err := m.db.BeginTx(txCtx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		m.logger.Error("failed to begin transaction", zap.Error(err))
		return fmt.Errorf("beginning transaction: %w", err)
	}
	// MySQL ignores rollback if already committed.
	defer tx.Rollback()

	if err := fn(txCtx, newRepositories(tx)); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		m.logger.Error("failed to commit transaction", zap.Error(err))
		return classify(fmt.Errorf("committing transaction: %w", err))
	}

	return nil
}

func classify(err error) error {
	if mysql.IsDeadlock(err) {
		return apperrors.WrapDeadlockError(err)
	}
	return err
}

var _ storage.TxManager = (*TxManager)(nil)
