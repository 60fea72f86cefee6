// Package storage declares the persistence ports shared by the order, inventory and
// notification components. Implementations live under internal/infrastructure.
package storage

import (
	"context"
	"database/sql"

	"storefront/internal/domain"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type ProductRepository interface {
	FindByID(ctx context.Context, id int) (*domain.Product, error)
	FindByIDForUpdate(ctx context.Context, id int) (*domain.Product, error)
	FindByIDs(ctx context.Context, ids []int) ([]domain.Product, error)
	// DecrementStock subtracts quantity only when stock >= quantity. It reports false otherwise.
	DecrementStock(ctx context.Context, id int, quantity int) (bool, error)
	IncrementStock(ctx context.Context, id int, quantity int) error
}

type OrderRepository interface {
	Insert(ctx context.Context, order *domain.Order) (int64, error)
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	FindByGatewayToken(ctx context.Context, token string) (*domain.Order, error)
	// Update persists status, total, tracking code and gateway token, guarded by the phase
	// the caller read. A mismatch returns a ConflictError.
	Update(ctx context.Context, order *domain.Order, expected domain.Phase) error
	ListByPhases(ctx context.Context, phases []domain.Phase, newestFirst bool) ([]domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	CountByPhases(ctx context.Context, phases []domain.Phase) (int, error)
}

type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) (int64, error)
	FindByID(ctx context.Context, id int64) (*domain.Notification, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Notification, error)
	// FindActive returns the Open or AwaitingCustomerReply notification for the pair, or NotFoundError.
	FindActive(ctx context.Context, orderID int64, category domain.Category) (*domain.Notification, error)
	UpdateStatus(ctx context.Context, id int64, status domain.NotificationStatus) error
	ListOpenByRole(ctx context.Context, role domain.Role) ([]domain.Notification, error)
	ListByOrder(ctx context.Context, orderID int64) ([]domain.Notification, error)
	CountOpenByRole(ctx context.Context, role domain.Role) (int, error)
}

// Tx groups repositories that share one unit of work.
type Tx interface {
	Products() ProductRepository
	Orders() OrderRepository
	Notifications() NotificationRepository
}

type TxManager interface {
	// WithinTx runs fn atomically. Any error returned by fn rolls the unit back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Reader returns repositories for reads outside a transaction.
	Reader() Tx
}
