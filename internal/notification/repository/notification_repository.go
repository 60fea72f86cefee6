package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/storage"
)

const notificationColumns = `id, targetRole, orderId, category, message, status, createdAt, updatedAt`

// mysqlDuplicateEntry is raised when the active-key unique index already holds the pair.
const mysqlDuplicateEntry = 1062

type MySQLNotificationRepository struct {
	db storage.Querier
}

func NewMySQLNotificationRepository(db storage.Querier) *MySQLNotificationRepository {
	return &MySQLNotificationRepository{db: db}
}

func (r *MySQLNotificationRepository) Insert(ctx context.Context, n *domain.Notification) (int64, error) {
	query := `INSERT INTO Notifications (targetRole, orderId, category, message, status) VALUES (?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, n.TargetRole, n.OrderID, n.Category, n.Message, n.Status)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return 0, apperrors.NewConflictError(fmt.Sprintf("order %d already has an active %s notification", n.OrderID, n.Category))
		}
		return 0, fmt.Errorf("inserting notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	n.ID = id

	return id, nil
}

func (r *MySQLNotificationRepository) FindByID(ctx context.Context, id int64) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM Notifications WHERE id = ?`
	return r.findOne(ctx, fmt.Sprintf("notification with id %d not found", id), query, id)
}

func (r *MySQLNotificationRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM Notifications WHERE id = ? FOR UPDATE`
	return r.findOne(ctx, fmt.Sprintf("notification with id %d not found", id), query, id)
}

func (r *MySQLNotificationRepository) FindActive(ctx context.Context, orderID int64, category domain.Category) (*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM Notifications
		WHERE orderId = ? AND category = ? AND status IN ('OPEN', 'AWAITING_CUSTOMER_REPLY')
		FOR UPDATE`
	return r.findOne(ctx, fmt.Sprintf("order %d has no active %s notification", orderID, category), query, orderID, category)
}

func (r *MySQLNotificationRepository) findOne(ctx context.Context, notFound string, query string, args ...any) (*domain.Notification, error) {
	n, err := scanNotification(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying notification: %w", err)
	}
	return n, nil
}

func (r *MySQLNotificationRepository) UpdateStatus(ctx context.Context, id int64, status domain.NotificationStatus) error {
	query := `UPDATE Notifications SET status = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("updating notification status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("notification with id %d not found", id))
	}

	return nil
}

func (r *MySQLNotificationRepository) ListOpenByRole(ctx context.Context, role domain.Role) ([]domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM Notifications
		WHERE targetRole = ? AND status IN ('OPEN', 'AWAITING_CUSTOMER_REPLY')
		ORDER BY createdAt DESC, id DESC`
	return r.list(ctx, query, role)
}

func (r *MySQLNotificationRepository) ListByOrder(ctx context.Context, orderID int64) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM Notifications WHERE orderId = ? ORDER BY id`
	return r.list(ctx, query, orderID)
}

func (r *MySQLNotificationRepository) CountOpenByRole(ctx context.Context, role domain.Role) (int, error) {
	query := `SELECT COUNT(*) FROM Notifications WHERE targetRole = ? AND status = 'OPEN'`

	var count int
	if err := r.db.QueryRowContext(ctx, query, role).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return count, nil
}

func (r *MySQLNotificationRepository) list(ctx context.Context, query string, args ...any) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification row: %w", err)
		}
		notifications = append(notifications, *n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating notification rows: %w", err)
	}

	return notifications, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var (
		n       domain.Notification
		message sql.NullString
	)
	err := row.Scan(&n.ID, &n.TargetRole, &n.OrderID, &n.Category, &message, &n.Status, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	n.Message = message.String
	return &n, nil
}

var _ storage.NotificationRepository = (*MySQLNotificationRepository)(nil)
