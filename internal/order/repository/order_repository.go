package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/storage"
)

const orderColumns = `id, customerId, phase, paymentMethod, deliveryMode, isReservation,
	stockCommitted, total, trackingCode, gatewayToken, createdAt, updatedAt`

type MySQLOrderRepository struct {
	db    storage.Querier
	lines *MySQLOrderLineRepository
}

func NewMySQLOrderRepository(db storage.Querier) *MySQLOrderRepository {
	return &MySQLOrderRepository{db: db, lines: NewMySQLOrderLineRepository(db)}
}

// Insert stores the order and its lines. IDs are written back into order.
func (r *MySQLOrderRepository) Insert(ctx context.Context, order *domain.Order) (int64, error) {
	query := `
		INSERT INTO Orders (customerId, phase, paymentMethod, deliveryMode, isReservation,
		                    stockCommitted, total, trackingCode, gatewayToken)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		order.CustomerID, order.Status.Phase, order.Status.PaymentMethod, order.Status.DeliveryMode,
		order.IsReservation, order.StockCommitted, order.Total, order.TrackingCode, order.GatewayToken,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	order.ID = id

	if err := r.keepGatewayToken(ctx, order); err != nil {
		return 0, err
	}

	for i := range order.Lines {
		order.Lines[i].OrderID = id
		lineID, err := r.lines.Insert(ctx, order.Lines[i])
		if err != nil {
			return 0, err
		}
		order.Lines[i].ID = lineID
	}

	return id, nil
}

func (r *MySQLOrderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM Orders WHERE id = ?`
	return r.findOne(ctx, query, id, fmt.Sprintf("order with id %d not found", id))
}

// FindByIDForUpdate locks the order row. Concurrent transitions on the same order serialize here.
func (r *MySQLOrderRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM Orders WHERE id = ? FOR UPDATE`
	return r.findOne(ctx, query, id, fmt.Sprintf("order with id %d not found", id))
}

// FindByGatewayToken resolves any token ever issued for the order, not only the latest one.
func (r *MySQLOrderRepository) FindByGatewayToken(ctx context.Context, token string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM Orders
		WHERE id = (SELECT orderId FROM OrderGatewayTokens WHERE token = ?)`
	return r.findOne(ctx, query, token, "no order holds the gateway token")
}

func (r *MySQLOrderRepository) keepGatewayToken(ctx context.Context, order *domain.Order) error {
	if order.GatewayToken == nil {
		return nil
	}
	query := `
		INSERT INTO OrderGatewayTokens (token, orderId) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE orderId = orderId`
	if _, err := r.db.ExecContext(ctx, query, *order.GatewayToken, order.ID); err != nil {
		return fmt.Errorf("recording gateway token: %w", err)
	}
	return nil
}

func (r *MySQLOrderRepository) findOne(ctx context.Context, query string, arg any, notFound string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(notFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}

	order.Lines, err = r.lines.FindByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *MySQLOrderRepository) Update(ctx context.Context, order *domain.Order, expected domain.Phase) error {
	query := `
		UPDATE Orders
		SET phase = ?, paymentMethod = ?, deliveryMode = ?, stockCommitted = ?,
		    total = ?, trackingCode = ?, gatewayToken = ?
		WHERE id = ? AND phase = ?`

	result, err := r.db.ExecContext(ctx, query,
		order.Status.Phase, order.Status.PaymentMethod, order.Status.DeliveryMode, order.StockCommitted,
		order.Total, order.TrackingCode, order.GatewayToken,
		order.ID, expected,
	)
	if err != nil {
		return fmt.Errorf("updating order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("order %d is no longer in phase %s", order.ID, expected))
	}

	return r.keepGatewayToken(ctx, order)
}

func (r *MySQLOrderRepository) ListByPhases(ctx context.Context, phases []domain.Phase, newestFirst bool) ([]domain.Order, error) {
	if len(phases) == 0 {
		return nil, nil
	}

	direction := "ASC"
	if newestFirst {
		direction = "DESC"
	}

	placeholders, args := phaseArgs(phases)
	query := fmt.Sprintf(`SELECT %s FROM Orders WHERE phase IN (%s) ORDER BY createdAt %s, id %s`,
		orderColumns, placeholders, direction, direction)

	return r.list(ctx, query, args...)
}

func (r *MySQLOrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM Orders WHERE customerId = ? ORDER BY createdAt DESC, id DESC`
	return r.list(ctx, query, customerID)
}

func (r *MySQLOrderRepository) CountByPhases(ctx context.Context, phases []domain.Phase) (int, error) {
	if len(phases) == 0 {
		return 0, nil
	}

	placeholders, args := phaseArgs(phases)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM Orders WHERE phase IN (%s)`, placeholders)

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting orders: %w", err)
	}
	return count, nil
}

func (r *MySQLOrderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning order row: %w", err)
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating order rows: %w", err)
	}
	rows.Close()

	// Lines are loaded after the cursor is closed so a *sql.Tx is free for the next query.
	for i := range orders {
		orders[i].Lines, err = r.lines.FindByOrderID(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return orders, nil
}

func phaseArgs(phases []domain.Phase) (string, []any) {
	placeholders := make([]string, len(phases))
	args := make([]any, len(phases))
	for i, p := range phases {
		placeholders[i] = "?"
		args[i] = p
	}
	return strings.Join(placeholders, ", "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order        domain.Order
		trackingCode sql.NullString
		gatewayToken sql.NullString
	)
	err := row.Scan(
		&order.ID, &order.CustomerID, &order.Status.Phase, &order.Status.PaymentMethod,
		&order.Status.DeliveryMode, &order.IsReservation, &order.StockCommitted, &order.Total,
		&trackingCode, &gatewayToken, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if trackingCode.Valid {
		order.TrackingCode = &trackingCode.String
	}
	if gatewayToken.Valid {
		order.GatewayToken = &gatewayToken.String
	}
	return &order, nil
}

var _ storage.OrderRepository = (*MySQLOrderRepository)(nil)
