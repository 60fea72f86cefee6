package repository

import (
	"context"
	"fmt"

	"storefront/internal/domain"
	"storefront/internal/storage"
)

type MySQLOrderLineRepository struct {
	db storage.Querier
}

func NewMySQLOrderLineRepository(db storage.Querier) *MySQLOrderLineRepository {
	return &MySQLOrderLineRepository{db: db}
}

func (r *MySQLOrderLineRepository) Insert(ctx context.Context, line domain.OrderLine) (int64, error) {
	query := `INSERT INTO OrderLines (orderId, productId, quantity, unitPrice) VALUES (?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice)
	if err != nil {
		return 0, fmt.Errorf("inserting order line: %w", err)
	}

	lastInsertID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}

	return lastInsertID, nil
}

func (r *MySQLOrderLineRepository) FindByOrderID(ctx context.Context, orderID int64) ([]domain.OrderLine, error) {
	query := `
		SELECT id, orderId, productId, quantity, unitPrice
		FROM OrderLines
		WHERE orderId = ?
		ORDER BY productId`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("querying order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scanning order line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order lines: %w", err)
	}

	return lines, nil
}
