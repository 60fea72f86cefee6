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

const productColumns = `id, name, description, price, stock, category, createdAt, updatedAt`

type MySQLRepository struct {
	db storage.Querier
}

func NewMySQLRepository(db storage.Querier) *MySQLRepository {
	return &MySQLRepository{db: db}
}

func (r *MySQLRepository) FindByID(ctx context.Context, id int) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM Product WHERE id = ?`
	return r.findOne(ctx, query, id)
}

// FindByIDForUpdate locks the product row until the surrounding transaction ends.
func (r *MySQLRepository) FindByIDForUpdate(ctx context.Context, id int) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM Product WHERE id = ? FOR UPDATE`
	return r.findOne(ctx, query, id)
}

func (r *MySQLRepository) findOne(ctx context.Context, query string, id int) (*domain.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying product by id: %w", err)
	}
	return p, nil
}

func (r *MySQLRepository) FindByIDs(ctx context.Context, ids []int) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM Product
		WHERE id IN (%s)
		ORDER BY id`,
		productColumns, strings.Join(placeholders, ", "),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating product rows: %w", err)
	}

	return products, nil
}

func (r *MySQLRepository) DecrementStock(ctx context.Context, id int, quantity int) (bool, error) {
	query := `UPDATE Product SET stock = stock - ? WHERE id = ? AND stock >= ?`

	result, err := r.db.ExecContext(ctx, query, quantity, id, quantity)
	if err != nil {
		return false, fmt.Errorf("decrementing stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

func (r *MySQLRepository) IncrementStock(ctx context.Context, id int, quantity int) error {
	query := `UPDATE Product SET stock = stock + ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, quantity, id)
	if err != nil {
		return fmt.Errorf("incrementing stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", id))
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p           domain.Product
		description sql.NullString
		category    sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Name, &description, &p.Price, &p.Stock, &category,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Description = description.String
	p.Category = category.String
	return &p, nil
}

var _ storage.ProductRepository = (*MySQLRepository)(nil)
