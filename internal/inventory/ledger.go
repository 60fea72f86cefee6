// Package inventory owns product stock. Every mutation runs on repositories bound to the
// caller's transaction, so a failed line rolls back the lines before it.
package inventory

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/infrastructure/metrics"
	"storefront/internal/storage"
)

type Ledger struct {
	logger  *zap.Logger
	metrics *metrics.Recorder
}

func NewLedger(logger *zap.Logger, recorder *metrics.Recorder) *Ledger {
	return &Ledger{logger: logger, metrics: recorder}
}

type demand struct {
	productID int
	quantity  int
}

// demands merges lines of the same product and orders them by product id (anti-deadlock).
func demands(lines []domain.OrderLine) []demand {
	totals := make(map[int]int, len(lines))
	for _, l := range lines {
		totals[l.ProductID] += l.Quantity
	}
	out := make([]demand, 0, len(totals))
	for id, qty := range totals {
		out = append(out, demand{productID: id, quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].productID < out[j].productID })
	return out
}

// ReserveCheck verifies stock covers every line without changing it.
func (l *Ledger) ReserveCheck(ctx context.Context, products storage.ProductRepository, lines []domain.OrderLine) error {
	for _, d := range demands(lines) {
		p, err := products.FindByID(ctx, d.productID)
		if err != nil {
			return err
		}
		if p.Stock < d.quantity {
			l.metrics.StockInsufficient()
			return apperrors.NewStockInsufficientError(d.productID, d.quantity, p.Stock)
		}
	}
	return nil
}

// Decrement takes stock for every line or fails with StockInsufficientError.
func (l *Ledger) Decrement(ctx context.Context, products storage.ProductRepository, lines []domain.OrderLine) error {
	for _, d := range demands(lines) {
		p, err := products.FindByIDForUpdate(ctx, d.productID)
		if err != nil {
			return err
		}
		if p.Stock < d.quantity {
			l.metrics.StockInsufficient()
			l.logger.Warn("stock insufficient", zap.Int("productId", d.productID), zap.Int("requested", d.quantity), zap.Int("available", p.Stock))
			return apperrors.NewStockInsufficientError(d.productID, d.quantity, p.Stock)
		}

		ok, err := products.DecrementStock(ctx, d.productID, d.quantity)
		if err != nil {
			return err
		}
		if !ok {
			l.metrics.StockInsufficient()
			return apperrors.NewStockInsufficientError(d.productID, d.quantity, p.Stock)
		}

		l.logger.Debug("stock decremented", zap.Int("productId", d.productID), zap.Int("quantity", d.quantity), zap.Int("remaining", p.Stock-d.quantity))
	}
	return nil
}

// Restore returns exactly the quantities of lines to stock.
func (l *Ledger) Restore(ctx context.Context, products storage.ProductRepository, lines []domain.OrderLine) error {
	for _, d := range demands(lines) {
		if err := products.IncrementStock(ctx, d.productID, d.quantity); err != nil {
			return fmt.Errorf("restoring stock for product %d: %w", d.productID, err)
		}
		l.logger.Debug("stock restored", zap.Int("productId", d.productID), zap.Int("quantity", d.quantity))
	}
	return nil
}

// Restock adds received units to a product.
func (l *Ledger) Restock(ctx context.Context, products storage.ProductRepository, productID int, quantity int) (*domain.Product, error) {
	if quantity < 1 {
		return nil, apperrors.NewValidationError("invalid restock quantity", apperrors.ValidationDetail{
			Field:   "quantity",
			Message: "quantity must be at least 1",
		})
	}

	if err := products.IncrementStock(ctx, productID, quantity); err != nil {
		return nil, err
	}

	p, err := products.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	l.logger.Info("product restocked", zap.Int("productId", productID), zap.Int("quantity", quantity), zap.Int("stock", p.Stock))
	return p, nil
}
