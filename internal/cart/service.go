package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/order/service"
	"storefront/internal/storage"
)

// OrderCreator finalizes a cart into an order.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.Outcome, error)
}

type Service struct {
	store    Store
	products storage.ProductRepository
	orders   OrderCreator
	logger   *zap.Logger
}

func NewService(store Store, products storage.ProductRepository, orders OrderCreator, logger *zap.Logger) *Service {
	return &Service{store: store, products: products, orders: orders, logger: logger}
}

func validateSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return apperrors.NewValidationError("missing session", apperrors.ValidationDetail{
			Field:   "X-Session-ID",
			Message: "a session id is required",
		})
	}
	return nil
}

// Add increases a product's quantity in the cart.
func (s *Service) Add(ctx context.Context, sessionID string, productID, quantity int) (*View, error) {
	if quantity < 1 {
		return nil, quantityError("quantity must be at least 1")
	}
	return s.mutate(ctx, sessionID, productID, func(current int) int { return current + quantity })
}

// Update sets a product's quantity. Zero removes the line.
func (s *Service) Update(ctx context.Context, sessionID string, productID, quantity int) (*View, error) {
	if quantity < 0 {
		return nil, quantityError("quantity must not be negative")
	}
	return s.mutate(ctx, sessionID, productID, func(int) int { return quantity })
}

func (s *Service) Remove(ctx context.Context, sessionID string, productID int) (*View, error) {
	return s.mutate(ctx, sessionID, productID, func(int) int { return 0 })
}

func (s *Service) mutate(ctx context.Context, sessionID string, productID int, next func(current int) int) (*View, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	c, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	quantity := next(c.quantityOf(productID))
	if quantity > 0 {
		p, err := s.products.FindByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		if !p.Covers(quantity) {
			return nil, quantityError(fmt.Sprintf("only %d units of product %d in stock", p.Stock, productID))
		}
	}

	c.set(productID, quantity)
	if err := s.store.Save(ctx, sessionID, c); err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := validateSession(sessionID); err != nil {
		return err
	}
	return s.store.Delete(ctx, sessionID)
}

func (s *Service) View(ctx context.Context, sessionID string) (*View, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	c, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

func (s *Service) view(ctx context.Context, c *Cart) (*View, error) {
	v := &View{Lines: []ViewLine{}, Subtotal: decimal.Zero}
	if len(c.Lines) == 0 {
		return v, nil
	}

	ids := make([]int, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.ProductID
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, l := range c.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			continue
		}
		subtotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		v.Lines = append(v.Lines, ViewLine{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  l.Quantity,
			UnitPrice: p.Price,
			Subtotal:  subtotal,
		})
		v.Subtotal = v.Subtotal.Add(subtotal)
	}
	return v, nil
}

// Checkout finalizes the cart into an order and discards it only if that succeeds.
func (s *Service) Checkout(ctx context.Context, sessionID, customerID string, reservation bool) (*service.Outcome, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}
	c, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(c.Lines) == 0 {
		return nil, apperrors.NewValidationError("cart is empty")
	}

	lines := make([]service.LineRequest, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = service.LineRequest{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	out, err := s.orders.CreateOrder(ctx, service.CreateOrderRequest{
		CustomerID:  customerID,
		Lines:       lines,
		Reservation: reservation,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("discarding cart after checkout failed", zap.String("sessionId", sessionID), zap.Error(err))
	}
	return out, nil
}

func quantityError(msg string) error {
	return apperrors.NewValidationError("invalid quantity", apperrors.ValidationDetail{
		Field:   "quantity",
		Message: msg,
	})
}
