package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/domain"
	apperrors "storefront/internal/errors"
	"storefront/internal/notification"
	"storefront/internal/storage"
)

type LineRequest struct {
	ProductID int
	Quantity  int
}

type CreateOrderRequest struct {
	CustomerID  string
	Lines       []LineRequest
	Reservation bool
}

// CreateOrder turns finalized cart lines into an order. Regular orders must be covered by
// current stock but take none of it yet. Reservations skip the stock check entirely and
// open a ReservationRequest for logistics.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Outcome, error) {
	// Bloque 1: validar request
	lines, err := validateCreate(req)
	if err != nil {
		return nil, err
	}

	var out Outcome
	err = s.tx.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		// Bloque 2: snapshot de precios
		ids := make([]int, len(lines))
		for i, l := range lines {
			ids[i] = l.ProductID
		}
		products, err := tx.Products().FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[int]domain.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		order := &domain.Order{
			CustomerID:    req.CustomerID,
			IsReservation: req.Reservation,
			Status: domain.Status{
				Phase:         domain.PhaseAwaitingShipmentChoice,
				PaymentMethod: domain.PaymentMethodUnset,
				DeliveryMode:  domain.DeliveryModePickup,
			},
		}
		for _, l := range lines {
			p, ok := byID[l.ProductID]
			if !ok {
				return apperrors.NewNotFoundError(fmt.Sprintf("product with id %d not found", l.ProductID))
			}
			order.Lines = append(order.Lines, domain.OrderLine{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				UnitPrice: p.Price,
			})
		}

		// Bloque 3: verificar stock (solo pedidos normales)
		if req.Reservation {
			order.Status.Phase = domain.PhaseReservationRequested
		} else if err := s.ledger.ReserveCheck(ctx, tx.Products(), order.Lines); err != nil {
			return err
		}

		order.Recalculate(s.cfg.Shipping)

		// Bloque 4: persistir
		id, err := tx.Orders().Insert(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id

		if req.Reservation {
			n, _, err := s.router.Raise(ctx, tx.Notifications(), notification.RaiseRequest{
				TargetRole: domain.RoleLogistics,
				OrderID:    id,
				Category:   domain.CategoryReservationRequest,
				Message:    fmt.Sprintf("Customer %s requested a reservation for order %d", req.CustomerID, id),
			})
			if err != nil {
				return err
			}
			out.Notification = n
		}

		out.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.Int64("orderId", out.Order.ID),
		zap.String("customerId", out.Order.CustomerID),
		zap.String("phase", string(out.Order.Status.Phase)),
		zap.String("total", out.Order.Total.String()),
		zap.Int("lines", len(out.Order.Lines)),
	)
	return &out, nil
}

// validateCreate checks the request and merges lines of the same product.
func validateCreate(req CreateOrderRequest) ([]LineRequest, error) {
	var details []apperrors.ValidationDetail

	if strings.TrimSpace(req.CustomerID) == "" {
		details = append(details, apperrors.ValidationDetail{Field: "customerId", Message: "customerId is required"})
	}
	if len(req.Lines) == 0 {
		details = append(details, apperrors.ValidationDetail{Field: "lines", Message: "at least one line is required"})
	}

	merged := make([]LineRequest, 0, len(req.Lines))
	index := make(map[int]int, len(req.Lines))
	for i, l := range req.Lines {
		if l.ProductID <= 0 {
			details = append(details, apperrors.ValidationDetail{
				Field:   fmt.Sprintf("lines[%d].productId", i),
				Message: "productId must be a positive integer",
			})
			continue
		}
		if l.Quantity < 1 {
			details = append(details, apperrors.ValidationDetail{
				Field:   fmt.Sprintf("lines[%d].quantity", i),
				Message: "quantity must be at least 1",
			})
			continue
		}
		if pos, seen := index[l.ProductID]; seen {
			merged[pos].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}

	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid order request", details...)
	}
	return merged, nil
}
