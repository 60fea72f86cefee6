package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/dto"
	"storefront/internal/httpx"
	"storefront/internal/order/service"
)

// SessionHeader carries the cart session id.
const SessionHeader = "X-Session-ID"

type CartService interface {
	Add(ctx context.Context, sessionID string, productID, quantity int) (*cart.View, error)
	Update(ctx context.Context, sessionID string, productID, quantity int) (*cart.View, error)
	Remove(ctx context.Context, sessionID string, productID int) (*cart.View, error)
	Clear(ctx context.Context, sessionID string) error
	View(ctx context.Context, sessionID string) (*cart.View, error)
	Checkout(ctx context.Context, sessionID, customerID string, reservation bool) (*service.Outcome, error)
}

type CartController struct {
	carts CartService
	*httpx.Responder
	logger *zap.Logger
}

func NewCartController(carts CartService, logger *zap.Logger) *CartController {
	return &CartController{
		carts:     carts,
		Responder: httpx.NewResponder(logger),
		logger:    logger,
	}
}

func (c *CartController) View(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))

	v, err := c.carts.View(r.Context(), r.Header.Get(SessionHeader))
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromCart(v))
}

func (c *CartController) Add(w http.ResponseWriter, r *http.Request) {
	c.write(w, r, c.carts.Add)
}

// Update sets a line's quantity. Zero removes the line.
func (c *CartController) Update(w http.ResponseWriter, r *http.Request) {
	c.write(w, r, c.carts.Update)
}

func (c *CartController) write(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, sessionID string, productID, quantity int) (*cart.View, error)) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))

	var req dto.CartItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	v, err := apply(r.Context(), r.Header.Get(SessionHeader), req.ProductID, req.Quantity)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromCart(v))
}

func (c *CartController) Remove(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))

	productID, err := httpx.Int64Param(r, "productId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	v, err := c.carts.Remove(r.Context(), r.Header.Get(SessionHeader), int(productID))
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromCart(v))
}

func (c *CartController) Clear(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))

	if err := c.carts.Clear(r.Context(), r.Header.Get(SessionHeader)); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout turns the session cart into an order for the authenticated customer.
func (c *CartController) Checkout(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))

	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		c.WriteErrorResponse(w, traceID, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return
	}

	var req dto.CheckoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	out, err := c.carts.Checkout(r.Context(), r.Header.Get(SessionHeader), actor.ID, req.Reservation)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	logger.Info("cart checked out",
		zap.String("customerId", actor.ID),
		zap.Int64("orderId", out.Order.ID),
		zap.Bool("reservation", req.Reservation),
	)
	c.WriteJSON(w, http.StatusCreated, dto.FromOutcome(traceID, out))
}
