package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/dto"
	"storefront/internal/httpx"
	"storefront/internal/order/service"
)

type CustomerOrders interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.Outcome, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	GetForCustomer(ctx context.Context, orderID int64, customerID string) (*domain.Order, error)
	ChooseShipping(ctx context.Context, orderID int64, customerID string, mode domain.DeliveryMode) (*service.Outcome, error)
	StartGatewayPayment(ctx context.Context, orderID int64, customerID string, returnURL string) (*service.PaymentRedirect, error)
	SelectBankTransfer(ctx context.Context, orderID int64, customerID string) (*service.Outcome, error)
}

type CustomerController struct {
	orders CustomerOrders
	*httpx.Responder
	logger *zap.Logger
}

func NewCustomerController(orders CustomerOrders, logger *zap.Logger) *CustomerController {
	return &CustomerController{
		orders:    orders,
		Responder: httpx.NewResponder(logger),
		logger:    logger,
	}
}

// request resolves the trace id, a scoped logger and the authenticated customer.
func (c *CustomerController) request(w http.ResponseWriter, r *http.Request) (string, *zap.Logger, domain.Actor, bool) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		c.WriteErrorResponse(w, traceID, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return traceID, logger, actor, false
	}
	return traceID, logger.With(zap.String("customerId", actor.ID)), actor, true
}

// Reserve opens a reservation order for products that may be out of stock.
func (c *CustomerController) Reserve(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}

	var req dto.ReservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid JSON body", zap.Error(err))
		c.HandleError(w, traceID, err, logger)
		return
	}

	lines := make([]service.LineRequest, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.LineRequest{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	out, err := c.orders.CreateOrder(r.Context(), service.CreateOrderRequest{
		CustomerID:  actor.ID,
		Lines:       lines,
		Reservation: true,
	})
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	logger.Info("reservation requested", zap.Int64("orderId", out.Order.ID))
	c.WriteJSON(w, http.StatusCreated, dto.FromOutcome(traceID, out))
}

func (c *CustomerController) MyOrders(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}

	orders, err := c.orders.ListByCustomer(r.Context(), actor.ID)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.OrderListResponse{Orders: dto.FromOrders(orders)})
}

func (c *CustomerController) Get(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.Int64Param(r, "orderId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	order, err := c.orders.GetForCustomer(r.Context(), orderID, actor.ID)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromOrder(order))
}

func (c *CustomerController) ChooseShipping(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.Int64Param(r, "orderId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	var req dto.ShippingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	mode := domain.DeliveryMode(strings.ToUpper(strings.TrimSpace(req.DeliveryMode)))
	out, err := c.orders.ChooseShipping(r.Context(), orderID, actor.ID, mode)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromOutcome(traceID, out))
}

// PayWithGateway opens a gateway transaction and returns where to send the customer.
func (c *CustomerController) PayWithGateway(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.Int64Param(r, "orderId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	var req dto.GatewayPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	redirect, err := c.orders.StartGatewayPayment(r.Context(), orderID, actor.ID, strings.TrimSpace(req.ReturnURL))
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	logger.Info("gateway payment started", zap.Int64("orderId", orderID))
	c.WriteJSON(w, http.StatusOK, dto.PaymentRedirectResponse{
		TraceID:   traceID,
		Order:     dto.FromOrder(redirect.Order),
		URL:       redirect.URL,
		Token:     redirect.Token,
		Timestamp: time.Now().UTC(),
	})
}

func (c *CustomerController) PayWithTransfer(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.Int64Param(r, "orderId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	out, err := c.orders.SelectBankTransfer(r.Context(), orderID, actor.ID)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromOutcome(traceID, out))
}
