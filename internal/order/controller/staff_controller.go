package controller

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"storefront/internal/auth"
	"storefront/internal/domain"
	"storefront/internal/dto"
	"storefront/internal/httpx"
	"storefront/internal/order/service"
	"storefront/internal/workflow"
)

type FulfillmentWorkflow interface {
	Advance(ctx context.Context, actor domain.Actor, orderID int64, req workflow.AdvanceRequest) (*service.Outcome, error)
	Board(ctx context.Context, actor domain.Actor) (*workflow.Board, error)
	DispatchHistory(ctx context.Context, actor domain.Actor) ([]domain.Order, error)
}

type ExceptionWorkflow interface {
	Resolve(ctx context.Context, actor domain.Actor, notificationID int64, outcome workflow.ResolutionOutcome) (*service.Outcome, error)
	AwaitCustomer(ctx context.Context, actor domain.Actor, notificationID int64) (*domain.Notification, error)
	Board(ctx context.Context, actor domain.Actor) (*workflow.Board, error)
	Raise(ctx context.Context, actor domain.Actor, orderID int64, category domain.Category, message string) (*service.Outcome, error)
}

// OrderTrail reads an order together with every notification raised for it.
type OrderTrail interface {
	Get(ctx context.Context, orderID int64) (*domain.Order, error)
	Notifications(ctx context.Context, orderID int64) ([]domain.Notification, error)
}

type StaffController struct {
	fulfillment FulfillmentWorkflow
	exceptions  ExceptionWorkflow
	orders      OrderTrail
	*httpx.Responder
	logger *zap.Logger
}

func NewStaffController(fulfillment FulfillmentWorkflow, exceptions ExceptionWorkflow, orders OrderTrail, logger *zap.Logger) *StaffController {
	return &StaffController{
		fulfillment: fulfillment,
		exceptions:  exceptions,
		orders:      orders,
		Responder:   httpx.NewResponder(logger),
		logger:      logger,
	}
}

func (c *StaffController) request(w http.ResponseWriter, r *http.Request) (string, *zap.Logger, domain.Actor, bool) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		c.WriteErrorResponse(w, traceID, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return traceID, logger, actor, false
	}
	return traceID, logger.With(zap.String("actorId", actor.ID)), actor, true
}

func (c *StaffController) LogisticsBoard(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	b, err := c.fulfillment.Board(r.Context(), actor)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromBoard(string(domain.RoleLogistics), b))
}

func (c *StaffController) SupportBoard(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	b, err := c.exceptions.Board(r.Context(), actor)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromBoard(string(domain.RoleCustomerSupport), b))
}

func (c *StaffController) Dispatches(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	orders, err := c.fulfillment.DispatchHistory(r.Context(), actor)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.OrderListResponse{Orders: dto.FromOrders(orders)})
}

// Order shows an order with its full notification trail.
func (c *StaffController) Order(w http.ResponseWriter, r *http.Request) {
	traceID, logger, _, ok := c.request(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.Int64Param(r, "orderId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	order, err := c.orders.Get(r.Context(), orderID)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	trail, err := c.orders.Notifications(r.Context(), orderID)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.OrderDetailResponse{
		Order:         *dto.FromOrder(order),
		Notifications: dto.FromNotifications(trail),
	})
}

func (c *StaffController) Advance(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.Int64Param(r, "orderId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	var req dto.AdvanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	out, err := c.fulfillment.Advance(r.Context(), actor, orderID, workflow.AdvanceRequest{
		Action:       workflow.Action(strings.TrimSpace(req.Action)),
		TrackingCode: req.TrackingCode,
		Message:      req.Message,
	})
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromOutcome(traceID, out))
}

func (c *StaffController) RaiseException(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	orderID, err := httpx.Int64Param(r, "orderId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	var req dto.RaiseExceptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	category := domain.Category(strings.ToUpper(strings.TrimSpace(req.Category)))
	out, err := c.exceptions.Raise(r.Context(), actor, orderID, category, req.Message)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusCreated, dto.FromOutcome(traceID, out))
}

func (c *StaffController) ResolveException(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	notificationID, err := httpx.Int64Param(r, "notificationId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	var req dto.ResolveExceptionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	out, err := c.exceptions.Resolve(r.Context(), actor, notificationID, workflow.ResolutionOutcome(strings.TrimSpace(req.Outcome)))
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromOutcome(traceID, out))
}

func (c *StaffController) AwaitCustomer(w http.ResponseWriter, r *http.Request) {
	traceID, logger, actor, ok := c.request(w, r)
	if !ok {
		return
	}
	notificationID, err := httpx.Int64Param(r, "notificationId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	n, err := c.exceptions.AwaitCustomer(r.Context(), actor, notificationID)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}
	c.WriteJSON(w, http.StatusOK, dto.FromNotification(n))
}
