package product

import (
	"net/http"

	"go.uber.org/zap"

	"storefront/internal/httpx"
)

type Controller struct {
	useCase SearchUseCase
	*httpx.Responder
	logger *zap.Logger
}

func NewController(useCase SearchUseCase, logger *zap.Logger) *Controller {
	return &Controller{
		useCase:   useCase,
		Responder: httpx.NewResponder(logger),
		logger:    logger,
	}
}

func (c *Controller) HandleSearchProducts(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))

	var req SearchProductsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	resp, err := c.useCase.SearchProducts(r.Context(), req)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	c.WriteJSON(w, http.StatusOK, resp)
}

func (c *Controller) HandleRestock(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))

	productID, err := httpx.Int64Param(r, "productId")
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	var req RestockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	resp, err := c.useCase.Restock(r.Context(), int(productID), req)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	c.WriteJSON(w, http.StatusOK, resp)
}
