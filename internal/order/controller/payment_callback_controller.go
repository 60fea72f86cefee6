package controller

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"storefront/internal/dto"
	"storefront/internal/httpx"
	"storefront/internal/order/service"
)

type PaymentCommitter interface {
	CommitGatewayPayment(ctx context.Context, token string) (*service.Outcome, error)
}

// PaymentCallbackController receives the gateway return. It is called by the customer's
// browser, so it carries no bearer token.
type PaymentCallbackController struct {
	payments PaymentCommitter
	*httpx.Responder
	logger *zap.Logger
}

func NewPaymentCallbackController(payments PaymentCommitter, logger *zap.Logger) *PaymentCallbackController {
	return &PaymentCallbackController{
		payments:  payments,
		Responder: httpx.NewResponder(logger),
		logger:    logger,
	}
}

func (c *PaymentCallbackController) WebpayReturn(w http.ResponseWriter, r *http.Request) {
	traceID := httpx.TraceID(r)
	logger := c.logger.With(zap.String("traceId", traceID))

	if err := r.ParseForm(); err != nil {
		logger.Warn("invalid callback form", zap.Error(err))
	}

	// Webpay sends TBK_TOKEN without token_ws when the buyer aborts on the payment form.
	token := r.FormValue("token_ws")
	if token == "" && r.FormValue("TBK_TOKEN") != "" {
		logger.Info("payment aborted by customer", zap.String("buyOrder", r.FormValue("TBK_ORDEN_COMPRA")))
		c.WriteErrorResponse(w, traceID, http.StatusConflict, "PAYMENT_ABORTED", "the payment was aborted, the order can be paid again")
		return
	}

	out, err := c.payments.CommitGatewayPayment(r.Context(), token)
	if err != nil {
		c.HandleError(w, traceID, err, logger)
		return
	}

	logger.Info("gateway payment committed",
		zap.Int64("orderId", out.Order.ID),
		zap.Bool("replayed", out.Replayed),
	)
	c.WriteJSON(w, http.StatusOK, dto.FromOutcome(traceID, out))
}
