package outbound

import (
	"context"

	"go.uber.org/zap"

	"storefront/internal/domain"
)

// LogNotifier writes customer messages to the log. Used when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyCustomer(ctx context.Context, msg domain.CustomerMessage) error {
	n.logger.Info("customer notification",
		zap.String("kind", string(msg.Kind)),
		zap.Int64("orderId", msg.OrderID),
		zap.String("customerId", msg.CustomerID),
		zap.String("trackingCode", msg.TrackingCode),
	)
	return nil
}
