package payment

import (
	"context"

	"go.uber.org/zap"

	"storefront/internal/infrastructure/metrics"
)

type instrumented struct {
	next    Gateway
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// Instrument counts gateway calls by outcome and logs failures.
func Instrument(next Gateway, recorder *metrics.Recorder, logger *zap.Logger) Gateway {
	return &instrumented{next: next, metrics: recorder, logger: logger}
}

func (g *instrumented) Create(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	resp, err := g.next.Create(ctx, req)
	if err != nil {
		g.metrics.GatewayCall("create", "error")
		g.logger.Warn("gateway create failed", zap.String("buyOrder", req.BuyOrder), zap.Error(err))
		return nil, err
	}
	g.metrics.GatewayCall("create", "ok")
	return resp, nil
}

func (g *instrumented) Commit(ctx context.Context, token string) (*CommitResponse, error) {
	resp, err := g.next.Commit(ctx, token)
	switch {
	case err != nil:
		g.metrics.GatewayCall("commit", "error")
		g.logger.Warn("gateway commit failed", zap.Error(err))
	case resp.Approved():
		g.metrics.GatewayCall("commit", "approved")
	default:
		g.metrics.GatewayCall("commit", "declined")
		g.logger.Info("gateway commit declined", zap.String("buyOrder", resp.BuyOrder), zap.Int("responseCode", resp.ResponseCode))
	}
	return resp, err
}
