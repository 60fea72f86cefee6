package order

import (
	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/domain"
	"storefront/internal/infrastructure/metrics"
	"storefront/internal/infrastructure/tracing"
	"storefront/internal/inventory"
	"storefront/internal/notification"
	"storefront/internal/order/controller"
	"storefront/internal/order/service"
	"storefront/internal/payment"
	"storefront/internal/storage"
	"storefront/internal/workflow"
)

// Module is the order state machine with the HTTP surfaces that drive it.
type Module struct {
	Service  *service.Service
	Customer *controller.CustomerController
	Callback *controller.PaymentCallbackController
	Staff    *controller.StaffController
}

func NewModule(
	tx storage.TxManager,
	ledger *inventory.Ledger,
	gateway payment.Gateway,
	notifier service.CustomerNotifier,
	idem service.IdempotencyStore,
	cfg *config.Config,
	logger *zap.Logger,
	recorder *metrics.Recorder,
	tracer *tracing.Tracer,
) *Module {
	router := notification.NewRouter(tx, logger, recorder)

	svc := service.NewService(
		tx,
		ledger,
		router,
		gateway,
		notifier,
		idem,
		service.Config{
			Shipping: domain.ShippingPolicy{
				Fee:                   cfg.Order.ShippingFee,
				FreeShippingThreshold: cfg.Order.FreeShippingThreshold,
			},
			MaxRetryAttempts: cfg.Order.MaxRetryAttempts,
			CurrencyExponent: cfg.Payment.CurrencyExponent,
			ReturnURL:        cfg.Payment.ReturnURL,
		},
		logger,
		recorder,
		tracer,
	)

	fulfillment := workflow.NewFulfillment(svc, logger)
	exceptions := workflow.NewException(svc, logger)

	return &Module{
		Service:  svc,
		Customer: controller.NewCustomerController(svc, logger),
		Callback: controller.NewPaymentCallbackController(svc, logger),
		Staff:    controller.NewStaffController(fulfillment, exceptions, svc, logger),
	}
}
