package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storefront/internal/auth"
	cartcontroller "storefront/internal/cart/controller"
	"storefront/internal/domain"
	"storefront/internal/infrastructure/metrics"
	"storefront/internal/infrastructure/tracing"
	ordercontroller "storefront/internal/order/controller"
	"storefront/internal/product"
)

type Handlers struct {
	Products *product.Controller
	Cart     *cartcontroller.CartController
	Customer *ordercontroller.CustomerController
	Callback *ordercontroller.PaymentCallbackController
	Staff    *ordercontroller.StaffController
}

func NewRouter(h Handlers, authn *auth.Middleware, recorder *metrics.Recorder, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(tracing.Middleware, recorder.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/products/search", h.Products.HandleSearchProducts)

	// Carts are anonymous until checkout.
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.Cart.View)
		r.Delete("/", h.Cart.Clear)
		r.Post("/items", h.Cart.Add)
		r.Put("/items", h.Cart.Update)
		r.Delete("/items/{productId}", h.Cart.Remove)
		r.With(authn.Authenticate, authn.RequireRole(domain.RoleCustomer)).Post("/checkout", h.Cart.Checkout)
	})

	// Webpay redirects the browser here with GET or POST.
	r.Get("/payments/webpay/return", h.Callback.WebpayReturn)
	r.Post("/payments/webpay/return", h.Callback.WebpayReturn)

	r.Route("/orders", func(r chi.Router) {
		r.Use(authn.Authenticate, authn.RequireRole(domain.RoleCustomer))
		r.Get("/", h.Customer.MyOrders)
		r.Post("/reservations", h.Customer.Reserve)
		r.Get("/{orderId}", h.Customer.Get)
		r.Post("/{orderId}/shipping", h.Customer.ChooseShipping)
		r.Post("/{orderId}/payments/gateway", h.Customer.PayWithGateway)
		r.Post("/{orderId}/payments/transfer", h.Customer.PayWithTransfer)
	})

	r.Route("/staff", func(r chi.Router) {
		r.Use(authn.Authenticate, authn.RequireRole(domain.RoleLogistics, domain.RoleCustomerSupport))

		r.With(authn.RequireRole(domain.RoleLogistics)).Group(func(r chi.Router) {
			r.Get("/logistics/board", h.Staff.LogisticsBoard)
			r.Get("/dispatches", h.Staff.Dispatches)
			r.Post("/orders/{orderId}/actions", h.Staff.Advance)
			r.Post("/products/{productId}/restock", h.Products.HandleRestock)
		})

		r.With(authn.RequireRole(domain.RoleCustomerSupport)).Group(func(r chi.Router) {
			r.Get("/support/board", h.Staff.SupportBoard)
			r.Post("/notifications/{notificationId}/resolve", h.Staff.ResolveException)
			r.Post("/notifications/{notificationId}/await-customer", h.Staff.AwaitCustomer)
		})

		r.Get("/orders/{orderId}", h.Staff.Order)
		r.Post("/orders/{orderId}/exceptions", h.Staff.RaiseException)
	})

	logger.Debug("routes registered")
	return r
}
