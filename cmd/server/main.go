package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"storefront/internal/auth"
	"storefront/internal/cart"
	cartcontroller "storefront/internal/cart/controller"
	"storefront/internal/config"
	"storefront/internal/infrastructure/cache"
	"storefront/internal/infrastructure/logger"
	"storefront/internal/infrastructure/memory"
	"storefront/internal/infrastructure/metrics"
	"storefront/internal/infrastructure/mysql"
	"storefront/internal/infrastructure/mysqlstore"
	"storefront/internal/infrastructure/outbound"
	"storefront/internal/infrastructure/tracing"
	"storefront/internal/inventory"
	"storefront/internal/order"
	"storefront/internal/order/service"
	"storefront/internal/payment"
	"storefront/internal/product"
	"storefront/internal/server"
	"storefront/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)
	tracing.InstallPropagator()
	tracer := tracing.New()

	// Storage
	var tx storage.TxManager
	switch cfg.Storage.Driver {
	case config.StorageMySQL:
		db, err := mysql.NewConnection(cfg.Database)
		if err != nil {
			zapLogger.Fatal("connecting to database", zap.Error(err))
		}
		defer db.Close()
		zapLogger.Info("database connected")

		if cfg.Database.AutoMigrate {
			if err := mysql.EnsureSchema(ctx, db); err != nil {
				zapLogger.Fatal("migrating schema", zap.Error(err))
			}
		}
		tx = mysqlstore.NewTxManager(db, cfg.Order.TxTimeout, zapLogger)
	default:
		zapLogger.Warn("using in-memory storage, data is lost on restart")
		tx = memory.NewStore()
	}

	// Redis
	var (
		idem  service.IdempotencyStore = memory.NewIdempotencyStore()
		carts cart.Store               = cart.NewMemoryStore()
	)
	if cfg.Redis.Enabled() {
		rdb, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			zapLogger.Fatal("connecting to redis", zap.Error(err))
		}
		defer rdb.Close()
		idem = cache.NewRedisIdempotencyStore(rdb, cfg.Order.IdempotencyTTL)
		carts = cache.NewRedisCartStore(rdb, cfg.Cart.TTL)
		zapLogger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	// Customer notifications
	var notifier service.CustomerNotifier = outbound.NewLogNotifier(zapLogger)
	if cfg.Kafka.Enabled() {
		kafkaNotifier := outbound.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.CustomerTopic, zapLogger)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	// Payment gateway
	var gateway payment.Gateway
	if cfg.Payment.Mode == config.PaymentModeWebpay {
		gateway = payment.NewWebpayClient(payment.WebpayConfig{
			BaseURL:      cfg.Payment.BaseURL,
			CommerceCode: cfg.Payment.CommerceCode,
			APIKey:       cfg.Payment.APIKey,
			Timeout:      cfg.Payment.Timeout,
		})
	} else {
		zapLogger.Warn("using simulated payment gateway")
		gateway = payment.NewSimulator()
	}
	gateway = payment.Instrument(gateway, recorder, zapLogger)

	ledger := inventory.NewLedger(zapLogger, recorder)
	orders := order.NewModule(tx, ledger, gateway, notifier, idem, cfg, zapLogger, recorder, tracer)
	cartSvc := cart.NewService(carts, tx.Reader().Products(), orders.Service, zapLogger)

	router := server.NewRouter(server.Handlers{
		Products: product.NewModule(tx, ledger, zapLogger),
		Cart:     cartcontroller.NewCartController(cartSvc, zapLogger),
		Customer: orders.Customer,
		Callback: orders.Callback,
		Staff:    orders.Staff,
	}, auth.NewMiddleware(auth.NewTokens(cfg.Auth), zapLogger), recorder, registry, zapLogger)

	srv := server.New(cfg.Server.Port, router, zapLogger)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		zapLogger.Error("server stopped with error", zap.Error(err))
	}
}
