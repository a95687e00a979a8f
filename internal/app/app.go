package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/checkout"
	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/offer"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/handler"
	"github.com/xenking/storefront-checkout/internal/notify"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
	"github.com/xenking/storefront-checkout/pkg/health"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

// completionLogger is the default checkout observer: one log line per placed
// order.
type completionLogger struct {
	lg *zap.Logger
}

func (o *completionLogger) CheckoutCompleted(_ context.Context, ev notify.CheckoutCompleted) {
	o.lg.Info("Checkout completed",
		zap.String("order", ev.Order.Number),
		zap.String("user_id", ev.UserID),
	)
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	basketRepo := postgres.NewBasketRepository(pool)
	addressRepo := postgres.NewAddressRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	methodRepo := postgres.NewShippingMethodRepository(pool)
	rangeRepo := postgres.NewRangeRepository(pool)
	commRepo := postgres.NewCommunicationRepository(pool)
	sessionStore := postgres.NewSessionStore(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Promotional ranges available to offers.
	ranges := offer.NewRegistry(rangeRepo)
	if err := ranges.Register(ctx, &offer.AttributeRange{
		RangeName: "Digital products",
		Predicate: func(p product.Product) bool { return !p.RequiresShipping },
	}); err != nil {
		return errors.Wrap(err, "register range")
	}

	// Domain services.
	resolver := address.NewResolver(addressRepo)
	creator := order.NewCreator(orderRepo)
	dispatcher := notify.NewDispatcher(commRepo, &notify.LogSender{Logger: lg}, lg)
	signal := notify.NewSignal(lg)
	signal.Subscribe(&completionLogger{lg: lg})

	placement, err := checkout.NewPlacement(
		creator,
		orderRepo,
		basketRepo,
		resolver,
		methodRepo,
		sessionStore,
		dispatcher,
		signal,
		lg,
		m.MeterProvider().Meter("storefront-checkout"),
	)
	if err != nil {
		return errors.Wrap(err, "create placement service")
	}

	// HTTP handlers.
	h := handler.New(
		handler.Config{
			JWTSecret:    cfg.JWTSecret,
			APIKeyPepper: cfg.APIKeyPepper,
		},
		productRepo,
		basketRepo,
		orderRepo,
		addressRepo,
		methodRepo,
		sessionStore,
		placement,
		apikeyRepo,
		lg,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(mux)

	api := otelhttp.NewHandler(mux, "storefront-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(api,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-Api-Key", "X-Session-Key"},
				ExposeHeaders:    []string{"X-Session-Key", "X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
