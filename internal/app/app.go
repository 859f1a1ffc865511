// Package app wires the fulfillment engine together: configuration, database
// pool, orchestrator, HTTP surface, probes, and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/fulfillment"
	"github.com/oakmart/fulfillment/internal/handler"
	"github.com/oakmart/fulfillment/internal/storage/postgres"
	"github.com/oakmart/fulfillment/pkg/health"
	"github.com/oakmart/fulfillment/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	codes, err := loadCouponFilter(ctx, pool)
	if err != nil {
		return errors.Wrap(err, "load coupon filter")
	}

	var picker inventory.Picker = inventory.SplitFit{}
	if cfg.Picker == "first" {
		picker = inventory.FirstFit{}
	}

	retry := payment.RetryPolicy{
		MaxAttempts:    cfg.Payment.MaxAttempts,
		InitialBackoff: cfg.Payment.InitialBackoff,
		AttemptTimeout: cfg.Payment.AttemptTimeout,
	}

	orch := fulfillment.New(postgres.NewStore(pool), payment.NewSandboxGateway(), picker, retry)
	h := handler.New(orch, codes)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Instrument("fulfillment-api", httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", "Authorization"},
				MaxAge:       86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Rate:  cfg.RateLimit.Rate,
				Burst: cfg.RateLimit.Burst,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		)),
	}

	// Graceful shutdown: drop readiness, drain, then stop the listener.
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

// loadCouponFilter builds a bloom filter over every known coupon code so the
// handler can reject unknown codes without opening a transaction.
func loadCouponFilter(ctx context.Context, pool *pgxpool.Pool) (*bloom.BloomFilter, error) {
	var count uint
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM coupons`).Scan(&count); err != nil {
		return nil, errors.Wrap(err, "count coupons")
	}
	if count == 0 {
		// Nothing to reject against; the authorizer handles everything.
		return nil, nil
	}

	filter := bloom.NewWithEstimates(max(count, 1000), 0.001)

	rows, err := pool.Query(ctx, `SELECT code FROM coupons`)
	if err != nil {
		return nil, errors.Wrap(err, "query coupon codes")
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, errors.Wrap(err, "scan coupon code")
		}
		filter.AddString(strings.ToUpper(code))
	}
	return filter, rows.Err()
}
