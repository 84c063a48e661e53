// The gateway binary serves the public embedding API: API key auth, rate
// limiting and request forwarding to the inference service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hemmokarja/High-Performance-ML-API/internal/correlation"
	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/apikey"
	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/handler"
	"github.com/hemmokarja/High-Performance-ML-API/internal/gateway/proxy"
	"github.com/hemmokarja/High-Performance-ML-API/internal/middleware"
	"github.com/hemmokarja/High-Performance-ML-API/internal/observability/logging"
	"github.com/hemmokarja/High-Performance-ML-API/internal/observability/tracing"
	"github.com/hemmokarja/High-Performance-ML-API/pkg/config"
	"github.com/hemmokarja/High-Performance-ML-API/pkg/ratelimit"
)

const maxRequestBody = 1 << 20 // 1 MiB

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	logger := logging.NewLogger("gateway")
	slog.SetDefault(logger)

	cfg, err := config.LoadGatewayConfig(os.Args[1:])
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.New(ctx, cfg.RedisURL, cfg.BypassRateLimits, logger)
	defer func() {
		if err := limiter.Close(); err != nil {
			logger.Error("failed to close rate limiter", slog.Any("error", err))
		}
	}()

	keys := apikey.NewStore(logger)
	seedDevKey(keys, cfg, logger)

	client := proxy.New(cfg.InferenceURL)

	routes := handler.Routes(client, keys, limiter, logger)
	h := middleware.Chain(routes,
		tracing.Middleware,
		correlation.Middleware("gw"),
		middleware.Recover(logger),
		middleware.Logging(logger),
		middleware.Metrics,
		middleware.LimitRequestBody(maxRequestBody),
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gateway starting",
			slog.String("addr", cfg.Addr()),
			slog.String("inference_url", cfg.InferenceURL),
			slog.String("ratelimit_backend", limiter.Backend()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("gateway exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

// seedDevKey registers the development API key. API_KEY supplies a fixed
// key; otherwise a fresh one is generated and printed once so local clients
// can pick it up.
func seedDevKey(keys *apikey.Store, cfg *config.GatewayConfig, logger *slog.Logger) {
	key := os.Getenv("API_KEY")
	generated := false
	if key == "" {
		key = apikey.GenerateKey("sk_dev")
		generated = true
	}

	keys.Add(key, &apikey.Record{
		UserID:          "dev_user",
		Name:            "development key",
		RateLimitMinute: cfg.RateLimitMinute,
		RateLimitHour:   cfg.RateLimitHour,
	})

	if generated {
		// The plaintext key is printed exactly once, never logged.
		os.Stdout.WriteString("generated development API key: " + key + "\n")
		logger.Info("development api key generated", slog.String("user_id", "dev_user"))
	} else {
		logger.Info("development api key loaded from environment", slog.String("user_id", "dev_user"))
	}
}
