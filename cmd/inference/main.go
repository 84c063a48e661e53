// The inference binary serves embedding requests over a dynamic batching
// scheduler so concurrent callers share model forward passes.
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
	"github.com/hemmokarja/High-Performance-ML-API/internal/inference/batcher"
	"github.com/hemmokarja/High-Performance-ML-API/internal/inference/handler"
	"github.com/hemmokarja/High-Performance-ML-API/internal/inference/model"
	"github.com/hemmokarja/High-Performance-ML-API/internal/middleware"
	"github.com/hemmokarja/High-Performance-ML-API/internal/observability/logging"
	"github.com/hemmokarja/High-Performance-ML-API/internal/observability/tracing"
	"github.com/hemmokarja/High-Performance-ML-API/pkg/config"
)

const maxRequestBody = 1 << 20 // 1 MiB

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	logger := logging.NewLogger("inference")
	slog.SetDefault(logger)

	cfg, err := config.LoadInferenceConfig(os.Args[1:])
	if err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := model.NewHashingModel(cfg.ModelDim, cfg.ModelBaseLatency, cfg.ModelPerItemLatency)

	var p batcher.Predictor
	if cfg.NoBatching {
		logger.Warn("dynamic batching disabled, serving requests individually")
		p = batcher.NewNoBatcher(m)
	} else {
		p = batcher.New(m, batcher.Config{
			MaxBatchSize:  cfg.MaxBatchSize,
			BatchTimeout:  cfg.BatchTimeout,
			NumWorkers:    cfg.NumWorkers,
			QueueCapacity: cfg.QueueCapacity,
		})
	}
	p.Start()

	routes := handler.Routes(p, m, logger)
	h := middleware.Chain(routes,
		tracing.Middleware,
		correlation.Middleware("inf"),
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
		logger.Info("inference server starting",
			slog.String("addr", cfg.Addr()),
			slog.String("model", m.Name()),
			slog.String("device", m.Device()),
			slog.Int("dim", m.Dim()),
			slog.Int("max_batch_size", cfg.MaxBatchSize),
			slog.Duration("batch_timeout", cfg.BatchTimeout),
			slog.Int("num_workers", cfg.NumWorkers),
			slog.Bool("no_batching", cfg.NoBatching))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down inference server")

		// Stop accepting HTTP first, then let the scheduler finish the
		// batches it already owns.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return p.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("inference server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("inference server stopped")
}
