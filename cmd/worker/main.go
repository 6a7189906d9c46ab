package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/closedesk/closedesk-backend/internal/bootstrap"
	"github.com/closedesk/closedesk-backend/internal/config"
	"github.com/closedesk/closedesk-backend/internal/core/ports"
	"github.com/closedesk/closedesk-backend/internal/observability/logging"
	"github.com/closedesk/closedesk-backend/internal/observability/metrics"
)

const evaluationTimeout = 2 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.NewJSONLogger("closedesk-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("closedesk-worker")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", workerMetrics.Handler())
		log.Printf("worker metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := http.ListenAndServe(":"+cfg.WorkerMetricsPort, mux); err != nil && err != http.ErrServerClosed {
			log.Printf("worker metrics server error: %v", err)
		}
	}()

	log.Printf("worker subscribed to %s", cfg.NATSSubject)
	err = app.Bus.SubscribeFactsChanged(ctx, func(handlerCtx context.Context, event ports.FactsChangedEvent) error {
		evalCtx, cancel := context.WithTimeout(handlerCtx, evaluationTimeout)
		defer cancel()

		start := time.Now()
		if !event.PublishedAt.IsZero() {
			workerMetrics.ObserveQueueLag("closedesk-worker", start.Sub(event.PublishedAt))
		}
		workerMetrics.StartEvaluation()

		_, evalErr := app.Evaluator.EvaluateAll(evalCtx, event.TransactionID)
		if evalErr == nil {
			_, evalErr = app.Roller.Rollup(evalCtx, event.TransactionID)
		}

		workerMetrics.FinishEvaluation("closedesk-worker", time.Since(start), evalErr)
		if evalErr != nil {
			logger.Error("evaluation failed",
				"transaction_id", event.TransactionID,
				"error", evalErr,
			)
		}
		return evalErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
