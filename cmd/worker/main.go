// cmd/worker/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/metrics"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/sender"
	"github.com/unclebandit/outreach-engine/internal/service"
	"github.com/unclebandit/outreach-engine/pkg/logger"
)

// The worker consumes dispatch jobs from RabbitMQ and runs the cycles
// out of process, so heavy sends never block the API server.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		slog.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	metrics.Init()

	conn, err := db.Open(cfg.DSN())
	if err != nil {
		log.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	q, err := queue.NewAMQPQueue(cfg.AMQPURL, log)
	if err != nil {
		log.Error("failed to connect to amqp", slog.Any("error", err))
		os.Exit(1)
	}
	defer q.Close()

	senders := sender.NewRegistry()
	mock := &sender.MockSender{FailureRate: cfg.MockSenderFailureRate}
	for _, ch := range model.AllChannels() {
		senders.Register(ch, mock)
	}

	dispatcher := &service.Dispatcher{
		Campaigns:   &repository.CampaignRepository{DB: conn},
		Members:     &repository.CampaignRecipientRepository{DB: conn},
		Templates:   &repository.MessageTemplateRepository{DB: conn},
		Attempts:    &repository.DeliveryAttemptRepository{DB: conn},
		Senders:     senders,
		Logger:      log,
		BatchSize:   cfg.DispatchBatchSize,
		Throttle:    cfg.DispatchThrottle,
		SendTimeout: cfg.SendTimeout,
		LeaseTTL:    cfg.DispatchLeaseTTL,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.StartDispatchWorkers(ctx, q, dispatcher, cfg.DispatchWorkers, log); err != nil {
		log.Error("failed to start dispatch workers", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("worker running", slog.Int("workers", cfg.DispatchWorkers))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("worker shutting down")
}
