// cmd/server/main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/handler"
	"github.com/unclebandit/outreach-engine/internal/metrics"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/sender"
	"github.com/unclebandit/outreach-engine/internal/service"
	"github.com/unclebandit/outreach-engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
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

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}
	memberRepo := &repository.CampaignRecipientRepository{DB: conn}
	templateRepo := &repository.MessageTemplateRepository{DB: conn}
	attemptRepo := &repository.DeliveryAttemptRepository{DB: conn}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// With AMQP configured, dispatch cycles run in cmd/worker; without
	// it the server runs them in-process off the in-memory queue.
	var q queue.Queue
	amqpQueue := (*queue.AMQPQueue)(nil)
	if cfg.AMQPURL != "" {
		amqpQueue, err = queue.NewAMQPQueue(cfg.AMQPURL, log)
		if err != nil {
			log.Error("failed to connect to amqp", slog.Any("error", err))
			os.Exit(1)
		}
		defer amqpQueue.Close()
		q = amqpQueue
	} else {
		q = queue.NewInMemoryQueue(log)
	}

	senders := sender.NewRegistry()
	mock := &sender.MockSender{FailureRate: cfg.MockSenderFailureRate}
	for _, ch := range model.AllChannels() {
		senders.Register(ch, mock)
	}

	dispatcher := &service.Dispatcher{
		Campaigns:   campaignRepo,
		Members:     memberRepo,
		Templates:   templateRepo,
		Attempts:    attemptRepo,
		Senders:     senders,
		Logger:      log,
		BatchSize:   cfg.DispatchBatchSize,
		Throttle:    cfg.DispatchThrottle,
		SendTimeout: cfg.SendTimeout,
		LeaseTTL:    cfg.DispatchLeaseTTL,
	}

	if amqpQueue == nil {
		if err := queue.StartDispatchWorkers(ctx, q, dispatcher, cfg.DispatchWorkers, log); err != nil {
			log.Error("failed to start dispatch workers", slog.Any("error", err))
			os.Exit(1)
		}
	}

	scheduler := &service.Scheduler{
		Campaigns:    campaignRepo,
		Queue:        q,
		Logger:       log,
		PollInterval: cfg.SchedulerPollInterval,
	}
	go scheduler.Start(ctx)

	campaignService := &service.CampaignService{
		Campaigns:  campaignRepo,
		Recipients: recipientRepo,
		Members:    memberRepo,
		Templates:  templateRepo,
		Scheduler:  scheduler,
		Queue:      q,
		Logger:     log,
	}
	metricsService := &service.MetricsService{
		Campaigns: campaignRepo,
		Members:   memberRepo,
		Attempts:  attemptRepo,
	}

	router := handler.Routes(
		handler.NewCampaignHandler(campaignService, metricsService),
		handler.NewRecipientHandler(campaignService),
		handler.NewMessageHandler(campaignService),
	)

	log.Info("server running", slog.String("addr", cfg.HTTPAddr))
	if err := http.ListenAndServe(cfg.HTTPAddr, router); err != nil {
		log.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
