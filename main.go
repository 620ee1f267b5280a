package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"

	"sokoni/backend/internal/app"
	"sokoni/backend/internal/config"
	"sokoni/backend/internal/logger"
)

func main() {
	// Structured JSON logs; the context handler stamps correlation ids onto
	// every record.
	base := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(base)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	defer deps.NSQProducer.Stop()

	a, err := app.New(cfg, deps.DB, deps.Index, deps.NSQProducer, base)
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	// Pipeline consumer: catalog.sync drives full ingestion runs.
	syncConsumer, err := nsq.NewConsumer(config.TopicCatalogSync, "backend", nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create sync consumer", "error", err)
		os.Exit(1)
	}
	syncConsumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		return a.SyncConsumer.HandleMessage(m)
	}))
	if err := syncConsumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect sync consumer to nsqlookupd", "error", err)
	} else {
		slog.Info("sync consumer connected", "topic", config.TopicCatalogSync)
	}
	defer syncConsumer.Stop()

	// Decision consumer: qc.decision settles speculatively indexed items.
	decisionConsumer, err := nsq.NewConsumer(config.TopicQCDecision, "backend", nsq.NewConfig())
	if err != nil {
		slog.Error("failed to create decision consumer", "error", err)
		os.Exit(1)
	}
	decisionConsumer.AddHandler(nsq.HandlerFunc(func(m *nsq.Message) error {
		return a.DecisionConsumer.HandleMessage(m)
	}))
	if err := decisionConsumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		slog.Error("failed to connect decision consumer to nsqlookupd", "error", err)
	} else {
		slog.Info("decision consumer connected", "topic", config.TopicQCDecision)
	}
	defer decisionConsumer.Stop()

	if err := a.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
