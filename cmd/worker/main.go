// Worker consumes activation email requests from Kafka and delivers them.
// Set KAFKA_BROKERS and ACTIVATION_EMAIL_TOPIC; MAIL_WORKER_GROUP_ID overrides the consumer group.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"credential-lifecycle/internal/config"
	"credential-lifecycle/internal/mailer"
	"credential-lifecycle/internal/platform/logging"
)

const defaultGroupID = "credential-mail-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "json").Error("config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Error("worker: KAFKA_BROKERS is required")
		os.Exit(1)
	}
	groupID := os.Getenv("MAIL_WORKER_GROUP_ID")
	if groupID == "" {
		groupID = defaultGroupID
	}

	reader := mailer.NewReader(brokers, cfg.ActivationEmailTopic, groupID)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker: consuming activation emails", "topic", cfg.ActivationEmailTopic, "group", groupID)
	// Delivery is logged until an outbound mail transport is configured.
	if err := mailer.Consume(ctx, reader, mailer.NewLogSender(log), log); err != nil {
		log.Error("worker: consume", "error", err)
		os.Exit(1)
	}
	log.Info("worker: stopped")
}
