// Command patients-events tails the change-event topic and logs each event.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/stellar-sleep/patients-api/pkg/common/config"
	"github.com/stellar-sleep/patients-api/pkg/common/kafka"
	"github.com/stellar-sleep/patients-api/pkg/common/logger"
	"github.com/stellar-sleep/patients-api/pkg/common/models"
)

func main() {
	logger.Init()
	cfg, err := config.LoadWithFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load configuration")
	}
	if !cfg.KafkaEnabled() {
		logger.Log.Fatal("KAFKA_TOPIC and KAFKA_BROKERS must be set")
	}

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.WithFields(map[string]interface{}{
		"topic": cfg.KafkaTopic,
		"group": cfg.KafkaGroupID,
	}).Info("Tailing change events")

	err = consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
		logger.Log.WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
			"source":     event.Source,
			"data":       event.Data,
			"emitted_at": event.Timestamp,
		}).Info("Change event")
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).Error("Event tail stopped")
		return
	}
	logger.Log.Info("Event tail stopped")
}
