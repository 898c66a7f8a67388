package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/marev/vitrina/internal/config"
)

// InteractionEvent mirrors one interaction-log mutation onto the event bus so
// downstream analytics can consume the same signal the engine aggregates.
type InteractionEvent struct {
	Identity        string    `json:"identity"`
	ProductID       int64     `json:"product_id"`
	InteractionType string    `json:"interaction_type"`
	Action          string    `json:"action"` // added or removed
	Timestamp       time.Time `json:"timestamp"`
}

// CatalogUpdateEvent announces a catalog mutation made elsewhere in the
// system. The service consumes these to drive engine refreshes; the engine
// itself only exposes the refresh hook.
type CatalogUpdateEvent struct {
	ProductID int64     `json:"product_id,omitempty"`
	Change    string    `json:"change,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageBus wraps the Kafka producer/consumer pair. When Kafka is disabled
// in config the bus is a no-op so development deployments run without a
// broker.
type MessageBus struct {
	enabled           bool
	interactionWriter *kafka.Writer
	catalogReader     *kafka.Reader
	logger            *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) *MessageBus {
	if !cfg.Kafka.Enabled {
		return &MessageBus{enabled: false, logger: logger}
	}

	return &MessageBus{
		enabled: true,
		logger:  logger,
		interactionWriter: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topics.UserInteractions,
			Balancer:     &kafka.Hash{}, // key by identity so one principal's events stay ordered
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		catalogReader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topics.CatalogUpdates,
			GroupID:        "vitrina-engine",
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// PublishInteraction emits one interaction event. Publication failures are
// the caller's to log; interaction recording must not depend on the broker.
func (mb *MessageBus) PublishInteraction(ctx context.Context, event InteractionEvent) error {
	if !mb.enabled {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction event: %w", err)
	}

	return mb.interactionWriter.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Identity),
		Value: payload,
	})
}

// ConsumeCatalogUpdates blocks reading catalog-update events and invokes
// handle for each one until ctx is cancelled. Malformed events still trigger
// a refresh: the payload is advisory, the signal is the message itself.
func (mb *MessageBus) ConsumeCatalogUpdates(ctx context.Context, handle func()) {
	if !mb.enabled {
		return
	}

	for {
		msg, err := mb.catalogReader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			mb.logger.WithError(err).Warn("Failed to read catalog update event")
			continue
		}

		var event CatalogUpdateEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			mb.logger.WithField("offset", strconv.FormatInt(msg.Offset, 10)).
				Warn("Malformed catalog update event; refreshing anyway")
		} else {
			mb.logger.WithFields(logrus.Fields{
				"product_id": event.ProductID,
				"change":     event.Change,
			}).Debug("Catalog update event received")
		}

		handle()
	}
}

func (mb *MessageBus) Close() error {
	if !mb.enabled {
		return nil
	}

	var errs []error
	if err := mb.interactionWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close interaction writer: %w", err))
	}
	if err := mb.catalogReader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close catalog reader: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errs)
	}
	return nil
}
