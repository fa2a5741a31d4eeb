package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/SAP-F-2025/vendor-assessment-service/internal/config"
)

// WatermillPublisher routes domain events to a regular topic and operator
// alerts to a dedicated topic.
type WatermillPublisher struct {
	publisher     message.Publisher
	topic         string
	operatorTopic string
	logger        *slog.Logger
}

func NewWatermillPublisher(publisher message.Publisher, topic, operatorTopic string, logger *slog.Logger) *WatermillPublisher {
	return &WatermillPublisher{
		publisher:     publisher,
		topic:         topic,
		operatorTopic: operatorTopic,
		logger:        logger,
	}
}

// NewKafkaPublisher connects to the configured brokers.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *slog.Logger) (*WatermillPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   cfg.Brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return NewWatermillPublisher(publisher, cfg.Topic, cfg.OperatorTopic, logger), nil
}

// NewInProcessPublisher is used when Kafka is disabled. Events stay inside
// the process and are only seen by in-process subscribers.
func NewInProcessPublisher(cfg config.KafkaConfig, logger *slog.Logger) (*WatermillPublisher, *gochannel.GoChannel) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(logger))
	return NewWatermillPublisher(pubSub, cfg.Topic, cfg.OperatorTopic, logger), pubSub
}

func (p *WatermillPublisher) Publish(ctx context.Context, event *Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("tenant_id", event.TenantID)
	msg.Metadata.Set("source", event.Source)

	topic := p.topic
	if event.Type.IsOperatorAlert() {
		topic = p.operatorTopic
	}

	if err := p.publisher.Publish(topic, msg); err != nil {
		p.logger.Error("Failed to publish event",
			"event_id", event.ID,
			"event_type", event.Type,
			"topic", topic,
			"error", err)
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}

	p.logger.Debug("Event published", "event_id", event.ID, "event_type", event.Type, "topic", topic)
	return nil
}

func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}
