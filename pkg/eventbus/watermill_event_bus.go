package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/dukex/filestage/pkg/events"
	"github.com/dukex/filestage/pkg/log"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		logger:        log.OrDefault(logger, "event_bus"),
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.RLock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.RUnlock()

	if !exists {
		msg.Ack()

		return
	}

	var event any

	switch eventType {
	case events.ExecutionStartedEvent:
		event = &events.ExecutionStarted{}
	case events.ExecutionOutputEvent:
		event = &events.ExecutionOutput{}
	case events.ExecutionFinishedEvent:
		event = &events.ExecutionFinished{}
	case events.ExecutionRetiredEvent:
		event = &events.ExecutionRetired{}
	default:
		eb.logger.WarnContext(ctx, "Dropping event of unknown type", "event_type", eventType, "message_id", msg.UUID)
		msg.Ack()

		return
	}

	// a payload that does not decode never will; redelivering it would block the topic
	if err := json.Unmarshal(msg.Payload, event); err != nil {
		eb.logger.ErrorContext(ctx, "Dropping undecodable event", "error", err, "message_id", msg.UUID)
		msg.Ack()

		return
	}

	if err := handler(ctx, event); err != nil {
		eb.logger.ErrorContext(ctx, "Event handler failed", "error", err, "event_type", eventType)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
