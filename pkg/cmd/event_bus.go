// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukex/filestage/pkg/channels/gochannel"
	"github.com/dukex/filestage/pkg/channels/kafka"
	"github.com/dukex/filestage/pkg/eventbus"
	"github.com/dukex/filestage/pkg/log"
)

const serviceName = "filestage"

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// EventBusConfig selects and configures the transport behind the event bus.
type EventBusConfig struct {
	Provider     string
	KafkaBrokers []string
}

func NewEventBus(config EventBusConfig, logger *slog.Logger) (eventbus.EventBus, error) {
	logger = log.OrDefault(logger, "event_bus")
	watermillLogger := watermill.NewSlogLogger(logger)

	switch config.Provider {
	case "", "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create GoChannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, config.KafkaBrokers, serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, config.Provider)
	}
}
