package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/filestage/pkg/eventbus"
	"github.com/dukex/filestage/pkg/events"
	"github.com/dukex/filestage/pkg/log"
	"github.com/dukex/filestage/pkg/models"
)

// BindEventBus drives registry from the execution lifecycle events received on bus.
// Events that can never be applied, such as output for an unknown execution, are
// logged and acknowledged.
func BindEventBus(bus eventbus.EventSubscriber, registry *Registry, logger *slog.Logger) error {
	logger = log.OrDefault(logger, "execution_events")

	handlers := map[events.EventType]eventbus.EventHandler{
		events.ExecutionStartedEvent: func(ctx context.Context, event interface{}) error {
			started, ok := event.(*events.ExecutionStarted)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			config := &models.ExecutionConfig{}
			if len(started.Config) > 0 {
				parsed, err := models.ParseExecutionConfig(started.Config)
				if err != nil {
					logger.ErrorContext(ctx, "Rejected execution config", "execution_id", started.ExecutionID, "error", err)

					return nil
				}

				config = parsed
			}

			return ignoreStale(ctx, logger, started.ExecutionID,
				registry.Start(ctx, started.ExecutionID, started.Owner, config, started.ParameterValues))
		},
		events.ExecutionOutputEvent: func(ctx context.Context, event interface{}) error {
			output, ok := event.(*events.ExecutionOutput)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			return ignoreStale(ctx, logger, output.ExecutionID, registry.Output(ctx, output.ExecutionID, output.Chunk))
		},
		events.ExecutionFinishedEvent: func(ctx context.Context, event interface{}) error {
			finished, ok := event.(*events.ExecutionFinished)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			return ignoreStale(ctx, logger, finished.ExecutionID, registry.Finish(ctx, finished.ExecutionID))
		},
		events.ExecutionRetiredEvent: func(ctx context.Context, event interface{}) error {
			retired, ok := event.(*events.ExecutionRetired)
			if !ok {
				return fmt.Errorf("unexpected event %T", event)
			}

			return ignoreStale(ctx, logger, retired.ExecutionID, registry.Retire(ctx, retired.ExecutionID))
		},
	}

	for eventType, handler := range handlers {
		if err := bus.Handle(eventType, handler); err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return nil
}

func ignoreStale(ctx context.Context, logger *slog.Logger, executionID string, err error) error {
	if errors.Is(err, ErrExecutionNotFound) || errors.Is(err, ErrExecutionExists) {
		logger.WarnContext(ctx, "Ignoring execution event", "execution_id", executionID, "error", err)

		return nil
	}

	return err
}
