package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/filestage/pkg/channels/kafka"
	"github.com/dukex/filestage/pkg/cmd"
	"github.com/dukex/filestage/pkg/download"
	"github.com/dukex/filestage/pkg/execution"
	"github.com/dukex/filestage/pkg/log"
	"github.com/dukex/filestage/pkg/otelhelper"
)

const defaultPort = 9091

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Stage declared output files of executions and serve them over HTTP",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "temp-folder",
				Usage:   "Folder holding the staged files",
				Value:   filepath.Join(os.TempDir(), "filestage"),
				Sources: cli.EnvVars("FILESTAGE_TEMP_FOLDER"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers, used by the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.DurationFlag{
				Name:    "autoclean-max-age",
				Usage:   "How long staged files are kept",
				Value:   download.DefaultAutocleanMaxAge,
				Sources: cli.EnvVars("AUTOCLEAN_MAX_AGE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return serve(ctx, serveOptions{
				port:         command.Int("port"),
				tempFolder:   command.String("temp-folder"),
				eventBus:     command.String("event-bus"),
				kafkaBrokers: kafka.ParseBrokers(command.String("kafka-brokers")),
				maxAge:       command.Duration("autoclean-max-age"),
				tracing:      command.Bool("tracing"),
			})
		},
	}
}

type serveOptions struct {
	port         int
	tempFolder   string
	eventBus     string
	kafkaBrokers []string
	maxAge       time.Duration
	tracing      bool
}

func serve(ctx context.Context, opts serveOptions) error {
	logger := log.WithModule("filestage")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing filestage", "temp_folder", opts.tempFolder, "event_bus", opts.eventBus)

	var featureOptions []download.Option

	if opts.tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "filestage")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()

		featureOptions = append(featureOptions, download.WithTracer(tracer))
	}

	fileStorage, err := cmd.NewFileStorage(opts.tempFolder, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := fileStorage.Close(); err != nil {
			logger.Error("Failed to close file storage", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(cmd.EventBusConfig{Provider: opts.eventBus, KafkaBrokers: opts.kafkaBrokers}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	featureOptions = append(featureOptions, download.WithAutocleanMaxAge(opts.maxAge))

	feature, err := download.NewFeature(fileStorage, opts.tempFolder, logger, featureOptions...)
	if err != nil {
		return fmt.Errorf("failed to start file download feature: %w", err)
	}

	registry := execution.NewRegistry(logger)
	feature.Subscribe(registry)

	if err := execution.BindEventBus(eventBus, registry, logger); err != nil {
		return err
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to execution events: %w", err)
	}

	return NewAPI(logger, feature).Start(ctx, opts.port)
}
