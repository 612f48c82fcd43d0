package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/filestage/pkg/log"
	"github.com/dukex/filestage/pkg/models"
	"github.com/dukex/filestage/pkg/resolver"
	"github.com/dukex/filestage/pkg/staging"
)

func NewResolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Resolve the output declarations of a config against a captured script output",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Execution config file (YAML or JSON)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "File holding the script output, - for stdin",
				Value:   "-",
			},
			&cli.StringFlag{
				Name:  "workdir",
				Usage: "Working directory overriding the one of the config",
			},
			&cli.StringFlag{
				Name:  "dest",
				Usage: "Copy the resolved files into this folder",
			},
			&cli.StringSliceFlag{
				Name:    "param",
				Aliases: []string{"p"},
				Usage:   "Parameter value as name=value, repeatable",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return runResolve(ctx, resolveOptions{
				configPath: command.String("config"),
				outputPath: command.String("output"),
				workdir:    command.String("workdir"),
				dest:       command.String("dest"),
				params:     command.StringSlice("param"),
			}, os.Stdin, os.Stdout)
		},
	}
}

type resolveOptions struct {
	configPath string
	outputPath string
	workdir    string
	dest       string
	params     []string
}

func runResolve(ctx context.Context, opts resolveOptions, stdin io.Reader, stdout io.Writer) error {
	logger := log.WithModule("resolve")

	raw, err := os.ReadFile(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config, err := models.ParseExecutionConfigYAML(raw)
	if err != nil {
		return err
	}

	if opts.workdir != "" {
		config.WorkingDirectory = opts.workdir
	}

	values, err := parseParams(opts.params)
	if err != nil {
		return err
	}

	output, err := readOutput(opts.outputPath, stdin)
	if err != nil {
		return err
	}

	r := resolver.New(config.WorkingDirectory, logger)

	var resolved []string

	for _, kind := range []models.OutputKind{models.OutputKindGeneric, models.OutputKindInlineImage} {
		resolved = append(resolved, r.Resolve(ctx, resolver.Input{
			Declarations: config.OutputFiles,
			Kind:         kind,
			Parameters:   config.Parameters,
			Values:       values,
			Text:         output,
		})...)
	}

	if opts.dest == "" {
		for _, path := range resolved {
			fmt.Fprintln(stdout, path)
		}

		return nil
	}

	if err := os.MkdirAll(opts.dest, 0o755); err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	manager := staging.NewManager(opts.dest, logger)
	for _, file := range manager.StageAll(ctx, resolved) {
		fmt.Fprintf(stdout, "%s\t%s\n", file.Source, file.Path)
	}

	return nil
}

func parseParams(params []string) (models.ParameterValues, error) {
	values := make(models.ParameterValues, len(params))

	for _, param := range params {
		name, value, found := strings.Cut(param, "=")
		if !found || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", param)
		}

		name = strings.TrimSpace(name)

		// repeated names build a list value
		if previous, exists := values[name]; exists {
			switch v := previous.(type) {
			case []any:
				values[name] = append(v, value)
			default:
				values[name] = []any{v, value}
			}

			continue
		}

		values[name] = value
	}

	return values, nil
}

func readOutput(path string, stdin io.Reader) (string, error) {
	var (
		content []byte
		err     error
	)

	if path == "-" {
		content, err = io.ReadAll(stdin)
	} else {
		content, err = os.ReadFile(path)
	}

	if err != nil {
		return "", fmt.Errorf("failed to read script output: %w", err)
	}

	return string(content), nil
}
