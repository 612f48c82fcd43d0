// Package resolver turns output declarations into the set of existing files they denote.
package resolver

import (
	"context"
	"log/slog"
	"os"

	"github.com/dukex/filestage/pkg/glob"
	"github.com/dukex/filestage/pkg/log"
	"github.com/dukex/filestage/pkg/models"
	"github.com/dukex/filestage/pkg/pattern"
)

// Substituter fills parameter placeholders of a declaration template.
type Substituter interface {
	Substitute(parameters []models.ParameterConfig, template string, values models.ParameterValues) string
}

type SubstituterFunc func(parameters []models.ParameterConfig, template string, values models.ParameterValues) string

func (f SubstituterFunc) Substitute(parameters []models.ParameterConfig, template string, values models.ParameterValues) string {
	return f(parameters, template, values)
}

// Input is one resolution request.
type Input struct {
	Declarations []models.OutputDeclaration
	Kind         models.OutputKind
	Parameters   []models.ParameterConfig
	Values       models.ParameterValues
	Text         string
}

// Resolver resolves declarations of one execution. Relative paths and globs are
// anchored at the execution's working directory.
type Resolver struct {
	workingDir  string
	logger      *slog.Logger
	matcher     *pattern.Matcher
	substituter Substituter
	shouldExist bool
}

type Option func(*Resolver)

// WithShouldExist toggles the diagnostics for declarations that resolve to nothing.
func WithShouldExist(shouldExist bool) Option {
	return func(r *Resolver) {
		r.shouldExist = shouldExist
	}
}

func WithSubstituter(substituter Substituter) Option {
	return func(r *Resolver) {
		r.substituter = substituter
	}
}

func WithMatcher(matcher *pattern.Matcher) Option {
	return func(r *Resolver) {
		r.matcher = matcher
	}
}

func New(workingDir string, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		workingDir:  workingDir,
		logger:      log.OrDefault(logger, "resolver"),
		substituter: SubstituterFunc(models.FillParameterValues),
		shouldExist: true,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.matcher == nil {
		r.matcher = pattern.NewMatcher(glob.NewExpander(workingDir))
	}

	return r
}

// Resolve returns the normalized paths of existing regular files the declarations of
// in.Kind denote in in.Text, in discovery order and without duplicates. Misses are
// logged and skipped.
func (r *Resolver) Resolve(ctx context.Context, in Input) []string {
	var resolved []string

	seen := make(map[string]struct{})

	for _, declaration := range in.Declarations {
		if declaration.Kind != in.Kind {
			continue
		}

		template, ok := declaration.Template()
		if !ok {
			continue
		}

		outputFile := r.substituter.Substitute(in.Parameters, template, in.Values)

		candidates, err := r.matcher.Match(outputFile, in.Text)
		if err != nil {
			r.logger.WarnContext(ctx, "Failed to match output declaration", "declaration", outputFile, "error", err)
		}

		if len(candidates) == 0 {
			if r.shouldExist && err == nil {
				r.logger.WarnContext(ctx, "Couldn't find file for declaration", "declaration", outputFile)
			}

			continue
		}

		for _, candidate := range candidates {
			path := NormalizePath(candidate, r.workingDir)

			info, err := os.Stat(path)
			if err != nil {
				if r.shouldExist {
					r.logger.WarnContext(ctx, "File not found", "file", candidate, "full_path", path)
				}

				continue
			}

			if info.IsDir() {
				r.logger.WarnContext(ctx, "File is a directory. Not allowed", "file", candidate)

				continue
			}

			key := canonical(path)
			if _, exists := seen[key]; exists {
				continue
			}

			seen[key] = struct{}{}
			resolved = append(resolved, path)
		}
	}

	return resolved
}
