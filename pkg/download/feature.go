// Package download collects the files an execution declares as its outputs, copies
// them into a per-execution download folder and exposes them for download. Generic
// outputs are collected once the execution finished; inline images are collected
// while the output streams in.
package download

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/filestage/pkg/execution"
	"github.com/dukex/filestage/pkg/log"
	"github.com/dukex/filestage/pkg/otelhelper"
	"github.com/dukex/filestage/pkg/resolver"
	"github.com/dukex/filestage/pkg/staging"
	"github.com/dukex/filestage/pkg/storage"
)

// ResultFilesFolder is the name of the folder, under the temp folder, holding every
// execution's download folder.
const ResultFilesFolder = "resultFiles"

// DefaultAutocleanMaxAge is how long staged files are kept.
const DefaultAutocleanMaxAge = 24 * time.Hour

// InlineImageListener is notified once per inline image, with the resolved source
// path and the path of its staged copy.
type InlineImageListener func(originalPath, downloadPath string) error

type Feature struct {
	storage      storage.FileStorage
	resultFolder string
	logger       *slog.Logger
	tracer       trace.Tracer

	maxAge          time.Duration
	stagingRetries  int
	resolverOptions []resolver.Option

	mu       sync.RWMutex
	handlers map[string]*handler
}

type Option func(*Feature)

func WithTracer(tracer trace.Tracer) Option {
	return func(f *Feature) {
		f.tracer = tracer
	}
}

func WithAutocleanMaxAge(maxAge time.Duration) Option {
	return func(f *Feature) {
		f.maxAge = maxAge
	}
}

func WithStagingRetries(retries int) Option {
	return func(f *Feature) {
		f.stagingRetries = retries
	}
}

// WithResolverOptions applies opts to the resolver of every execution.
func WithResolverOptions(opts ...resolver.Option) Option {
	return func(f *Feature) {
		f.resolverOptions = append(f.resolverOptions, opts...)
	}
}

// NewFeature creates the feature and schedules the cleanup of expired download folders.
func NewFeature(fileStorage storage.FileStorage, tempFolder string, logger *slog.Logger, opts ...Option) (*Feature, error) {
	f := &Feature{
		storage:        fileStorage,
		resultFolder:   filepath.Join(tempFolder, ResultFilesFolder),
		logger:         log.OrDefault(logger, "file_download"),
		maxAge:         DefaultAutocleanMaxAge,
		stagingRetries: staging.DefaultRetries,
		handlers:       make(map[string]*handler),
	}

	for _, opt := range opts {
		opt(f)
	}

	if f.tracer == nil {
		f.tracer = otelhelper.Tracer("filestage/download")
	}

	if err := fileStorage.StartAutoclean(f.resultFolder, f.maxAge); err != nil {
		return nil, err
	}

	return f, nil
}

// Subscribe starts tracking the executions of service.
func (f *Feature) Subscribe(service execution.Service) {
	service.AddStartListener(func(ctx context.Context, executionID string) {
		f.start(ctx, service, executionID)
	})

	service.AddRetireListener(func(ctx context.Context, executionID string) {
		f.retire(ctx, executionID)
	})
}

// GetDownloadableFiles returns the staged generic outputs of an execution, empty for
// an unknown execution or one that has not finished yet.
func (f *Feature) GetDownloadableFiles(executionID string) []string {
	h, ok := f.handler(executionID)
	if !ok {
		return []string{}
	}

	return h.downloadableFiles()
}

// GetInlineImages returns the staged inline images of an execution in discovery order.
func (f *Feature) GetInlineImages(executionID string) []staging.StagedFile {
	h, ok := f.handler(executionID)
	if !ok {
		return []staging.StagedFile{}
	}

	return h.images()
}

func (f *Feature) GetResultFilesFolder() string {
	return f.resultFolder
}

func (f *Feature) AllowedToDownload(path, owner string) bool {
	return f.storage.AllowedToAccess(path, owner)
}

// SubscribeOnInlineImages registers listener for the inline images the execution
// discovers from now on.
func (f *Feature) SubscribeOnInlineImages(executionID string, listener InlineImageListener) {
	h, ok := f.handler(executionID)
	if !ok {
		f.logger.Warn("Failed to find handler for execution", "execution_id", executionID)

		return
	}

	h.addListener(listener)
}

func (f *Feature) handler(executionID string) (*handler, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	h, ok := f.handlers[executionID]

	return h, ok
}

func (f *Feature) start(ctx context.Context, service execution.Service, executionID string) {
	h, err := newHandler(ctx, f, service, executionID)
	if err != nil {
		f.logger.ErrorContext(ctx, "Failed to track execution outputs", "execution_id", executionID, "error", err)

		return
	}

	f.mu.Lock()
	previous := f.handlers[executionID]
	f.handlers[executionID] = h
	f.mu.Unlock()

	if previous != nil {
		previous.discard()
	}

	h.listen(service)
}

func (f *Feature) retire(ctx context.Context, executionID string) {
	f.mu.Lock()
	h, ok := f.handlers[executionID]
	delete(f.handlers, executionID)
	f.mu.Unlock()

	if !ok {
		return
	}

	h.discard()
	f.logger.DebugContext(ctx, "Discarded execution handler", "execution_id", executionID)
}
