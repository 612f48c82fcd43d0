package download

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dukex/filestage/pkg/execution"
	"github.com/dukex/filestage/pkg/models"
	"github.com/dukex/filestage/pkg/otelhelper"
	"github.com/dukex/filestage/pkg/resolver"
	"github.com/dukex/filestage/pkg/staging"
)

// handler tracks the outputs of one execution. A handler without declarations is
// inert: it owns no folder and never resolves anything.
type handler struct {
	executionID string
	feature     *Feature
	logger      *slog.Logger
	ctx         context.Context

	config  *models.ExecutionConfig
	values  models.ParameterValues
	generic []models.OutputDeclaration
	inline  []models.OutputDeclaration

	stream   execution.OutputStream
	resolver *resolver.Resolver
	staging  *staging.Manager

	discarded   atomic.Bool
	unsubscribe func()

	mu           sync.Mutex
	resultFiles  []string
	inlineImages []staging.StagedFile
	inlineIndex  map[string]string
	listeners    []InlineImageListener
}

func newHandler(ctx context.Context, feature *Feature, service execution.Service, executionID string) (*handler, error) {
	config, err := service.GetConfig(executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	values, err := service.GetUserParameterValues(executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get parameter values: %w", err)
	}

	h := &handler{
		executionID: executionID,
		feature:     feature,
		logger:      feature.logger.With("execution_id", executionID),
		ctx:         context.WithoutCancel(ctx),
		config:      config,
		values:      values,
		generic:     config.Declarations(models.OutputKindGeneric),
		inline:      config.Declarations(models.OutputKindInlineImage),
		inlineIndex: make(map[string]string),
	}

	if h.inert() {
		return h, nil
	}

	h.stream, err = service.GetAnonymizedOutputStream(executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get output stream: %w", err)
	}

	owner, err := service.GetOwner(executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get owner: %w", err)
	}

	folder, err := feature.storage.PrepareNewFolder(owner, feature.resultFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare download folder: %w", err)
	}

	h.logger.InfoContext(ctx, "Created download folder", "owner", owner, "folder", folder)

	h.staging = staging.NewManager(folder, h.logger, staging.WithRetries(feature.stagingRetries))
	h.resolver = resolver.New(config.WorkingDirectory, h.logger, feature.resolverOptions...)

	return h, nil
}

func (h *handler) inert() bool {
	return len(h.generic) == 0 && len(h.inline) == 0
}

// listen hooks the handler to the execution. It runs after the handler is registered,
// so images found while replaying the output are already visible to readers.
func (h *handler) listen(service execution.Service) {
	if h.inert() {
		return
	}

	if len(h.generic) > 0 {
		service.AddFinishListener(h.executionID, h.executionFinished)
	}

	if len(h.inline) > 0 {
		buffer := NewLineBuffer(h.prepareImages)
		unsubscribe := h.stream.Subscribe(buffer)

		h.mu.Lock()
		h.unsubscribe = unsubscribe
		h.mu.Unlock()
	}
}

func (h *handler) discard() {
	h.discarded.Store(true)

	h.mu.Lock()
	unsubscribe := h.unsubscribe
	h.unsubscribe = nil
	h.listeners = nil
	h.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (h *handler) executionFinished(ctx context.Context) {
	if h.discarded.Load() {
		return
	}

	chunks, err := execution.ReadUntilClosed(ctx, h.stream)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to read execution output", "error", err)

		return
	}

	staged := h.prepareFiles(ctx, models.OutputKindGeneric, h.generic, strings.Join(chunks, ""))
	if len(staged) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, file := range staged {
		h.resultFiles = append(h.resultFiles, file.Path)
	}
}

func (h *handler) prepareImages(output string) {
	if h.discarded.Load() {
		return
	}

	for _, image := range h.prepareFiles(h.ctx, models.OutputKindInlineImage, h.inline, output) {
		h.addInlineImage(image)
	}
}

// prepareFiles resolves declarations against output and stages the files found.
func (h *handler) prepareFiles(
	ctx context.Context,
	kind models.OutputKind,
	declarations []models.OutputDeclaration,
	output string,
) []staging.StagedFile {
	ctx, span := otelhelper.StartSpan(ctx, h.feature.tracer, "download.prepare_files",
		attribute.String(otelhelper.ExecutionIDKey, h.executionID),
		attribute.String(otelhelper.DeclarationKindKey, string(kind)),
		attribute.Int(otelhelper.DeclarationsKey, len(declarations)),
	)
	defer span.End()

	resolved := h.resolver.Resolve(ctx, resolver.Input{
		Declarations: declarations,
		Kind:         kind,
		Parameters:   h.config.Parameters,
		Values:       h.values,
		Text:         output,
	})

	staged := h.staging.StageAll(ctx, resolved)

	span.SetAttributes(
		attribute.Int(otelhelper.ResolvedFilesKey, len(resolved)),
		attribute.Int(otelhelper.StagedFilesKey, len(staged)),
	)

	if len(staged) < len(resolved) {
		otelhelper.SetError(span, fmt.Errorf("staged %d of %d files", len(staged), len(resolved)))
	}

	return staged
}

func (h *handler) addInlineImage(image staging.StagedFile) {
	h.mu.Lock()
	if _, exists := h.inlineIndex[image.Path]; exists {
		h.mu.Unlock()

		return
	}

	h.inlineIndex[image.Path] = image.Source
	h.inlineImages = append(h.inlineImages, image)
	listeners := append([]InlineImageListener(nil), h.listeners...)
	h.mu.Unlock()

	for _, listener := range listeners {
		h.notify(listener, image)
	}
}

func (h *handler) notify(listener InlineImageListener, image staging.StagedFile) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Inline image listener panicked", "file", image.Source, "panic", r)
		}
	}()

	if err := listener(image.Source, image.Path); err != nil {
		h.logger.Error("Failed to notify inline image listener", "file", image.Source, "error", err)
	}
}

func (h *handler) addListener(listener InlineImageListener) {
	if h.discarded.Load() {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.listeners = append(h.listeners, listener)
}

func (h *handler) downloadableFiles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]string{}, h.resultFiles...)
}

func (h *handler) images() []staging.StagedFile {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]staging.StagedFile{}, h.inlineImages...)
}
