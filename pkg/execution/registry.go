package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/filestage/pkg/log"
	"github.com/dukex/filestage/pkg/models"
)

// SecretMask replaces secure parameter values in the anonymized output.
const SecretMask = "******"

type entry struct {
	config   *models.ExecutionConfig
	owner    string
	values   models.ParameterValues
	stream   *Stream
	finished bool
	finishes []FinishListener

	// outMu orders masking and publishing of output chunks.
	outMu  sync.Mutex
	masker *masker
}

// Registry is an in-memory Service driven by explicit lifecycle calls.
type Registry struct {
	logger *slog.Logger

	mu              sync.RWMutex
	executions      map[string]*entry
	startListeners  []StartListener
	retireListeners []RetireListener
}

var _ Service = (*Registry)(nil)

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:     log.OrDefault(logger, "execution_registry"),
		executions: make(map[string]*entry),
	}
}

func (r *Registry) AddStartListener(listener StartListener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.startListeners = append(r.startListeners, listener)
}

func (r *Registry) AddRetireListener(listener RetireListener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retireListeners = append(r.retireListeners, listener)
}

func (r *Registry) AddFinishListener(executionID string, listener FinishListener) {
	r.mu.Lock()

	e, ok := r.executions[executionID]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("Finish listener for unknown execution", "execution_id", executionID)

		return
	}

	if !e.finished {
		e.finishes = append(e.finishes, listener)
		r.mu.Unlock()

		return
	}

	r.mu.Unlock()
	listener(context.Background())
}

func (r *Registry) GetConfig(executionID string) (*models.ExecutionConfig, error) {
	e, err := r.get(executionID)
	if err != nil {
		return nil, err
	}

	return e.config, nil
}

func (r *Registry) GetUserParameterValues(executionID string) (models.ParameterValues, error) {
	e, err := r.get(executionID)
	if err != nil {
		return nil, err
	}

	return e.values, nil
}

func (r *Registry) GetOwner(executionID string) (string, error) {
	e, err := r.get(executionID)
	if err != nil {
		return "", err
	}

	return e.owner, nil
}

func (r *Registry) GetAnonymizedOutputStream(executionID string) (OutputStream, error) {
	e, err := r.get(executionID)
	if err != nil {
		return nil, err
	}

	return e.stream, nil
}

// Start registers an execution and notifies the start listeners.
func (r *Registry) Start(
	ctx context.Context,
	executionID string,
	owner string,
	config *models.ExecutionConfig,
	values models.ParameterValues,
) error {
	if config == nil {
		config = &models.ExecutionConfig{}
	}

	r.mu.Lock()
	if _, exists := r.executions[executionID]; exists {
		r.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrExecutionExists, executionID)
	}

	r.executions[executionID] = &entry{
		config:  config,
		owner:   owner,
		values:  values,
		stream:  NewStream(),
		masker:  newMasker(secureValues(config.Parameters, values)),
	}
	listeners := append([]StartListener(nil), r.startListeners...)
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Execution started", "execution_id", executionID, "owner", owner)

	for _, listener := range listeners {
		listener(ctx, executionID)
	}

	return nil
}

// Output appends a chunk of script output, masking secure parameter values. Text that
// may continue a secret in the next chunk is published once the next chunk arrives or
// the execution ends.
func (r *Registry) Output(_ context.Context, executionID string, chunk string) error {
	e, err := r.get(executionID)
	if err != nil {
		return err
	}

	e.outMu.Lock()
	defer e.outMu.Unlock()

	if masked := e.masker.mask(chunk); masked != "" {
		e.stream.Push(masked)
	}

	return nil
}

// Finish closes the output stream, then fires the finish listeners once.
func (r *Registry) Finish(ctx context.Context, executionID string) error {
	r.mu.Lock()

	e, ok := r.executions[executionID]
	if !ok {
		r.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	if e.finished {
		r.mu.Unlock()

		return nil
	}

	e.finished = true
	listeners := e.finishes
	e.finishes = nil
	r.mu.Unlock()

	e.closeOutput()

	r.logger.InfoContext(ctx, "Execution finished", "execution_id", executionID)

	for _, listener := range listeners {
		listener(ctx)
	}

	return nil
}

// Retire drops an execution and notifies the retire listeners.
func (r *Registry) Retire(ctx context.Context, executionID string) error {
	r.mu.Lock()

	e, ok := r.executions[executionID]
	if !ok {
		r.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	delete(r.executions, executionID)
	listeners := append([]RetireListener(nil), r.retireListeners...)
	r.mu.Unlock()

	e.closeOutput()

	r.logger.InfoContext(ctx, "Execution retired", "execution_id", executionID)

	for _, listener := range listeners {
		listener(ctx, executionID)
	}

	return nil
}

func (r *Registry) get(executionID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}

	return e, nil
}

func (e *entry) closeOutput() {
	e.outMu.Lock()
	defer e.outMu.Unlock()

	if rest := e.masker.flush(); rest != "" {
		e.stream.Push(rest)
	}

	e.stream.Close()
}

func secureValues(parameters []models.ParameterConfig, values models.ParameterValues) []string {
	var secrets []string

	for _, parameter := range parameters {
		if !parameter.Secure {
			continue
		}

		if value := models.FormatParameterValue(values[parameter.Name]); value != "" {
			secrets = append(secrets, value)
		}
	}

	return secrets
}
