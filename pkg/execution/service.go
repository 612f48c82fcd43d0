// Package execution defines the execution lifecycle consumed by the download feature and
// provides an in-memory implementation of it.
package execution

import (
	"context"
	"errors"

	"github.com/dukex/filestage/pkg/models"
)

var (
	// ErrExecutionNotFound indicates no execution is registered under the given id.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionExists indicates an execution with the same id was already started.
	ErrExecutionExists = errors.New("execution already exists")
)

type StartListener func(ctx context.Context, executionID string)

type FinishListener func(ctx context.Context)

type RetireListener func(ctx context.Context, executionID string)

// Service exposes the lifecycle and state of running executions.
type Service interface {
	// AddStartListener registers a callback invoked once per started execution.
	AddStartListener(listener StartListener)
	// AddFinishListener registers a callback invoked once the execution finished and its
	// output stream is closed. It fires immediately for an already finished execution.
	AddFinishListener(executionID string, listener FinishListener)
	// AddRetireListener registers a callback invoked when an execution is dropped from
	// the service's bookkeeping.
	AddRetireListener(listener RetireListener)

	GetConfig(executionID string) (*models.ExecutionConfig, error)
	GetUserParameterValues(executionID string) (models.ParameterValues, error)
	GetOwner(executionID string) (string, error)
	// GetAnonymizedOutputStream returns the output with secure values already masked.
	GetAnonymizedOutputStream(executionID string) (OutputStream, error)
}
