// Package events defines the execution lifecycle events carried over the event bus.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/filestage/pkg/models"
)

type EventType string

// Topic carries every execution lifecycle event, keyed by execution id.
const Topic = "filestage.executions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent  EventType = "execution.started"
	ExecutionOutputEvent   EventType = "execution.output"
	ExecutionFinishedEvent EventType = "execution.finished"
	ExecutionRetiredEvent  EventType = "execution.retired"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
	}
}

// ExecutionStarted announces a new execution. Config holds the raw execution config
// document so it can be schema-checked before decoding.
type ExecutionStarted struct {
	BaseEvent

	Owner           string                 `json:"owner"`
	Config          json.RawMessage        `json:"config"`
	ParameterValues models.ParameterValues `json:"parameter_values,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionOutput carries one chunk of raw script output.
type ExecutionOutput struct {
	BaseEvent

	Chunk string `json:"chunk"`
}

func (e ExecutionOutput) GetType() EventType {
	return ExecutionOutputEvent
}

type ExecutionFinished struct {
	BaseEvent

	ExitCode int `json:"exit_code"`
}

func (e ExecutionFinished) GetType() EventType {
	return ExecutionFinishedEvent
}

// ExecutionRetired tells consumers to drop every state kept for the execution.
type ExecutionRetired struct {
	BaseEvent
}

func (e ExecutionRetired) GetType() EventType {
	return ExecutionRetiredEvent
}
