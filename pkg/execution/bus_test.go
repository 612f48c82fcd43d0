package execution

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/filestage/pkg/channels/gochannel"
	"github.com/dukex/filestage/pkg/eventbus"
	"github.com/dukex/filestage/pkg/events"
	"github.com/dukex/filestage/pkg/mocks"
	"github.com/dukex/filestage/pkg/models"
)

func newTestBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, nil)
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestBindEventBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	registry := NewRegistry(nil)

	var retired []string
	registry.AddRetireListener(func(_ context.Context, id string) { retired = append(retired, id) })

	require.NoError(t, BindEventBus(bus, registry, nil))
	require.NoError(t, bus.Subscribe(ctx))

	config := json.RawMessage(`{"output_files": ["out.txt"], "parameters": [{"name": "token", "secure": true}]}`)

	require.NoError(t, bus.Publish(ctx, "e1", events.ExecutionStarted{
		BaseEvent:       events.NewBaseEvent(events.ExecutionStartedEvent, "e1"),
		Owner:           "alice",
		Config:          config,
		ParameterValues: models.ParameterValues{"token": "abc"},
	}))
	require.NoError(t, bus.Publish(ctx, "e1", events.ExecutionOutput{
		BaseEvent: events.NewBaseEvent(events.ExecutionOutputEvent, "e1"),
		Chunk:     "token abc\n",
	}))

	finished := make(chan struct{})
	registry.AddFinishListener("e1", func(context.Context) { close(finished) })

	require.NoError(t, bus.Publish(ctx, "e1", events.ExecutionFinished{
		BaseEvent: events.NewBaseEvent(events.ExecutionFinishedEvent, "e1"),
	}))
	<-finished

	owner, err := registry.GetOwner("e1")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	gotConfig, err := registry.GetConfig("e1")
	require.NoError(t, err)
	assert.Equal(t, []models.OutputDeclaration{models.Literal("out.txt")}, gotConfig.OutputFiles)

	stream, err := registry.GetAnonymizedOutputStream("e1")
	require.NoError(t, err)

	chunks, err := ReadUntilClosed(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"token " + SecretMask + "\n"}, chunks)

	require.NoError(t, bus.Publish(ctx, "e1", events.ExecutionRetired{
		BaseEvent: events.NewBaseEvent(events.ExecutionRetiredEvent, "e1"),
	}))
	assert.Equal(t, []string{"e1"}, retired)
}

func TestBindEventBus_DropsInapplicableEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newTestBus(t)
	registry := NewRegistry(nil)

	require.NoError(t, BindEventBus(bus, registry, nil))
	require.NoError(t, bus.Subscribe(ctx))

	// each publish blocks until the handler acknowledged, so none of these may loop
	require.NoError(t, bus.Publish(ctx, "e1", events.ExecutionOutput{
		BaseEvent: events.NewBaseEvent(events.ExecutionOutputEvent, "e1"),
		Chunk:     "orphan",
	}))
	require.NoError(t, bus.Publish(ctx, "e2", events.ExecutionStarted{
		BaseEvent: events.NewBaseEvent(events.ExecutionStartedEvent, "e2"),
		Config:    json.RawMessage(`{"parameters": [{"secure": true}]}`),
	}))

	_, err := registry.GetConfig("e2")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestBindEventBus_HandleError(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", mock.Anything, mock.Anything).Return(errors.New("closed"))

	err := BindEventBus(bus, NewRegistry(nil), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}
