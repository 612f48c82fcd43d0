package execution

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/filestage/pkg/models"
)

func TestRegistry_Lifecycle(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)

	var started, retired []string
	registry.AddStartListener(func(_ context.Context, id string) { started = append(started, id) })
	registry.AddRetireListener(func(_ context.Context, id string) { retired = append(retired, id) })

	config := &models.ExecutionConfig{OutputFiles: []models.OutputDeclaration{models.Literal("out.txt")}}
	values := models.ParameterValues{"name": "x"}

	require.NoError(t, registry.Start(ctx, "e1", "alice", config, values))
	assert.Equal(t, []string{"e1"}, started)

	gotConfig, err := registry.GetConfig("e1")
	require.NoError(t, err)
	assert.Same(t, config, gotConfig)

	gotValues, err := registry.GetUserParameterValues("e1")
	require.NoError(t, err)
	assert.Equal(t, values, gotValues)

	owner, err := registry.GetOwner("e1")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	require.NoError(t, registry.Retire(ctx, "e1"))
	assert.Equal(t, []string{"e1"}, retired)

	_, err = registry.GetConfig("e1")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestRegistry_StartTwice(t *testing.T) {
	registry := NewRegistry(nil)

	require.NoError(t, registry.Start(context.Background(), "e1", "alice", nil, nil))
	err := registry.Start(context.Background(), "e1", "alice", nil, nil)
	assert.ErrorIs(t, err, ErrExecutionExists)
}

func TestRegistry_UnknownExecution(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)

	assert.ErrorIs(t, registry.Output(ctx, "missing", "x"), ErrExecutionNotFound)
	assert.ErrorIs(t, registry.Finish(ctx, "missing"), ErrExecutionNotFound)
	assert.ErrorIs(t, registry.Retire(ctx, "missing"), ErrExecutionNotFound)

	_, err := registry.GetAnonymizedOutputStream("missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	_, err = registry.GetOwner("missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	registry.AddFinishListener("missing", func(context.Context) { t.Fatal("listener must not fire") })
}

func TestRegistry_OutputIsAnonymized(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)

	config := &models.ExecutionConfig{Parameters: []models.ParameterConfig{
		{Name: "user"},
		{Name: "token", Secure: true},
	}}
	values := models.ParameterValues{"user": "bob", "token": "s3cr3t"}

	require.NoError(t, registry.Start(ctx, "e1", "alice", config, values))
	require.NoError(t, registry.Output(ctx, "e1", "user=bob token=s3cr3t\n"))
	require.NoError(t, registry.Finish(ctx, "e1"))

	stream, err := registry.GetAnonymizedOutputStream("e1")
	require.NoError(t, err)

	chunks, err := ReadUntilClosed(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, []string{"user=bob token=" + SecretMask + "\n"}, chunks)
}

func TestRegistry_OutputMasksNumericSecrets(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)

	var values models.ParameterValues
	require.NoError(t, json.Unmarshal([]byte(`{"pin": 1234567}`), &values))

	config := &models.ExecutionConfig{Parameters: []models.ParameterConfig{{Name: "pin", Secure: true}}}

	require.NoError(t, registry.Start(ctx, "e1", "alice", config, values))
	require.NoError(t, registry.Output(ctx, "e1", "pin is 1234567\n"))
	require.NoError(t, registry.Finish(ctx, "e1"))

	stream, err := registry.GetAnonymizedOutputStream("e1")
	require.NoError(t, err)

	chunks, err := ReadUntilClosed(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, "pin is "+SecretMask+"\n", strings.Join(chunks, ""))
}

func TestRegistry_OutputMasksSecretsAcrossChunks(t *testing.T) {
	tests := []struct {
		name     string
		chunks   []string
		expected string
	}{
		{"split secret", []string{"token=s3c", "r3t\n"}, "token=" + SecretMask + "\n"},
		{"split in three", []string{"s", "3cr", "3t done"}, SecretMask + " done"},
		{"prefix at the end is flushed", []string{"ends with s3c"}, "ends with s3c"},
		{"no secret", []string{"plain ", "text\n"}, "plain text\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			registry := NewRegistry(nil)

			config := &models.ExecutionConfig{Parameters: []models.ParameterConfig{{Name: "token", Secure: true}}}
			require.NoError(t, registry.Start(ctx, "e1", "alice", config, models.ParameterValues{"token": "s3cr3t"}))

			for _, chunk := range tt.chunks {
				require.NoError(t, registry.Output(ctx, "e1", chunk))
			}

			require.NoError(t, registry.Finish(ctx, "e1"))

			stream, err := registry.GetAnonymizedOutputStream("e1")
			require.NoError(t, err)

			chunks, err := ReadUntilClosed(ctx, stream)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, strings.Join(chunks, ""))

			for _, chunk := range chunks {
				assert.NotContains(t, chunk, "s3cr3t")
			}
		})
	}
}

func TestRegistry_RetireFlushesHeldOutput(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)

	config := &models.ExecutionConfig{Parameters: []models.ParameterConfig{{Name: "token", Secure: true}}}
	require.NoError(t, registry.Start(ctx, "e1", "alice", config, models.ParameterValues{"token": "s3cr3t"}))

	stream, err := registry.GetAnonymizedOutputStream("e1")
	require.NoError(t, err)

	require.NoError(t, registry.Output(ctx, "e1", "value s3"))
	require.NoError(t, registry.Retire(ctx, "e1"))

	chunks, err := ReadUntilClosed(ctx, stream)
	require.NoError(t, err)
	assert.Equal(t, "value s3", strings.Join(chunks, ""))
}

func TestRegistry_FinishListeners(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	require.NoError(t, registry.Start(ctx, "e1", "alice", nil, nil))

	stream, err := registry.GetAnonymizedOutputStream("e1")
	require.NoError(t, err)

	observer := &recordingObserver{}
	stream.Subscribe(observer)

	fired := 0
	registry.AddFinishListener("e1", func(context.Context) {
		assert.Equal(t, 1, observer.closes, "stream closes before finish listeners run")
		fired++
	})

	require.NoError(t, registry.Finish(ctx, "e1"))
	require.NoError(t, registry.Finish(ctx, "e1"))
	assert.Equal(t, 1, fired)

	late := 0
	registry.AddFinishListener("e1", func(context.Context) { late++ })
	assert.Equal(t, 1, late)
}
