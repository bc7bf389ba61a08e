package fantasybridge

import (
	"context"
	"errors"
	"testing"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/betbox/internal/proto"
	"github.com/dotcommander/betbox/internal/tools"
)

type fakeStreamer struct {
	parts []fantasy.StreamPart
	err   error
	calls []fantasy.Call
}

func (s *fakeStreamer) Stream(_ context.Context, call fantasy.Call) (fantasy.StreamResponse, error) {
	s.calls = append(s.calls, call)
	if s.err != nil {
		return nil, s.err
	}
	return func(yield func(fantasy.StreamPart) bool) {
		for _, part := range s.parts {
			if !yield(part) {
				return
			}
		}
	}, nil
}

func newTestModel(t *testing.T, lm streamer, api string, settings Settings, specs ...tools.Spec) *Model {
	t.Helper()
	m, err := newModel(lm, Config{API: api}, settings, specs, nil)
	require.NoError(t, err)
	return m
}

func TestInvokeStreamsText(t *testing.T) {
	lm := &fakeStreamer{parts: []fantasy.StreamPart{
		{Type: fantasy.StreamPartTypeTextStart, ID: "txt"},
		{Type: fantasy.StreamPartTypeTextDelta, ID: "txt", Delta: "Expect"},
		{Type: fantasy.StreamPartTypeTextDelta, ID: "txt", Delta: " clouds."},
		{Type: fantasy.StreamPartTypeTextEnd, ID: "txt"},
		{Type: fantasy.StreamPartTypeFinish},
	}}
	m := newTestModel(t, lm, "openai", Settings{Model: "gpt-4o-2024-11-20"})

	var fragments []proto.Fragment
	msg, err := m.Invoke(context.Background(), []proto.Message{proto.NewUserMessage("u", "hi")}, func(f proto.Fragment) {
		fragments = append(fragments, f)
	})
	require.NoError(t, err)
	require.Equal(t, proto.RoleAssistant, msg.Role)
	require.Equal(t, "Expect clouds.", msg.Content)
	require.Empty(t, msg.ToolCalls)

	require.Len(t, fragments, 2)
	require.Equal(t, "Expect", fragments[0].Content)
	require.Equal(t, proto.RoleAssistant, fragments[0].Role)
}

func TestInvokeCollectsToolCalls(t *testing.T) {
	lm := &fakeStreamer{parts: []fantasy.StreamPart{
		{Type: fantasy.StreamPartTypeToolInputStart, ID: "call_1", ToolCallName: "get_weather"},
		{Type: fantasy.StreamPartTypeToolInputDelta, ID: "call_1", Delta: `{"city":`},
		{Type: fantasy.StreamPartTypeToolInputDelta, ID: "call_1", Delta: `"nyc"}`},
		{Type: fantasy.StreamPartTypeToolInputEnd, ID: "call_1"},
		{Type: fantasy.StreamPartTypeToolCall, ID: "call_1", ToolCallName: "get_weather", ToolCallInput: `{"city":"nyc"}`},
		{Type: fantasy.StreamPartTypeToolCall, ID: "call_1", ToolCallName: "get_weather", ToolCallInput: `{"city":"nyc"}`},
		{Type: fantasy.StreamPartTypeToolCall, ID: "srv_1", ToolCallName: "web", ToolCallInput: `{}`, ProviderExecuted: true},
		{Type: fantasy.StreamPartTypeFinish},
	}}
	m := newTestModel(t, lm, "openai", Settings{Model: "gpt-4o"}, tools.Weather())

	var fragments []proto.Fragment
	msg, err := m.Invoke(context.Background(), nil, func(f proto.Fragment) { fragments = append(fragments, f) })
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	require.Equal(t, "call_1", msg.ToolCalls[0].ID)
	require.Equal(t, "get_weather", msg.ToolCalls[0].Name)
	require.JSONEq(t, `{"city":"nyc"}`, string(msg.ToolCalls[0].Arguments))
	require.True(t, msg.HasToolCalls())

	require.Len(t, fragments, 2)
	for _, f := range fragments {
		require.Empty(t, f.Content)
		require.NotEmpty(t, f.ToolCallDelta)
	}

	call := lm.calls[0]
	require.Len(t, call.Tools, 1)
	require.NotNil(t, call.ToolChoice)
	require.Equal(t, fantasy.ToolChoiceAuto, *call.ToolChoice)
}

func TestInvokeErrors(t *testing.T) {
	boom := errors.New("overloaded")

	t.Run("stream start", func(t *testing.T) {
		m := newTestModel(t, &fakeStreamer{err: boom}, "openai", Settings{})
		_, err := m.Invoke(context.Background(), nil, nil)
		require.ErrorIs(t, err, boom)
	})

	t.Run("error part", func(t *testing.T) {
		lm := &fakeStreamer{parts: []fantasy.StreamPart{
			{Type: fantasy.StreamPartTypeTextDelta, Delta: "partial"},
			{Type: fantasy.StreamPartTypeError, Error: boom},
		}}
		m := newTestModel(t, lm, "openai", Settings{})
		_, err := m.Invoke(context.Background(), nil, nil)
		require.ErrorIs(t, err, boom)
	})
}

func TestBuildCallWithoutTools(t *testing.T) {
	m := newTestModel(t, &fakeStreamer{}, "openai", Settings{Model: "gpt-4o", MaxTokens: 100})
	call := m.buildCall(nil)
	require.Empty(t, call.Tools)
	require.Nil(t, call.ToolChoice)
	require.NotNil(t, call.MaxOutputTokens)
	require.EqualValues(t, 100, *call.MaxOutputTokens)

	o1 := newTestModel(t, &fakeStreamer{}, "openai", Settings{Model: "o1-mini", MaxTokens: 100})
	require.Nil(t, o1.buildCall(nil).MaxOutputTokens)
}

func TestBuildCallTemperature(t *testing.T) {
	zero := 0.0
	m := newTestModel(t, &fakeStreamer{}, "openai", Settings{Model: "gpt-4o", Temperature: &zero})
	call := m.buildCall(nil)
	require.NotNil(t, call.Temperature)
	require.Zero(t, *call.Temperature)
}

func TestBuildCallGoogleThinkingBudget(t *testing.T) {
	m, err := newModel(&fakeStreamer{}, Config{API: "google", ThinkingBudget: 256}, Settings{}, nil, nil)
	require.NoError(t, err)

	call := m.buildCall(nil)
	v, ok := call.ProviderOptions[google.Name]
	require.True(t, ok)
	opts, ok := v.(*google.ProviderOptions)
	require.True(t, ok)
	require.NotNil(t, opts.ThinkingConfig)
	require.EqualValues(t, 256, *opts.ThinkingConfig.ThinkingBudget)

	other, err := newModel(&fakeStreamer{}, Config{API: "openai", ThinkingBudget: 512}, Settings{}, nil, nil)
	require.NoError(t, err)
	require.Empty(t, other.buildCall(nil).ProviderOptions)
}

func TestBuildCallUserProviderOptions(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		call := newTestModel(t, &fakeStreamer{}, "openai", Settings{User: "alice"}).buildCall(nil)
		opts, ok := call.ProviderOptions[fopenai.Name].(*fopenai.ProviderOptions)
		require.True(t, ok)
		require.Equal(t, "alice", *opts.User)
	})

	t.Run("openai-compatible", func(t *testing.T) {
		call := newTestModel(t, &fakeStreamer{}, "deepseek", Settings{User: "bob"}).buildCall(nil)
		opts, ok := call.ProviderOptions[fopenaicompat.Name].(*fopenaicompat.ProviderOptions)
		require.True(t, ok)
		require.Equal(t, "bob", *opts.User)
	})

	t.Run("anthropic", func(t *testing.T) {
		call := newTestModel(t, &fakeStreamer{}, "anthropic", Settings{User: "carol"}).buildCall(nil)
		require.Empty(t, call.ProviderOptions)
	})
}

func TestBuildCallMaxCompletionTokens(t *testing.T) {
	call := newTestModel(t, &fakeStreamer{}, "openai", Settings{MaxCompletionTokens: 321}).buildCall(nil)
	opts, ok := call.ProviderOptions[fopenai.Name].(*fopenai.ProviderOptions)
	require.True(t, ok)
	require.EqualValues(t, 321, *opts.MaxCompletionTokens)

	compat := newTestModel(t, &fakeStreamer{}, "deepseek", Settings{MaxCompletionTokens: 321}).buildCall(nil)
	_, hasCompat := compat.ProviderOptions[fopenaicompat.Name]
	require.False(t, hasCompat)
}

func TestNewProvider(t *testing.T) {
	tests := map[string]Config{
		"openai":    {API: "openai", APIKey: "k"},
		"anthropic": {API: "anthropic", APIKey: "k"},
		"azure-ad":  {API: "azure-ad", APIKey: "token", BaseURL: "https://example.openai.azure.com"},
		"compat":    {API: "ollama", BaseURL: "http://localhost:11434/v1"},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := NewProvider(cfg)
			require.NoError(t, err)
			require.NotNil(t, p)
		})
	}

	_, err := NewProvider(Config{})
	require.Error(t, err)
}
