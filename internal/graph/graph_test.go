package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/betbox/internal/proto"
	"github.com/dotcommander/betbox/internal/tools"
)

// scriptedModel replays canned replies, streaming each reply's content one
// word at a time.
type scriptedModel struct {
	replies []proto.Message
	err     error
	calls   [][]proto.Message
}

func (m *scriptedModel) Invoke(_ context.Context, msgs []proto.Message, emit proto.Emitter) (proto.Message, error) {
	m.calls = append(m.calls, msgs)
	if m.err != nil {
		return proto.Message{}, m.err
	}
	if len(m.calls) > len(m.replies) {
		return proto.Message{}, fmt.Errorf("unexpected call %d", len(m.calls))
	}
	reply := m.replies[len(m.calls)-1]
	for _, call := range reply.ToolCalls {
		emit(proto.Fragment{ToolCallDelta: string(call.Arguments)})
	}
	for i, word := range strings.Fields(reply.Content) {
		if i > 0 {
			word = " " + word
		}
		emit(proto.Fragment{Content: word})
	}
	return reply, nil
}

func toolCall(id, name, args string) proto.ToolCall {
	return proto.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newRegistry(t *testing.T, extra ...tools.Spec) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	r.MustRegister(tools.Weather(), tools.Prices())
	r.MustRegister(extra...)
	r.Seal()
	return r
}

type recorder struct {
	fragments []proto.Fragment
}

func (r *recorder) emit(f proto.Fragment) { r.fragments = append(r.fragments, f) }

func TestShouldContinue(t *testing.T) {
	tests := map[string]struct {
		msg      proto.Message
		expected proto.Node
	}{
		"pending calls": {
			msg:      proto.Message{Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{toolCall("1", "get_weather", `{}`)}},
			expected: proto.NodeTools,
		},
		"no calls": {
			msg:      proto.Message{Role: proto.RoleAssistant, Content: "answer"},
			expected: proto.NodeFinal,
		},
		"empty assistant": {
			msg:      proto.Message{Role: proto.RoleAssistant},
			expected: proto.NodeFinal,
		},
		"tool message": {
			msg:      proto.NewToolMessage("t", "1", "result"),
			expected: proto.NodeFinal,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, ShouldContinue(tc.msg))
		})
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{Tools: tools.NewRegistry()})
	require.Error(t, err)
	_, err = New(Config{Agent: &scriptedModel{}})
	require.Error(t, err)
	_, err = New(Config{Agent: &scriptedModel{}, Tools: tools.NewRegistry(), Persona: "{{.Request"})
	require.Error(t, err)
}

func TestWeatherScenario(t *testing.T) {
	agent := &scriptedModel{replies: []proto.Message{
		{ID: "a1", Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{toolCall("call-1", "get_weather", `{"city":"nyc"}`)}},
		{ID: "a2", Role: proto.RoleAssistant, Content: "It might be cloudy in nyc"},
	}}
	final := &scriptedModel{replies: []proto.Message{
		{ID: "f1", Role: proto.RoleAssistant, Content: "Expect clouds over nyc today."},
	}}

	g, err := New(Config{Agent: agent, Final: final, Tools: newRegistry(t), NewID: sequentialIDs()})
	require.NoError(t, err)

	var rec recorder
	convo, err := g.Run(context.Background(), "What's the weather in nyc?", rec.emit)
	require.NoError(t, err)

	msgs := convo.Messages()
	require.Len(t, msgs, 5)
	require.Equal(t, proto.RoleUser, msgs[0].Role)
	require.Equal(t, "What's the weather in nyc?", msgs[0].Content)
	require.Equal(t, proto.RoleTool, msgs[2].Role)
	require.Equal(t, "call-1", msgs[2].ToolCallID)
	require.Equal(t, "It might be cloudy in nyc", msgs[2].Content)
	require.Equal(t, "a2", msgs[4].ID)
	require.Equal(t, "Expect clouds over nyc today.", msgs[4].Content)

	var streamed strings.Builder
	for _, f := range rec.fragments {
		if f.Node == proto.NodeFinal {
			require.Equal(t, "a2", f.MessageID)
			streamed.WriteString(f.Content)
		}
	}
	require.Equal(t, "Expect clouds over nyc today.", streamed.String())
}

func TestToolResultCorrelation(t *testing.T) {
	agent := &scriptedModel{replies: []proto.Message{
		{Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{
			toolCall("c-sf", "get_weather", `{"city":"sf"}`),
			toolCall("c-px", "get_prices", `{"query":"derby"}`),
			toolCall("c-ny", "get_weather", `{"city":"nyc"}`),
		}},
		{Role: proto.RoleAssistant, Content: "done"},
	}}
	g, err := New(Config{Agent: agent, Tools: newRegistry(t)})
	require.NoError(t, err)

	convo, err := g.Run(context.Background(), "everything", nil)
	require.NoError(t, err)

	msgs := convo.Messages()
	require.Len(t, msgs, 6)
	require.Equal(t, []string{"c-sf", "c-px", "c-ny"}, []string{msgs[2].ToolCallID, msgs[3].ToolCallID, msgs[4].ToolCallID})
	require.Equal(t, "It's always sunny in sf", msgs[2].Content)
	require.Equal(t, tools.PriceQuote, msgs[3].Content)
	require.Equal(t, "It might be cloudy in nyc", msgs[4].Content)

	// second agent call sees the whole conversation so far
	require.Len(t, agent.calls[1], 5)
}

func TestFinalPromptIsolation(t *testing.T) {
	agent := &scriptedModel{replies: []proto.Message{
		{Role: proto.RoleAssistant, Content: "thinking", ToolCalls: []proto.ToolCall{toolCall("c1", "get_prices", `{"query":"final"}`)}},
		{Role: proto.RoleAssistant, Content: "Home 1.4, draw 2.4, away 4.8"},
	}}
	final := &scriptedModel{replies: []proto.Message{{Role: proto.RoleAssistant, Content: "rewritten"}}}

	g, err := New(Config{
		Agent:   agent,
		Final:   final,
		Tools:   newRegistry(t),
		System:  "be terse",
		Persona: "Trader asked: {{.Request}}",
	})
	require.NoError(t, err)

	_, err = g.Run(context.Background(), "prices for the final?", nil)
	require.NoError(t, err)

	require.Len(t, final.calls, 1)
	prompt := final.calls[0]
	require.Len(t, prompt, 2)
	require.Equal(t, proto.RoleSystem, prompt[0].Role)
	require.Equal(t, "Trader asked: prices for the final?", prompt[0].Content)
	require.Equal(t, proto.RoleUser, prompt[1].Role)
	require.Equal(t, "Home 1.4, draw 2.4, away 4.8", prompt[1].Content)

	// the system framing goes to the agent only
	require.Equal(t, proto.RoleSystem, agent.calls[0][0].Role)
	require.Equal(t, "be terse", agent.calls[0][0].Content)
}

func TestDefaultPersona(t *testing.T) {
	g, err := New(Config{Agent: &scriptedModel{}, Tools: newRegistry(t)})
	require.NoError(t, err)

	convo := proto.NewConversation(proto.NewUserMessage("u", "Who plays tonight?"))
	convo.Append(proto.Message{ID: "a", Role: proto.RoleAssistant, Content: "Arsenal"})
	prompt, err := g.FinalPrompt(convo)
	require.NoError(t, err)
	require.Contains(t, prompt[0].Content, "take the original request 'Who plays tonight?' and answer")
	require.Equal(t, "Arsenal", prompt[1].Content)
}

func TestFragmentProvenance(t *testing.T) {
	agent := &scriptedModel{replies: []proto.Message{
		{Role: proto.RoleAssistant, Content: "let me check", ToolCalls: []proto.ToolCall{toolCall("c1", "get_weather", `{"city":"sf"}`)}},
		{Role: proto.RoleAssistant, Content: "sunny"},
	}}
	final := &scriptedModel{replies: []proto.Message{{Role: proto.RoleAssistant, Content: "Sunny in sf"}}}
	g, err := New(Config{Agent: agent, Final: final, Tools: newRegistry(t)})
	require.NoError(t, err)

	var rec recorder
	_, err = g.Run(context.Background(), "sf?", rec.emit)
	require.NoError(t, err)

	nodes := map[proto.Node]int{}
	for _, f := range rec.fragments {
		nodes[f.Node]++
	}
	require.Equal(t, 1, nodes[proto.NodeStart])
	require.Equal(t, 1, nodes[proto.NodeTools])
	require.Equal(t, 3, nodes[proto.NodeFinal])
	require.Positive(t, nodes[proto.NodeAgent])

	require.Equal(t, proto.RoleUser, rec.fragments[0].Role)
}

func TestNoFinalizerHaltsOnAgentAnswer(t *testing.T) {
	agent := &scriptedModel{replies: []proto.Message{{Role: proto.RoleAssistant, Content: "LangGraph is a library."}}}
	g, err := New(Config{Agent: agent, Tools: newRegistry(t)})
	require.NoError(t, err)

	convo, err := g.Run(context.Background(), "What do you know about LangGraph?", nil)
	require.NoError(t, err)
	require.Equal(t, 2, convo.Len())
	require.Equal(t, "LangGraph is a library.", convo.Last().Content)
	require.NotEmpty(t, convo.Last().ID)
}

func TestUnboundedToolLoop(t *testing.T) {
	looping := proto.Message{Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{toolCall("c", "get_prices", `{"query":"again"}`)}}
	agent := &scriptedModel{replies: []proto.Message{looping, looping, looping, looping}}
	g, err := New(Config{Agent: agent, Tools: newRegistry(t), MaxToolRounds: 3})
	require.NoError(t, err)

	_, err = g.Run(context.Background(), "loop", nil)
	require.ErrorIs(t, err, ErrUnboundedToolLoop)
	require.Len(t, agent.calls, 4)
}

func TestUnknownToolAbortsTurn(t *testing.T) {
	agent := &scriptedModel{replies: []proto.Message{
		{Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{toolCall("c", "get_horoscope", `{}`)}},
	}}
	final := &scriptedModel{}
	g, err := New(Config{Agent: agent, Final: final, Tools: newRegistry(t)})
	require.NoError(t, err)

	convo, err := g.Run(context.Background(), "stars?", nil)
	require.ErrorIs(t, err, tools.ErrUnknownTool)
	require.Nil(t, convo)
	require.Empty(t, final.calls)
}

func TestFailingToolAbortsTurn(t *testing.T) {
	broken := tools.Spec{
		Name:   "get_event_types",
		Invoke: func(context.Context, json.RawMessage) (any, error) { return nil, errors.New("session expired") },
	}
	agent := &scriptedModel{replies: []proto.Message{
		{Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{toolCall("c", "get_event_types", `{}`)}},
	}}
	g, err := New(Config{Agent: agent, Tools: newRegistry(t, broken)})
	require.NoError(t, err)

	_, err = g.Run(context.Background(), "sports?", nil)
	require.ErrorIs(t, err, tools.ErrToolInvocation)
	require.ErrorContains(t, err, "session expired")
}

func TestModelErrorAbortsTurn(t *testing.T) {
	boom := errors.New("rate limited")
	g, err := New(Config{Agent: &scriptedModel{err: boom}, Tools: newRegistry(t)})
	require.NoError(t, err)

	_, err = g.Run(context.Background(), "hi", nil)
	require.ErrorIs(t, err, boom)
}

func TestCancelledContext(t *testing.T) {
	agent := &scriptedModel{replies: []proto.Message{{Role: proto.RoleAssistant, Content: "never"}}}
	g, err := New(Config{Agent: agent, Tools: newRegistry(t)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Run(ctx, "hi", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, agent.calls)
}
