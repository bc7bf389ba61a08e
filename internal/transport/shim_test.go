package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/betbox/internal/proto"
)

type fakeRunner struct {
	fragments []proto.Fragment
	final     proto.Message
	err       error
}

func (r fakeRunner) Run(ctx context.Context, text string, emit proto.Emitter) (*proto.Conversation, error) {
	for _, f := range r.fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emit(f)
	}
	if r.err != nil {
		return nil, r.err
	}
	convo := proto.NewConversation(proto.NewUserMessage("u", text))
	convo.Append(r.final)
	return convo, nil
}

type recordingSink struct {
	tokens   []string
	done     []proto.Message
	failures []error
	tokenErr error
}

func (s *recordingSink) Token(f proto.Fragment) error {
	if s.tokenErr != nil {
		return s.tokenErr
	}
	s.tokens = append(s.tokens, f.Content)
	return nil
}

func (s *recordingSink) Done(m proto.Message) error {
	s.done = append(s.done, m)
	return nil
}

func (s *recordingSink) Fail(err error) error {
	s.failures = append(s.failures, err)
	return nil
}

var mixedStream = []proto.Fragment{
	{MessageID: "u", Role: proto.RoleUser, Content: "weather in nyc?", Node: proto.NodeStart},
	{MessageID: "a1", Role: proto.RoleAssistant, ToolCallDelta: `{"city":`, Node: proto.NodeAgent},
	{MessageID: "a1", Role: proto.RoleAssistant, ToolCallDelta: `"nyc"}`, Node: proto.NodeAgent},
	{MessageID: "t1", Role: proto.RoleTool, Content: "It might be cloudy in nyc", Node: proto.NodeTools},
	{MessageID: "a2", Role: proto.RoleAssistant, Content: "It might be cloudy", Node: proto.NodeAgent},
	{MessageID: "a2", Role: proto.RoleAssistant, Content: "Expect", Node: proto.NodeFinal},
	{MessageID: "a2", Role: proto.RoleAssistant, Content: "", Node: proto.NodeFinal},
	{MessageID: "a2", Role: proto.RoleAssistant, Content: " clouds", Node: proto.NodeFinal},
	{MessageID: "a2", Role: proto.RoleUser, Content: "echo", Node: proto.NodeFinal},
	{MessageID: "a2", Role: proto.RoleAssistant, Content: " in nyc.", Node: proto.NodeFinal},
}

func TestDeliverable(t *testing.T) {
	tests := map[string]struct {
		f        proto.Fragment
		expected bool
	}{
		"final text":   {f: proto.Fragment{Role: proto.RoleAssistant, Content: "hi", Node: proto.NodeFinal}, expected: true},
		"final empty":  {f: proto.Fragment{Role: proto.RoleAssistant, Node: proto.NodeFinal}, expected: false},
		"final user":   {f: proto.Fragment{Role: proto.RoleUser, Content: "hi", Node: proto.NodeFinal}, expected: false},
		"agent text":   {f: proto.Fragment{Role: proto.RoleAssistant, Content: "hi", Node: proto.NodeAgent}, expected: false},
		"tool result":  {f: proto.Fragment{Role: proto.RoleTool, Content: "hi", Node: proto.NodeTools}, expected: false},
		"tool delta":   {f: proto.Fragment{Role: proto.RoleAssistant, ToolCallDelta: "{", Node: proto.NodeFinal}, expected: false},
		"user request": {f: proto.Fragment{Role: proto.RoleUser, Content: "hi", Node: proto.NodeStart}, expected: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, Deliverable(tc.f))
		})
	}
}

func TestTurnForwardsOnlyFinalTokens(t *testing.T) {
	final := proto.Message{ID: "a2", Role: proto.RoleAssistant, Content: "Expect clouds in nyc."}
	shim := NewShim(fakeRunner{fragments: mixedStream, final: final}, nil).WithBuffer(1)

	sink := &recordingSink{}
	convo, err := shim.Turn(context.Background(), "weather in nyc?", sink)
	require.NoError(t, err)
	require.Equal(t, "a2", convo.Last().ID)

	require.Equal(t, []string{"Expect", " clouds", " in nyc."}, sink.tokens)
	require.Equal(t, []proto.Message{final}, sink.done)
	require.Empty(t, sink.failures)
}

func TestTurnFailureSignalsError(t *testing.T) {
	boom := errors.New("tool exploded")
	shim := NewShim(fakeRunner{fragments: mixedStream[:4], err: boom}, nil)

	sink := &recordingSink{}
	_, err := shim.Turn(context.Background(), "weather in nyc?", sink)
	require.ErrorIs(t, err, boom)
	require.Empty(t, sink.tokens)
	require.Empty(t, sink.done)
	require.Len(t, sink.failures, 1)
	require.ErrorIs(t, sink.failures[0], boom)
}

func TestTurnStopsWhenSinkFails(t *testing.T) {
	gone := errors.New("client went away")
	shim := NewShim(fakeRunner{fragments: mixedStream, final: proto.Message{ID: "a2"}}, nil)

	sink := &recordingSink{tokenErr: gone}
	_, err := shim.Turn(context.Background(), "weather in nyc?", sink)
	require.ErrorIs(t, err, gone)
	require.Empty(t, sink.done)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	shim := NewShim(fakeRunner{fragments: mixedStream, final: proto.Message{ID: "a2"}}, nil)
	_, err := shim.Turn(context.Background(), "q", WriterSink{W: &buf})
	require.NoError(t, err)
	require.Equal(t, "Expect clouds in nyc.\n", buf.String())
}

func TestTrackingSink(t *testing.T) {
	var buf bytes.Buffer
	sink := &TrackingSink{Sink: WriterSink{W: &buf}}

	shim := NewShim(fakeRunner{err: errors.New("boom")}, nil)
	_, err := shim.Turn(context.Background(), "q", sink)
	require.Error(t, err)
	require.False(t, sink.Delivered())

	shim = NewShim(fakeRunner{fragments: mixedStream, err: errors.New("boom")}, nil)
	_, err = shim.Turn(context.Background(), "q", sink)
	require.Error(t, err)
	require.True(t, sink.Delivered())
	require.Equal(t, "Expect clouds in nyc.", buf.String())
}

func TestChanSink(t *testing.T) {
	sink := NewChanSink(context.Background(), 16)
	shim := NewShim(fakeRunner{fragments: mixedStream, final: proto.Message{ID: "a2", Content: "Expect clouds in nyc."}}, nil)

	_, err := shim.Turn(context.Background(), "q", sink)
	require.NoError(t, err)
	sink.Close()

	var events []Event
	for ev := range sink.Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 4)
	require.Equal(t, "Expect", events[0].Token)
	require.True(t, events[3].Done)
	require.Equal(t, "a2", events[3].Final.ID)
}
