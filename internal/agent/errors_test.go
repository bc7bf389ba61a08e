package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"charm.land/fantasy"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/betbox/internal/betfair"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/graph"
	"github.com/dotcommander/betbox/internal/proto"
	"github.com/dotcommander/betbox/internal/tools"
)

var cutPromptTests = map[string]struct {
	msg      string
	prompt   string
	expected string
}{
	"bad error": {
		msg:      "nope",
		prompt:   "the prompt",
		expected: "the prompt",
	},
	"crazy error": {
		msg:      tokenErrMsg(10, 93),
		prompt:   "the prompt",
		expected: "the prompt",
	},
	"cut prompt": {
		msg:      tokenErrMsg(10, 3),
		prompt:   "who is favourite for the cheltenham gold cup this year",
		expected: "who is favourite",
	},
	"missmatch of token estimation vs api result": {
		msg:      tokenErrMsg(30000, 100),
		prompt:   "odds on arsenal",
		expected: "odds on arsenal",
	},
}

func tokenErrMsg(l, ml int) string {
	return fmt.Sprintf(
		`This model's maximum context length is %d tokens. However, your messages resulted in %d tokens`,
		ml,
		l,
	)
}

func TestCutPrompt(t *testing.T) {
	for name, tc := range cutPromptTests {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, cutPrompt(tc.msg, tc.prompt))
		})
	}
}

func TestActionForTurnError(t *testing.T) {
	t.Run("context length retries with a shorter prompt", func(t *testing.T) {
		prompt := strings.Repeat("x", 100)
		err := &fantasy.ProviderError{
			StatusCode: http.StatusBadRequest,
			Message:    "context_length_exceeded: " + tokenErrMsg(20, 10),
		}
		action := ActionForTurnError(err, "openai", prompt)
		require.True(t, action.Retry)
		require.Len(t, action.Prompt, 50)
		require.Equal(t, "Maximum prompt size exceeded.", action.Err.Reason)
	})

	t.Run("missing model is final", func(t *testing.T) {
		err := &fantasy.ProviderError{StatusCode: http.StatusNotFound, Message: "no such model"}
		action := ActionForTurnError(err, "anthropic", "hi")
		require.False(t, action.Retry)
		require.Equal(t, "The model was not found on API 'anthropic'.", action.Err.Reason)
	})

	t.Run("non provider errors are described", func(t *testing.T) {
		action := ActionForTurnError(graph.ErrUnboundedToolLoop, "openai", "hi")
		require.False(t, action.Retry)
		require.ErrorIs(t, action.Err, graph.ErrUnboundedToolLoop)
	})
}

func TestDescribe(t *testing.T) {
	tests := map[string]struct {
		err    error
		reason string
	}{
		"keeps existing reason": {
			err:    errs.Wrap(errors.New("boom"), "Already explained."),
			reason: "Already explained.",
		},
		"loop cap": {
			err:    fmt.Errorf("turn: %w", graph.ErrUnboundedToolLoop),
			reason: "The assistant kept calling tools without answering.",
		},
		"unknown tool": {
			err:    fmt.Errorf("%w: %q", tools.ErrUnknownTool, "place_bet"),
			reason: "The assistant asked for a tool that does not exist.",
		},
		"exchange fault inside a tool": {
			err: &tools.ToolError{Tool: "get_competitions", CallID: "c1", Err: &betfair.APIError{
				StatusCode: http.StatusBadRequest,
				Code:       "TOO_MUCH_DATA",
			}},
			reason: "Betfair rejected the request (TOO_MUCH_DATA).",
		},
		"failing tool": {
			err:    &tools.ToolError{Tool: "get_weather", CallID: "c1", Err: errors.New("unknown city")},
			reason: "A tool failed while answering.",
		},
		"expired session": {
			err:    fmt.Errorf("listEventTypes: %w", betfair.ErrNotLoggedIn),
			reason: "The Betfair session has expired.",
		},
		"cancelled": {
			err:    context.Canceled,
			reason: "The request was cancelled.",
		},
		"anything else": {
			err:    errors.New("connection reset"),
			reason: "There was a problem with the openai API request.",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := Describe(tc.err, "openai")
			require.Equal(t, tc.reason, got.Reason)
			require.ErrorIs(t, got, tc.err)
		})
	}
}

type failingRunner struct{ err error }

func (r failingRunner) Run(context.Context, string, proto.Emitter) (*proto.Conversation, error) {
	return nil, r.err
}

func TestDescribedRunner(t *testing.T) {
	_, err := Described(failingRunner{err: graph.ErrUnboundedToolLoop}, "openai").
		Run(context.Background(), "hi", proto.Discard)
	require.ErrorIs(t, err, graph.ErrUnboundedToolLoop)
	require.Equal(t, "The assistant kept calling tools without answering.", errs.ReasonOf(err, ""))
}
