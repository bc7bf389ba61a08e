package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"charm.land/fantasy"

	"github.com/dotcommander/betbox/internal/betfair"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/graph"
	"github.com/dotcommander/betbox/internal/proto"
	"github.com/dotcommander/betbox/internal/tools"
	"github.com/dotcommander/betbox/internal/websearch"
)

// TurnErrorAction describes how a failed turn should be handled.
type TurnErrorAction struct {
	Retry  bool
	Prompt string
	Err    errs.Error
}

// ActionForTurnError decides whether a failed turn is worth one more attempt,
// and with which prompt. api names the provider for the reason text.
func ActionForTurnError(err error, api, prompt string) TurnErrorAction {
	var providerErr *fantasy.ProviderError
	if errors.As(err, &providerErr) {
		return actionForProviderError(providerErr, api, prompt)
	}
	return TurnErrorAction{Err: Describe(err, api)}
}

func actionForProviderError(err *fantasy.ProviderError, api, prompt string) TurnErrorAction {
	switch err.StatusCode {
	case http.StatusNotFound:
		return TurnErrorAction{
			Err: errs.Error{Err: err, Reason: fmt.Sprintf("The model was not found on API '%s'.", api)},
		}
	case http.StatusBadRequest:
		if isContextLengthExceeded(err) {
			cut := cutPrompt(err.Message, prompt)
			return TurnErrorAction{
				Retry:  cut != prompt,
				Prompt: cut,
				Err:    errs.Error{Err: err, Reason: "Maximum prompt size exceeded."},
			}
		}
	}

	reason := fantasy.ErrorTitleForStatusCode(err.StatusCode)
	if err.IsRetryable() {
		if reason == "" {
			reason = "Retryable API error."
		}
		return TurnErrorAction{Retry: true, Prompt: prompt, Err: errs.Error{Err: err, Reason: reason}}
	}
	if reason == "" {
		reason = fmt.Sprintf("%s API request error.", api)
	}
	return TurnErrorAction{Err: errs.Error{Err: err, Reason: reason}}
}

// Describe attaches a short user-facing reason to a turn failure. Errors that
// already carry a reason are returned unchanged.
func Describe(err error, api string) errs.Error {
	var e errs.Error
	if errors.As(err, &e) && e.Reason != "" {
		return e
	}

	var (
		providerErr *fantasy.ProviderError
		exchangeErr *betfair.APIError
		loginErr    *betfair.LoginError
		searchErr   *websearch.APIError
	)
	switch {
	case errors.As(err, &providerErr):
		return actionForProviderError(providerErr, api, "").Err
	case errors.Is(err, context.Canceled):
		return errs.Wrap(err, "The request was cancelled.")
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Wrap(err, "The request timed out.")
	case errors.Is(err, graph.ErrUnboundedToolLoop):
		return errs.Wrap(err, "The assistant kept calling tools without answering.")
	case errors.Is(err, tools.ErrUnknownTool):
		return errs.Wrap(err, "The assistant asked for a tool that does not exist.")
	case errors.Is(err, tools.ErrInvalidArguments):
		return errs.Wrap(err, "The assistant sent invalid tool arguments.")
	case errors.As(err, &loginErr):
		return errs.Wrapf(err, "Betfair login failed (%s).", loginErr.Status)
	case errors.Is(err, betfair.ErrNotLoggedIn):
		return errs.Wrap(err, "The Betfair session has expired.")
	case errors.As(err, &exchangeErr):
		return errs.Wrapf(err, "Betfair rejected the request (%s).", exchangeErr.Code)
	case errors.As(err, &searchErr):
		return errs.Wrap(err, "Web search failed.")
	case errors.Is(err, tools.ErrToolInvocation):
		return errs.Wrap(err, "A tool failed while answering.")
	default:
		return errs.Wrapf(err, "There was a problem with the %s API request.", api)
	}
}

// Runner runs one turn.
type Runner interface {
	Run(ctx context.Context, text string, emit proto.Emitter) (*proto.Conversation, error)
}

type describedRunner struct {
	runner Runner
	api    string
}

// Described wraps r so every failure carries a user-facing reason.
func Described(r Runner, api string) Runner {
	return describedRunner{runner: r, api: api}
}

func (r describedRunner) Run(ctx context.Context, text string, emit proto.Emitter) (*proto.Conversation, error) {
	convo, err := r.runner.Run(ctx, text, emit)
	if err != nil {
		return nil, Describe(err, r.api)
	}
	return convo, nil
}

func isContextLengthExceeded(err *fantasy.ProviderError) bool {
	if strings.Contains(strings.ToLower(err.Message), "context_length_exceeded") {
		return true
	}
	if strings.Contains(strings.ToLower(string(err.ResponseBody)), "context_length_exceeded") {
		return true
	}
	return false
}

var tokenErrRe = regexp.MustCompile(`This model's maximum context length is (\d+) tokens. However, your messages resulted in (\d+) tokens`)

func cutPrompt(msg, prompt string) string {
	found := tokenErrRe.FindStringSubmatch(msg)
	if len(found) != 3 { //nolint:mnd
		return prompt
	}

	maxt, _ := strconv.Atoi(found[1])
	current, _ := strconv.Atoi(found[2])

	if maxt > current {
		return prompt
	}

	// 1 token =~ 4 chars, plus 10 spare chars.
	reduceBy := 10 + (current-maxt)*4 //nolint:mnd
	if len(prompt) > reduceBy {
		return prompt[:len(prompt)-reduceBy]
	}

	return prompt
}
