package httpchat

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/proto"
)

// SSE event names.
const (
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// TokenPayload is the data of token and done events.
type TokenPayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// streamError marks failures writing to the client, as opposed to failures
// of the turn itself.
type streamError struct {
	err error
}

func (e *streamError) Error() string { return "write event: " + e.err.Error() }
func (e *streamError) Unwrap() error { return e.err }

// sseSink frames the turn's stream as Server-Sent Events.
type sseSink struct {
	w io.Writer
}

func (s *sseSink) Token(f proto.Fragment) error {
	return s.write(EventToken, TokenPayload{MessageID: f.MessageID, Content: f.Content})
}

func (s *sseSink) Done(final proto.Message) error {
	return s.write(EventDone, TokenPayload{MessageID: final.ID, Content: final.Content})
}

func (s *sseSink) Fail(err error) error {
	return s.write(EventError, ErrorPayload{Reason: errs.ReasonOf(err, "The turn could not be completed.")})
}

func (s *sseSink) write(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return &streamError{err: err}
	}
	return nil
}
