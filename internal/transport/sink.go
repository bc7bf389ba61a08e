package transport

import (
	"context"
	"io"

	"github.com/dotcommander/betbox/internal/proto"
)

// WriterSink prints tokens to w as they arrive and ends the answer with a
// newline. Failures are left to the caller to render.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Token(f proto.Fragment) error {
	_, err := io.WriteString(s.W, f.Content)
	return err
}

func (s WriterSink) Done(proto.Message) error {
	_, err := io.WriteString(s.W, "\n")
	return err
}

func (WriterSink) Fail(error) error { return nil }

// TrackingSink passes everything to Sink and remembers whether any token
// was delivered.
type TrackingSink struct {
	Sink
	delivered bool
}

func (s *TrackingSink) Token(f proto.Fragment) error {
	s.delivered = true
	return s.Sink.Token(f)
}

// Delivered reports whether a token has reached the wrapped sink.
func (s *TrackingSink) Delivered() bool { return s.delivered }

// Event is one item of a ChanSink stream. Exactly one field is set, except
// that Done events also carry the final message.
type Event struct {
	Token string
	Done  bool
	Final proto.Message
	Err   error
}

// ChanSink forwards the stream as Events, for consumers that poll a channel
// such as the terminal UI.
type ChanSink struct {
	ctx context.Context
	ch  chan Event
}

// NewChanSink returns a sink with the given channel capacity. Sends give up
// once ctx is done.
func NewChanSink(ctx context.Context, capacity int) *ChanSink {
	return &ChanSink{ctx: ctx, ch: make(chan Event, capacity)}
}

// Events returns the receive side of the sink.
func (s *ChanSink) Events() <-chan Event { return s.ch }

func (s *ChanSink) Token(f proto.Fragment) error {
	return s.send(Event{Token: f.Content})
}

func (s *ChanSink) Done(final proto.Message) error {
	return s.send(Event{Done: true, Final: final})
}

func (s *ChanSink) Fail(err error) error {
	return s.send(Event{Err: err})
}

// Close ends the event stream. Call it once the turn has returned.
func (s *ChanSink) Close() { close(s.ch) }

func (s *ChanSink) send(ev Event) error {
	select {
	case s.ch <- ev:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}
