// Package transport relays a turn's finalized tokens to a chat frontend.
//
// The graph emits every fragment it produces: the user's own request, agent
// tokens, tool-call argument deltas, tool results and finalizer tokens. Only
// finalizer text is meant for the user; everything else is dropped here.
package transport

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/proto"
)

// DefaultBuffer is the number of fragments queued between the graph and a
// slow sink before the graph blocks.
const DefaultBuffer = 64

// Runner executes one turn. *graph.Graph satisfies it.
type Runner interface {
	Run(ctx context.Context, text string, emit proto.Emitter) (*proto.Conversation, error)
}

// Sink receives the filtered stream of one turn. Token is called once per
// delivered fragment, in order, followed by exactly one of Done or Fail.
type Sink interface {
	Token(f proto.Fragment) error
	Done(final proto.Message) error
	Fail(err error) error
}

// Deliverable reports whether a fragment reaches the user: it must carry
// text, must not echo the user, and must come from the final node.
func Deliverable(f proto.Fragment) bool {
	return f.Content != "" && f.Role != proto.RoleUser && f.Node == proto.NodeFinal
}

// Shim filters a Runner's fragments into a Sink.
type Shim struct {
	runner Runner
	logger *zap.Logger
	buffer int
}

// NewShim wraps runner. A nil logger discards.
func NewShim(runner Runner, logger *zap.Logger) *Shim {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shim{runner: runner, logger: logger, buffer: DefaultBuffer}
}

// WithBuffer returns a copy of the shim using n as the relay buffer size.
func (s *Shim) WithBuffer(n int) *Shim {
	cp := *s
	if n > 0 {
		cp.buffer = n
	}
	return &cp
}

// Turn runs one turn for text, relaying deliverable fragments to sink on a
// separate goroutine. A sink error cancels the turn. On success the sink gets
// Done with the finalized message; on failure it gets Fail and the error is
// returned.
func (s *Shim) Turn(ctx context.Context, text string, sink Sink) (*proto.Conversation, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	queue := make(chan proto.Fragment, s.buffer)
	relayed := make(chan error, 1)
	go func() {
		var sinkErr error
		for f := range queue {
			if sinkErr != nil {
				continue
			}
			if err := sink.Token(f); err != nil {
				sinkErr = fmt.Errorf("deliver token: %w", err)
				cancel(sinkErr)
			}
		}
		relayed <- sinkErr
	}()

	emit := func(f proto.Fragment) {
		if !Deliverable(f) {
			return
		}
		select {
		case queue <- f:
		case <-ctx.Done():
		}
	}

	convo, err := s.runner.Run(ctx, text, emit)
	close(queue)
	if sinkErr := <-relayed; sinkErr != nil {
		s.logger.Warn("sink stopped accepting tokens", zap.Error(sinkErr))
		return nil, sinkErr
	}

	if err != nil {
		s.logger.Error("turn failed", zap.Error(err))
		if ferr := sink.Fail(err); ferr != nil {
			s.logger.Warn("could not deliver failure", zap.Error(ferr))
		}
		return nil, err
	}

	if derr := sink.Done(convo.Last()); derr != nil {
		return convo, fmt.Errorf("deliver completion: %w", derr)
	}
	return convo, nil
}
