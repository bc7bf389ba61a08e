// Package graph runs one agent turn as an explicit state machine.
//
// A turn starts in the agent node. After every model reply ShouldContinue
// routes either to the tools node, which resolves each pending tool call and
// loops back to the agent, or to the final node, which rewrites the answer for
// the configured persona and halts.
package graph

import (
	"context"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/proto"
	"github.com/dotcommander/betbox/internal/tools"
)

// DefaultMaxToolRounds caps tools to agent round-trips when Config leaves it unset.
const DefaultMaxToolRounds = 10

// ErrUnboundedToolLoop is returned when the agent keeps requesting tools past
// the configured round limit.
var ErrUnboundedToolLoop = errors.New("tool loop exceeded round limit")

// Model is one language model invocation. Implementations stream fragments
// through emit while generating and return the completed assistant message.
type Model interface {
	Invoke(ctx context.Context, msgs []proto.Message, emit proto.Emitter) (proto.Message, error)
}

// Config holds the collaborators of a Graph.
type Config struct {
	// Agent is the tool-calling model. Required.
	Agent Model
	// Final rewrites the agent's answer. When nil the final node halts
	// immediately and the agent's last message is the answer.
	Final Model
	// Tools resolves tool calls. Required.
	Tools *tools.Registry
	// System, if set, is prepended to every agent invocation.
	System string
	// Persona is a text/template rendered with the original request as
	// {{.Request}}. Empty means DefaultPersona.
	Persona       string
	MaxToolRounds int
	TurnTimeout   time.Duration
	Logger        *zap.Logger
	// NewID generates message identity tokens. Defaults to UUIDv4.
	NewID func() string
}

// Graph is safe for concurrent use; every Run owns its own conversation.
type Graph struct {
	agent     Model
	final     Model
	registry  *tools.Registry
	system    string
	persona   *template.Template
	maxRounds int
	timeout   time.Duration
	logger    *zap.Logger
	newID     func() string
}

// New validates cfg and builds a Graph.
func New(cfg Config) (*Graph, error) {
	if cfg.Agent == nil {
		return nil, errors.New("graph: agent model is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("graph: tool registry is required")
	}
	persona := cfg.Persona
	if persona == "" {
		persona = DefaultPersona
	}
	tmpl, err := template.New("persona").Option("missingkey=error").Parse(persona)
	if err != nil {
		return nil, fmt.Errorf("graph: parse persona: %w", err)
	}
	g := &Graph{
		agent:     cfg.Agent,
		final:     cfg.Final,
		registry:  cfg.Tools,
		system:    cfg.System,
		persona:   tmpl,
		maxRounds: cfg.MaxToolRounds,
		timeout:   cfg.TurnTimeout,
		logger:    cfg.Logger,
		newID:     cfg.NewID,
	}
	if g.maxRounds <= 0 {
		g.maxRounds = DefaultMaxToolRounds
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.newID == nil {
		g.newID = uuid.NewString
	}
	return g, nil
}

// ShouldContinue routes on the last message alone: pending tool calls go to
// the tools node, anything else to the final node.
func ShouldContinue(last proto.Message) proto.Node {
	if last.HasToolCalls() {
		return proto.NodeTools
	}
	return proto.NodeFinal
}

// Run executes one turn for the user's text. Fragments are delivered to emit
// in generation order, each stamped with the node that produced it. Any
// failure aborts the turn and no conversation is returned.
func (g *Graph) Run(ctx context.Context, text string, emit proto.Emitter) (*proto.Conversation, error) {
	if emit == nil {
		emit = proto.Discard
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	request := proto.NewUserMessage(g.newID(), text)
	convo := proto.NewConversation(request)
	emit(proto.Fragment{
		MessageID: request.ID,
		Role:      proto.RoleUser,
		Content:   request.Content,
		Node:      proto.NodeStart,
	})

	node := proto.NodeAgent
	rounds := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch node {
		case proto.NodeAgent:
			msg, err := g.callAgent(ctx, convo, emit)
			if err != nil {
				return nil, err
			}
			convo.Append(msg)
			node = ShouldContinue(msg)
			g.logger.Debug("agent replied",
				zap.String("message_id", msg.ID),
				zap.Int("tool_calls", len(msg.ToolCalls)),
				zap.Stringer("next", node))

		case proto.NodeTools:
			if rounds >= g.maxRounds {
				return nil, fmt.Errorf("%w: %d rounds", ErrUnboundedToolLoop, g.maxRounds)
			}
			rounds++
			if err := g.callTools(ctx, convo, emit); err != nil {
				return nil, err
			}
			node = proto.NodeAgent

		case proto.NodeFinal:
			if err := g.finalize(ctx, convo, emit); err != nil {
				return nil, err
			}
			return convo, nil

		default:
			return nil, fmt.Errorf("graph: unexpected node %s", node)
		}
	}
}

func (g *Graph) callAgent(ctx context.Context, convo *proto.Conversation, emit proto.Emitter) (proto.Message, error) {
	msgs := convo.Messages()
	if g.system != "" {
		msgs = append([]proto.Message{proto.NewSystemMessage(g.newID(), g.system)}, msgs...)
	}

	id := g.newID()
	msg, err := g.agent.Invoke(ctx, msgs, stamp(emit, proto.NodeAgent, id, false))
	if err != nil {
		return proto.Message{}, fmt.Errorf("agent: %w", err)
	}
	if msg.ID == "" {
		msg.ID = id
	}
	msg.Role = proto.RoleAssistant
	return msg, nil
}

// callTools resolves the pending calls of the last message sequentially, in
// the order they were issued.
func (g *Graph) callTools(ctx context.Context, convo *proto.Conversation, emit proto.Emitter) error {
	for _, call := range convo.Last().ToolCalls {
		g.logger.Info("invoking tool",
			zap.String("tool", call.Name),
			zap.String("call_id", call.ID),
			zap.ByteString("arguments", call.Arguments))

		out, err := g.registry.Invoke(ctx, call)
		if err != nil {
			return fmt.Errorf("tools: %w", err)
		}

		result := proto.NewToolMessage(g.newID(), call.ID, out)
		convo.Append(result)
		emit(proto.Fragment{
			MessageID: result.ID,
			Role:      proto.RoleTool,
			Content:   result.Content,
			Node:      proto.NodeTools,
		})
	}
	return nil
}

// stamp tags every fragment with node. When force is set the message ID is
// always replaced, otherwise only filled in when the model left it empty.
func stamp(emit proto.Emitter, node proto.Node, id string, force bool) proto.Emitter {
	return func(f proto.Fragment) {
		f.Node = node
		if force || f.MessageID == "" {
			f.MessageID = id
		}
		if f.Role == "" {
			f.Role = proto.RoleAssistant
		}
		emit(f)
	}
}
