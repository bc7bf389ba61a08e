package graph

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/proto"
)

// DefaultPersona frames the finalizer as an assistant for sports market traders.
const DefaultPersona = "You are a helpful assistant that generates answers for professional sports market traders. " +
	"Your job is to take the original request '{{.Request}}' and answer the question using the information " +
	"provided in the last message from the assistant."

type personaData struct {
	Request string
}

// FinalPrompt builds the finalizer's input: the rendered persona as a system
// message followed by one user message holding the last assistant content.
// Tool messages and earlier turns never reach the finalizer.
func (g *Graph) FinalPrompt(convo *proto.Conversation) ([]proto.Message, error) {
	var sb strings.Builder
	if err := g.persona.Execute(&sb, personaData{Request: convo.First().Content}); err != nil {
		return nil, fmt.Errorf("render persona: %w", err)
	}
	return []proto.Message{
		proto.NewSystemMessage(g.newID(), sb.String()),
		proto.NewUserMessage(g.newID(), convo.Last().Content),
	}, nil
}

// finalize rewrites the last assistant message for the persona. The rewritten
// message keeps the identity of the message it replaces.
func (g *Graph) finalize(ctx context.Context, convo *proto.Conversation, emit proto.Emitter) error {
	if g.final == nil {
		return nil
	}

	last := convo.Last()
	prompt, err := g.FinalPrompt(convo)
	if err != nil {
		return fmt.Errorf("final: %w", err)
	}

	msg, err := g.final.Invoke(ctx, prompt, stamp(emit, proto.NodeFinal, last.ID, true))
	if err != nil {
		return fmt.Errorf("final: %w", err)
	}
	msg.ID = last.ID
	msg.Role = proto.RoleAssistant
	msg.ToolCalls = nil
	convo.Append(msg)

	g.logger.Debug("finalized answer", zap.String("message_id", msg.ID), zap.Int("length", len(msg.Content)))
	return nil
}
