// Package fantasybridge runs graph models on top of charm.land/fantasy.
package fantasybridge

import (
	"fmt"

	"charm.land/fantasy"

	"github.com/dotcommander/betbox/internal/proto"
	"github.com/dotcommander/betbox/internal/tools"
)

func toFantasyPrompt(input []proto.Message) fantasy.Prompt {
	messages := make([]fantasy.Message, 0, len(input))

	for _, msg := range input {
		switch msg.Role {
		case proto.RoleSystem:
			messages = append(messages, fantasy.Message{
				Role:    fantasy.MessageRoleSystem,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: msg.Content}},
			})
		case proto.RoleUser:
			messages = append(messages, fantasy.Message{
				Role:    fantasy.MessageRoleUser,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: msg.Content}},
			})
		case proto.RoleAssistant:
			parts := make([]fantasy.MessagePart, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, fantasy.TextPart{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, fantasy.ToolCallPart{
					ToolCallID: call.ID,
					ToolName:   call.Name,
					Input:      string(call.Arguments),
				})
			}
			if len(parts) > 0 {
				messages = append(messages, fantasy.Message{
					Role:    fantasy.MessageRoleAssistant,
					Content: parts,
				})
			}
		case proto.RoleTool:
			messages = append(messages, fantasy.Message{
				Role: fantasy.MessageRoleTool,
				Content: []fantasy.MessagePart{fantasy.ToolResultPart{
					ToolCallID: msg.ToolCallID,
					Output:     fantasy.ToolResultOutputContentText{Text: msg.Content},
				}},
			})
		}
	}

	return messages
}

func toFantasyTools(specs []tools.Spec) ([]fantasy.Tool, error) {
	out := make([]fantasy.Tool, 0, len(specs))
	for _, spec := range specs {
		schema, err := tools.SchemaMap(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", spec.Name, err)
		}
		out = append(out, fantasy.FunctionTool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: schema,
		})
	}
	return out, nil
}
