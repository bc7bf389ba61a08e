package fantasybridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"charm.land/fantasy"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/graph"
	"github.com/dotcommander/betbox/internal/proto"
	"github.com/dotcommander/betbox/internal/tools"
)

var _ graph.Model = &Model{}

// streamer is the part of fantasy.LanguageModel the bridge uses.
type streamer interface {
	Stream(ctx context.Context, call fantasy.Call) (fantasy.StreamResponse, error)
}

// Settings are the per-model call parameters.
type Settings struct {
	Model               string
	MaxTokens           int64
	MaxCompletionTokens int64
	Temperature         *float64
	TopP                *float64
	TopK                *int64
	User                string
}

// Model invokes one provider model, optionally bound to tools.
type Model struct {
	lm       streamer
	cfg      Config
	settings Settings
	tools    []fantasy.Tool
	logger   *zap.Logger

	mu          sync.Mutex
	warningSeen map[string]struct{}
}

// New resolves settings.Model on the provider described by cfg and binds it
// to specs.
func New(ctx context.Context, cfg Config, settings Settings, specs []tools.Spec, logger *zap.Logger) (*Model, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}
	lm, err := provider.LanguageModel(ctx, settings.Model)
	if err != nil {
		return nil, fmt.Errorf("fantasy language model %s: %w", settings.Model, err)
	}
	return newModel(lm, cfg, settings, specs, logger)
}

func newModel(lm streamer, cfg Config, settings Settings, specs []tools.Spec, logger *zap.Logger) (*Model, error) {
	ftools, err := toFantasyTools(specs)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{
		lm:          lm,
		cfg:         cfg,
		settings:    settings,
		tools:       ftools,
		logger:      logger.With(zap.String("api", cfg.API), zap.String("model", settings.Model)),
		warningSeen: map[string]struct{}{},
	}, nil
}

// Invoke streams one completion. Text deltas are emitted as content
// fragments and tool input deltas as tool-call fragments; the returned
// message carries the full text and every client-side tool call.
func (m *Model) Invoke(ctx context.Context, msgs []proto.Message, emit proto.Emitter) (proto.Message, error) {
	if emit == nil {
		emit = proto.Discard
	}

	seq, err := m.lm.Stream(ctx, m.buildCall(msgs))
	if err != nil {
		return proto.Message{}, fmt.Errorf("fantasy stream: %w", err)
	}

	var text strings.Builder
	var calls []proto.ToolCall
	seen := map[string]struct{}{}

	for part := range seq {
		switch part.Type {
		case fantasy.StreamPartTypeTextDelta:
			if part.Delta == "" {
				continue
			}
			text.WriteString(part.Delta)
			emit(proto.Fragment{Role: proto.RoleAssistant, Content: part.Delta})
		case fantasy.StreamPartTypeToolInputDelta:
			emit(proto.Fragment{Role: proto.RoleAssistant, ToolCallDelta: part.Delta})
		case fantasy.StreamPartTypeToolCall:
			if part.ProviderExecuted {
				continue
			}
			if _, ok := seen[part.ID]; ok {
				continue
			}
			seen[part.ID] = struct{}{}
			calls = append(calls, proto.ToolCall{
				ID:        part.ID,
				Name:      part.ToolCallName,
				Arguments: json.RawMessage(part.ToolCallInput),
			})
		case fantasy.StreamPartTypeError:
			if part.Error != nil {
				return proto.Message{}, part.Error
			}
			return proto.Message{}, errors.New("fantasy stream: provider reported an error")
		case fantasy.StreamPartTypeWarnings:
			m.logWarnings(part.Warnings)
		default:
		}
	}
	if err := ctx.Err(); err != nil {
		return proto.Message{}, err
	}

	return proto.Message{
		Role:      proto.RoleAssistant,
		Content:   text.String(),
		ToolCalls: calls,
	}, nil
}

func (m *Model) buildCall(msgs []proto.Message) fantasy.Call {
	call := fantasy.Call{
		Prompt:          toFantasyPrompt(msgs),
		Temperature:     m.settings.Temperature,
		TopP:            m.settings.TopP,
		TopK:            m.settings.TopK,
		ProviderOptions: fantasy.ProviderOptions{},
	}
	// o1 models do not accept max_tokens.
	if m.settings.MaxTokens > 0 && !strings.HasPrefix(m.settings.Model, "o1") {
		call.MaxOutputTokens = fantasy.Opt(m.settings.MaxTokens)
	}
	if len(m.tools) > 0 {
		call.Tools = m.tools
		choice := fantasy.ToolChoiceAuto
		call.ToolChoice = &choice
	}
	m.applyProviderOptions(&call)
	return call
}

func (m *Model) applyProviderOptions(call *fantasy.Call) {
	api := m.cfg.API
	openAIOpts := &fopenai.ProviderOptions{}
	hasOpenAIOpts := false

	if user := m.settings.User; user != "" {
		switch api {
		case apiOpenAI, apiAzure, apiAzureAD:
			openAIOpts.User = &user
			hasOpenAIOpts = true
		case apiAnthropic, apiGoogle, apiOpenRouter, apiVercel, apiBedrock:
		default:
			call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
		}
	}

	if tokens := m.settings.MaxCompletionTokens; tokens > 0 {
		switch api {
		case apiOpenAI, apiAzure, apiAzureAD:
			openAIOpts.MaxCompletionTokens = &tokens
			hasOpenAIOpts = true
		}
	}

	if hasOpenAIOpts {
		call.ProviderOptions[fopenai.Name] = openAIOpts
	}

	if api == apiGoogle && m.cfg.ThinkingBudget > 0 {
		call.ProviderOptions[fgoogle.Name] = &fgoogle.ProviderOptions{
			ThinkingConfig: &fgoogle.ThinkingConfig{
				ThinkingBudget: fantasy.Opt(int64(m.cfg.ThinkingBudget)),
			},
		}
	}
}

// logWarnings logs each distinct provider warning once per model.
func (m *Model) logWarnings(warnings []fantasy.CallWarning) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, warning := range warnings {
		text := strings.TrimSpace(warning.Message)
		if text == "" {
			text = strings.TrimSpace(warning.Details)
		}
		if text == "" && warning.Setting != "" {
			text = fmt.Sprintf("unsupported setting: %s", warning.Setting)
		}
		if text == "" {
			text = "provider warning"
		}
		key := string(warning.Type) + ":" + text
		if _, ok := m.warningSeen[key]; ok {
			continue
		}
		m.warningSeen[key] = struct{}{}
		m.logger.Warn("provider warning", zap.String("warning", text))
	}
}
