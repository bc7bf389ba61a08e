package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/betfair"
	"github.com/dotcommander/betbox/internal/config"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/fantasybridge"
	"github.com/dotcommander/betbox/internal/graph"
	"github.com/dotcommander/betbox/internal/market"
	"github.com/dotcommander/betbox/internal/proto"
	"github.com/dotcommander/betbox/internal/tools"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.APIs = config.APIs{
		{
			Name:   "openai",
			APIKey: "sk-test",
			Models: map[string]config.Model{
				"gpt-4o-2024-11-20": {Aliases: []string{"4o"}},
			},
		},
		{
			Name:      "anthropic",
			APIKeyCmd: "echo sk-ant-test",
			Models: map[string]config.Model{
				"claude-3-5-sonnet-20240620": {Aliases: []string{"sonnet-3.5"}},
			},
		},
	}
	return &cfg
}

type built struct {
	cfg      fantasybridge.Config
	settings fantasybridge.Settings
	specs    []string
}

// fakeModels records every model the service builds and scripts the
// responses of each one by model name.
type fakeModels struct {
	built   []built
	replies map[string][]proto.Message
}

func (f *fakeModels) factory(_ context.Context, cfg fantasybridge.Config, settings fantasybridge.Settings, specs []tools.Spec, _ *zap.Logger) (graph.Model, error) {
	b := built{cfg: cfg, settings: settings}
	for _, s := range specs {
		b.specs = append(b.specs, s.Name)
	}
	f.built = append(f.built, b)
	return &scripted{replies: f.replies[fmt.Sprintf("%s/%d", settings.Model, len(f.built))]}, nil
}

type scripted struct {
	replies []proto.Message
	calls   int
}

func (s *scripted) Invoke(_ context.Context, _ []proto.Message, emit proto.Emitter) (proto.Message, error) {
	msg := s.replies[s.calls]
	s.calls++
	emit(proto.Fragment{Role: msg.Role, Content: msg.Content})
	return msg, nil
}

type fakeSession struct{}

func (fakeSession) ListEventTypes(context.Context, betfair.MarketFilter) ([]betfair.EventTypeResult, error) {
	return []betfair.EventTypeResult{{EventType: betfair.EventType{ID: "1", Name: "Soccer"}, MarketCount: 42}}, nil
}

func (fakeSession) ListCompetitions(context.Context, betfair.MarketFilter) ([]betfair.CompetitionResult, error) {
	return nil, nil
}

func TestResolveModel(t *testing.T) {
	apis := testConfig().APIs

	t.Run("by alias", func(t *testing.T) {
		api, mod, err := resolveModel(apis, config.ModelRef{Model: "sonnet-3.5"})
		require.NoError(t, err)
		require.Equal(t, "anthropic", api.Name)
		require.Equal(t, "claude-3-5-sonnet-20240620", mod.Name)
		require.Equal(t, "anthropic", mod.API)
	})

	t.Run("missing on named api", func(t *testing.T) {
		_, _, err := resolveModel(apis, config.ModelRef{API: "openai", Model: "gpt-5"})
		require.Error(t, err)
		require.Equal(t, "The API endpoint openai does not contain the model gpt-5", errs.ReasonOf(err, ""))
	})

	t.Run("unknown everywhere", func(t *testing.T) {
		_, _, err := resolveModel(apis, config.ModelRef{Model: "mystery"})
		require.Equal(t, "Model mystery is not in the settings file.", errs.ReasonOf(err, ""))
	})
}

func TestPrepareProviderConfig(t *testing.T) {
	t.Run("api-key-cmd", func(t *testing.T) {
		cfg, err := prepareProviderConfig(context.Background(),
			config.Model{Name: "claude-3-5-sonnet-20240620", API: "anthropic"},
			config.API{Name: "anthropic", APIKeyCmd: "echo sk-ant-test"})
		require.NoError(t, err)
		require.Equal(t, "sk-ant-test", cfg.APIKey)
	})

	t.Run("provider env fallback", func(t *testing.T) {
		t.Setenv("OPENROUTER_API_KEY", "or-key")
		cfg, err := prepareProviderConfig(context.Background(),
			config.Model{Name: "x", API: "openrouter"}, config.API{Name: "openrouter"})
		require.NoError(t, err)
		require.Equal(t, "or-key", cfg.APIKey)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		_, err := prepareProviderConfig(context.Background(),
			config.Model{Name: "gpt-4o", API: "openai"}, config.API{Name: "openai"})
		require.Error(t, err)
		require.Contains(t, errs.ReasonOf(err, ""), "OPENAI_API_KEY required")
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		cfg, err := prepareProviderConfig(context.Background(),
			config.Model{Name: "llama3", API: "ollama"}, config.API{Name: "ollama"})
		require.NoError(t, err)
		require.Equal(t, "http://localhost:11434/v1", cfg.BaseURL)
	})
}

func TestApplyProxyConfig(t *testing.T) {
	providerCfg := fantasybridge.Config{}
	require.NoError(t, ApplyProxyConfig("http://127.0.0.1:8080", &providerCfg))
	require.NotNil(t, providerCfg.HTTPClient)

	providerCfg = fantasybridge.Config{}
	require.NoError(t, ApplyProxyConfig("", &providerCfg))
	require.Nil(t, providerCfg.HTTPClient)
}

func TestModelSettings(t *testing.T) {
	models := &fakeModels{}
	cfg := testConfig()
	cfg.User = "punter"
	svc := New(cfg, nil, nil, WithModelFactory(models.factory))

	_, err := svc.Model(context.Background(), config.ModelRef{API: "openai", Model: "4o", Temperature: 0, TopP: -1, MaxTokens: 512}, nil)
	require.NoError(t, err)
	require.Len(t, models.built, 1)

	b := models.built[0]
	require.Equal(t, "openai", b.cfg.API)
	require.Equal(t, "sk-test", b.cfg.APIKey)
	require.Equal(t, "gpt-4o-2024-11-20", b.settings.Model)
	require.NotNil(t, b.settings.Temperature)
	require.Zero(t, *b.settings.Temperature)
	require.Nil(t, b.settings.TopP)
	require.Equal(t, int64(512), b.settings.MaxTokens)
	require.Equal(t, "punter", b.settings.User)
}

func TestRegistry(t *testing.T) {
	t.Run("without exchange credentials", func(t *testing.T) {
		svc := New(testConfig(), nil, nil)
		reg, err := svc.Registry(context.Background())
		require.NoError(t, err)
		require.Equal(t, 2, reg.Len())
		_, err = reg.Lookup("get_event_types")
		require.ErrorIs(t, err, tools.ErrUnknownTool)
		require.ErrorIs(t, reg.Register(tools.Weather()), tools.ErrSealed)
	})

	t.Run("with exchange session", func(t *testing.T) {
		cfg := testConfig()
		cfg.Betfair = config.Betfair{Username: "u", Password: "p", AppKey: "k", CertPath: "/certs"}
		svc := New(cfg, nil, nil, WithSessionFactory(func(context.Context) (market.Session, error) {
			return fakeSession{}, nil
		}))
		reg, err := svc.Registry(context.Background())
		require.NoError(t, err)

		var names []string
		for _, spec := range reg.Specs() {
			names = append(names, spec.Name)
		}
		require.Equal(t, []string{"get_competitions", "get_event_types", "get_prices", "get_weather"}, names)

		out, err := reg.Invoke(context.Background(), proto.ToolCall{ID: "c1", Name: "get_event_types"})
		require.NoError(t, err)
		var got []market.EventType
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Equal(t, []market.EventType{{ID: "1", Name: "Soccer"}}, got)
	})
}

func TestBetfairRequiresCredentials(t *testing.T) {
	svc := New(testConfig(), nil, nil)
	_, err := svc.Betfair(context.Background())
	require.Equal(t, "Betfair credentials are not configured.", errs.ReasonOf(err, ""))

	_, err = svc.Session(context.Background())
	require.Equal(t, "Betfair credentials are not configured.", errs.ReasonOf(err, ""))
}

func TestGraphWeatherTurn(t *testing.T) {
	models := &fakeModels{replies: map[string][]proto.Message{
		"gpt-4o-2024-11-20/1": {
			{ID: "a1", Role: proto.RoleAssistant, ToolCalls: []proto.ToolCall{{
				ID: "c1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"nyc"}`),
			}}},
			{ID: "a2", Role: proto.RoleAssistant, Content: "It might be cloudy in nyc"},
		},
		"gpt-4o-2024-11-20/2": {
			{ID: "f1", Role: proto.RoleAssistant, Content: "Bring a brolly, it might be cloudy in nyc."},
		},
	}}
	svc := New(testConfig(), nil, nil, WithModelFactory(models.factory))

	g, err := svc.Graph(context.Background())
	require.NoError(t, err)
	require.Len(t, models.built, 2)
	require.Equal(t, []string{"get_prices", "get_weather"}, models.built[0].specs)
	require.Empty(t, models.built[1].specs)

	var final []string
	convo, err := g.Run(context.Background(), "What's the weather in nyc?", func(f proto.Fragment) {
		if f.Node == proto.NodeFinal {
			final = append(final, f.Content)
		}
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Bring a brolly, it might be cloudy in nyc."}, final)
	require.Equal(t, "a2", convo.Last().ID)
	require.Equal(t, "Bring a brolly, it might be cloudy in nyc.", convo.Last().Content)
}

func TestSearchGraphRequiresKey(t *testing.T) {
	svc := New(testConfig(), nil, nil)
	_, err := svc.SearchGraph(context.Background())
	require.Contains(t, errs.ReasonOf(err, ""), "TAVILY_API_KEY required")
}

func TestSearchGraph(t *testing.T) {
	models := &fakeModels{}
	cfg := testConfig()
	cfg.Tavily.APIKey = "tvly-test"
	svc := New(cfg, nil, nil, WithModelFactory(models.factory))

	_, err := svc.SearchGraph(context.Background())
	require.NoError(t, err)
	require.Len(t, models.built, 1)
	require.Equal(t, "anthropic", models.built[0].cfg.API)
	require.Equal(t, "sk-ant-test", models.built[0].cfg.APIKey)
	require.Equal(t, []string{"web_search"}, models.built[0].specs)
	require.Nil(t, models.built[0].settings.Temperature)
}
