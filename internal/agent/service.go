package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"
	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/betfair"
	"github.com/dotcommander/betbox/internal/config"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/fantasybridge"
	"github.com/dotcommander/betbox/internal/graph"
	"github.com/dotcommander/betbox/internal/market"
	"github.com/dotcommander/betbox/internal/mcp"
	"github.com/dotcommander/betbox/internal/tools"
	"github.com/dotcommander/betbox/internal/websearch"
)

// ModelFactory builds a graph model from resolved provider settings.
type ModelFactory func(ctx context.Context, cfg fantasybridge.Config, settings fantasybridge.Settings, specs []tools.Spec, logger *zap.Logger) (graph.Model, error)

// SessionFactory opens an authenticated exchange session.
type SessionFactory func(ctx context.Context) (market.Session, error)

// Option configures a Service.
type Option func(*Service)

// WithModelFactory replaces the fantasy-backed model constructor.
func WithModelFactory(f ModelFactory) Option {
	return func(s *Service) { s.newModel = f }
}

// WithSessionFactory replaces the Betfair login used for exchange tools.
func WithSessionFactory(f SessionFactory) Option {
	return func(s *Service) { s.newSession = f }
}

// Service is the core orchestration layer for building agent graphs.
//
// It is UI-agnostic and shared by the HTTP server, the terminal chat and the
// headless commands.
type Service struct {
	cfg        *config.Config
	logger     *zap.Logger
	mcp        *mcp.Service
	newModel   ModelFactory
	newSession SessionFactory
}

// New creates an agent service.
func New(cfg *config.Config, logger *zap.Logger, mcpSvc *mcp.Service, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mcpSvc == nil {
		mcpSvc = mcp.New(cfg, logger)
	}
	s := &Service{cfg: cfg, logger: logger, mcp: mcpSvc}
	s.newModel = defaultModelFactory
	s.newSession = func(ctx context.Context) (market.Session, error) {
		return s.Betfair(ctx)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultModelFactory(ctx context.Context, cfg fantasybridge.Config, settings fantasybridge.Settings, specs []tools.Spec, logger *zap.Logger) (graph.Model, error) {
	m, err := fantasybridge.New(ctx, cfg, settings, specs, logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Registry builds and seals the agent's tool registry: get_weather,
// get_prices, the exchange tools when Betfair credentials are configured,
// and every enabled MCP tool.
func (s *Service) Registry(ctx context.Context) (*tools.Registry, error) {
	reg := tools.NewRegistry()
	if err := reg.Register(tools.Weather()); err != nil {
		return nil, err
	}
	if err := reg.Register(tools.Prices()); err != nil {
		return nil, err
	}

	if s.cfg.Betfair.Configured() {
		session, err := s.Session(ctx)
		if err != nil {
			return nil, err
		}
		for _, spec := range market.New(session, s.logger.Named("market")).Tools() {
			if err := reg.Register(spec); err != nil {
				return nil, err
			}
		}
	} else {
		s.logger.Warn("betfair credentials not configured, exchange tools disabled")
	}

	specs, err := s.mcp.Specs(ctx)
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return nil, errs.Wrap(err, "Could not register MCP tool.")
		}
	}

	reg.Seal()
	return reg, nil
}

// Graph builds the chat graph: the agent model bound to the registry's tools,
// followed by the persona finalizer.
func (s *Service) Graph(ctx context.Context) (*graph.Graph, error) {
	reg, err := s.Registry(ctx)
	if err != nil {
		return nil, err
	}
	agentModel, err := s.Model(ctx, s.cfg.Agent, reg.Specs())
	if err != nil {
		return nil, err
	}
	finalModel, err := s.Model(ctx, s.cfg.Final, nil)
	if err != nil {
		return nil, err
	}
	g, err := graph.New(graph.Config{
		Agent:         agentModel,
		Final:         finalModel,
		Tools:         reg,
		System:        s.cfg.System,
		Persona:       s.cfg.Persona,
		MaxToolRounds: s.cfg.MaxToolRounds,
		TurnTimeout:   s.cfg.TurnTimeout,
		Logger:        s.logger.Named("graph"),
	})
	if err != nil {
		return nil, errs.Wrap(err, "Could not build the agent graph.")
	}
	return g, nil
}

// SearchGraph builds the search graph: the search model bound to web_search
// and no finalizer.
func (s *Service) SearchGraph(ctx context.Context) (*graph.Graph, error) {
	search, err := websearch.New(websearch.Config{
		APIKey:     s.cfg.Tavily.APIKey,
		Endpoint:   s.cfg.Tavily.Endpoint,
		MaxResults: s.cfg.Tavily.MaxResults,
	}, s.logger.Named("websearch"))
	if err != nil {
		return nil, errs.Error{
			Err:    err,
			Reason: "TAVILY_API_KEY required; set it or tavily.api-key in betbox.yml.",
		}
	}
	reg := tools.NewRegistry()
	if err := reg.Register(search.Tool()); err != nil {
		return nil, err
	}
	reg.Seal()

	model, err := s.Model(ctx, s.cfg.Search, reg.Specs())
	if err != nil {
		return nil, err
	}
	g, err := graph.New(graph.Config{
		Agent:         model,
		Tools:         reg,
		System:        s.cfg.System,
		MaxToolRounds: s.cfg.MaxToolRounds,
		TurnTimeout:   s.cfg.TurnTimeout,
		Logger:        s.logger.Named("search"),
	})
	if err != nil {
		return nil, errs.Wrap(err, "Could not build the search graph.")
	}
	return g, nil
}

// Model resolves ref against the API catalogue and builds a model bound to
// specs.
func (s *Service) Model(ctx context.Context, ref config.ModelRef, specs []tools.Spec) (graph.Model, error) {
	api, mod, err := resolveModel(s.cfg.APIs, ref)
	if err != nil {
		return nil, err
	}
	providerCfg, err := prepareProviderConfig(ctx, mod, api)
	if err != nil {
		return nil, err
	}
	if err := ApplyProxyConfig(s.cfg.HTTPProxy, &providerCfg); err != nil {
		return nil, err
	}

	settings := fantasybridge.Settings{
		Model:     mod.Name,
		MaxTokens: ref.MaxTokens,
		User:      s.cfg.User,
	}
	if api.User != "" {
		settings.User = api.User
	}
	if ref.Temperature >= 0 {
		v := ref.Temperature
		settings.Temperature = &v
	}
	if ref.TopP >= 0 {
		v := ref.TopP
		settings.TopP = &v
	}

	m, err := s.newModel(ctx, providerCfg, settings, specs, s.logger.Named("model"))
	if err != nil {
		return nil, errs.Wrapf(err, "Could not create the %s model %s.", mod.API, mod.Name)
	}
	return m, nil
}

// Session opens an exchange session through the configured session factory.
func (s *Service) Session(ctx context.Context) (market.Session, error) {
	if !s.cfg.Betfair.Configured() {
		return nil, errNotConfigured()
	}
	return s.newSession(ctx)
}

func errNotConfigured() errs.Error {
	return errs.Error{
		Reason: "Betfair credentials are not configured.",
		Err: errs.UserErrorf("Set %sBETFAIR_USERNAME, %sBETFAIR_PASSWORD, %sBETFAIR_APP_KEY and %sBETFAIR_CERT_PATH.",
			config.EnvPrefix, config.EnvPrefix, config.EnvPrefix, config.EnvPrefix),
	}
}

// Betfair logs in to the exchange with the configured credentials.
func (s *Service) Betfair(ctx context.Context) (*betfair.Client, error) {
	bf := s.cfg.Betfair
	if !bf.Configured() {
		return nil, errNotConfigured()
	}
	client, err := betfair.New(betfair.Config{
		Username:          bf.Username,
		Password:          bf.Password,
		AppKey:            bf.AppKey,
		CertDir:           bf.CertPath,
		IdentityURL:       bf.IdentityURL,
		APIURL:            bf.APIURL,
		RequestsPerSecond: bf.RequestsPerSecond,
	}, s.logger.Named("betfair"))
	if err != nil {
		return nil, errs.Wrap(err, "Could not set up the Betfair client.")
	}
	if err := client.Login(ctx); err != nil {
		return nil, errs.Wrap(err, "Betfair login failed.")
	}
	return client, nil
}

func resolveModel(apis config.APIs, ref config.ModelRef) (config.API, config.Model, error) {
	for _, api := range apis {
		if api.Name != ref.API && ref.API != "" {
			continue
		}
		name := ref.Model
		for candidate, mod := range api.Models {
			if candidate == ref.Model || slices.Contains(mod.Aliases, ref.Model) {
				name = candidate
				break
			}
		}
		mod, ok := api.Models[name]
		if ok {
			mod.Name = name
			mod.API = api.Name
			return api, mod, nil
		}
		if ref.API != "" {
			available := make([]string, 0, len(api.Models))
			for name := range api.Models {
				available = append(available, name)
			}
			slices.Sort(available)
			return config.API{}, config.Model{}, errs.Error{
				Err:    errs.UserErrorf("Available models are: %s", strings.Join(available, ", ")),
				Reason: fmt.Sprintf("The API endpoint %s does not contain the model %s", ref.API, ref.Model),
			}
		}
	}

	return config.API{}, config.Model{}, errs.Error{
		Reason: fmt.Sprintf("Model %s is not in the settings file.", ref.Model),
		Err:    errs.UserErrorf("Please configure the model in the settings: betbox config edit"),
	}
}

func prepareProviderConfig(ctx context.Context, mod config.Model, api config.API) (fantasybridge.Config, error) {
	switch mod.API {
	case "openrouter":
		key, err := ensureKey(ctx, api, "OPENROUTER_API_KEY", "https://openrouter.ai/keys")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "OpenRouter authentication failed"}
		}
		return fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "vercel":
		key, err := ensureKey(ctx, api, "VERCEL_API_KEY", "https://vercel.com/dashboard/tokens")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Vercel AI Gateway authentication failed"}
		}
		return fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "bedrock":
		key, err := optionalKey(ctx, api)
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Bedrock authentication failed"}
		}
		return fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "ollama":
		baseURL := api.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		return fantasybridge.Config{API: mod.API, BaseURL: baseURL}, nil
	case "azure", "azure-ad":
		key, err := ensureKey(ctx, api, "AZURE_OPENAI_KEY", "https://aka.ms/oai/access")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Azure authentication failed"}
		}
		return fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "anthropic":
		key, err := ensureKey(ctx, api, "ANTHROPIC_API_KEY", "https://console.anthropic.com/settings/keys")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Anthropic authentication failed"}
		}
		return fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	case "google":
		key, err := ensureKey(ctx, api, "GOOGLE_API_KEY", "https://aistudio.google.com/app/apikey")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "Google authentication failed"}
		}
		return fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL, ThinkingBudget: mod.ThinkingBudget}, nil
	default:
		key, err := ensureKey(ctx, api, "OPENAI_API_KEY", "https://platform.openai.com/account/api-keys")
		if err != nil {
			return fantasybridge.Config{}, errs.Error{Err: err, Reason: "OpenAI authentication failed"}
		}
		return fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}, nil
	}
}

// ApplyProxyConfig configures the provider HTTP client to use an HTTP proxy.
func ApplyProxyConfig(httpProxy string, providerCfg *fantasybridge.Config) error {
	if httpProxy == "" {
		return nil
	}
	proxyURL, err := url.Parse(httpProxy)
	if err != nil {
		return errs.Error{Err: err, Reason: "There was an error parsing your proxy URL."}
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return errs.Error{Err: fmt.Errorf("default transport is not *http.Transport"), Reason: "Could not configure proxy."}
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 30 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	providerCfg.HTTPClient = &http.Client{Transport: tr}
	return nil
}

func ensureKey(ctx context.Context, api config.API, defaultEnv, docsURL string) (string, error) {
	key, err := optionalKey(ctx, api)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = os.Getenv(defaultEnv)
	}
	if key != "" {
		return key, nil
	}
	return "", errs.Error{
		Reason: fmt.Sprintf("%s required; set %s or update betbox.yml through betbox config edit.", defaultEnv, defaultEnv),
		Err:    errs.UserErrorf("You can grab one at %s", docsURL),
	}
}

func optionalKey(ctx context.Context, api config.API) (string, error) {
	key := api.APIKey
	if key == "" && api.APIKeyEnv != "" && api.APIKeyCmd == "" {
		key = os.Getenv(api.APIKeyEnv)
	}
	if key == "" && api.APIKeyCmd != "" {
		args, err := shellwords.Parse(api.APIKeyCmd)
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Failed to parse api-key-cmd"}
		}
		if len(args) == 0 {
			return "", errs.Error{Reason: "api-key-cmd is empty"}
		}
		// #nosec G204 -- api-key-cmd is explicitly configured by the local user.
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Cannot exec api-key-cmd"}
		}
		key = strings.TrimSpace(string(out))
	}
	return key, nil
}
