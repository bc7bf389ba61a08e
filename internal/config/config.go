package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	_ "embed"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/betbox/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// EnvPrefix prefixes every environment variable read into Settings.
const EnvPrefix = "BETBOX_"

// Model represents an LLM model offered by an API.
type Model struct {
	Name           string
	API            string
	Aliases        []string `yaml:"aliases"`
	ThinkingBudget int      `yaml:"thinking-budget,omitempty"`
}

// API represents an API endpoint and its models.
type API struct {
	Name      string
	APIKey    string           `yaml:"api-key"`
	APIKeyEnv string           `yaml:"api-key-env"`
	APIKeyCmd string           `yaml:"api-key-cmd"`
	BaseURL   string           `yaml:"base-url"`
	Models    map[string]Model `yaml:"models"`
	User      string           `yaml:"user"`
}

// APIs keeps the order APIs are declared in the settings file.
type APIs []API

// UnmarshalYAML implements ordered API YAML decoding. A settings file that
// declares apis replaces the built-in catalogue.
func (apis *APIs) UnmarshalYAML(node *yaml.Node) error {
	*apis = nil
	for i := 0; i < len(node.Content); i += 2 {
		var api API
		if err := node.Content[i+1].Decode(&api); err != nil {
			return fmt.Errorf("error decoding YAML file: %s", err)
		}
		api.Name = node.Content[i].Value
		*apis = append(*apis, api)
	}
	return nil
}

// ModelRef selects the model a graph stage runs on. Negative Temperature or
// TopP leave the provider default in place.
type ModelRef struct {
	API         string  `yaml:"api" env:"API"`
	Model       string  `yaml:"model" env:"MODEL"`
	Temperature float64 `yaml:"temp" env:"TEMP"`
	TopP        float64 `yaml:"topp" env:"TOPP"`
	MaxTokens   int64   `yaml:"max-tokens" env:"MAX_TOKENS"`
}

// Betfair holds exchange credentials and endpoints.
type Betfair struct {
	Username          string  `yaml:"username" env:"USERNAME"`
	Password          string  `yaml:"password" env:"PASSWORD"`
	AppKey            string  `yaml:"app-key" env:"APP_KEY"`
	CertPath          string  `yaml:"cert-path" env:"CERT_PATH"`
	IdentityURL       string  `yaml:"identity-url" env:"IDENTITY_URL"`
	APIURL            string  `yaml:"api-url" env:"API_URL"`
	RequestsPerSecond float64 `yaml:"requests-per-second" env:"REQUESTS_PER_SECOND"`
}

// Configured reports whether enough credentials are set to log in.
func (b Betfair) Configured() bool {
	return b.Username != "" && b.Password != "" && b.AppKey != "" && b.CertPath != ""
}

// Tavily configures the web search tool.
type Tavily struct {
	APIKey     string `yaml:"api-key" env:"API_KEY"`
	Endpoint   string `yaml:"endpoint" env:"ENDPOINT"`
	MaxResults int    `yaml:"max-results" env:"MAX_RESULTS"`
}

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	APIs          APIs          `yaml:"apis"`
	Agent         ModelRef      `yaml:"agent" envPrefix:"AGENT_"`
	Final         ModelRef      `yaml:"final" envPrefix:"FINAL_"`
	Search        ModelRef      `yaml:"search" envPrefix:"SEARCH_"`
	Persona       string        `yaml:"persona" env:"PERSONA"`
	System        string        `yaml:"system" env:"SYSTEM"`
	MaxToolRounds int           `yaml:"max-tool-rounds" env:"MAX_TOOL_ROUNDS"`
	TurnTimeout   time.Duration `yaml:"turn-timeout" env:"TURN_TIMEOUT"`
	HTTPProxy     string        `yaml:"http-proxy" env:"HTTP_PROXY"`
	User          string        `yaml:"user" env:"USER_ID"`
	Listen        string        `yaml:"listen" env:"LISTEN"`
	SessionTTL    time.Duration `yaml:"session-ttl" env:"SESSION_TTL"`
	WordWrap      int           `yaml:"word-wrap" env:"WORD_WRAP"`
	LogLevel      string        `yaml:"log-level" env:"LOG_LEVEL"`
	LogFormat     string        `yaml:"log-format" env:"LOG_FORMAT"`

	Betfair Betfair `yaml:"betfair" envPrefix:"BETFAIR_"`
	Tavily  Tavily  `yaml:"tavily" envPrefix:"TAVILY_"`

	MCPServers map[string]MCPServerConfig `yaml:"mcp-servers"`
	MCPDisable []string                   `yaml:"mcp-disable" env:"MCP_DISABLE"`
	MCPTimeout time.Duration              `yaml:"mcp-timeout" env:"MCP_TIMEOUT"`
	// MCPNoInheritEnv stops stdio servers from inheriting the process
	// environment.
	MCPNoInheritEnv bool `yaml:"mcp-no-inherit-env" env:"MCP_NO_INHERIT_ENV"`
}

// Runtime holds CLI-only options that are never loaded from the settings
// file.
type Runtime struct {
	SettingsPath string
	Debug        bool
	Quiet        bool
}

// Config is the application configuration (settings + runtime-only options).
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-"`
}

// MCPServerConfig holds configuration for an MCP server.
type MCPServerConfig struct {
	Type    string   `yaml:"type"`
	Command string   `yaml:"command"`
	Env     []string `yaml:"env"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// DefaultSettingsPath returns ~/.config/betbox/betbox.yml.
func DefaultSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errs.Error{Err: err, Reason: "Could not determine home directory."}
	}
	return filepath.Join(home, ".config", "betbox", "betbox.yml"), nil
}

// Ensure creates the default settings file if it does not exist, then loads
// it.
func Ensure() (Config, error) {
	sp, err := DefaultSettingsPath()
	if err != nil {
		return Config{}, err
	}
	if dirErr := os.MkdirAll(filepath.Dir(sp), 0o700); dirErr != nil {
		return Config{}, errs.Error{Err: dirErr, Reason: "Could not create config directory."}
	}
	if err := WriteConfigFile(sp); err != nil {
		return Config{}, err
	}
	return Load(sp)
}

// Load reads configuration in order: defaults, the settings file at path (if
// it exists), a .env file found from the working directory upwards, and the
// BETBOX_ environment.
func Load(path string) (Config, error) {
	c := Default()
	c.SettingsPath = path

	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return c, errs.Error{Err: err, Reason: "Could not read settings file."}
		default:
			if err := yaml.Unmarshal(content, &c); err != nil {
				return c, errs.Error{Err: err, Reason: "Could not parse settings file."}
			}
		}
	}

	if err := LoadDotenv(); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse your .env file."}
	}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings."}
	}

	if c.Tavily.APIKey == "" {
		c.Tavily.APIKey = os.Getenv("TAVILY_API_KEY")
	}
	if err := c.resolveMessages(); err != nil {
		return c, err
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) resolveMessages() error {
	for _, field := range []*string{&c.Persona, &c.System} {
		if *field == "" {
			continue
		}
		msg, err := LoadMsg(*field)
		if err != nil {
			return errs.Error{Err: err, Reason: "Could not load persona or system message."}
		}
		*field = msg
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = d.MaxToolRounds
	}
	if c.WordWrap == 0 {
		c.WordWrap = d.WordWrap
	}
	if c.MCPTimeout == 0 {
		c.MCPTimeout = d.MCPTimeout
	}
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.Tavily.MaxResults <= 0 {
		c.Tavily.MaxResults = d.Tavily.MaxResults
	}
	if c.LogFormat == "" {
		c.LogFormat = d.LogFormat
	}
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			APIs: APIs{
				{
					Name:      "openai",
					APIKeyEnv: "OPENAI_API_KEY",
					Models: map[string]Model{
						"gpt-4o-2024-11-20": {Aliases: []string{"4o"}},
						"gpt-4o-mini":       {Aliases: []string{"4o-mini"}},
					},
				},
				{
					Name:      "anthropic",
					APIKeyEnv: "ANTHROPIC_API_KEY",
					Models: map[string]Model{
						"claude-3-5-sonnet-20240620": {Aliases: []string{"sonnet-3.5"}},
					},
				},
			},
			Agent:         ModelRef{API: "openai", Model: "gpt-4o-2024-11-20", Temperature: 0, TopP: -1},
			Final:         ModelRef{API: "openai", Model: "gpt-4o-2024-11-20", Temperature: 0, TopP: -1},
			Search:        ModelRef{API: "anthropic", Model: "claude-3-5-sonnet-20240620", Temperature: -1, TopP: -1},
			MaxToolRounds: 10,
			Listen:        ":8000",
			SessionTTL:    30 * time.Minute,
			WordWrap:      80,
			LogLevel:      "info",
			LogFormat:     "console",
			Tavily:        Tavily{MaxResults: 3},
			MCPTimeout:    15 * time.Second,
		},
	}
}
