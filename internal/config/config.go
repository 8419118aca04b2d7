// Package config handles Envoy configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nugget/envoy/internal/notify"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/envoy/config.yaml, /etc/envoy/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "envoy", "config.yaml"))
	}

	paths = append(paths, "/etc/envoy/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Envoy configuration. It is built once in main and
// handed to the components that need it.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Persona    PersonaConfig    `yaml:"persona"`
	Models     ModelsConfig     `yaml:"models"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Notify     notify.Config    `yaml:"notify"`
	Web        WebConfig        `yaml:"web"`
	Health     HealthConfig     `yaml:"health"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"` // text (default) or json
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// PersonaConfig names the person Envoy speaks for and where their
// grounding documents live.
type PersonaConfig struct {
	Name string `yaml:"name"`

	// SummaryFile is a short plain-text biography.
	SummaryFile string `yaml:"summary_file"`

	// ProfileFile is a resume or profile document, as a path or an
	// http(s) URL. The extension (or Content-Type, for URLs) picks the
	// extractor: .pdf, .html/.htm, .md/.markdown, anything else is read
	// as text.
	ProfileFile string `yaml:"profile_file"`

	// MaxChars truncates the extracted profile to this many characters
	// (Unicode code points, not bytes). Zero means no limit.
	MaxChars int `yaml:"max_chars"`
}

// ModelsConfig selects the provider and models used for each call.
type ModelsConfig struct {
	// Provider is the fallback provider for models not listed in
	// Routes: openai, anthropic, or ollama.
	Provider string `yaml:"provider"`

	// Default is the model used for drafting and revising replies.
	Default string `yaml:"default"`

	// Evaluator is the model used to judge replies. Empty means Default.
	Evaluator string `yaml:"evaluator"`

	// Routes maps model names to provider names, for setups where the
	// evaluator runs on a different provider than the chat model.
	Routes map[string]string `yaml:"routes"`

	// MaxToolRounds caps tool-call round trips within one generation.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// MaxAttempts caps generation calls (draft plus revisions) per turn.
	MaxAttempts int `yaml:"max_attempts"`
}

// EvaluatorModel returns the model used by the evaluator.
func (m ModelsConfig) EvaluatorModel() string {
	if m.Evaluator != "" {
		return m.Evaluator
	}
	return m.Default
}

// OpenAIConfig defines OpenAI (or compatible) API settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // Optional, for OpenAI-compatible endpoints
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// OllamaConfig defines the Ollama server location.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// EvaluationConfig toggles the draft/evaluate/revise cycle.
type EvaluationConfig struct {
	// Enabled defaults to true. A pointer distinguishes "not set" from
	// an explicit false in YAML.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether replies are evaluated before being returned.
func (e EvaluationConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// WebConfig holds branding for the chat page.
type WebConfig struct {
	Title     string   `yaml:"title"`
	Tagline   string   `yaml:"tagline"`
	PublicURL string   `yaml:"public_url"` // Encoded into /qr.png
	Examples  []string `yaml:"examples"`
}

// HealthConfig controls background provider reachability checks.
type HealthConfig struct {
	// Interval between probes of a reachable provider. Zero means the
	// default; a negative value disables checks.
	Interval time.Duration `yaml:"interval"`
}

// Enabled reports whether provider checks run.
func (h HealthConfig) Enabled() bool {
	return h.Interval > 0
}

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Defaults.
const (
	DefaultPort          = 8080
	DefaultModel         = "gpt-4o-mini"
	DefaultMaxToolRounds = 8
	DefaultMaxAttempts   = 5
	DefaultOllamaURL     = "http://localhost:11434"
	DefaultHealthEvery   = 60 * time.Second
)

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded, and a .env file next to the working directory
// is loaded first so ${VAR} references can resolve from it.
func Load(path string) (*Config, error) {
	LoadDotEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ApplyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration built from defaults and the process
// environment, for running without a config file.
func Default() *Config {
	LoadDotEnv()

	cfg := &Config{}
	cfg.ApplyEnv()
	cfg.applyDefaults()
	return cfg
}

// LoadDotEnv loads ./.env into the process environment if present.
// Variables already set are not overridden.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// ApplyEnv fills unset fields from the conventional environment
// variables. Values already present in the config file win.
func (c *Config) ApplyEnv() {
	setIfEmpty(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setIfEmpty(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setIfEmpty(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setIfEmpty(&c.Ollama.URL, "OLLAMA_URL")

	setIfEmpty(&c.Notify.Host, "SMTP_SERVER")
	setIfEmpty(&c.Notify.Username, "SMTP_USERNAME")
	setIfEmpty(&c.Notify.Password, "SMTP_PASSWORD")
	setIfEmpty(&c.Notify.From, "FROM_EMAIL")
	setIfEmpty(&c.Notify.To, "TO_EMAIL")
	if c.Notify.Port == 0 {
		if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil {
			c.Notify.Port = p
		}
	}

	setIfEmpty(&c.Persona.Name, "PERSONA_NAME")
}

func setIfEmpty(dst *string, env string) {
	if *dst == "" {
		*dst = os.Getenv(env)
	}
}

// applyDefaults fills zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = DefaultPort
	}
	if c.Persona.Name == "" {
		c.Persona.Name = "Basith Abdul"
	}
	if c.Persona.SummaryFile == "" {
		c.Persona.SummaryFile = filepath.Join("me", "summary.txt")
	}
	if c.Persona.ProfileFile == "" {
		c.Persona.ProfileFile = filepath.Join("me", "linkedin.pdf")
	}

	if c.Models.Provider == "" {
		switch {
		case c.OpenAI.APIKey != "":
			c.Models.Provider = ProviderOpenAI
		case c.Anthropic.APIKey != "":
			c.Models.Provider = ProviderAnthropic
		default:
			c.Models.Provider = ProviderOpenAI
		}
	}
	if c.Models.Default == "" {
		c.Models.Default = DefaultModel
	}
	if c.Models.MaxToolRounds == 0 {
		c.Models.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.Models.MaxAttempts == 0 {
		c.Models.MaxAttempts = DefaultMaxAttempts
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = DefaultOllamaURL
	}

	if c.Health.Interval == 0 {
		c.Health.Interval = DefaultHealthEvery
	}

	c.Notify.ApplyDefaults()

	if c.Web.Title == "" {
		c.Web.Title = c.Persona.Name
	}
	if len(c.Web.Examples) == 0 {
		c.Web.Examples = []string{
			"What is your professional background?",
			"What projects have you worked on recently?",
			"How can I get in touch with you?",
		}
	}
}

// Validate checks that the configuration is internally consistent.
// Returns an error describing the first problem found.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range (1-65535)", c.Listen.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format %q invalid (valid: text, json)", c.LogFormat)
	}
	if c.Persona.MaxChars < 0 {
		return fmt.Errorf("persona.max_chars must not be negative")
	}

	if !validProvider(c.Models.Provider) {
		return fmt.Errorf("models.provider %q unknown (valid: openai, anthropic, ollama)", c.Models.Provider)
	}
	for model, provider := range c.Models.Routes {
		if !validProvider(provider) {
			return fmt.Errorf("models.routes[%s]: provider %q unknown", model, provider)
		}
	}
	if c.Models.MaxToolRounds < 1 {
		return fmt.Errorf("models.max_tool_rounds must be at least 1, got %d", c.Models.MaxToolRounds)
	}
	if c.Models.MaxAttempts < 1 {
		return fmt.Errorf("models.max_attempts must be at least 1, got %d", c.Models.MaxAttempts)
	}

	if err := c.Notify.Validate(); err != nil {
		return err
	}
	return nil
}

func validProvider(p string) bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
		return true
	}
	return false
}

// ProvidersInUse returns the set of provider names referenced by the
// fallback provider and any routes.
func (c *Config) ProvidersInUse() map[string]bool {
	used := map[string]bool{c.Models.Provider: true}
	for _, p := range c.Models.Routes {
		used[p] = true
	}
	return used
}
