// Package config handles sfagent configuration loading.
//
// Values are layered in this order, later layers winning: built-in
// defaults, an optional YAML file, the process environment (after a
// .env file has been merged into it), and finally command-line flags
// applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/sfagent/unifiedllm"
)

// ErrConfigNotFound is returned by [FindConfig] when an explicit path
// does not exist.
var ErrConfigNotFound = errors.New("config file not found")

// Config holds all sfagent configuration.
type Config struct {
	Provider      string   `yaml:"provider" env:"SFAGENT_PROVIDER" validate:"required,provider"`
	Model         string   `yaml:"model" env:"SFAGENT_MODEL"`
	MaxIterations int      `yaml:"max_iterations" env:"SFAGENT_MAX_ITERATIONS" validate:"gte=1"`
	MaxTokens     int      `yaml:"max_tokens" env:"SFAGENT_MAX_TOKENS" validate:"gte=0"`
	Temperature   *float64 `yaml:"temperature" env:"SFAGENT_TEMPERATURE" validate:"omitempty,gte=0,lte=2"`

	// BaseURL overrides the provider endpoint. For ollama it defaults to
	// OLLAMA_HOST.
	BaseURL string `yaml:"base_url" env:"SFAGENT_BASE_URL" validate:"omitempty,url"`

	// GollmBackend picks the backend gollm talks to when Provider is
	// "gollm".
	GollmBackend string `yaml:"gollm_backend" env:"SFAGENT_GOLLM_BACKEND"`

	WorkDir   string `yaml:"workdir" env:"SFAGENT_WORKDIR"`
	LogLevel  string `yaml:"log_level" env:"SFAGENT_LOG_LEVEL" validate:"omitempty,loglevel"`
	LogFormat string `yaml:"log_format" env:"SFAGENT_LOG_FORMAT" validate:"omitempty,oneof=text json"`

	ParallelTools   bool          `yaml:"parallel_tools" env:"SFAGENT_PARALLEL_TOOLS"`
	LoopDetection   bool          `yaml:"loop_detection" env:"SFAGENT_LOOP_DETECTION"`
	ProviderTimeout time.Duration `yaml:"provider_timeout" env:"SFAGENT_PROVIDER_TIMEOUT" validate:"gte=0"`
	ToolTimeout     time.Duration `yaml:"tool_timeout" env:"SFAGENT_TOOL_TIMEOUT" validate:"gte=0"`
	MaxRetries      int           `yaml:"max_retries" env:"SFAGENT_MAX_RETRIES" validate:"gte=0,lte=10"`

	ReadOnly bool `yaml:"read_only" env:"SFAGENT_READ_ONLY"`
	NoShell  bool `yaml:"no_shell" env:"SFAGENT_NO_SHELL"`

	Agent      AgentConfig       `yaml:"agent"`
	MCPServers []MCPServerConfig `yaml:"mcp_servers" validate:"dive"`

	// Keys come only from the environment so they never land in a
	// config file.
	Keys APIKeys `yaml:"-"`
}

// AgentConfig customizes the system prompt.
type AgentConfig struct {
	Description  string   `yaml:"description"`
	Instructions []string `yaml:"instructions"`
	FinishTool   string   `yaml:"finish_tool"`
	ProjectDocs  bool     `yaml:"project_docs"`
}

// MCPServerConfig declares a stdio MCP tool server to spawn.
type MCPServerConfig struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command" validate:"required"`
	Env     map[string]string `yaml:"env"`
}

// EnvList renders Env as KEY=VALUE pairs in key order.
func (m MCPServerConfig) EnvList() []string {
	keys := make([]string, 0, len(m.Env))
	for k := range m.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m.Env[k])
	}
	return out
}

// APIKeys holds provider credentials read from the environment.
type APIKeys struct {
	Anthropic  string `env:"ANTHROPIC_API_KEY"`
	OpenAI     string `env:"OPENAI_API_KEY"`
	Groq       string `env:"GROQ_API_KEY"`
	Google     string `env:"GOOGLE_API_KEY"`
	Gemini     string `env:"GEMINI_API_KEY"`
	OllamaHost string `env:"OLLAMA_HOST"`
}

// Default returns a configuration with sensible defaults applied.
func Default() *Config {
	return &Config{
		Provider:      unifiedllm.ProviderGemini,
		MaxIterations: 10,
		MaxTokens:     4096,
		LogLevel:      "info",
		LogFormat:     "text",
		LoopDetection: true,
		MaxRetries:    2,
		Agent: AgentConfig{
			FinishTool:  "complete_task",
			ProjectDocs: true,
		},
	}
}

// DefaultSearchPaths returns the config file locations checked in order.
func DefaultSearchPaths() []string {
	paths := []string{"sfagent.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sfagent", "config.yaml"))
	}
	return paths
}

// FindConfig locates a config file. An explicit path must exist.
// Otherwise the default search paths are tried and "" is returned when
// none is present.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// LoadOptions controls [Load].
type LoadOptions struct {
	// Path is an explicit config file. Empty means search the defaults.
	Path string
	// DotEnv lists .env files to merge into the environment. Missing
	// files are ignored. Nil means ".env".
	DotEnv []string
}

// Load builds a Config from defaults, the config file, .env files and
// the environment. It does not validate; call [Config.Validate] once
// flags have been applied.
func Load(opts LoadOptions) (*Config, error) {
	if err := LoadDotEnv(opts.DotEnv...); err != nil {
		return nil, err
	}

	cfg := Default()
	path, err := FindConfig(opts.Path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges the YAML file at path into c. Environment variables
// referenced as $VAR or ${VAR} are expanded first.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv merges .env files into the process environment without
// overriding variables that are already set.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(present, ", "), err)
	}
	return nil
}

// ApplyEnv overrides fields from their environment variables. Unset
// variables leave the current value alone.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// APIKey returns the credential for the configured provider. For gollm
// the key of its backend is used.
func (c *Config) APIKey() string {
	provider := c.Provider
	if provider == unifiedllm.ProviderGollm {
		provider = c.GollmBackend
		if provider == "" {
			provider = unifiedllm.ProviderOpenAI
		}
	}
	switch provider {
	case unifiedllm.ProviderAnthropic:
		return c.Keys.Anthropic
	case unifiedllm.ProviderOpenAI:
		return c.Keys.OpenAI
	case unifiedllm.ProviderGroq:
		return c.Keys.Groq
	case unifiedllm.ProviderGemini, "google":
		if c.Keys.Gemini != "" {
			return c.Keys.Gemini
		}
		return c.Keys.Google
	default:
		return ""
	}
}

// ResolvedModel returns the configured model with aliases expanded, or
// the provider default when none is set.
func (c *Config) ResolvedModel() string {
	if c.Model == "" {
		return unifiedllm.DefaultModel(c.Provider)
	}
	return unifiedllm.ResolveModel(c.Model)
}

// ResolvedBaseURL returns BaseURL, falling back to OLLAMA_HOST for the
// ollama provider.
func (c *Config) ResolvedBaseURL() string {
	if c.BaseURL == "" && c.Provider == unifiedllm.ProviderOllama {
		return c.Keys.OllamaHost
	}
	return c.BaseURL
}

// RetryPolicy returns the provider retry policy with MaxRetries applied.
func (c *Config) RetryPolicy() unifiedllm.RetryPolicy {
	p := unifiedllm.DefaultRetryPolicy()
	p.MaxRetries = c.MaxRetries
	return p
}

// Validate checks c for errors. Field errors are reported by their YAML
// names.
func (c *Config) Validate() error {
	err := newValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
		return isKnownProvider(fl.Field().String())
	})
	_ = v.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		_, err := ParseLogLevel(fl.Field().String())
		return err == nil
	})
	v.RegisterStructValidation(validateCredentials, Config{})
	return v
}

func validateCredentials(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if !isKnownProvider(c.Provider) || c.Provider == unifiedllm.ProviderOllama {
		return
	}
	if c.Provider == unifiedllm.ProviderGollm && c.GollmBackend == unifiedllm.ProviderOllama {
		return
	}
	if c.APIKey() == "" {
		sl.ReportError(c.Keys, "api_key", "Keys", "apikey", c.Provider)
	}
}

func isKnownProvider(name string) bool {
	for _, p := range unifiedllm.Providers {
		if p == name {
			return true
		}
	}
	return false
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "provider":
		return fmt.Sprintf("%s %q is not one of %s", field, fe.Value(), strings.Join(unifiedllm.Providers, ", "))
	case "loglevel":
		return fmt.Sprintf("%s %q is not a log level", field, fe.Value())
	case "apikey":
		return fmt.Sprintf("no API key set for provider %s (%s)", fe.Param(), keyEnvHint(fe.Param()))
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s", field, map[string]string{"gte": ">=", "lte": "<="}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func keyEnvHint(provider string) string {
	switch provider {
	case unifiedllm.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case unifiedllm.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case unifiedllm.ProviderGroq:
		return "GROQ_API_KEY"
	case unifiedllm.ProviderGemini:
		return "GEMINI_API_KEY or GOOGLE_API_KEY"
	default:
		return "key for the gollm backend"
	}
}
