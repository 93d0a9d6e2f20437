package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderHuggingFace = "huggingface"
	ProviderOpenAI      = "openai"
	ProviderOllama      = "ollama"
)

const (
	DefaultModel          = "DeepHat/DeepHat-V1-7B:featherless-ai"
	DefaultHuggingFaceURL = "https://router.huggingface.co/v1"
)

var ErrMissingAPIKey = errors.New("model API key is not configured")

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:3001",
}

type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string

	Host string
	Port string

	MaxTokens   int
	Temperature float64
	TopP        float64

	ModelTimeout     time.Duration
	ModelMaxAttempts int
	ModelRetryDelay  time.Duration

	MaxToolRounds  int
	ToolTimeout    time.Duration
	RequestTimeout time.Duration
	StreamDelay    time.Duration

	CORSOrigins []string

	BrowserEnabled bool
	ChromePath     string

	LogLevel  string
	LogFormat string

	// Warnings collects values that were present but unusable and fell back
	// to their defaults. The caller logs them once a logger exists.
	Warnings []string
}

// Load reads an optional .env file and then the process environment.
// Values already present in the environment win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the environment without validating it.
func FromEnv() Config {
	cfg := Config{
		Provider:       strings.ToLower(envOr("DEEPHAT_PROVIDER", ProviderHuggingFace)),
		Host:           envOr("DEEPHAT_HOST", "0.0.0.0"),
		Port:           envOr("PORT", "8000"),
		LogLevel:       envOr("DEEPHAT_LOG_LEVEL", "info"),
		LogFormat:      envOr("DEEPHAT_LOG_FORMAT", "text"),
		BrowserEnabled: parseEnvBool("DEEPHAT_BROWSER_ENABLED"),
		ChromePath:     strings.TrimSpace(os.Getenv("DEEPHAT_CHROME_PATH")),
	}

	cfg.Model = envOr("DEEPHAT_MODEL", defaultModelFor(cfg.Provider))
	cfg.BaseURL = envOr("DEEPHAT_BASE_URL", defaultBaseURLFor(cfg.Provider))
	cfg.APIKey = apiKeyFor(cfg.Provider)

	cfg.MaxTokens = cfg.readInt("DEEPHAT_MAX_TOKENS", 512)
	cfg.Temperature = cfg.readFloat("DEEPHAT_TEMPERATURE", 0.7)
	cfg.TopP = cfg.readFloat("DEEPHAT_TOP_P", 0.95)

	cfg.ModelTimeout = cfg.readDuration("DEEPHAT_MODEL_TIMEOUT", 60*time.Second)
	cfg.ModelMaxAttempts = cfg.readInt("DEEPHAT_MODEL_MAX_ATTEMPTS", 3)
	cfg.ModelRetryDelay = cfg.readDuration("DEEPHAT_MODEL_RETRY_DELAY", 5*time.Second)

	cfg.MaxToolRounds = cfg.readInt("DEEPHAT_MAX_TOOL_ROUNDS", 5)
	cfg.ToolTimeout = cfg.readDuration("DEEPHAT_TOOL_TIMEOUT", 90*time.Second)
	cfg.RequestTimeout = cfg.readDuration("DEEPHAT_REQUEST_TIMEOUT", 5*time.Minute)
	cfg.StreamDelay = cfg.readDuration("DEEPHAT_STREAM_DELAY", 50*time.Millisecond)

	cfg.CORSOrigins = defaultCORSOrigins
	if raw := strings.TrimSpace(os.Getenv("DEEPHAT_CORS_ORIGINS")); raw != "" {
		cfg.CORSOrigins = splitList(raw)
	}
	return cfg
}

// Validate reports configuration that must stop the process from serving.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderHuggingFace, ProviderOpenAI:
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("%w: set %s", ErrMissingAPIKey, apiKeyEnvFor(c.Provider))
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unsupported provider %q", c.Provider)
	}
	if strings.TrimSpace(c.Model) == "" {
		return errors.New("model name is empty")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func defaultModelFor(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderOllama:
		return "llama3.2"
	default:
		return DefaultModel
	}
}

func defaultBaseURLFor(provider string) string {
	switch provider {
	case ProviderHuggingFace:
		return DefaultHuggingFaceURL
	case ProviderOllama:
		return "http://localhost:11434"
	default:
		return ""
	}
}

func apiKeyEnvFor(provider string) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "HUGGINGFACE_API_KEY"
}

// apiKeyFor prefers the provider specific variable and falls back to
// DEEPHAT_API_KEY.
func apiKeyFor(provider string) string {
	if provider == ProviderOllama {
		return ""
	}
	if v := strings.TrimSpace(os.Getenv(apiKeyEnvFor(provider))); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv("DEEPHAT_API_KEY"))
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseEnvBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}

func (c *Config) readInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.warnf("invalid %s=%q, fallback to %d", key, raw, fallback)
		return fallback
	}
	return n
}

func (c *Config) readFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		c.warnf("invalid %s=%q, fallback to %g", key, raw, fallback)
		return fallback
	}
	return f
}

// readDuration accepts Go duration syntax ("90s", "2m") or a bare number of
// seconds.
func (c *Config) readDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, convErr := strconv.Atoi(raw)
		if convErr != nil {
			c.warnf("invalid %s=%q, fallback to %s", key, raw, fallback)
			return fallback
		}
		d = time.Duration(secs) * time.Second
	}
	if d < 0 {
		c.warnf("invalid %s=%q, fallback to %s", key, raw, fallback)
		return fallback
	}
	return d
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
