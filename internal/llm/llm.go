package llm

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"deephat/internal/config"
)

type Provider string

const (
	ProviderHuggingFace Provider = config.ProviderHuggingFace
	ProviderOpenAI      Provider = config.ProviderOpenAI
	ProviderOllama      Provider = config.ProviderOllama
)

// Persona is attached as the leading system message of every request.
const Persona = "You are DeepHat, created by Kindo.ai. You are a helpful assistant that is an expert in Cybersecurity and DevOps."

// ErrModelLoading is returned once every attempt was met with a "service
// unavailable" answer.
var ErrModelLoading = errors.New("model is loading, please try again in a moment")

type Options struct {
	Provider Provider
	Model    string
	BaseURL  string
	APIKey   string

	MaxTokens   int
	Temperature float64
	TopP        float64

	// Timeout bounds a single attempt.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts on 503 answers.
	MaxAttempts int
	// RetryDelay is both the first backoff and the per-retry increment.
	RetryDelay time.Duration

	Logger *slog.Logger
}

// OptionsFromConfig maps the process configuration onto client options.
func OptionsFromConfig(cfg config.Config, logger *slog.Logger) Options {
	return Options{
		Provider:    Provider(cfg.Provider),
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Timeout:     cfg.ModelTimeout,
		MaxAttempts: cfg.ModelMaxAttempts,
		RetryDelay:  cfg.ModelRetryDelay,
		Logger:      logger,
	}
}

func (o *Options) applyDefaults() {
	if o.Provider == "" {
		o.Provider = ProviderHuggingFace
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// New builds a Client for the configured provider.
func New(opts Options) (*Client, error) {
	opts.applyDefaults()

	httpClient := &http.Client{
		Timeout:   opts.Timeout,
		Transport: unavailableTransport{base: http.DefaultTransport},
	}

	var (
		gen generator
		err error
	)
	switch opts.Provider {
	case ProviderHuggingFace, ProviderOpenAI:
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, fmt.Errorf("%w for provider %s", config.ErrMissingAPIKey, opts.Provider)
		}
		gen, err = newOpenAI(opts, httpClient)
	case ProviderOllama:
		gen, err = newOllama(opts, httpClient)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s client: %w", opts.Provider, err)
	}

	return &Client{gen: gen, opts: opts, sleep: sleepContext}, nil
}
