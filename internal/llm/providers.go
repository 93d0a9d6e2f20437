package llm

import (
	"net/http"

	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// newOpenAI serves both the Hugging Face router and OpenAI proper; both speak
// the OpenAI chat-completions protocol.
func newOpenAI(opts Options, httpClient *http.Client) (generator, error) {
	clientOpts := []openai.Option{
		openai.WithModel(opts.Model),
		openai.WithToken(opts.APIKey),
		openai.WithHTTPClient(httpClient),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(opts.BaseURL))
	}
	return openai.New(clientOpts...)
}

func newOllama(opts Options, httpClient *http.Client) (generator, error) {
	clientOpts := []ollama.Option{
		ollama.WithModel(opts.Model),
		ollama.WithHTTPClient(httpClient),
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, ollama.WithServerURL(opts.BaseURL))
	}
	return ollama.New(clientOpts...)
}
