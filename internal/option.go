package internal

import "github.com/halver/muninn/internal/llm"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	summarizer llm.Summarizer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithSummarizer overrides the LLM client, mainly for tests.
func WithSummarizer(s llm.Summarizer) Option {
	return func(a *application) {
		a.summarizer = s
	}
}
