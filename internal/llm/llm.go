// Package llm generates synthesis content and header summaries through
// an OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Prompt names selectable per request. They key the workflow cache, so
// renaming one invalidates cached completions.
const (
	PromptSynthesis = "synthesis"
	PromptHeader    = "header"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

var systemPrompts = map[string]string{
	PromptSynthesis: "You are a careful note-taking assistant. Rewrite the " +
		"following captured text as a concise, well-structured Markdown note: " +
		"a short opening paragraph stating the core idea, then the key points " +
		"as a bullet list. Preserve facts, names, and numbers exactly. Do not " +
		"add information that is not in the source.",
	PromptHeader: "Summarize the following note in one or two plain " +
		"sentences suitable for a document header. No Markdown, no line " +
		"breaks.",
}

// ErrUnknownPrompt is returned for a prompt name with no template.
var ErrUnknownPrompt = errors.New("llm: unknown prompt")

// Request is one generation call.
type Request struct {
	Prompt string
	Title  string
	Body   string
}

// Summarizer produces derived text from note content.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// OpenAI is the Summarizer backed by the OpenAI chat completion API or
// any compatible endpoint.
type OpenAI struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// NewOpenAI creates a client. baseURL is optional and enables local or
// proxied OpenAI-compatible endpoints; an empty model falls back to
// DefaultModel.
func NewOpenAI(apiKey, baseURL, model string, logger *slog.Logger) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

// Summarize runs one completion for the named prompt.
func (o *OpenAI) Summarize(ctx context.Context, req Request) (string, error) {
	system, ok := systemPrompts[req.Prompt]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPrompt, req.Prompt)
	}

	user := req.Body
	if req.Title != "" {
		user = fmt.Sprintf("Title: %s\n\n%s", req.Title, req.Body)
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: completion returned no choices")
	}

	o.logger.Debug("llm: completion",
		slog.String("prompt", req.Prompt),
		slog.String("model", o.model),
		slog.Duration("elapsed", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

// Model reports the configured model name, for cache keying.
func (o *OpenAI) Model() string { return o.model }
