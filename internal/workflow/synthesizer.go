package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halver/muninn/internal/llm"
	"github.com/halver/muninn/internal/registry"
)

// Block indexes keying the workflow cache: one generation step per
// block, so a crash between steps resumes without repeating paid calls.
const (
	blockSynthesis = 0
	blockHeader    = 1
)

// Synthesizer wraps the LLM behind the workflow cache and a bounded
// retry loop. Completed blocks are never regenerated for the same
// (note, path, prompt, model, source) key.
type Synthesizer struct {
	reg     *registry.DB
	llm     llm.Summarizer
	model   string
	retries int
	delay   time.Duration
	logger  *slog.Logger
}

// NewSynthesizer creates a synthesizer. retries <= 0 means one attempt;
// delay <= 0 disables the inter-attempt pause.
func NewSynthesizer(reg *registry.DB, summarizer llm.Summarizer, model string, retries int, delay time.Duration, logger *slog.Logger) *Synthesizer {
	if retries <= 0 {
		retries = 1
	}
	return &Synthesizer{
		reg:     reg,
		llm:     summarizer,
		model:   model,
		retries: retries,
		delay:   delay,
		logger:  logger,
	}
}

// Generate returns the completion for one block, consulting the cache
// first. source identifies the input content; a changed source is a
// cache miss by construction.
func (s *Synthesizer) Generate(ctx context.Context, noteID int64, notePath string, block int, prompt, title, body, source string) (string, error) {
	key := registry.CacheKey{
		NoteID:     noteID,
		Path:       notePath,
		BlockIndex: block,
		PromptName: prompt,
		Model:      s.model,
		Source:     source,
	}

	status, result, ok, err := s.reg.GetCache(key)
	if err != nil {
		s.logger.Warn("synthesizer: cache lookup failed", slog.String("error", err.Error()))
	} else if ok && status == registry.CacheProcessed {
		s.logger.Debug("synthesizer: cache hit",
			slog.Int64("note_id", noteID),
			slog.String("prompt", prompt))
		return result, nil
	}

	if err := s.reg.PutCache(key, registry.CacheWaiting, ""); err != nil {
		s.logger.Warn("synthesizer: cache write failed", slog.String("error", err.Error()))
	}

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		out, genErr := s.llm.Summarize(ctx, llm.Request{Prompt: prompt, Title: title, Body: body})
		if genErr == nil {
			if err := s.reg.PutCache(key, registry.CacheProcessed, out); err != nil {
				s.logger.Warn("synthesizer: cache write failed", slog.String("error", err.Error()))
			}
			return out, nil
		}
		lastErr = genErr
		s.logger.Warn("synthesizer: generation failed",
			slog.Int64("note_id", noteID),
			slog.String("prompt", prompt),
			slog.Int("attempt", attempt),
			slog.String("error", genErr.Error()))

		if attempt < s.retries && s.delay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.delay):
			}
		}
	}

	if err := s.reg.PutCache(key, registry.CacheError, lastErr.Error()); err != nil {
		s.logger.Warn("synthesizer: cache write failed", slog.String("error", err.Error()))
	}
	return "", fmt.Errorf("workflow: generation exhausted %d attempts: %w", s.retries, lastErr)
}
