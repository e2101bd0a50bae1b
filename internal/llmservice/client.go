package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"ecoopen-extract/internal/config"
	"ecoopen-extract/internal/models"
)

// Completer is the chat agent the extractor talks to.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

var thinkRe = regexp.MustCompile(models.ThinkTag)

// Client is a Completer backed by an OpenAI-compatible chat endpoint
// (OpenRouter, Ollama's /v1, vLLM, ...).
type Client struct {
	llm         llms.Model
	model       string
	temperature float64
}

// NewClient builds the langchaingo model for cfg. No request is made.
func NewClient(cfg *config.LLMConfig) (*Client, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("init agent llm: %w", err)
	}
	return NewClientWithModel(llm, cfg.Model, cfg.Temperature), nil
}

// NewClientWithModel wraps an existing langchaingo model.
func NewClientWithModel(llm llms.Model, model string, temperature float64) *Client {
	return &Client{llm: llm, model: model, temperature: temperature}
}

func (c *Client) Model() string { return c.model }

// Complete sends one system+user exchange and returns the reply with any
// <think> block removed. Cancellation is returned as the context error;
// every other failure wraps models.ErrAgentUnavailable.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	res, err := c.llm.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		log.Warn().Err(err).Str("model", c.model).Msg("Agent call failed")
		return "", fmt.Errorf("%w: %v", models.ErrAgentUnavailable, err)
	}
	if len(res.Choices) == 0 {
		return "", nil
	}
	return StripThink(res.Choices[0].Content), nil
}

// StripThink removes reasoning blocks emitted by some local models.
func StripThink(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}

// Ping issues a trivial prompt to check the agent is reachable.
func Ping(ctx context.Context, c Completer) error {
	_, err := c.Complete(ctx, "Reply with OK.", "ping")
	return err
}
