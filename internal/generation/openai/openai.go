package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"ingres/internal/domain"
)

// Config configures a chat-completions backend. Any OpenAI-compatible
// endpoint works, including Gemini's compatibility API and Ollama.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	System      string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Generator implements domain.Generator over go-openai.
type Generator struct {
	client *goopenai.Client
	cfg    Config
}

var _ domain.Generator = (*Generator)(nil)

func New(cfg Config) (*Generator, error) {
	if cfg.Model == "" {
		return nil, errors.New("generation model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	oc := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Generator{client: goopenai.NewClientWithConfig(oc), cfg: cfg}, nil
}

// Generate sends prompt as a single user turn. Every failure wraps
// domain.ErrGenerationUnavailable; a missed deadline also wraps domain.ErrTimeout.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	var messages []goopenai.ChatCompletionMessage
	if g.cfg.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: g.cfg.System})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: prompt})

	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, domain.ErrTimeout)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", domain.ErrGenerationUnavailable)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", domain.ErrGenerationUnavailable)
	}
	return answer, nil
}
