package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qa-assistant/internal/domain"
)

// Generator produces a chat completion. The OpenAI and Gemini clients satisfy it.
type Generator interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// Composer turns retrieved context and the conversation so far into the next
// assistant turn.
type Composer struct {
	generator Generator
	model     string
	persona   string
}

func New(g Generator, model, persona string) (*Composer, error) {
	if g == nil {
		return nil, errors.New("compose: generator must not be nil")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("compose: model must not be empty")
	}
	return &Composer{generator: g, model: model, persona: persona}, nil
}

// Compose returns the generated answer. An empty completion is an error.
func (c *Composer) Compose(ctx context.Context, docs []domain.Document, turns []domain.Turn) (string, error) {
	if len(turns) == 0 {
		return "", errors.New("compose: conversation must not be empty")
	}
	answer, err := c.generator.Chat(ctx, c.model, buildPromptMessages(c.persona, docs, turns))
	if err != nil {
		return "", fmt.Errorf("compose: generate: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errors.New("compose: generator returned an empty answer")
	}
	return answer, nil
}
