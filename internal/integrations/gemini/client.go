package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"qa-assistant/internal/domain"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// Client adapts the Gemini SDK to the chat and embedding shapes used by the
// composer and retriever.
type Client struct {
	client      *genai.Client
	temperature *float32
}

type Option func(*Client)

func WithTemperature(t float32) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

func NewClient(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: API key must not be empty")
	}
	gc, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c := &Client{client: gc}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// StatusError attaches an HTTP status to a failed call.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gemini: status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func withStatus(err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		return &StatusError{StatusCode: http.StatusTooManyRequests, Err: err}
	case codes.Unavailable:
		return &StatusError{StatusCode: http.StatusServiceUnavailable, Err: err}
	default:
		return err
	}
}

func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Chat sends messages as a chat session: system messages become the system
// instruction and the final user message is sent against the rest as history.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error) {
	if model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	system, history, last, err := splitMessages(messages)
	if err != nil {
		return "", err
	}

	gm := c.client.GenerativeModel(model)
	if system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if c.temperature != nil {
		gm.SetTemperature(*c.temperature)
	}

	session := gm.StartChat()
	session.History = history
	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", fmt.Errorf("gemini: send message: %w", withStatus(err))
	}
	text := responseText(resp)
	if text == "" {
		return "", errors.New("gemini: empty response")
	}
	return text, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if model == "" {
		return nil, errors.New("gemini: embedding model must not be empty")
	}
	res, err := c.client.EmbeddingModel(model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini: embedding request failed: %w", withStatus(err))
	}
	if res == nil || res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("gemini: no embedding data received")
	}
	return res.Embedding.Values, nil
}

func splitMessages(messages []domain.ChatMessage) (string, []*genai.Content, *genai.Content, error) {
	var system []string
	var turns []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			turns = append(turns, &genai.Content{Role: roleModel, Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			turns = append(turns, &genai.Content{Role: roleUser, Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(turns) == 0 {
		return "", nil, nil, errors.New("gemini: no conversation turns to send")
	}
	last := turns[len(turns)-1]
	if last.Role != roleUser {
		return "", nil, nil, errors.New("gemini: last message must be from the user")
	}
	return strings.Join(system, "\n\n"), turns[:len(turns)-1], last, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		} else {
			slog.Debug("skipping non-text gemini response part", "type", fmt.Sprintf("%T", part))
		}
	}
	return strings.TrimSpace(b.String())
}
