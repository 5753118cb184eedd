package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"qa-assistant/internal/domain"
)

func TestSplitMessages(t *testing.T) {
	system, history, last, err := splitMessages([]domain.ChatMessage{
		{Role: "system", Content: "persona"},
		{Role: "system", Content: "context"},
		{Role: "user", Content: "q1"},
		{Role: "assistant", Content: "a1"},
		{Role: "user", Content: "q2"},
	})
	require.NoError(t, err)
	require.Equal(t, "persona\n\ncontext", system)
	require.Len(t, history, 2)
	require.Equal(t, roleUser, history[0].Role)
	require.Equal(t, roleModel, history[1].Role)
	require.Equal(t, []genai.Part{genai.Text("a1")}, history[1].Parts)
	require.Equal(t, roleUser, last.Role)
	require.Equal(t, []genai.Part{genai.Text("q2")}, last.Parts)
}

func TestSplitMessages_Errors(t *testing.T) {
	_, _, _, err := splitMessages([]domain.ChatMessage{{Role: "system", Content: "only"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no conversation turns")

	_, _, _, err = splitMessages([]domain.ChatMessage{
		{Role: "user", Content: "q"},
		{Role: "assistant", Content: "a"},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "last message")
}

func TestResponseText(t *testing.T) {
	require.Empty(t, responseText(nil))
	require.Empty(t, responseText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("We offer "), genai.Blob{MIMEType: "image/png"}, genai.Text("product X. ")}},
	}}}
	require.Equal(t, "We offer product X.", responseText(resp))
}

func TestNewClient_EmptyKey(t *testing.T) {
	_, err := NewClient(context.Background(), " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "API key")
}

func TestWithStatus(t *testing.T) {
	quota := fmt.Errorf("send: %w", status.Error(codes.ResourceExhausted, "quota exceeded"))
	var se *StatusError
	require.ErrorAs(t, withStatus(quota), &se)
	require.Equal(t, http.StatusTooManyRequests, se.HTTPStatusCode())

	require.ErrorAs(t, withStatus(status.Error(codes.Unavailable, "down")), &se)
	require.Equal(t, http.StatusServiceUnavailable, se.HTTPStatusCode())

	plain := errors.New("boom")
	require.Same(t, plain, withStatus(plain))
}
