package compose

import (
	"strings"

	"qa-assistant/internal/domain"
)

// DefaultPersona is used when no persona script is configured.
const DefaultPersona = "You are an AI assistant for the company whose documents are provided below. " +
	"Your role is to engage with potential customers, understand their needs, guide them towards suitable products, " +
	"and gather relevant information about them. Always maintain a professional, friendly, and helpful demeanor."

const contextInstruction = "Answer the user's questions based on the below context:"

func buildPromptMessages(persona string, docs []domain.Document, turns []domain.Turn) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(turns)+1)
	messages = append(messages, domain.ChatMessage{
		Role:    "system",
		Content: buildSystemPrompt(persona, docs),
	})
	for _, t := range turns {
		messages = append(messages, domain.ChatMessage{Role: string(t.Role), Content: t.Content})
	}
	return messages
}

func buildSystemPrompt(persona string, docs []domain.Document) string {
	persona = strings.TrimSpace(persona)
	if persona == "" {
		persona = DefaultPersona
	}
	return strings.Join([]string{
		persona,
		"",
		contextInstruction,
		"",
		formatContext(docs),
	}, "\n")
}

// formatContext joins document texts with blank lines, in retrieval order.
func formatContext(docs []domain.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		if text := strings.TrimSpace(d.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}
