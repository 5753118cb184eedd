package repository

import (
	"context"
	"fmt"
	"strings"

	"qa-assistant/internal/domain"
)

const (
	recordTypeHuman = "human"
	recordTypeAI    = "ai"
)

// ErrInvalidSessionID is returned when a session id cannot address a record.
var ErrInvalidSessionID = domain.ErrInvalidSessionID

// Store persists the full turn log of a session.
//
// Load never reports a missing session as an error; it returns an empty
// conversation instead. Save replaces the whole stored record.
type Store interface {
	Load(ctx context.Context, sessionID string) (*domain.Conversation, error)
	Save(ctx context.Context, sessionID string, conv *domain.Conversation) error
}

// messageRecord is the persisted shape shared by every backend.
type messageRecord struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func encodeTurns(turns []domain.Turn) []messageRecord {
	records := make([]messageRecord, 0, len(turns))
	for _, t := range turns {
		typ := recordTypeAI
		if t.Role == domain.RoleUser {
			typ = recordTypeHuman
		}
		records = append(records, messageRecord{Type: typ, Content: t.Content})
	}
	return records
}

// decodeTurns maps records back to turns. Any type other than "human" is
// read as an assistant turn.
func decodeTurns(sessionID string, records []messageRecord) *domain.Conversation {
	conv := domain.NewConversation(sessionID)
	for _, r := range records {
		role := domain.RoleAssistant
		if r.Type == recordTypeHuman {
			role = domain.RoleUser
		}
		conv.Append(role, r.Content)
	}
	return conv
}

func validateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSessionID)
	}
	return nil
}
