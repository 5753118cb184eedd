package domain

import "errors"

// ErrInvalidSessionID marks a session id that no store can address.
var ErrInvalidSessionID = errors.New("invalid session id")

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in a conversation.
type Turn struct {
	Role    Role
	Content string
}

// Conversation is the ordered, append-only turn log for one session.
type Conversation struct {
	SessionID string
	Turns     []Turn
}

// NewConversation returns an empty conversation for sessionID.
func NewConversation(sessionID string) *Conversation {
	return &Conversation{SessionID: sessionID, Turns: []Turn{}}
}

// Append adds a turn to the end of the conversation.
func (c *Conversation) Append(role Role, content string) {
	c.Turns = append(c.Turns, Turn{Role: role, Content: content})
}

// LastUserTurn returns the most recent user turn, if any.
func (c *Conversation) LastUserTurn() (Turn, bool) {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Role == RoleUser {
			return c.Turns[i], true
		}
	}
	return Turn{}, false
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Turns)
}
