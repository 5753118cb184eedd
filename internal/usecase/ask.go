package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"qa-assistant/internal/domain"
)

const defaultMaxQuestion = 2000

// HistoryStore loads and replaces a session's turn log.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) (*domain.Conversation, error)
	Save(ctx context.Context, sessionID string, conv *domain.Conversation) error
}

type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]domain.Document, error)
}

type Composer interface {
	Compose(ctx context.Context, docs []domain.Document, turns []domain.Turn) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// AskService runs one question through history, retrieval and generation.
// Requests for the same session are serialized from load through save.
type AskService struct {
	history        HistoryStore
	retriever      Retriever
	composer       Composer
	maxQuestionLen int
	locks          *sessionLocks
}

type AskInput struct {
	Question  string
	SessionID string
}

type AskOutput struct {
	Answer    string
	SessionID string
}

func NewAskService(h HistoryStore, r Retriever, c Composer, maxQuestionLen int) (*AskService, error) {
	if h == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	if r == nil {
		return nil, errors.New("usecase: retriever must not be nil")
	}
	if c == nil {
		return nil, errors.New("usecase: composer must not be nil")
	}
	if maxQuestionLen <= 0 {
		maxQuestionLen = defaultMaxQuestion
	}
	return &AskService{
		history:        h,
		retriever:      r,
		composer:       c,
		maxQuestionLen: maxQuestionLen,
		locks:          newSessionLocks(),
	}, nil
}

func (s *AskService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_question", nil)
	}
	if len([]rune(question)) > s.maxQuestionLen {
		return AskOutput{}, newError(ErrorInvalidInput, "question_too_long", nil)
	}

	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = newUUID()
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	conv, err := s.history.Load(ctx, sessionID)
	if err != nil {
		return AskOutput{}, historyError("history_load_error", err)
	}
	if conv == nil {
		conv = domain.NewConversation(sessionID)
	}

	conv.Append(domain.RoleUser, question)
	last, _ := conv.LastUserTurn()

	docs, err := s.retriever.Retrieve(ctx, last.Content)
	if err != nil {
		return AskOutput{}, upstreamError("retrieval", err)
	}

	answer, err := s.composer.Compose(ctx, docs, conv.Turns)
	if err != nil {
		return AskOutput{}, upstreamError("generation", err)
	}

	conv.Append(domain.RoleAssistant, answer)
	if err := s.history.Save(ctx, sessionID, conv); err != nil {
		return AskOutput{}, historyError("history_save_error", err)
	}

	slog.Debug("answered question", "session_id", sessionID, "turns", conv.Len(), "documents", len(docs))
	return AskOutput{Answer: answer, SessionID: sessionID}, nil
}

// historyError reports a session id the store refused as client input.
func historyError(reason string, err error) *Error {
	if errors.Is(err, domain.ErrInvalidSessionID) {
		return newError(ErrorInvalidInput, "invalid_session_id", err)
	}
	return newError(ErrorInternal, reason, err)
}

func upstreamError(stage string, err error) *Error {
	if status, ok := upstreamStatusCode(err); ok && status == 429 {
		return newError(ErrorRateLimited, stage+"_rate_limited", err)
	}
	return newError(ErrorUpstream, stage+"_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
