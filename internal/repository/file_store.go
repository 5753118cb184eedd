package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"qa-assistant/internal/domain"
)

const historyFileExt = ".json"

// FileStore keeps one JSON file per session under a root directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("repository: history directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("repository: create history directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the storage root.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load reads the session file. Missing, unreadable or malformed files all
// yield an empty conversation.
func (s *FileStore) Load(_ context.Context, sessionID string) (*domain.Conversation, error) {
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("chat history unreadable, starting empty", "session_id", sessionID, "err", err)
		}
		return domain.NewConversation(sessionID), nil
	}

	var records []messageRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		slog.Warn("chat history malformed, starting empty", "session_id", sessionID, "err", err)
		return domain.NewConversation(sessionID), nil
	}
	return decodeTurns(sessionID, records), nil
}

// Save writes the conversation to a temp file and renames it over the
// session file, so readers see either the old or the new record.
func (s *FileStore) Save(_ context.Context, sessionID string, conv *domain.Conversation) error {
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}
	if conv == nil {
		return errors.New("repository: FileStore.Save: conversation must not be nil")
	}

	buf, err := json.Marshal(encodeTurns(conv.Turns))
	if err != nil {
		return fmt.Errorf("repository: FileStore.Save marshal: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+sessionID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("repository: FileStore.Save create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("repository: FileStore.Save write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("repository: FileStore.Save sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("repository: FileStore.Save close: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("repository: FileStore.Save rename: %w", err)
	}
	return nil
}

// path maps a session id to its file. Ids that are not a single path element
// are rejected; any other string, dots included, is a valid file name.
func (s *FileStore) path(sessionID string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	if sessionID == "." || sessionID == ".." ||
		strings.ContainsAny(sessionID, "/\\\x00") ||
		filepath.Base(sessionID) != sessionID {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(s.dir, sessionID+historyFileExt), nil
}
