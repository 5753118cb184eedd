package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"qa-assistant/internal/domain"
)

func mustNewFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNewFileStore_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "histories")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.Equal(t, dir, s.Dir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewFileStore_EmptyDir(t *testing.T) {
	_, err := NewFileStore("  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestFileStore_WritesRecordFormat(t *testing.T) {
	s := mustNewFileStore(t)
	conv := domain.NewConversation("s1")
	conv.Append(domain.RoleUser, "hello")
	conv.Append(domain.RoleAssistant, "hi there")
	require.NoError(t, s.Save(context.Background(), "s1", conv))

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "s1.json"))
	require.NoError(t, err)
	require.JSONEq(t, `[{"type":"human","content":"hello"},{"type":"ai","content":"hi there"}]`, string(raw))
}

func TestFileStore_ReadsExistingRecord(t *testing.T) {
	s := mustNewFileStore(t)
	body := `[{"type":"human","content":"q1"},{"type":"ai","content":"a1"}]`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "legacy.json"), []byte(body), 0o644))

	conv, err := s.Load(context.Background(), "legacy")
	require.NoError(t, err)
	require.Equal(t, []domain.Turn{
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
	}, conv.Turns)
}

func TestFileStore_MalformedRecordLoadsEmpty(t *testing.T) {
	s := mustNewFileStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.json"), []byte(`[{"type":`), 0o644))

	conv, err := s.Load(context.Background(), "broken")
	require.NoError(t, err)
	require.Empty(t, conv.Turns)
}

func TestFileStore_UnreadableRecordLoadsEmpty(t *testing.T) {
	s := mustNewFileStore(t)
	// A directory where the file should be cannot be read as a record.
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "dir.json"), 0o755))

	conv, err := s.Load(context.Background(), "dir")
	require.NoError(t, err)
	require.Empty(t, conv.Turns)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	s := mustNewFileStore(t)
	conv := domain.NewConversation("s1")
	conv.Append(domain.RoleUser, "q")
	require.NoError(t, s.Save(context.Background(), "s1", conv))
	require.NoError(t, s.Save(context.Background(), "s1", conv))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "s1.json", entries[0].Name())
}

func TestFileStore_SaveFailurePropagates(t *testing.T) {
	s := mustNewFileStore(t)
	require.NoError(t, os.RemoveAll(s.Dir()))

	err := s.Save(context.Background(), "s1", domain.NewConversation("s1"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "FileStore.Save")
}

func TestFileStore_SaveNilConversation(t *testing.T) {
	s := mustNewFileStore(t)
	err := s.Save(context.Background(), "s1", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")
}

func TestFileStore_RejectsPathTraversal(t *testing.T) {
	s := mustNewFileStore(t)
	for _, id := range []string{"../escape", "a/b", `a\b`, "..", ".", "nul\x00id"} {
		_, err := s.Load(context.Background(), id)
		require.ErrorIs(t, err, ErrInvalidSessionID, "id=%q", id)
		err = s.Save(context.Background(), id, domain.NewConversation(id))
		require.ErrorIs(t, err, ErrInvalidSessionID, "id=%q", id)
	}
}

func TestFileStore_DottedIDsRoundTrip(t *testing.T) {
	s := mustNewFileStore(t)
	ctx := context.Background()
	for _, id := range []string{"x..y", "...", ".hidden", "v1.2"} {
		conv := domain.NewConversation(id)
		conv.Append(domain.RoleUser, "q")
		require.NoError(t, s.Save(ctx, id, conv), "id=%q", id)

		got, err := s.Load(ctx, id)
		require.NoError(t, err, "id=%q", id)
		require.Equal(t, conv.Turns, got.Turns, "id=%q", id)
	}
}
