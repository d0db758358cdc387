package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dkeye/chat/internal/core"
	"github.com/dkeye/chat/internal/storage/storetest"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) core.Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, openTestStore)
}

func TestOpen_ReappliesNothing(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "chat.db")
	s, err := Open(context.Background(), path)
	r.NoError(err)
	r.NoError(s.Close())

	s, err = Open(context.Background(), path)
	r.NoError(err)
	defer s.Close()

	var n int
	r.NoError(s.db.QueryRow("SELECT COUNT(*) FROM " + migrationTable).Scan(&n))
	r.Equal(1, n)
}

func TestOpen_CreatesParentDir(t *testing.T) {
	r := require.New(t)
	path := filepath.Join(t.TempDir(), "data", "nested", "chat.db")
	s, err := Open(context.Background(), path)
	r.NoError(err)
	defer s.Close()
	r.FileExists(path)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestUpSection(t *testing.T) {
	r := require.New(t)
	r.Equal("\nCREATE x;\n", upSection("-- +migrate Up\nCREATE x;\n-- +migrate Down\nDROP x;"))
	r.Equal("CREATE y;", upSection("CREATE y;"))
}
