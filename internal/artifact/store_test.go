package artifact

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStorePutWritesNestedPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := New(root, zap.NewNop())
	require.NoError(t, err)

	got, err := store.Put(context.Background(),
		"recalls/Mamas_Choice_Syrup/Recall_Summary_Mamas_Choice_Syrup.pdf",
		"application/pdf", []byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(got))

	data, err := os.ReadFile(got)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4 test", string(data))
}

func TestStorePutOverwrites(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	path1, err := store.Put(ctx, "alerts/a.pdf", "application/pdf", []byte("one"))
	require.NoError(t, err)
	path2, err := store.Put(ctx, "alerts/a.pdf", "application/pdf", []byte("two"))
	require.NoError(t, err)
	require.Equal(t, path1, path2)

	data, err := os.ReadFile(path2)
	require.NoError(t, err)
	require.Equal(t, "two", string(data))
}

func TestStorePutRejectsEscape(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = store.Put(context.Background(), "../outside.pdf", "application/pdf", []byte("x"))
	require.Error(t, err)

	_, err = store.Put(context.Background(), "  ", "application/pdf", []byte("x"))
	require.Error(t, err)
}

func TestNewRequiresUsableRoot(t *testing.T) {
	t.Parallel()

	_, err := New("", zap.NewNop())
	require.Error(t, err)

	root := filepath.Join(t.TempDir(), "made", "on", "demand")
	store, err := New(root, zap.NewNop())
	require.NoError(t, err)
	require.DirExists(t, store.Root())
}
