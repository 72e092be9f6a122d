package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutWritesUnderRoot(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, "/media/")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "game_1/ann_abc/round_1/prompt_1.png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "/media/game_1/ann_abc/round_1/prompt_1.png", url)

	b, err := os.ReadFile(filepath.Join(root, "game_1", "ann_abc", "round_1", "prompt_1.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), b)
}

func TestPutStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	s, err := New(filepath.Join(root, "media"), "/media")
	require.NoError(t, err)

	url, err := s.Put(context.Background(), "../../escape.png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "/media/escape.png", url)
	_, err = os.Stat(filepath.Join(root, "media", "escape.png"))
	assert.NoError(t, err)
}

func TestPutRejectsEmptyPath(t *testing.T) {
	s, err := New(t.TempDir(), "")
	require.NoError(t, err)
	_, err = s.Put(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestPutHonoursCancelledContext(t *testing.T) {
	s, err := New(t.TempDir(), "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, "a.png", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
