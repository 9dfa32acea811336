package artifacts

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore_PutThenGetRoundTrips(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "task-1/build.log", bytes.NewBufferString("build ok")))

	rc, err := store.Get(ctx, "task-1/build.log")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "build ok", string(data))
}

func TestFSStore_GetMissingKeyReturnsError(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "does/not/exist.log")
	assert.Error(t, err)
}

func TestFSStore_PutCreatesNestedDirectories(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFSStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put(context.Background(), "a/b/c/diff.patch", bytes.NewBufferString("diff")))

	f, err := os.Open(filepath.Join(dir, "a/b/c/diff.patch"))
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "diff", string(data))
}
